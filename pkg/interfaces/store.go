package interfaces

import (
	"context"

	"handraise/pkg/types"
)

// DocumentStore is the real-time, multi-writer document database the
// classroom components persist to.
// ARCHITECTURAL DISCOVERY: Every component depends on this interface only, so
// the embedded, shared and in-memory stores are interchangeable.
type DocumentStore interface {
	// Get returns ErrDocumentNotFound when the document does not exist.
	Get(ctx context.Context, path string) (*types.Document, error)

	// Create writes a new document and fails with ErrDocumentExists if the
	// path is taken. The existence check and the write are atomic.
	Create(ctx context.Context, path string, fields types.Fields) error

	// Set replaces the whole document, creating it when absent.
	Set(ctx context.Context, path string, fields types.Fields) error

	// Update merges fields into an existing document. A nil value stores null.
	Update(ctx context.Context, path string, fields types.Fields) error

	// Delete removes a document. Deleting an absent document is not an error.
	Delete(ctx context.Context, path string) error

	// Add appends a document with a generated id to collection.
	Add(ctx context.Context, collection string, fields types.Fields) (string, error)

	// Commit applies every write or none of them.
	Commit(ctx context.Context, writes []types.Write) error

	// List is a one-shot read of a collection.
	List(ctx context.Context, query types.Query) ([]*types.Document, error)

	// Subscribe delivers the current query result immediately and again after
	// every change to the collection. Slow consumers may miss intermediate
	// snapshots but always receive the latest one.
	Subscribe(ctx context.Context, query types.Query) (Subscription, error)

	HealthCheck(ctx context.Context) error

	Close() error
}

// Subscription is a live query. Snapshots is closed when the subscription
// ends; Err then reports why, or nil after a normal Close.
type Subscription interface {
	Snapshots() <-chan types.Snapshot
	Err() error
	Close() error
}
