package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// backend is the persistence layer underneath a Store.
type backend interface {
	get(ctx context.Context, path string) (*types.Document, error)
	// scan returns the direct children of collection in arrival order.
	scan(ctx context.Context, collection string) ([]*types.Document, error)
	// apply runs fn inside one atomic transaction.
	apply(ctx context.Context, fn func(tx txn) error) error
	ping(ctx context.Context) error
	close() error
}

// txn is the view of the store inside an atomic write.
type txn interface {
	// get returns nil, nil when the document is absent.
	get(path string) (*types.Document, error)
	// create inserts and fails with ErrDocumentExists when path is taken.
	create(collection, id, path string, fields types.Fields) error
	// put upserts; an existing document keeps its arrival position.
	put(collection, id, path string, fields types.Fields) error
	del(path string) error
}

// Store implements interfaces.DocumentStore on top of a backend and fans
// committed changes out to live subscriptions.
// ARCHITECTURAL DISCOVERY: Write semantics and subscriptions live here once,
// so every backend only needs row-level get/scan/upsert/delete
type Store struct {
	name    string
	backend backend
	fanout  *fanout
	newID   func() string
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithIDGenerator replaces the uuid generator used by Add.
func WithIDGenerator(fn func() string) Option {
	return func(s *Store) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithClock replaces the clock stamped on snapshots.
func WithClock(fn func() time.Time) Option {
	return func(s *Store) {
		if fn != nil {
			s.now = fn
		}
	}
}

func newStore(name string, b backend, opts ...Option) *Store {
	s := &Store{
		name:    name,
		backend: b,
		fanout:  newFanout(),
		newID:   uuid.NewString,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ interfaces.DocumentStore = (*Store)(nil)

// Name returns the backend name, e.g. "sqlite3".
func (s *Store) Name() string {
	return s.name
}

// Get retrieves a single document.
func (s *Store) Get(ctx context.Context, path string) (*types.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !types.IsDocumentPath(path) {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrInvalidPath, path)
	}
	doc, err := s.backend.get(ctx, path)
	if err != nil {
		return nil, s.wrap(err)
	}
	if doc == nil {
		return nil, interfaces.ErrDocumentNotFound
	}
	return doc, nil
}

func (s *Store) Create(ctx context.Context, path string, fields types.Fields) error {
	return s.Commit(ctx, []types.Write{{Op: types.WriteCreate, Path: path, Fields: fields}})
}

func (s *Store) Set(ctx context.Context, path string, fields types.Fields) error {
	return s.Commit(ctx, []types.Write{{Op: types.WriteSet, Path: path, Fields: fields}})
}

func (s *Store) Update(ctx context.Context, path string, fields types.Fields) error {
	return s.Commit(ctx, []types.Write{{Op: types.WriteUpdate, Path: path, Fields: fields}})
}

func (s *Store) Delete(ctx context.Context, path string) error {
	return s.Commit(ctx, []types.Write{{Op: types.WriteDelete, Path: path}})
}

// Add creates a document with a generated id inside collection.
func (s *Store) Add(ctx context.Context, collection string, fields types.Fields) (string, error) {
	if !types.IsCollectionPath(collection) {
		return "", fmt.Errorf("%w: %q", interfaces.ErrInvalidPath, collection)
	}
	id := s.newID()
	if err := s.Create(ctx, types.JoinPath(collection, id), fields); err != nil {
		return "", err
	}
	return id, nil
}

// Commit applies writes atomically and then wakes the subscriptions of every
// touched collection.
func (s *Store) Commit(ctx context.Context, writes []types.Write) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if len(writes) == 0 {
		return nil
	}

	prepared := make([]preparedWrite, 0, len(writes))
	for _, w := range writes {
		p, err := prepare(w)
		if err != nil {
			return err
		}
		prepared = append(prepared, p)
	}

	err := s.backend.apply(ctx, func(tx txn) error {
		for _, p := range prepared {
			if err := p.apply(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return s.wrap(err)
	}

	s.fanout.publish(touchedCollections(prepared)...)
	return nil
}

// List runs a one-shot query.
func (s *Store) List(ctx context.Context, query types.Query) ([]*types.Document, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !types.IsCollectionPath(query.Collection) {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrInvalidPath, query.Collection)
	}
	docs, err := s.backend.scan(ctx, query.Collection)
	if err != nil {
		return nil, s.wrap(err)
	}
	return sortDocuments(docs, query.OrderBy, query.Descending), nil
}

// Subscribe starts a live query. The first snapshot is read before Subscribe
// returns so an unavailable store fails the call rather than the stream.
func (s *Store) Subscribe(ctx context.Context, query types.Query) (interfaces.Subscription, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	if !types.IsCollectionPath(query.Collection) {
		return nil, fmt.Errorf("%w: %q", interfaces.ErrInvalidPath, query.Collection)
	}

	sub := newSubscription(ctx, query, s.List, s.now, s.fanout)
	// Register before the first read so no commit can fall between the two.
	s.fanout.add(query.Collection, sub)

	docs, err := s.List(sub.ctx, query)
	if err != nil {
		_ = sub.Close()
		return nil, err
	}
	sub.deliver(types.Snapshot{Documents: docs, ReadAt: s.now()})

	go sub.run()
	return sub, nil
}

// Changed wakes subscriptions of collections written by another process.
func (s *Store) Changed(collections ...string) {
	s.fanout.publish(collections...)
}

// HealthCheck validates backend connectivity
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if err := s.backend.ping(ctx); err != nil {
		return s.wrap(err)
	}
	return nil
}

// SubscriptionCount reports how many live subscriptions exist.
func (s *Store) SubscriptionCount() int {
	return s.fanout.count()
}

// Close ends every subscription and releases the backend.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.fanout.closeAll()
	if err := s.backend.close(); err != nil {
		return fmt.Errorf("failed to close %s store: %w", s.name, err)
	}
	log.Printf("Document store closed: driver=%s", s.name)
	return nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return interfaces.ErrStoreClosed
	}
	return nil
}

// wrap marks backend I/O failures as ErrStoreUnavailable and leaves contract
// errors untouched.
func (s *Store) wrap(err error) error {
	switch {
	case errors.Is(err, interfaces.ErrDocumentNotFound),
		errors.Is(err, interfaces.ErrDocumentExists),
		errors.Is(err, interfaces.ErrInvalidPath),
		errors.Is(err, interfaces.ErrStoreClosed),
		errors.Is(err, types.ErrStoreUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %s: %w", types.ErrStoreUnavailable, s.name, err)
	}
}

// preparedWrite is a validated write with normalized fields.
type preparedWrite struct {
	op         types.WriteOp
	path       string
	collection string
	id         string
	fields     types.Fields
}

func prepare(w types.Write) (preparedWrite, error) {
	if !types.IsDocumentPath(w.Path) {
		return preparedWrite{}, fmt.Errorf("%w: %q", interfaces.ErrInvalidPath, w.Path)
	}
	collection, id := types.SplitPath(w.Path)
	p := preparedWrite{op: w.Op, path: w.Path, collection: collection, id: id}

	switch w.Op {
	case types.WriteCreate, types.WriteSet, types.WriteUpdate:
		fields, err := normalizeFields(w.Fields)
		if err != nil {
			return preparedWrite{}, fmt.Errorf("failed to encode fields of %s: %w", w.Path, err)
		}
		p.fields = fields
	case types.WriteDelete:
	default:
		return preparedWrite{}, fmt.Errorf("unknown write op %q for %s", w.Op, w.Path)
	}
	return p, nil
}

func (p preparedWrite) apply(tx txn) error {
	switch p.op {
	case types.WriteCreate:
		return tx.create(p.collection, p.id, p.path, p.fields)
	case types.WriteSet:
		return tx.put(p.collection, p.id, p.path, p.fields)
	case types.WriteUpdate:
		existing, err := tx.get(p.path)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("%w: %s", interfaces.ErrDocumentNotFound, p.path)
		}
		merged := make(types.Fields, len(existing.Fields)+len(p.fields))
		for k, v := range existing.Fields {
			merged[k] = v
		}
		for k, v := range p.fields {
			merged[k] = v
		}
		return tx.put(p.collection, p.id, p.path, merged)
	case types.WriteDelete:
		return tx.del(p.path)
	}
	return nil
}

func touchedCollections(writes []preparedWrite) []string {
	seen := make(map[string]bool, len(writes))
	var out []string
	for _, w := range writes {
		if !seen[w.collection] {
			seen[w.collection] = true
			out = append(out, w.collection)
		}
	}
	return out
}
