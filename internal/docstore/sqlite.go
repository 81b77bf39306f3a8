package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"sync"

	"handraise/pkg/database"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// sqliteBackend stores documents in one SQLite table.
// ARCHITECTURAL DISCOVERY: Single-writer goroutine prevents SQLite write
// contention; reads run concurrently on the pool
type sqliteBackend struct {
	db           *sql.DB
	writeChannel chan writeOperation
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

// writeOperation represents a queued write transaction
type writeOperation struct {
	ctx       context.Context
	operation func(context.Context, *sql.DB) error
	result    chan error
}

// NewSQLiteStore opens the SQLite file in cfg, applies the embedded
// migrations and returns a Store on top of it.
func NewSQLiteStore(cfg *database.Config, opts ...Option) (*Store, error) {
	db, err := database.OpenSQLite(cfg)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrationManager(db, database.DriverSQLite).ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}
	if err := database.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	b := &sqliteBackend{
		db:           db,
		writeChannel: make(chan writeOperation, 100),
		shutdown:     make(chan struct{}),
	}
	b.wg.Add(1)
	go b.writeLoop()

	log.Printf("SQLite document store ready: path=%s", cfg.DatabasePath)
	return newStore(database.DriverSQLite, b, opts...), nil
}

// writeLoop processes all write operations in a single goroutine
func (b *sqliteBackend) writeLoop() {
	defer b.wg.Done()

	for {
		select {
		case op := <-b.writeChannel:
			err := op.operation(op.ctx, b.db)
			if err != nil {
				log.Printf("Document write failed: %v", err)
			}
			op.result <- err

		case <-b.shutdown:
			log.Println("Document write loop shutting down")
			return
		}
	}
}

// executeWrite queues a write operation and waits for completion
func (b *sqliteBackend) executeWrite(ctx context.Context, operation func(context.Context, *sql.DB) error) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return fmt.Errorf("document store is closed")
	}
	b.mu.RUnlock()

	result := make(chan error, 1)

	select {
	case b.writeChannel <- writeOperation{ctx: ctx, operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-b.shutdown:
		return fmt.Errorf("document store is shutting down")
	}

	select {
	case err := <-result:
		return err
	case <-b.shutdown:
		return fmt.Errorf("document store is shutting down")
	}
}

func (b *sqliteBackend) get(ctx context.Context, path string) (*types.Document, error) {
	return sqliteGet(ctx, b.db, path)
}

func (b *sqliteBackend) scan(ctx context.Context, collection string) ([]*types.Document, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT path, doc_id, fields
		FROM documents
		WHERE collection = ?
		ORDER BY seq ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer func() { _ = rows.Close() }()

	var docs []*types.Document
	for rows.Next() {
		var path, id, raw string
		if err := rows.Scan(&path, &id, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		fields, err := decodeFields([]byte(raw))
		if err != nil {
			return nil, err
		}
		docs = append(docs, &types.Document{ID: id, Path: path, Fields: fields})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating document rows: %w", err)
	}
	return docs, nil
}

// apply runs fn in a transaction on the writer goroutine
func (b *sqliteBackend) apply(ctx context.Context, fn func(tx txn) error) error {
	return b.executeWrite(ctx, func(ctx context.Context, db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if err := fn(&sqliteTxn{ctx: ctx, tx: tx}); err != nil {
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit documents: %w", err)
		}
		return nil
	})
}

// ping validates both connectivity and the documents table
func (b *sqliteBackend) ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	var n int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents LIMIT 1").Scan(&n); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

func (b *sqliteBackend) close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.shutdown)
	b.wg.Wait()

	if err := b.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

type sqliteTxn struct {
	ctx context.Context
	tx  *sql.Tx
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func sqliteGet(ctx context.Context, q queryRower, path string) (*types.Document, error) {
	var id, raw string
	err := q.QueryRowContext(ctx, "SELECT doc_id, fields FROM documents WHERE path = ?", path).Scan(&id, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query document %s: %w", path, err)
	}
	fields, err := decodeFields([]byte(raw))
	if err != nil {
		return nil, err
	}
	return &types.Document{ID: id, Path: path, Fields: fields}, nil
}

func (t *sqliteTxn) get(path string) (*types.Document, error) {
	return sqliteGet(t.ctx, t.tx, path)
}

// create relies on the writer goroutine: nothing else writes between the
// lookup and the insert
func (t *sqliteTxn) create(collection, id, path string, fields types.Fields) error {
	existing, err := t.get(path)
	if err != nil {
		return err
	}
	if existing != nil {
		return fmt.Errorf("%w: %s", interfaces.ErrDocumentExists, path)
	}
	return t.put(collection, id, path, fields)
}

// put upserts; ON CONFLICT keeps the row and therefore its seq
func (t *sqliteTxn) put(collection, id, path string, fields types.Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(t.ctx, `
		INSERT INTO documents (path, collection, doc_id, fields)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET fields = excluded.fields, updated_at = CURRENT_TIMESTAMP
	`, path, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	return nil
}

func (t *sqliteTxn) del(path string) error {
	if _, err := t.tx.ExecContext(t.ctx, "DELETE FROM documents WHERE path = ?", path); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	return nil
}
