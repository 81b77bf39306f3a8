package docstore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"handraise/pkg/database"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// postgresBackend stores documents in PostgreSQL and uses LISTEN/NOTIFY so
// several service instances sharing one database see each other's commits.
type postgresBackend struct {
	pool     *pgxpool.Pool
	channel  string
	instance string
	onChange func(collections ...string)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPostgresStore connects to cfg.DatabaseURL, applies the embedded
// migrations and starts the change listener.
func NewPostgresStore(ctx context.Context, cfg *database.Config, opts ...Option) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	sqlDB := stdlib.OpenDBFromPool(pool)
	err = database.NewMigrationManager(sqlDB, database.DriverPostgres).ApplyMigrations()
	_ = sqlDB.Close()
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	b := &postgresBackend{
		pool:     pool,
		channel:  cfg.NotifyChannel,
		instance: uuid.NewString(),
	}
	store := newStore(database.DriverPostgres, b, opts...)
	b.onChange = store.Changed

	listenCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.wg.Add(1)
	go b.listen(listenCtx)

	log.Printf("PostgreSQL document store ready: channel=%s instance=%s", b.channel, b.instance)
	return store, nil
}

func (b *postgresBackend) get(ctx context.Context, path string) (*types.Document, error) {
	return pgGet(ctx, b.pool, path)
}

func (b *postgresBackend) scan(ctx context.Context, collection string) ([]*types.Document, error) {
	rows, err := b.pool.Query(ctx, `
		SELECT path, doc_id, fields::text
		FROM documents
		WHERE collection = $1
		ORDER BY seq ASC
	`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection %s: %w", collection, err)
	}
	defer rows.Close()

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

// apply runs fn in a transaction and queues one notification per touched
// collection; PostgreSQL delivers them only if the transaction commits.
func (b *postgresBackend) apply(ctx context.Context, fn func(tx txn) error) error {
	tx, err := b.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	pt := &pgTxn{ctx: ctx, tx: tx, touched: make(map[string]bool)}
	if err := fn(pt); err != nil {
		return err
	}

	for collection := range pt.touched {
		payload := b.instance + "|" + collection
		if _, err := tx.Exec(ctx, "SELECT pg_notify($1, $2)", b.channel, payload); err != nil {
			return fmt.Errorf("failed to queue change notification: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit documents: %w", err)
	}
	return nil
}

func (b *postgresBackend) ping(ctx context.Context) error {
	if err := b.pool.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

func (b *postgresBackend) close() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()
	b.pool.Close()
	return nil
}

// listen holds one pooled connection on LISTEN and forwards changes made by
// other instances. It reconnects until ctx is cancelled.
func (b *postgresBackend) listen(ctx context.Context) {
	defer b.wg.Done()

	backoff := time.Second
	for {
		err := b.listenOnce(ctx)
		if ctx.Err() != nil {
			return
		}
		log.Printf("Document change listener failed, retrying in %v: %v", backoff, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (b *postgresBackend) listenOnce(ctx context.Context) error {
	conn, err := b.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire listener connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{b.channel}.Sanitize()); err != nil {
		return fmt.Errorf("failed to listen on %s: %w", b.channel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		origin, collection, ok := strings.Cut(notification.Payload, "|")
		if !ok || origin == b.instance {
			continue
		}
		b.onChange(collection)
	}
}

type pgQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func pgGet(ctx context.Context, q pgQuerier, path string) (*types.Document, error) {
	var id, raw string
	err := q.QueryRow(ctx, "SELECT doc_id, fields::text FROM documents WHERE path = $1", path).Scan(&id, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

type pgTxn struct {
	ctx     context.Context
	tx      pgx.Tx
	touched map[string]bool
}

// get locks the row so read-modify-write updates serialize across instances
func (t *pgTxn) get(path string) (*types.Document, error) {
	var id, raw string
	err := t.tx.QueryRow(t.ctx, "SELECT doc_id, fields::text FROM documents WHERE path = $1 FOR UPDATE", path).Scan(&id, &raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

// create uses the unique path constraint as the existence check
func (t *pgTxn) create(collection, id, path string, fields types.Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(t.ctx, `
		INSERT INTO documents (path, collection, doc_id, fields)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (path) DO NOTHING
	`, path, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("failed to create document %s: %w", path, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", interfaces.ErrDocumentExists, path)
	}
	t.touched[collection] = true
	return nil
}

func (t *pgTxn) put(collection, id, path string, fields types.Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(t.ctx, `
		INSERT INTO documents (path, collection, doc_id, fields)
		VALUES ($1, $2, $3, $4::jsonb)
		ON CONFLICT (path) DO UPDATE SET fields = EXCLUDED.fields, updated_at = now()
	`, path, collection, id, string(data))
	if err != nil {
		return fmt.Errorf("failed to write document %s: %w", path, err)
	}
	t.touched[collection] = true
	return nil
}

func (t *pgTxn) del(path string) error {
	collection, _ := types.SplitPath(path)
	if _, err := t.tx.Exec(t.ctx, "DELETE FROM documents WHERE path = $1", path); err != nil {
		return fmt.Errorf("failed to delete document %s: %w", path, err)
	}
	t.touched[collection] = true
	return nil
}
