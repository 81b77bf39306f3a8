package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"handraise/pkg/database"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// memoryRow holds the encoded fields so every read hands out a fresh copy.
type memoryRow struct {
	collection string
	id         string
	data       []byte
	seq        int64
}

type memoryBackend struct {
	mu   sync.RWMutex
	rows map[string]*memoryRow
	seq  int64
}

// NewMemoryStore returns a Store that keeps documents in process memory.
func NewMemoryStore(opts ...Option) *Store {
	return newStore(database.DriverMemory, &memoryBackend{rows: make(map[string]*memoryRow)}, opts...)
}

func (m *memoryBackend) get(ctx context.Context, path string) (*types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[path]
	if !ok {
		return nil, nil
	}
	return row.document(path)
}

func (m *memoryBackend) scan(ctx context.Context, collection string) ([]*types.Document, error) {
	m.mu.RLock()
	type entry struct {
		path string
		row  *memoryRow
	}
	var entries []entry
	for path, row := range m.rows {
		if row.collection == collection {
			entries = append(entries, entry{path, row})
		}
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].row.seq < entries[j].row.seq })

	docs := make([]*types.Document, 0, len(entries))
	for _, e := range entries {
		doc, err := e.row.document(e.path)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// apply stages writes in an overlay and swaps them in only when fn succeeds.
func (m *memoryBackend) apply(ctx context.Context, fn func(tx txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTxn{backend: m, staged: make(map[string]*memoryRow), seq: m.seq}
	if err := fn(tx); err != nil {
		return err
	}
	for path, row := range tx.staged {
		if row == nil {
			delete(m.rows, path)
			continue
		}
		m.rows[path] = row
	}
	m.seq = tx.seq
	return nil
}

func (m *memoryBackend) ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *memoryBackend) close() error {
	return nil
}

type memoryTxn struct {
	backend *memoryBackend
	// staged maps a path to its new row, nil meaning deleted.
	staged map[string]*memoryRow
	seq    int64
}

func (t *memoryTxn) lookup(path string) *memoryRow {
	if row, ok := t.staged[path]; ok {
		return row
	}
	return t.backend.rows[path]
}

func (t *memoryTxn) get(path string) (*types.Document, error) {
	row := t.lookup(path)
	if row == nil {
		return nil, nil
	}
	return row.document(path)
}

func (t *memoryTxn) create(collection, id, path string, fields types.Fields) error {
	if t.lookup(path) != nil {
		return fmt.Errorf("%w: %s", interfaces.ErrDocumentExists, path)
	}
	return t.put(collection, id, path, fields)
}

func (t *memoryTxn) put(collection, id, path string, fields types.Fields) error {
	data, err := encodeFields(fields)
	if err != nil {
		return err
	}
	row := &memoryRow{collection: collection, id: id, data: data}
	if existing := t.lookup(path); existing != nil {
		row.seq = existing.seq
	} else {
		t.seq++
		row.seq = t.seq
	}
	t.staged[path] = row
	return nil
}

func (t *memoryTxn) del(path string) error {
	t.staged[path] = nil
	return nil
}

func (r *memoryRow) document(path string) (*types.Document, error) {
	fields, err := decodeFields(r.data)
	if err != nil {
		return nil, err
	}
	return &types.Document{ID: r.id, Path: path, Fields: fields}, nil
}
