package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"math/big"
	"time"

	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// CodeAlphabet is the character set of generated join codes.
const CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// CodeLength is the length of a join code.
const CodeLength = 6

const defaultCodeAttempts = 10

// sweepAttempts bounds how often Close re-reads the roster when students
// leave while the sweep is in flight.
const sweepAttempts = 3

// Manager owns the class lifecycle: create, close, reopen and lookups.
// ARCHITECTURAL DISCOVERY: The manager keeps no cache; every decision reads
// the store so several service instances can share one class.
type Manager struct {
	store        interfaces.DocumentStore
	now          func() time.Time
	generateCode func() (string, error)
	codeAttempts int
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithCodeGenerator replaces the random join code generator.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(m *Manager) { m.generateCode = fn }
}

// WithCodeAttempts bounds the probe-and-retry loop of CreateWithGeneratedCode.
func WithCodeAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.codeAttempts = n
		}
	}
}

// NewManager creates a new class lifecycle manager
func NewManager(store interfaces.DocumentStore, opts ...Option) *Manager {
	m := &Manager{
		store:        store,
		now:          time.Now,
		generateCode: GenerateCode,
		codeAttempts: defaultCodeAttempts,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GenerateCode draws a join code uniformly from CodeAlphabet.
func GenerateCode() (string, error) {
	max := big.NewInt(int64(len(CodeAlphabet)))
	code := make([]byte, CodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate class code: %w", err)
		}
		code[i] = CodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// Create opens a new class under code.
// FUNCTIONAL DISCOVERY: The store's atomic create is the uniqueness check, so
// two teachers racing for one code cannot both succeed
func (m *Manager) Create(ctx context.Context, code, name string) (*types.Class, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return nil, err
	}
	if err := types.ValidateClassName(name); err != nil {
		return nil, err
	}

	class := &types.Class{
		Code:      code,
		Name:      name,
		CreatedAt: m.now().UTC(),
		State:     types.ClassOpen,
	}

	err := m.store.Create(ctx, types.ClassPath(code), types.Fields{
		types.FieldID:        code,
		types.FieldName:      name,
		types.FieldCreatedAt: class.CreatedAt,
		types.FieldState:     string(types.ClassOpen),
	})
	if err != nil {
		if errors.Is(err, types.ErrAlreadyExists) {
			return nil, fmt.Errorf("class %s: %w", code, types.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("failed to create class: %w", err)
	}

	log.Printf("Created class: code=%s name=%q", code, name)
	return class, nil
}

// CreateWithGeneratedCode generates codes until one is free and creates the
// class under it.
func (m *Manager) CreateWithGeneratedCode(ctx context.Context, name string) (*types.Class, error) {
	if err := types.ValidateClassName(name); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= m.codeAttempts; attempt++ {
		code, err := m.generateCode()
		if err != nil {
			return nil, err
		}
		exists, err := m.Exists(ctx, code)
		if err != nil {
			return nil, err
		}
		if exists {
			log.Printf("Class code collision: code=%s attempt=%d", code, attempt)
			continue
		}
		class, err := m.Create(ctx, code, name)
		if errors.Is(err, types.ErrAlreadyExists) {
			continue
		}
		return class, err
	}
	return nil, ErrCodeGenerationExhausted
}

// Exists reports whether a class document exists for code.
func (m *Manager) Exists(ctx context.Context, code string) (bool, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return false, err
	}
	_, err := m.store.Get(ctx, types.ClassPath(code))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check class %s: %w", code, err)
	}
	return true, nil
}

// Get returns the class or an error matching types.ErrNotFound.
func (m *Manager) Get(ctx context.Context, code string) (*types.Class, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return nil, err
	}
	doc, err := m.store.Get(ctx, types.ClassPath(code))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("class %s: %w", code, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get class %s: %w", code, err)
	}
	return types.ClassFromDocument(doc)
}

// List returns every class, newest first.
func (m *Manager) List(ctx context.Context) ([]*types.Class, error) {
	docs, err := m.store.List(ctx, types.Query{
		Collection: types.ClassesCollection,
		OrderBy:    types.FieldCreatedAt,
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list classes: %w", err)
	}

	classes := make([]*types.Class, 0, len(docs))
	for _, doc := range docs {
		class, err := types.ClassFromDocument(doc)
		if err != nil {
			log.Printf("Skipping malformed class document: %v", err)
			continue
		}
		classes = append(classes, class)
	}
	return classes, nil
}

// Close marks the class closed and then moves every active student to
// removed in one batch.
// FUNCTIONAL DISCOVERY: The state write lands first so joiners see the class
// as closed before the roster sweep finishes. Closing a closed class keeps the
// original closeAt and sweeps again, catching anyone who joined in between.
func (m *Manager) Close(ctx context.Context, code string) error {
	class, err := m.Get(ctx, code)
	if err != nil {
		return err
	}

	closedAt := m.now().UTC()
	if class.State == types.ClassClosed && class.ClosedAt != nil {
		closedAt = *class.ClosedAt
	}

	err = m.store.Update(ctx, types.ClassPath(code), types.Fields{
		types.FieldState:   string(types.ClassClosed),
		types.FieldCloseAt: closedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to close class %s: %w", code, err)
	}

	removed, err := m.sweepRoster(ctx, code)
	if err != nil {
		return fmt.Errorf("class %s closed but roster sweep failed: %w", code, err)
	}

	log.Printf("Closed class: code=%s removed_students=%d", code, removed)
	return nil
}

func (m *Manager) sweepRoster(ctx context.Context, code string) (int, error) {
	var lastErr error
	for attempt := 0; attempt < sweepAttempts; attempt++ {
		removed, err := m.sweepOnce(ctx, code)
		if err == nil {
			return removed, nil
		}
		// FUNCTIONAL DISCOVERY: A student who left after the roster read fails
		// the whole batch; a fresh read no longer lists them
		if !errors.Is(err, interfaces.ErrDocumentNotFound) {
			return 0, err
		}
		lastErr = err
	}
	// The class itself exists, so a vanished student must not read as NotFound
	return 0, fmt.Errorf("%w after %d attempts: %v", ErrRosterSweepIncomplete, sweepAttempts, lastErr)
}

func (m *Manager) sweepOnce(ctx context.Context, code string) (int, error) {
	docs, err := m.store.List(ctx, types.Query{Collection: types.StudentsPath(code)})
	if err != nil {
		return 0, err
	}

	var writes []types.Write
	for _, doc := range docs {
		student, err := types.StudentFromDocument(code, doc)
		if err != nil || !student.IsActive() {
			continue
		}
		writes = append(writes, types.Write{
			Op:     types.WriteUpdate,
			Path:   doc.Path,
			Fields: types.Fields{types.FieldStatus: string(types.StudentRemoved)},
		})
	}
	if len(writes) == 0 {
		return 0, nil
	}
	if err := m.store.Commit(ctx, writes); err != nil {
		return 0, err
	}
	return len(writes), nil
}

// Reopen sets the class back to open. Removed students stay removed.
func (m *Manager) Reopen(ctx context.Context, code string) error {
	if _, err := m.Get(ctx, code); err != nil {
		return err
	}

	err := m.store.Update(ctx, types.ClassPath(code), types.Fields{
		types.FieldState:   string(types.ClassOpen),
		types.FieldCloseAt: nil,
	})
	if err != nil {
		return fmt.Errorf("failed to reopen class %s: %w", code, err)
	}

	log.Printf("Reopened class: code=%s", code)
	return nil
}
