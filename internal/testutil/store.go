// Package testutil holds fakes shared by package tests.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"handraise/internal/docstore"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// ErrInjected is returned by FaultyStore operations switched to fail.
var ErrInjected = fmt.Errorf("%w: injected failure", types.ErrStoreUnavailable)

// FaultyStore wraps an in-memory store and fails selected operations on
// demand. It also counts calls so tests can assert that validation failed
// before touching the store.
type FaultyStore struct {
	*docstore.Store

	mu               sync.Mutex
	shouldFailGet    bool
	shouldFailList   bool
	shouldFailWrite  bool
	shouldFailCommit bool
	failListPrefix   string
	calls            int
	commits          [][]types.Write

	afterList    func(collection string)
	beforeCreate func(path string)
}

// NewFaultyStore returns a FaultyStore over a fresh memory store.
func NewFaultyStore() *FaultyStore {
	return &FaultyStore{Store: docstore.NewMemoryStore()}
}

var _ interfaces.DocumentStore = (*FaultyStore)(nil)

// FailGet makes Get fail.
func (f *FaultyStore) FailGet(fail bool) { f.set(func() { f.shouldFailGet = fail }) }

// FailList makes List and Subscribe fail for collections with prefix, or for
// every collection when prefix is empty.
func (f *FaultyStore) FailList(fail bool, prefix string) {
	f.set(func() { f.shouldFailList = fail; f.failListPrefix = prefix })
}

// FailWrite makes Create, Set, Update, Delete and Add fail.
func (f *FaultyStore) FailWrite(fail bool) { f.set(func() { f.shouldFailWrite = fail }) }

// FailCommit makes Commit fail.
func (f *FaultyStore) FailCommit(fail bool) { f.set(func() { f.shouldFailCommit = fail }) }

// AfterListOnce runs fn after the next successful List, simulating a write
// that lands between a read and the write based on it.
func (f *FaultyStore) AfterListOnce(fn func(collection string)) {
	f.set(func() { f.afterList = fn })
}

// BeforeCreateOnce runs fn before the next Create reaches the store.
func (f *FaultyStore) BeforeCreateOnce(fn func(path string)) {
	f.set(func() { f.beforeCreate = fn })
}

// Calls returns the number of store operations attempted.
func (f *FaultyStore) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Commits returns every batch passed to Commit.
func (f *FaultyStore) Commits() [][]types.Write {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]types.Write(nil), f.commits...)
}

func (f *FaultyStore) set(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *FaultyStore) enter(fail func() bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if fail() {
		return ErrInjected
	}
	return nil
}

func (f *FaultyStore) Get(ctx context.Context, path string) (*types.Document, error) {
	if err := f.enter(func() bool { return f.shouldFailGet }); err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, path)
}

func (f *FaultyStore) Create(ctx context.Context, path string, fields types.Fields) error {
	if err := f.enter(func() bool { return f.shouldFailWrite }); err != nil {
		return err
	}
	f.mu.Lock()
	hook := f.beforeCreate
	f.beforeCreate = nil
	f.mu.Unlock()
	if hook != nil {
		hook(path)
	}
	return f.Store.Create(ctx, path, fields)
}

func (f *FaultyStore) Set(ctx context.Context, path string, fields types.Fields) error {
	if err := f.enter(func() bool { return f.shouldFailWrite }); err != nil {
		return err
	}
	return f.Store.Set(ctx, path, fields)
}

func (f *FaultyStore) Update(ctx context.Context, path string, fields types.Fields) error {
	if err := f.enter(func() bool { return f.shouldFailWrite }); err != nil {
		return err
	}
	return f.Store.Update(ctx, path, fields)
}

func (f *FaultyStore) Delete(ctx context.Context, path string) error {
	if err := f.enter(func() bool { return f.shouldFailWrite }); err != nil {
		return err
	}
	return f.Store.Delete(ctx, path)
}

func (f *FaultyStore) Add(ctx context.Context, collection string, fields types.Fields) (string, error) {
	if err := f.enter(func() bool { return f.shouldFailWrite }); err != nil {
		return "", err
	}
	return f.Store.Add(ctx, collection, fields)
}

func (f *FaultyStore) Commit(ctx context.Context, writes []types.Write) error {
	if err := f.enter(func() bool { return f.shouldFailCommit }); err != nil {
		return err
	}
	f.mu.Lock()
	f.commits = append(f.commits, writes)
	f.mu.Unlock()
	return f.Store.Commit(ctx, writes)
}

func (f *FaultyStore) List(ctx context.Context, query types.Query) ([]*types.Document, error) {
	if err := f.enter(func() bool { return f.listFails(query.Collection) }); err != nil {
		return nil, err
	}
	docs, err := f.Store.List(ctx, query)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	hook := f.afterList
	f.afterList = nil
	f.mu.Unlock()
	if hook != nil {
		hook(query.Collection)
	}
	return docs, nil
}

func (f *FaultyStore) Subscribe(ctx context.Context, query types.Query) (interfaces.Subscription, error) {
	if err := f.enter(func() bool { return f.listFails(query.Collection) }); err != nil {
		return nil, err
	}
	return f.Store.Subscribe(ctx, query)
}

func (f *FaultyStore) listFails(collection string) bool {
	if !f.shouldFailList {
		return false
	}
	return f.failListPrefix == "" || strings.HasPrefix(collection, f.failListPrefix)
}

// IsInjected reports whether err came from a FaultyStore switch.
func IsInjected(err error) bool {
	return errors.Is(err, ErrInjected)
}
