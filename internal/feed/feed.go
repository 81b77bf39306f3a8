// Package feed turns a document subscription into a stream of typed slices.
package feed

import (
	"fmt"
	"sync"

	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// Decoder maps one snapshot to typed values.
type Decoder[T any] func(docs []*types.Document) ([]T, error)

// Feed is a typed live view over a store subscription. A decode failure ends
// the feed the same way a store error does.
type Feed[T any] struct {
	sub     interfaces.Subscription
	decode  Decoder[T]
	updates chan []T

	mu  sync.Mutex
	err error
}

// New starts forwarding decoded snapshots from sub.
func New[T any](sub interfaces.Subscription, decode Decoder[T]) *Feed[T] {
	f := &Feed[T]{
		sub:     sub,
		decode:  decode,
		updates: make(chan []T, 1),
	}
	go f.run()
	return f
}

// Updates yields each decoded snapshot. Only the newest undelivered value is
// kept. The channel closes when the feed ends.
func (f *Feed[T]) Updates() <-chan []T {
	return f.updates
}

// Err reports why the feed ended, nil after Close.
func (f *Feed[T]) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

// Close cancels the underlying subscription.
func (f *Feed[T]) Close() error {
	return f.sub.Close()
}

func (f *Feed[T]) run() {
	defer close(f.updates)
	for snap := range f.sub.Snapshots() {
		values, err := f.decode(snap.Documents)
		if err != nil {
			f.setErr(fmt.Errorf("failed to decode snapshot: %w", err))
			_ = f.sub.Close()
			for range f.sub.Snapshots() {
			}
			return
		}
		f.push(values)
	}
	if err := f.sub.Err(); err != nil {
		f.setErr(err)
	}
}

func (f *Feed[T]) push(values []T) {
	select {
	case f.updates <- values:
	default:
		select {
		case <-f.updates:
		default:
		}
		f.updates <- values
	}
}

func (f *Feed[T]) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err == nil {
		f.err = err
	}
}
