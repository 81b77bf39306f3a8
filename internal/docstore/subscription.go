package docstore

import (
	"context"
	"errors"
	"sync"
	"time"

	"handraise/pkg/types"
)

type queryFunc func(ctx context.Context, query types.Query) ([]*types.Document, error)

// subscription is one live query. Writers only flip the wake signal; the
// subscription goroutine re-reads the collection and keeps a single-slot
// mailbox so a slow consumer always sees the newest snapshot.
type subscription struct {
	ctx    context.Context
	cancel context.CancelFunc
	query  types.Query
	read   queryFunc
	now    func() time.Time
	owner  *fanout

	wake chan struct{}
	out  chan types.Snapshot

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
	ended     bool
}

func newSubscription(parent context.Context, query types.Query, read queryFunc, now func() time.Time, owner *fanout) *subscription {
	ctx, cancel := context.WithCancel(parent)
	return &subscription{
		ctx:    ctx,
		cancel: cancel,
		query:  query,
		read:   read,
		now:    now,
		owner:  owner,
		wake:   make(chan struct{}, 1),
		out:    make(chan types.Snapshot, 1),
	}
}

func (s *subscription) Snapshots() <-chan types.Snapshot {
	return s.out
}

func (s *subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops the subscription. It is safe to call more than once.
func (s *subscription) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		s.owner.remove(s.query.Collection, s)
	})
	return nil
}

// signal asks for a re-read; it never blocks the writer.
func (s *subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliver replaces any undelivered snapshot with snap.
func (s *subscription) deliver(snap types.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	select {
	case s.out <- snap:
	default:
		select {
		case <-s.out:
		default:
		}
		s.out <- snap
	}
}

func (s *subscription) run() {
	defer s.finish(nil)
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
			docs, err := s.read(s.ctx, s.query)
			if err != nil {
				if errors.Is(err, context.Canceled) && s.ctx.Err() != nil {
					return
				}
				s.finish(err)
				return
			}
			s.deliver(types.Snapshot{Documents: docs, ReadAt: s.now()})
		}
	}
}

// finish records err, closes the stream and unregisters. Only the first call
// has any effect.
func (s *subscription) finish(err error) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.err = err
	close(s.out)
	s.mu.Unlock()

	s.cancel()
	s.owner.remove(s.query.Collection, s)
}

// fanout indexes live subscriptions by collection.
type fanout struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

func newFanout() *fanout {
	return &fanout{subs: make(map[string]map[*subscription]struct{})}
}

func (f *fanout) add(collection string, sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subs[collection] == nil {
		f.subs[collection] = make(map[*subscription]struct{})
	}
	f.subs[collection][sub] = struct{}{}
}

func (f *fanout) remove(collection string, sub *subscription) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if set, ok := f.subs[collection]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(f.subs, collection)
		}
	}
}

func (f *fanout) publish(collections ...string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, c := range collections {
		for sub := range f.subs[c] {
			sub.signal()
		}
	}
}

func (f *fanout) count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, set := range f.subs {
		n += len(set)
	}
	return n
}

func (f *fanout) closeAll() {
	f.mu.RLock()
	var all []*subscription
	for _, set := range f.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	f.mu.RUnlock()

	for _, sub := range all {
		_ = sub.Close()
	}
}
