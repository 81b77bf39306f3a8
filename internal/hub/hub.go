package hub

import (
	"context"
	"log"
	"sync"

	"handraise/internal/metrics"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// defaultQueueSize bounds intents waiting for delivery across all observers.
const defaultQueueSize = 1000

// Hub delivers notification intents to their target notifiers
// ARCHITECTURAL DISCOVERY: Change detection runs on the feed goroutines and
// must never wait on a slow socket or on redis, so every intent goes through
// one buffered queue drained by a single hub goroutine
type Hub struct {
	// FUNCTIONAL DISCOVERY: Buffered channel absorbs bursts such as many hands
	// raised after one prompt
	intentChannel   chan *dispatch
	shutdownChannel chan struct{}
	done            chan struct{}

	// TECHNICAL DISCOVERY: RWMutex allows concurrent reads of running state
	running bool
	mu      sync.RWMutex
}

// dispatch pairs an intent with the notifier that should show it
type dispatch struct {
	intent types.Intent
	target interfaces.Notifier
}

// NewHub creates a new hub with room for queueSize pending intents.
// A non-positive size selects the default.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Hub{
		intentChannel: make(chan *dispatch, queueSize),
	}
}

// Start begins hub processing
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	h.done = make(chan struct{})
	shutdown, done := h.shutdownChannel, h.done
	h.mu.Unlock()

	log.Println("Starting notification hub...")

	go h.run(ctx, shutdown, done)
	return nil
}

// Stop shuts the hub down and waits for the delivery loop to exit. Intents
// still queued are kept and delivered after the next Start.
func (h *Hub) Stop() error {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return ErrHubNotRunning
	}
	h.running = false
	close(h.shutdownChannel)
	done := h.done
	h.mu.Unlock()

	log.Println("Stopping notification hub...")
	<-done
	return nil
}

// IsRunning reports whether the delivery loop is active.
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Enqueue queues intent for target without blocking.
func (h *Hub) Enqueue(intent types.Intent, target interfaces.Notifier) error {
	if target == nil {
		return ErrNilTarget
	}
	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	h.mu.RUnlock()

	// TECHNICAL DISCOVERY: Non-blocking send keeps producers independent of
	// delivery speed
	select {
	case h.intentChannel <- &dispatch{intent: intent, target: target}:
		metrics.HubQueueDepth.Set(float64(len(h.intentChannel)))
		return nil
	default:
		return ErrIntentChannelFull
	}
}

// Sink returns a Notifier that enqueues into the hub on behalf of target.
// Intents that cannot be queued are counted and dropped, as the Notifier
// contract is fire-and-forget.
func (h *Hub) Sink(target interfaces.Notifier) interfaces.Notifier {
	return interfaces.NotifierFunc(func(intent types.Intent) {
		if err := h.Enqueue(intent, target); err != nil {
			metrics.NotificationsTotal.WithLabelValues(string(intent.Kind), metrics.OutcomeDropped).Inc()
			log.Printf("Dropped notification: kind=%s class=%s tag=%s: %v",
				intent.Kind, intent.ClassCode, intent.Tag, err)
		}
	})
}

func (h *Hub) run(ctx context.Context, shutdown <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	defer log.Println("Hub processing stopped")

	for {
		select {
		case d := <-h.intentChannel:
			metrics.HubQueueDepth.Set(float64(len(h.intentChannel)))
			h.deliver(d)

		case <-shutdown:
			log.Println("Hub shutdown requested")
			return

		case <-ctx.Done():
			log.Println("Hub context cancelled")
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
			return
		}
	}
}

// deliver hands one intent to its target
// FUNCTIONAL DISCOVERY: A panicking notifier must not take the hub down with it
func (h *Hub) deliver(d *dispatch) {
	defer func() {
		if r := recover(); r != nil {
			metrics.NotificationsTotal.WithLabelValues(string(d.intent.Kind), metrics.OutcomeFailed).Inc()
			log.Printf("Notifier panicked: kind=%s tag=%s: %v", d.intent.Kind, d.intent.Tag, r)
		}
	}()
	d.target.Notify(d.intent)
}
