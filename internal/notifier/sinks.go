package notifier

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"handraise/internal/metrics"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

const (
	defaultDedupPrefix  = "handraise:notified:"
	defaultRedisTimeout = 2 * time.Second
)

// DedupNotifier forwards an intent only if the same observer has not been
// sent an intent with the same tag within the intent's dismiss window, so a
// hand flapping up and down shows one notification like a replaced browser
// tag. Keys are scoped to one observer; other observers of the class are
// never affected.
type DedupNotifier struct {
	client  *redis.Client
	next    interfaces.Notifier
	scope   string
	prefix  string
	timeout time.Duration
}

// NewDedupNotifier wraps next with redis backed tag deduplication for the
// observer identified by scope (see ObserverScope).
func NewDedupNotifier(client *redis.Client, scope string, next interfaces.Notifier) *DedupNotifier {
	return &DedupNotifier{
		client:  client,
		next:    next,
		scope:   scope,
		prefix:  defaultDedupPrefix,
		timeout: defaultRedisTimeout,
	}
}

// ObserverScope names one observer of one class.
func ObserverScope(classCode, userID string) string {
	return classCode + "/" + userID
}

func (d *DedupNotifier) key(tag string) string {
	return d.prefix + d.scope + "/" + tag
}

// Notify claims the intent's tag and forwards on success. If redis cannot be
// reached the intent is forwarded anyway.
func (d *DedupNotifier) Notify(intent types.Intent) {
	ttl := intent.DismissAfter
	if ttl <= 0 {
		ttl = HandRaisedDismissAfter
	}

	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	claimed, err := d.client.SetNX(ctx, d.key(intent.Tag), intent.ClassCode, ttl).Result()
	if err != nil {
		log.Printf("Notification dedup unavailable, delivering: tag=%s: %v", intent.Tag, err)
		d.next.Notify(intent)
		return
	}
	if !claimed {
		metrics.NotificationsTotal.WithLabelValues(string(intent.Kind), metrics.OutcomeDeduplicated).Inc()
		return
	}
	d.next.Notify(intent)
}

// LogNotifier writes intents to the process log. It is the sink of last
// resort when no observer transport is attached.
type LogNotifier struct{}

// Notify logs intent.
func (LogNotifier) Notify(intent types.Intent) {
	log.Printf("Notification: kind=%s class=%s tag=%s title=%q body=%q",
		intent.Kind, intent.ClassCode, intent.Tag, intent.Title, intent.Body)
}

// Fanout delivers each intent to every notifier in order.
type Fanout []interfaces.Notifier

// Notify forwards intent to all notifiers.
func (f Fanout) Notify(intent types.Intent) {
	for _, n := range f {
		n.Notify(intent)
	}
}
