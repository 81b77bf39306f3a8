package notifier

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"handraise/pkg/types"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestDedupNotifier_SuppressesSameTagWithinWindow(t *testing.T) {
	mr, client := newTestRedis(t)
	sink := &collector{}
	dedup := NewDedupNotifier(client, ObserverScope("ABC123", "t1"), sink)

	intent := types.Intent{
		Kind:         types.IntentHandRaised,
		ClassCode:    "ABC123",
		Tag:          "hand-raised-ABC123-s1",
		DismissAfter: 10 * time.Second,
	}

	dedup.Notify(intent)
	dedup.Notify(intent)
	if got := len(sink.all()); got != 1 {
		t.Fatalf("expected 1 delivery within window, got %d", got)
	}

	if ttl := mr.TTL(dedup.key(intent.Tag)); ttl != 10*time.Second {
		t.Errorf("expected tag TTL of 10s, got %v", ttl)
	}

	mr.FastForward(11 * time.Second)
	dedup.Notify(intent)
	if got := len(sink.all()); got != 2 {
		t.Errorf("expected delivery after window expired, got %d", got)
	}
}

func TestDedupNotifier_DistinctTags(t *testing.T) {
	_, client := newTestRedis(t)
	sink := &collector{}
	dedup := NewDedupNotifier(client, ObserverScope("ABC123", "t1"), sink)

	dedup.Notify(types.Intent{Tag: "question-ABC123-q1", DismissAfter: 15 * time.Second})
	dedup.Notify(types.Intent{Tag: "question-ABC123-q2", DismissAfter: 15 * time.Second})
	if got := len(sink.all()); got != 2 {
		t.Errorf("expected both tags delivered, got %d", got)
	}
}

// Two teachers watching one class through the same redis each get their own
// notification for the same transition.
func TestDedupNotifier_ObserversAreIndependent(t *testing.T) {
	_, client := newTestRedis(t)
	sinkA, sinkB := &collector{}, &collector{}
	teacherA := NewChangeNotifier("ABC123", NewDedupNotifier(client, ObserverScope("ABC123", "t1"), sinkA))
	teacherB := NewChangeNotifier("ABC123", NewDedupNotifier(client, ObserverScope("ABC123", "t2"), sinkB))

	before := []*types.Student{student("s1", "Ada", false)}
	after := []*types.Student{student("s1", "Ada", true)}
	for _, n := range []*ChangeNotifier{teacherA, teacherB} {
		n.ObserveRoster(before)
		if got := len(n.ObserveRoster(after)); got != 1 {
			t.Fatalf("expected 1 intent detected, got %d", got)
		}
	}

	if len(sinkA.all()) != 1 || len(sinkB.all()) != 1 {
		t.Errorf("expected one delivery per observer, got a=%d b=%d", len(sinkA.all()), len(sinkB.all()))
	}

	// Same observer, same tag: still deduplicated
	teacherA.ObserveRoster(before)
	teacherA.ObserveRoster(after)
	if got := len(sinkA.all()); got != 1 {
		t.Errorf("expected repeat within window to be suppressed, got %d", got)
	}
}

func TestDedupNotifier_RedisDownDelivers(t *testing.T) {
	mr, client := newTestRedis(t)
	sink := &collector{}
	dedup := NewDedupNotifier(client, ObserverScope("ABC123", "t1"), sink)
	mr.Close()

	dedup.Notify(types.Intent{Tag: "hand-raised-ABC123-s1"})
	if got := len(sink.all()); got != 1 {
		t.Errorf("expected fail-open delivery, got %d", got)
	}
}

func TestFanout(t *testing.T) {
	a, b := &collector{}, &collector{}
	Fanout{a, LogNotifier{}, b}.Notify(types.Intent{Tag: "x"})
	if len(a.all()) != 1 || len(b.all()) != 1 {
		t.Error("expected every notifier to receive the intent")
	}
}

func TestNewPolicy(t *testing.T) {
	tests := []struct {
		name     string
		rule     string
		intent   types.Intent
		wantErr  bool
		suppress bool
	}{
		{name: "empty rule", rule: "", suppress: false},
		{name: "syntax error", rule: "kind ==", wantErr: true},
		{
			name:     "matches kind",
			rule:     `kind == "hand_raised"`,
			intent:   types.Intent{Kind: types.IntentHandRaised},
			suppress: true,
		},
		{
			name:     "student filter",
			rule:     `student_name in ["Ada", "Bob"]`,
			intent:   types.Intent{StudentName: "Carol"},
			suppress: false,
		},
		{
			name:     "quiet hours",
			rule:     `hour >= 22 || hour < 6`,
			intent:   types.Intent{CreatedAt: time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)},
			suppress: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := NewPolicy(tt.rule)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewPolicy() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got := policy.Suppresses(tt.intent); got != tt.suppress {
				t.Errorf("Suppresses() = %v, want %v", got, tt.suppress)
			}
		})
	}
}
