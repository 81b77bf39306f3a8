package notifier

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"handraise/internal/questions"
	"handraise/internal/roster"
	"handraise/internal/testutil"
	"handraise/pkg/types"
)

type collector struct {
	mu      sync.Mutex
	intents []types.Intent
}

func (c *collector) Notify(intent types.Intent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.intents = append(c.intents, intent)
}

func (c *collector) all() []types.Intent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Intent(nil), c.intents...)
}

func student(id, name string, raised bool) *types.Student {
	return &types.Student{ID: id, Name: name, HandRaised: raised, Status: types.StudentActive}
}

func question(id, studentID, text string) *types.Question {
	return &types.Question{ID: id, StudentID: studentID, Text: text, Status: types.QuestionPending}
}

func TestObserveRoster_FirstSnapshotIsSilent(t *testing.T) {
	sink := &collector{}
	n := NewChangeNotifier("ABC123", sink)

	intents := n.ObserveRoster([]*types.Student{
		student("1", "Ada", true),
		student("2", "Bob", true),
	})
	if len(intents) != 0 || len(sink.all()) != 0 {
		t.Errorf("expected no intents on first snapshot, got %v", intents)
	}

	intents = n.ObserveQuestions([]*types.Question{question("q1", "1", "Why?")})
	if len(intents) != 0 {
		t.Errorf("expected no intents on first question snapshot, got %v", intents)
	}
}

func TestObserveRoster_Transitions(t *testing.T) {
	tests := []struct {
		name     string
		previous []*types.Student
		current  []*types.Student
		want     []string
	}{
		{
			name:     "lowered to raised",
			previous: []*types.Student{student("1", "Ada", false)},
			current:  []*types.Student{student("1", "Ada", true)},
			want:     []string{"1"},
		},
		{
			name:     "raised stays raised",
			previous: []*types.Student{student("1", "Ada", true)},
			current:  []*types.Student{student("1", "Ada", true)},
		},
		{
			name:     "raised to lowered",
			previous: []*types.Student{student("1", "Ada", true)},
			current:  []*types.Student{student("1", "Ada", false)},
		},
		{
			name:     "new student joins with hand up",
			previous: []*types.Student{student("1", "Ada", false)},
			current:  []*types.Student{student("1", "Ada", false), student("2", "Bob", true)},
			want:     []string{"2"},
		},
		{
			name:     "empty baseline still primes",
			previous: nil,
			current:  []*types.Student{student("1", "Ada", true)},
			want:     []string{"1"},
		},
		{
			name:     "removed student counts too",
			previous: []*types.Student{student("1", "Ada", false)},
			current: []*types.Student{
				{ID: "1", Name: "Ada", HandRaised: true, Status: types.StudentRemoved},
			},
			want: []string{"1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := NewChangeNotifier("ABC123", nil)
			n.ObserveRoster(tt.previous)
			intents := n.ObserveRoster(tt.current)

			var got []string
			for _, intent := range intents {
				got = append(got, intent.StudentID)
			}
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("intents for %v, want %v", got, tt.want)
			}
		})
	}
}

func TestObserveRoster_IntentContent(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	n := NewChangeNotifier("ABC123", nil, WithClock(func() time.Time { return fixed }))
	n.ObserveRoster(nil)

	intents := n.ObserveRoster([]*types.Student{student("s1", "Ada", true)})
	if len(intents) != 1 {
		t.Fatalf("expected one intent, got %d", len(intents))
	}
	got := intents[0]
	want := types.Intent{
		Kind:         types.IntentHandRaised,
		ClassCode:    "ABC123",
		StudentID:    "s1",
		StudentName:  "Ada",
		Title:        "✋ Hand Raised!",
		Body:         "Ada has raised their hand in class ABC123",
		Tag:          "hand-raised-ABC123-s1",
		DismissAfter: 10 * time.Second,
		CreatedAt:    fixed,
	}
	if got != want {
		t.Errorf("intent = %+v\nwant %+v", got, want)
	}
}

func TestObserveQuestions_NewIDs(t *testing.T) {
	n := NewChangeNotifier("ABC123", nil)
	n.ObserveRoster([]*types.Student{student("s1", "Ada", false)})
	n.ObserveQuestions([]*types.Question{question("q1", "s1", "old")})

	intents := n.ObserveQuestions([]*types.Question{
		question("q2", "s1", "new one"),
		question("q1", "s1", "old"),
		question("q3", "ghost", "who am I"),
	})
	if len(intents) != 2 {
		t.Fatalf("expected 2 intents, got %d", len(intents))
	}

	if intents[0].QuestionID != "q2" || intents[0].StudentName != "Ada" {
		t.Errorf("unexpected first intent %+v", intents[0])
	}
	if intents[0].Title != "❓ New Question!" || intents[0].Tag != "question-ABC123-q2" ||
		intents[0].DismissAfter != 15*time.Second {
		t.Errorf("unexpected presentation %+v", intents[0])
	}
	if intents[0].Body != `Ada asked: "new one" in class ABC123` {
		t.Errorf("unexpected body %q", intents[0].Body)
	}
	if intents[1].StudentName != UnknownStudentName {
		t.Errorf("expected fallback name, got %q", intents[1].StudentName)
	}

	// A soft-deleted question disappearing then nothing new: no intents.
	if again := n.ObserveQuestions([]*types.Question{question("q2", "s1", "new one")}); len(again) != 0 {
		t.Errorf("expected no intents when questions only disappear, got %v", again)
	}
}

func TestPreview(t *testing.T) {
	exact := strings.Repeat("a", 100)
	if Preview(exact) != exact {
		t.Error("100 characters must not be truncated")
	}

	long := strings.Repeat("b", 101)
	got := Preview(long)
	if got != strings.Repeat("b", 97)+"..." {
		t.Errorf("Preview() = %q", got)
	}

	multibyte := strings.Repeat("é", 150)
	if n := len([]rune(Preview(multibyte))); n != 100 {
		t.Errorf("expected 100 characters, got %d", n)
	}
}

func TestChangeNotifier_DisabledKeepsBaseline(t *testing.T) {
	sink := &collector{}
	n := NewChangeNotifier("ABC123", sink)
	n.ObserveRoster([]*types.Student{student("1", "Ada", false)})

	n.SetEnabled(false)
	intents := n.ObserveRoster([]*types.Student{student("1", "Ada", true)})
	if len(intents) != 1 {
		t.Fatalf("diff must run while disabled, got %d intents", len(intents))
	}
	if len(sink.all()) != 0 {
		t.Error("disabled notifier must not deliver")
	}

	n.SetEnabled(true)
	if intents := n.ObserveRoster([]*types.Student{student("1", "Ada", true)}); len(intents) != 0 {
		t.Error("re-enabling must not replay transitions seen while disabled")
	}
	if len(sink.all()) != 0 {
		t.Error("no delivery expected after re-enable without a new transition")
	}
}

func TestChangeNotifier_PolicySuppresses(t *testing.T) {
	policy, err := NewPolicy(`kind == "new_question" && len(text) < 3`)
	if err != nil {
		t.Fatalf("NewPolicy() error = %v", err)
	}
	sink := &collector{}
	n := NewChangeNotifier("ABC123", sink, WithPolicy(policy))
	n.ObserveQuestions(nil)

	n.ObserveQuestions([]*types.Question{question("q1", "s1", "?"), question("q2", "s1", "A real question")})
	delivered := sink.all()
	if len(delivered) != 1 || delivered[0].QuestionID != "q2" {
		t.Errorf("expected only q2 delivered, got %+v", delivered)
	}
}

func TestChangeNotifier_Watch(t *testing.T) {
	store := testutil.NewFaultyStore()
	defer store.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ledger := roster.NewLedger(store)
	queue := questions.NewQueue(store)

	ada, err := ledger.AddStudent(ctx, "ABC123", "Ada")
	if err != nil {
		t.Fatal(err)
	}
	// Already raised before the observer connects: must not notify.
	if err := ledger.SetHandRaised(ctx, "ABC123", ada, true); err != nil {
		t.Fatal(err)
	}
	bob, err := ledger.AddStudent(ctx, "ABC123", "Bob")
	if err != nil {
		t.Fatal(err)
	}

	rosterFeed, err := ledger.Subscribe(ctx, "ABC123")
	if err != nil {
		t.Fatal(err)
	}
	questionFeed, err := queue.Subscribe(ctx, "ABC123")
	if err != nil {
		t.Fatal(err)
	}

	sink := make(chan types.Intent, 10)
	n := NewChangeNotifier("ABC123", notifyChan(sink))
	defer n.Close()

	done := make(chan error, 1)
	go func() { done <- n.Watch(ctx, rosterFeed, questionFeed) }()

	// Let both initial snapshots prime the baselines.
	waitPrimed(t, n)

	if err := ledger.SetHandRaised(ctx, "ABC123", bob, true); err != nil {
		t.Fatal(err)
	}
	if _, err := queue.Submit(ctx, "ABC123", bob, "What is entropy?"); err != nil {
		t.Fatal(err)
	}

	seen := map[types.IntentKind]types.Intent{}
	for len(seen) < 2 {
		select {
		case intent := <-sink:
			if _, dup := seen[intent.Kind]; dup {
				t.Fatalf("duplicate %s intent: %+v", intent.Kind, intent)
			}
			seen[intent.Kind] = intent
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", seen)
		}
	}
	if seen[types.IntentHandRaised].StudentID != bob {
		t.Errorf("expected Bob's hand, got %+v", seen[types.IntentHandRaised])
	}
	if seen[types.IntentNewQuestion].StudentName != "Bob" {
		t.Errorf("expected question by Bob, got %+v", seen[types.IntentNewQuestion])
	}

	if err := n.Close(); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Watch() after Close returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return after Close")
	}
}

type notifyChan chan types.Intent

func (c notifyChan) Notify(intent types.Intent) { c <- intent }

func waitPrimed(t *testing.T, n *ChangeNotifier) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n.mu.Lock()
		primed := n.rosterPrimed && n.questionsPrimed
		n.mu.Unlock()
		if primed {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("notifier never received initial snapshots")
}
