// Package notifier decides when a roster or question change is worth a
// notification and delivers the resulting intents.
package notifier

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"
	"unicode/utf8"

	"handraise/internal/feed"
	"handraise/internal/metrics"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// Intent presentation.
const (
	HandRaisedTitle  = "✋ Hand Raised!"
	NewQuestionTitle = "❓ New Question!"

	HandRaisedDismissAfter  = 10 * time.Second
	NewQuestionDismissAfter = 15 * time.Second

	// UnknownStudentName is used when a question's author is not in the
	// latest roster snapshot.
	UnknownStudentName = "Unknown Student"

	maxQuestionPreview = 100
)

// ChangeNotifier diffs successive roster and question snapshots of one class
// for one observer and emits an intent per salient transition.
// ARCHITECTURAL DISCOVERY: Baselines are replaced on every snapshot, even
// while notifications are disabled, so re-enabling never replays a backlog.
type ChangeNotifier struct {
	classCode string
	sink      interfaces.Notifier
	policy    *Policy
	now       func() time.Time

	mu                sync.Mutex
	enabled           bool
	rosterPrimed      bool
	questionsPrimed   bool
	previousRoster    map[string]*types.Student
	previousQuestions map[string]struct{}

	closed bool
	feeds  []interface{ Close() error }
}

// Option configures a ChangeNotifier.
type Option func(*ChangeNotifier)

// WithPolicy installs a suppression rule evaluated before each delivery.
func WithPolicy(policy *Policy) Option {
	return func(n *ChangeNotifier) { n.policy = policy }
}

// WithClock replaces time.Now for intent timestamps.
func WithClock(now func() time.Time) Option {
	return func(n *ChangeNotifier) { n.now = now }
}

// WithEnabled sets the initial enabled state. Notifiers start enabled.
func WithEnabled(enabled bool) Option {
	return func(n *ChangeNotifier) { n.enabled = enabled }
}

// NewChangeNotifier creates the diff state for one observer of classCode.
// sink may be nil, in which case intents are only returned.
func NewChangeNotifier(classCode string, sink interfaces.Notifier, opts ...Option) *ChangeNotifier {
	n := &ChangeNotifier{
		classCode:         classCode,
		sink:              sink,
		now:               time.Now,
		enabled:           true,
		previousRoster:    make(map[string]*types.Student),
		previousQuestions: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// ClassCode returns the observed class.
func (n *ChangeNotifier) ClassCode() string {
	return n.classCode
}

// SetEnabled turns delivery on or off. Diffing continues either way.
func (n *ChangeNotifier) SetEnabled(enabled bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.enabled = enabled
}

// Enabled reports whether intents are delivered to the sink.
func (n *ChangeNotifier) Enabled() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.enabled
}

// ObserveRoster diffs students against the previous roster snapshot and
// returns a HandRaised intent for every hand that went up. The first
// snapshot only sets the baseline.
func (n *ChangeNotifier) ObserveRoster(students []*types.Student) []types.Intent {
	n.mu.Lock()
	var intents []types.Intent
	if n.rosterPrimed {
		for _, s := range students {
			if !s.HandRaised {
				continue
			}
			if prev, ok := n.previousRoster[s.ID]; ok && prev.HandRaised {
				continue
			}
			intents = append(intents, n.handRaisedIntent(s))
		}
	}

	next := make(map[string]*types.Student, len(students))
	for _, s := range students {
		next[s.ID] = s
	}
	n.previousRoster = next
	n.rosterPrimed = true
	enabled := n.enabled
	n.mu.Unlock()

	n.deliver(intents, enabled)
	return intents
}

// ObserveQuestions returns a NewQuestion intent for every question id not
// present in the previous snapshot. The first snapshot only sets the
// baseline.
func (n *ChangeNotifier) ObserveQuestions(questions []*types.Question) []types.Intent {
	n.mu.Lock()
	var intents []types.Intent
	if n.questionsPrimed {
		for _, q := range questions {
			if _, seen := n.previousQuestions[q.ID]; seen {
				continue
			}
			intents = append(intents, n.newQuestionIntent(q))
		}
	}

	next := make(map[string]struct{}, len(questions))
	for _, q := range questions {
		next[q.ID] = struct{}{}
	}
	n.previousQuestions = next
	n.questionsPrimed = true
	enabled := n.enabled
	n.mu.Unlock()

	n.deliver(intents, enabled)
	return intents
}

func (n *ChangeNotifier) deliver(intents []types.Intent, enabled bool) {
	for _, intent := range intents {
		kind := string(intent.Kind)
		metrics.NotificationsTotal.WithLabelValues(kind, metrics.OutcomeEmitted).Inc()
		if n.sink == nil {
			continue
		}
		if !enabled || n.policy.Suppresses(intent) {
			metrics.NotificationsTotal.WithLabelValues(kind, metrics.OutcomeSuppressed).Inc()
			continue
		}
		n.sink.Notify(intent)
	}
}

func (n *ChangeNotifier) handRaisedIntent(s *types.Student) types.Intent {
	return types.Intent{
		Kind:         types.IntentHandRaised,
		ClassCode:    n.classCode,
		StudentID:    s.ID,
		StudentName:  s.Name,
		Title:        HandRaisedTitle,
		Body:         fmt.Sprintf("%s has raised their hand in class %s", s.Name, n.classCode),
		Tag:          fmt.Sprintf("hand-raised-%s-%s", n.classCode, s.ID),
		DismissAfter: HandRaisedDismissAfter,
		CreatedAt:    n.now().UTC(),
	}
}

// newQuestionIntent must be called with n.mu held.
func (n *ChangeNotifier) newQuestionIntent(q *types.Question) types.Intent {
	name := UnknownStudentName
	if s, ok := n.previousRoster[q.StudentID]; ok {
		name = s.Name
	}
	return types.Intent{
		Kind:         types.IntentNewQuestion,
		ClassCode:    n.classCode,
		StudentID:    q.StudentID,
		StudentName:  name,
		QuestionID:   q.ID,
		Text:         q.Text,
		Title:        NewQuestionTitle,
		Body:         fmt.Sprintf("%s asked: %q in class %s", name, Preview(q.Text), n.classCode),
		Tag:          fmt.Sprintf("question-%s-%s", n.classCode, q.ID),
		DismissAfter: NewQuestionDismissAfter,
		CreatedAt:    n.now().UTC(),
	}
}

// Preview shortens question text longer than 100 characters to 97
// characters followed by "...".
func Preview(text string) string {
	if utf8.RuneCountInString(text) <= maxQuestionPreview {
		return text
	}
	runes := []rune(text)
	return string(runes[:maxQuestionPreview-3]) + "..."
}

// Watch feeds both streams into the notifier until ctx ends or both feeds
// close. Roster and question snapshots are handled on this goroutine only.
// The notifier takes ownership of the feeds; Close disposes them.
func (n *ChangeNotifier) Watch(ctx context.Context, roster *feed.Feed[*types.Student], questions *feed.Feed[*types.Question]) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		_ = roster.Close()
		_ = questions.Close()
		return nil
	}
	n.feeds = append(n.feeds, roster, questions)
	n.mu.Unlock()

	rosterUpdates := roster.Updates()
	questionUpdates := questions.Updates()
	for rosterUpdates != nil || questionUpdates != nil {
		select {
		case <-ctx.Done():
			return nil
		case students, ok := <-rosterUpdates:
			if !ok {
				if err := roster.Err(); err != nil {
					return fmt.Errorf("roster feed of %s ended: %w", n.classCode, err)
				}
				rosterUpdates = nil
				continue
			}
			n.ObserveRoster(students)
		case qs, ok := <-questionUpdates:
			if !ok {
				if err := questions.Err(); err != nil {
					return fmt.Errorf("question feed of %s ended: %w", n.classCode, err)
				}
				questionUpdates = nil
				continue
			}
			n.ObserveQuestions(qs)
		}
	}
	return nil
}

// Close releases the feeds handed to Watch. It is safe to call more than once.
func (n *ChangeNotifier) Close() error {
	n.mu.Lock()
	feeds := n.feeds
	n.feeds = nil
	n.closed = true
	n.mu.Unlock()

	for _, f := range feeds {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close feed for class %s: %v", n.classCode, err)
		}
	}
	return nil
}
