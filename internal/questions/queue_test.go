package questions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"handraise/internal/testutil"
	"handraise/pkg/types"
)

const testClass = "ABC123"

func newTestQueue(t *testing.T) (*Queue, *testutil.FaultyStore) {
	t.Helper()
	store := testutil.NewFaultyStore()
	t.Cleanup(func() { _ = store.Close() })

	current := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		current = current.Add(time.Second)
		return current
	}
	n := 0
	ids := func() string {
		n++
		return fmt.Sprintf("q%03d", n)
	}
	return NewQueue(store, WithClock(clock), WithIDGenerator(ids)), store
}

func mustSubmit(t *testing.T, q *Queue, text string) string {
	t.Helper()
	id, err := q.Submit(context.Background(), testClass, "s1", text)
	if err != nil {
		t.Fatalf("Submit(%q) error = %v", text, err)
	}
	return id
}

func questionIDs(questions []*types.Question) string {
	ids := make([]string, 0, len(questions))
	for _, question := range questions {
		ids = append(ids, question.ID)
	}
	return strings.Join(ids, ",")
}

func TestQueue_Submit(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()

	id := mustSubmit(t, queue, "What is a monad?")
	question, err := queue.Get(ctx, testClass, id)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if question.Status != types.QuestionPending || question.IsDeleted {
		t.Errorf("unexpected new question %+v", question)
	}
	if question.CreatedAt == nil || question.StudentID != "s1" || question.Text != "What is a monad?" {
		t.Errorf("unexpected stored fields %+v", question)
	}
	if question.Answer != nil || question.AnsweredAt != nil {
		t.Error("new question must not carry an answer")
	}
}

func TestQueue_SubmitValidation(t *testing.T) {
	tests := []struct {
		name    string
		student string
		text    string
		wantErr error
	}{
		{"empty text", "s1", "", types.ErrEmptyQuestion},
		{"whitespace text", "s1", " \t\n", types.ErrEmptyQuestion},
		{"oversized text", "s1", strings.Repeat("?", 501), types.ErrQuestionTooLong},
		{"missing student", "", "Why?", types.ErrInvalidStudentID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue, store := newTestQueue(t)
			_, err := queue.Submit(context.Background(), testClass, tt.student, tt.text)
			if !errors.Is(err, tt.wantErr) || !errors.Is(err, types.ErrValidationFailed) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
			if store.Calls() != 0 {
				t.Errorf("expected no store calls, got %d", store.Calls())
			}
		})
	}

	queue, _ := newTestQueue(t)
	if _, err := queue.Submit(context.Background(), testClass, "s1", strings.Repeat("é", 500)); err != nil {
		t.Errorf("500 characters must be accepted, got %v", err)
	}
}

func TestQueue_SetStatus(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx := context.Background()
	id := mustSubmit(t, queue, "Why?")

	if err := queue.Answer(ctx, testClass, id, "Because.", "Teacher"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if err := queue.SetStatus(ctx, testClass, id, types.QuestionPending); err != nil {
		t.Fatalf("SetStatus(pending) error = %v", err)
	}

	question, err := queue.Get(ctx, testClass, id)
	if err != nil {
		t.Fatal(err)
	}
	if question.Status != types.QuestionPending || question.AnsweredAt != nil {
		t.Errorf("expected pending without answeredAt, got %+v", question)
	}
	if question.Answer == nil || *question.Answer != "Because." || question.AnsweredBy == nil {
		t.Error("un-resolving must keep the recorded answer")
	}

	if err := queue.SetStatus(ctx, testClass, id, types.QuestionAnswered); err != nil {
		t.Fatal(err)
	}
	question, err = queue.Get(ctx, testClass, id)
	if err != nil {
		t.Fatal(err)
	}
	if question.Status != types.QuestionAnswered || question.AnsweredAt == nil {
		t.Errorf("expected answered with answeredAt, got %+v", question)
	}

	if err := queue.SetStatus(ctx, testClass, id, "closed"); !errors.Is(err, types.ErrInvalidStatus) {
		t.Errorf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestQueue_Answer(t *testing.T) {
	queue, store := newTestQueue(t)
	ctx := context.Background()
	id := mustSubmit(t, queue, "Why?")

	tests := []struct {
		name       string
		answer     string
		answeredBy string
		wantErr    error
	}{
		{"blank answer", "  ", "Teacher", types.ErrEmptyAnswer},
		{"long answer", strings.Repeat("a", 1001), "Teacher", types.ErrAnswerTooLong},
		{"missing author", "Because.", "", types.ErrInvalidAnsweredBy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := store.Calls()
			err := queue.Answer(ctx, testClass, id, tt.answer, tt.answeredBy)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Answer() error = %v, want %v", err, tt.wantErr)
			}
			if store.Calls() != before {
				t.Error("validation must fail before store access")
			}
		})
	}

	if err := queue.Answer(ctx, testClass, id, "Because.", "Ms. Smith"); err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	question, err := queue.Get(ctx, testClass, id)
	if err != nil {
		t.Fatal(err)
	}
	if question.Status != types.QuestionAnswered || question.AnsweredAt == nil ||
		*question.Answer != "Because." || *question.AnsweredBy != "Ms. Smith" {
		t.Errorf("unexpected answered question %+v", question)
	}

	if err := queue.Answer(ctx, testClass, "missing", "x", "y"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestQueue_SoftDeleteHidesQuestion(t *testing.T) {
	queue, _ := newTestQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	keep := mustSubmit(t, queue, "Keep me")
	drop := mustSubmit(t, queue, "Drop me")

	f, err := queue.Subscribe(ctx, testClass)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer f.Close()
	if initial := <-f.Updates(); len(initial) != 2 {
		t.Fatalf("expected 2 questions initially, got %d", len(initial))
	}

	if err := queue.SoftDelete(ctx, testClass, drop); err != nil {
		t.Fatalf("SoftDelete() error = %v", err)
	}

	visible, err := queue.List(ctx, testClass)
	if err != nil {
		t.Fatal(err)
	}
	if questionIDs(visible) != keep {
		t.Errorf("List() = %s, want only %s", questionIDs(visible), keep)
	}

	all, err := queue.ListAll(ctx, testClass, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 {
		t.Errorf("ListAll(includeDeleted) returned %d questions, want 2", len(all))
	}

	for {
		select {
		case questions, ok := <-f.Updates():
			if !ok {
				t.Fatalf("feed ended: %v", f.Err())
			}
			if questionIDs(questions) == keep {
				return
			}
			for _, question := range questions {
				if question.IsDeleted {
					t.Fatal("deleted question delivered to subscriber")
				}
			}
		case <-ctx.Done():
			t.Fatal("timed out waiting for soft delete to reach subscriber")
		}
	}
}

func TestQueue_ListNewestFirstLegacyLast(t *testing.T) {
	queue, store := newTestQueue(t)
	ctx := context.Background()

	err := store.Set(ctx, types.QuestionPath(testClass, "legacy"), types.Fields{
		types.FieldText:      "from an old client",
		types.FieldStudentID: "s9",
	})
	if err != nil {
		t.Fatal(err)
	}
	first := mustSubmit(t, queue, "first")
	second := mustSubmit(t, queue, "second")

	questions, err := queue.List(ctx, testClass)
	if err != nil {
		t.Fatal(err)
	}
	want := strings.Join([]string{second, first, "legacy"}, ",")
	if got := questionIDs(questions); got != want {
		t.Errorf("List() order = %s, want %s", got, want)
	}

	legacy := questions[2]
	if legacy.Status != types.QuestionPending || legacy.IsDeleted || legacy.CreatedAt != nil {
		t.Errorf("legacy question defaults wrong: %+v", legacy)
	}
}

func TestForStudent(t *testing.T) {
	questions := []*types.Question{
		{ID: "1", StudentID: "a"},
		{ID: "2", StudentID: "b"},
		{ID: "3", StudentID: "a"},
	}
	if got := questionIDs(ForStudent(questions, "a")); got != "1,3" {
		t.Errorf("ForStudent() = %s, want 1,3", got)
	}
}

func TestQueue_StoreFailures(t *testing.T) {
	queue, store := newTestQueue(t)
	ctx := context.Background()
	id := mustSubmit(t, queue, "Why?")

	store.FailWrite(true)
	if err := queue.SoftDelete(ctx, testClass, id); !errors.Is(err, types.ErrStoreUnavailable) {
		t.Errorf("expected store failure, got %v", err)
	}
	store.FailWrite(false)

	store.FailList(true, types.QuestionsPath(testClass))
	if _, err := queue.List(ctx, testClass); !testutil.IsInjected(err) {
		t.Errorf("expected injected list failure, got %v", err)
	}
}
