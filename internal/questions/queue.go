// Package questions implements the moderated question queue of a class.
package questions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"handraise/internal/feed"
	"handraise/pkg/interfaces"
	"handraise/pkg/types"
)

// Queue submits, answers and soft-deletes questions.
type Queue struct {
	store interfaces.DocumentStore
	now   func() time.Time
	newID func() string
}

// Option configures a Queue.
type Option func(*Queue)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithIDGenerator replaces the uuid generator for question ids.
func WithIDGenerator(fn func() string) Option {
	return func(q *Queue) { q.newID = fn }
}

// NewQueue creates a question queue over store.
func NewQueue(store interfaces.DocumentStore, opts ...Option) *Queue {
	q := &Queue{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit adds a pending question and returns its id.
func (q *Queue) Submit(ctx context.Context, code, studentID, text string) (string, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return "", err
	}
	if err := types.ValidateStudentID(studentID); err != nil {
		return "", err
	}
	if err := types.ValidateQuestionText(text); err != nil {
		return "", err
	}

	id := q.newID()
	err := q.store.Create(ctx, types.QuestionPath(code, id), types.Fields{
		types.FieldText:      text,
		types.FieldStudentID: studentID,
		types.FieldCreatedAt: q.now().UTC(),
		types.FieldStatus:    string(types.QuestionPending),
		types.FieldIsDeleted: false,
	})
	if err != nil {
		return "", fmt.Errorf("failed to submit question: %w", err)
	}

	log.Printf("Question submitted: class=%s question=%s student=%s", code, id, studentID)
	return id, nil
}

// SetStatus toggles a question between pending and answered.
// FUNCTIONAL DISCOVERY: Going back to pending clears answeredAt only; a
// recorded answer and its author survive an un-resolve.
func (q *Queue) SetStatus(ctx context.Context, code, questionID string, status types.QuestionStatus) error {
	if err := validateIDs(code, questionID); err != nil {
		return err
	}
	if !types.IsValidQuestionStatus(status) {
		return fmt.Errorf("question status %q: %w", status, types.ErrInvalidStatus)
	}

	fields := types.Fields{types.FieldStatus: string(status)}
	if status == types.QuestionAnswered {
		fields[types.FieldAnsweredAt] = q.now().UTC()
	} else {
		fields[types.FieldAnsweredAt] = nil
	}
	return q.update(ctx, code, questionID, fields, "status "+string(status))
}

// Answer records the answer and marks the question answered in one update.
func (q *Queue) Answer(ctx context.Context, code, questionID, text, answeredBy string) error {
	if err := validateIDs(code, questionID); err != nil {
		return err
	}
	if err := types.ValidateAnswer(text, answeredBy); err != nil {
		return err
	}

	return q.update(ctx, code, questionID, types.Fields{
		types.FieldAnswer:     text,
		types.FieldAnsweredBy: answeredBy,
		types.FieldStatus:     string(types.QuestionAnswered),
		types.FieldAnsweredAt: q.now().UTC(),
	}, "answered")
}

// SoftDelete hides the question from List and Subscribe for good.
func (q *Queue) SoftDelete(ctx context.Context, code, questionID string) error {
	if err := validateIDs(code, questionID); err != nil {
		return err
	}
	return q.update(ctx, code, questionID, types.Fields{types.FieldIsDeleted: true}, "deleted")
}

func (q *Queue) update(ctx context.Context, code, questionID string, fields types.Fields, what string) error {
	err := q.store.Update(ctx, types.QuestionPath(code, questionID), fields)
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("question %s in class %s: %w", questionID, code, types.ErrNotFound)
		}
		return fmt.Errorf("failed to update question %s: %w", questionID, err)
	}
	log.Printf("Question %s: class=%s question=%s", what, code, questionID)
	return nil
}

// Get returns one question, deleted or not.
func (q *Queue) Get(ctx context.Context, code, questionID string) (*types.Question, error) {
	if err := validateIDs(code, questionID); err != nil {
		return nil, err
	}
	doc, err := q.store.Get(ctx, types.QuestionPath(code, questionID))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("question %s in class %s: %w", questionID, code, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get question %s: %w", questionID, err)
	}
	return types.QuestionFromDocument(code, doc)
}

// List returns the visible questions, newest first.
func (q *Queue) List(ctx context.Context, code string) ([]*types.Question, error) {
	return q.ListAll(ctx, code, false)
}

// ListAll is List with the option to include soft-deleted questions.
func (q *Queue) ListAll(ctx context.Context, code string, includeDeleted bool) ([]*types.Question, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return nil, err
	}
	docs, err := q.store.List(ctx, queueQuery(code))
	if err != nil {
		return nil, fmt.Errorf("failed to list questions of %s: %w", code, err)
	}
	if includeDeleted {
		return decodeAll(code, docs)
	}
	return DecodeVisible(code)(docs)
}

// Subscribe opens a live feed of visible questions ordered like List. The
// caller must Close the feed.
func (q *Queue) Subscribe(ctx context.Context, code string) (*feed.Feed[*types.Question], error) {
	if err := types.ValidateClassCode(code); err != nil {
		return nil, err
	}
	sub, err := q.store.Subscribe(ctx, queueQuery(code))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to questions of %s: %w", code, err)
	}
	return feed.New(sub, DecodeVisible(code)), nil
}

// DecodeVisible maps question documents of class code, dropping deleted ones.
func DecodeVisible(code string) feed.Decoder[*types.Question] {
	return func(docs []*types.Document) ([]*types.Question, error) {
		all, err := decodeAll(code, docs)
		if err != nil {
			return nil, err
		}
		visible := all[:0]
		for _, question := range all {
			if !question.IsDeleted {
				visible = append(visible, question)
			}
		}
		return visible, nil
	}
}

// ForStudent keeps the questions submitted by studentID, in order.
func ForStudent(questions []*types.Question, studentID string) []*types.Question {
	own := make([]*types.Question, 0, len(questions))
	for _, question := range questions {
		if question.StudentID == studentID {
			own = append(own, question)
		}
	}
	return own
}

func decodeAll(code string, docs []*types.Document) ([]*types.Question, error) {
	questions := make([]*types.Question, 0, len(docs))
	for _, doc := range docs {
		question, err := types.QuestionFromDocument(code, doc)
		if err != nil {
			return nil, err
		}
		questions = append(questions, question)
	}
	return questions, nil
}

// Missing createdAt sorts last in either direction.
func queueQuery(code string) types.Query {
	return types.Query{
		Collection: types.QuestionsPath(code),
		OrderBy:    types.FieldCreatedAt,
		Descending: true,
	}
}

func validateIDs(code, questionID string) error {
	if err := types.ValidateClassCode(code); err != nil {
		return err
	}
	return types.ValidateQuestionID(questionID)
}
