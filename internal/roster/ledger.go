// Package roster keeps the student list of a class and the append-only
// hand-raise ledger behind each student's handRaised flag.
package roster

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

// Ledger manages roster documents and their hand history.
// ARCHITECTURAL DISCOVERY: The flag on the student document is a cached view
// of the ledger. Both are written in one Commit, and anything that counts
// raises reads the ledger rather than the flag.
type Ledger struct {
	store interfaces.DocumentStore
	now   func() time.Time
	newID func() string
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithIDGenerator replaces the uuid generator for students and ledger entries.
func WithIDGenerator(fn func() string) Option {
	return func(l *Ledger) { l.newID = fn }
}

// NewLedger creates a roster ledger over store.
func NewLedger(store interfaces.DocumentStore, opts ...Option) *Ledger {
	l := &Ledger{
		store: store,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AddStudent joins a new student to the class and returns its id. Names are
// not unique.
func (l *Ledger) AddStudent(ctx context.Context, code, name string) (string, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return "", err
	}
	if err := types.ValidateStudentName(name); err != nil {
		return "", err
	}

	id := l.newID()
	err := l.store.Create(ctx, types.StudentPath(code, id), types.Fields{
		types.FieldName:       name,
		types.FieldHandRaised: false,
		types.FieldStatus:     string(types.StudentActive),
		types.FieldJoinedAt:   l.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to add student to %s: %w", code, err)
	}

	log.Printf("Student joined: class=%s student=%s", code, id)
	return id, nil
}

// Join adds a student to an open class. It answers ErrNotFound for unknown
// classes and ErrClassClosed for closed ones.
// FUNCTIONAL DISCOVERY: A close can land between the state check and the
// create, after the close sweep has read the roster. The class is read again
// once the student exists, and a late joiner is removed like the sweep would.
func (l *Ledger) Join(ctx context.Context, code, name string) (string, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return "", err
	}
	if err := types.ValidateStudentName(name); err != nil {
		return "", err
	}
	if err := l.requireOpen(ctx, code); err != nil {
		return "", err
	}

	id, err := l.AddStudent(ctx, code, name)
	if err != nil {
		return "", err
	}

	if err := l.requireOpen(ctx, code); err != nil {
		if errors.Is(err, types.ErrClassClosed) {
			if serr := l.SetStatus(ctx, code, id, types.StudentRemoved); serr != nil {
				return "", fmt.Errorf("class %s closed during join, removing %s: %w", code, id, serr)
			}
			log.Printf("Join raced a close: class=%s student=%s removed", code, id)
		}
		return "", err
	}
	return id, nil
}

func (l *Ledger) requireOpen(ctx context.Context, code string) error {
	doc, err := l.store.Get(ctx, types.ClassPath(code))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("class %s: %w", code, types.ErrNotFound)
		}
		return fmt.Errorf("failed to get class %s: %w", code, err)
	}
	class, err := types.ClassFromDocument(doc)
	if err != nil {
		return err
	}
	if !class.IsOpen() {
		return fmt.Errorf("class %s: %w", code, types.ErrClassClosed)
	}
	return nil
}

// SetHandRaised sets the student's flag and records the toggle as the
// student's own action.
func (l *Ledger) SetHandRaised(ctx context.Context, code, studentID string, raised bool) error {
	student, err := l.Get(ctx, code, studentID)
	if err != nil {
		return err
	}
	name := student.Name
	return l.toggle(ctx, code, studentID, raised, types.ActorStudent, &name)
}

// TeacherLowerHand lowers the student's hand on the teacher's behalf. A ledger
// entry is appended even when the hand is already down.
func (l *Ledger) TeacherLowerHand(ctx context.Context, code, studentID string) error {
	if err := validateIDs(code, studentID); err != nil {
		return err
	}
	name := types.TeacherActorName
	return l.toggle(ctx, code, studentID, false, types.ActorTeacher, &name)
}

func (l *Ledger) toggle(ctx context.Context, code, studentID string, raised bool, actor types.Actor, actorName *string) error {
	action := types.HandLowered
	if raised {
		action = types.HandRaised
	}

	var raisedByName any
	if actorName != nil {
		raisedByName = *actorName
	}

	entryPath := types.JoinPath(types.HandHistoryPath(code, studentID), l.newID())
	err := l.store.Commit(ctx, []types.Write{
		{
			Op:     types.WriteUpdate,
			Path:   types.StudentPath(code, studentID),
			Fields: types.Fields{types.FieldHandRaised: raised},
		},
		{
			Op:   types.WriteCreate,
			Path: entryPath,
			Fields: types.Fields{
				types.FieldAction:       string(action),
				types.FieldRaisedBy:     string(actor),
				types.FieldRaisedByName: raisedByName,
				types.FieldTimestamp:    l.now().UTC(),
			},
		},
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("student %s in class %s: %w", studentID, code, types.ErrNotFound)
		}
		return fmt.Errorf("failed to record hand %s: %w", action, err)
	}

	log.Printf("Hand %s: class=%s student=%s actor=%s", action, code, studentID, actor)
	return nil
}

// SetStatus moves a student between the active and removed roster without
// touching the ledger.
func (l *Ledger) SetStatus(ctx context.Context, code, studentID string, status types.StudentStatus) error {
	if err := validateIDs(code, studentID); err != nil {
		return err
	}
	if !types.IsValidStudentStatus(status) {
		return fmt.Errorf("student status %q: %w", status, types.ErrInvalidStatus)
	}

	err := l.store.Update(ctx, types.StudentPath(code, studentID), types.Fields{
		types.FieldStatus: string(status),
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return fmt.Errorf("student %s in class %s: %w", studentID, code, types.ErrNotFound)
		}
		return fmt.Errorf("failed to set student status: %w", err)
	}

	log.Printf("Student status changed: class=%s student=%s status=%s", code, studentID, status)
	return nil
}

// Remove deletes the student document. The hand history stays behind, still
// addressable by the student id.
func (l *Ledger) Remove(ctx context.Context, code, studentID string) error {
	if err := validateIDs(code, studentID); err != nil {
		return err
	}
	if err := l.store.Delete(ctx, types.StudentPath(code, studentID)); err != nil {
		return fmt.Errorf("failed to remove student %s: %w", studentID, err)
	}
	log.Printf("Student left: class=%s student=%s", code, studentID)
	return nil
}

// Get returns one student or an error matching types.ErrNotFound.
func (l *Ledger) Get(ctx context.Context, code, studentID string) (*types.Student, error) {
	if err := validateIDs(code, studentID); err != nil {
		return nil, err
	}
	doc, err := l.store.Get(ctx, types.StudentPath(code, studentID))
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, fmt.Errorf("student %s in class %s: %w", studentID, code, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get student %s: %w", studentID, err)
	}
	return types.StudentFromDocument(code, doc)
}

// List returns every student of the class, any status, ordered by name.
func (l *Ledger) List(ctx context.Context, code string) ([]*types.Student, error) {
	if err := types.ValidateClassCode(code); err != nil {
		return nil, err
	}
	docs, err := l.store.List(ctx, rosterQuery(code))
	if err != nil {
		return nil, fmt.Errorf("failed to list students of %s: %w", code, err)
	}
	return DecodeStudents(code)(docs)
}

// ListActive is List without removed students.
func (l *Ledger) ListActive(ctx context.Context, code string) ([]*types.Student, error) {
	students, err := l.List(ctx, code)
	if err != nil {
		return nil, err
	}
	return ActiveOnly(students), nil
}

// Subscribe opens a live roster feed ordered like List. The caller must Close
// the feed.
func (l *Ledger) Subscribe(ctx context.Context, code string) (*feed.Feed[*types.Student], error) {
	if err := types.ValidateClassCode(code); err != nil {
		return nil, err
	}
	sub, err := l.store.Subscribe(ctx, rosterQuery(code))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to roster of %s: %w", code, err)
	}
	return feed.New(sub, DecodeStudents(code)), nil
}

// History returns the student's ledger entries, newest first.
func (l *Ledger) History(ctx context.Context, code, studentID string) ([]*types.HandHistoryEntry, error) {
	if err := validateIDs(code, studentID); err != nil {
		return nil, err
	}
	docs, err := l.store.List(ctx, types.Query{
		Collection: types.HandHistoryPath(code, studentID),
		OrderBy:    types.FieldTimestamp,
		Descending: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read hand history of %s: %w", studentID, err)
	}

	entries := make([]*types.HandHistoryEntry, 0, len(docs))
	for _, doc := range docs {
		entry, err := types.HandHistoryFromDocument(studentID, doc)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// DecodeStudents maps roster documents of class code.
func DecodeStudents(code string) feed.Decoder[*types.Student] {
	return func(docs []*types.Document) ([]*types.Student, error) {
		students := make([]*types.Student, 0, len(docs))
		for _, doc := range docs {
			student, err := types.StudentFromDocument(code, doc)
			if err != nil {
				return nil, err
			}
			students = append(students, student)
		}
		return students, nil
	}
}

// ActiveOnly filters out removed students, keeping order.
func ActiveOnly(students []*types.Student) []*types.Student {
	active := make([]*types.Student, 0, len(students))
	for _, s := range students {
		if s.IsActive() {
			active = append(active, s)
		}
	}
	return active
}

func rosterQuery(code string) types.Query {
	return types.Query{Collection: types.StudentsPath(code), OrderBy: types.FieldName}
}

func validateIDs(code, studentID string) error {
	if err := types.ValidateClassCode(code); err != nil {
		return err
	}
	return types.ValidateStudentID(studentID)
}
