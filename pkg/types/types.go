package types

import (
	"time"
)

// ClassState is the lifecycle state of a class.
type ClassState string

const (
	ClassOpen   ClassState = "open"
	ClassClosed ClassState = "closed"
)

// StudentStatus marks whether a student is still part of the active roster.
type StudentStatus string

const (
	StudentActive  StudentStatus = "active"
	StudentRemoved StudentStatus = "removed"
)

// HandAction is the direction of a hand toggle recorded in the ledger.
type HandAction string

const (
	HandRaised  HandAction = "raised"
	HandLowered HandAction = "lowered"
)

// Actor identifies who performed a hand toggle.
type Actor string

const (
	ActorStudent Actor = "student"
	ActorTeacher Actor = "teacher"
)

// QuestionStatus is the moderation state of a question.
type QuestionStatus string

const (
	QuestionPending  QuestionStatus = "pending"
	QuestionAnswered QuestionStatus = "answered"
)

// TeacherActorName is written into the ledger when the teacher lowers a hand.
const TeacherActorName = "Teacher"

// Class is one live classroom session.
// FUNCTIONAL DISCOVERY: Code and CreatedAt never change after creation; only
// State and ClosedAt move, and ClosedAt is set exactly when State is closed.
type Class struct {
	Code      string     `json:"code"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	State     ClassState `json:"state"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
}

// IsOpen reports whether the class accepts participants.
func (c *Class) IsOpen() bool {
	return c.State != ClassClosed
}

// Student is a roster member of a class.
type Student struct {
	ID         string        `json:"id"`
	ClassCode  string        `json:"class_code"`
	Name       string        `json:"name"`
	HandRaised bool          `json:"hand_raised"`
	Status     StudentStatus `json:"status"`
	JoinedAt   time.Time     `json:"joined_at"`
}

// IsActive reports whether the student is part of the active roster.
func (s *Student) IsActive() bool {
	return s.Status != StudentRemoved
}

// HandHistoryEntry is one append-only ledger record of a hand toggle.
type HandHistoryEntry struct {
	ID        string     `json:"id"`
	StudentID string     `json:"student_id"`
	Action    HandAction `json:"action"`
	Actor     Actor      `json:"actor"`
	ActorName *string    `json:"actor_name,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// Question is an entry in the moderated question queue.
type Question struct {
	ID         string         `json:"id"`
	ClassCode  string         `json:"class_code"`
	StudentID  string         `json:"student_id"`
	Text       string         `json:"text"`
	CreatedAt  *time.Time     `json:"created_at,omitempty"`
	Status     QuestionStatus `json:"status"`
	Answer     *string        `json:"answer,omitempty"`
	AnsweredBy *string        `json:"answered_by,omitempty"`
	AnsweredAt *time.Time     `json:"answered_at,omitempty"`
	IsDeleted  bool           `json:"is_deleted"`
}

// StudentHandStats is the per-student tally of ledger entries.
type StudentHandStats struct {
	TotalRaises int `json:"total_raises"`
	TotalLowers int `json:"total_lowers"`
}

// ClassStatistics is the pull-only summary of a class.
type ClassStatistics struct {
	Code              string                      `json:"code"`
	Name              string                      `json:"name"`
	State             ClassState                  `json:"state"`
	CreatedAt         time.Time                   `json:"created_at"`
	ClosedAt          *time.Time                  `json:"closed_at,omitempty"`
	DurationMinutes   int                         `json:"duration_minutes"`
	TotalStudents     int                         `json:"total_students"`
	ActiveStudents    int                         `json:"active_students"`
	TotalHandRaises   int                         `json:"total_hand_raises"`
	TotalHandLowers   int                         `json:"total_hand_lowers"`
	TotalQuestions    int                         `json:"total_questions"`
	AnsweredQuestions int                         `json:"answered_questions"`
	PendingQuestions  int                         `json:"pending_questions"`
	HandRaiseStats    map[string]StudentHandStats `json:"hand_raise_stats"`
	Students          []*Student                  `json:"students"`
	Questions         []*Question                 `json:"questions"`
}

// IntentKind names the transition a notification intent reports.
type IntentKind string

const (
	IntentHandRaised  IntentKind = "hand_raised"
	IntentNewQuestion IntentKind = "new_question"
)

// Intent is a request to show one notification to an observer.
// ARCHITECTURAL DISCOVERY: Tag collapses bursts for the same subject and
// DismissAfter bounds how long the notification stays visible.
type Intent struct {
	Kind         IntentKind    `json:"kind"`
	ClassCode    string        `json:"class_code"`
	StudentID    string        `json:"student_id"`
	StudentName  string        `json:"student_name"`
	QuestionID   string        `json:"question_id,omitempty"`
	Text         string        `json:"text,omitempty"`
	Title        string        `json:"title"`
	Body         string        `json:"body"`
	Tag          string        `json:"tag"`
	DismissAfter time.Duration `json:"dismiss_after"`
	CreatedAt    time.Time     `json:"created_at"`
}
