package types

import (
	"fmt"
)

// Document field names. These are the persisted schema and must stay stable.
const (
	FieldID           = "id"
	FieldName         = "name"
	FieldCreatedAt    = "createdAt"
	FieldState        = "state"
	FieldCloseAt      = "closeAt"
	FieldHandRaised   = "handRaised"
	FieldJoinedAt     = "joinedAt"
	FieldStatus       = "status"
	FieldAction       = "action"
	FieldRaisedBy     = "raisedBy"
	FieldRaisedByName = "raisedByName"
	FieldTimestamp    = "timestamp"
	FieldText         = "text"
	FieldStudentID    = "studentId"
	FieldIsDeleted    = "isDeleted"
	FieldAnswer       = "answer"
	FieldAnsweredBy   = "answeredBy"
	FieldAnsweredAt   = "answeredAt"
)

// ClassFromDocument maps a class document. Missing state means open.
func ClassFromDocument(doc *Document) (*Class, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil class document")
	}
	class := &Class{
		Code:     doc.ID,
		Name:     doc.String(FieldName),
		State:    ClassState(doc.String(FieldState)),
		ClosedAt: doc.OptTime(FieldCloseAt),
	}
	if createdAt, ok := doc.Time(FieldCreatedAt); ok {
		class.CreatedAt = createdAt
	}
	if class.State == "" {
		class.State = ClassOpen
	}
	if class.State != ClassOpen && class.State != ClassClosed {
		return nil, fmt.Errorf("class %s has unknown state %q", doc.ID, class.State)
	}
	return class, nil
}

// StudentFromDocument maps a roster document. Missing status means active.
func StudentFromDocument(classCode string, doc *Document) (*Student, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil student document")
	}
	student := &Student{
		ID:         doc.ID,
		ClassCode:  classCode,
		Name:       doc.String(FieldName),
		HandRaised: doc.Bool(FieldHandRaised),
		Status:     StudentStatus(doc.String(FieldStatus)),
	}
	if joinedAt, ok := doc.Time(FieldJoinedAt); ok {
		student.JoinedAt = joinedAt
	}
	if student.Status == "" {
		student.Status = StudentActive
	}
	if student.Status != StudentActive && student.Status != StudentRemoved {
		return nil, fmt.Errorf("student %s has unknown status %q", doc.ID, student.Status)
	}
	return student, nil
}

// HandHistoryFromDocument maps a ledger entry document.
func HandHistoryFromDocument(studentID string, doc *Document) (*HandHistoryEntry, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil hand history document")
	}
	entry := &HandHistoryEntry{
		ID:        doc.ID,
		StudentID: studentID,
		Action:    HandAction(doc.String(FieldAction)),
		Actor:     Actor(doc.String(FieldRaisedBy)),
		ActorName: doc.OptString(FieldRaisedByName),
	}
	if ts, ok := doc.Time(FieldTimestamp); ok {
		entry.Timestamp = ts
	}
	if entry.Action != HandRaised && entry.Action != HandLowered {
		return nil, fmt.Errorf("hand history entry %s has unknown action %q", doc.ID, entry.Action)
	}
	if entry.Actor == "" {
		entry.Actor = ActorStudent
	}
	return entry, nil
}

// QuestionFromDocument maps a question document. Missing status means pending.
func QuestionFromDocument(classCode string, doc *Document) (*Question, error) {
	if doc == nil {
		return nil, fmt.Errorf("nil question document")
	}
	question := &Question{
		ID:         doc.ID,
		ClassCode:  classCode,
		StudentID:  doc.String(FieldStudentID),
		Text:       doc.String(FieldText),
		CreatedAt:  doc.OptTime(FieldCreatedAt),
		Status:     QuestionStatus(doc.String(FieldStatus)),
		Answer:     doc.OptString(FieldAnswer),
		AnsweredBy: doc.OptString(FieldAnsweredBy),
		AnsweredAt: doc.OptTime(FieldAnsweredAt),
		IsDeleted:  doc.Bool(FieldIsDeleted),
	}
	if question.Status == "" {
		question.Status = QuestionPending
	}
	if question.Status != QuestionPending && question.Status != QuestionAnswered {
		return nil, fmt.Errorf("question %s has unknown status %q", doc.ID, question.Status)
	}
	return question, nil
}
