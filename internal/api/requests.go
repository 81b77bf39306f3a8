package api

import (
	"time"

	"handraise/pkg/types"
)

// Request/Response types for JSON serialization
// FUNCTIONAL DISCOVERY: validate tags reject malformed bodies before any store
// round trip; the managers still enforce their own rules.

type CreateClassRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Code string `json:"code,omitempty" validate:"omitempty,len=6,alphanum"`
}

type ClassResponse struct {
	Class       *types.Class `json:"class"`
	Connections int          `json:"connections"`
}

type ListClassesResponse struct {
	Classes []*types.Class `json:"classes"`
}

type JoinRequest struct {
	Name string `json:"name" validate:"required,max=50"`
}

type JoinResponse struct {
	Student *types.Student `json:"student"`
}

type ListStudentsResponse struct {
	Students []*types.Student `json:"students"`
}

type HandRequest struct {
	Raised *bool `json:"raised" validate:"required"`
}

type StudentStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active removed"`
}

type HistoryResponse struct {
	History []*types.HandHistoryEntry `json:"history"`
}

type SubmitQuestionRequest struct {
	StudentID string `json:"student_id" validate:"required,max=128"`
	Text      string `json:"text" validate:"required,max=500"`
}

type SubmitQuestionResponse struct {
	QuestionID string `json:"question_id"`
}

type ListQuestionsResponse struct {
	Questions []*types.Question `json:"questions"`
}

type QuestionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=pending answered"`
}

type AnswerRequest struct {
	Answer     string `json:"answer" validate:"required,max=1000"`
	AnsweredBy string `json:"answered_by" validate:"required,max=50"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type HealthResponse struct {
	Status      string                 `json:"status"`
	Timestamp   time.Time              `json:"timestamp"`
	Database    string                 `json:"database"`
	Connections map[string]int         `json:"connections"`
	System      map[string]interface{} `json:"system"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}
