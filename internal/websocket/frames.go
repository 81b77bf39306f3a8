package websocket

import (
	"handraise/pkg/types"
)

// Frame types exchanged with observers.
const (
	FrameRoster        = "roster"
	FrameQuestions     = "questions"
	FrameNotification  = "notification"
	FrameNotifications = "notifications"
	FrameClassClosed   = "class_closed"
	FrameRemoved       = "removed"
	FrameError         = "error"
)

// Frame is a control frame without payload.
type Frame struct {
	Type      string `json:"type"`
	ClassCode string `json:"class_code,omitempty"`
	Message   string `json:"message,omitempty"`
}

// RosterFrame carries the active roster.
type RosterFrame struct {
	Type      string           `json:"type"`
	ClassCode string           `json:"class_code"`
	Students  []*types.Student `json:"students"`
}

// QuestionsFrame carries the visible questions for the observer.
type QuestionsFrame struct {
	Type      string            `json:"type"`
	ClassCode string            `json:"class_code"`
	Questions []*types.Question `json:"questions"`
}

// NotificationFrame carries one notification intent to a teacher.
type NotificationFrame struct {
	Type         string       `json:"type"`
	Notification types.Intent `json:"notification"`
}

// ClientFrame is what observers send. Only teachers' notification toggles
// are acted on.
type ClientFrame struct {
	Type    string `json:"type"`
	Enabled *bool  `json:"enabled,omitempty"`
}
