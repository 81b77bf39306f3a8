package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Limits on user supplied text, counted in characters.
const (
	MaxClassNameLength   = 100
	MaxStudentNameLength = 50
	MaxQuestionLength    = 500
	MaxAnswerLength      = 1000
)

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var classCodeRegex = regexp.MustCompile(`^[A-Za-z0-9]{6}$`)

// IsValidClassCode checks the 6 character alphanumeric join code format.
func IsValidClassCode(code string) bool {
	return classCodeRegex.MatchString(code)
}

// ValidateClassCode returns ErrInvalidClassCode for malformed codes.
func ValidateClassCode(code string) error {
	if !IsValidClassCode(code) {
		return ErrInvalidClassCode
	}
	return nil
}

// ValidateClassName checks a class display name.
func ValidateClassName(name string) error {
	if !withinLength(name, MaxClassNameLength) {
		return ErrInvalidClassName
	}
	return nil
}

// ValidateStudentName checks a student display name.
func ValidateStudentName(name string) error {
	if !withinLength(name, MaxStudentNameLength) {
		return ErrInvalidStudentName
	}
	return nil
}

// ValidateStudentID rejects empty ids and ids that would break a path.
func ValidateStudentID(id string) error {
	if !isPathSegment(id) {
		return ErrInvalidStudentID
	}
	return nil
}

// ValidateQuestionID rejects empty ids and ids that would break a path.
func ValidateQuestionID(id string) error {
	if !isPathSegment(id) {
		return ErrInvalidQuestionID
	}
	return nil
}

// ValidateQuestionText rejects blank and oversized questions.
func ValidateQuestionText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyQuestion
	}
	if utf8.RuneCountInString(text) > MaxQuestionLength {
		return ErrQuestionTooLong
	}
	return nil
}

// ValidateAnswer rejects blank and oversized answers and checks the author.
func ValidateAnswer(text, answeredBy string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyAnswer
	}
	if utf8.RuneCountInString(text) > MaxAnswerLength {
		return ErrAnswerTooLong
	}
	if !withinLength(answeredBy, MaxStudentNameLength) {
		return ErrInvalidAnsweredBy
	}
	return nil
}

// IsValidStudentStatus reports whether status is a known roster status.
func IsValidStudentStatus(status StudentStatus) bool {
	return status == StudentActive || status == StudentRemoved
}

// IsValidQuestionStatus reports whether status is a known question status.
func IsValidQuestionStatus(status QuestionStatus) bool {
	return status == QuestionPending || status == QuestionAnswered
}

func withinLength(s string, max int) bool {
	trimmed := strings.TrimSpace(s)
	n := utf8.RuneCountInString(trimmed)
	return n >= 1 && n <= max
}

func isPathSegment(s string) bool {
	return s != "" && !strings.Contains(s, "/")
}
