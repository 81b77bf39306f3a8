package types

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// Functional Validation Tests - Validation rules

func TestIsValidClassCode(t *testing.T) {
	tests := []struct {
		name string
		code string
		want bool
	}{
		{"upper and digits", "ABC123", true},
		{"lower case accepted", "abc123", true},
		{"too short", "ABC12", false},
		{"too long", "ABC1234", false},
		{"punctuation", "ABC-12", false},
		{"empty", "", false},
		{"unicode letter", "ÄBC123", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidClassCode(tt.code); got != tt.want {
				t.Errorf("IsValidClassCode(%q) = %v, want %v", tt.code, got, tt.want)
			}
		})
	}
}

func TestValidateQuestionText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantErr error
	}{
		{"normal question", "What is a closure?", nil},
		{"empty", "", ErrEmptyQuestion},
		{"whitespace only", "   \t\n", ErrEmptyQuestion},
		{"exactly 500", strings.Repeat("a", 500), nil},
		{"501 characters", strings.Repeat("a", 501), ErrQuestionTooLong},
		{"500 multibyte runes", strings.Repeat("é", 500), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateQuestionText(tt.text)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateQuestionText() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr != nil && !errors.Is(err, ErrValidationFailed) {
				t.Errorf("expected error to wrap ErrValidationFailed, got %v", err)
			}
		})
	}
}

func TestValidateAnswer(t *testing.T) {
	tests := []struct {
		name       string
		text       string
		answeredBy string
		wantErr    error
	}{
		{"valid", "Use a map", "Teacher", nil},
		{"blank answer", "  ", "Teacher", ErrEmptyAnswer},
		{"too long", strings.Repeat("x", 1001), "Teacher", ErrAnswerTooLong},
		{"missing author", "Use a map", "", ErrInvalidAnsweredBy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateAnswer(tt.text, tt.answeredBy); !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateAnswer() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateNames(t *testing.T) {
	if err := ValidateClassName("Algorithms 101"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if err := ValidateClassName("   "); !errors.Is(err, ErrInvalidClassName) {
		t.Errorf("expected ErrInvalidClassName, got %v", err)
	}
	if err := ValidateStudentName(strings.Repeat("n", 51)); !errors.Is(err, ErrInvalidStudentName) {
		t.Errorf("expected ErrInvalidStudentName, got %v", err)
	}
	if err := ValidateStudentID("a/b"); !errors.Is(err, ErrInvalidStudentID) {
		t.Errorf("expected ErrInvalidStudentID, got %v", err)
	}
}

// Functional Validation Tests - Document mapping

func TestClassFromDocument_Defaults(t *testing.T) {
	created := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	doc := &Document{
		ID: "ABC123",
		Fields: Fields{
			FieldID:        "ABC123",
			FieldName:      "Physics",
			FieldCreatedAt: FormatTimestamp(created),
		},
	}

	class, err := ClassFromDocument(doc)
	if err != nil {
		t.Fatalf("ClassFromDocument() error = %v", err)
	}
	if class.State != ClassOpen {
		t.Errorf("expected missing state to mean open, got %s", class.State)
	}
	if class.ClosedAt != nil {
		t.Errorf("expected nil ClosedAt, got %v", class.ClosedAt)
	}
	if !class.CreatedAt.Equal(created) {
		t.Errorf("expected CreatedAt %v, got %v", created, class.CreatedAt)
	}
}

func TestStudentFromDocument_NullStatusIsActive(t *testing.T) {
	doc := &Document{ID: "s1", Fields: Fields{FieldName: "Ada", FieldHandRaised: true, FieldStatus: nil}}

	student, err := StudentFromDocument("ABC123", doc)
	if err != nil {
		t.Fatalf("StudentFromDocument() error = %v", err)
	}
	if !student.IsActive() {
		t.Errorf("expected student to be active, got %s", student.Status)
	}
	if !student.HandRaised {
		t.Error("expected hand raised")
	}
}

func TestQuestionFromDocument_OptionalFields(t *testing.T) {
	doc := &Document{ID: "q1", Fields: Fields{
		FieldText:      "Why?",
		FieldStudentID: "s1",
		FieldAnswer:    nil,
		FieldCreatedAt: nil,
	}}

	question, err := QuestionFromDocument("ABC123", doc)
	if err != nil {
		t.Fatalf("QuestionFromDocument() error = %v", err)
	}
	if question.Status != QuestionPending {
		t.Errorf("expected pending default, got %s", question.Status)
	}
	if question.Answer != nil || question.CreatedAt != nil {
		t.Errorf("expected null fields to map to nil, got answer=%v createdAt=%v", question.Answer, question.CreatedAt)
	}

	doc.Fields[FieldStatus] = "archived"
	if _, err := QuestionFromDocument("ABC123", doc); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestFormatTimestamp_SortsChronologically(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	earlier := FormatTimestamp(base)
	later := FormatTimestamp(base.Add(500 * time.Millisecond))
	if !(earlier < later) {
		t.Errorf("expected %q < %q", earlier, later)
	}

	doc := &Document{Fields: Fields{"at": later}}
	parsed, ok := doc.Time("at")
	if !ok || !parsed.Equal(base.Add(500*time.Millisecond)) {
		t.Errorf("expected round trip of %q, got %v (ok=%v)", later, parsed, ok)
	}
}

func TestPaths(t *testing.T) {
	if got := HandHistoryPath("ABC123", "s1"); got != "classes/ABC123/students/s1/handHistory" {
		t.Errorf("unexpected hand history path %q", got)
	}
	if !IsCollectionPath(QuestionsPath("ABC123")) {
		t.Error("questions path should be a collection")
	}
	if !IsDocumentPath(QuestionPath("ABC123", "q1")) {
		t.Error("question path should be a document")
	}
	collection, id := SplitPath(StudentPath("ABC123", "s1"))
	if collection != StudentsPath("ABC123") || id != "s1" {
		t.Errorf("SplitPath() = %q, %q", collection, id)
	}
}
