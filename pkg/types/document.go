package types

import (
	"strings"
	"time"
)

// TimestampLayout is the fixed-width UTC layout used for persisted times so
// that string ordering matches chronological ordering.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"

// Fields is the schemaless body of a stored document.
type Fields map[string]any

// Document is one stored record addressed by a slash-separated path.
type Document struct {
	ID     string `json:"id"`
	Path   string `json:"path"`
	Fields Fields `json:"fields"`
}

// String returns the string field or "" when absent or of another type.
func (d *Document) String(key string) string {
	if d == nil {
		return ""
	}
	s, _ := d.Fields[key].(string)
	return s
}

// OptString returns nil when the field is absent, null or not a string.
func (d *Document) OptString(key string) *string {
	if d == nil {
		return nil
	}
	s, ok := d.Fields[key].(string)
	if !ok {
		return nil
	}
	return &s
}

// Bool returns the boolean field or false when absent.
func (d *Document) Bool(key string) bool {
	if d == nil {
		return false
	}
	b, _ := d.Fields[key].(bool)
	return b
}

// Time parses a timestamp field. Null, absent and unparseable values are
// reported as absent.
func (d *Document) Time(key string) (time.Time, bool) {
	if d == nil {
		return time.Time{}, false
	}
	switch v := d.Fields[key].(type) {
	case time.Time:
		return v.UTC(), true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false
		}
		return t.UTC(), true
	default:
		return time.Time{}, false
	}
}

// OptTime is Time returning a pointer, nil when absent.
func (d *Document) OptTime(key string) *time.Time {
	t, ok := d.Time(key)
	if !ok {
		return nil
	}
	return &t
}

// Query selects the documents of one collection.
type Query struct {
	Collection string
	OrderBy    string
	Descending bool
}

// WriteOp is the kind of mutation in a batched write.
type WriteOp string

const (
	WriteCreate WriteOp = "create"
	WriteSet    WriteOp = "set"
	WriteUpdate WriteOp = "update"
	WriteDelete WriteOp = "delete"
)

// Write is one mutation inside an atomic batch.
type Write struct {
	Op     WriteOp
	Path   string
	Fields Fields
}

// Snapshot is the full result of a query at one point in time.
type Snapshot struct {
	Documents []*Document
	ReadAt    time.Time
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// JoinPath joins path segments with "/".
func JoinPath(segments ...string) string {
	return strings.Join(segments, "/")
}

// SplitPath returns the parent collection and document id of a document path.
func SplitPath(path string) (collection, id string) {
	i := strings.LastIndex(path, "/")
	if i < 0 {
		return "", path
	}
	return path[:i], path[i+1:]
}

// IsCollectionPath reports whether path addresses a collection, which have an
// odd number of segments.
func IsCollectionPath(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return false
	}
	return len(strings.Split(path, "/"))%2 == 1
}

// IsDocumentPath reports whether path addresses a document.
func IsDocumentPath(path string) bool {
	if path == "" || strings.HasPrefix(path, "/") || strings.HasSuffix(path, "/") {
		return false
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return false
		}
	}
	return len(strings.Split(path, "/"))%2 == 0
}

// Collection and document paths of the classroom schema.
const ClassesCollection = "classes"

func ClassPath(code string) string {
	return JoinPath(ClassesCollection, code)
}

func StudentsPath(code string) string {
	return JoinPath(ClassesCollection, code, "students")
}

func StudentPath(code, studentID string) string {
	return JoinPath(StudentsPath(code), studentID)
}

func HandHistoryPath(code, studentID string) string {
	return JoinPath(StudentPath(code, studentID), "handHistory")
}

func QuestionsPath(code string) string {
	return JoinPath(ClassesCollection, code, "questions")
}

func QuestionPath(code, questionID string) string {
	return JoinPath(QuestionsPath(code), questionID)
}
