package interfaces

// Connection is a live observer connection to one class.
// ARCHITECTURAL DISCOVERY: Pure abstraction without transport details keeps
// the registry and notifier sinks testable with in-memory fakes.
type Connection interface {
	// WriteJSON queues a JSON frame for the client. Implementations must be
	// safe for concurrent callers.
	WriteJSON(v interface{}) error

	Close() error

	// GetUserID returns the observer id; for students this is the roster id.
	GetUserID() string

	// GetRole returns "teacher" or "student".
	GetRole() string

	// GetClassCode returns the class this connection observes.
	GetClassCode() string

	IsAuthenticated() bool

	// SetCredentials binds the connection to an observer after upgrade.
	SetCredentials(userID, role, classCode string) error
}
