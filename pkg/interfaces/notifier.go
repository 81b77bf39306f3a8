package interfaces

import (
	"handraise/pkg/types"
)

// Notifier displays a notification intent. It is fire-and-forget: callers
// never observe whether or how the intent was shown.
type Notifier interface {
	Notify(intent types.Intent)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(intent types.Intent)

// Notify calls f(intent).
func (f NotifierFunc) Notify(intent types.Intent) {
	f(intent)
}
