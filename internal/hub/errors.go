package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrIntentChannelFull = errors.New("intent channel is full")
	ErrNilTarget         = errors.New("notification target is nil")
)
