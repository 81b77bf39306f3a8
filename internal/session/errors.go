package session

import "errors"

// Class lifecycle errors not covered by the shared categories in pkg/types
var (
	ErrCodeGenerationExhausted = errors.New("could not find a free class code")
	ErrRosterSweepIncomplete   = errors.New("roster kept changing during the close sweep")
)
