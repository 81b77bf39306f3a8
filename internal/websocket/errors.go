package websocket

import "errors"

// Observer connection errors
var (
	ErrConnectionClosed = errors.New("observer connection closed")
	ErrWriteTimeout     = errors.New("observer send queue full for 5 seconds")
	ErrInvalidJSON      = errors.New("frame is not JSON encodable")
)

// Registry errors
var (
	ErrNilConnection              = errors.New("connection cannot be nil")
	ErrConnectionNotAuthenticated = errors.New("observer needs class, role and user before registration")
)
