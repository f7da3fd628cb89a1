package chat

import "errors"

var (
	ErrNotConnected  = errors.New("chat: not connected")
	ErrClosed        = errors.New("chat: connection closed")
	ErrSessionClosed = errors.New("chat: session closed")
)
