package model

import "errors"

// Error kinds shared by the domain and adapters. Callers use errors.Is.
var (
	// ErrNotFound is permanent: the referenced media or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrTransient marks store connectivity or timeout failures that may succeed on retry.
	ErrTransient = errors.New("transient store failure")
	// ErrInvalidEvent is permanent: the event is malformed.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrUnknownEvent is returned for an event variant the handler does not know.
	ErrUnknownEvent = errors.New("unknown event type")
)

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}
