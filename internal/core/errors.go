package core

import "errors"

// Error codes sent to clients in error envelopes.
const (
	ErrCodeAlreadyJoined      = "already_joined"
	ErrCodeNotJoined          = "not_joined"
	ErrCodeBadRequest         = "bad_request"
	ErrCodeStorageUnavailable = "storage_unavailable"
	ErrCodeRateLimited        = "rate_limited"
)

var (
	// ErrAlreadyJoined is returned by Registry.Join when the connection or its
	// user ID is already registered.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrNotFound is returned by Registry.Leave for an unregistered connection.
	ErrNotFound = errors.New("connection not registered")
	// ErrStorageUnavailable wraps persistence gateway failures.
	ErrStorageUnavailable = errors.New("storage unavailable")
	// ErrNotJoined is returned when a session handles input outside the Joined state.
	ErrNotJoined = errors.New("session not joined")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
