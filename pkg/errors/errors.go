package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures the way the dispatcher and session
// manager react to them.
type ErrorCode string

const (
	// ErrCodeTransientNetwork covers timeouts and connection resets;
	// the dispatcher retries these by rotating peers.
	ErrCodeTransientNetwork ErrorCode = "TRANSIENT_NETWORK"
	// ErrCodeNoPeers means the pool is empty; surfaced immediately,
	// never retried.
	ErrCodeNoPeers ErrorCode = "NO_PEERS"
	// ErrCodeRemoteRejected is a non-2xx response. The dispatcher
	// cannot tell a bad peer from a bad request, so it treats this
	// like a transient endpoint failure.
	ErrCodeRemoteRejected ErrorCode = "REMOTE_REJECTED"
	// ErrCodeSignalingTransient covers poll/relay errors; retried in
	// place with fixed backoff, room membership preserved.
	ErrCodeSignalingTransient ErrorCode = "SIGNALING_TRANSIENT"
	// ErrCodeMediaFatal is a device or permission failure; surfaced to
	// the caller, never retried automatically.
	ErrCodeMediaFatal ErrorCode = "MEDIA_FATAL"
	// ErrCodePersistenceSoft is a storage read/write failure; always
	// swallowed, the pool degrades to in-memory for the session.
	ErrCodePersistenceSoft ErrorCode = "PERSISTENCE_SOFT"
)

// AppError carries a code, a message and the underlying cause.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func newError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{Code: code, Message: message, Cause: cause}
}

// NewTransientError wraps a timeout or transport failure.
func NewTransientError(cause error) *AppError {
	return newError(ErrCodeTransientNetwork, "endpoint call failed", cause)
}

// NewNoPeersError reports an empty pool.
func NewNoPeersError() *AppError {
	return newError(ErrCodeNoPeers, "peer pool is empty", nil)
}

// NewRemoteRejectedError wraps a non-2xx response.
func NewRemoteRejectedError(status int, body string) *AppError {
	e := newError(ErrCodeRemoteRejected, fmt.Sprintf("remote returned %d: %s", status, body), nil)
	e.HTTPStatus = status
	return e
}

// NewSignalingError wraps a relay transport failure.
func NewSignalingError(cause error) *AppError {
	return newError(ErrCodeSignalingTransient, "signaling relay call failed", cause)
}

// NewMediaError wraps a local media acquisition failure.
func NewMediaError(cause error) *AppError {
	return newError(ErrCodeMediaFatal, "media acquisition failed", cause)
}

// NewPersistenceError wraps a snapshot store failure.
func NewPersistenceError(cause error) *AppError {
	return newError(ErrCodePersistenceSoft, "snapshot persistence failed", cause)
}

// CodeOf extracts the error code from an error chain; empty when the
// chain carries no AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// IsNoPeers reports whether the chain carries a NO_PEERS error.
func IsNoPeers(err error) bool {
	return CodeOf(err) == ErrCodeNoPeers
}

// IsRemoteRejected reports whether the chain carries a REMOTE_REJECTED
// error, returning its HTTP status.
func IsRemoteRejected(err error) (int, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code == ErrCodeRemoteRejected {
		return appErr.HTTPStatus, true
	}
	return 0, false
}
