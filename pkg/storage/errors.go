package storage

import (
	"errors"
	"fmt"
)

// ErrorCode classifies storage failures so callers can map them without
// string matching.
type ErrorCode int

const (
	// ErrNotFound indicates the key has no backing file.
	ErrNotFound ErrorCode = iota + 1

	// ErrReadOnly indicates a mutation was rejected by read-only mode.
	ErrReadOnly

	// ErrInvalidKey indicates the key cannot map inside the store root.
	ErrInvalidKey

	// ErrIOError indicates a filesystem or index engine failure.
	ErrIOError

	// ErrEncode indicates a metadata record could not be serialized.
	ErrEncode

	// ErrDecode indicates stored metadata bytes are malformed. Distinct
	// from ErrNotFound: the record exists but cannot be read.
	ErrDecode

	// ErrTooLarge indicates the file exceeds the configured read ceiling.
	ErrTooLarge

	// ErrClosed indicates the store has been closed.
	ErrClosed
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrNotFound:
		return "NotFound"
	case ErrReadOnly:
		return "ReadOnly"
	case ErrInvalidKey:
		return "InvalidKey"
	case ErrIOError:
		return "IOError"
	case ErrEncode:
		return "EncodeError"
	case ErrDecode:
		return "DecodeError"
	case ErrTooLarge:
		return "TooLarge"
	case ErrClosed:
		return "Closed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(c))
	}
}

// StoreError is the typed error surfaced by every storage operation. Path
// carries the offending key or filesystem path; Cause the underlying error.
type StoreError struct {
	Code    ErrorCode
	Message string
	Path    string
	Cause   error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Path != "" {
		msg += fmt.Sprintf(" (path: %s)", e.Path)
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(": %v", e.Cause)
	}
	return msg
}

// Unwrap exposes the underlying cause to errors.Is / errors.As.
func (e *StoreError) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the ErrorCode from err, or 0 if err is not a StoreError.
func CodeOf(err error) ErrorCode {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsNotFound reports whether err is a NotFound storage error.
func IsNotFound(err error) bool {
	return CodeOf(err) == ErrNotFound
}

// NewNotFoundError creates a NotFound error for a key.
func NewNotFoundError(key string) *StoreError {
	return &StoreError{Code: ErrNotFound, Message: "key not found", Path: key}
}

// NewReadOnlyError creates a ReadOnly rejection for an operation on a key.
func NewReadOnlyError(op, key string) *StoreError {
	return &StoreError{
		Code:    ErrReadOnly,
		Message: fmt.Sprintf("%s ignored: store is read-only", op),
		Path:    key,
	}
}

// NewIOError wraps a filesystem or index failure with path context.
func NewIOError(msg, path string, cause error) *StoreError {
	return &StoreError{Code: ErrIOError, Message: msg, Path: path, Cause: cause}
}

// NewDecodeError wraps malformed metadata bytes with key context.
func NewDecodeError(msg, key string, cause error) *StoreError {
	return &StoreError{Code: ErrDecode, Message: msg, Path: key, Cause: cause}
}
