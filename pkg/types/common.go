package types

import (
	"errors"
	"strconv"
)

// Status represents the lifecycle state of a transport component
type Status string

const (
	StatusUninitialized Status = "uninitialized"
	StatusRunning       Status = "running"
	StatusTerminated    Status = "terminated"
)

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// ProcessID identifies a process taking part in FIFO IPC. It is the platform
// process id and doubles as the suffix of the process's inbound FIFO path.
type ProcessID int32

// String returns the decimal form of the process id
func (p ProcessID) String() string {
	return strconv.FormatInt(int64(p), 10)
}

// IsValid reports whether the id can name a real process
func (p ProcessID) IsValid() bool {
	return p > 0
}

// ParseProcessID parses a decimal process id
func ParseProcessID(s string) (ProcessID, error) {
	v, err := strconv.ParseInt(s, 10, 32)
	if err != nil {
		return 0, WrapError(ErrCodeInvalidArgument, "invalid process id: "+s, err)
	}
	pid := ProcessID(v)
	if !pid.IsValid() {
		return 0, NewError(ErrCodeInvalidArgument, "process id must be positive: "+s)
	}
	return pid, nil
}

// MessageType selects the handler a message is dispatched to
type MessageType int32

// String returns the decimal form of the message type
func (m MessageType) String() string {
	return strconv.FormatInt(int64(m), 10)
}

// Error represents an error with additional context
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error returns the error message
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new error with code and message
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// WrapError wraps an existing error with code and message
func WrapError(code, message string, err error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// IsErrCode checks if an error, or any error it wraps, has a specific error code
func IsErrCode(err error, code string) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// GetErrorCode returns the error code from an error
func GetErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// Common error codes
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeInvalidArgument    = "INVALID_ARGUMENT"
	ErrCodeInvalid            = "INVALID"
	ErrCodePermission         = "PERMISSION"
	ErrCodeInternal           = "INTERNAL"
	ErrCodeUnavailable        = "UNAVAILABLE"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeCanceled           = "CANCELED"
	ErrCodeFailedPrecondition = "FAILED_PRECONDITION"
	ErrCodeUnsupported        = "UNSUPPORTED"
	ErrCodeTerminated         = "TERMINATED"
	ErrCodeProtocol           = "PROTOCOL"
)
