package bandwidth

import (
	"errors"
	"fmt"
)

// ErrCode classifies the errors produced by this package.
type ErrCode int

const (
	// ErrUnknown is the zero classification.
	ErrUnknown ErrCode = iota

	// ErrInvalidConfig marks a rejected group configuration or a bad
	// argument to a constructor. The previous configuration is always
	// left fully in place.
	ErrInvalidConfig

	// ErrInvalidState marks an operation that is not valid for the
	// throttle's current lifecycle state, such as writing after an
	// abort.
	ErrInvalidState

	// ErrSinkFailed marks an error reported by the downstream sink
	// during a drain. The affected throttle is removed from its group
	// exactly as if it had been aborted.
	ErrSinkFailed
)

// Error is the error type returned by this package. It carries a
// classification code and optionally wraps an underlying cause.
type Error struct {
	code  ErrCode
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

// Unwrap returns the wrapped cause, if any.
func (e *Error) Unwrap() error { return e.cause }

// Code returns the error classification.
func (e *Error) Code() ErrCode { return e.code }

func errorf(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

func wrapErr(code ErrCode, cause error, msg string) *Error {
	return &Error{code: code, msg: msg, cause: cause}
}

// codeOf extracts the classification of the outermost package error in
// err's chain.
func codeOf(err error) ErrCode {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ErrUnknown
}

// IsInvalidConfig reports whether err is a configuration validation
// error from NewGroup, Configure or CreateThrottle.
func IsInvalidConfig(err error) bool { return codeOf(err) == ErrInvalidConfig }

// IsInvalidState reports whether err was returned because the operation
// is not allowed in the throttle's current state.
func IsInvalidState(err error) bool { return codeOf(err) == ErrInvalidState }

// IsSinkFailed reports whether err originated from the downstream sink.
func IsSinkFailed(err error) bool { return codeOf(err) == ErrSinkFailed }
