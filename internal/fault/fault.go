// Package fault defines the closed set of stable error codes surfaced to
// the operator and persisted in JobFailed events.
package fault

import (
	"errors"
	"fmt"
)

// Code categorizes a failure. Codes are stable strings: they appear in the
// event log and in chat replies, so renaming one is a breaking change.
type Code string

const (
	// Ownership
	CodeOwnerOnly Code = "E_OWNER_ONLY"

	// Routing
	CodeNotInManagedThread Code = "E_NOT_IN_MANAGED_THREAD"
	CodeSessionNotFound    Code = "E_SESSION_NOT_FOUND"
	CodeThreadAccessFailed Code = "E_THREAD_ACCESS_FAILED"

	// Project / tool configuration
	CodeProjectNotFound Code = "E_PROJECT_NOT_FOUND"
	CodeProjectExists   Code = "E_PROJECT_EXISTS"
	CodeInvalidPath     Code = "E_INVALID_PATH"
	CodeInvalidToolset  Code = "E_INVALID_TOOLSET"
	CodeToolNotEnabled  Code = "E_TOOL_NOT_ENABLED"

	// Scheduling
	CodeQueueFull       Code = "E_QUEUE_FULL"
	CodeJobNotRetryable Code = "E_JOB_NOT_RETRYABLE"

	// Adapter runtime
	CodeCLITimeout               Code = "E_CLI_TIMEOUT"
	CodeCLIExitNonzero           Code = "E_CLI_EXIT_NONZERO"
	CodeAdapterParse             Code = "E_ADAPTER_PARSE"
	CodeAdapterMissingResult     Code = "E_ADAPTER_MISSING_RESULT"
	CodeAdapterSessionKeyMissing Code = "E_ADAPTER_SESSION_KEY_MISSING"

	// Transport
	CodeDiscordRateLimit Code = "E_DISCORD_RATE_LIMIT"
)

// Error is a failure carrying a stable code. The code travels with the
// error through wrapping and into persistence.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is / errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf extracts the stable code from err, or "" if err carries none.
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return CodeOf(err) == code
}
