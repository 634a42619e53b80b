// Package vcerrors provides structured error handling for vcutil with error
// categorization, key-value context, and stack capture.
//
// # Overview
//
// Every failure that crosses a package boundary is an *Error carrying an
// ErrorType. The archive run treats all of them as fatal; the type tells the
// caller what went wrong:
//
//   - ErrorTypeConfig: bad period size, malformed template, template/domain mismatch
//   - ErrorTypeUnsupportedDomain: the sequence column is neither temporal nor integral
//   - ErrorTypeUnsupportedValue: a field of a type the serializer cannot represent
//   - ErrorTypeUnexpectedAbsent: the driver delivered a non-null value that decodes to nothing
//   - ErrorTypeQuery, ErrorTypeConnection: store I/O failures
//   - ErrorTypeFile, ErrorTypeUpload: destination I/O failures
//
// # Basic Usage
//
//	if period <= 0 {
//	    return vcerrors.New(vcerrors.ErrorTypeConfig, "period must be positive").
//	        WithDetail("period", period)
//	}
//
//	if _, err := db.ExecContext(ctx, q); err != nil {
//	    return vcerrors.Wrap(err, vcerrors.ErrorTypeQuery, "delete failed").
//	        WithDetail("table", table)
//	}
//
// # Thread Safety
//
// Error instances are not safe for concurrent modification. Attach details
// before handing an error to another goroutine.
package vcerrors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorType represents the category of error.
type ErrorType string

const (
	// ErrorTypeInternal represents internal invariant violations
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeValidation represents invalid input to an operation
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfig represents configuration errors, reported before any I/O
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeUnsupportedDomain represents a sequence column of unusable type
	ErrorTypeUnsupportedDomain ErrorType = "unsupported_domain"
	// ErrorTypeUnsupportedValue represents a field value the serializer cannot represent
	ErrorTypeUnsupportedValue ErrorType = "unsupported_value"
	// ErrorTypeUnexpectedAbsent represents a non-null stored value that decoded to nothing
	ErrorTypeUnexpectedAbsent ErrorType = "unexpected_absent"
	// ErrorTypeConnection represents connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeQuery represents query execution errors
	ErrorTypeQuery ErrorType = "query"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeFile represents file operation errors
	ErrorTypeFile ErrorType = "file"
	// ErrorTypeUpload represents object storage errors
	ErrorTypeUpload ErrorType = "upload"
	// ErrorTypeCanceled represents a run stopped by its context between windows
	ErrorTypeCanceled ErrorType = "canceled"
)

// Error represents a structured error with context.
type Error struct {
	Type    ErrorType
	Message string
	Cause   error
	Details map[string]interface{}
	Stack   []StackFrame
}

// StackFrame represents a single frame in the call stack.
type StackFrame struct {
	Function string // Fully qualified function name
	File     string // Source file path
	Line     int    // Line number in source file
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithDetail adds a key-value detail to the error. It can be chained.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Detail returns the detail stored under key anywhere in the error chain,
// outermost first.
func Detail(err error, key string) (interface{}, bool) {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return nil, false
		}
		if v, ok := e.Details[key]; ok {
			return v, true
		}
		err = e.Cause
	}
	return nil, false
}

// New creates a new error with the given type and message, capturing the call stack.
func New(errType ErrorType, message string) *Error {
	return &Error{
		Type:    errType,
		Message: message,
		Stack:   captureStack(2),
	}
}

// Newf is New with a formatted message.
func Newf(errType ErrorType, format string, args ...interface{}) *Error {
	return &Error{
		Type:    errType,
		Message: fmt.Sprintf(format, args...),
		Stack:   captureStack(2),
	}
}

// Wrap wraps an existing error with additional context. If err is already a
// structured Error its stack is preserved. Returns nil if err is nil.
func Wrap(err error, errType ErrorType, message string) *Error {
	if err == nil {
		return nil
	}

	var existingErr *Error
	if errors.As(err, &existingErr) {
		return &Error{
			Type:    errType,
			Message: message,
			Cause:   err,
			Stack:   existingErr.Stack,
		}
	}

	return &Error{
		Type:    errType,
		Message: message,
		Cause:   err,
		Stack:   captureStack(2),
	}
}

// IsRetryable returns true if re-invoking the whole run may succeed.
// Nothing inside vcutil retries; this is advice for the caller.
func IsRetryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}

	switch e.Type {
	case ErrorTypeTimeout, ErrorTypeConnection:
		return true
	default:
		return false
	}
}

// IsType reports whether any structured error in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Type == errType {
			return true
		}
		err = e.Cause
	}
	return false
}

// captureStack captures the current call stack up to maxFrames deep.
func captureStack(skip int) []StackFrame {
	const maxFrames = 32
	frames := make([]StackFrame, 0, maxFrames)

	for i := skip; i < maxFrames+skip; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}

		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		frames = append(frames, StackFrame{
			Function: fn.Name(),
			File:     file,
			Line:     line,
		})
	}

	return frames
}
