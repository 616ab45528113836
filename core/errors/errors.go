// Package errors provides the failure kinds of the radiopi frontend.
//
// Invocation failures are collected and shown to the user as raw output
// lines. Validation and parse failures reject input before it can reach the
// control program or the rendered page.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common cases
var (
	// ErrInvalidInput indicates invalid input or validation failure
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownAction indicates an action identifier outside the supported set
	ErrUnknownAction = errors.New("unknown action")
	// ErrInvocation indicates the control program exited with a non-zero code
	ErrInvocation = errors.New("invocation failed")
	// ErrTimeout indicates the control program exceeded its execution deadline
	ErrTimeout = errors.New("invocation timed out")
)

// ValidationError represents a user-supplied parameter that does not have
// the expected shape.
type ValidationError struct {
	Field   string // Form field that failed validation
	Value   string // Submitted value (may be truncated)
	Message string // Human-readable error message
	Err     error  // Underlying error, if any
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// UnknownActionError is returned for an action identifier that is not
// supported by the configured feature set.
type UnknownActionError struct {
	Action string
}

func (e *UnknownActionError) Error() string {
	return fmt.Sprintf("unknown action %q", e.Action)
}

// Is reports both ErrUnknownAction and ErrInvalidInput.
func (e *UnknownActionError) Is(target error) bool {
	return target == ErrUnknownAction || target == ErrInvalidInput
}

// ParseError represents a malformed line in control program output.
type ParseError struct {
	Format  string // Output being parsed (e.g., "status")
	Line    int    // 1-based line number, 0 if unknown
	Text    string // Offending line
	Message string // Error details
	Err     error  // Underlying error, if any
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("failed to parse %s line %d %q: %s", e.Format, e.Line, e.Text, e.Message)
	}
	return fmt.Sprintf("failed to parse %s: %s", e.Format, e.Message)
}

func (e *ParseError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrInvalidInput
}

// InvocationError represents a control program run with a non-zero exit code.
type InvocationError struct {
	Args     []string // Arguments passed to the program
	ExitCode int
	Lines    []string // Captured output
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s exited with code %d", strings.Join(e.Args, " "), e.ExitCode)
}

func (e *InvocationError) Unwrap() error {
	return ErrInvocation
}

// TimeoutError represents a control program run that was killed after
// exceeding its deadline.
type TimeoutError struct {
	Args    []string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", strings.Join(e.Args, " "), e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrTimeout
}

// IOError represents an I/O operation error with context
type IOError struct {
	Operation string // Operation being performed (e.g., "exec", "open")
	Path      string // File/resource path involved
	Err       error  // Underlying error
}

func (e *IOError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("failed to %s %s: %v", e.Operation, e.Path, e.Err)
	}
	return fmt.Sprintf("failed to %s: %v", e.Operation, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// NewValidation creates a ValidationError
func NewValidation(field, value, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewParse creates a ParseError for a single offending line
func NewParse(format string, line int, text, message string) *ParseError {
	return &ParseError{
		Format:  format,
		Line:    line,
		Text:    text,
		Message: message,
	}
}

// NewIO creates an IOError
func NewIO(operation, path string, err error) *IOError {
	return &IOError{
		Operation: operation,
		Path:      path,
		Err:       err,
	}
}

// Wrap adds context to an error. If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is wraps errors.Is for convenience
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join wraps errors.Join for convenience
func Join(errs ...error) error {
	return errors.Join(errs...)
}
