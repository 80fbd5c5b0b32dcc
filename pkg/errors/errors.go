package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorType represents the different classes of failure an extraction run can hit
type ErrorType string

const (
	ErrorTypeLaunch          ErrorType = "launch"
	ErrorTypeNavigation      ErrorType = "navigation"
	ErrorTypeElementNotFound ErrorType = "element_not_found"
	ErrorTypeValidation      ErrorType = "validation"
	ErrorTypeLedgerIO        ErrorType = "ledger_io"
	ErrorTypeCancelled       ErrorType = "cancelled"
	ErrorTypeConfig          ErrorType = "config"
	ErrorTypeUnknown         ErrorType = "unknown"
)

var (
	// ErrElementNotFound is returned by waits whose locator never matched in time
	ErrElementNotFound = stderrors.New("element not found")

	// ErrNoStories marks the deliberate "stories tab unavailable" outcome
	ErrNoStories = stderrors.New("stories tab not available")
)

// Error is a failure tagged with its type and the protocol step it happened in
type Error struct {
	Type    ErrorType
	Step    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Step != "" {
		return fmt.Sprintf("%s error at %s: %s", e.Type, e.Step, msg)
	}
	return fmt.Sprintf("%s error: %s", e.Type, msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a typed error
func New(t ErrorType, step, message string, err error) *Error {
	return &Error{Type: t, Step: step, Message: message, Err: err}
}

// TypeOf returns the type of the first typed error in the chain
func TypeOf(err error) ErrorType {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Type
	}
	return ErrorTypeUnknown
}

// IsType reports whether err carries the given type
func IsType(err error, t ErrorType) bool {
	return err != nil && TypeOf(err) == t
}

// Is and As are re-exported so callers importing this package don't need both
func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

// Join wraps the standard library errors.Join
func Join(errs ...error) error { return stderrors.Join(errs...) }
