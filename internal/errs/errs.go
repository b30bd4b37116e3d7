// Package errs provides the classified errors surfaced by the graph engine.
//
// Every failure the engine reports carries a Kind so that callers can tell a
// bad configuration apart from a lifecycle misuse, an out-of-order packet, a
// packet type mismatch or an error raised by a calculator at run time. Errors
// are wrapped in the "component.operation: message" form and can be inspected
// with errors.Is / errors.As as well as the Is* helpers below.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for handling purposes.
type Kind int

const (
	// KindUnknown is reported for errors that were never classified.
	KindUnknown Kind = iota
	// KindConfig covers parse and validation failures of a graph config,
	// including rejected calculator option overrides.
	KindConfig
	// KindLifecycle covers invalid state transitions and construction misuse.
	KindLifecycle
	// KindOrdering covers packets that violate a stream's timestamp order.
	KindOrdering
	// KindType covers packet kind mismatches and unsupported data kinds.
	KindType
	// KindRuntime covers errors raised by calculators while the graph runs.
	KindRuntime
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindLifecycle:
		return "lifecycle"
	case KindOrdering:
		return "ordering"
	case KindType:
		return "type"
	case KindRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Sentinel errors for common conditions.
var (
	ErrGraphClosed    = errors.New("graph is closed")
	ErrNotStarted     = errors.New("graph run not started")
	ErrAlreadyStarted = errors.New("graph run already started")
	ErrQueueFull      = errors.New("input stream queue is full")
	ErrUnknownStream  = errors.New("unknown stream")
	ErrNotAvailable   = errors.New("not available until the graph is done")
	ErrParse          = errors.New("malformed graph config")
)

// Error wraps an error with its classification and origin.
type Error struct {
	Kind      Kind
	Component string
	Operation string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Component != "" && e.Operation != "":
		return fmt.Sprintf("%s.%s: %v", e.Component, e.Operation, e.Err)
	case e.Component != "":
		return fmt.Sprintf("%s: %v", e.Component, e.Err)
	default:
		return e.Err.Error()
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a format string.
func New(kind Kind, component, operation, format string, args ...any) error {
	return &Error{Kind: kind, Component: component, Operation: operation, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies err. It returns nil when err is nil. An error that is
// already classified keeps its original kind.
func Wrap(kind Kind, err error, component, operation string) error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		kind = ce.Kind
	}
	return &Error{Kind: kind, Component: component, Operation: operation, Err: err}
}

// Config creates a KindConfig error.
func Config(component, operation, format string, args ...any) error {
	return New(KindConfig, component, operation, format, args...)
}

// Lifecycle creates a KindLifecycle error.
func Lifecycle(component, operation, format string, args ...any) error {
	return New(KindLifecycle, component, operation, format, args...)
}

// Ordering creates a KindOrdering error.
func Ordering(component, operation, format string, args ...any) error {
	return New(KindOrdering, component, operation, format, args...)
}

// Type creates a KindType error.
func Type(component, operation, format string, args ...any) error {
	return New(KindType, component, operation, format, args...)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindUnknown
}

// IsKind reports whether any error in err's chain is classified as kind.
// Joined errors are searched as well.
func IsKind(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var ce *Error
	if errors.As(err, &ce) && ce.Kind == kind {
		return true
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			if IsKind(e, kind) {
				return true
			}
		}
	}
	if ce != nil {
		return IsKind(ce.Err, kind)
	}
	return false
}

// IsConfig checks if an error is a configuration error.
func IsConfig(err error) bool { return IsKind(err, KindConfig) }

// IsLifecycle checks if an error is a lifecycle error.
func IsLifecycle(err error) bool { return IsKind(err, KindLifecycle) }

// IsOrdering checks if an error is a timestamp ordering error.
func IsOrdering(err error) bool { return IsKind(err, KindOrdering) }

// IsType checks if an error is a packet type or contract error.
func IsType(err error) bool { return IsKind(err, KindType) }

// IsRuntime checks if an error was raised by a calculator at run time.
func IsRuntime(err error) bool { return IsKind(err, KindRuntime) }
