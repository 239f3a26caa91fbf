package outcome

import (
	"context"
	"errors"
)

type state int

const (
	stateSuccess state = iota
	stateFailure
	stateCancelled
)

// Result is the discriminated union returned by every public operation:
// Success(text), Failure(kind, message) or Cancelled. The zero value is an
// empty Success.
type Result struct {
	state      state
	Text       string
	Kind       Kind
	Message    string
	StatusCode int
	Body       string
}

// Success wraps a completed text.
func Success(text string) Result {
	return Result{state: stateSuccess, Text: text}
}

// Failure creates a failed result.
func Failure(kind Kind, message string) Result {
	return Result{state: stateFailure, Kind: kind, Message: message}
}

// Cancelled creates a result for an operation the caller abandoned.
func Cancelled() Result {
	return Result{state: stateCancelled}
}

// FromError converts a terminal error into a Failure, preserving the status
// code and body of API errors. Context cancellation becomes Cancelled.
func FromError(err error) Result {
	if err == nil {
		return Success("")
	}

	if errors.Is(err, context.Canceled) {
		return Cancelled()
	}

	r := Failure(KindOf(err), err.Error())

	var oe *Error
	if errors.As(err, &oe) {
		r.Message = oe.Message
		r.StatusCode = oe.StatusCode
		r.Body = oe.Body
	}

	return r
}

// OK reports whether the result is a Success.
func (r Result) OK() bool { return r.state == stateSuccess }

// Failed reports whether the result is a Failure.
func (r Result) Failed() bool { return r.state == stateFailure }

// IsCancelled reports whether the result is Cancelled.
func (r Result) IsCancelled() bool { return r.state == stateCancelled }

// Err returns the failure as an error, or nil for Success and Cancelled.
func (r Result) Err() error {
	if r.state != stateFailure {
		return nil
	}

	return &Error{Kind: r.Kind, Message: r.Message, StatusCode: r.StatusCode, Body: r.Body}
}

// String renders the result for logs and plain-text frontends.
func (r Result) String() string {
	switch r.state {
	case stateFailure:
		return r.Kind.String() + " failure: " + r.Message
	case stateCancelled:
		return "cancelled"
	default:
		return r.Text
	}
}
