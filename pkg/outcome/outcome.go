// Package outcome defines the value every public mender operation resolves
// to, and the error taxonomy used to classify terminal failures.
//
// A Result is one of Success, Failure or Cancelled. Failures carry a Kind and
// a human-readable message; API failures additionally carry the HTTP status
// code and response body for diagnostics.
package outcome

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Kind classifies a terminal failure.
type Kind int

const (
	// Unknown is anything that could not be classified.
	Unknown Kind = iota
	// Network means no response was received (timeout, reset, refused).
	Network
	// API means the server answered with a non-2xx status.
	API
	// Configuration covers malformed URLs, missing models and user declines.
	Configuration
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case API:
		return "api"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Lower layers return it (or errors that
// KindOf understands) and the engine converts it into a Failure result.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int    // HTTP status, API kind only.
	Body       string // Response body, API kind only.
	Err        error
}

func (e *Error) Error() string {
	var sb strings.Builder

	sb.WriteString(e.Kind.String())
	sb.WriteString(": ")
	sb.WriteString(e.Message)

	if e.Err != nil {
		if inner := e.Err.Error(); inner != "" && inner != e.Message {
			sb.WriteString(": ")
			sb.WriteString(inner)
		}
	}

	return sb.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error { return e.Err }

// HTTPStatus exposes the status code so retry classification can inspect
// classified API errors the same way it inspects raw ones.
func (e *Error) HTTPStatus() int { return e.StatusCode }

// Errorf creates a classified error with a formatted message.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind with the given message.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// statusCarrier is implemented by errors that represent an HTTP response.
type statusCarrier interface {
	HTTPStatus() int
}

// transportCarrier is implemented by errors raised before any response was
// received.
type transportCarrier interface {
	Transport() bool
}

// KindOf classifies an arbitrary error.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}

	var oe *Error
	if errors.As(err, &oe) {
		return oe.Kind
	}

	var sc statusCarrier
	if errors.As(err, &sc) && sc.HTTPStatus() != 0 {
		return API
	}

	var tc transportCarrier
	if errors.As(err, &tc) && tc.Transport() {
		return Network
	}

	var ne net.Error
	if errors.As(err, &ne) {
		return Network
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Network
	}

	return Unknown
}
