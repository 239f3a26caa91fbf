// Package retry re-runs a failing operation with exponentially growing delays.
//
// A [Retrier] makes at most MaxRetries+1 attempts. The delay before attempt
// i+1 is InitialDelay·Multiplier^(i-1). Non-retryable failures and an
// exhausted budget stop immediately and return the last observed error
// unwrapped. The Retrier does not observe cancellation: the delay between
// attempts always runs to completion, and callers that want to abandon work
// discard the result instead.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Policy bounds a retried operation.
type Policy struct {
	MaxRetries   int           // Retries after the first attempt.
	InitialDelay time.Duration // Delay before the first retry.
	Multiplier   float64       // Growth factor applied after each retry.
}

// DefaultPolicy returns 3 retries starting at one second and growing by 1.5.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: time.Second,
		Multiplier:   1.5, //nolint:mnd // default growth factor
	}
}

// Validate reports the first out-of-range field.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("retry: max retries must be >= 0, got %d", p.MaxRetries)
	}

	if p.InitialDelay <= 0 {
		return fmt.Errorf("retry: initial delay must be > 0, got %s", p.InitialDelay)
	}

	if p.Multiplier < 1 {
		return fmt.Errorf("retry: multiplier must be >= 1, got %g", p.Multiplier)
	}

	return nil
}

// schedule builds a deterministic exponential schedule: no jitter, no cap on
// elapsed time or interval.
func (p Policy) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.Multiplier = p.Multiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(math.MaxInt64)
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

// Retrier executes operations under a Policy.
type Retrier struct {
	policy Policy
	logger *slog.Logger

	// sleepFunc is used for testing; defaults to time.Sleep.
	sleepFunc func(d time.Duration)
}

// New creates a Retrier. A nil logger discards retry logs.
func New(policy Policy, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Retrier{
		policy:    policy,
		logger:    logger,
		sleepFunc: time.Sleep,
	}
}

// SetSleepFunc overrides the delay function (for testing).
func (r *Retrier) SetSleepFunc(fn func(d time.Duration)) { r.sleepFunc = fn }

// Policy returns the policy the Retrier was built with.
func (r *Retrier) Policy() Policy { return r.policy }

// Do runs op under the Retrier using DefaultRetryable.
func Do[T any](r *Retrier, op func() (T, error)) (T, error) {
	return DoIf(r, op, DefaultRetryable)
}

// DoIf runs op until it succeeds, fails with an error isRetryable rejects, or
// the retry budget is spent. The last error is returned as-is.
func DoIf[T any](r *Retrier, op func() (T, error), isRetryable func(error) bool) (T, error) {
	var zero T

	sched := r.policy.schedule()

	var lastErr error
	for attempt := range r.policy.MaxRetries + 1 {
		v, err := op()
		if err == nil {
			return v, nil
		}

		lastErr = err

		if attempt >= r.policy.MaxRetries || !isRetryable(err) {
			break
		}

		delay := sched.NextBackOff()

		r.logger.Warn("retrying after failure",
			"attempt", attempt+1,
			"max_attempts", r.policy.MaxRetries+1,
			"delay", delay,
			"error", err,
		)

		r.sleepFunc(delay)
	}

	return zero, lastErr
}

// statusCarrier is implemented by errors that represent an HTTP response.
type statusCarrier interface {
	HTTPStatus() int
}

// retryableStatus lists the HTTP statuses worth another attempt.
var retryableStatus = map[int]bool{
	408: true,
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// DefaultRetryable reports whether err is transient: an HTTP 408, 429, 500,
// 502, 503 or 504, or a transport timeout, connection reset or refusal.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}

	var sc statusCarrier
	if errors.As(err, &sc) && sc.HTTPStatus() != 0 {
		return retryableStatus[sc.HTTPStatus()]
	}

	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}

	return false
}
