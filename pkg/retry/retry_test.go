package retry_test

import (
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/germanamz/mender/pkg/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("unexpected status %d", e.code) }
func (e *statusErr) HTTPStatus() int { return e.code }

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func newRetrier(p retry.Policy) (*retry.Retrier, *[]time.Duration) {
	var delays []time.Duration

	r := retry.New(p, nil)
	r.SetSleepFunc(func(d time.Duration) { delays = append(delays, d) })

	return r, &delays
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	r, delays := newRetrier(retry.DefaultPolicy())

	calls := 0
	got, err := retry.Do(r, func() (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestDo_ExhaustsBudgetWithGrowingDelays(t *testing.T) {
	r, delays := newRetrier(retry.Policy{MaxRetries: 3, InitialDelay: time.Second, Multiplier: 1.5})

	calls := 0
	_, err := retry.Do(r, func() (string, error) {
		calls++
		return "", &statusErr{code: 503}
	})

	var se *statusErr
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.code)
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{
		time.Second,
		1500 * time.Millisecond,
		2250 * time.Millisecond,
	}, *delays)
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	r, delays := newRetrier(retry.Policy{MaxRetries: 3, InitialDelay: 100 * time.Millisecond, Multiplier: 2})

	calls := 0
	got, err := retry.Do(r, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, &statusErr{code: 429}
		}

		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *delays)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	r, delays := newRetrier(retry.DefaultPolicy())

	calls := 0
	_, err := retry.Do(r, func() (string, error) {
		calls++
		return "", &statusErr{code: 401}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestDo_ZeroRetries(t *testing.T) {
	r, delays := newRetrier(retry.Policy{MaxRetries: 0, InitialDelay: time.Second, Multiplier: 1})

	calls := 0
	_, err := retry.Do(r, func() (string, error) {
		calls++
		return "", &statusErr{code: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *delays)
}

func TestDo_ReturnsLastFailure(t *testing.T) {
	r, _ := newRetrier(retry.Policy{MaxRetries: 2, InitialDelay: time.Millisecond, Multiplier: 1})

	calls := 0
	_, err := retry.Do(r, func() (string, error) {
		calls++
		return "", &statusErr{code: 500 + calls}
	})

	var se *statusErr
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 503, se.code)
}

func TestDoIf_CustomPredicate(t *testing.T) {
	r, delays := newRetrier(retry.Policy{MaxRetries: 5, InitialDelay: time.Millisecond, Multiplier: 1})
	sentinel := errors.New("again")

	calls := 0
	_, err := retry.DoIf(r, func() (string, error) {
		calls++
		if calls == 1 {
			return "", sentinel
		}

		return "", errors.New("stop")
	}, func(err error) bool { return errors.Is(err, sentinel) })

	assert.EqualError(t, err, "stop")
	assert.Equal(t, 2, calls)
	assert.Len(t, *delays, 1)
}

func TestDefaultRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"408", &statusErr{code: 408}, true},
		{"429", &statusErr{code: 429}, true},
		{"500", &statusErr{code: 500}, true},
		{"502", &statusErr{code: 502}, true},
		{"503", &statusErr{code: 503}, true},
		{"504", &statusErr{code: 504}, true},
		{"400", &statusErr{code: 400}, false},
		{"401", &statusErr{code: 401}, false},
		{"404", &statusErr{code: 404}, false},
		{"501", &statusErr{code: 501}, false},
		{"wrapped 503", fmt.Errorf("ollama: %w", &statusErr{code: 503}), true},
		{"timeout", timeoutErr{}, true},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, true},
		{"reset", &net.OpError{Op: "read", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, true},
		{"plain", errors.New("decode response: unexpected EOF"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retry.DefaultRetryable(tt.err))
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, retry.DefaultPolicy().Validate())

	assert.ErrorContains(t, retry.Policy{MaxRetries: -1, InitialDelay: time.Second, Multiplier: 1}.Validate(), "max retries")
	assert.ErrorContains(t, retry.Policy{MaxRetries: 1, InitialDelay: 0, Multiplier: 1}.Validate(), "initial delay")
	assert.ErrorContains(t, retry.Policy{MaxRetries: 1, InitialDelay: time.Second, Multiplier: 0.5}.Validate(), "multiplier")
}

func TestDefaultPolicy(t *testing.T) {
	p := retry.DefaultPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.InitialDelay)
	assert.InDelta(t, 1.5, p.Multiplier, 1e-9)
}
