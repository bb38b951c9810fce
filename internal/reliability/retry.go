package reliability

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 30 * time.Second
)

// Policy controls a bounded retry loop.
type Policy struct {
	// Name labels log lines and metrics for the wrapped operation.
	Name        string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Exponential doubles the delay on every attempt; otherwise BaseDelay is constant.
	Exponential bool
	// Retryable decides whether an error may be attempted again. nil retries everything.
	Retryable func(error) bool
	// OnRetry observes every scheduled retry before the sleep.
	OnRetry func(Attempt)

	// Jitter returns the delay multiplier, expected in [0.5, 1.0].
	Jitter func() float64
	// Sleep waits for d or until ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Attempt describes one failed try that is about to be retried.
type Attempt struct {
	Number int
	Delay  time.Duration
	Err    error
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *ExhaustedError) Error() string {
	op := e.Operation
	if op == "" {
		op = "operation"
	}
	return fmt.Sprintf("%s failed after %d attempts: %v", op, e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// DefaultJitter draws uniformly from [0.5, 1.0].
func DefaultJitter() float64 {
	return 0.5 + rand.Float64()*0.5
}

// SleepContext blocks for d unless ctx ends first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (p Policy) withDefaults() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	} else if p.BaseDelay == 0 {
		p.BaseDelay = DefaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultMaxDelay
	}
	if p.Jitter == nil {
		p.Jitter = DefaultJitter
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	return p
}

// Delay returns the jittered wait before the attempt following attempt n (1-based).
func (p Policy) Delay(n int) time.Duration {
	p = p.withDefaults()
	d := p.BaseDelay
	if p.Exponential {
		d = ExponentialBackoff(n, p.BaseDelay, p.MaxDelay)
	} else if d > p.MaxDelay {
		d = p.MaxDelay
	}
	j := p.Jitter()
	if j < 0.5 {
		j = 0.5
	} else if j > 1 {
		j = 1
	}
	return time.Duration(float64(d) * j)
}

// Do runs op until it succeeds, the policy rejects the error, or attempts run out.
// A rejected error is returned unchanged and without delay. Running out of attempts
// yields *ExhaustedError wrapping the last cause.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	p = p.withDefaults()
	var zero T
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		out, err := op(ctx, attempt)
		if err == nil {
			return out, nil
		}
		if ctx.Err() != nil {
			return zero, err
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return zero, err
		}
		if attempt >= p.MaxAttempts {
			return zero, &ExhaustedError{Operation: p.Name, Attempts: attempt, Last: err}
		}
		delay := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(Attempt{Number: attempt, Delay: delay, Err: err})
		}
		if sleepErr := p.Sleep(ctx, delay); sleepErr != nil {
			return zero, fmt.Errorf("retry wait interrupted after attempt %d: %w", attempt, err)
		}
	}
}

// Run is Do for operations without a result value.
func Run(ctx context.Context, p Policy, op func(ctx context.Context, attempt int) error) error {
	_, err := Do(ctx, p, func(ctx context.Context, attempt int) (struct{}, error) {
		return struct{}{}, op(ctx, attempt)
	})
	return err
}
