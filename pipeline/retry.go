package pipeline

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
)

// RetryPolicy configures WithRetry.
type RetryPolicy struct {
	// MaxAttempts counts the first call. Values below 1 mean 3.
	MaxAttempts    int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff" mapstructure:"max_backoff"`
	BackoffFactor  float64       `yaml:"backoff_factor" mapstructure:"backoff_factor"`
	// Jitter spreads each backoff by up to this fraction either way.
	Jitter float64 `yaml:"jitter" mapstructure:"jitter"`
	// RetryIf reports whether a failed call is worth another attempt.
	// Nil uses Retryable.
	RetryIf func(error) bool `yaml:"-" mapstructure:"-"`
}

// DefaultRetryPolicy returns three attempts with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         0.1,
	}
}

// Retryable rejects exits, cancellation and input errors, which fail the
// same way on every attempt.
func Retryable(err error) bool {
	if _, ok := AsExit(err); ok {
		return false
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return false
	}
	for _, code := range []errors.ErrorCode{
		errors.ErrCodeUnboundInput, errors.ErrCodeUndefinedInput, errors.ErrCodeBindingFailed,
		errors.ErrCodeInvalidInput, errors.ErrCodeInvalidParameter, errors.ErrCodeUndefinedParameter,
		errors.ErrCodeUndefinedVariable, errors.ErrCodeOutputMismatch,
	} {
		if errors.HasCode(err, code) {
			return false
		}
	}
	return true
}

func (r RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if r.MaxAttempts <= 0 {
		r.MaxAttempts = d.MaxAttempts
	}
	if r.InitialBackoff <= 0 {
		r.InitialBackoff = d.InitialBackoff
	}
	if r.MaxBackoff <= 0 {
		r.MaxBackoff = d.MaxBackoff
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = d.BackoffFactor
	}
	if r.RetryIf == nil {
		r.RetryIf = Retryable
	}
	return r
}

// backoff returns the delay after the given failed attempt.
func (r RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(r.InitialBackoff) * math.Pow(r.BackoffFactor, float64(attempt-1))
	if r.Jitter > 0 {
		d += (rand.Float64()*2 - 1) * d * r.Jitter
	}
	if d > float64(r.MaxBackoff) {
		d = float64(r.MaxBackoff)
	}
	if d < 0 {
		d = float64(r.InitialBackoff)
	}
	return time.Duration(d)
}

// WithRetry calls a failing stage again while the policy allows it. A stage
// keeps its previous outputs when a call fails, so a retried stage starts
// from the same state. The last error is returned once attempts run out.
func WithRetry(policy RetryPolicy) Middleware {
	policy = policy.withDefaults()
	return func(next Runner) Runner {
		return func(ctx context.Context, call *Call) (any, error) {
			var lastErr error
			for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
				result, err := next(ctx, call)
				if err == nil {
					return result, nil
				}
				lastErr = err
				if attempt == policy.MaxAttempts || !policy.RetryIf(err) {
					break
				}

				wait := policy.backoff(attempt)
				logger.FromContext(ctx).Warn("retrying stage", map[string]interface{}{
					"attempt":         attempt,
					"backoff_ms":      wait.Milliseconds(),
					logger.FieldError: err.Error(),
				})

				timer := time.NewTimer(wait)
				select {
				case <-ctx.Done():
					timer.Stop()
					return nil, ctx.Err()
				case <-timer.C:
				}
			}
			return nil, lastErr
		}
	}
}
