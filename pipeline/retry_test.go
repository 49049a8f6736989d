package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/stage"
)

func flaky(failures int, err error) (stage.Func, *int) {
	calls := 0
	return func(context.Context, stage.Args) (any, error) {
		calls++
		if calls <= failures {
			return nil, err
		}
		return calls, nil
	}, &calls
}

func fastRetry(attempts int) RetryPolicy {
	return RetryPolicy{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestWithRetry_SucceedsAfterFailures(t *testing.T) {
	fn, calls := flaky(2, fmt.Errorf("temporary"))
	p := New("retry", quiet(), WithMiddleware(WithRetry(fastRetry(3))))
	p.AddStage("flaky", fn, nil)

	res, err := p.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *calls != 3 {
		t.Errorf("expected 3 calls, got %d", *calls)
	}
	if got, _ := res.Value("flaky"); got != 3 {
		t.Errorf("expected the third call's value, got %v", got)
	}
}

func TestWithRetry_GivesUp(t *testing.T) {
	cause := fmt.Errorf("persistent")
	fn, calls := flaky(10, cause)
	p := New("retry", quiet(), WithMiddleware(WithRetry(fastRetry(3))))
	p.AddStage("flaky", fn, nil)

	_, err := p.Run(context.Background(), nil)
	if !errors.HasCode(err, errors.ErrCodeStageFailed) {
		t.Fatalf("expected STAGE_FAILED, got %v", err)
	}
	if *calls != 3 {
		t.Errorf("expected 3 calls, got %d", *calls)
	}
}

func TestWithRetry_SkipsNonRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"exit", Exit("done")},
		{"missing argument", errors.InvalidInput("x", "missing")},
		{"cancelled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fn, calls := flaky(10, tt.err)
			p := New("retry", quiet(), WithMiddleware(WithRetry(fastRetry(5))))
			p.AddStage("s", fn, nil)
			_, _ = p.Run(context.Background(), nil)
			if *calls != 1 {
				t.Errorf("expected a single call, got %d", *calls)
			}
		})
	}
}

func TestWithRetry_UnboundInputIsNotRetried(t *testing.T) {
	fn, calls := flaky(0, nil)
	p := New("retry", quiet(), WithMiddleware(WithRetry(fastRetry(5))))
	p.AddStage("s", fn, []stage.Input{stage.Param("absent", "x")})

	_, err := p.Run(context.Background(), nil)
	if err == nil {
		t.Fatal("expected an error for an undeclared parameter")
	}
	if *calls != 0 {
		t.Errorf("expected the body never to run, got %d calls", *calls)
	}
}

func TestWithRetry_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(context.Context, stage.Args) (any, error) {
		cancel()
		return nil, fmt.Errorf("temporary")
	}
	policy := RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second}
	p := New("retry", quiet(), WithMiddleware(WithRetry(policy)))
	p.AddStage("s", fn, nil)

	start := time.Now()
	_, err := p.Run(ctx, nil)
	if !errors.HasCode(err, errors.ErrCodeStageFailed) {
		t.Fatalf("expected STAGE_FAILED wrapping the cancellation, got %v", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("expected the backoff to stop on cancellation")
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	r := RetryPolicy{InitialBackoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond, BackoffFactor: 2}.withDefaults()
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 10 * time.Millisecond},
		{2, 20 * time.Millisecond},
		{3, 40 * time.Millisecond},
		{4, 50 * time.Millisecond},
	}
	for _, tt := range tests {
		if got := r.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
	if r.MaxAttempts != 3 {
		t.Errorf("expected default attempts, got %d", r.MaxAttempts)
	}
}
