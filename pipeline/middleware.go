package pipeline

import (
	"context"
	"time"

	"github.com/kbukum/pipekit/errors"
	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/observability"
	"github.com/kbukum/pipekit/stage"
)

// Call is one execution of a stage within a run.
type Call struct {
	Pipeline  string
	RunID     string
	Name      string
	Stage     *stage.Stage
	Scope     *stage.Scope
	Overrides stage.Args
}

// Runner executes a stage call.
type Runner func(ctx context.Context, call *Call) (any, error)

// Middleware wraps a Runner.
type Middleware func(next Runner) Runner

// Chain composes middleware so that the first one is outermost.
func Chain(mw ...Middleware) Middleware {
	return func(next Runner) Runner {
		for i := len(mw) - 1; i >= 0; i-- {
			if mw[i] != nil {
				next = mw[i](next)
			}
		}
		return next
	}
}

// runStage is the innermost Runner.
func runStage(ctx context.Context, call *Call) (any, error) {
	return call.Stage.Run(ctx, call.Scope, call.Overrides)
}

// statusOf maps a stage error to a run status.
func statusOf(err error) string {
	if err == nil {
		return observability.StatusCompleted
	}
	if exit, ok := AsExit(err); ok && !exit.Failed {
		return observability.StatusExited
	}
	return observability.StatusFailed
}

// WithLogging logs each stage call with its duration and outcome.
// A nil log uses the logger carried by the context.
func WithLogging(log *logger.Logger) Middleware {
	return func(next Runner) Runner {
		return func(ctx context.Context, call *Call) (any, error) {
			l := log
			if l == nil {
				l = logger.FromContext(ctx)
			} else {
				l = l.WithContext(ctx)
			}

			l.Debug("stage started")
			start := time.Now()
			result, err := next(ctx, call)
			status := statusOf(err)
			fields := logger.StageFields(status, time.Since(start), err)

			switch status {
			case observability.StatusCompleted:
				l.Debug("stage completed", fields)
			case observability.StatusExited:
				l.Info("stage requested exit", fields)
			default:
				l.Error("stage failed", fields)
			}
			return result, err
		}
	}
}

// WithTracing opens one span per stage call, named prefix + "." + stage.
// An empty prefix uses observability.SpanStage.
func WithTracing(prefix string) Middleware {
	if prefix == "" {
		prefix = observability.SpanStage
	}
	return func(next Runner) Runner {
		return func(ctx context.Context, call *Call) (any, error) {
			ctx, span := observability.StartSpan(ctx, prefix+"."+call.Name)
			defer span.End()

			observability.SetSpanAttribute(ctx, observability.AttrPipeline, call.Pipeline)
			observability.SetSpanAttribute(ctx, observability.AttrStage, call.Name)
			observability.SetSpanAttribute(ctx, observability.AttrRunID, call.RunID)

			sc := span.SpanContext()
			if sc.IsValid() {
				ctx = logger.WithTraceIDs(ctx, sc.TraceID().String(), sc.SpanID().String())
			}

			result, err := next(ctx, call)
			status := statusOf(err)
			observability.SetSpanAttribute(ctx, observability.AttrStatus, status)
			if status == observability.StatusFailed {
				observability.SetSpanError(ctx, err)
				if code := errors.CodeOf(err); code != "" {
					observability.SetSpanAttribute(ctx, observability.AttrErrorCode, string(code))
				}
			}
			return result, err
		}
	}
}

// WithMetrics records the count, duration and errors of stage calls.
func WithMetrics(m *observability.Metrics) Middleware {
	return func(next Runner) Runner {
		if m == nil {
			return next
		}
		return func(ctx context.Context, call *Call) (any, error) {
			start := time.Now()
			result, err := next(ctx, call)
			status := statusOf(err)
			if status == observability.StatusFailed {
				code := string(errors.CodeOf(err))
				if code == "" {
					code = string(errors.ErrCodeStageFailed)
				}
				m.RecordError(ctx, call.Pipeline, call.Name, code)
			}
			m.RecordStage(ctx, call.Pipeline, call.Name, status, time.Since(start))
			return result, err
		}
	}
}
