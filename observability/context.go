package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RunContext tracks the span and metrics of one pipeline run.
type RunContext struct {
	Pipeline  string
	RunID     string
	StartTime time.Time
	Metrics   *Metrics
}

// NewRunContext creates a run context. A nil metrics skips metric recording.
func NewRunContext(pipeline, runID string, metrics *Metrics) *RunContext {
	return &RunContext{
		Pipeline:  pipeline,
		RunID:     runID,
		StartTime: time.Now(),
		Metrics:   metrics,
	}
}

// Start opens the run span and counts the run as active.
func (rc *RunContext) Start(ctx context.Context) (context.Context, trace.Span) {
	ctx, span := StartSpan(ctx, SpanRun, trace.WithAttributes(
		attribute.String(AttrPipeline, rc.Pipeline),
		attribute.String(AttrRunID, rc.RunID),
	))
	if rc.Metrics != nil {
		rc.Metrics.RecordRunStart(ctx, rc.Pipeline)
	}
	return ctx, span
}

// End closes the run span with status and records the run metrics.
func (rc *RunContext) End(ctx context.Context, span trace.Span, status string, err error) {
	duration := rc.Duration()

	if err != nil {
		SetSpanError(ctx, err)
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	}
	span.SetAttributes(
		attribute.String(AttrStatus, status),
		attribute.Int64(AttrDurationMs, duration.Milliseconds()),
	)
	span.End()

	if rc.Metrics != nil {
		rc.Metrics.RecordRunEnd(ctx, rc.Pipeline, status, duration)
	}
}

// Duration returns the elapsed time since the run started.
func (rc *RunContext) Duration() time.Duration {
	return time.Since(rc.StartTime)
}
