package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/kbukum/pipekit/observability"
	"github.com/kbukum/pipekit/stage"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return rec
}

func spanAttr(attrs []attribute.KeyValue, key string) string {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value.Emit()
		}
	}
	return ""
}

func sumOf(t *testing.T, reader *sdkmetric.ManualReader, name string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestChain_Order(t *testing.T) {
	var trail []string
	mark := func(name string) Middleware {
		return func(next Runner) Runner {
			return func(ctx context.Context, call *Call) (any, error) {
				trail = append(trail, name+">")
				v, err := next(ctx, call)
				trail = append(trail, "<"+name)
				return v, err
			}
		}
	}

	p := New("chain", quiet(), WithMiddleware(mark("outer"), nil, mark("inner")))
	p.AddStage("s", func(context.Context, stage.Args) (any, error) {
		trail = append(trail, "stage")
		return nil, nil
	}, nil)
	if _, err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.Join(trail, " "); got != "outer> inner> stage <inner <outer" {
		t.Errorf("unexpected order %q", got)
	}
}

func TestWithTracing(t *testing.T) {
	rec := useRecorder(t)

	p := New("traced", quiet(), WithMiddleware(WithTracing("")))
	p.AddStage("ok", constant(1), nil)
	p.AddStage("bad", failing(fmt.Errorf("boom")), nil)

	res, _ := p.Run(context.Background(), nil)

	spans := map[string]sdktrace.ReadOnlySpan{}
	for _, s := range rec.Ended() {
		spans[s.Name()] = s
	}
	run, ok := spans[observability.SpanRun]
	if !ok {
		t.Fatalf("expected a run span, got %v", spans)
	}
	if spanAttr(run.Attributes(), observability.AttrStatus) != observability.StatusFailed {
		t.Errorf("expected failed run status, got %v", run.Attributes())
	}

	okSpan, ok := spans[observability.SpanStage+".ok"]
	if !ok {
		t.Fatalf("expected a stage span for ok, got %v", spans)
	}
	if okSpan.Parent().SpanID() != run.SpanContext().SpanID() {
		t.Error("expected stage span to be a child of the run span")
	}
	if spanAttr(okSpan.Attributes(), observability.AttrRunID) != res.RunID {
		t.Errorf("expected run id attribute, got %v", okSpan.Attributes())
	}

	bad := spans[observability.SpanStage+".bad"]
	if bad == nil || bad.Status().Code != codes.Error {
		t.Fatalf("expected an error span for bad")
	}
}

func TestWithMetrics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())
	metrics, err := observability.NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}

	p := New("metered", quiet(), WithRunMetrics(metrics), WithMiddleware(WithMetrics(metrics)))
	p.AddStage("one", constant(1), nil)
	p.AddStage("two", constant(2), nil)
	p.AddStage("stop", failing(Exit("done")), nil)
	if _, err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := sumOf(t, reader, observability.MetricStageTotal); got != 3 {
		t.Errorf("expected 3 stage executions, got %d", got)
	}
	if got := sumOf(t, reader, observability.MetricErrorTotal); got != 0 {
		t.Errorf("expected a success exit not to count as an error, got %d", got)
	}
	if got := sumOf(t, reader, observability.MetricRunTotal); got != 1 {
		t.Errorf("expected 1 run, got %d", got)
	}

	p.AddStage("bad", failing(fmt.Errorf("boom")), nil)
	p.Stages().Delete("stop")
	_, _ = p.Run(context.Background(), nil)
	if got := sumOf(t, reader, observability.MetricErrorTotal); got != 1 {
		t.Errorf("expected 1 error, got %d", got)
	}
}

func TestWithMetrics_NilIsPassThrough(t *testing.T) {
	p := New("nil", quiet(), WithMiddleware(WithMetrics(nil)))
	p.AddStage("one", constant(1), nil)
	if _, err := p.Run(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestWithLogging(t *testing.T) {
	var buf bytes.Buffer
	log := bufferLogger(&buf)

	p := New("logged", WithLogger(log), WithMiddleware(WithLogging(nil)))
	p.AddStage("ok", constant(1), nil)
	p.AddStage("bad", failing(fmt.Errorf("disk full")), nil)
	_, _ = p.Run(context.Background(), nil)

	out := buf.String()
	for _, want := range []string{"stage completed", "stage failed", "disk full", `"stage":"bad"`, `"duration_ms"`} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in logs:\n%s", want, out)
		}
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, observability.StatusCompleted},
		{Exit("ok"), observability.StatusExited},
		{ExitWithError("no", nil), observability.StatusFailed},
		{fmt.Errorf("x"), observability.StatusFailed},
	}
	for _, tt := range tests {
		if got := statusOf(tt.err); got != tt.want {
			t.Errorf("statusOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
