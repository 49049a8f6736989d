// Package observability wires OpenTelemetry tracing and metrics into
// pipeline runs.
//
// Tracing:
//
//	tp, err := observability.InitTracer(ctx, observability.DefaultTracerConfig("etl"))
//	defer tp.Shutdown(ctx)
//
// Metrics:
//
//	mp, err := observability.InitMeter(ctx, &cfg)
//	defer mp.Shutdown(ctx)
//	metrics, err := observability.NewMetrics(observability.Meter())
//
// A pipeline opens one SpanRun span per run through RunContext and the
// stage middleware adds one SpanStage child span per stage.
package observability
