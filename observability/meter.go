package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/pipekit/logger"
	"github.com/kbukum/pipekit/version"
)

// MeterConfig configures the OpenTelemetry meter provider.
type MeterConfig struct {
	// ServiceName is the name of the process hosting the pipelines.
	ServiceName string
	// ServiceVersion is the version of the service.
	ServiceVersion string
	// Environment is the deployment environment (development, staging, production).
	Environment string
	// Endpoint is the OTLP HTTP endpoint host:port (e.g., "localhost:4318").
	Endpoint string
	// Insecure allows insecure connections (for development).
	Insecure bool
	// Interval is the metric export interval.
	Interval time.Duration
}

// DefaultMeterConfig returns sensible defaults for development.
func DefaultMeterConfig(serviceName string) MeterConfig {
	return MeterConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		Environment:    "development",
		Endpoint:       "localhost:4318",
		Insecure:       true,
		Interval:       15 * time.Second,
	}
}

// InitMeter installs a global meter provider exporting over OTLP HTTP.
// The caller shuts the returned provider down on exit.
func InitMeter(ctx context.Context, config *MeterConfig) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(config.Endpoint),
	}
	if config.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(config.ServiceName, config.ServiceVersion, config.Environment)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	var readerOpts []sdkmetric.PeriodicReaderOption
	if config.Interval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(config.Interval))
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		logger.FieldService, config.ServiceName,
		"endpoint", config.Endpoint,
		"interval", config.Interval.String(),
	))

	return mp, nil
}

// Meter returns the pipekit meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(instrumentationName)
}

// Metrics holds the instruments recorded by pipeline runs.
type Metrics struct {
	runTotal      metric.Int64Counter
	runDuration   metric.Float64Histogram
	runActive     metric.Int64UpDownCounter
	stageTotal    metric.Int64Counter
	stageDuration metric.Float64Histogram
	errorTotal    metric.Int64Counter
}

// Instrument names.
const (
	MetricRunTotal      = "pipeline.run.total"
	MetricRunDuration   = "pipeline.run.duration"
	MetricRunActive     = "pipeline.run.active"
	MetricStageTotal    = "pipeline.stage.total"
	MetricStageDuration = "pipeline.stage.duration"
	MetricErrorTotal    = "pipeline.error.total"
)

// NewMetrics creates metric instruments on the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.runTotal, err = meter.Int64Counter(MetricRunTotal,
		metric.WithDescription("Completed pipeline runs by status"),
	); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricRunTotal, err)
	}
	if m.runDuration, err = meter.Float64Histogram(MetricRunDuration,
		metric.WithDescription("Duration of pipeline runs in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricRunDuration, err)
	}
	if m.runActive, err = meter.Int64UpDownCounter(MetricRunActive,
		metric.WithDescription("Pipeline runs in progress"),
	); err != nil {
		return nil, fmt.Errorf("creating %s gauge: %w", MetricRunActive, err)
	}
	if m.stageTotal, err = meter.Int64Counter(MetricStageTotal,
		metric.WithDescription("Stage executions by status"),
	); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricStageTotal, err)
	}
	if m.stageDuration, err = meter.Float64Histogram(MetricStageDuration,
		metric.WithDescription("Duration of stage executions in seconds"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating %s histogram: %w", MetricStageDuration, err)
	}
	if m.errorTotal, err = meter.Int64Counter(MetricErrorTotal,
		metric.WithDescription("Stage errors by code"),
	); err != nil {
		return nil, fmt.Errorf("creating %s counter: %w", MetricErrorTotal, err)
	}
	return m, nil
}

// RecordRunStart increments the active run count.
func (m *Metrics) RecordRunStart(ctx context.Context, pipeline string) {
	m.runActive.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrPipeline, pipeline)))
}

// RecordRunEnd decrements active runs and records the finished run.
func (m *Metrics) RecordRunEnd(ctx context.Context, pipeline, status string, duration time.Duration) {
	p := attribute.String(AttrPipeline, pipeline)
	m.runActive.Add(ctx, -1, metric.WithAttributes(p))
	m.runTotal.Add(ctx, 1, metric.WithAttributes(p, attribute.String(AttrStatus, status)))
	m.runDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(p))
}

// RecordStage records one stage execution.
func (m *Metrics) RecordStage(ctx context.Context, pipeline, stage, status string, duration time.Duration) {
	m.stageTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrStage, stage),
		attribute.String(AttrStatus, status),
	))
	m.stageDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrStage, stage),
	))
}

// RecordError records a stage error by code.
func (m *Metrics) RecordError(ctx context.Context, pipeline, stage, code string) {
	m.errorTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrPipeline, pipeline),
		attribute.String(AttrStage, stage),
		attribute.String(AttrErrorCode, code),
	))
}
