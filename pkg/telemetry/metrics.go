package telemetry

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder receives one observation per Execute call
type Recorder interface {
	RecordExecution(ctx context.Context, rec ExecutionRecord)
}

// ExecutionRecord describes a finished Execute call
type ExecutionRecord struct {
	Level     int
	Backend   string
	Success   bool
	ErrorKind string
	Duration  time.Duration
}

// DispatchMetrics records executions as OpenTelemetry instruments
type DispatchMetrics struct {
	executions metric.Int64Counter
	duration   metric.Float64Histogram
}

// NewDispatchMetrics creates the instruments on meter. A nil meter uses
// the global meter provider.
func NewDispatchMetrics(meter metric.Meter) (*DispatchMetrics, error) {
	if meter == nil {
		meter = otel.Meter(InstrumentationName)
	}
	executions, err := meter.Int64Counter(
		"iln_executions_total",
		metric.WithDescription("Total Execute calls"),
	)
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(
		"iln_execution_duration_seconds",
		metric.WithDescription("Execute duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}
	return &DispatchMetrics{executions: executions, duration: duration}, nil
}

// RecordExecution implements Recorder
func (m *DispatchMetrics) RecordExecution(ctx context.Context, rec ExecutionRecord) {
	status := "success"
	if !rec.Success {
		status = "error"
	}
	attrs := metric.WithAttributes(
		attribute.String("level", strconv.Itoa(rec.Level)),
		attribute.String("backend", rec.Backend),
		attribute.String("status", status),
		attribute.String("error_kind", rec.ErrorKind),
	)
	m.executions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, rec.Duration.Seconds(), attrs)
}

// NoopRecorder discards observations
type NoopRecorder struct{}

// RecordExecution implements Recorder
func (NoopRecorder) RecordExecution(context.Context, ExecutionRecord) {}
