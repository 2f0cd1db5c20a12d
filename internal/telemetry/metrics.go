package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
)

// Outcome labels for transition metrics.
const (
	OutcomeOK                = "ok"
	OutcomeNotFound          = "not_found"
	OutcomeForbidden         = "forbidden"
	OutcomeInvalidTransition = "invalid_transition"
	OutcomeError             = "error"
)

// WorkflowMetrics holds the instruments recorded by the workflow engine.
type WorkflowMetrics struct {
	transitions     metric.Int64Counter
	duration        metric.Float64Histogram
	retries         metric.Int64Counter
	derivedFailures metric.Int64Counter
}

// NewWorkflowMetrics creates the instruments on meter.
func NewWorkflowMetrics(meter metric.Meter) (*WorkflowMetrics, error) {
	transitions, err := meter.Int64Counter("ideaflow.workflow.transitions",
		metric.WithDescription("Status transition requests by outcome"))
	if err != nil {
		return nil, fmt.Errorf("transitions counter: %w", err)
	}
	duration, err := meter.Float64Histogram("ideaflow.workflow.transition.duration",
		metric.WithDescription("Transition latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("duration histogram: %w", err)
	}
	retries, err := meter.Int64Counter("ideaflow.store.retries",
		metric.WithDescription("Store writes retried after transient contention"))
	if err != nil {
		return nil, fmt.Errorf("retries counter: %w", err)
	}
	derived, err := meter.Int64Counter("ideaflow.workflow.derived_failures",
		metric.WithDescription("Evaluation or incubation writes that failed after a status change"))
	if err != nil {
		return nil, fmt.Errorf("derived failures counter: %w", err)
	}
	return &WorkflowMetrics{
		transitions:     transitions,
		duration:        duration,
		retries:         retries,
		derivedFailures: derived,
	}, nil
}

// NopWorkflowMetrics returns instruments that record nothing.
func NopWorkflowMetrics() *WorkflowMetrics {
	m, _ := NewWorkflowMetrics(metricnoop.NewMeterProvider().Meter(instrumentationScope))
	return m
}

// RecordTransition counts one transition request and its latency.
func (m *WorkflowMetrics) RecordTransition(ctx context.Context, from, to, outcome string, elapsed time.Duration) {
	attrs := metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("outcome", outcome),
	)
	m.transitions.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// RecordRetry counts one retried store operation.
func (m *WorkflowMetrics) RecordRetry(ctx context.Context, op string) {
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordDerivedFailure counts one failed evaluation or incubation write.
func (m *WorkflowMetrics) RecordDerivedFailure(ctx context.Context, kind string) {
	m.derivedFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
