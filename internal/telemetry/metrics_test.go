package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := map[string]metricdata.Aggregation{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestWorkflowMetrics_Records(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := NewWorkflowMetrics(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordTransition(ctx, "submitted", "under_review", OutcomeOK, 12*time.Millisecond)
	m.RecordTransition(ctx, "endorsed", "endorsed", OutcomeInvalidTransition, time.Millisecond)
	m.RecordRetry(ctx, "update_idea_status")
	m.RecordDerivedFailure(ctx, "incubation")

	data := collect(t, reader)

	transitions, ok := data["ideaflow.workflow.transitions"].(metricdata.Sum[int64])
	require.True(t, ok)
	var total int64
	for _, dp := range transitions.DataPoints {
		total += dp.Value
	}
	assert.Equal(t, int64(2), total)
	assert.Len(t, transitions.DataPoints, 2)

	hist, ok := data["ideaflow.workflow.transition.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	assert.Len(t, hist.DataPoints, 2)

	retries, ok := data["ideaflow.store.retries"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, retries.DataPoints, 1)
	assert.Equal(t, int64(1), retries.DataPoints[0].Value)

	derived, ok := data["ideaflow.workflow.derived_failures"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, derived.DataPoints, 1)
}

func TestInit_DisabledInstallsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{Enabled: false})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))

	_, span := Tracer().Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
}

func TestNopWorkflowMetrics(t *testing.T) {
	m := NopWorkflowMetrics()
	require.NotNil(t, m)
	m.RecordRetry(context.Background(), "x")
}
