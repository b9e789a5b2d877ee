package metrics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func TestRecordScanRun(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m, err := New(provider.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordScanRun(ctx, "success", 0.2)
	m.RecordScanRun(ctx, "success", 0.3)
	m.RecordScanRun(ctx, "failed", 1.5)
	m.RecordAlertResolved(ctx, "system")

	got := collect(t, reader)

	runs, ok := got["scan_runs_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	byStatus := map[string]int64{}
	for _, dp := range runs.DataPoints {
		status, _ := dp.Attributes.Value(attribute.Key("status"))
		byStatus[status.AsString()] = dp.Value
	}
	assert.Equal(t, map[string]int64{"success": 2, "failed": 1}, byStatus)

	resolved, ok := got["alerts_resolved_total"].Data.(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, resolved.DataPoints, 1)
	assert.Equal(t, int64(1), resolved.DataPoints[0].Value)
}

func TestGetMetricsWithoutInit(t *testing.T) {
	m := GetMetrics()
	require.NotNil(t, m)
	m.RecordPublish(context.Background(), "redis", "failed")
}
