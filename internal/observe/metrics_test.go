package observe

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	require.NoError(t, err)
	return m, reader
}

func findMetric(t *testing.T, reader *sdkmetric.ManualReader, name string) *metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestRecordTransition(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransition(ctx, "ducked", true)
	m.RecordTransition(ctx, "normal", false)
	m.RecordTransition(ctx, "ducked", true)

	got := findMetric(t, reader, "autoduck.transitions")
	require.NotNil(t, got)
	sum, ok := got.Data.(metricdata.Sum[int64])
	require.True(t, ok)

	counts := map[string]int64{}
	for _, dp := range sum.DataPoints {
		v, _ := dp.Attributes.Value("phase")
		counts[v.AsString()] = dp.Value
	}
	assert.Equal(t, int64(2), counts["ducked"])
	assert.Equal(t, int64(1), counts["normal"])

	phase := findMetric(t, reader, "autoduck.phase")
	require.NotNil(t, phase)
	gauge, ok := phase.Data.(metricdata.Gauge[int64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.Equal(t, int64(1), gauge.DataPoints[0].Value)
}

func TestRecordPoll(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordPoll(ctx, 0.002, false)
	m.RecordPoll(ctx, 0.004, true)

	cycles := findMetric(t, reader, "autoduck.poll.cycles")
	require.NotNil(t, cycles)
	assert.Equal(t, int64(2), cycles.Data.(metricdata.Sum[int64]).DataPoints[0].Value)

	errs := findMetric(t, reader, "autoduck.poll.errors")
	require.NotNil(t, errs)
	assert.Equal(t, int64(1), errs.Data.(metricdata.Sum[int64]).DataPoints[0].Value)

	dur := findMetric(t, reader, "autoduck.poll.duration")
	require.NotNil(t, dur)
	assert.Equal(t, uint64(2), dur.Data.(metricdata.Histogram[float64]).DataPoints[0].Count)
}

func TestRecordFade(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordFade(ctx, FadeStarted)
	m.RecordFade(ctx, FadeStarted)
	m.RecordFade(ctx, FadeSuperseded)

	got := findMetric(t, reader, "autoduck.fade.events")
	require.NotNil(t, got)
	counts := map[string]int64{}
	for _, dp := range got.Data.(metricdata.Sum[int64]).DataPoints {
		v, _ := dp.Attributes.Value("event")
		counts[v.AsString()] = dp.Value
	}
	assert.Equal(t, int64(2), counts[FadeStarted])
	assert.Equal(t, int64(1), counts[FadeSuperseded])
}

func TestNoop(t *testing.T) {
	m := Noop()
	assert.NotPanics(t, func() {
		m.RecordPoll(context.Background(), 1, true)
		m.RecordFade(context.Background(), FadeCompleted)
		m.RecordTransition(context.Background(), "normal", false)
	})
}
