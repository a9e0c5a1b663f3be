// Package observe provides OpenTelemetry metrics for the ducking engine and
// fade controller, the Prometheus bridge that exposes them on /metrics, and
// the /healthz and /readyz handlers served next to it.
//
// Components take a *Metrics; pass [Noop] when nothing should be recorded.
// Tests use [NewMetrics] with a ManualReader-backed provider.
package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/jmylchreest/autoduck"

// Fade event names recorded on [Metrics.FadeEvents].
const (
	FadeStarted    = "started"
	FadeCompleted  = "completed"
	FadeSuperseded = "superseded"
	FadeAbandoned  = "abandoned"
)

// Metrics holds the metric instruments. All fields are safe for concurrent use.
type Metrics struct {
	// PollCycles counts completed poll cycles.
	PollCycles metric.Int64Counter

	// PollErrors counts cycles where session enumeration failed.
	PollErrors metric.Int64Counter

	// PollDuration tracks how long one poll cycle took.
	PollDuration metric.Float64Histogram

	// Transitions counts phase changes. Attribute: phase.
	Transitions metric.Int64Counter

	// Phase is 1 while ducked and 0 otherwise.
	Phase metric.Int64Gauge

	// FadeEvents counts fade job lifecycle events. Attributes: event.
	FadeEvents metric.Int64Counter
}

var pollBuckets = []float64{
	0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5,
}

// NewMetrics creates all instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.PollCycles, err = m.Int64Counter("autoduck.poll.cycles",
		metric.WithDescription("Completed engine poll cycles."),
	); err != nil {
		return nil, err
	}
	if met.PollErrors, err = m.Int64Counter("autoduck.poll.errors",
		metric.WithDescription("Poll cycles where the audio subsystem could not be enumerated."),
	); err != nil {
		return nil, err
	}
	if met.PollDuration, err = m.Float64Histogram("autoduck.poll.duration",
		metric.WithDescription("Duration of one engine poll cycle."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(pollBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Transitions, err = m.Int64Counter("autoduck.transitions",
		metric.WithDescription("Duck and restore transitions by target phase."),
	); err != nil {
		return nil, err
	}
	if met.Phase, err = m.Int64Gauge("autoduck.phase",
		metric.WithDescription("Current engine phase: 1 when ducked, 0 when normal."),
	); err != nil {
		return nil, err
	}
	if met.FadeEvents, err = m.Int64Counter("autoduck.fade.events",
		metric.WithDescription("Fade job lifecycle events by event name."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Noop returns Metrics that record nothing.
func Noop() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic("observe: noop metrics: " + err.Error())
	}
	return m
}

// RecordTransition records a phase change and updates the phase gauge.
func (m *Metrics) RecordTransition(ctx context.Context, phase string, ducked bool) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
	var v int64
	if ducked {
		v = 1
	}
	m.Phase.Record(ctx, v)
}

// RecordFade records one fade lifecycle event.
func (m *Metrics) RecordFade(ctx context.Context, event string) {
	m.FadeEvents.Add(ctx, 1, metric.WithAttributes(attribute.String("event", event)))
}

// RecordPoll records one poll cycle and its duration in seconds.
func (m *Metrics) RecordPoll(ctx context.Context, seconds float64, failed bool) {
	m.PollCycles.Add(ctx, 1)
	m.PollDuration.Record(ctx, seconds)
	if failed {
		m.PollErrors.Add(ctx, 1)
	}
}
