// Package observe provides observability primitives for Murajaah:
// OpenTelemetry metrics and a Prometheus exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter is wired up via [InitProvider] so metrics can be scraped from the
// standard /metrics endpoint. A package-level default [Metrics] instance
// ([DefaultMetrics]) is provided for convenience; tests should use
// [NewMetrics] with a custom [metric.MeterProvider] to avoid cross-test
// pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Murajaah metrics.
const meterName = "github.com/qariapp/murajaah"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// AttemptDuration tracks how long the learner took from the start of
	// listening to a scored transcript.
	AttemptDuration metric.Float64Histogram

	// Attempts counts scored recitation attempts. Use with attribute:
	//   attribute.String("verdict", "accepted"|"rejected")
	Attempts metric.Int64Counter

	// PhasesCompleted counts whole-phase completions.
	PhasesCompleted metric.Int64Counter

	// PlaybackErrors counts reference-audio playback failures.
	PlaybackErrors metric.Int64Counter

	// RecognitionErrors counts speech-recognition failures during listening.
	RecognitionErrors metric.Int64Counter

	// ActiveSessions tracks the number of live recitation sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// attemptBuckets defines histogram bucket boundaries (in seconds) sized for
// human-paced recitation: a short verse takes a few seconds, a hesitant
// learner can take a minute.
var attemptBuckets = []float64{
	1, 2.5, 5, 10, 15, 30, 60, 120,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.AttemptDuration, err = m.Float64Histogram("murajaah.attempt.duration",
		metric.WithDescription("Time from listening start to a scored transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(attemptBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Attempts, err = m.Int64Counter("murajaah.attempts",
		metric.WithDescription("Total scored recitation attempts by verdict."),
	); err != nil {
		return nil, err
	}
	if met.PhasesCompleted, err = m.Int64Counter("murajaah.phases.completed",
		metric.WithDescription("Total whole-phase completions."),
	); err != nil {
		return nil, err
	}

	if met.PlaybackErrors, err = m.Int64Counter("murajaah.playback.errors",
		metric.WithDescription("Total reference-audio playback failures."),
	); err != nil {
		return nil, err
	}
	if met.RecognitionErrors, err = m.Int64Counter("murajaah.recognition.errors",
		metric.WithDescription("Total speech-recognition failures during listening."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("murajaah.active_sessions",
		metric.WithDescription("Number of live recitation sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("murajaah.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordAttempt records one scored attempt: its duration and its verdict.
func (m *Metrics) RecordAttempt(ctx context.Context, seconds float64, accepted bool) {
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	m.AttemptDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("verdict", verdict)))
	m.Attempts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("verdict", verdict)))
}

// RecordPlaybackError records a reference-audio playback failure.
func (m *Metrics) RecordPlaybackError(ctx context.Context, passageID string) {
	m.PlaybackErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("passage", passageID)))
}

// RecordRecognitionError records a speech-recognition failure.
func (m *Metrics) RecordRecognitionError(ctx context.Context) {
	m.RecognitionErrors.Add(ctx, 1)
}

// RecordPhaseCompleted records a whole-phase completion.
func (m *Metrics) RecordPhaseCompleted(ctx context.Context, passageID, phaseLabel string) {
	m.PhasesCompleted.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("passage", passageID),
			attribute.String("phase", phaseLabel),
		),
	)
}
