// Package observe provides application-wide observability primitives for
// interviewcoach: OpenTelemetry metrics, distributed tracing, structured
// logging, and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint of the debug server. A
// package-level default [Metrics] instance ([DefaultMetrics]) is provided for
// convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all interviewcoach metrics.
const meterName = "github.com/MrWong99/interviewcoach"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// AnalysisDuration tracks how long one face/expression analysis tick
	// takes. Use with attribute.String("mode", "model"|"fallback").
	AnalysisDuration metric.Float64Histogram

	// BackendDuration tracks backend HTTP call latency. Use with
	//   attribute.String("endpoint", ...), attribute.String("status", ...)
	BackendDuration metric.Float64Histogram

	// CoachDuration tracks LLM coaching-note latency.
	CoachDuration metric.Float64Histogram

	// --- Counters ---

	// AnalysisTicks counts analysis ticks. Use with attributes:
	//   attribute.String("mode", ...), attribute.String("status", "ok"|"skipped"|"error")
	AnalysisTicks metric.Int64Counter

	// SpeechEdges counts speaking transitions. Use with attribute:
	//   attribute.String("edge", "start"|"stop")
	SpeechEdges metric.Int64Counter

	// Decays counts applied score decays. Use with attribute:
	//   attribute.String("kind", "presence"|"engagement")
	Decays metric.Int64Counter

	// SilenceAlerts counts raised "you've been quiet" alerts.
	SilenceAlerts metric.Int64Counter

	// AutoAdvances counts questions advanced without a user action. Use with
	//   attribute.String("reason", "silence"|"time_limit")
	AutoAdvances metric.Int64Counter

	// TransportMessages counts WebSocket messages. Use with attributes:
	//   attribute.String("direction", "in"|"out"), attribute.String("type", ...)
	TransportMessages metric.Int64Counter

	// Submissions counts session submissions. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Submissions metric.Int64Counter

	// BreakerTransitions counts circuit breaker state changes. Use with attributes:
	//   attribute.String("breaker", ...), attribute.String("to", "open"|"half-open"|"closed")
	BreakerTransitions metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions tracks the number of interview sessions currently recording.
	ActiveSessions metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks debug-server request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// per-frame analysis and backend round trips.
var latencyBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.AnalysisDuration, err = m.Float64Histogram("interviewcoach.analysis.duration",
		metric.WithDescription("Latency of one face/expression analysis tick."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.BackendDuration, err = m.Float64Histogram("interviewcoach.backend.duration",
		metric.WithDescription("Latency of backend HTTP calls by endpoint and status."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CoachDuration, err = m.Float64Histogram("interviewcoach.coach.duration",
		metric.WithDescription("Latency of LLM coaching-note generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.AnalysisTicks, err = m.Int64Counter("interviewcoach.analysis.ticks",
		metric.WithDescription("Total analysis ticks by mode and status."),
	); err != nil {
		return nil, err
	}
	if met.SpeechEdges, err = m.Int64Counter("interviewcoach.speech.edges",
		metric.WithDescription("Total speaking transitions by edge."),
	); err != nil {
		return nil, err
	}
	if met.Decays, err = m.Int64Counter("interviewcoach.monitor.decays",
		metric.WithDescription("Total score decays by kind."),
	); err != nil {
		return nil, err
	}
	if met.SilenceAlerts, err = m.Int64Counter("interviewcoach.monitor.silence_alerts",
		metric.WithDescription("Total silence alerts raised."),
	); err != nil {
		return nil, err
	}
	if met.AutoAdvances, err = m.Int64Counter("interviewcoach.interview.auto_advances",
		metric.WithDescription("Total automatic question advances by reason."),
	); err != nil {
		return nil, err
	}
	if met.TransportMessages, err = m.Int64Counter("interviewcoach.transport.messages",
		metric.WithDescription("Total WebSocket messages by direction and type."),
	); err != nil {
		return nil, err
	}
	if met.Submissions, err = m.Int64Counter("interviewcoach.submissions",
		metric.WithDescription("Total session submissions by status."),
	); err != nil {
		return nil, err
	}

	if met.BreakerTransitions, err = m.Int64Counter("interviewcoach.breaker.transitions",
		metric.WithDescription("Total circuit breaker state changes by breaker and target state."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveSessions, err = m.Int64UpDownCounter("interviewcoach.active_sessions",
		metric.WithDescription("Number of interview sessions currently recording."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("interviewcoach.http.request.duration",
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordAnalysis records one analysis tick and, for completed ticks, its latency.
func (m *Metrics) RecordAnalysis(ctx context.Context, mode, status string, d time.Duration) {
	m.AnalysisTicks.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("mode", mode),
			attribute.String("status", status),
		),
	)
	if status == "ok" {
		m.AnalysisDuration.Record(ctx, d.Seconds(),
			metric.WithAttributes(attribute.String("mode", mode)),
		)
	}
}

// RecordSpeechEdge records a speaking transition ("start" or "stop").
func (m *Metrics) RecordSpeechEdge(ctx context.Context, edge string) {
	m.SpeechEdges.Add(ctx, 1, metric.WithAttributes(attribute.String("edge", edge)))
}

// RecordDecay records an applied decay ("presence" or "engagement").
func (m *Metrics) RecordDecay(ctx context.Context, kind string) {
	m.Decays.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordSilenceAlert records a raised silence alert.
func (m *Metrics) RecordSilenceAlert(ctx context.Context) {
	m.SilenceAlerts.Add(ctx, 1)
}

// RecordAutoAdvance records an automatic question advance.
func (m *Metrics) RecordAutoAdvance(ctx context.Context, reason string) {
	m.AutoAdvances.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// RecordTransportMessage records a WebSocket message in the given direction.
func (m *Metrics) RecordTransportMessage(ctx context.Context, direction, msgType string) {
	m.TransportMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("direction", direction),
			attribute.String("type", msgType),
		),
	)
}

// RecordSubmission records a session submission attempt.
func (m *Metrics) RecordSubmission(ctx context.Context, status string) {
	m.Submissions.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordBreakerTransition records a circuit breaker moving to state to.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, to string) {
	m.BreakerTransitions.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("breaker", breaker),
			attribute.String("to", to),
		),
	)
}

// RecordBackendCall records the latency of a backend HTTP call.
func (m *Metrics) RecordBackendCall(ctx context.Context, endpoint, status string, d time.Duration) {
	m.BackendDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(
			attribute.String("endpoint", endpoint),
			attribute.String("status", status),
		),
	)
}
