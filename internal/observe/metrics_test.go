package observe

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader for
// programmatic metric inspection.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all metric data from the reader.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

// findMetric searches for a metric by name across all scope metrics.
func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

// counterValue returns the value of the data point of counter name whose
// attribute key equals value. ok is false when no such point exists.
func counterValue(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) (int64, bool) {
	t.Helper()
	met := findMetric(rm, name)
	if met == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q is not a sum", name)
	}
	for _, dp := range sum.DataPoints {
		if key == "" {
			return dp.Value, true
		}
		if v, found := dp.Attributes.Value(attribute.Key(key)); found && v.AsString() == value {
			return dp.Value, true
		}
	}
	return 0, false
}

func TestNewMetrics_CreatesWithoutError(t *testing.T) {
	m, _ := newTestMetrics(t)
	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}
}

func TestHistogramObservation(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	histograms := []struct {
		name string
		h    metric.Float64Histogram
	}{
		{"interviewcoach.analysis.duration", m.AnalysisDuration},
		{"interviewcoach.backend.duration", m.BackendDuration},
		{"interviewcoach.coach.duration", m.CoachDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 0.456)
	}

	rm := collect(t, reader)

	for _, tc := range histograms {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("metric %q is not a histogram", tc.name)
			}
			if len(hist.DataPoints) == 0 {
				t.Fatalf("metric %q has no data points", tc.name)
			}
			if got := hist.DataPoints[0].Count; got != 2 {
				t.Errorf("sample count = %d, want 2", got)
			}
		})
	}
}

func TestRecordAnalysis(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordAnalysis(ctx, "model", "ok", 20*time.Millisecond)
	m.RecordAnalysis(ctx, "model", "ok", 30*time.Millisecond)
	m.RecordAnalysis(ctx, "model", "skipped", 0)

	rm := collect(t, reader)
	if got, ok := counterValue(t, rm, "interviewcoach.analysis.ticks", "status", "ok"); !ok || got != 2 {
		t.Errorf("ok ticks = %d (found %v), want 2", got, ok)
	}
	if got, ok := counterValue(t, rm, "interviewcoach.analysis.ticks", "status", "skipped"); !ok || got != 1 {
		t.Errorf("skipped ticks = %d (found %v), want 1", got, ok)
	}

	hist, ok := findMetric(rm, "interviewcoach.analysis.duration").Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 {
		t.Fatal("analysis duration histogram missing")
	}
	if got := hist.DataPoints[0].Count; got != 2 {
		t.Errorf("duration samples = %d, want 2 (skipped ticks are not timed)", got)
	}
}

func TestMonitorCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordSpeechEdge(ctx, "start")
	m.RecordSpeechEdge(ctx, "start")
	m.RecordSpeechEdge(ctx, "stop")
	m.RecordDecay(ctx, "presence")
	m.RecordDecay(ctx, "engagement")
	m.RecordDecay(ctx, "presence")
	m.RecordSilenceAlert(ctx)
	m.RecordAutoAdvance(ctx, "silence")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"interviewcoach.speech.edges", "edge", "start", 2},
		{"interviewcoach.speech.edges", "edge", "stop", 1},
		{"interviewcoach.monitor.decays", "kind", "presence", 2},
		{"interviewcoach.monitor.decays", "kind", "engagement", 1},
		{"interviewcoach.monitor.silence_alerts", "", "", 1},
		{"interviewcoach.interview.auto_advances", "reason", "silence", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.value, func(t *testing.T) {
			got, ok := counterValue(t, rm, tc.name, tc.key, tc.value)
			if !ok {
				t.Fatalf("data point %s=%s not found", tc.key, tc.value)
			}
			if got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestTransportAndSubmissionCounters(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTransportMessage(ctx, "out", "facial_analysis")
	m.RecordTransportMessage(ctx, "out", "facial_analysis")
	m.RecordTransportMessage(ctx, "in", "analysis_result")
	m.RecordSubmission(ctx, "error")
	m.RecordSubmission(ctx, "ok")
	m.RecordBreakerTransition(ctx, "backend.submit", "open")

	rm := collect(t, reader)
	if got, ok := counterValue(t, rm, "interviewcoach.transport.messages", "type", "facial_analysis"); !ok || got != 2 {
		t.Errorf("facial_analysis = %d (found %v), want 2", got, ok)
	}
	if got, ok := counterValue(t, rm, "interviewcoach.submissions", "status", "ok"); !ok || got != 1 {
		t.Errorf("ok submissions = %d (found %v), want 1", got, ok)
	}
	if got, ok := counterValue(t, rm, "interviewcoach.breaker.transitions", "to", "open"); !ok || got != 1 {
		t.Errorf("breaker transitions = %d (found %v), want 1", got, ok)
	}
}

func TestRecordBackendCall(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordBackendCall(ctx, "questions", "ok", 80*time.Millisecond)

	rm := collect(t, reader)
	met := findMetric(rm, "interviewcoach.backend.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
	if v, ok := hist.DataPoints[0].Attributes.Value("endpoint"); !ok || v.AsString() != "questions" {
		t.Errorf("endpoint attribute = %v", v)
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	rm := collect(t, reader)
	if got, ok := counterValue(t, rm, "interviewcoach.active_sessions", "", ""); !ok || got != 1 {
		t.Errorf("active sessions = %d (found %v), want 1", got, ok)
	}
}

func TestHTTPRequestDuration(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.HTTPRequestDuration.Record(ctx, 0.05,
		metric.WithAttributes(
			attribute.String("method", "GET"),
			attribute.String("path", "/healthz"),
		),
	)

	rm := collect(t, reader)
	met := findMetric(rm, "interviewcoach.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
	}
	if len(hist.DataPoints) == 0 {
		t.Fatal("no data points")
	}
	if got := hist.DataPoints[0].Count; got != 1 {
		t.Errorf("sample count = %d, want 1", got)
	}
}

func TestDefaultMetrics_ReturnsSameInstance(t *testing.T) {
	// DefaultMetrics uses the global OTel provider so we just check
	// that repeated calls return the same pointer.
	a := DefaultMetrics()
	b := DefaultMetrics()
	if a != b {
		t.Error("DefaultMetrics returned different pointers")
	}
}
