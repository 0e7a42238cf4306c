package observe

import (
	"context"
	"testing"

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
		{"speakeasy.recognition.duration", m.RecognitionDuration},
		{"speakeasy.stt.duration", m.STTDuration},
	}

	for _, tc := range histograms {
		tc.h.Record(ctx, 0.123)
		tc.h.Record(ctx, 1.456)
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

// sumFor returns the value of the data point of metric name that carries
// attribute key=value.
func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name, key, value string) int64 {
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
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			return dp.Value
		}
	}
	t.Fatalf("metric %q has no data point with %s=%s", name, key, value)
	return 0
}

func TestRecordHelpers(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscript(ctx, "recognized")
	m.RecordTranscript(ctx, "recognized")
	m.RecordTranscript(ctx, "empty")
	m.RecordCommand(ctx, "next", "active", "accepted")
	m.RecordCommand(ctx, "start", "active", "invalid")
	m.RecordCorrection(ctx, "dictionary")
	m.RecordRestart(ctx, "error")
	m.RecordRestart(ctx, "error")
	m.RecordServiceError(ctx, "stream_closed")
	m.RecordTransition(ctx, "idle", "active")
	m.RecordProviderRequest(ctx, "wit", "stt", "ok")
	m.RecordProviderError(ctx, "wit", "stt")

	rm := collect(t, reader)

	tests := []struct {
		name, key, value string
		want             int64
	}{
		{"speakeasy.transcripts", "outcome", "recognized", 2},
		{"speakeasy.transcripts", "outcome", "empty", 1},
		{"speakeasy.commands", "outcome", "invalid", 1},
		{"speakeasy.commands", "command", "next", 1},
		{"speakeasy.corrections", "method", "dictionary", 1},
		{"speakeasy.listen.restarts", "reason", "error", 2},
		{"speakeasy.service.errors", "code", "stream_closed", 1},
		{"speakeasy.session.transitions", "to", "active", 1},
		{"speakeasy.provider.requests", "status", "ok", 1},
		{"speakeasy.provider.errors", "provider", "wit", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name+"/"+tc.value, func(t *testing.T) {
			if got := sumFor(t, rm, tc.name, tc.key, tc.value); got != tc.want {
				t.Errorf("value = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestGauges(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)
	m.BridgeClients.Add(ctx, 3)
	m.StepIndex.Record(ctx, 2)

	rm := collect(t, reader)

	sums := []struct {
		name string
		want int64
	}{
		{"speakeasy.active_sessions", 1},
		{"speakeasy.bridge.clients", 3},
	}
	for _, tc := range sums {
		t.Run(tc.name, func(t *testing.T) {
			met := findMetric(rm, tc.name)
			if met == nil {
				t.Fatalf("metric %q not found", tc.name)
			}
			sum, ok := met.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("metric %q is not a sum", tc.name)
			}
			if got := sum.DataPoints[0].Value; got != tc.want {
				t.Errorf("gauge value = %d, want %d", got, tc.want)
			}
		})
	}

	met := findMetric(rm, "speakeasy.session.step")
	if met == nil {
		t.Fatal("step gauge not found")
	}
	g, ok := met.Data.(metricdata.Gauge[int64])
	if !ok || len(g.DataPoints) == 0 || g.DataPoints[0].Value != 2 {
		t.Errorf("step gauge = %+v, want 2", met.Data)
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
	met := findMetric(rm, "speakeasy.http.request.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatal("metric is not a histogram")
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
