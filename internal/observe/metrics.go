// Package observe provides the observability primitives shared by every
// speakeasy component: OpenTelemetry metrics, tracing, trace-aware logging
// and HTTP middleware.
//
// Metrics go through the OpenTelemetry Metrics API and are scraped from
// /metrics through the Prometheus exporter set up by [InitProvider]. Code
// under test should build its own [Metrics] with [NewMetrics] and a manual
// reader instead of touching [DefaultMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/speakeasy"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// RecognitionDuration tracks the time from activating the recognizer to
	// receiving the full transcript.
	RecognitionDuration metric.Float64Histogram

	// STTDuration tracks single provider transcription calls.
	STTDuration metric.Float64Histogram

	// --- Counters ---

	// Transcripts counts full transcripts. Attribute "outcome" is one of
	// recognized, unrecognized, empty.
	Transcripts metric.Int64Counter

	// Commands counts interpreted commands. Attributes "command", "state"
	// and "outcome" (accepted or invalid).
	Commands metric.Int64Counter

	// Corrections counts normalizer substitutions by "method".
	Corrections metric.Int64Counter

	// ListenRestarts counts scheduled listening restarts by "reason".
	ListenRestarts metric.Int64Counter

	// RetriesExhausted counts how often the retry limit was hit.
	RetriesExhausted metric.Int64Counter

	// ServiceErrors counts recognizer errors by "code".
	ServiceErrors metric.Int64Counter

	// Transitions counts session state changes by "from" and "to".
	Transitions metric.Int64Counter

	// ProviderRequests counts provider API calls by "provider", "kind" and
	// "status".
	ProviderRequests metric.Int64Counter

	// ProviderErrors counts provider errors by "provider" and "kind".
	ProviderErrors metric.Int64Counter

	// JournalDropped counts journal entries dropped under back-pressure.
	JournalDropped metric.Int64Counter

	// --- Gauges ---

	// ActiveSessions is 1 while a session is running.
	ActiveSessions metric.Int64UpDownCounter

	// BridgeClients tracks connected WebSocket bridge clients.
	BridgeClients metric.Int64UpDownCounter

	// StepIndex reports the current step index.
	StepIndex metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time by "method"
	// and "path".
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries in seconds. Recognition
// includes the user's own speaking time, hence the long tail.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 10, 20,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.RecognitionDuration, err = m.Float64Histogram("speakeasy.recognition.duration",
		metric.WithDescription("Time from recognizer activation to full transcript."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.STTDuration, err = m.Float64Histogram("speakeasy.stt.duration",
		metric.WithDescription("Latency of a single speech-to-text provider call."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Transcripts, "speakeasy.transcripts", "Full transcripts by outcome."},
		{&met.Commands, "speakeasy.commands", "Interpreted commands by command, state and outcome."},
		{&met.Corrections, "speakeasy.corrections", "Transcript corrections by method."},
		{&met.ListenRestarts, "speakeasy.listen.restarts", "Scheduled listening restarts by reason."},
		{&met.RetriesExhausted, "speakeasy.listen.retries_exhausted", "Times the retry limit was reached."},
		{&met.ServiceErrors, "speakeasy.service.errors", "Recognizer errors by code."},
		{&met.Transitions, "speakeasy.session.transitions", "Session state transitions by from and to."},
		{&met.ProviderRequests, "speakeasy.provider.requests", "Total provider API requests by provider, kind, and status."},
		{&met.ProviderErrors, "speakeasy.provider.errors", "Total provider errors by provider and kind."},
		{&met.JournalDropped, "speakeasy.journal.dropped", "Journal entries dropped because the writer fell behind."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("speakeasy.active_sessions",
		metric.WithDescription("Number of running sessions."),
	); err != nil {
		return nil, err
	}
	if met.BridgeClients, err = m.Int64UpDownCounter("speakeasy.bridge.clients",
		metric.WithDescription("Connected WebSocket bridge clients."),
	); err != nil {
		return nil, err
	}
	if met.StepIndex, err = m.Int64Gauge("speakeasy.session.step",
		metric.WithDescription("Current step index, -1 when idle."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("speakeasy.http.request.duration",
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
// first call using [otel.GetMeterProvider]. Panics if instrument creation
// fails, which does not happen with the global provider.
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

// Attr is a convenience alias for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordTranscript counts a full transcript with the given outcome.
func (m *Metrics) RecordTranscript(ctx context.Context, outcome string) {
	m.Transcripts.Add(ctx, 1, metric.WithAttributes(Attr("outcome", outcome)))
}

// RecordCommand counts an interpreted command.
func (m *Metrics) RecordCommand(ctx context.Context, command, state, outcome string) {
	m.Commands.Add(ctx, 1, metric.WithAttributes(
		Attr("command", command),
		Attr("state", state),
		Attr("outcome", outcome),
	))
}

// RecordCorrection counts a transcript correction.
func (m *Metrics) RecordCorrection(ctx context.Context, method string) {
	m.Corrections.Add(ctx, 1, metric.WithAttributes(Attr("method", method)))
}

// RecordRestart counts a scheduled listening restart.
func (m *Metrics) RecordRestart(ctx context.Context, reason string) {
	m.ListenRestarts.Add(ctx, 1, metric.WithAttributes(Attr("reason", reason)))
}

// RecordServiceError counts a recognizer error.
func (m *Metrics) RecordServiceError(ctx context.Context, code string) {
	m.ServiceErrors.Add(ctx, 1, metric.WithAttributes(Attr("code", code)))
}

// RecordTransition counts a session state change.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	m.Transitions.Add(ctx, 1, metric.WithAttributes(Attr("from", from), Attr("to", to)))
}

// RecordProviderRequest counts a provider call with the standard attribute
// set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			Attr("provider", provider),
			Attr("kind", kind),
			Attr("status", status),
		),
	)
}

// RecordProviderError counts a provider error.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			Attr("provider", provider),
			Attr("kind", kind),
		),
	)
}
