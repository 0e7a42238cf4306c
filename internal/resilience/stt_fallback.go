package resilience

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

// STTOption configures an [STTFallback].
type STTOption func(*STTFallback)

// WithSTTMetrics sets the metrics sink for per-provider request counts.
// Defaults to [observe.DefaultMetrics].
func WithSTTMetrics(m *observe.Metrics) STTOption {
	return func(f *STTFallback) { f.metrics = m }
}

// STTFallback implements [stt.Provider] with automatic failover across
// several recognizers. Each backend has its own circuit breaker, so a
// recognizer that keeps failing is skipped until its breaker half-opens.
type STTFallback struct {
	group   *FallbackGroup[stt.Provider]
	names   []string
	metrics *observe.Metrics
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
//
// Breaker transitions are logged unless cfg already carries an
// OnStateChange callback.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig, opts ...STTOption) *STTFallback {
	f := &STTFallback{metrics: observe.DefaultMetrics()}
	for _, o := range opts {
		o(f)
	}
	if cfg.CircuitBreaker.OnStateChange == nil {
		cfg.CircuitBreaker.OnStateChange = logTransition
	}
	f.group = NewFallbackGroup[stt.Provider](f.instrument(primaryName, primary), primaryName, cfg)
	f.names = []string{primaryName}
	return f
}

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, f.instrument(name, provider))
	f.names = append(f.names, name)
}

// Names returns the provider names in failover order.
func (f *STTFallback) Names() []string { return f.names }

// Health returns each recognizer's breaker state in failover order.
func (f *STTFallback) Health() []EntryHealth { return f.group.Health() }

// Available reports whether any recognizer would currently be tried.
func (f *STTFallback) Available() bool { return f.group.Available() }

// StartStream opens a transcription session against the first healthy
// provider. If the primary fails to start the stream, subsequent fallbacks
// are tried.
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return Run(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

func logTransition(name string, from, to State) {
	level := slog.LevelInfo
	if to == StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "resilience: recognizer circuit changed",
		"provider", name, "from", from, "to", to)
}

func (f *STTFallback) instrument(name string, p stt.Provider) stt.Provider {
	return &instrumented{name: name, next: p, metrics: f.metrics}
}

// instrumented records a span and request metrics for every StartStream.
type instrumented struct {
	name    string
	next    stt.Provider
	metrics *observe.Metrics
}

func (p *instrumented) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	ctx, span := observe.StartSpan(ctx, "stt.start_stream",
		trace.WithAttributes(attribute.String("stt.provider", p.name)))
	defer span.End()

	h, err := p.next.StartStream(ctx, cfg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.RecordProviderRequest(ctx, p.name, "stt", "error")
		p.metrics.RecordProviderError(ctx, p.name, "stt")
		return nil, err
	}
	p.metrics.RecordProviderRequest(ctx, p.name, "stt", "ok")
	return h, nil
}
