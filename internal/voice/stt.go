package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
)

// Error and abort codes emitted by [STTService].
const (
	CodeStreamClosed = "stream_closed"
	CodeAudioCapture = "audio_capture"
	CodeNoSpeech     = "no_speech"

	// CodeActivateFailed means the provider session or the audio source
	// could not be opened.
	CodeActivateFailed = "activate_failed"
)

// DefaultListenTimeout bounds one activation.
const DefaultListenTimeout = 10 * time.Second

// ErrNoProvider is returned by Activate when the service was built without a
// recognizer.
var ErrNoProvider = errors.New("voice: no speech provider")

// STTOption configures an [STTService].
type STTOption func(*STTService)

// WithListenTimeout sets how long one activation waits for a final
// transcript before it is aborted.
func WithListenTimeout(d time.Duration) STTOption {
	return func(s *STTService) { s.listenTimeout = d }
}

// WithStreamConfig sets the format and hints passed to the provider.
func WithStreamConfig(cfg stt.StreamConfig) STTOption {
	return func(s *STTService) { s.streamCfg = cfg }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) STTOption {
	return func(s *STTService) { s.metrics = m }
}

var _ Service = (*STTService)(nil)

// STTService adapts a streaming [stt.Provider] and an [audio.Source] to
// [Service]. Each activation opens a provider session, streams captured
// audio into it and ends after the first final transcript.
type STTService struct {
	provider      stt.Provider
	source        audio.Source
	streamCfg     stt.StreamConfig
	listenTimeout time.Duration
	metrics       *observe.Metrics
	events        chan Event

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc
	gen    uint64
}

// NewSTTService returns an STTService. provider may be nil when no
// recognizer is configured; Activate then fails with [ErrNoProvider].
func NewSTTService(provider stt.Provider, source audio.Source, opts ...STTOption) *STTService {
	s := &STTService{
		provider:      provider,
		source:        source,
		streamCfg:     stt.StreamConfig{SampleRate: 16000, Channels: 1},
		listenTimeout: DefaultListenTimeout,
		metrics:       observe.DefaultMetrics(),
		events:        make(chan Event, 64),
	}
	for _, o := range opts {
		o(s)
	}
	if s.listenTimeout <= 0 {
		s.listenTimeout = DefaultListenTimeout
	}
	return s
}

// Events implements [Service].
func (s *STTService) Events() <-chan Event { return s.events }

// Active implements [Service].
func (s *STTService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Activate implements [Service]. It is a no-op while already active.
//
// Activate does not wait for the provider: the stream and the audio source
// are opened by a background goroutine, so a slow dial never blocks the
// caller. If opening fails, an [EventError] with [CodeActivateFailed] follows
// on the Events channel and the service becomes inactive again.
func (s *STTService) Activate(ctx context.Context) error {
	if s.provider == nil {
		return ErrNoProvider
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}

	cctx, cancel := context.WithCancel(ctx)
	s.gen++
	s.active = true
	s.cancel = cancel
	go s.run(cctx, s.gen)
	return nil
}

// open starts the provider session and the audio capture for one
// activation.
func (s *STTService) open(ctx context.Context) (stt.SessionHandle, <-chan audio.AudioFrame, error) {
	ctx, span := observe.StartSpan(ctx, "voice.activate")
	defer span.End()

	handle, err := s.provider.StartStream(ctx, s.streamCfg)
	if err != nil {
		span.RecordError(err)
		return nil, nil, fmt.Errorf("voice: start stream: %w", err)
	}
	frames, err := s.source.Open(ctx)
	if err != nil {
		span.RecordError(err)
		_ = handle.Close()
		return nil, nil, fmt.Errorf("voice: open audio source: %w", err)
	}
	return handle, frames, nil
}

// started emits [EventStartListening] if activation gen is still live.
func (s *STTService) started(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || !s.active {
		return false
	}
	s.emit(Event{Kind: EventStartListening})
	return true
}

// finish ends activation gen. It reports whether gen is still the latest
// activation and whether it was still active, that is, not deactivated.
func (s *STTService) finish(gen uint64) (current, active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false, false
	}
	if s.active {
		s.active = false
		s.cancel()
		active = true
	}
	return true, active
}

// Deactivate implements [Service].
func (s *STTService) Deactivate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return nil
	}
	s.active = false
	s.cancel()
	return nil
}

// Close stops any activation and releases the audio source.
func (s *STTService) Close() error {
	_ = s.Deactivate()
	if s.source == nil {
		return nil
	}
	return s.source.Close()
}

func (s *STTService) run(ctx context.Context, gen uint64) {
	handle, frames, err := s.open(ctx)
	if err != nil {
		cancelled := ctx.Err() != nil
		if _, active := s.finish(gen); active && !cancelled {
			slog.Warn("voice: activation failed", "error", err)
			s.emit(Event{Kind: EventError, Code: CodeActivateFailed, Message: err.Error()})
		}
		return
	}
	if !s.started(gen) {
		_ = handle.Close()
		return
	}

	start := time.Now()
	captureDone := make(chan struct{})
	go s.pump(handle, frames, captureDone)

	timer := time.NewTimer(s.listenTimeout)
	defer timer.Stop()

	partials := handle.Partials()
	finals := handle.Finals()
	var final *Event

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-timer.C:
			slog.Debug("voice: listen timeout", "timeout", s.listenTimeout)
			final = &Event{Kind: EventAborted, Code: CodeNoSpeech, Message: "no speech detected"}
			break loop
		case <-captureDone:
			captureDone = nil
			if ctx.Err() == nil {
				final = &Event{Kind: EventError, Code: CodeAudioCapture, Message: "audio capture stopped"}
				break loop
			}
		case p, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if p.Text != "" {
				s.emit(Event{Kind: EventPartialTranscript, Text: p.Text})
			}
		case f, ok := <-finals:
			if !ok {
				if ctx.Err() == nil {
					final = &Event{Kind: EventError, Code: CodeStreamClosed, Message: "speech service closed the stream"}
				}
				break loop
			}
			s.metrics.RecognitionDuration.Record(ctx, time.Since(start).Seconds())
			final = &Event{Kind: EventFullTranscript, Text: f.Text, Intents: f.Intents}
			break loop
		}
	}

	if err := handle.Close(); err != nil {
		slog.Debug("voice: closing stt session", "error", err)
	}

	if current, _ := s.finish(gen); !current {
		return
	}
	if final != nil {
		s.emit(*final)
	}
	s.emit(Event{Kind: EventStoppedListening})
}

// pump forwards captured frames to the provider until the source closes.
func (s *STTService) pump(handle stt.SessionHandle, frames <-chan audio.AudioFrame, done chan<- struct{}) {
	defer close(done)
	conv := &audio.FormatConverter{Target: audio.Format{SampleRate: s.streamCfg.SampleRate, Channels: s.streamCfg.Channels}}
	for f := range frames {
		f = conv.Convert(f)
		if len(f.Data) == 0 {
			continue
		}
		if err := handle.SendAudio(f.Data); err != nil {
			slog.Debug("voice: send audio failed", "error", err)
			for range frames {
			}
			return
		}
	}
}

func (s *STTService) emit(e Event) {
	select {
	case s.events <- e:
	default:
		slog.Warn("voice: event buffer full, dropping event", "kind", e.Kind)
	}
}
