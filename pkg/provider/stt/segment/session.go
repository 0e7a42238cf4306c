package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/types"
)

// ErrSessionClosed is returned by SendAudio after the session ended.
var ErrSessionClosed = errors.New("segment: session is closed")

// finalFlushTimeout bounds the transcription of the tail on Close.
const finalFlushTimeout = 30 * time.Second

// Utterance is one segmented recording.
type Utterance struct {
	// PCM is 16-bit little-endian audio.
	PCM        []byte
	SampleRate int
	Channels   int
	Language   string
	Keywords   []types.KeywordBoost
}

// Duration returns the play time of the utterance.
func (u Utterance) Duration() time.Duration {
	return Duration(len(u.PCM), u.SampleRate, u.Channels)
}

// Transcriber recognizes a single utterance.
type Transcriber interface {
	Transcribe(ctx context.Context, u Utterance) (types.Transcript, error)
}

// TranscribeFunc adapts a function to [Transcriber].
type TranscribeFunc func(ctx context.Context, u Utterance) (types.Transcript, error)

// Transcribe implements [Transcriber].
func (f TranscribeFunc) Transcribe(ctx context.Context, u Utterance) (types.Transcript, error) {
	return f(ctx, u)
}

// Compile-time assertion that session satisfies stt.SessionHandle.
var _ stt.SessionHandle = (*session)(nil)

// session is an [stt.SessionHandle] over a [Transcriber]. Segmentation state
// is confined to the process goroutine.
type session struct {
	name     string
	t        Transcriber
	seg      *Segmenter
	language string

	mu       sync.Mutex
	keywords []types.KeywordBoost

	audioCh  chan []byte
	partials chan types.Transcript
	finals   chan types.Transcript

	done chan struct{}
	// ended is closed when the process goroutine exits.
	ended chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewSession starts a session that segments audio according to seg and
// transcribes each utterance with t. Sample rate, channels and language from
// cfg take precedence over seg. name labels log lines.
//
// Every transcribed utterance is emitted as a partial and then as a final
// with the same text. A transcription error ends the session: both channels
// are closed, which the consumer observes as a stream failure.
func NewSession(ctx context.Context, name string, t Transcriber, cfg stt.StreamConfig, seg Config) stt.SessionHandle {
	if cfg.SampleRate > 0 {
		seg.SampleRate = cfg.SampleRate
	}
	if cfg.Channels > 0 {
		seg.Channels = cfg.Channels
	}
	s := &session{
		name:     name,
		t:        t,
		seg:      New(seg),
		language: cfg.Language,
		keywords: cfg.Keywords,
		audioCh:  make(chan []byte, 256),
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
		done:     make(chan struct{}),
		ended:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.process(ctx)
	return s
}

// SendAudio implements [stt.SessionHandle].
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return fmt.Errorf("%s: %w", s.name, ErrSessionClosed)
	case <-s.ended:
		return fmt.Errorf("%s: %w", s.name, ErrSessionClosed)
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return fmt.Errorf("%s: %w", s.name, ErrSessionClosed)
	case <-s.ended:
		return fmt.Errorf("%s: %w", s.name, ErrSessionClosed)
	}
}

// Partials implements [stt.SessionHandle].
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals implements [stt.SessionHandle].
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords implements [stt.SessionHandle]. The new list applies from the
// next utterance.
func (s *session) SetKeywords(keywords []types.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append([]types.KeywordBoost(nil), keywords...)
	return nil
}

// Close implements [stt.SessionHandle]. Buffered speech is transcribed before
// the channels close.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
	})
	s.wg.Wait()
	return nil
}

func (s *session) process(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.ended)
	defer close(s.partials)
	defer close(s.finals)

	flushTail := func() {
		pcm, ok := s.seg.Flush()
		if !ok {
			return
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
		defer cancel()
		_ = s.transcribe(fctx, pcm)
	}

	for {
		select {
		case <-ctx.Done():
			flushTail()
			return
		case <-s.done:
			flushTail()
			return
		case chunk := <-s.audioCh:
			pcm, ok := s.seg.Push(chunk)
			if !ok {
				continue
			}
			if err := s.transcribe(ctx, pcm); err != nil {
				return
			}
		}
	}
}

func (s *session) transcribe(ctx context.Context, pcm []byte) error {
	s.mu.Lock()
	keywords := s.keywords
	s.mu.Unlock()
	cfg := s.seg.Config()

	u := Utterance{
		PCM:        pcm,
		SampleRate: cfg.SampleRate,
		Channels:   cfg.Channels,
		Language:   s.language,
		Keywords:   keywords,
	}
	start := time.Now()
	tr, err := s.t.Transcribe(ctx, u)
	if err != nil {
		slog.Warn("stt: transcription failed", "provider", s.name, "audio", u.Duration(), "error", err)
		return err
	}
	slog.Debug("stt: utterance transcribed", "provider", s.name, "audio", u.Duration(), "took", time.Since(start))
	if tr.Text == "" {
		return nil
	}
	if tr.Duration == 0 {
		tr.Duration = u.Duration()
	}
	if tr.Timestamp.IsZero() {
		tr.Timestamp = start
	}
	partial := tr
	partial.IsFinal = false
	tr.IsFinal = true
	select {
	case s.partials <- partial:
	default:
	}
	select {
	case s.finals <- tr:
	default:
	}
	return nil
}

// KeywordPrompt joins keyword phrases into a comma-separated prompt for
// engines that take a free-text hint instead of boosted keywords.
func KeywordPrompt(keywords []types.KeywordBoost) string {
	var out []byte
	for _, k := range keywords {
		if k.Keyword == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, ", "...)
		}
		out = append(out, k.Keyword...)
	}
	return string(out)
}
