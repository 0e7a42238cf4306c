// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// Deepgram is a true streaming engine: interim results are emitted as
// partials while the user speaks and a result flagged is_final becomes the
// final transcript. Keywords are boosted with Deepgram's keywords parameter.
package deepgram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/tidwall/gjson"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/types"
)

const (
	defaultEndpoint   = "wss://api.deepgram.com/v1/listen"
	defaultModel      = "nova-3"
	defaultLanguage   = "en"
	defaultSampleRate = 16000

	// closeTimeout bounds the CloseStream handshake on Close.
	closeTimeout = 3 * time.Second

	// defaultDialTimeout bounds the WebSocket handshake in StartStream.
	defaultDialTimeout = 10 * time.Second
)

var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) { p.language = language }
}

// WithSampleRate sets the audio sample rate in Hz for the provider-level default.
func WithSampleRate(rate int) Option {
	return func(p *Provider) { p.sampleRate = rate }
}

// WithEndpoint overrides the streaming endpoint URL.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient sets the client used for the WebSocket handshake.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithDialTimeout bounds the WebSocket handshake. Zero or less keeps the
// default of 10s.
func WithDialTimeout(d time.Duration) Option {
	return func(p *Provider) {
		if d > 0 {
			p.dialTimeout = d
		}
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey      string
	model       string
	language    string
	sampleRate  int
	endpoint    string
	httpClient  *http.Client
	dialTimeout time.Duration
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:      apiKey,
		model:       defaultModel,
		language:    defaultLanguage,
		sampleRate:  defaultSampleRate,
		endpoint:    defaultEndpoint,
		dialTimeout: defaultDialTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream opens a streaming transcription session with Deepgram.
// It respects cfg.SampleRate, cfg.Language, and cfg.Keywords.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	dialCtx, cancel := context.WithTimeout(ctx, p.dialTimeout)
	defer cancel()
	conn, _, err := websocket.Dial(dialCtx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
		HTTPClient: p.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
		ended:    make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg stt.StreamConfig) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(sr))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	for _, kw := range cfg.Keywords {
		if kw.Boost == 0 {
			q.Add("keywords", kw.Keyword)
			continue
		}
		q.Add("keywords", fmt.Sprintf("%s:%g", kw.Keyword, kw.Boost))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- session ----

// session is a live Deepgram streaming session. It implements stt.SessionHandle.
type session struct {
	conn     *websocket.Conn
	partials chan types.Transcript
	finals   chan types.Transcript
	audio    chan []byte

	done chan struct{}
	// ended is closed when the read loop exits.
	ended chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

var errClosed = errors.New("deepgram: session is closed")

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errClosed
	case <-s.ended:
		return errClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errClosed
	case <-s.ended:
		return errClosed
	}
}

// Partials returns the channel of interim transcripts.
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals returns the channel of final transcripts.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// SetKeywords is not supported mid-stream by Deepgram.
func (s *session) SetKeywords([]types.KeywordBoost) error {
	return fmt.Errorf("deepgram: %w", stt.ErrNotSupported)
}

// Close asks Deepgram to flush and waits for the connection to wind down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		select {
		case <-s.ended:
		case <-ctx.Done():
		}
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
		s.wg.Wait()
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to Deepgram.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
		case <-s.ended:
			return
		case <-s.done:
			for {
				select {
				case chunk := <-s.audio:
					if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages and dispatches transcripts. Any read error
// ends the session.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.ended)
	defer close(s.partials)
	defer close(s.finals)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
			default:
				slog.Warn("deepgram: stream ended", "error", err)
			}
			return
		}

		if typ := gjson.GetBytes(msg, "type").String(); typ == "Error" {
			slog.Warn("deepgram: server error", "description", gjson.GetBytes(msg, "description").String())
			continue
		}

		t, ok := parseResponse(msg)
		if !ok {
			continue
		}

		out := s.partials
		if t.IsFinal {
			out = s.finals
		}
		select {
		case out <- t:
		case <-s.done:
		}
	}
}

// parseResponse parses a Results message. It reports false for other message
// types and for finals without text.
func parseResponse(data []byte) (types.Transcript, bool) {
	if !gjson.ValidBytes(data) {
		return types.Transcript{}, false
	}
	res := gjson.ParseBytes(data)
	if res.Get("type").String() != "Results" {
		return types.Transcript{}, false
	}
	alt := res.Get("channel.alternatives.0")
	if !alt.Exists() {
		return types.Transcript{}, false
	}

	t := types.Transcript{
		Text:       strings.TrimSpace(alt.Get("transcript").String()),
		IsFinal:    res.Get("is_final").Bool(),
		Confidence: alt.Get("confidence").Float(),
		Timestamp:  seconds(res.Get("start").Float()),
		Duration:   seconds(res.Get("duration").Float()),
	}
	if t.IsFinal && t.Text == "" {
		return types.Transcript{}, false
	}
	for _, w := range alt.Get("words").Array() {
		t.Words = append(t.Words, types.WordDetail{
			Word:       w.Get("word").String(),
			Start:      seconds(w.Get("start").Float()),
			End:        seconds(w.Get("end").Float()),
			Confidence: w.Get("confidence").Float(),
		})
	}
	return t, true
}

func seconds(f float64) time.Duration {
	return time.Duration(f * float64(time.Second))
}
