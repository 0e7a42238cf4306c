// Package wsbridge mirrors the session to WebSocket clients, such as a
// headset app, and accepts their commands, transcripts and microphone audio.
//
// Every presenter call is broadcast as a JSON [Message]. A client that
// connects mid-session first receives the current screen. Binary frames are
// treated as 16-bit little-endian PCM and pushed into the configured audio
// source.
package wsbridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/present"
	"github.com/MrWong99/speakeasy/internal/voicecmd"
	"github.com/MrWong99/speakeasy/pkg/audio"
)

// Compile-time assertion that Hub satisfies present.Presenter.
var _ present.Presenter = (*Hub)(nil)

const (
	sendBuffer   = 64
	writeTimeout = 5 * time.Second
	readLimit    = 1 << 20
)

// Controls receives client input. [voicecmd.Dispatcher] implements it.
type Controls interface {
	Simulate(ctx context.Context, c voicecmd.Control) error
	SubmitTranscript(ctx context.Context, text string) error
}

// Option is a functional option for configuring a [Hub].
type Option func(*Hub)

// WithControls routes inbound commands and transcripts.
func WithControls(c Controls) Option {
	return func(h *Hub) { h.controls = c }
}

// WithAudio pushes binary frames into src as PCM with the given format.
func WithAudio(src *audio.PushSource, sampleRate, channels int) Option {
	return func(h *Hub) {
		h.audio = src
		h.sampleRate = sampleRate
		h.channels = channels
	}
}

// WithOriginPatterns allows cross-origin clients matching patterns.
func WithOriginPatterns(patterns ...string) Option {
	return func(h *Hub) { h.origins = patterns }
}

// WithMetrics sets the metrics sink. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(h *Hub) { h.metrics = m }
}

// Hub is a [present.Presenter] and an [http.Handler] for the bridge endpoint.
type Hub struct {
	controls   Controls
	audio      *audio.PushSource
	sampleRate int
	channels   int
	origins    []string
	metrics    *observe.Metrics

	mu      sync.Mutex
	clients map[*client]struct{}
	// screen is replayed to new clients: the welcome/step/complete message
	// followed by progress, status and cue when set.
	screen   Message
	progress *Message
	status   *Message
	cue      *Message
}

// New returns a Hub showing the welcome screen.
func New(opts ...Option) *Hub {
	h := &Hub{
		clients:    make(map[*client]struct{}),
		screen:     Message{Type: TypeWelcome},
		sampleRate: 16000,
		channels:   1,
		metrics:    observe.DefaultMetrics(),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type client struct {
	send chan []byte
	// gone is closed when the hub drops the client.
	gone chan struct{}
	once sync.Once
}

func (c *client) drop() {
	c.once.Do(func() { close(c.gone) })
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		slog.Warn("wsbridge: accept failed", "remote", r.RemoteAddr, "error", err)
		return
	}
	conn.SetReadLimit(readLimit)
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	c := &client{send: make(chan []byte, sendBuffer), gone: make(chan struct{})}
	h.register(c)
	defer h.unregister(c)
	slog.Info("wsbridge: client connected", "remote", r.RemoteAddr)

	go func() {
		defer cancel()
		h.writeLoop(ctx, conn, c)
	}()
	err = h.readLoop(ctx, conn, c)

	status := websocket.CloseStatus(err)
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || ctx.Err() != nil {
		slog.Info("wsbridge: client disconnected", "remote", r.RemoteAddr)
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}
	slog.Warn("wsbridge: client connection failed", "remote", r.RemoteAddr, "error", err)
	conn.Close(websocket.StatusInternalError, "read failed")
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, m := range h.replayLocked() {
		c.send <- encode(m)
	}
	h.clients[c] = struct{}{}
	h.metrics.BridgeClients.Add(context.Background(), 1)
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	c.drop()
	h.metrics.BridgeClients.Add(context.Background(), -1)
}

func (h *Hub) replayLocked() []Message {
	out := []Message{h.screen}
	for _, m := range []*Message{h.progress, h.status, h.cue} {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out
}

func (h *Hub) writeLoop(ctx context.Context, conn *websocket.Conn, c *client) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.gone:
			conn.Close(websocket.StatusPolicyViolation, "too slow")
			return
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				slog.Debug("wsbridge: write failed", "error", err)
				return
			}
		}
	}
}

func (h *Hub) readLoop(ctx context.Context, conn *websocket.Conn, c *client) error {
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			h.pushAudio(data)
			continue
		}
		if err := h.handleMessage(ctx, data); err != nil {
			slog.Debug("wsbridge: rejected client message", "error", err)
			h.reply(c, Message{Type: TypeError, Text: err.Error()})
		}
	}
}

func (h *Hub) handleMessage(ctx context.Context, data []byte) error {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("wsbridge: invalid message: %w", err)
	}
	if h.controls == nil {
		return errors.New("wsbridge: remote control disabled")
	}
	switch msg.Type {
	case TypeCommand:
		c, err := voicecmd.ParseControl(msg.Command)
		if err != nil {
			return err
		}
		return h.controls.Simulate(ctx, c)
	case TypeTranscript:
		return h.controls.SubmitTranscript(ctx, msg.Text)
	}
	return fmt.Errorf("wsbridge: unknown message type %q", msg.Type)
}

func (h *Hub) pushAudio(data []byte) {
	if h.audio == nil || len(data) == 0 {
		return
	}
	h.audio.Push(audio.AudioFrame{
		Data:       data,
		SampleRate: h.sampleRate,
		Channels:   h.channels,
	})
}

// reply queues m for one client.
func (h *Hub) reply(c *client, m Message) {
	select {
	case c.send <- encode(m):
	default:
	}
}

// broadcast queues m for every client. Clients that cannot keep up are
// dropped.
func (h *Hub) broadcast(m Message, remember func()) {
	data := encode(m)
	h.mu.Lock()
	defer h.mu.Unlock()
	if remember != nil {
		remember()
	}
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("wsbridge: client too slow, disconnecting")
			delete(h.clients, c)
			c.drop()
			h.metrics.BridgeClients.Add(context.Background(), -1)
		}
	}
}

func encode(m Message) []byte {
	data, err := json.Marshal(m)
	if err != nil {
		// Message holds only strings, ints and a bool.
		panic("wsbridge: marshal: " + err.Error())
	}
	return data
}

func boolPtr(b bool) *bool { return &b }

// ShowWelcome implements [present.Presenter].
func (h *Hub) ShowWelcome() {
	m := Message{Type: TypeWelcome}
	h.broadcast(m, func() {
		h.screen = m
		h.progress, h.cue = nil, nil
	})
}

// ShowStep implements [present.Presenter].
func (h *Hub) ShowStep(text string) {
	m := Message{Type: TypeStep, Text: text}
	h.broadcast(m, func() { h.screen = m })
}

// ShowComplete implements [present.Presenter].
func (h *Hub) ShowComplete() {
	m := Message{Type: TypeComplete}
	h.broadcast(m, func() {
		h.screen = m
		h.cue = nil
	})
}

// UpdateProgress implements [present.Presenter].
func (h *Hub) UpdateProgress(current, total int) {
	m := Message{Type: TypeProgress, Current: current, Total: total}
	h.broadcast(m, func() { h.progress = &m })
}

// PlayFeedback implements [present.Presenter].
func (h *Hub) PlayFeedback(kind present.FeedbackKind, message string) {
	h.broadcast(Message{Type: TypeFeedback, Kind: kind.String(), Text: message}, nil)
}

// UpdateStatus implements [present.Presenter].
func (h *Hub) UpdateStatus(listening bool, message string) {
	m := Message{Type: TypeStatus, Text: message, Listening: boolPtr(listening)}
	h.broadcast(m, func() { h.status = &m })
}

// ShowCue implements [present.Presenter].
func (h *Hub) ShowCue(text string) {
	m := Message{Type: TypeCue, Text: text}
	h.broadcast(m, func() {
		if text == "" {
			h.cue = nil
			return
		}
		h.cue = &m
	})
}
