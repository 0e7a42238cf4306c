package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/types"
)

// ---- URL / query-param tests ----

func TestBuildURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		opts []Option
		cfg  stt.StreamConfig
		want map[string]string
	}{
		{
			name: "defaults",
			cfg:  stt.StreamConfig{SampleRate: 16000, Channels: 1},
			want: map[string]string{
				"model":           "nova-3",
				"language":        "en",
				"encoding":        "linear16",
				"interim_results": "true",
				"sample_rate":     "16000",
				"channels":        "1",
			},
		},
		{
			name: "provider options",
			opts: []Option{WithModel("base"), WithLanguage("de-DE"), WithSampleRate(48000)},
			want: map[string]string{"model": "base", "language": "de-DE", "sample_rate": "48000"},
		},
		{
			name: "config language wins",
			opts: []Option{WithLanguage("en")},
			cfg:  stt.StreamConfig{Language: "fr-FR"},
			want: map[string]string{"language": "fr-FR"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := New("key", tt.opts...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			raw, err := p.buildURL(tt.cfg)
			if err != nil {
				t.Fatalf("buildURL: %v", err)
			}
			u, err := url.Parse(raw)
			if err != nil {
				t.Fatalf("parse URL: %v", err)
			}
			q := u.Query()
			for k, want := range tt.want {
				if got := q.Get(k); got != want {
					t.Errorf("%s = %q, want %q", k, got, want)
				}
			}
		})
	}
}

func TestBuildURL_Keywords(t *testing.T) {
	t.Parallel()
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	raw, err := p.buildURL(stt.StreamConfig{Keywords: []types.KeywordBoost{
		{Keyword: "next", Boost: 5},
		{Keyword: "repeat", Boost: 3.5},
		{Keyword: "begin"},
	}})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, _ := url.Parse(raw)
	got := strings.Join(u.Query()["keywords"], ",")
	if want := "next:5,repeat:3.5,begin"; got != want {
		t.Errorf("keywords = %q, want %q", got, want)
	}
}

// ---- JSON parsing tests ----

func TestParseResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		raw       string
		wantOK    bool
		wantText  string
		wantFinal bool
		wantWords int
	}{
		{
			name: "final with words",
			raw: `{"type":"Results","is_final":true,"start":1.5,"duration":0.9,"channel":{"alternatives":[{
				"transcript":"Next step","confidence":0.95,
				"words":[{"word":"next","start":1.6,"end":1.9,"confidence":0.97},{"word":"step","start":2.0,"end":2.3,"confidence":0.93}]}]}}`,
			wantOK:    true,
			wantText:  "Next step",
			wantFinal: true,
			wantWords: 2,
		},
		{
			name:     "partial",
			raw:      `{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"Ne","confidence":0.7,"words":[]}]}}`,
			wantOK:   true,
			wantText: "Ne",
		},
		{name: "empty final", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":""}]}}`},
		{name: "metadata", raw: `{"type":"Metadata","request_id":"abc"}`},
		{name: "no alternatives", raw: `{"type":"Results","is_final":true,"channel":{"alternatives":[]}}`},
		{name: "invalid json", raw: `{invalid`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tr, ok := parseResponse([]byte(tt.raw))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if tr.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", tr.Text, tt.wantText)
			}
			if tr.IsFinal != tt.wantFinal {
				t.Errorf("IsFinal = %v, want %v", tr.IsFinal, tt.wantFinal)
			}
			if len(tr.Words) != tt.wantWords {
				t.Errorf("words = %d, want %d", len(tr.Words), tt.wantWords)
			}
		})
	}
}

func TestParseResponse_Timing(t *testing.T) {
	t.Parallel()
	tr, ok := parseResponse([]byte(`{"type":"Results","is_final":true,"start":1.5,"duration":0.5,
		"channel":{"alternatives":[{"transcript":"end","words":[{"word":"end","start":1.6,"end":1.9}]}]}}`))
	if !ok {
		t.Fatal("expected ok")
	}
	if tr.Timestamp != 1500*time.Millisecond || tr.Duration != 500*time.Millisecond {
		t.Errorf("Timestamp, Duration = %v, %v", tr.Timestamp, tr.Duration)
	}
	if tr.Words[0].Start != 1600*time.Millisecond {
		t.Errorf("word start = %v", tr.Words[0].Start)
	}
}

// ---- Constructor tests ----

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

// ---- streaming against a fake server ----

// fakeServer accepts one WebSocket, checks auth, answers the first binary
// frame with a partial and a final, then closes on CloseStream.
func fakeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Token secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()
		ctx := r.Context()
		for {
			typ, data, err := c.Read(ctx)
			if err != nil {
				return
			}
			if typ == websocket.MessageText && strings.Contains(string(data), "CloseStream") {
				c.Close(websocket.StatusNormalClosure, "")
				return
			}
			_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"rep"}]}}`))
			_ = c.Write(ctx, websocket.MessageText, []byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"repeat","confidence":0.9}]}}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStream_PartialAndFinal(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	p, err := New("secret", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	if err := h.SendAudio(make([]byte, 320)); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}

	select {
	case tr := <-h.Partials():
		if tr.Text != "rep" {
			t.Errorf("partial = %q, want rep", tr.Text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for partial")
	}
	select {
	case tr := <-h.Finals():
		if tr.Text != "repeat" || !tr.IsFinal {
			t.Errorf("final = %+v", tr)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final")
	}

	if err := h.SetKeywords(nil); !errors.Is(err, stt.ErrNotSupported) {
		t.Errorf("SetKeywords = %v, want ErrNotSupported", err)
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.SendAudio(make([]byte, 320)); err == nil {
		t.Error("expected error from SendAudio after Close")
	}
}

func TestStartStream_Unauthorized(t *testing.T) {
	t.Parallel()
	srv := fakeServer(t)
	p, err := New("wrong", WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.StartStream(context.Background(), stt.StreamConfig{}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestStartStream_DialTimeout(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	p, err := New("key",
		WithEndpoint("ws"+strings.TrimPrefix(srv.URL, "http")),
		WithDialTimeout(50*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	start := time.Now()
	if _, err := p.StartStream(context.Background(), stt.StreamConfig{}); err == nil {
		t.Fatal("expected dial error from a server that never upgrades")
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Errorf("StartStream took %v with a 50ms dial timeout", took)
	}
}
