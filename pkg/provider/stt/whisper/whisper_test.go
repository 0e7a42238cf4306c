package whisper_test

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/segment"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/whisper"
	"github.com/MrWong99/speakeasy/pkg/types"
)

// ---- helpers ----------------------------------------------------------------

type request struct {
	language string
	prompt   string
	wavHead  string
}

// newMockServer answers POST /inference with body and records each request.
func newMockServer(t *testing.T, status int, body string) (*httptest.Server, func() []request) {
	t.Helper()
	var (
		mu   sync.Mutex
		reqs []request
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		head := make([]byte, 4)
		_, _ = io.ReadFull(f, head)
		f.Close()

		mu.Lock()
		reqs = append(reqs, request{
			language: r.FormValue("language"),
			prompt:   r.FormValue("prompt"),
			wavHead:  string(head),
		})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []request {
		mu.Lock()
		defer mu.Unlock()
		return append([]request(nil), reqs...)
	}
}

// makeSpeechPCM generates a 440 Hz sine well above the silence threshold.
func makeSpeechPCM(samples int) []byte {
	const amplitude = 10_000.0
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(amplitude * math.Sin(2*math.Pi*440*float64(i)/16000))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	return buf
}

func utterance() segment.Utterance {
	return segment.Utterance{
		PCM:        makeSpeechPCM(8000),
		SampleRate: 16000,
		Channels:   1,
		Language:   "en",
	}
}

// ---- construction -----------------------------------------------------------

func TestNew_EmptyServerURL_ReturnsError(t *testing.T) {
	t.Parallel()
	if _, err := whisper.New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestStartStream_CancelledContext_ReturnsError(t *testing.T) {
	t.Parallel()
	p, err := whisper.New("http://localhost:8080")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := p.StartStream(ctx, stt.StreamConfig{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

// ---- Transcribe -------------------------------------------------------------

func TestTranscribe(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		status   int
		body     string
		want     string
		wantErr  bool
		keywords []types.KeywordBoost
		prompt   string
	}{
		{name: "text is trimmed", status: http.StatusOK, body: `{"text":"  next step \n"}`, want: "next step"},
		{name: "empty text", status: http.StatusOK, body: `{"text":""}`, want: ""},
		{
			name:     "keywords become prompt",
			status:   http.StatusOK,
			body:     `{"text":"start"}`,
			want:     "start",
			keywords: []types.KeywordBoost{{Keyword: "start"}, {Keyword: "next"}},
			prompt:   "start, next",
		},
		{name: "server error", status: http.StatusInternalServerError, body: `boom`, wantErr: true},
		{name: "invalid json", status: http.StatusOK, body: `not json`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv, requests := newMockServer(t, tt.status, tt.body)
			p, err := whisper.New(srv.URL+"/", whisper.WithHTTPClient(srv.Client()))
			if err != nil {
				t.Fatalf("New: %v", err)
			}

			u := utterance()
			u.Keywords = tt.keywords
			got, err := p.Transcribe(context.Background(), u)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Transcribe: %v", err)
			}
			if got.Text != tt.want {
				t.Errorf("Text = %q, want %q", got.Text, tt.want)
			}

			reqs := requests()
			if len(reqs) != 1 {
				t.Fatalf("requests = %d, want 1", len(reqs))
			}
			if reqs[0].wavHead != "RIFF" {
				t.Errorf("upload starts with %q, want RIFF", reqs[0].wavHead)
			}
			if reqs[0].language != "en" {
				t.Errorf("language = %q, want en", reqs[0].language)
			}
			if reqs[0].prompt != tt.prompt {
				t.Errorf("prompt = %q, want %q", reqs[0].prompt, tt.prompt)
			}
		})
	}
}

// ---- streaming --------------------------------------------------------------

func TestStream_SpeechThenSilenceEmitsFinal(t *testing.T) {
	t.Parallel()
	srv, requests := newMockServer(t, http.StatusOK, `{"text":"repeat"}`)
	p, err := whisper.New(srv.URL,
		whisper.WithHTTPClient(srv.Client()),
		whisper.WithLanguage("de"),
		whisper.WithSegmentation(segment.Config{Silence: 100 * time.Millisecond}),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	if err := h.SendAudio(makeSpeechPCM(8000)); err != nil {
		t.Fatalf("SendAudio speech: %v", err)
	}
	if err := h.SendAudio(make([]byte, 8000)); err != nil {
		t.Fatalf("SendAudio silence: %v", err)
	}

	select {
	case tr := <-h.Finals():
		if tr.Text != "repeat" || !tr.IsFinal {
			t.Errorf("final = %+v, want final text %q", tr, "repeat")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for final transcript")
	}
	if reqs := requests(); len(reqs) == 0 || reqs[0].language != "de" {
		t.Errorf("requests = %+v, want language de from provider default", reqs)
	}
}

func TestStream_SilenceAloneSendsNothing(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"text":"x"}`)
	}))
	defer srv.Close()

	p, err := whisper.New(srv.URL, whisper.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	for range 5 {
		if err := h.SendAudio(make([]byte, 3200)); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}
	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("server calls = %d, want 0", n)
	}
}

func TestStream_ServerErrorEndsSession(t *testing.T) {
	t.Parallel()
	srv, _ := newMockServer(t, http.StatusBadGateway, `upstream down`)
	p, err := whisper.New(srv.URL, whisper.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, err := p.StartStream(context.Background(), stt.StreamConfig{SampleRate: 16000, Channels: 1})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer h.Close()

	_ = h.SendAudio(makeSpeechPCM(8000))
	_ = h.SendAudio(make([]byte, 32000))

	select {
	case _, ok := <-h.Finals():
		if ok {
			t.Fatal("expected finals channel to close after server error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for session to end")
	}
	if err := h.SendAudio(makeSpeechPCM(160)); err == nil || !strings.Contains(err.Error(), "closed") {
		t.Errorf("SendAudio after failure = %v, want closed error", err)
	}
}
