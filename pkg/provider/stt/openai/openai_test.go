package openai

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MrWong99/speakeasy/pkg/provider/stt/segment"
	"github.com/MrWong99/speakeasy/pkg/types"
)

func TestBaseLanguage(t *testing.T) {
	t.Parallel()
	tests := map[string]string{"en-US": "en", "de": "de", "": "", "PT-br": "pt"}
	for in, want := range tests {
		if got := baseLanguage(in); got != want {
			t.Errorf("baseLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := New("", ""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestTranscribe(t *testing.T) {
	t.Parallel()

	type seen struct {
		path, auth, model, language, prompt, fileHead string
	}
	got := make(chan seen, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		s := seen{
			path:     r.URL.Path,
			auth:     r.Header.Get("Authorization"),
			model:    r.FormValue("model"),
			language: r.FormValue("language"),
			prompt:   r.FormValue("prompt"),
		}
		if f, _, err := r.FormFile("file"); err == nil {
			head := make([]byte, 4)
			_, _ = io.ReadFull(f, head)
			f.Close()
			s.fileHead = string(head)
		}
		got <- s
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" End session. "}`)
	}))
	defer srv.Close()

	p, err := New("sk-test", "", WithBaseURL(srv.URL+"/v1/"), WithHTTPClient(srv.Client()), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), segment.Utterance{
		PCM:        make([]byte, 3200),
		SampleRate: 16000,
		Channels:   1,
		Language:   "en-GB",
		Keywords:   []types.KeywordBoost{{Keyword: "begin"}, {Keyword: "end"}},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "End session." {
		t.Errorf("Text = %q", tr.Text)
	}

	s := <-got
	if !strings.HasSuffix(s.path, "/audio/transcriptions") {
		t.Errorf("path = %q", s.path)
	}
	if s.auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q", s.auth)
	}
	if s.model != string(DefaultModel) {
		t.Errorf("model = %q, want %q", s.model, DefaultModel)
	}
	if s.language != "en" {
		t.Errorf("language = %q, want en", s.language)
	}
	if s.prompt != "begin, end" {
		t.Errorf("prompt = %q", s.prompt)
	}
	if s.fileHead != "RIFF" {
		t.Errorf("file starts with %q, want RIFF", s.fileHead)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"Incorrect API key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	p, err := New("sk-bad", "", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithMaxRetries(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := p.Transcribe(context.Background(), segment.Utterance{PCM: make([]byte, 320), SampleRate: 16000, Channels: 1}); err == nil {
		t.Fatal("expected error for 401 response")
	}
}
