// Package whisper provides local whisper.cpp speech-to-text providers.
//
// [Provider] talks to a running whisper-server (POST /inference).
// [NativeProvider] links whisper.cpp through its cgo bindings and needs no
// server. Both are batch engines: audio is segmented into utterances by
// energy-based silence detection and each utterance is transcribed as a whole,
// so partials carry the same text as their final.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080", whisper.WithLanguage("en"))
//	handle, err := p.StartStream(ctx, stt.StreamConfig{SampleRate: 16000, Channels: 1})
//	handle.SendAudio(pcmChunk)
//	transcript := <-handle.Finals()
//	handle.Close()
package whisper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/segment"
	"github.com/MrWong99/speakeasy/pkg/types"
)

const defaultLanguage = "en"

// Compile-time assertions.
var (
	_ stt.Provider        = (*Provider)(nil)
	_ segment.Transcriber = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model name forwarded to the server. Empty uses the
// model the server was started with.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithLanguage sets the default recognition language. Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) { p.language = lang }
}

// WithSegmentation overrides silence detection and utterance limits.
func WithSegmentation(cfg segment.Config) Option {
	return func(p *Provider) { p.seg = cfg }
}

// WithHTTPClient sets the HTTP client, e.g. one with a proxy.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL  string
	model      string
	language   string
	seg        segment.Config
	httpClient *http.Client
}

// New creates a Provider for the whisper.cpp server at serverURL.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:  strings.TrimRight(serverURL, "/"),
		language:   defaultLanguage,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream implements stt.Provider. No connection is made until the first
// utterance is complete.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = p.language
	}
	return segment.NewSession(ctx, "whisper", p, cfg, p.seg), nil
}

// Transcribe implements segment.Transcriber. Keywords are sent as the
// initial prompt.
func (p *Provider) Transcribe(ctx context.Context, u segment.Utterance) (types.Transcript, error) {
	wav, err := segment.EncodeWAV(u.PCM, u.SampleRate, u.Channels)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: write wav data: %w", err)
	}
	fields := map[string]string{
		"language":        u.Language,
		"model":           p.model,
		"prompt":          segment.KeywordPrompt(u.Keywords),
		"response_format": "json",
	}
	for k, v := range fields {
		if v == "" {
			continue
		}
		if err := mw.WriteField(k, v); err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: write %s field: %w", k, err)
		}
	}
	if err := mw.Close(); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.serverURL+"/inference", &body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return types.Transcript{}, fmt.Errorf("whisper: server returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if !gjson.ValidBytes(data) {
		return types.Transcript{}, errors.New("whisper: response is not valid JSON")
	}
	return types.Transcript{
		Text: strings.TrimSpace(gjson.GetBytes(data, "text").String()),
	}, nil
}
