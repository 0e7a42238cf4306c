// Package openai provides an STT provider backed by the OpenAI audio
// transcription API. Utterances are segmented locally, encoded as WAV and
// uploaded one request per utterance.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/segment"
	"github.com/MrWong99/speakeasy/pkg/types"
)

// DefaultModel is the transcription model used when none is configured.
const DefaultModel = oai.AudioModelWhisper1

var (
	_ stt.Provider        = (*Provider)(nil)
	_ segment.Transcriber = (*Provider)(nil)
)

// Provider implements stt.Provider using the OpenAI API.
type Provider struct {
	client   oai.Client
	model    oai.AudioModel
	language string
	seg      segment.Config
}

// config holds optional configuration for the provider.
type config struct {
	baseURL    string
	language   string
	httpClient *http.Client
	maxRetries int
	seg        segment.Config
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL, e.g. for a
// compatible local server.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithLanguage sets the default ISO-639-1 recognition language.
func WithLanguage(lang string) Option {
	return func(c *config) { c.language = lang }
}

// WithHTTPClient sets the HTTP client, e.g. one with a proxy.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *config) { c.httpClient = hc }
}

// WithMaxRetries sets how often the SDK retries failed requests. Negative
// keeps the SDK default.
func WithMaxRetries(n int) Option {
	return func(c *config) { c.maxRetries = n }
}

// WithSegmentation overrides silence detection and utterance limits.
func WithSegmentation(seg segment.Config) Option {
	return func(c *config) { c.seg = seg }
}

// New constructs a Provider. If model is empty, DefaultModel is used.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
	}
	if model == "" {
		model = string(DefaultModel)
	}

	cfg := &config{maxRetries: -1}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.httpClient != nil {
		reqOpts = append(reqOpts, option.WithHTTPClient(cfg.httpClient))
	}
	if cfg.maxRetries >= 0 {
		reqOpts = append(reqOpts, option.WithMaxRetries(cfg.maxRetries))
	}

	return &Provider{
		client:   oai.NewClient(reqOpts...),
		model:    oai.AudioModel(model),
		language: cfg.language,
		seg:      cfg.seg,
	}, nil
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("openai stt: context already cancelled: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = p.language
	}
	return segment.NewSession(ctx, "openai", p, cfg, p.seg), nil
}

// Transcribe implements segment.Transcriber. Keywords are passed as the
// prompt to bias recognition toward the command phrases.
func (p *Provider) Transcribe(ctx context.Context, u segment.Utterance) (types.Transcript, error) {
	wav, err := segment.EncodeWAV(u.PCM, u.SampleRate, u.Channels)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai stt: %w", err)
	}

	params := oai.AudioTranscriptionNewParams{
		File:  oai.File(bytes.NewReader(wav), "utterance.wav", "audio/wav"),
		Model: p.model,
	}
	if lang := baseLanguage(u.Language); lang != "" {
		params.Language = oai.String(lang)
	}
	if prompt := segment.KeywordPrompt(u.Keywords); prompt != "" {
		params.Prompt = oai.String(prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	return types.Transcript{Text: strings.TrimSpace(resp.Text)}, nil
}

// baseLanguage reduces a BCP-47 tag to the ISO-639-1 code the API expects.
func baseLanguage(tag string) string {
	lang, _, _ := strings.Cut(tag, "-")
	return strings.ToLower(lang)
}
