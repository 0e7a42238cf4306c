// Package wit provides a Wit.ai speech provider. Utterances are segmented
// locally and posted to the /speech endpoint, which returns the transcript
// together with the app's intents and entities. Intents let the command
// interpreter match utterances the lexicon does not cover literally.
package wit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/segment"
	"github.com/MrWong99/speakeasy/pkg/types"
)

const (
	defaultBaseURL = "https://api.wit.ai"

	// DefaultAPIVersion pins the response format.
	DefaultAPIVersion = "20240304"
)

// ErrNoResult is returned when the response holds no transcription.
var ErrNoResult = errors.New("wit: response contained no transcription")

var (
	_ stt.Provider        = (*Provider)(nil)
	_ segment.Transcriber = (*Provider)(nil)
)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIVersion sets the v= query parameter.
func WithAPIVersion(v string) Option {
	return func(p *Provider) { p.version = v }
}

// WithHTTPClient sets the HTTP client, e.g. one with a proxy.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.httpClient = c }
}

// WithSegmentation overrides silence detection and utterance limits.
func WithSegmentation(cfg segment.Config) Option {
	return func(p *Provider) { p.seg = cfg }
}

// Provider implements stt.Provider backed by the Wit.ai speech API.
type Provider struct {
	token      string
	baseURL    string
	version    string
	seg        segment.Config
	httpClient *http.Client
}

// New creates a Provider authenticated with a Wit.ai server access token.
func New(token string, opts ...Option) (*Provider, error) {
	if token == "" {
		return nil, errors.New("wit: access token must not be empty")
	}
	p := &Provider{
		token:      token,
		baseURL:    defaultBaseURL,
		version:    DefaultAPIVersion,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// StartStream implements stt.Provider. The language is fixed by the Wit app,
// so cfg.Language is ignored.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("wit: context already cancelled: %w", err)
	}
	return segment.NewSession(ctx, "wit", p, cfg, p.seg), nil
}

// Transcribe implements segment.Transcriber by posting raw PCM to /speech.
func (p *Provider) Transcribe(ctx context.Context, u segment.Utterance) (types.Transcript, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.baseURL+"/speech?v="+p.version, bytes.NewReader(u.PCM))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("wit: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.token)
	req.Header.Set("Content-Type", contentType(u.SampleRate))
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("wit: http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("wit: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := gjson.GetBytes(body, "error").String()
		if msg == "" {
			msg = string(bytes.TrimSpace(body))
		}
		return types.Transcript{}, fmt.Errorf("wit: server returned HTTP %d: %s", resp.StatusCode, msg)
	}
	return parseResponse(body)
}

func contentType(rate int) string {
	if rate <= 0 {
		rate = segment.DefaultSampleRate
	}
	return fmt.Sprintf("audio/raw;encoding=signed-integer;bits=16;rate=%d;endian=little", rate)
}

// parseResponse extracts the final understanding from a /speech body. The
// endpoint streams a sequence of JSON objects: partial transcriptions, then a
// final transcription, then the understanding with intents and entities.
func parseResponse(body []byte) (types.Transcript, error) {
	var (
		t     types.Transcript
		found bool
	)
	dec := json.NewDecoder(bytes.NewReader(body))
	for {
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return types.Transcript{}, fmt.Errorf("wit: decode response: %w", err)
		}
		obj := gjson.ParseBytes(raw)
		if msg := obj.Get("error"); msg.Exists() {
			return types.Transcript{}, fmt.Errorf("wit: %s", msg.String())
		}
		text := obj.Get("text")
		if !text.Exists() {
			continue
		}
		// Partial transcriptions carry is_final=false; older API versions
		// omit the flag and send a single object.
		if final := obj.Get("is_final"); final.Exists() && !final.Bool() {
			continue
		}
		found = true
		t.Text = strings.TrimSpace(text.String())
		if intents := parseIntents(obj); intents != nil {
			t.Intents = intents
		}
		if entities := parseEntities(obj); entities != nil {
			t.Entities = entities
		}
	}
	if !found {
		return types.Transcript{}, ErrNoResult
	}
	if best, ok := types.TopIntent(t.Intents); ok {
		t.Confidence = best.Confidence
	}
	return t, nil
}

func parseIntents(obj gjson.Result) []types.Intent {
	var out []types.Intent
	for _, in := range obj.Get("intents").Array() {
		out = append(out, types.Intent{
			Name:       in.Get("name").String(),
			Confidence: in.Get("confidence").Float(),
		})
	}
	return out
}

// parseEntities flattens the entities object ({"role:name": [...]}) in key
// order.
func parseEntities(obj gjson.Result) []types.Entity {
	var out []types.Entity
	obj.Get("entities").ForEach(func(key, list gjson.Result) bool {
		for _, e := range list.Array() {
			out = append(out, types.Entity{
				Name:       key.String(),
				Value:      e.Get("value").String(),
				Confidence: e.Get("confidence").Float(),
			})
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
