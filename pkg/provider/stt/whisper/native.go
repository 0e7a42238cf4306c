package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/segment"
	"github.com/MrWong99/speakeasy/pkg/types"
)

// Compile-time assertions.
var (
	_ stt.Provider        = (*NativeProvider)(nil)
	_ segment.Transcriber = (*NativeProvider)(nil)
)

// NativeProvider implements stt.Provider with the whisper.cpp cgo bindings.
// The model is loaded once and shared by all sessions. libwhisper.a and
// whisper.h must be available at link time (LIBRARY_PATH, C_INCLUDE_PATH).
type NativeProvider struct {
	model    whisperlib.Model
	language string
	seg      segment.Config

	// mu serialises inference; a whisper context per call keeps memory low
	// but the CPU is saturated by one inference anyway.
	mu sync.Mutex
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the default recognition language. Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSegmentation overrides silence detection and utterance limits.
func WithNativeSegmentation(cfg segment.Config) NativeOption {
	return func(p *NativeProvider) { p.seg = cfg }
}

// NewNative loads the model at modelPath. Call Close to release it.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}
	p := &NativeProvider{model: model, language: defaultLanguage}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the model.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// StartStream implements stt.Provider.
func (p *NativeProvider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("whisper: context already cancelled: %w", err)
	}
	if cfg.Language == "" {
		cfg.Language = p.language
	}
	return segment.NewSession(ctx, "whisper-native", p, cfg, p.seg), nil
}

// Transcribe implements segment.Transcriber.
func (p *NativeProvider) Transcribe(ctx context.Context, u segment.Utterance) (types.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return types.Transcript{}, err
	}
	samples := segment.Float32Mono(u.PCM, u.Channels)

	p.mu.Lock()
	defer p.mu.Unlock()

	// Contexts are not thread-safe; the model is.
	wctx, err := p.model.NewContext()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: create context: %w", err)
	}
	if u.Language != "" {
		if err := wctx.SetLanguage(u.Language); err != nil {
			slog.Warn("whisper: failed to set language, using default", "language", u.Language, "error", err)
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return types.Transcript{}, fmt.Errorf("whisper: process audio: %w", err)
	}

	var (
		parts []string
		words []types.WordDetail
	)
	for {
		seg, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return types.Transcript{}, fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		parts = append(parts, text)
		words = append(words, types.WordDetail{Word: text, Start: seg.Start, End: seg.End})
	}
	return types.Transcript{Text: strings.Join(parts, " "), Words: words}, nil
}
