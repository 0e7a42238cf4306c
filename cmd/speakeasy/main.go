// Command speakeasy runs the voice-guided relaxation session.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/speakeasy/internal/app"
	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/observe"
	"github.com/MrWong99/speakeasy/internal/resilience"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/audio/portaudio"
	"github.com/MrWong99/speakeasy/pkg/netproxy"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/deepgram"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/openai"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/segment"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/whisper"
	"github.com/MrWong99/speakeasy/pkg/provider/stt/wit"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// flags holds command-line overrides. Empty values leave the config alone.
type flags struct {
	configPath  string
	envFile     string
	logLevel    string
	ui          string
	provider    string
	listDevices bool
	showVersion bool
}

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	var f flags
	flag.StringVarP(&f.configPath, "config", "c", "config.yaml", "path to the YAML configuration file")
	flag.StringVarP(&f.envFile, "env", "e", ".env", "env file with provider credentials")
	flag.StringVarP(&f.logLevel, "log-level", "l", "", "log level override (debug, info, warn, error)")
	flag.StringVar(&f.ui, "ui", "", "front-end override (tui, headless)")
	flag.StringVar(&f.provider, "provider", "", "primary speech provider override")
	flag.BoolVar(&f.listDevices, "list-devices", false, "list audio input devices and exit")
	flag.BoolVarP(&f.showVersion, "version", "v", false, "print the version and exit")
	flag.Parse()

	if f.showVersion {
		fmt.Println("speakeasy", version)
		return 0
	}
	if f.listDevices {
		return listDevices()
	}

	// A missing .env is normal; credentials may come from the environment.
	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "speakeasy: load %s: %v\n", f.envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, fromFile, err := loadConfig(f)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speakeasy: %v\n", err)
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(app.SlogLevel(cfg.Server.LogLevel))
	logger, closeLog, err := newLogger(cfg.Server, levelVar)
	if err != nil {
		fmt.Fprintf(os.Stderr, "speakeasy: %v\n", err)
		return 1
	}
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("speakeasy starting",
		"version", version,
		"config", f.configPath,
		"from_file", fromFile,
		"ui", cfg.UI.Mode,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, tel.Metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers,
		app.WithMetrics(tel.Metrics, tel.Handler),
		app.WithLevelVar(levelVar),
		app.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Hot reload ────────────────────────────────────────────────────────────
	if fromFile {
		w, err := config.NewWatcher(f.configPath, application.Reload, config.WithLoadOptions(f.loadOptions()...))
		if err != nil {
			slog.Warn("config hot reload disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("ready, say \"start session\" to begin")

	code := 0
	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, app.ErrQuit) {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return code
}

// loadOptions applies the environment and then the flag overrides, so flags
// win on startup and on every hot reload.
func (f flags) loadOptions() []config.LoadOption {
	return []config.LoadOption{config.WithLookup(os.LookupEnv), config.WithOverride(f.apply)}
}

// loadConfig reads the config file. A missing file at the default path falls
// back to the built-in defaults and disables hot reload.
func loadConfig(f flags) (*config.Config, bool, error) {
	cfg, err := config.Load(f.configPath, f.loadOptions()...)
	if errors.Is(err, os.ErrNotExist) && !flag.CommandLine.Changed("config") {
		cfg, err = config.LoadFromReader(strings.NewReader(""), f.loadOptions()...)
		return cfg, false, err
	}
	return cfg, err == nil, err
}

// apply writes the flag overrides into cfg.
func (f flags) apply(cfg *config.Config) {
	if f.provider != "" && f.provider != cfg.Voice.Provider.Name {
		cfg.Voice.Provider = config.ProviderEntry{Name: f.provider}
		if env, ok := config.CredentialEnv[f.provider]; ok {
			cfg.Voice.Provider.APIKey = os.Getenv(env)
		}
	}
	if f.logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(f.logLevel)
	}
	if f.ui != "" {
		cfg.UI.Mode = config.UIMode(f.ui)
	}
}

func listDevices() int {
	devs, err := portaudio.Devices()
	if err != nil {
		fmt.Fprintf(os.Stderr, "speakeasy: %v\n", err)
		return 1
	}
	for _, d := range devs {
		def := ""
		if d.Default {
			def = " (default)"
		}
		fmt.Printf("%s%s\n    host api: %s, channels: %d, rate: %.0f Hz\n",
			d.Name, def, d.HostAPI, d.Channels, d.SampleRate)
	}
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── STT ───────────────────────────────────────────────────────────────────

	reg.RegisterSTT("wit", func(entry config.ProviderEntry) (stt.Provider, error) {
		hc, err := netproxy.HTTPClient(optString(entry.Options, "proxy"), 0)
		if err != nil {
			return nil, err
		}
		opts := []wit.Option{wit.WithHTTPClient(hc), wit.WithSegmentation(segmentation(entry))}
		if entry.BaseURL != "" {
			opts = append(opts, wit.WithBaseURL(entry.BaseURL))
		}
		if v := optString(entry.Options, "api_version"); v != "" {
			opts = append(opts, wit.WithAPIVersion(v))
		}
		return wit.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		hc, err := netproxy.HTTPClient(optString(entry.Options, "proxy"), 0)
		if err != nil {
			return nil, err
		}
		opts := []deepgram.Option{deepgram.WithHTTPClient(hc)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		hc, err := netproxy.HTTPClient(optString(entry.Options, "proxy"), 0)
		if err != nil {
			return nil, err
		}
		opts := []openai.Option{openai.WithHTTPClient(hc), openai.WithSegmentation(segmentation(entry))}
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, openai.WithLanguage(lang))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []whisper.Option{whisper.WithSegmentation(segmentation(entry))}
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = optString(entry.Options, "model_path")
		}
		opts := []whisper.NativeOption{whisper.WithNativeSegmentation(segmentation(entry))}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	// ── Audio sources ─────────────────────────────────────────────────────────

	reg.RegisterSource(config.SourceMicrophone, func(v config.VoiceConfig) (audio.Source, error) {
		return portaudio.New(v.SampleRate, portaudio.WithDevice(v.Device)), nil
	})

	reg.RegisterSource(config.SourceBridge, func(config.VoiceConfig) (audio.Source, error) {
		return audio.NewPushSource(), nil
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// buildProviders instantiates the recognizers named in cfg and groups them
// behind a failover wrapper. Entries without credentials are skipped so the
// application still starts with manual controls.
func buildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*app.Providers, error) {
	ps := &app.Providers{}

	var group *resilience.STTFallback
	entries := append([]config.ProviderEntry{cfg.Voice.Provider}, cfg.Voice.Fallbacks...)
	for _, entry := range entries {
		if entry.Name == "" {
			continue
		}
		if cfg.Voice.Proxy != "" && optString(entry.Options, "proxy") == "" {
			opts := maps.Clone(entry.Options)
			if opts == nil {
				opts = make(map[string]any)
			}
			opts["proxy"] = cfg.Voice.Proxy
			entry.Options = opts
		}
		if !entry.HasCredentials() {
			slog.Warn("provider has no credentials, skipping", "kind", "stt", "name", entry.Name,
				"env", config.CredentialEnv[entry.Name])
			continue
		}
		p, err := reg.CreateSTT(entry)
		if errors.Is(err, config.ErrProviderNotRegistered) {
			slog.Warn("provider not registered, skipping", "kind", "stt", "name", entry.Name)
			continue
		} else if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", entry.Name, err)
		}
		if group == nil {
			group = resilience.NewSTTFallback(p, entry.Name, resilience.FallbackConfig{}, resilience.WithSTTMetrics(m))
		} else {
			group.AddFallback(entry.Name, p)
		}
		slog.Info("provider created", "kind", "stt", "name", entry.Name)
	}
	if group != nil {
		ps.STT = group
		ps.STTNames = group.Names()
	}

	src, err := reg.CreateSource(cfg.Voice)
	if err != nil {
		return nil, fmt.Errorf("create audio source %q: %w", cfg.Voice.Source, err)
	}
	ps.Source = src
	slog.Info("audio source created", "source", cfg.Voice.Source, "device", cfg.Voice.Device)

	return ps, nil
}

// segmentation reads the utterance cut settings from a provider's options.
func segmentation(entry config.ProviderEntry) segment.Config {
	return segment.Config{
		Silence:      optDuration(entry.Options, "silence"),
		MaxDuration:  optDuration(entry.Options, "max_duration"),
		RMSThreshold: optFloat(entry.Options, "rms_threshold"),
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the handler selected by server.log_format. With a log file
// the terminal stays free for the TUI.
func newLogger(cfg config.ServerConfig, level *slog.LevelVar) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeFn := func() {}
	toFile := cfg.LogFile != ""
	if toFile {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = f
		closeFn = func() { _ = f.Close() }
	}

	var h slog.Handler
	switch cfg.LogFormat {
	case config.LogFormatJSON:
		h = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case config.LogFormatText:
		h = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	default:
		h = tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
			NoColor:    toFile,
		})
	}
	return slog.New(h), closeFn, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optDuration accepts "750ms" style strings or a number of milliseconds.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("ignoring invalid duration option", "key", key, "value", v)
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Millisecond
	case float64:
		return time.Duration(v * float64(time.Millisecond))
	}
	return 0
}

func optFloat(opts map[string]any, key string) float64 {
	switch v := opts[key].(type) {
	case int:
		return float64(v)
	case float64:
		return v
	}
	return 0
}
