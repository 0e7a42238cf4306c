package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/speakeasy/internal/lexicon"
)

// ValidProviderNames lists the known STT provider names. Used by [Validate]
// to warn about unrecognised names.
var ValidProviderNames = []string{"wit", "deepgram", "openai", "whisper", "whisper-native"}

// LocalProviders run on the device and are allowed with
// privacy.local_processing.
var LocalProviders = []string{"whisper", "whisper-native"}

// CredentialEnv maps provider names to the environment variable holding
// their API key.
var CredentialEnv = map[string]string{
	"wit":      "WIT_ACCESS_TOKEN",
	"deepgram": "DEEPGRAM_API_KEY",
	"openai":   "OPENAI_API_KEY",
}

// Defaults.
const (
	DefaultLanguage            = "en-US"
	DefaultListenTimeout       = 10 * time.Second
	DefaultSampleRate          = 16000
	DefaultSimilarityThreshold = 0.4
	DefaultIntentThreshold     = 0.7
	DefaultCommandTimeout      = 30 * time.Second
	DefaultMaxRetries          = 3
	DefaultAcceptRestartDelay  = 500 * time.Millisecond
	DefaultErrorRestartDelay   = 1500 * time.Millisecond
	DefaultAbortRestartDelay   = 2 * time.Second
	DefaultIdleReactivate      = 5 * time.Second
	DefaultBridgePath          = "/ws"
	DefaultJournalBuffer       = 256
	DefaultTUILogFile          = "speakeasy.log"
)

// Audio sources.
const (
	SourceMicrophone = "microphone"
	SourceBridge     = "bridge"
)

// LoadOption configures [Load] and [LoadFromReader].
type LoadOption func(*loadOptions)

type loadOptions struct {
	lookup    func(string) (string, bool)
	overrides []func(*Config)
}

// WithLookup applies environment overrides using lookup, usually
// [os.LookupEnv].
func WithLookup(lookup func(string) (string, bool)) LoadOption {
	return func(o *loadOptions) { o.lookup = lookup }
}

// WithOverride runs fn after the environment overrides and before defaults
// and validation. Command-line flags use it so they win over both the file
// and the environment, also on hot reload.
func WithOverride(fn func(*Config)) LoadOption {
	return func(o *loadOptions) { o.overrides = append(o.overrides, fn) }
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string, opts ...LoadOption) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data), opts...)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies environment overrides
// and defaults, and validates the result. An empty document yields the
// default configuration.
func LoadFromReader(r io.Reader, opts ...LoadOption) (*Config, error) {
	var o loadOptions
	for _, opt := range opts {
		opt(&o)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if o.lookup != nil {
		ApplyEnv(cfg, o.lookup)
	}
	for _, fn := range o.overrides {
		fn(cfg)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with SPEAKEASY_* variables and fills empty
// provider API keys from the provider's credential variable.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var level, ui, backend string
	set("SPEAKEASY_LISTEN_ADDR", &cfg.Server.ListenAddr)
	set("SPEAKEASY_LOG_LEVEL", &level)
	set("SPEAKEASY_STT_PROVIDER", &cfg.Voice.Provider.Name)
	set("SPEAKEASY_UI", &ui)
	set("SPEAKEASY_JOURNAL_BACKEND", &backend)
	set("SPEAKEASY_JOURNAL_DSN", &cfg.Journal.DSN)
	set("SPEAKEASY_PROXY", &cfg.Voice.Proxy)
	if level != "" {
		cfg.Server.LogLevel = LogLevel(level)
	}
	if ui != "" {
		cfg.UI.Mode = UIMode(ui)
	}
	if backend != "" {
		cfg.Journal.Backend = JournalBackend(backend)
	}

	fill := func(e *ProviderEntry) {
		if e.APIKey != "" {
			return
		}
		if key, ok := CredentialEnv[e.Name]; ok {
			set(key, &e.APIKey)
		}
	}
	fill(&cfg.Voice.Provider)
	for i := range cfg.Voice.Fallbacks {
		fill(&cfg.Voice.Fallbacks[i])
	}
}

// ApplyDefaults fills every unset field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatPretty
	}
	if cfg.UI.Mode == "" {
		cfg.UI.Mode = UIModeTUI
	}
	if cfg.UI.Mode == UIModeTUI && cfg.Server.LogFile == "" {
		cfg.Server.LogFile = DefaultTUILogFile
	}

	v := &cfg.Voice
	if v.Language == "" {
		v.Language = DefaultLanguage
	}
	if v.ListenTimeout == 0 {
		v.ListenTimeout = DefaultListenTimeout
	}
	if v.SampleRate == 0 {
		v.SampleRate = DefaultSampleRate
	}
	if v.Source == "" {
		v.Source = SourceMicrophone
	}

	if cfg.Matching.SimilarityThreshold == 0 {
		cfg.Matching.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Matching.IntentThreshold == 0 {
		cfg.Matching.IntentThreshold = DefaultIntentThreshold
	}
	if cfg.Session.CommandTimeout == 0 {
		cfg.Session.CommandTimeout = DefaultCommandTimeout
	}

	l := &cfg.Listening
	if l.MaxRetries == 0 {
		l.MaxRetries = DefaultMaxRetries
	}
	if l.AcceptRestartDelay == 0 {
		l.AcceptRestartDelay = DefaultAcceptRestartDelay
	}
	if l.ErrorRestartDelay == 0 {
		l.ErrorRestartDelay = DefaultErrorRestartDelay
	}
	if l.AbortRestartDelay == 0 {
		l.AbortRestartDelay = DefaultAbortRestartDelay
	}
	if l.IdleReactivate == 0 {
		l.IdleReactivate = DefaultIdleReactivate
	}

	if cfg.Bridge.Path == "" {
		cfg.Bridge.Path = DefaultBridgePath
	}
	if cfg.Journal.Backend == "" {
		cfg.Journal.Backend = JournalNone
	}
	if cfg.Journal.Buffer == 0 {
		cfg.Journal.Buffer = DefaultJournalBuffer
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
//
// Missing provider credentials are not an error: the application starts and
// listening reports the service as not configured.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: pretty, text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Voice
	entries := append([]ProviderEntry{cfg.Voice.Provider}, cfg.Voice.Fallbacks...)
	for i, e := range entries {
		prefix := "voice.provider"
		if i > 0 {
			prefix = fmt.Sprintf("voice.fallbacks[%d]", i-1)
		}
		if e.Name == "" {
			if i > 0 {
				errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			}
			continue
		}
		validateProviderName(e.Name)
		if cfg.Privacy.LocalProcessing && !slices.Contains(LocalProviders, e.Name) {
			errs = append(errs, fmt.Errorf("%s %q sends audio off the device but privacy.local_processing is enabled", prefix, e.Name))
		}
	}
	if cfg.Voice.Provider.Name == "" {
		slog.Warn("voice.provider is not configured; only manual controls will work")
	}
	if cfg.Voice.ListenTimeout < 0 {
		errs = append(errs, fmt.Errorf("voice.listen_timeout %s must not be negative", cfg.Voice.ListenTimeout))
	}
	if cfg.Voice.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("voice.sample_rate %d must be positive", cfg.Voice.SampleRate))
	}
	switch cfg.Voice.Source {
	case "", SourceMicrophone, SourceBridge:
	default:
		errs = append(errs, fmt.Errorf("voice.source %q is invalid; valid values: microphone, bridge", cfg.Voice.Source))
	}
	if cfg.Voice.Source == SourceBridge && !cfg.Bridge.Enabled {
		errs = append(errs, errors.New("voice.source is bridge but bridge.enabled is false"))
	}
	if cfg.Voice.Proxy != "" {
		if _, _, err := net.SplitHostPort(cfg.Voice.Proxy); err != nil {
			errs = append(errs, fmt.Errorf("voice.proxy %q: %w", cfg.Voice.Proxy, err))
		}
	}

	// Matching
	if t := cfg.Matching.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matching.similarity_threshold %.2f is out of range [0, 1]", t))
	}
	if t := cfg.Matching.IntentThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("matching.intent_threshold %.2f is out of range [0, 1]", t))
	}

	// Lexicon and corrections
	if _, err := cfg.Table(); err != nil {
		errs = append(errs, err)
	}

	// Session steps
	for i, st := range cfg.Session.Steps {
		prefix := fmt.Sprintf("session.steps[%d]", i)
		if st.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if st.Text == "" {
			errs = append(errs, fmt.Errorf("%s.text is required", prefix))
		}
		switch st.Behavior {
		case "", "none":
		case "cues":
			if len(st.Cues) == 0 {
				errs = append(errs, fmt.Errorf("%s.cues is required for behavior cues", prefix))
			}
		case "breathing":
			b := st.Breathing
			if b.Inhale <= 0 || b.Exhale <= 0 || b.Hold < 0 {
				errs = append(errs, fmt.Errorf("%s.breathing needs positive inhale and exhale", prefix))
			}
		default:
			errs = append(errs, fmt.Errorf("%s.behavior %q is invalid; valid values: none, cues, breathing", prefix, st.Behavior))
		}
	}

	// Listening
	if cfg.Listening.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("listening.max_retries %d must not be negative", cfg.Listening.MaxRetries))
	}

	// UI
	if cfg.UI.Mode != "" && !cfg.UI.Mode.IsValid() {
		errs = append(errs, fmt.Errorf("ui.mode %q is invalid; valid values: tui, headless", cfg.UI.Mode))
	}
	for kind := range cfg.UI.Sounds.Files {
		switch kind {
		case "success", "error", "timeout", "suggestion":
		default:
			errs = append(errs, fmt.Errorf("ui.sounds.files: unknown feedback kind %q", kind))
		}
	}

	// Journal
	j := cfg.Journal
	if j.Backend != "" && !j.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("journal.backend %q is invalid; valid values: none, sqlite, postgres, file", j.Backend))
	}
	if (j.Backend == JournalSQLite || j.Backend == JournalFile) && j.Path == "" {
		errs = append(errs, fmt.Errorf("journal.path is required for backend %s", j.Backend))
	}
	if j.Backend == JournalPostgres && j.DSN == "" {
		errs = append(errs, errors.New("journal.dsn is required for backend postgres"))
	}

	return errors.Join(errs...)
}

// Table builds the command vocabulary: the built-in table with the
// configured phrase lists and corrections replacing the defaults.
func (c *Config) Table() (lexicon.Table, error) {
	t := lexicon.Default()
	if len(c.Lexicon) > 0 {
		lex := make(lexicon.Lexicon, len(t.Lexicon))
		for k, v := range t.Lexicon {
			lex[k] = v
		}
		for name, phrases := range c.Lexicon {
			cmd, err := lexicon.ParseCommand(name)
			if err != nil {
				return lexicon.Table{}, fmt.Errorf("lexicon: %w", err)
			}
			lex[cmd] = phrases
		}
		t.Lexicon = lex
	}
	if len(c.Corrections) > 0 {
		t.Corrections = c.Corrections
	}
	if err := t.Validate(); err != nil {
		return lexicon.Table{}, err
	}
	return t, nil
}

// HasCredentials reports whether e can be used without further setup.
func (e ProviderEntry) HasCredentials() bool {
	if e.Name == "" {
		return false
	}
	if _, needsKey := CredentialEnv[e.Name]; needsKey {
		return e.APIKey != ""
	}
	return true
}

// validateProviderName logs a warning if name is not in [ValidProviderNames].
func validateProviderName(name string) {
	if slices.Contains(ValidProviderNames, name) {
		return
	}
	slog.Warn("unknown stt provider name, may be a typo or third-party provider",
		"name", name,
		"known", ValidProviderNames,
	)
}
