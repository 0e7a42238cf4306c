// Package config provides the configuration schema, loader, hot-reload
// watcher and provider registry for speakeasy.
package config

import (
	"time"

	"github.com/MrWong99/speakeasy/internal/lexicon"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the log handler.
type LogFormat string

const (
	// LogFormatPretty is a colored, human-readable terminal format.
	LogFormatPretty LogFormat = "pretty"
	LogFormatText   LogFormat = "text"
	LogFormatJSON   LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	switch f {
	case LogFormatPretty, LogFormatText, LogFormatJSON:
		return true
	}
	return false
}

// UIMode selects the front-end.
type UIMode string

const (
	// UIModeTUI runs the interactive terminal UI.
	UIModeTUI UIMode = "tui"

	// UIModeHeadless only logs; control happens by voice or the bridge.
	UIModeHeadless UIMode = "headless"
)

// IsValid reports whether m is a recognised UI mode.
func (m UIMode) IsValid() bool {
	return m == UIModeTUI || m == UIModeHeadless
}

// JournalBackend selects where session events are recorded.
type JournalBackend string

const (
	JournalNone     JournalBackend = "none"
	JournalSQLite   JournalBackend = "sqlite"
	JournalPostgres JournalBackend = "postgres"
	JournalFile     JournalBackend = "file"
)

// IsValid reports whether b is a recognised journal backend.
func (b JournalBackend) IsValid() bool {
	switch b {
	case JournalNone, JournalSQLite, JournalPostgres, JournalFile:
		return true
	}
	return false
}

// Config is the root configuration structure.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server      ServerConfig         `yaml:"server"`
	Voice       VoiceConfig          `yaml:"voice"`
	Matching    MatchingConfig       `yaml:"matching"`
	Lexicon     map[string][]string  `yaml:"lexicon"`
	Corrections []lexicon.Correction `yaml:"corrections"`
	Session     SessionConfig        `yaml:"session"`
	Listening   ListeningConfig      `yaml:"listening"`
	UI          UIConfig             `yaml:"ui"`
	Bridge      BridgeConfig         `yaml:"bridge"`
	Journal     JournalConfig        `yaml:"journal"`
	Privacy     PrivacyConfig        `yaml:"privacy"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address of the HTTP server serving health
	// checks, metrics and the bridge (e.g., ":8080"). Empty disables it.
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects the handler. Defaults to pretty.
	LogFormat LogFormat `yaml:"log_format"`

	// LogFile redirects logs to a file. The TUI needs the terminal, so this
	// defaults to "speakeasy.log" in tui mode.
	LogFile string `yaml:"log_file"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ProviderEntry is the common configuration block shared by all STT
// providers. Name is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider (e.g., "wit", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered above.
	Options map[string]any `yaml:"options"`
}

// VoiceConfig configures speech capture and recognition.
type VoiceConfig struct {
	// Provider is the primary STT provider.
	Provider ProviderEntry `yaml:"provider"`

	// Fallbacks are tried in order when the primary fails.
	Fallbacks []ProviderEntry `yaml:"fallbacks"`

	// Language is the BCP-47 recognition language. Defaults to "en-US".
	Language string `yaml:"language"`

	// ListenTimeout bounds one listen cycle. Defaults to 10s.
	ListenTimeout time.Duration `yaml:"listen_timeout"`

	// SampleRate of captured audio. Defaults to 16000.
	SampleRate int `yaml:"sample_rate"`

	// Source selects the audio source: "microphone" or "bridge".
	Source string `yaml:"source"`

	// Device is the capture device name; empty uses the system default.
	Device string `yaml:"device"`

	// Proxy is an optional SOCKS5 proxy address (host:port) for cloud
	// providers.
	Proxy string `yaml:"proxy"`
}

// MatchingConfig tunes transcript normalization and interpretation.
type MatchingConfig struct {
	// SimilarityThreshold is the minimum edit-distance similarity for a
	// heuristic correction. Defaults to 0.4.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// IntentThreshold is the minimum confidence for trusting a service
	// intent. Defaults to 0.7.
	IntentThreshold float64 `yaml:"intent_threshold"`

	// Phonetic enables the phonetic keyword snapping stage.
	Phonetic bool `yaml:"phonetic"`
}

// SessionConfig configures the session machine and its steps.
type SessionConfig struct {
	// CommandTimeout is the inactivity time before the timeout prompt.
	// Defaults to 30s; negative disables it.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// Steps replaces the built-in steps when non-empty.
	Steps []StepConfig `yaml:"steps"`
}

// StepConfig describes one session step.
type StepConfig struct {
	Name    string `yaml:"name"`
	Text    string `yaml:"text"`
	Details string `yaml:"details"`

	// Behavior is one of "none", "cues" or "breathing".
	Behavior string `yaml:"behavior"`

	// Cues are rotated every CueInterval for the "cues" behavior.
	Cues        []string      `yaml:"cues"`
	CueInterval time.Duration `yaml:"cue_interval"`

	// Breathing configures the "breathing" behavior.
	Breathing BreathingConfig `yaml:"breathing"`
}

// BreathingConfig holds phase lengths in seconds.
type BreathingConfig struct {
	Inhale int `yaml:"inhale"`
	Hold   int `yaml:"hold"`
	Exhale int `yaml:"exhale"`
}

// ListeningConfig configures the listen/retry/restart cycle.
type ListeningConfig struct {
	MaxRetries         int           `yaml:"max_retries"`
	AcceptRestartDelay time.Duration `yaml:"accept_restart_delay"`
	ErrorRestartDelay  time.Duration `yaml:"error_restart_delay"`
	AbortRestartDelay  time.Duration `yaml:"abort_restart_delay"`

	// IdleReactivate re-enables listening after it stayed off this long
	// during an active session. Negative disables it.
	IdleReactivate time.Duration `yaml:"idle_reactivate"`

	// QuickRetry restarts listening right after a misunderstanding.
	QuickRetry bool `yaml:"quick_retry"`
}

// UIConfig configures the front-end.
type UIConfig struct {
	Mode   UIMode      `yaml:"mode"`
	Sounds SoundConfig `yaml:"sounds"`
}

// SoundConfig configures audible feedback.
type SoundConfig struct {
	Enabled bool `yaml:"enabled"`

	// Files maps feedback kinds ("success", "error", "timeout",
	// "suggestion") to mp3, wav or ogg files. Missing kinds use a tone.
	Files map[string]string `yaml:"files"`
}

// BridgeConfig configures the WebSocket bridge for remote clients.
type BridgeConfig struct {
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path of the endpoint. Defaults to "/ws".
	Path string `yaml:"path"`

	// OriginPatterns lists allowed cross-origin hosts.
	OriginPatterns []string `yaml:"origin_patterns"`
}

// JournalConfig configures the session journal.
type JournalConfig struct {
	Backend JournalBackend `yaml:"backend"`

	// Path is the database or JSONL file for the sqlite and file backends.
	Path string `yaml:"path"`

	// DSN is the PostgreSQL connection string for the postgres backend.
	DSN string `yaml:"dsn"`

	// Buffer is the number of pending entries before new ones are dropped.
	// Defaults to 256.
	Buffer int `yaml:"buffer"`
}

// PrivacyConfig limits where speech data goes.
type PrivacyConfig struct {
	// LocalProcessing restricts recognition to on-device providers.
	LocalProcessing bool `yaml:"local_processing"`

	// StoreTranscripts keeps raw transcripts in the journal. When false they
	// are redacted.
	StoreTranscripts bool `yaml:"store_transcripts"`
}
