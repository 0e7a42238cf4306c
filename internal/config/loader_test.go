package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/internal/config"
	"github.com/MrWong99/speakeasy/internal/lexicon"
	"github.com/MrWong99/speakeasy/pkg/audio"
	"github.com/MrWong99/speakeasy/pkg/provider/stt"
	sttmock "github.com/MrWong99/speakeasy/pkg/provider/stt/mock"
)

const sampleYAML = `
server:
  listen_addr: ":8080"
  log_level: debug
  log_format: json

voice:
  provider:
    name: wit
    api_key: wit-test
  fallbacks:
    - name: whisper
      base_url: http://localhost:8081
  language: en-US
  listen_timeout: 8s

matching:
  similarity_threshold: 0.5
  intent_threshold: 0.8
  phonetic: true

lexicon:
  next: ["next", "onward"]

corrections:
  - from: container
    to: continue

session:
  command_timeout: 45s
  steps:
    - name: Arrive
      text: Settle in.
    - name: Breathe
      text: Follow the breath.
      behavior: breathing
      breathing: {inhale: 4, hold: 7, exhale: 8}

listening:
  max_retries: 2
  quick_retry: true

ui:
  mode: headless
  sounds:
    enabled: true
    files:
      success: chime.wav

journal:
  backend: sqlite
  path: journal.db

privacy:
  store_transcripts: true
`

func TestLoadFromReader_Sample(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(sampleYAML))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":8080" || cfg.Server.LogLevel != config.LogDebug || cfg.Server.LogFormat != config.LogFormatJSON {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Voice.Provider.Name != "wit" || cfg.Voice.Provider.APIKey != "wit-test" {
		t.Errorf("voice.provider = %+v", cfg.Voice.Provider)
	}
	if len(cfg.Voice.Fallbacks) != 1 || cfg.Voice.Fallbacks[0].Name != "whisper" {
		t.Errorf("voice.fallbacks = %+v", cfg.Voice.Fallbacks)
	}
	if cfg.Voice.ListenTimeout != 8*time.Second {
		t.Errorf("listen_timeout = %s, want 8s", cfg.Voice.ListenTimeout)
	}
	if cfg.Matching.SimilarityThreshold != 0.5 || cfg.Matching.IntentThreshold != 0.8 || !cfg.Matching.Phonetic {
		t.Errorf("matching = %+v", cfg.Matching)
	}
	if cfg.Session.CommandTimeout != 45*time.Second {
		t.Errorf("command_timeout = %s", cfg.Session.CommandTimeout)
	}
	if len(cfg.Session.Steps) != 2 || cfg.Session.Steps[1].Breathing.Hold != 7 {
		t.Errorf("steps = %+v", cfg.Session.Steps)
	}
	if cfg.Listening.MaxRetries != 2 || !cfg.Listening.QuickRetry {
		t.Errorf("listening = %+v", cfg.Listening)
	}
	// Unset listening delays get defaults.
	if cfg.Listening.AcceptRestartDelay != config.DefaultAcceptRestartDelay {
		t.Errorf("accept_restart_delay = %s", cfg.Listening.AcceptRestartDelay)
	}
	if cfg.UI.Mode != config.UIModeHeadless || cfg.UI.Sounds.Files["success"] != "chime.wav" {
		t.Errorf("ui = %+v", cfg.UI)
	}
	if cfg.Server.LogFile != "" {
		t.Errorf("headless mode got log_file %q", cfg.Server.LogFile)
	}
	if cfg.Journal.Backend != config.JournalSQLite || cfg.Journal.Buffer != config.DefaultJournalBuffer {
		t.Errorf("journal = %+v", cfg.Journal)
	}
	if !cfg.Privacy.StoreTranscripts {
		t.Error("privacy.store_transcripts = false")
	}

	tbl, err := cfg.Table()
	if err != nil {
		t.Fatalf("Table: %v", err)
	}
	if got := tbl.Lexicon[lexicon.Next]; len(got) != 2 || got[1] != "onward" {
		t.Errorf("next phrases = %q", got)
	}
	if len(tbl.Lexicon[lexicon.Start]) == 0 {
		t.Error("start phrases lost by the override")
	}
	if len(tbl.Corrections) != 1 {
		t.Errorf("corrections = %+v", tbl.Corrections)
	}
}

func TestLoadFromReader_EmptyUsesDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.UI.Mode != config.UIModeTUI || cfg.Server.LogFile != config.DefaultTUILogFile {
		t.Errorf("ui mode %q log file %q", cfg.UI.Mode, cfg.Server.LogFile)
	}
	if cfg.Voice.ListenTimeout != 10*time.Second || cfg.Voice.SampleRate != 16000 {
		t.Errorf("voice = %+v", cfg.Voice)
	}
	if cfg.Matching.SimilarityThreshold != 0.4 || cfg.Matching.IntentThreshold != 0.7 {
		t.Errorf("matching = %+v", cfg.Matching)
	}
	if cfg.Session.CommandTimeout != 30*time.Second {
		t.Errorf("command_timeout = %s", cfg.Session.CommandTimeout)
	}
	l := cfg.Listening
	if l.MaxRetries != 3 || l.AcceptRestartDelay != 500*time.Millisecond ||
		l.ErrorRestartDelay != 1500*time.Millisecond || l.AbortRestartDelay != 2*time.Second ||
		l.IdleReactivate != 5*time.Second {
		t.Errorf("listening = %+v", l)
	}
	if cfg.Journal.Backend != config.JournalNone {
		t.Errorf("journal.backend = %q", cfg.Journal.Backend)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  colour: blue\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_NegativeTimeoutDisables(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("session:\n  command_timeout: -1s\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Session.CommandTimeout >= 0 {
		t.Errorf("command_timeout = %s, want negative", cfg.Session.CommandTimeout)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"bad log level", "server:\n  log_level: loud\n", "server.log_level"},
		{"bad log format", "server:\n  log_format: xml\n", "server.log_format"},
		{"half tls", "server:\n  tls:\n    cert_file: a.pem\n", "server.tls"},
		{"bad ui", "ui:\n  mode: gui\n", "ui.mode"},
		{"bad sound kind", "ui:\n  sounds:\n    files:\n      fanfare: x.wav\n", "ui.sounds.files"},
		{"threshold range", "matching:\n  similarity_threshold: 1.5\n", "matching.similarity_threshold"},
		{"intent range", "matching:\n  intent_threshold: -0.5\n", "matching.intent_threshold"},
		{"unnamed fallback", "voice:\n  fallbacks:\n    - base_url: x\n", "voice.fallbacks[0].name"},
		{"bad source", "voice:\n  source: radio\n", "voice.source"},
		{"bridge source disabled", "voice:\n  source: bridge\n", "bridge.enabled"},
		{"bad proxy", "voice:\n  proxy: nohost\n", "voice.proxy"},
		{"unknown command", "lexicon:\n  jump: [\"jump\"]\n", "unknown command"},
		{"self correction", "corrections:\n  - from: next\n    to: next step\n", "contains it"},
		{"step without text", "session:\n  steps:\n    - name: a\n", "session.steps[0].text"},
		{"bad behavior", "session:\n  steps:\n    - name: a\n      text: b\n      behavior: dance\n", "session.steps[0].behavior"},
		{"cues without cues", "session:\n  steps:\n    - name: a\n      text: b\n      behavior: cues\n", "session.steps[0].cues"},
		{"breathing zero", "session:\n  steps:\n    - name: a\n      text: b\n      behavior: breathing\n", "session.steps[0].breathing"},
		{"negative retries", "listening:\n  max_retries: -1\n", "listening.max_retries"},
		{"bad journal", "journal:\n  backend: mongo\n", "journal.backend"},
		{"sqlite without path", "journal:\n  backend: sqlite\n", "journal.path"},
		{"postgres without dsn", "journal:\n  backend: postgres\n", "journal.dsn"},
		{"cloud with local processing", "voice:\n  provider:\n    name: deepgram\nprivacy:\n  local_processing: true\n", "privacy.local_processing"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.LoadFromReader(strings.NewReader(tt.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("server:\n  log_level: loud\nui:\n  mode: gui\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"server.log_level", "ui.mode"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidate_LocalProcessingAllowsWhisper(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("voice:\n  provider:\n    name: whisper-native\n    model: ggml-base.en.bin\nprivacy:\n  local_processing: true\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MissingCredentialsIsNotAnError(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("voice:\n  provider:\n    name: wit\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Voice.Provider.HasCredentials() {
		t.Error("HasCredentials() = true without api key")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		"SPEAKEASY_LOG_LEVEL":    "warn",
		"SPEAKEASY_LISTEN_ADDR":  ":9999",
		"SPEAKEASY_STT_PROVIDER": "deepgram",
		"SPEAKEASY_UI":           "headless",
		"DEEPGRAM_API_KEY":       "dg-env",
		"OPENAI_API_KEY":         "sk-env",
	}
	lookup := func(k string) (string, bool) { v, ok := env[k]; return v, ok }

	cfg, err := config.LoadFromReader(strings.NewReader(`
voice:
  provider:
    name: wit
  fallbacks:
    - name: openai
    - name: openai
      api_key: sk-file
`), config.WithLookup(lookup))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.LogLevel != config.LogWarn || cfg.Server.ListenAddr != ":9999" || cfg.UI.Mode != config.UIModeHeadless {
		t.Errorf("server/ui overrides not applied: %+v %+v", cfg.Server, cfg.UI)
	}
	if cfg.Voice.Provider.Name != "deepgram" || cfg.Voice.Provider.APIKey != "dg-env" {
		t.Errorf("provider = %+v", cfg.Voice.Provider)
	}
	if cfg.Voice.Fallbacks[0].APIKey != "sk-env" {
		t.Errorf("fallback[0] key = %q, want env value", cfg.Voice.Fallbacks[0].APIKey)
	}
	if cfg.Voice.Fallbacks[1].APIKey != "sk-file" {
		t.Errorf("fallback[1] key = %q, file value must win", cfg.Voice.Fallbacks[1].APIKey)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "speakeasy.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Voice.Provider.Name != "wit" {
		t.Errorf("provider = %q", cfg.Voice.Provider.Name)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestHasCredentials(t *testing.T) {
	t.Parallel()
	tests := []struct {
		entry config.ProviderEntry
		want  bool
	}{
		{config.ProviderEntry{}, false},
		{config.ProviderEntry{Name: "wit"}, false},
		{config.ProviderEntry{Name: "wit", APIKey: "x"}, true},
		{config.ProviderEntry{Name: "whisper"}, true},
	}
	for _, tt := range tests {
		if got := tt.entry.HasCredentials(); got != tt.want {
			t.Errorf("%+v.HasCredentials() = %v, want %v", tt.entry, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := config.NewRegistry()

	_, err := r.CreateSTT(config.ProviderEntry{Name: "wit"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Fatalf("err = %v, want ErrProviderNotRegistered", err)
	}

	want := &sttmock.Provider{}
	r.RegisterSTT("wit", func(e config.ProviderEntry) (stt.Provider, error) {
		if e.APIKey != "k" {
			return nil, errors.New("bad key")
		}
		return want, nil
	})
	got, err := r.CreateSTT(config.ProviderEntry{Name: "wit", APIKey: "k"})
	if err != nil || got != want {
		t.Fatalf("CreateSTT = %v, %v", got, err)
	}

	r.RegisterSTT("deepgram", func(config.ProviderEntry) (stt.Provider, error) { return want, nil })
	if names := r.STTNames(); len(names) != 2 || names[0] != "deepgram" {
		t.Errorf("STTNames() = %q", names)
	}

	src := audio.NewPushSource()
	r.RegisterSource(config.SourceBridge, func(config.VoiceConfig) (audio.Source, error) { return src, nil })
	gotSrc, err := r.CreateSource(config.VoiceConfig{Source: config.SourceBridge})
	if err != nil || gotSrc != src {
		t.Fatalf("CreateSource = %v, %v", gotSrc, err)
	}
	if _, err := r.CreateSource(config.VoiceConfig{Source: "microphone"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v", err)
	}
}
