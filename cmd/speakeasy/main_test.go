package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/speakeasy/internal/config"
)

func TestOptDuration(t *testing.T) {
	t.Parallel()

	opts := map[string]any{
		"str":   "750ms",
		"int":   250,
		"float": 1.5,
		"bad":   "soon",
		"other": true,
	}
	tests := []struct {
		key  string
		want time.Duration
	}{
		{"str", 750 * time.Millisecond},
		{"int", 250 * time.Millisecond},
		{"float", 1500 * time.Microsecond},
		{"bad", 0},
		{"other", 0},
		{"missing", 0},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Parallel()
			if got := optDuration(opts, tt.key); got != tt.want {
				t.Errorf("optDuration(%q) = %s, want %s", tt.key, got, tt.want)
			}
		})
	}
}

func TestOptString_NilMap(t *testing.T) {
	t.Parallel()
	if got := optString(nil, "language"); got != "" {
		t.Errorf("optString(nil) = %q, want empty", got)
	}
}

func TestSegmentation(t *testing.T) {
	t.Parallel()

	entry := config.ProviderEntry{Options: map[string]any{
		"silence":       "800ms",
		"max_duration":  "6s",
		"rms_threshold": 450,
	}}
	seg := segmentation(entry)
	if seg.Silence != 800*time.Millisecond || seg.MaxDuration != 6*time.Second || seg.RMSThreshold != 450 {
		t.Errorf("segmentation = %+v", seg)
	}
}

func TestLoadConfig_FlagsOverride(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "dg-key")
	t.Setenv("SPEAKEASY_LOG_LEVEL", "warn")

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("voice:\n  provider:\n    name: whisper\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := flags{configPath: path, logLevel: "debug", ui: "headless", provider: "deepgram"}
	cfg, fromFile, err := loadConfig(f)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if !fromFile {
		t.Error("fromFile = false for an existing file")
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("LogLevel = %q, want the flag over the environment", cfg.Server.LogLevel)
	}
	if cfg.UI.Mode != config.UIModeHeadless || cfg.Server.LogFile != "" {
		t.Errorf("UI = %q, LogFile = %q", cfg.UI.Mode, cfg.Server.LogFile)
	}
	if cfg.Voice.Provider.Name != "deepgram" || cfg.Voice.Provider.APIKey != "dg-key" {
		t.Errorf("Provider = %+v", cfg.Voice.Provider)
	}
}

func TestLoadConfig_MissingDefaultFile(t *testing.T) {
	cfg, fromFile, err := loadConfig(flags{configPath: filepath.Join(t.TempDir(), "config.yaml")})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if fromFile {
		t.Error("fromFile = true without a file")
	}
	if cfg.UI.Mode != config.UIModeTUI {
		t.Errorf("UI = %q, want the tui default", cfg.UI.Mode)
	}
}

func TestNewLogger_File(t *testing.T) {
	t.Parallel()

	for _, format := range []config.LogFormat{config.LogFormatPretty, config.LogFormatText, config.LogFormatJSON} {
		t.Run(string(format), func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "speakeasy.log")
			logger, closeFn, err := newLogger(config.ServerConfig{LogFile: path, LogFormat: format}, new(slog.LevelVar))
			if err != nil {
				t.Fatalf("newLogger: %v", err)
			}
			logger.Info("hello")
			closeFn()
		})
	}
}
