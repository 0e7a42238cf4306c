package config

import (
	"maps"
	"slices"
)

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; everything else
// needs a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VocabularyChanged is true when the lexicon or corrections changed.
	VocabularyChanged bool

	// MatchingChanged is true when a matching threshold or the phonetic
	// stage changed.
	MatchingChanged bool

	// RestartRequired lists top-level sections that changed but are only
	// read at startup.
	RestartRequired []string
}

// Reloadable reports whether any hot-reloadable setting changed.
func (d ConfigDiff) Reloadable() bool {
	return d.LogLevelChanged || d.VocabularyChanged || d.MatchingChanged
}

// Empty reports whether the two configs are equivalent.
func (d ConfigDiff) Empty() bool {
	return !d.Reloadable() && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if !maps.EqualFunc(old.Lexicon, new.Lexicon, slices.Equal[[]string]) ||
		!slices.Equal(old.Corrections, new.Corrections) {
		d.VocabularyChanged = true
	}

	if old.Matching != new.Matching {
		d.MatchingChanged = true
	}

	if !voiceEqual(old.Voice, new.Voice) {
		d.RestartRequired = append(d.RestartRequired, "voice")
	}
	if old.Server.ListenAddr != new.Server.ListenAddr || old.Server.LogFormat != new.Server.LogFormat || old.Server.LogFile != new.Server.LogFile {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !sessionEqual(old.Session, new.Session) {
		d.RestartRequired = append(d.RestartRequired, "session")
	}
	if old.Listening != new.Listening {
		d.RestartRequired = append(d.RestartRequired, "listening")
	}
	if !uiEqual(old.UI, new.UI) {
		d.RestartRequired = append(d.RestartRequired, "ui")
	}
	if old.Bridge.Enabled != new.Bridge.Enabled || old.Bridge.Path != new.Bridge.Path ||
		!slices.Equal(old.Bridge.OriginPatterns, new.Bridge.OriginPatterns) {
		d.RestartRequired = append(d.RestartRequired, "bridge")
	}
	if old.Journal != new.Journal {
		d.RestartRequired = append(d.RestartRequired, "journal")
	}
	if old.Privacy != new.Privacy {
		d.RestartRequired = append(d.RestartRequired, "privacy")
	}

	return d
}

func voiceEqual(a, b VoiceConfig) bool {
	if !entryEqual(a.Provider, b.Provider) || !slices.EqualFunc(a.Fallbacks, b.Fallbacks, entryEqual) {
		return false
	}
	return a.Language == b.Language && a.ListenTimeout == b.ListenTimeout &&
		a.SampleRate == b.SampleRate && a.Source == b.Source &&
		a.Device == b.Device && a.Proxy == b.Proxy
}

// entryEqual ignores Options; provider-specific values are read at startup
// along with the rest of the entry.
func entryEqual(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model && len(a.Options) == len(b.Options)
}

func uiEqual(a, b UIConfig) bool {
	return a.Mode == b.Mode && a.Sounds.Enabled == b.Sounds.Enabled && maps.Equal(a.Sounds.Files, b.Sounds.Files)
}

func sessionEqual(a, b SessionConfig) bool {
	return a.CommandTimeout == b.CommandTimeout && slices.EqualFunc(a.Steps, b.Steps, func(x, y StepConfig) bool {
		return x.Name == y.Name && x.Text == y.Text && x.Details == y.Details &&
			x.Behavior == y.Behavior && slices.Equal(x.Cues, y.Cues) &&
			x.CueInterval == y.CueInterval && x.Breathing == y.Breathing
	})
}
