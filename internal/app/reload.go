package app

import (
	"log/slog"

	"github.com/MrWong99/speakeasy/internal/config"
)

// Reload applies the hot-reloadable parts of r.Next as reported by r.Diff:
// the log level, the vocabulary and the matching thresholds. Sections in
// r.Diff.RestartRequired are logged and take effect on restart. It is safe
// to call from the config watcher goroutine.
func (a *App) Reload(r config.Reload) {
	d, next := r.Diff, r.Next

	if d.LogLevelChanged && a.levelVar != nil {
		a.levelVar.Set(SlogLevel(d.NewLogLevel))
		a.logger.Info("log level changed", "level", d.NewLogLevel)
	}

	if d.VocabularyChanged || d.MatchingChanged {
		interp, _, err := BuildInterpreter(next)
		if err != nil {
			a.logger.Warn("config reload: vocabulary rejected, keeping previous", "err", err)
		} else {
			a.dispatcher.SetInterpreter(interp)
			a.logger.Info("command vocabulary reloaded",
				"vocabulary_changed", d.VocabularyChanged,
				"matching_changed", d.MatchingChanged,
			)
		}
	}

	if len(d.RestartRequired) > 0 {
		a.logger.Warn("config changes need a restart to take effect", "sections", d.RestartRequired)
	}
}

// SlogLevel maps a config level to its slog level.
func SlogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
