package present

import (
	"context"
	"log/slog"
)

// Log writes every presenter call to a structured logger. It is the
// headless front-end and a useful second sink next to an interactive one.
type Log struct {
	logger *slog.Logger
}

var _ Presenter = (*Log)(nil)

// NewLog returns a Log presenter. A nil logger uses slog.Default.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "present")}
}

func (l *Log) ShowWelcome() { l.logger.Info("welcome shown") }

func (l *Log) ShowStep(text string) { l.logger.Info("step shown", "text", text) }

func (l *Log) ShowComplete() { l.logger.Info("session complete shown") }

func (l *Log) UpdateProgress(current, total int) {
	l.logger.Debug("progress", "current", current, "total", total)
}

func (l *Log) PlayFeedback(kind FeedbackKind, message string) {
	level := slog.LevelInfo
	if kind == Error {
		level = slog.LevelWarn
	}
	l.logger.Log(context.Background(), level, "feedback", "kind", kind.String(), "message", message)
}

func (l *Log) UpdateStatus(listening bool, message string) {
	l.logger.Debug("status", "listening", listening, "message", message)
}

func (l *Log) ShowCue(text string) { l.logger.Debug("cue", "text", text) }
