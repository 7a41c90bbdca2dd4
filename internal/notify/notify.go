// Package notify delivers transient user-facing messages.
package notify

import (
	"log/slog"
)

// Level classifies a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Notifier displays a transient message to the user.
type Notifier interface {
	Notify(level Level, msg string)
}

// Log writes notices to a structured logger.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a Notifier that logs every notice.
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

// Notify logs msg at a level matching the notice level.
func (l *Log) Notify(level Level, msg string) {
	if level == LevelError {
		l.logger.Error("notice", slog.String("message", msg))
		return
	}
	l.logger.Info("notice", slog.String("message", msg))
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

// Notify forwards to every non-nil notifier.
func (m Multi) Notify(level Level, msg string) {
	for _, n := range m {
		if n != nil {
			n.Notify(level, msg)
		}
	}
}

// Nop discards every notice.
type Nop struct{}

// Notify does nothing.
func (Nop) Notify(Level, string) {}
