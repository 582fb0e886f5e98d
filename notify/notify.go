// Package notify delivers short user-facing messages, the toast surface of
// the staff application.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

type Severity string

const (
	Info    Severity = "info"
	Success Severity = "success"
	Error   Severity = "error"
)

func (s Severity) Valid() bool {
	switch s {
	case Info, Success, Error:
		return true
	default:
		return false
	}
}

// ParseSeverity accepts the lower-case severity names.
func ParseSeverity(v string) (Severity, error) {
	s := Severity(v)
	if !s.Valid() {
		return "", fmt.Errorf("unknown severity %q", v)
	}
	return s, nil
}

// Notifier decides how a message is shown. Callers only decide when and what.
type Notifier interface {
	Notify(message string, severity Severity)
}

type NotifierFunc func(message string, severity Severity)

func (f NotifierFunc) Notify(message string, severity Severity) {
	f(message, severity)
}

// Discard drops every message.
var Discard Notifier = NotifierFunc(func(string, Severity) {})

type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier writes notifications to logger, or slog.Default() when nil.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Notify(message string, severity Severity) {
	level := slog.LevelInfo
	if severity == Error {
		level = slog.LevelError
	}
	l.logger.Log(context.Background(), level, "NOTIFICATION", "message", message, "severity", string(severity))
}

type multi []Notifier

// Multi fans every message out to all notifiers in order.
func Multi(notifiers ...Notifier) Notifier {
	return multi(notifiers)
}

func (m multi) Notify(message string, severity Severity) {
	for _, n := range m {
		n.Notify(message, severity)
	}
}
