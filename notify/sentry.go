package notify

import (
	"github.com/getsentry/sentry-go"
)

// SentryNotifier reports error notifications to Sentry. Info and success
// messages are not interesting there and are dropped.
type SentryNotifier struct {
	hub *sentry.Hub
}

var _ Notifier = (*SentryNotifier)(nil)

// NewSentryNotifier uses hub, or the current hub when nil.
func NewSentryNotifier(hub *sentry.Hub) *SentryNotifier {
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	return &SentryNotifier{hub: hub}
}

func (s *SentryNotifier) Notify(message string, severity Severity) {
	if severity != Error {
		return
	}
	s.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelError)
		scope.SetTag("component", "auth-client")
		s.hub.CaptureMessage(message)
	})
}
