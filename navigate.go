package auth

import (
	"log/slog"
	"net/url"
)

const LoginPath = "/login"

// Navigator sends the user to the login view.
type Navigator interface {
	// NavigateToLogin is called after credentials were cleared. expired is true
	// when the session was lost rather than ended by the user.
	NavigateToLogin(expired bool)
}

type NavigatorFunc func(expired bool)

func (f NavigatorFunc) NavigateToLogin(expired bool) {
	f(expired)
}

// LoginRedirect hands the login location to Redirect, e.g. to write an
// HTTP 303 or print a hint on a terminal.
type LoginRedirect struct {
	Redirect func(location string)
}

func (l LoginRedirect) NavigateToLogin(expired bool) {
	l.Redirect(LoginLocation(expired))
}

// LoginLocation returns /login, flagged with expired=true when the session
// expired.
func LoginLocation(expired bool) string {
	if !expired {
		return LoginPath
	}
	q := url.Values{}
	q.Set("expired", "true")
	return LoginPath + "?" + q.Encode()
}

type logNavigator struct{}

func (logNavigator) NavigateToLogin(expired bool) {
	slog.Info("AUTH CLIENT", "message", "redirecting to login", "location", LoginLocation(expired))
}
