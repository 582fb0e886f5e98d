package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/parkdesk/auth-go/token"
)

type ctxKey int

const (
	bearerKey ctxKey = iota
	anonymousKey
)

// withBearer pins the access token a request is sent with, so the caller knows
// exactly which token a 401 rejected.
func withBearer(ctx context.Context, accessToken string) context.Context {
	return context.WithValue(ctx, bearerKey, accessToken)
}

// WithAnonymous marks requests made with ctx as not needing credentials.
func WithAnonymous(ctx context.Context) context.Context {
	return context.WithValue(ctx, anonymousKey, true)
}

func NewBearerRoundTripper(store token.Store, wrapped http.RoundTripper) http.RoundTripper {
	if wrapped == nil {
		wrapped = http.DefaultTransport
	}
	return &roundTripper{
		store:   store,
		wrapped: wrapped,
	}
}

type roundTripper struct {
	store   token.Store
	wrapped http.RoundTripper
}

func (r *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	bearer, err := r.authorization(req.Context())
	if err != nil {
		slog.Error("AUTH TRANSPORT", "message", "reading access token failed", "error", err)
		return nil, err
	}
	if bearer == "" {
		return r.wrapped.RoundTrip(req)
	}

	// RoundTrip must not modify the caller's request.
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", bearer))

	return r.wrapped.RoundTrip(req)
}

// authorization returns the bearer token for the request, or "" when the
// request goes out without one.
func (r *roundTripper) authorization(ctx context.Context) (string, error) {
	if anon, _ := ctx.Value(anonymousKey).(bool); anon {
		return "", nil
	}
	if pinned, ok := ctx.Value(bearerKey).(string); ok {
		return pinned, nil
	}
	return token.Get(ctx, r.store, token.AccessTokenKey)
}
