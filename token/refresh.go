package token

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

var ErrNoRefreshToken = errors.New("token: no refresh token")

// Refresher exchanges the stored refresh token for a new pair. Concurrent
// callers share a single in-flight exchange and all observe its outcome.
type Refresher struct {
	store     Store
	generator Generator
	timeout   time.Duration
	onFailure func(error)

	single *singleflight.Group
	calls  atomic.Int64
}

type RefresherOption func(*Refresher)

// WithRefreshTimeout bounds a single exchange. Defaults to 30 seconds.
func WithRefreshTimeout(timeout time.Duration) RefresherOption {
	return func(r *Refresher) {
		r.timeout = timeout
	}
}

// WithFailureHook runs once per failed refresh, after the pair is cleared.
func WithFailureHook(hook func(error)) RefresherOption {
	return func(r *Refresher) {
		r.onFailure = hook
	}
}

func NewRefresher(store Store, generator Generator, options ...RefresherOption) *Refresher {
	r := &Refresher{
		store:     store,
		generator: generator,
		timeout:   30 * time.Second,
		onFailure: func(error) {},
		single:    new(singleflight.Group),
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// Refresh returns a fresh access token. stale is the access token that the
// server rejected; if the store already holds a different one, another caller
// refreshed in the meantime and that token is returned without a network call.
//
// On failure the stored pair is cleared and every waiter gets the error.
func (r *Refresher) Refresh(ctx context.Context, stale string) (string, error) {
	ch := r.single.DoChan("refresh", func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
		defer cancel()
		return r.refresh(ctx, stale)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Exchanges reports how many refresh calls reached the generator.
func (r *Refresher) Exchanges() int64 {
	return r.calls.Load()
}

func (r *Refresher) refresh(ctx context.Context, stale string) (string, error) {
	// Double check
	current, err := Get(ctx, r.store, AccessTokenKey)
	if err != nil {
		return "", r.fail(ctx, err)
	}
	if current != "" && current != stale {
		slog.Debug("TOKEN REFRESHER", "message", "token already refreshed by another caller")
		return current, nil
	}

	refreshToken, err := Get(ctx, r.store, RefreshTokenKey)
	if err != nil {
		return "", r.fail(ctx, err)
	}
	if refreshToken == "" {
		return "", r.fail(ctx, ErrNoRefreshToken)
	}

	r.calls.Add(1)
	pair, err := r.generator.Generate(ctx, refreshToken)
	if err != nil {
		return "", r.fail(ctx, err)
	}
	if pair.Access == "" {
		return "", r.fail(ctx, ErrMissingToken)
	}
	if err := Save(ctx, r.store, pair); err != nil {
		return "", r.fail(ctx, err)
	}

	slog.Debug("TOKEN REFRESHER", "message", "access token refreshed", "rotated", pair.Refresh != "")
	return pair.Access, nil
}

func (r *Refresher) fail(ctx context.Context, cause error) error {
	slog.Warn("TOKEN REFRESHER", "message", "refresh failed, clearing credentials", "error", cause)
	if err := Clear(ctx, r.store); err != nil {
		slog.Error("TOKEN REFRESHER", "message", "clearing credentials failed", "error", err)
	}
	r.onFailure(cause)
	return cause
}
