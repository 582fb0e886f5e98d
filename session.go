package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/parkdesk/auth-go/notify"
	"github.com/parkdesk/auth-go/token"
	"golang.org/x/oauth2"
)

// Login exchanges staff credentials for a token pair and persists it.
// A response without a refresh token removes any stale one.
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload, err := c.Request(ctx, LoginEndpoint, RequestOptions{
		Method:    http.MethodPost,
		Body:      map[string]string{"username": username, "password": password},
		Anonymous: true,
	})
	if err != nil {
		slog.Info("AUTH CLIENT", "message", "login failed", "username", username, "error", err)
		msg := "Login failed"
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			msg = apiErr.Message
		}
		c.notifier.Notify(msg, notify.Error)
		return err
	}

	var resp token.Response
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &resp); err != nil {
			return fmt.Errorf("decoding login response: %w", err)
		}
	}
	if resp.Token == "" {
		apiErr := &APIError{Message: "Login failed: no token in response", Status: http.StatusOK}
		c.notifier.Notify(apiErr.Message, notify.Error)
		return apiErr
	}

	if resp.RefreshToken == "" {
		if err := c.store.Delete(ctx, token.RefreshTokenKey); err != nil {
			return err
		}
	}
	if err := token.Save(ctx, c.store, resp.Pair()); err != nil {
		return err
	}
	slog.Info("AUTH CLIENT", "message", "logged in", "username", username)
	c.notifier.Notify("Logged in successfully", notify.Success)
	return nil
}

// Logout forgets the credentials and sends the user to the login view.
// No request is made to the backend.
func (c *Client) Logout(ctx context.Context) error {
	err := token.Clear(ctx, c.store)
	if err != nil {
		slog.Error("AUTH CLIENT", "message", "clearing credentials failed", "error", err)
	}
	c.navigator.NavigateToLogin(false)
	return err
}

// IsAuthenticated reports whether an access token is stored. It does not
// check the token with the backend.
func (c *Client) IsAuthenticated(ctx context.Context) bool {
	access, err := token.Get(ctx, c.store, token.AccessTokenKey)
	return err == nil && access != ""
}

// Verify checks the session with the backend, refreshing it when needed.
// It returns false without an error when the session is gone. Without a
// stored token no request is made.
func (c *Client) Verify(ctx context.Context) (bool, error) {
	if !c.IsAuthenticated(ctx) {
		return false, nil
	}
	_, err := c.Request(ctx, VerifyEndpoint, RequestOptions{Method: http.MethodGet})
	if errors.Is(err, ErrAuthExpired) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Health calls the backend liveness endpoint with a single attempt.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.Request(ctx, HealthEndpoint, RequestOptions{Method: http.MethodGet, Anonymous: true, NoRetry: true})
	return err
}

// CheckSession guards a view that needs a logged in user. Without stored
// credentials it navigates to login and returns false.
func (c *Client) CheckSession(ctx context.Context) bool {
	if !c.IsAuthenticated(ctx) {
		c.navigator.NavigateToLogin(false)
		return false
	}
	ok, err := c.Verify(ctx)
	if err != nil {
		slog.Warn("AUTH CLIENT", "message", "session check failed", "error", err)
		return false
	}
	return ok
}

// TokenSource exposes the stored credentials to code built on
// golang.org/x/oauth2. It never refreshes; Request does that on demand.
func (c *Client) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, store: c.store}
}

type storeTokenSource struct {
	ctx   context.Context
	store token.Store
}

func (s *storeTokenSource) Token() (*oauth2.Token, error) {
	pair, err := token.Load(s.ctx, s.store)
	if err != nil {
		return nil, err
	}
	if pair.Access == "" {
		return nil, ErrAuthExpired
	}
	return &oauth2.Token{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		TokenType:    "Bearer",
	}, nil
}
