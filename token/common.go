package token

import (
	"context"
	"errors"
	"fmt"
)

const (
	// AccessTokenKey is the store key holding the bearer access token.
	AccessTokenKey = "parking_auth_token"
	// RefreshTokenKey is the store key holding the refresh token.
	RefreshTokenKey = "parking_refresh_token"
)

var ErrNotFound = errors.New("token: key not found")

// Store is a string key-value store used to persist the token pair.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	// Delete ignores keys that are absent.
	Delete(ctx context.Context, keys ...string) error
}

// Pair is the access/refresh credential pair. Both values are opaque.
type Pair struct {
	Access  string
	Refresh string
}

func (p Pair) String() string {
	return fmt.Sprintf("Pair<Access: %s, Refresh: %s>", redact(p.Access), redact(p.Refresh))
}

func redact(v string) string {
	if v == "" {
		return "none"
	}
	return fmt.Sprintf("redacted-%d-chars", len(v))
}

// Get reads a single key, mapping ErrNotFound to an empty value.
func Get(ctx context.Context, s Store, key string) (string, error) {
	v, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// Load reads both halves of the pair. Missing keys yield empty fields.
func Load(ctx context.Context, s Store) (Pair, error) {
	access, err := Get(ctx, s, AccessTokenKey)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := Get(ctx, s, RefreshTokenKey)
	if err != nil {
		return Pair{}, err
	}
	return Pair{Access: access, Refresh: refresh}, nil
}

// Save persists the access token and, when set, the refresh token. An empty
// refresh token leaves the stored one untouched.
func Save(ctx context.Context, s Store, p Pair) error {
	if p.Access == "" {
		return fmt.Errorf("token: refusing to save an empty access token")
	}
	if err := s.Set(ctx, AccessTokenKey, p.Access); err != nil {
		return err
	}
	if p.Refresh == "" {
		return nil
	}
	return s.Set(ctx, RefreshTokenKey, p.Refresh)
}

// Clear removes both keys.
func Clear(ctx context.Context, s Store) error {
	return s.Delete(ctx, AccessTokenKey, RefreshTokenKey)
}
