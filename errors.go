package auth

import (
	"errors"
	"fmt"

	"github.com/parkdesk/auth-go/token"
)

var (
	// ErrAuthExpired means the session cannot be recovered without a new login.
	// Stored credentials have been cleared when it is returned.
	ErrAuthExpired = errors.New("authentication expired")
	// ErrNoRefreshToken is re-exported from the token package for callers
	// matching on the refresh failure cause.
	ErrNoRefreshToken = token.ErrNoRefreshToken
)

// APIError is a non-2xx response carrying the server's message.
type APIError struct {
	Message string
	Status  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// NetworkError is a transport failure that persisted through every retry.
type NetworkError struct {
	Endpoint string
	Attempts int
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error calling %s after %d attempts: %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// authExpiredError keeps the cause of an unrecoverable 401 while matching
// ErrAuthExpired.
type authExpiredError struct {
	cause error
}

func (e *authExpiredError) Error() string {
	if e.cause == nil {
		return ErrAuthExpired.Error()
	}
	return fmt.Sprintf("%s: %v", ErrAuthExpired, e.cause)
}

func (e *authExpiredError) Is(target error) bool {
	return target == ErrAuthExpired
}

func (e *authExpiredError) Unwrap() error {
	return e.cause
}

func authExpired(cause error) error {
	return &authExpiredError{cause: cause}
}
