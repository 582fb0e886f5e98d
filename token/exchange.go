package token

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var ErrMissingToken = errors.New("token: response did not include a token")

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// Response is the body returned by the login and refresh endpoints.
type Response struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

func (r Response) Pair() Pair {
	return Pair{Access: r.Token, Refresh: r.RefreshToken}
}

// StatusError is returned by Exchange for a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("token exchange got response %d %s", e.StatusCode, e.Body)
}

// Exchange posts payload as JSON to tokenURL and decodes the token response.
func Exchange(ctx context.Context, client Doer, tokenURL string, payload any) (Response, error) {
	j, err := json.Marshal(payload)
	if err != nil {
		return Response{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, bytes.NewBuffer(j))
	if err != nil {
		return Response{}, err
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}

	if resp.StatusCode/100 != 2 {
		return Response{}, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return Response{}, fmt.Errorf("token exchange: malformed response: %w", err)
	}
	if out.Token == "" {
		return Response{}, ErrMissingToken
	}
	return out, nil
}
