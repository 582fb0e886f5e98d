package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/parkdesk/auth-go/notify"
	"github.com/parkdesk/auth-go/token"
)

// RequestOptions describes one logical call.
type RequestOptions struct {
	// Method defaults to GET.
	Method string
	Header http.Header
	// Body is sent as JSON. []byte and json.RawMessage are sent unchanged.
	Body any
	// Anonymous requests carry no credentials and never trigger a refresh.
	Anonymous bool
	// RetryServerErrors gives 5xx responses the same backoff retries as
	// transport failures.
	RetryServerErrors bool
	// NoRetry makes a single network attempt. A transport failure is
	// returned as is, without backoff or a user notification.
	NoRetry bool
}

// Request performs an authenticated call to endpoint and returns the JSON
// payload of a 2xx response, or nil for an empty body.
//
// A 401 triggers a token refresh followed by a retry, up to MaxRetries times.
// Transport failures are retried with a linear backoff of RetryDelay*(n+1).
// Errors are ErrAuthExpired, *APIError, *NetworkError or a context error.
func (c *Client) Request(ctx context.Context, endpoint string, opts RequestOptions) (json.RawMessage, error) {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return nil, err
	}
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}
	call := logicalCall{
		endpoint:  endpoint,
		opts:      opts,
		body:      body,
		requestID: uuid.NewString(),
	}
	return c.request(ctx, call, 0)
}

// Get is Request with GET.
func (c *Client) Get(ctx context.Context, endpoint string) (json.RawMessage, error) {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodGet})
}

// Post is Request with POST and a JSON body.
func (c *Client) Post(ctx context.Context, endpoint string, body any) (json.RawMessage, error) {
	return c.Request(ctx, endpoint, RequestOptions{Method: http.MethodPost, Body: body})
}

// RequestJSON performs Request and decodes the payload into T.
func RequestJSON[T any](ctx context.Context, c *Client, endpoint string, opts RequestOptions) (T, error) {
	var out T
	payload, err := c.Request(ctx, endpoint, opts)
	if err != nil {
		return out, err
	}
	if len(payload) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return out, fmt.Errorf("decoding response of %s: %w", endpoint, err)
	}
	return out, nil
}

type logicalCall struct {
	endpoint  string
	opts      RequestOptions
	body      []byte
	requestID string
}

type response struct {
	status  int
	payload []byte
}

func (c *Client) request(ctx context.Context, call logicalCall, attempt int) (json.RawMessage, error) {
	var bearer string
	if !call.opts.Anonymous {
		var err error
		bearer, err = token.Get(ctx, c.store, token.AccessTokenKey)
		if err != nil {
			return nil, err
		}
		if bearer == "" {
			slog.Debug("AUTH CLIENT", "message", "no access token, not sending request", "endpoint", call.endpoint)
			c.navigator.NavigateToLogin(true)
			return nil, authExpired(nil)
		}
	}

	resp, err := c.send(ctx, call, bearer)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if call.opts.NoRetry {
			return nil, &NetworkError{Endpoint: call.endpoint, Attempts: attempt + 1, Err: err}
		}
		if attempt < MaxRetries {
			return c.retry(ctx, call, attempt, err)
		}
		slog.Error("AUTH CLIENT", "message", "giving up after network errors", "endpoint", call.endpoint,
			"requestID", call.requestID, "attempts", attempt+1, "error", err)
		c.notifier.Notify("Network error: unable to reach the server. Please check your connection.", notify.Error)
		return nil, &NetworkError{Endpoint: call.endpoint, Attempts: attempt + 1, Err: err}
	}

	switch {
	case resp.status/100 == 2:
		if len(bytes.TrimSpace(resp.payload)) == 0 {
			return nil, nil
		}
		return json.RawMessage(resp.payload), nil

	case resp.status == http.StatusUnauthorized && !call.opts.Anonymous:
		if attempt >= MaxRetries {
			return nil, c.expire(ctx, newAPIError(resp.status, resp.payload))
		}
		if _, err := c.refresher.Refresh(ctx, bearer); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			// The refresher already cleared the pair and navigated.
			return nil, authExpired(err)
		}
		slog.Debug("AUTH CLIENT", "message", "retrying with refreshed token", "endpoint", call.endpoint,
			"requestID", call.requestID, "attempt", attempt+1)
		return c.request(ctx, call, attempt+1)

	case resp.status >= 500 && call.opts.RetryServerErrors:
		apiErr := newAPIError(resp.status, resp.payload)
		if attempt < MaxRetries {
			return c.retry(ctx, call, attempt, apiErr)
		}
		c.notifier.Notify(apiErr.Message, notify.Error)
		return nil, apiErr

	default:
		return nil, newAPIError(resp.status, resp.payload)
	}
}

func (c *Client) retry(ctx context.Context, call logicalCall, attempt int, cause error) (json.RawMessage, error) {
	delay := RetryDelay * time.Duration(attempt+1)
	slog.Warn("AUTH CLIENT", "message", "request failed, retrying", "endpoint", call.endpoint,
		"requestID", call.requestID, "attempt", attempt+1, "delay", delay, "error", cause)
	if err := c.sleep(ctx, delay); err != nil {
		return nil, err
	}
	return c.request(ctx, call, attempt+1)
}

// expire clears the credentials after an unrecoverable 401 and sends the
// user to the login view.
func (c *Client) expire(ctx context.Context, cause error) error {
	if err := token.Clear(ctx, c.store); err != nil {
		slog.Error("AUTH CLIENT", "message", "clearing credentials failed", "error", err)
	}
	c.navigator.NavigateToLogin(true)
	return authExpired(cause)
}

// send performs one network attempt. An error means the request did not
// produce a complete response.
func (c *Client) send(ctx context.Context, call logicalCall, bearer string) (response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return response{}, err
		}
	}

	if call.opts.Anonymous {
		ctx = WithAnonymous(ctx)
	} else {
		ctx = withBearer(ctx, bearer)
	}

	var body io.Reader
	if call.body != nil {
		body = bytes.NewReader(call.body)
	}
	req, err := http.NewRequestWithContext(ctx, call.opts.Method, c.url(call.endpoint), body)
	if err != nil {
		return response{}, err
	}
	for k, vs := range call.opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if call.body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", call.requestID)

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, err
	}
	return response{status: resp.StatusCode, payload: payload}, nil
}

func encodeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return b, nil
	case json.RawMessage:
		return b, nil
	default:
		j, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		return j, nil
	}
}

func newAPIError(status int, payload []byte) *APIError {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Detail  string `json:"detail"`
	}
	msg := ""
	if err := json.Unmarshal(payload, &body); err == nil {
		for _, m := range []string{body.Message, body.Error, body.Detail} {
			if m != "" {
				msg = m
				break
			}
		}
	}
	if msg == "" {
		msg = fmt.Sprintf("Request failed with status %d", status)
	}
	return &APIError{Message: msg, Status: status}
}

// IsAPIStatus reports whether err is an *APIError with the given status.
func IsAPIStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
