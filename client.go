package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/parkdesk/auth-go/notify"
	"github.com/parkdesk/auth-go/token"
	"golang.org/x/time/rate"
)

const (
	// MaxRetries bounds the extra network attempts of one logical call.
	MaxRetries = 3
	// RetryDelay is the backoff unit; attempt n waits RetryDelay*(n+1).
	RetryDelay = 1000 * time.Millisecond

	DefaultTimeout = 30 * time.Second
)

const (
	LoginEndpoint   = "/api/auth/login"
	RefreshEndpoint = "/api/auth/refresh"
	VerifyEndpoint  = "/api/auth/verify"
	HealthEndpoint  = "/api/health"
)

// Sleeper waits d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Client is the authenticated request client. Build one per process with
// NewClient and share it; it is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	store     token.Store
	http      *http.Client
	base      http.RoundTripper
	timeout   time.Duration
	notifier  notify.Notifier
	navigator Navigator
	sleep     Sleeper
	limiter   *rate.Limiter
	refresher *token.Refresher
}

type ClientOption func(*Client) error

// WithBaseURL sets the origin every endpoint is resolved against.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) error {
		u, err := url.Parse(strings.TrimRight(baseURL, "/"))
		if err != nil {
			return err
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base URL %q must be absolute", baseURL)
		}
		c.baseURL = u
		return nil
	}
}

// WithStore injects the token store. Defaults to an in-memory store.
func WithStore(store token.Store) ClientOption {
	return func(c *Client) error {
		c.store = store
		return nil
	}
}

// WithTransport sets the transport below the bearer round tripper.
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *Client) error {
		c.base = rt
		return nil
	}
}

// WithTimeout bounds each network attempt. Zero disables the timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) error {
		if timeout < 0 {
			return fmt.Errorf("invalid timeout %s", timeout)
		}
		c.timeout = timeout
		return nil
	}
}

func WithNotifier(n notify.Notifier) ClientOption {
	return func(c *Client) error {
		c.notifier = n
		return nil
	}
}

func WithNavigator(n Navigator) ClientOption {
	return func(c *Client) error {
		c.navigator = n
		return nil
	}
}

// WithSleeper replaces the backoff wait, mostly for tests.
func WithSleeper(s Sleeper) ClientOption {
	return func(c *Client) error {
		c.sleep = s
		return nil
	}
}

// WithRateLimit caps outgoing network attempts to r per second with the given burst.
func WithRateLimit(r float64, burst int) ClientOption {
	return func(c *Client) error {
		if r <= 0 || burst <= 0 {
			return fmt.Errorf("invalid rate limit %v/%d", r, burst)
		}
		c.limiter = rate.NewLimiter(rate.Limit(r), burst)
		return nil
	}
}

// NewClient creates a Client. WithBaseURL is required.
func NewClient(options ...ClientOption) (*Client, error) {
	c := &Client{
		store:     token.NewMemoryStore(),
		base:      http.DefaultTransport,
		timeout:   DefaultTimeout,
		notifier:  notify.Discard,
		navigator: logNavigator{},
		sleep:     sleep,
	}
	for _, opt := range options {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.baseURL == nil {
		return nil, fmt.Errorf("base URL not set")
	}
	if c.store == nil {
		return nil, fmt.Errorf("token store not initialized")
	}
	if c.notifier == nil {
		c.notifier = notify.Discard
	}
	if c.navigator == nil {
		c.navigator = logNavigator{}
	}

	c.http = &http.Client{
		Transport: NewBearerRoundTripper(c.store, c.base),
		Timeout:   c.timeout,
	}
	// The refresh call carries the refresh token in its body, not a bearer header.
	refreshClient := &http.Client{Transport: c.base, Timeout: c.timeout}
	c.refresher = token.NewRefresher(
		c.store,
		token.NewGeneratorHTTP(refreshClient, c.url(RefreshEndpoint)),
		token.WithRefreshTimeout(c.refreshTimeout()),
		token.WithFailureHook(func(error) { c.navigator.NavigateToLogin(true) }),
	)
	return c, nil
}

// Transport returns the bearer round tripper used by the client, for callers
// that want a plain *http.Client sharing the same credentials.
func (c *Client) Transport() http.RoundTripper {
	return c.http.Transport
}

// Store returns the token store the client reads credentials from.
func (c *Client) Store() token.Store {
	return c.store
}

// Exchanges reports how many refresh calls reached the backend.
func (c *Client) Exchanges() int64 {
	return c.refresher.Exchanges()
}

func (c *Client) refreshTimeout() time.Duration {
	if c.timeout == 0 {
		return DefaultTimeout
	}
	return c.timeout
}

func (c *Client) url(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return c.baseURL.String() + endpoint
}
