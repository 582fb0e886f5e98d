package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	auth "github.com/parkdesk/auth-go"
	"github.com/parkdesk/auth-go/internal/config"
	"github.com/parkdesk/auth-go/notify"
	"github.com/parkdesk/auth-go/poller"
)

const usage = `usage: parkingctl <command> [flags]

commands:
  login -u USER [-p PASSWORD]   log in and store the token pair (PARKING_PASSWORD is read when -p is omitted)
  logout                        forget the stored token pair
  verify                        check the session with the backend
  health                        check that the backend is up
  get ENDPOINT                  GET an API endpoint and print the JSON response
  watch                         poll health and session until interrupted
`

var logLevel = new(slog.LevelVar)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "help" {
		fmt.Fprint(stdout, usage)
		return nil
	}

	ch := config.NewConfigHandler()
	cfg, err := ch.Config()
	if err != nil {
		return fmt.Errorf("loading the configuration failed: %w", err)
	}
	setupLogging(cfg.Logging, stderr)
	slog.Debug("PARKINGCTL", "message", "loaded config", "config", cfg)

	notifier := notify.Notifier(notify.NewLogNotifier(nil))
	if cfg.Monitoring.Sentry.Enabled {
		if err := sentry.Init(sentryOptions(cfg.Monitoring.Sentry)); err != nil {
			slog.Error("PARKINGCTL", "message", "sentry initialization failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
			notifier = notify.Multi(notifier, notify.NewSentryNotifier(nil))
		}
	}

	client, err := newClient(cfg, notifier, stderr)
	if err != nil {
		return err
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return login(ctx, client, rest)
	case "logout":
		return client.Logout(ctx)
	case "verify":
		ok, err := client.Verify(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(stdout, "expired")
			return errors.New("session expired")
		}
		fmt.Fprintln(stdout, "valid")
		return nil
	case "health":
		if err := client.Health(ctx); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "ok")
		return nil
	case "get":
		if len(rest) != 1 {
			return errors.New("get needs exactly one endpoint")
		}
		payload, err := client.Get(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(stdout, payload)
	case "watch":
		return watch(ctx, ch, cfg, client, notifier)
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// sentryOptions maps the config onto the client. SampleRate applies to the
// error events notifications are reported as.
func sentryOptions(c config.SentryConfig) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:         string(c.Dsn),
		SampleRate:  c.SampleRate,
		Environment: c.Environment,
	}
}

func setupLogging(c config.LoggingConfig, w io.Writer) {
	level, err := c.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	logLevel.Set(level)
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(c.Format, config.LogFormatText) {
		handler = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func newClient(cfg config.Config, notifier notify.Notifier, stderr io.Writer) (*auth.Client, error) {
	store, err := cfg.Store.TokenStore()
	if err != nil {
		return nil, err
	}
	options := []auth.ClientOption{
		auth.WithBaseURL(cfg.Client.BaseURL.String()),
		auth.WithStore(store),
		auth.WithTimeout(cfg.Client.Timeout),
		auth.WithNotifier(notifier),
		auth.WithNavigator(auth.LoginRedirect{Redirect: func(location string) {
			fmt.Fprintf(stderr, "Please log in again: parkingctl login (%s)\n", location)
		}}),
	}
	if cfg.Client.RateLimits.Enabled {
		options = append(options, auth.WithRateLimit(cfg.Client.RateLimits.Rate, cfg.Client.RateLimits.Burst))
	}
	return auth.NewClient(options...)
}

func login(ctx context.Context, client *auth.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	username := fs.String("u", "", "Username")
	password := fs.String("p", "", "Password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *password == "" {
		*password = os.Getenv("PARKING_PASSWORD")
	}
	if *username == "" || *password == "" {
		return errors.New("login needs -u and -p (or PARKING_PASSWORD)")
	}
	return client.Login(ctx, *username, *password)
}

func watch(ctx context.Context, ch *config.ConfigHandler, cfg config.Config, client *auth.Client, notifier notify.Notifier) error {
	if !cfg.Poller.Enabled {
		return errors.New("the poller is disabled, set poller.enabled in the configuration")
	}
	p, err := poller.NewPoller(
		client,
		poller.WithHealthInterval(cfg.Poller.HealthInterval),
		poller.WithVerifyInterval(cfg.Poller.VerifyInterval),
		poller.WithNotifier(notifier),
	)
	if err != nil {
		return err
	}

	ch.HandleChanges(func(c config.Config, err error) {
		if err != nil {
			slog.Error("PARKINGCTL", "message", "reloading the configuration failed", "error", err)
			return
		}
		if level, err := c.Logging.SlogLevel(); err == nil {
			logLevel.Set(level)
		}
	})
	ch.Watch()

	p.Start()
	defer p.Stop()
	<-ctx.Done()
	slog.Info("PARKINGCTL", "message", "received signal to stop watching")
	return nil
}

func printJSON(w io.Writer, payload json.RawMessage) error {
	if len(payload) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(payload, &v); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
