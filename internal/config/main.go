package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	Client     ClientConfig
	Store      StoreConfig
	Poller     PollerConfig
	Monitoring MonitoringConfig
	Logging    LoggingConfig
}

type ClientConfig struct {
	BaseURL    *url.URL
	Timeout    time.Duration
	RateLimits RateLimits
}

type RateLimits struct {
	Enabled bool
	Rate    float64
	Burst   int
}

type PollerConfig struct {
	Enabled        bool
	HealthInterval time.Duration
	VerifyInterval time.Duration
}

type SentryConfig struct {
	Enabled     bool
	Dsn         RedactedString
	Environment string
	SampleRate  float64
}

type MonitoringConfig struct {
	Sentry SentryConfig
}

const (
	LogFormatJSON string = "json"
	LogFormatText string = "text"
)

type LoggingConfig struct {
	Level  string
	Format string
}

func (c *Config) Validate() error {
	err := c.Client.Validate()
	if err != nil {
		return err
	}
	err = c.Store.Validate()
	if err != nil {
		return err
	}
	err = c.Poller.Validate()
	if err != nil {
		return err
	}
	err = c.Monitoring.Sentry.Validate()
	if err != nil {
		return err
	}
	return c.Logging.Validate()
}

func (c ClientConfig) Validate() error {
	if c.BaseURL == nil {
		return fmt.Errorf("client.baseURL is required")
	}
	if c.BaseURL.Scheme == "" || c.BaseURL.Host == "" {
		return fmt.Errorf("client.baseURL %q must be absolute", c.BaseURL.String())
	}
	if c.Timeout < 0 {
		return fmt.Errorf("client.timeout cannot be negative")
	}
	if c.RateLimits.Enabled && (c.RateLimits.Rate <= 0 || c.RateLimits.Burst <= 0) {
		return fmt.Errorf("client.rateLimits needs a positive rate and burst when enabled")
	}
	return nil
}

func (c PollerConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.HealthInterval <= 0 && c.VerifyInterval <= 0 {
		return fmt.Errorf("poller is enabled but has no positive interval")
	}
	return nil
}

func (c SentryConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.Dsn == "" {
		return fmt.Errorf("monitoring.sentry.dsn is required when sentry is enabled")
	}
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("monitoring.sentry.sampleRate must be between 0 and 1")
	}
	return nil
}

func (c LoggingConfig) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	switch strings.ToLower(c.Format) {
	case "", LogFormatJSON, LogFormatText:
		return nil
	default:
		return fmt.Errorf("unknown log format %q", c.Format)
	}
}

// SlogLevel parses Level, defaulting to info.
func (c LoggingConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if c.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", c.Level)
	}
	return level, nil
}
