package backend

import (
	"log/slog"
	"net/http"
	"time"
)

// Defaults for the backend client.
const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultTimeout       = 10 * time.Second
	DefaultRetryWaitTime = 500 * time.Millisecond
)

// Config holds client configuration.
type Config struct {
	// BaseURL is the sensor backend's HTTP root.
	BaseURL string

	// Timeout bounds each request.
	Timeout time.Duration

	// RetryCount is how many times a failed request is retried. The
	// calibration commit and session save are one-shot, so this defaults to 0.
	RetryCount    int
	RetryWaitTime time.Duration

	// HTTPClient, if set, replaces the client built from internal/httpc.
	HTTPClient *http.Client

	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		RetryWaitTime: DefaultRetryWaitTime,
		Logger:        slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return ErrMissingBaseURL
	}
	return nil
}

// Option is a functional option for configuring a Client.
type Option func(*Config)

// WithBaseURL sets the backend root URL.
func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.Timeout = d
	}
}

// WithRetry enables retries of transport failures and retryable statuses.
func WithRetry(count int, wait time.Duration) Option {
	return func(c *Config) {
		c.RetryCount = count
		c.RetryWaitTime = wait
	}
}

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Config) {
		c.HTTPClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
