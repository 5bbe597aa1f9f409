package telemetry

import (
	"log/slog"
	"net/url"
	"time"

	"github.com/teslashibe/go-steady/pkg/clock"
)

// Defaults for the telemetry channel.
const (
	DefaultURL              = "ws://localhost:8000/ws"
	DefaultReconnectDelay   = time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultReadTimeout      = 5 * time.Second
	DefaultReadLimit        = 64 * 1024
)

// Config holds channel configuration.
type Config struct {
	// URL is the WebSocket endpoint of the telemetry source.
	URL string

	// ReconnectDelay is the fixed wait between a drop and the next dial.
	ReconnectDelay time.Duration

	// HandshakeTimeout bounds each dial.
	HandshakeTimeout time.Duration

	// ReadTimeout drops a connection that goes silent for this long.
	// Zero disables the check.
	ReadTimeout time.Duration

	// ReadLimit caps the size of a single payload in bytes.
	ReadLimit int64

	// Clock schedules reconnect timers.
	Clock clock.Clock

	// Logger is the structured logger to use.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		URL:              DefaultURL,
		ReconnectDelay:   DefaultReconnectDelay,
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadTimeout:      DefaultReadTimeout,
		ReadLimit:        DefaultReadLimit,
		Clock:            clock.New(),
		Logger:           slog.Default(),
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
	if c.URL == "" {
		return ErrMissingURL
	}
	if _, err := url.Parse(c.URL); err != nil {
		return err
	}
	if c.ReconnectDelay <= 0 {
		return ErrInvalidReconnectDelay
	}
	return nil
}

// Option is a functional option for configuring a Channel.
type Option func(*Config)

// WithURL sets the telemetry endpoint.
func WithURL(u string) Option {
	return func(c *Config) {
		c.URL = u
	}
}

// WithReconnectDelay sets the fixed reconnect delay.
func WithReconnectDelay(d time.Duration) Option {
	return func(c *Config) {
		c.ReconnectDelay = d
	}
}

// WithHandshakeTimeout sets the dial timeout.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.HandshakeTimeout = d
	}
}

// WithReadTimeout sets the silence timeout. Zero disables it.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.ReadTimeout = d
	}
}

// WithClock sets the clock used for reconnect timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
