package platform

import (
	"log/slog"
	"time"

	"github.com/teslashibe/go-steady/pkg/clock"
	"github.com/teslashibe/go-steady/pkg/stability"
)

// Defaults for the platform simulator, matching the sensor service.
const (
	DefaultSampleInterval = 10 * time.Millisecond
	DefaultStreamInterval = 50 * time.Millisecond
	DefaultFilterAlpha    = 0.6
	DefaultScaleFactor    = 0.00004
	DefaultHistoryLimit   = 50
)

// Config holds simulator configuration.
type Config struct {
	// SampleInterval is how often the sensor is read.
	SampleInterval time.Duration

	// StreamInterval is how often each /ws client gets the latest frame.
	StreamInterval time.Duration

	// FilterAlpha is the EMA weight given to each new reading.
	FilterAlpha float64

	// ScaleFactor converts raw load-cell units to kilograms.
	ScaleFactor float64

	// CoPGain stretches the raw CoP ratio before clamping.
	CoPGain float64

	// Thresholds classify each processed frame.
	Thresholds stability.Thresholds

	// HistoryLimit bounds the saved session history.
	HistoryLimit int

	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		SampleInterval: DefaultSampleInterval,
		StreamInterval: DefaultStreamInterval,
		FilterAlpha:    DefaultFilterAlpha,
		ScaleFactor:    DefaultScaleFactor,
		CoPGain:        stability.DefaultCoPGain,
		Thresholds:     stability.DefaultThresholds(),
		HistoryLimit:   DefaultHistoryLimit,
		Clock:          clock.New(),
		Logger:         slog.Default(),
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
	if c.SampleInterval <= 0 || c.StreamInterval <= 0 {
		return ErrInvalidInterval
	}
	if c.FilterAlpha <= 0 || c.FilterAlpha > 1 {
		return ErrInvalidAlpha
	}
	if c.ScaleFactor <= 0 {
		return ErrInvalidScale
	}
	if c.HistoryLimit <= 0 {
		return ErrInvalidHistoryLimit
	}
	return c.Thresholds.Validate()
}

// Option is a functional option for configuring the simulator.
type Option func(*Config)

// WithSampleInterval sets the sensor read period.
func WithSampleInterval(d time.Duration) Option {
	return func(c *Config) {
		c.SampleInterval = d
	}
}

// WithStreamInterval sets the /ws push period.
func WithStreamInterval(d time.Duration) Option {
	return func(c *Config) {
		c.StreamInterval = d
	}
}

// WithFilterAlpha sets the EMA weight.
func WithFilterAlpha(alpha float64) Option {
	return func(c *Config) {
		c.FilterAlpha = alpha
	}
}

// WithHistoryLimit bounds the saved history.
func WithHistoryLimit(n int) Option {
	return func(c *Config) {
		c.HistoryLimit = n
	}
}

// WithClock sets the sampling clock.
func WithClock(clk clock.Clock) Option {
	return func(c *Config) {
		c.Clock = clk
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}
