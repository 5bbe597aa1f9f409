package session

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/teslashibe/go-steady/pkg/clock"
)

// Defaults for a training session.
const (
	DefaultCalibrationSeconds = 3
	DefaultMinScoringWeightKg = 0.5
	DefaultMaxDurationSeconds = 3600
	DefaultTickInterval       = time.Second
	DefaultCommitTimeout      = 5 * time.Second
)

// Config holds session configuration.
type Config struct {
	// DurationSeconds is the length of the TRAINING phase. Required.
	DurationSeconds int

	// CalibrationSeconds is the countdown before TRAINING begins.
	CalibrationSeconds int

	// MinScoringWeightKg is the load a GREEN tick must exceed to score.
	MinScoringWeightKg float64

	// MaxDurationSeconds caps DurationSeconds. Zero means no cap.
	MaxDurationSeconds int

	// TickInterval is the period of one countdown step.
	TickInterval time.Duration

	// CommitTimeout bounds the calibration commit request.
	CommitTimeout time.Duration

	// Classifier resolves the status of unclassified frames.
	// Defaults to stability.Default().
	Classifier Classifier

	// Calibrator receives the calibration commit. Nil disables it.
	Calibrator Calibrator

	Clock  clock.Clock
	Logger *slog.Logger
}

// DefaultConfig returns a Config with sensible defaults. DurationSeconds is
// left at zero and must be set.
func DefaultConfig() *Config {
	return &Config{
		CalibrationSeconds: DefaultCalibrationSeconds,
		MinScoringWeightKg: DefaultMinScoringWeightKg,
		MaxDurationSeconds: DefaultMaxDurationSeconds,
		TickInterval:       DefaultTickInterval,
		CommitTimeout:      DefaultCommitTimeout,
		Clock:              clock.New(),
		Logger:             slog.Default(),
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
	if c.DurationSeconds <= 0 {
		return fmt.Errorf("%w: %d seconds must be positive", ErrInvalidDuration, c.DurationSeconds)
	}
	if c.MaxDurationSeconds > 0 && c.DurationSeconds > c.MaxDurationSeconds {
		return fmt.Errorf("%w: %d seconds exceeds the %d second maximum",
			ErrInvalidDuration, c.DurationSeconds, c.MaxDurationSeconds)
	}
	if c.CalibrationSeconds <= 0 {
		return fmt.Errorf("%w: calibration seconds must be positive", ErrInvalidConfig)
	}
	if c.MinScoringWeightKg < 0 {
		return fmt.Errorf("%w: minimum scoring weight is negative", ErrInvalidConfig)
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("%w: tick interval must be positive", ErrInvalidConfig)
	}
	return nil
}

// Option is a functional option for configuring a Session.
type Option func(*Config)

// WithDuration sets the TRAINING length in seconds.
func WithDuration(seconds int) Option {
	return func(c *Config) {
		c.DurationSeconds = seconds
	}
}

// WithCalibrationSeconds sets the CALIBRATION countdown.
func WithCalibrationSeconds(seconds int) Option {
	return func(c *Config) {
		c.CalibrationSeconds = seconds
	}
}

// WithMinScoringWeight sets the load a GREEN tick must exceed to score.
func WithMinScoringWeight(kg float64) Option {
	return func(c *Config) {
		c.MinScoringWeightKg = kg
	}
}

// WithMaxDuration caps the TRAINING length.
func WithMaxDuration(seconds int) Option {
	return func(c *Config) {
		c.MaxDurationSeconds = seconds
	}
}

// WithTickInterval sets the countdown period.
func WithTickInterval(d time.Duration) Option {
	return func(c *Config) {
		c.TickInterval = d
	}
}

// WithCommitTimeout bounds the calibration commit.
func WithCommitTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.CommitTimeout = d
	}
}

// WithClassifier sets the status classifier.
func WithClassifier(cl Classifier) Option {
	return func(c *Config) {
		c.Classifier = cl
	}
}

// WithCalibrator sets the calibration commit target.
func WithCalibrator(cal Calibrator) Option {
	return func(c *Config) {
		c.Calibrator = cal
	}
}

// WithClock sets the tick source.
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
