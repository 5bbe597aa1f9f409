// Package session runs timed balance-training sessions.
//
// A session counts down a short CALIBRATION phase, then a TRAINING phase of
// the chosen length, sampling the latest telemetry once per tick and scoring
// a point for every GREEN tick with someone on the platform. It reaches
// COMPLETE exactly once and reports {score, duration}. Cancelling the
// context before then discards everything and reports nothing.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/teslashibe/go-steady/pkg/stability"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// FrameSource exposes the latest telemetry frame without blocking.
type FrameSource interface {
	Latest() telemetry.Frame
}

// Classifier resolves a frame's stability status.
type Classifier interface {
	Classify(f telemetry.Frame) telemetry.Status
}

// Calibrator asks the sensor backend to zero its baseline.
type Calibrator interface {
	CommitCalibration(ctx context.Context) error
}

// CalibratorFunc adapts a function to Calibrator.
type CalibratorFunc func(ctx context.Context) error

// CommitCalibration calls f.
func (f CalibratorFunc) CommitCalibration(ctx context.Context) error {
	return f(ctx)
}

// Session is a single training run. Run it once.
type Session struct {
	config *Config
	logger *slog.Logger
	source FrameSource

	mu      sync.RWMutex
	machine *Machine

	cbMu       sync.Mutex
	onPhase    func(Phase)
	onComplete func(Result)

	started atomic.Bool
	commits sync.WaitGroup
}

// New creates a session that samples source. The duration must be set with
// WithDuration.
func New(source FrameSource, opts ...Option) (*Session, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	machine, err := NewMachine(cfg)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: frame source is required", ErrInvalidConfig)
	}
	if cfg.Classifier == nil {
		cfg.Classifier = stability.Default()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Session{
		config:  cfg,
		logger:  cfg.Logger.With("component", "session"),
		source:  source,
		machine: machine,
	}, nil
}

// OnPhaseChange sets the callback for phase transitions.
func (s *Session) OnPhaseChange(callback func(Phase)) {
	s.cbMu.Lock()
	s.onPhase = callback
	s.cbMu.Unlock()
}

// OnComplete sets the callback for the final result. It fires at most once.
func (s *Session) OnComplete(callback func(Result)) {
	s.cbMu.Lock()
	s.onComplete = callback
	s.cbMu.Unlock()
}

// Run drives the session until COMPLETE or until ctx ends. On completion it
// returns the result; on cancellation it returns ErrCancelled and no
// completion callback fires. The ticker is stopped before Run returns.
func (s *Session) Run(ctx context.Context) (Result, error) {
	if !s.started.CompareAndSwap(false, true) {
		return Result{}, ErrAlreadyStarted
	}

	ticker := s.config.Clock.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.logger.Info("session started",
		"duration_s", s.config.DurationSeconds,
		"calibration_s", s.config.CalibrationSeconds,
	)

	for {
		select {
		case <-ctx.Done():
			return Result{}, s.cancelled(ctx)

		case <-ticker.C():
			if ctx.Err() != nil {
				return Result{}, s.cancelled(ctx)
			}

			step := s.tick()

			if step.Calibrated {
				s.commitCalibration()
			}
			if step.PhaseChanged {
				s.logger.Debug("session phase", "phase", step.Phase.String())
				s.notifyPhase(step.Phase)
			}
			if step.Completed {
				ticker.Stop()
				s.logger.Info("session complete",
					"score", step.Result.Score,
					"duration_s", step.Result.DurationSeconds,
					"percent", step.Result.Percent(),
				)
				s.notifyComplete(step.Result)
				return step.Result, nil
			}
		}
	}
}

func (s *Session) tick() Step {
	frame := s.source.Latest()
	sample := Sample{
		Status:   s.config.Classifier.Classify(frame),
		WeightKg: frame.TotalWeight,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Tick(sample)
}

func (s *Session) cancelled(ctx context.Context) error {
	snap := s.Snapshot()
	s.logger.Info("session cancelled", "phase", snap.Phase.String(), "score", snap.Score)
	return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// commitCalibration fires the calibration request without waiting for it.
// The request runs on its own timeout and outlives a cancelled session.
func (s *Session) commitCalibration() {
	cal := s.config.Calibrator
	if cal == nil {
		return
	}

	s.commits.Add(1)
	go func() {
		defer s.commits.Done()

		ctx, cancel := context.WithTimeout(context.Background(), s.config.CommitTimeout)
		defer cancel()

		if err := cal.CommitCalibration(ctx); err != nil {
			s.logger.Warn("calibration commit failed", "error", err)
			return
		}
		s.logger.Debug("calibration committed")
	}()
}

// WaitCommits blocks until in-flight calibration commits have returned.
func (s *Session) WaitCommits() {
	s.commits.Wait()
}

func (s *Session) notifyPhase(p Phase) {
	s.cbMu.Lock()
	cb := s.onPhase
	s.cbMu.Unlock()
	if cb != nil {
		cb(p)
	}
}

func (s *Session) notifyComplete(r Result) {
	s.cbMu.Lock()
	cb := s.onComplete
	s.onComplete = nil
	s.cbMu.Unlock()
	if cb != nil {
		cb(r)
	}
}

// Snapshot returns the session's current state. Safe to call while Run is
// in progress.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.machine.Snapshot()
}

// DurationSeconds returns the configured TRAINING length.
func (s *Session) DurationSeconds() int {
	return s.config.DurationSeconds
}
