// Package platform simulates the force-platform sensor service.
//
// A Platform samples a Sensor, smooths each load cell with an EMA filter,
// subtracts the calibration offsets and converts the result into telemetry
// frames. A Server exposes those frames on /ws alongside the calibration,
// session history and report endpoints the training client talks to.
package platform

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teslashibe/go-steady/pkg/stability"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// Platform turns raw load-cell readings into telemetry frames.
type Platform struct {
	config     *Config
	logger     *slog.Logger
	sensor     Sensor
	classifier *stability.Classifier

	mu      sync.RWMutex
	filters [4]EMA
	offsets telemetry.Quadrants
	latest  telemetry.Frame

	running      atomic.Bool
	samples      atomic.Uint64
	calibrations atomic.Uint64
}

// New creates a platform reading from sensor.
func New(sensor Sensor, opts ...Option) (*Platform, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	classifier, err := stability.New(cfg.Thresholds)
	if err != nil {
		return nil, err
	}

	p := &Platform{
		config:     cfg,
		logger:     cfg.Logger.With("component", "platform"),
		sensor:     sensor,
		classifier: classifier,
		latest:     telemetry.NoSignal(),
	}
	for i := range p.filters {
		p.filters[i] = NewEMA(cfg.FilterAlpha)
	}
	return p, nil
}

// Run samples the sensor every SampleInterval until ctx ends.
func (p *Platform) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	ticker := p.config.Clock.NewTicker(p.config.SampleInterval)
	defer ticker.Stop()

	p.logger.Info("sampling started", "interval", p.config.SampleInterval)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("sampling stopped")
			return nil
		case <-ticker.C():
			p.Sample()
		}
	}
}

// Sample reads the sensor once and returns the resulting frame.
func (p *Platform) Sample() telemetry.Frame {
	raw := p.sensor.Read()

	p.mu.Lock()
	defer p.mu.Unlock()

	filtered := telemetry.Quadrants{
		TL: p.filters[0].Update(raw.TL),
		TR: p.filters[1].Update(raw.TR),
		BL: p.filters[2].Update(raw.BL),
		BR: p.filters[3].Update(raw.BR),
	}
	p.latest = p.frame(filtered)
	p.samples.Add(1)
	return p.latest
}

func (p *Platform) frame(filtered telemetry.Quadrants) telemetry.Frame {
	net := telemetry.Quadrants{
		TL: math.Max(0, filtered.TL-p.offsets.TL),
		TR: math.Max(0, filtered.TR-p.offsets.TR),
		BL: math.Max(0, filtered.BL-p.offsets.BL),
		BR: math.Max(0, filtered.BR-p.offsets.BR),
	}
	kg := net.Total() * p.config.ScaleFactor

	f := telemetry.Frame{
		TotalWeight:        math.Round(kg*100) / 100,
		WeightDistribution: net,
		Status:             telemetry.StatusRed,
	}
	if kg > p.config.Thresholds.MinLoadKg {
		f.CopX, f.CopY = stability.CoPFromLoads(net, p.config.CoPGain)
		f.Status = p.classifier.Classify(telemetry.Frame{
			CopX:        f.CopX,
			CopY:        f.CopY,
			TotalWeight: kg,
		})
	}
	return f
}

// Calibrate takes the current filtered readings as the zero baseline and
// returns them.
func (p *Platform) Calibrate() telemetry.Quadrants {
	p.mu.Lock()
	p.offsets = telemetry.Quadrants{
		TL: p.filters[0].Last(),
		TR: p.filters[1].Last(),
		BL: p.filters[2].Last(),
		BR: p.filters[3].Last(),
	}
	offsets := p.offsets
	p.mu.Unlock()

	p.calibrations.Add(1)
	p.logger.Info("calibrated", "offsets", offsets)
	return offsets
}

// Offsets returns the current calibration baseline.
func (p *Platform) Offsets() telemetry.Quadrants {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.offsets
}

// Latest returns the most recent frame, or NoSignal before the first sample.
func (p *Platform) Latest() telemetry.Frame {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Sensor returns the platform's sensor.
func (p *Platform) Sensor() Sensor {
	return p.sensor
}

// IsRunning reports whether Run is sampling.
func (p *Platform) IsRunning() bool {
	return p.running.Load()
}

// Stats contains platform statistics.
type Stats struct {
	Samples      uint64          `json:"samples"`
	Calibrations uint64          `json:"calibrations"`
	Running      bool            `json:"running"`
	Latest       telemetry.Frame `json:"latest"`
	At           time.Time       `json:"at"`
}

// Stats returns platform statistics.
func (p *Platform) Stats() Stats {
	return Stats{
		Samples:      p.samples.Load(),
		Calibrations: p.calibrations.Load(),
		Running:      p.running.Load(),
		Latest:       p.Latest(),
		At:           p.config.Clock.Now(),
	}
}
