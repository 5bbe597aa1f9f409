package platform

import (
	"math"
	"math/rand"
	"sync"

	"github.com/teslashibe/go-steady/pkg/stability"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// Sensor returns one raw reading of the four load cells.
type Sensor interface {
	Read() telemetry.Quadrants
}

// SensorFunc adapts a function to Sensor.
type SensorFunc func() telemetry.Quadrants

// Read calls f.
func (f SensorFunc) Read() telemetry.Quadrants {
	return f()
}

// Sway model defaults.
const (
	DefaultBodyWeightKg = 70.0
	DefaultTareRaw      = 50000.0
	DefaultSwayAmp      = 0.25
)

// SwaySensor synthesises load-cell readings for a person swaying gently
// around the platform centre. Readings include a constant tare per cell so
// calibration has something to zero. Seeded sensors are reproducible.
type SwaySensor struct {
	mu sync.Mutex

	rng      *rand.Rand
	occupied bool
	step     int

	weightKg float64
	tare     float64
	scale    float64
	gain     float64
	amp      float64
}

// NewSwaySensor returns a sway sensor seeded with seed.
func NewSwaySensor(seed int64, occupied bool) *SwaySensor {
	return &SwaySensor{
		rng:      rand.New(rand.NewSource(seed)),
		occupied: occupied,
		weightKg: DefaultBodyWeightKg,
		tare:     DefaultTareRaw,
		scale:    DefaultScaleFactor,
		gain:     stability.DefaultCoPGain,
		amp:      DefaultSwayAmp,
	}
}

// SetOccupied puts someone on, or takes them off, the platform.
func (s *SwaySensor) SetOccupied(occupied bool) {
	s.mu.Lock()
	s.occupied = occupied
	s.mu.Unlock()
}

// Occupied reports whether the simulated person is on the platform.
func (s *SwaySensor) Occupied() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.occupied
}

// SetWeight changes the simulated body weight.
func (s *SwaySensor) SetWeight(kg float64) {
	s.mu.Lock()
	s.weightKg = kg
	s.mu.Unlock()
}

// Read advances the sway model by one sample.
func (s *SwaySensor) Read() telemetry.Quadrants {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.step++
	t := float64(s.step) * DefaultSampleInterval.Seconds()

	// Two slow oscillations at unrelated frequencies plus a little jitter.
	x := s.amp*math.Sin(2*math.Pi*0.31*t) + 0.03*s.rng.NormFloat64()
	y := 0.8*s.amp*math.Sin(2*math.Pi*0.17*t+1) + 0.03*s.rng.NormFloat64()

	rx, ry := x/s.gain, y/s.gain

	load := 0.0
	if s.occupied {
		load = s.weightKg / s.scale
	}

	cell := func(share float64) float64 {
		v := s.tare + load*share + 200*s.rng.NormFloat64()
		return math.Max(0, v)
	}

	return telemetry.Quadrants{
		TL: cell((1 - rx + ry) / 4),
		TR: cell((1 + rx + ry) / 4),
		BL: cell((1 - rx - ry) / 4),
		BR: cell((1 + rx - ry) / 4),
	}
}
