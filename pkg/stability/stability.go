// Package stability derives a posture-quality status from a telemetry frame.
//
// The source's own classification always wins. Only unclassified frames are
// thresholded locally, on load and on the radial centre-of-pressure offset.
package stability

import (
	"errors"
	"fmt"
	"math"

	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// Default thresholds, matching the platform service.
const (
	DefaultMinLoadKg    = 5.0
	DefaultGreenRadius  = 0.2
	DefaultYellowRadius = 0.5

	// DefaultCoPGain stretches the raw load ratio so a normal stance uses
	// most of the [-1, 1] range.
	DefaultCoPGain = 2.5
)

// Thresholds configures local classification.
type Thresholds struct {
	// MinLoadKg is the load below which a frame is RED: nobody, or not
	// enough of somebody, is on the platform.
	MinLoadKg float64 `json:"min_load_kg"`

	// GreenRadius is the CoP distance from centre below which posture is GREEN.
	GreenRadius float64 `json:"green_radius"`

	// YellowRadius is the CoP distance below which posture is YELLOW.
	YellowRadius float64 `json:"yellow_radius"`
}

// DefaultThresholds returns the platform service's thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinLoadKg:    DefaultMinLoadKg,
		GreenRadius:  DefaultGreenRadius,
		YellowRadius: DefaultYellowRadius,
	}
}

// ErrInvalidThresholds indicates inconsistent thresholds.
var ErrInvalidThresholds = errors.New("stability: invalid thresholds")

// Validate checks 0 < GreenRadius < YellowRadius and MinLoadKg >= 0.
func (t Thresholds) Validate() error {
	if t.MinLoadKg < 0 {
		return fmt.Errorf("%w: min load %v is negative", ErrInvalidThresholds, t.MinLoadKg)
	}
	if t.GreenRadius <= 0 || t.YellowRadius <= t.GreenRadius {
		return fmt.Errorf("%w: need 0 < green (%v) < yellow (%v)", ErrInvalidThresholds, t.GreenRadius, t.YellowRadius)
	}
	return nil
}

// Classifier maps frames to statuses. The zero value is not usable; build
// one with New or Default.
type Classifier struct {
	thresholds Thresholds
}

// New returns a classifier using t.
func New(t Thresholds) (*Classifier, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &Classifier{thresholds: t}, nil
}

// Default returns a classifier with DefaultThresholds.
func Default() *Classifier {
	return &Classifier{thresholds: DefaultThresholds()}
}

// Thresholds returns the classifier's configuration.
func (c *Classifier) Thresholds() Thresholds {
	return c.thresholds
}

// Classify returns f.Status when the source set one, and otherwise derives
// a status from load and CoP distance.
func (c *Classifier) Classify(f telemetry.Frame) telemetry.Status {
	if f.Classified() {
		return f.Status
	}
	return c.derive(f.TotalWeight, f.CopX, f.CopY)
}

func (c *Classifier) derive(weight, x, y float64) telemetry.Status {
	if weight < c.thresholds.MinLoadKg || weight <= 0 {
		return telemetry.StatusRed
	}
	d := math.Hypot(x, y)
	switch {
	case d < c.thresholds.GreenRadius:
		return telemetry.StatusGreen
	case d < c.thresholds.YellowRadius:
		return telemetry.StatusYellow
	default:
		return telemetry.StatusRed
	}
}

// Classify uses the default classifier.
func Classify(f telemetry.Frame) telemetry.Status {
	return Default().Classify(f)
}

// CoPFromLoads computes a normalized centre of pressure from quadrant loads.
// x grows to the right, y grows toward the front edge. The raw ratios are
// multiplied by gain and clamped to [-1, 1]. An unloaded platform yields
// (0, 0).
func CoPFromLoads(q telemetry.Quadrants, gain float64) (x, y float64) {
	total := q.Total()
	if total <= 0 {
		return 0, 0
	}
	x = ((q.TR + q.BR) - (q.TL + q.BL)) / total
	y = ((q.TL + q.TR) - (q.BL + q.BR)) / total
	return clamp(x * gain), clamp(y * gain)
}

func clamp(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}
