package telemetry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// wireFrame accepts both the snake_case keys the platform service emits and
// the camelCase spelling used by newer firmware.
type wireFrame struct {
	CopX          *float64   `json:"cop_x"`
	CopXAlt       *float64   `json:"copX"`
	CopY          *float64   `json:"cop_y"`
	CopYAlt       *float64   `json:"copY"`
	TotalWeight   *float64   `json:"totalWeight"`
	WeightDist    *Quadrants `json:"weightDist"`
	WeightDistAlt *Quadrants `json:"weightDistribution"`
	AIStatus      *string    `json:"aiStatus"`
	StatusAlt     *string    `json:"status"`
}

// Decode parses one telemetry payload.
//
// Missing numeric fields default to zero and a missing status leaves the
// frame unclassified. CoP values outside [-1, 1] are clamped. Anything that
// is not a JSON object, carries an unknown status, or reports a negative
// load fails with ErrMalformedFrame.
func Decode(data []byte) (Frame, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Frame{}, fmt.Errorf("%w: not a JSON object", ErrMalformedFrame)
	}

	var w wireFrame
	if err := json.Unmarshal(trimmed, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	f := Frame{
		CopX:        clampUnit(firstOf(w.CopX, w.CopXAlt)),
		CopY:        clampUnit(firstOf(w.CopY, w.CopYAlt)),
		TotalWeight: firstOf(w.TotalWeight),
	}

	if f.TotalWeight < 0 || math.IsNaN(f.TotalWeight) {
		return Frame{}, fmt.Errorf("%w: negative total weight %v", ErrMalformedFrame, f.TotalWeight)
	}

	switch {
	case w.WeightDist != nil:
		f.WeightDistribution = *w.WeightDist
	case w.WeightDistAlt != nil:
		f.WeightDistribution = *w.WeightDistAlt
	}
	q := f.WeightDistribution
	if q.TL < 0 || q.TR < 0 || q.BL < 0 || q.BR < 0 {
		return Frame{}, fmt.Errorf("%w: negative quadrant load", ErrMalformedFrame)
	}

	raw := w.AIStatus
	if raw == nil {
		raw = w.StatusAlt
	}
	if raw != nil {
		s, err := ParseStatus(*raw)
		if err != nil {
			return Frame{}, err
		}
		f.Status = s
	}

	return f, nil
}

// Encode serializes a frame in the platform service's wire format.
func Encode(f Frame) ([]byte, error) {
	return json.Marshal(f)
}

// ParseStatus parses a status string. The empty string yields StatusUnknown.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	if st == StatusUnknown || st.Valid() {
		return st, nil
	}
	return StatusUnknown, fmt.Errorf("%w: unknown status %q", ErrMalformedFrame, s)
}

func firstOf(vals ...*float64) float64 {
	for _, v := range vals {
		if v != nil {
			return *v
		}
	}
	return 0
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(-1, math.Min(1, v))
}
