// Package telemetry ingests centre-of-pressure frames from the force platform.
//
// A Channel keeps one WebSocket open to the telemetry source, decodes each
// pushed frame, and publishes the latest one through a Store. Transport
// failures are absorbed by a fixed-delay reconnect loop; while disconnected
// the Store reports NoSignal.
package telemetry

import "fmt"

// Status is the posture-quality classification of a frame.
type Status string

const (
	// StatusUnknown means the source did not classify the frame.
	StatusUnknown     Status = ""
	StatusCalibrating Status = "CALIBRATING"
	StatusGreen       Status = "GREEN"
	StatusYellow      Status = "YELLOW"
	StatusRed         Status = "RED"
)

// Valid reports whether s is one of the four known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusCalibrating, StatusGreen, StatusYellow, StatusRed:
		return true
	}
	return false
}

// String returns the wire form, or "UNKNOWN" for an unclassified status.
func (s Status) String() string {
	if s == StatusUnknown {
		return "UNKNOWN"
	}
	return string(s)
}

// Quadrants holds the load on each corner cell of the platform.
type Quadrants struct {
	TL float64 `json:"tl"`
	TR float64 `json:"tr"`
	BL float64 `json:"bl"`
	BR float64 `json:"br"`
}

// Total returns the sum of the four loads.
func (q Quadrants) Total() float64 {
	return q.TL + q.TR + q.BL + q.BR
}

// Frame is one decoded telemetry sample.
//
// CopX and CopY are normalized to [-1, 1] and only meaningful when
// TotalWeight > 0. Status is StatusUnknown when the source sent none.
type Frame struct {
	CopX               float64   `json:"cop_x"`
	CopY               float64   `json:"cop_y"`
	TotalWeight        float64   `json:"totalWeight"`
	WeightDistribution Quadrants `json:"weightDist"`
	Status             Status    `json:"aiStatus,omitempty"`
}

// NoSignal is the frame exposed before the first frame arrives and after
// every disconnect: nobody on the platform, still calibrating.
func NoSignal() Frame {
	return Frame{Status: StatusCalibrating}
}

// Occupied reports whether someone is standing on the platform.
func (f Frame) Occupied() bool {
	return f.TotalWeight > 0
}

// Classified reports whether the source supplied a status.
func (f Frame) Classified() bool {
	return f.Status != StatusUnknown
}

func (f Frame) String() string {
	return fmt.Sprintf("cop=(%.3f,%.3f) weight=%.2fkg status=%s", f.CopX, f.CopY, f.TotalWeight, f.Status)
}
