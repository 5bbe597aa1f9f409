package stability

import (
	"errors"
	"math"
	"testing"

	"github.com/teslashibe/go-steady/pkg/telemetry"
)

func TestClassifyUpstreamStatusWins(t *testing.T) {
	c := Default()

	// Far off-centre and light, but the source said GREEN.
	f := telemetry.Frame{CopX: 0.9, CopY: 0.9, TotalWeight: 1, Status: telemetry.StatusGreen}
	if got := c.Classify(f); got != telemetry.StatusGreen {
		t.Errorf("expected upstream GREEN, got %s", got)
	}

	f.Status = telemetry.StatusCalibrating
	if got := c.Classify(f); got != telemetry.StatusCalibrating {
		t.Errorf("expected upstream CALIBRATING, got %s", got)
	}
}

func TestClassifyLocalThresholds(t *testing.T) {
	tests := []struct {
		name   string
		frame  telemetry.Frame
		expect telemetry.Status
	}{
		{"empty platform", telemetry.Frame{}, telemetry.StatusRed},
		{"below min load", telemetry.Frame{TotalWeight: 4.9}, telemetry.StatusRed},
		{"centred", telemetry.Frame{TotalWeight: 70}, telemetry.StatusGreen},
		{"just inside green", telemetry.Frame{TotalWeight: 70, CopX: 0.19}, telemetry.StatusGreen},
		{"green boundary is yellow", telemetry.Frame{TotalWeight: 70, CopX: 0.2}, telemetry.StatusYellow},
		{"diagonal yellow", telemetry.Frame{TotalWeight: 70, CopX: 0.2, CopY: 0.2}, telemetry.StatusYellow},
		{"yellow boundary is red", telemetry.Frame{TotalWeight: 70, CopY: -0.5}, telemetry.StatusRed},
		{"far off centre", telemetry.Frame{TotalWeight: 70, CopX: -0.8, CopY: 0.7}, telemetry.StatusRed},
	}

	c := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.frame); got != tt.expect {
				t.Errorf("got %s, want %s", got, tt.expect)
			}
		})
	}
}

func TestCustomThresholds(t *testing.T) {
	c, err := New(Thresholds{MinLoadKg: 0, GreenRadius: 0.5, YellowRadius: 0.9})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if got := c.Classify(telemetry.Frame{TotalWeight: 1, CopX: 0.4}); got != telemetry.StatusGreen {
		t.Errorf("expected GREEN with wide radius, got %s", got)
	}
	if got := c.Classify(telemetry.Frame{TotalWeight: 0}); got != telemetry.StatusRed {
		t.Errorf("zero load must still be RED, got %s", got)
	}
}

func TestThresholdsValidate(t *testing.T) {
	bad := []Thresholds{
		{MinLoadKg: -1, GreenRadius: 0.2, YellowRadius: 0.5},
		{MinLoadKg: 5, GreenRadius: 0, YellowRadius: 0.5},
		{MinLoadKg: 5, GreenRadius: 0.5, YellowRadius: 0.5},
		{MinLoadKg: 5, GreenRadius: 0.6, YellowRadius: 0.5},
	}
	for _, th := range bad {
		if _, err := New(th); !errors.Is(err, ErrInvalidThresholds) {
			t.Errorf("%+v: expected ErrInvalidThresholds, got %v", th, err)
		}
	}

	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestCoPFromLoads(t *testing.T) {
	tests := []struct {
		name  string
		loads telemetry.Quadrants
		x, y  float64
	}{
		{"unloaded", telemetry.Quadrants{}, 0, 0},
		{"balanced", telemetry.Quadrants{TL: 10, TR: 10, BL: 10, BR: 10}, 0, 0},
		{"leaning right", telemetry.Quadrants{TL: 8, TR: 12, BL: 8, BR: 12}, 0.5, 0},
		{"leaning forward", telemetry.Quadrants{TL: 11, TR: 11, BL: 9, BR: 9}, 0, 0.25},
		{"all on one corner clamps", telemetry.Quadrants{TR: 40}, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := CoPFromLoads(tt.loads, DefaultCoPGain)
			if math.Abs(x-tt.x) > 1e-9 || math.Abs(y-tt.y) > 1e-9 {
				t.Errorf("got (%v, %v), want (%v, %v)", x, y, tt.x, tt.y)
			}
		})
	}
}
