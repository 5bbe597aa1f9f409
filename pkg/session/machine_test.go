package session

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/teslashibe/go-steady/pkg/telemetry"
)

var (
	greenHeavy = Sample{Status: telemetry.StatusGreen, WeightKg: 70}
	redHeavy   = Sample{Status: telemetry.StatusRed, WeightKg: 70}
)

func newMachine(t *testing.T, calibration, duration int) *Machine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.CalibrationSeconds = calibration
	cfg.DurationSeconds = duration
	m, err := NewMachine(cfg)
	if err != nil {
		t.Fatalf("NewMachine failed: %v", err)
	}
	return m
}

func TestMachineCompletesAfterCalibrationPlusDuration(t *testing.T) {
	for _, duration := range []int{1, 2, 30, 60, 120} {
		m := newMachine(t, 3, duration)

		var transitions []Phase
		completions := 0
		ticks := 0
		for m.Phase() != PhaseComplete {
			step := m.Tick(redHeavy)
			ticks++
			if step.PhaseChanged {
				transitions = append(transitions, step.Phase)
			}
			if step.Completed {
				completions++
			}
			if ticks > 3+duration {
				t.Fatalf("duration %d: still running after %d ticks", duration, ticks)
			}
		}

		if ticks != 3+duration {
			t.Errorf("duration %d: completed after %d ticks, want %d", duration, ticks, 3+duration)
		}
		if len(transitions) != 2 || transitions[0] != PhaseTraining || transitions[1] != PhaseComplete {
			t.Errorf("duration %d: transitions %v", duration, transitions)
		}
		if completions != 1 {
			t.Errorf("duration %d: %d completions", duration, completions)
		}
	}
}

func TestMachineCountdown(t *testing.T) {
	m := newMachine(t, 3, 5)

	want := []struct {
		phase     Phase
		remaining int
	}{
		{PhaseCalibration, 2},
		{PhaseCalibration, 1},
		{PhaseTraining, 5},
		{PhaseTraining, 4},
		{PhaseTraining, 3},
		{PhaseTraining, 2},
		{PhaseTraining, 1},
		{PhaseComplete, 0},
	}

	if snap := m.Snapshot(); snap.Phase != PhaseCalibration || snap.SecondsRemaining != 3 {
		t.Fatalf("initial snapshot %+v", snap)
	}

	for i, w := range want {
		step := m.Tick(greenHeavy)
		snap := m.Snapshot()
		if snap.Phase != w.phase || snap.SecondsRemaining != w.remaining {
			t.Errorf("tick %d: got %s/%d, want %s/%d", i+1, snap.Phase, snap.SecondsRemaining, w.phase, w.remaining)
		}
		if step.Calibrated != (i == 2) {
			t.Errorf("tick %d: Calibrated = %v", i+1, step.Calibrated)
		}
	}
}

func TestMachineScoring(t *testing.T) {
	t.Run("all green for 60 seconds", func(t *testing.T) {
		m := newMachine(t, 3, 60)
		var res Result
		for m.Phase() != PhaseComplete {
			if step := m.Tick(greenHeavy); step.Completed {
				res = step.Result
			}
		}
		if res.Score != 60 || res.DurationSeconds != 60 {
			t.Errorf("got %+v, want score 60 of 60", res)
		}
		if res.Percent() != 100 {
			t.Errorf("got %d%%, want 100%%", res.Percent())
		}
	})

	t.Run("never green", func(t *testing.T) {
		m := newMachine(t, 3, 60)
		statuses := []telemetry.Status{telemetry.StatusRed, telemetry.StatusYellow, telemetry.StatusCalibrating, telemetry.StatusUnknown}
		var res Result
		for i := 0; m.Phase() != PhaseComplete; i++ {
			if step := m.Tick(Sample{Status: statuses[i%len(statuses)], WeightKg: 70}); step.Completed {
				res = step.Result
			}
		}
		if res.Score != 0 || res.Percent() != 0 {
			t.Errorf("got %+v (%d%%), want 0", res, res.Percent())
		}
	})

	t.Run("calibration ticks never score", func(t *testing.T) {
		m := newMachine(t, 3, 10)
		for i := 0; i < 3; i++ {
			if step := m.Tick(greenHeavy); step.Scored {
				t.Fatalf("calibration tick %d scored", i+1)
			}
		}
		if m.Snapshot().Score != 0 {
			t.Errorf("score %d after calibration", m.Snapshot().Score)
		}
	})

	t.Run("green needs weight above threshold", func(t *testing.T) {
		m := newMachine(t, 1, 4)
		m.Tick(greenHeavy)

		m.Tick(Sample{Status: telemetry.StatusGreen, WeightKg: 0})
		m.Tick(Sample{Status: telemetry.StatusGreen, WeightKg: 0.5})
		m.Tick(Sample{Status: telemetry.StatusGreen, WeightKg: 0.51})
		step := m.Tick(greenHeavy)

		if !step.Completed || step.Result.Score != 2 {
			t.Errorf("got %+v, want completed with score 2", step)
		}
	})

	t.Run("last training tick is sampled", func(t *testing.T) {
		m := newMachine(t, 1, 3)
		m.Tick(redHeavy)
		m.Tick(redHeavy)
		m.Tick(redHeavy)
		step := m.Tick(greenHeavy)
		if !step.Completed || step.Result.Score != 1 {
			t.Errorf("got %+v, want completed with score 1", step)
		}
	})
}

func TestMachineScoreMonotonicAndBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	statuses := []telemetry.Status{telemetry.StatusGreen, telemetry.StatusYellow, telemetry.StatusRed}

	for trial := 0; trial < 50; trial++ {
		duration := 1 + rng.Intn(120)
		m := newMachine(t, 3, duration)

		prev := 0
		for m.Phase() != PhaseComplete {
			m.Tick(Sample{
				Status:   statuses[rng.Intn(len(statuses))],
				WeightKg: rng.Float64() * 2,
			})
			score := m.Snapshot().Score
			if score < prev {
				t.Fatalf("trial %d: score went from %d to %d", trial, prev, score)
			}
			if score > duration {
				t.Fatalf("trial %d: score %d exceeds duration %d", trial, score, duration)
			}
			prev = score
		}
	}
}

func TestMachineFrozenAfterComplete(t *testing.T) {
	m := newMachine(t, 1, 2)
	for m.Phase() != PhaseComplete {
		m.Tick(greenHeavy)
	}
	before := m.Snapshot()

	for i := 0; i < 5; i++ {
		step := m.Tick(greenHeavy)
		if step.Completed || step.PhaseChanged || step.Scored {
			t.Fatalf("tick after COMPLETE did something: %+v", step)
		}
	}
	if after := m.Snapshot(); after != before {
		t.Errorf("snapshot changed after COMPLETE: %+v -> %+v", before, after)
	}
}

func TestStabilityPercent(t *testing.T) {
	tests := []struct {
		score, duration, want int
	}{
		{0, 60, 0},
		{60, 60, 100},
		{30, 60, 50},
		{1, 3, 33},
		{2, 3, 67},
		{1, 200, 1},
		{1, 201, 0},
		{61, 60, 100},
		{5, 0, 0},
		{-1, 60, 0},
	}
	for _, tt := range tests {
		if got := StabilityPercent(tt.score, tt.duration); got != tt.want {
			t.Errorf("StabilityPercent(%d, %d) = %d, want %d", tt.score, tt.duration, got, tt.want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		opts []Option
		err  error
	}{
		{"zero duration", []Option{WithDuration(0)}, ErrInvalidDuration},
		{"negative duration", []Option{WithDuration(-30)}, ErrInvalidDuration},
		{"above maximum", []Option{WithDuration(3601)}, ErrInvalidDuration},
		{"no maximum", []Option{WithDuration(7200), WithMaxDuration(0)}, nil},
		{"zero calibration", []Option{WithDuration(30), WithCalibrationSeconds(0)}, ErrInvalidConfig},
		{"negative weight", []Option{WithDuration(30), WithMinScoringWeight(-1)}, ErrInvalidConfig},
		{"zero tick", []Option{WithDuration(30), WithTickInterval(0)}, ErrInvalidConfig},
		{"valid", []Option{WithDuration(60)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Apply(tt.opts...)
			err := cfg.Validate()
			if tt.err == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.err) {
				t.Errorf("got %v, want %v", err, tt.err)
			}
		})
	}
}
