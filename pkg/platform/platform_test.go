package platform

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-steady/pkg/clock"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func constant(q telemetry.Quadrants) Sensor {
	return SensorFunc(func() telemetry.Quadrants { return q })
}

func newPlatform(t *testing.T, sensor Sensor, opts ...Option) *Platform {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	p, err := New(sensor, opts...)
	require.NoError(t, err)
	return p
}

// settle samples enough times for the filters to converge.
func settle(p *Platform) telemetry.Frame {
	var f telemetry.Frame
	for i := 0; i < 40; i++ {
		f = p.Sample()
	}
	return f
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, time.Millisecond, "timed out waiting for %s", what)
}

func TestEMA(t *testing.T) {
	f := NewEMA(0.6)
	assert.InDelta(t, 60, f.Update(100), 1e-9)
	assert.InDelta(t, 84, f.Update(100), 1e-9)
	assert.InDelta(t, 33.6, f.Update(0), 1e-9)
	assert.InDelta(t, 33.6, f.Last(), 1e-9)

	for i := 0; i < 50; i++ {
		f.Update(10)
	}
	assert.InDelta(t, 10, f.Last(), 1e-6)
}

func TestLatestBeforeFirstSample(t *testing.T) {
	p := newPlatform(t, constant(telemetry.Quadrants{}))
	assert.Equal(t, telemetry.NoSignal(), p.Latest())
}

func TestSampleFrames(t *testing.T) {
	tests := []struct {
		name   string
		raw    telemetry.Quadrants
		weight float64
		copX   float64
		copY   float64
		status telemetry.Status
	}{
		{
			name:   "centred",
			raw:    telemetry.Quadrants{TL: 500000, TR: 500000, BL: 500000, BR: 500000},
			weight: 80,
			status: telemetry.StatusGreen,
		},
		{
			name:   "leaning right",
			raw:    telemetry.Quadrants{TL: 400000, TR: 600000, BL: 400000, BR: 600000},
			weight: 80,
			copX:   0.25,
			status: telemetry.StatusYellow,
		},
		{
			name:   "leaning back hard",
			raw:    telemetry.Quadrants{TL: 200000, TR: 200000, BL: 800000, BR: 800000},
			weight: 80,
			copY:   -1,
			status: telemetry.StatusRed,
		},
		{
			name:   "too light has no cop",
			raw:    telemetry.Quadrants{TR: 100000},
			weight: 4,
			status: telemetry.StatusRed,
		},
		{
			name:   "empty",
			raw:    telemetry.Quadrants{},
			status: telemetry.StatusRed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlatform(t, constant(tt.raw))
			f := settle(p)

			assert.InDelta(t, tt.weight, f.TotalWeight, 0.01)
			assert.InDelta(t, tt.copX, f.CopX, 1e-6)
			assert.InDelta(t, tt.copY, f.CopY, 1e-6)
			assert.Equal(t, tt.status, f.Status)
			assert.Equal(t, f, p.Latest())
		})
	}
}

func TestWeightIsRoundedToHundredths(t *testing.T) {
	p := newPlatform(t, constant(telemetry.Quadrants{TL: 333333, TR: 333333, BL: 333333, BR: 333333}))
	f := settle(p)
	assert.Equal(t, math.Round(f.TotalWeight*100)/100, f.TotalWeight)
	assert.InDelta(t, 53.33, f.TotalWeight, 0.01)
}

func TestCalibrateZeroesBaseline(t *testing.T) {
	raw := telemetry.Quadrants{TL: 50000, TR: 50000, BL: 50000, BR: 50000}
	p := newPlatform(t, constant(raw))

	before := settle(p)
	assert.InDelta(t, 8, before.TotalWeight, 0.01)

	offsets := p.Calibrate()
	assert.InDelta(t, 50000, offsets.TL, 1)
	assert.Equal(t, offsets, p.Offsets())

	after := p.Sample()
	assert.InDelta(t, 0, after.TotalWeight, 0.01)
	assert.Equal(t, telemetry.StatusRed, after.Status)
	assert.Equal(t, uint64(1), p.Stats().Calibrations)
}

func TestRunSamplesOnTicks(t *testing.T) {
	fake := clock.NewFake(time.Now())
	p := newPlatform(t, constant(telemetry.Quadrants{TL: 500000, TR: 500000, BL: 500000, BR: 500000}),
		WithClock(fake), WithSampleInterval(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.True(t, fake.BlockUntilTickers(1, 2*time.Second))
	waitFor(t, "running", p.IsRunning)
	assert.ErrorIs(t, p.Run(ctx), ErrAlreadyRunning)

	for i := 0; i < 3; i++ {
		fake.Advance(10 * time.Millisecond)
	}
	waitFor(t, "three samples", func() bool { return p.Stats().Samples == 3 })

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, p.IsRunning())
	assert.Equal(t, 0, fake.ActiveTickers())
}

func TestConfigValidate(t *testing.T) {
	cases := map[string]struct {
		opt  Option
		want error
	}{
		"zero sample interval": {WithSampleInterval(0), ErrInvalidInterval},
		"zero stream interval": {WithStreamInterval(0), ErrInvalidInterval},
		"alpha above one":      {WithFilterAlpha(1.5), ErrInvalidAlpha},
		"zero alpha":           {WithFilterAlpha(0), ErrInvalidAlpha},
		"zero history":         {WithHistoryLimit(0), ErrInvalidHistoryLimit},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := New(constant(telemetry.Quadrants{}), tc.opt)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestSwaySensor(t *testing.T) {
	t.Run("seeded sensors agree", func(t *testing.T) {
		a, b := NewSwaySensor(7, true), NewSwaySensor(7, true)
		for i := 0; i < 20; i++ {
			assert.Equal(t, a.Read(), b.Read())
		}
	})

	t.Run("load follows occupancy", func(t *testing.T) {
		s := NewSwaySensor(1, false)
		assert.False(t, s.Occupied())
		assert.InDelta(t, 4*DefaultTareRaw, s.Read().Total(), 5000)

		s.SetOccupied(true)
		assert.True(t, s.Occupied())
		want := 4*DefaultTareRaw + DefaultBodyWeightKg/DefaultScaleFactor
		assert.InDelta(t, want, s.Read().Total(), 5000)
	})

	t.Run("calibrated person reads their weight", func(t *testing.T) {
		s := NewSwaySensor(3, false)
		p := newPlatform(t, s)
		settle(p)
		p.Calibrate()

		s.SetOccupied(true)
		var f telemetry.Frame
		for i := 0; i < 300; i++ {
			f = p.Sample()
		}
		assert.InDelta(t, DefaultBodyWeightKg, f.TotalWeight, 1)
		assert.True(t, f.Status.Valid())
		assert.NotEqual(t, telemetry.StatusCalibrating, f.Status)
	})
}
