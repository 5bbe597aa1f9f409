package session

import (
	"math"

	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// Sample is what a tick sees of the platform: the classified status and the
// load on the latest frame.
type Sample struct {
	Status   telemetry.Status
	WeightKg float64
}

// Result is the outcome of a completed session.
type Result struct {
	Score           int `json:"score"`
	DurationSeconds int `json:"duration_seconds"`
}

// Percent returns the normalized stability percentage.
func (r Result) Percent() int {
	return StabilityPercent(r.Score, r.DurationSeconds)
}

// StabilityPercent normalizes a score against the training length:
// min(100, round(100*score/duration)). A non-positive duration yields 0.
func StabilityPercent(score, durationSeconds int) int {
	if durationSeconds <= 0 || score <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(score) / float64(durationSeconds)))
	return min(p, 100)
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	Phase            Phase `json:"phase"`
	SecondsRemaining int   `json:"seconds_remaining"`
	DurationSeconds  int   `json:"duration_seconds"`
	Score            int   `json:"score"`
	Ticks            int   `json:"ticks"`
}

// Step reports what a single tick did.
type Step struct {
	Phase Phase

	// PhaseChanged is set on the tick that entered Phase.
	PhaseChanged bool

	// Calibrated is set on the tick that left CALIBRATION. The caller
	// commits the calibration in response.
	Calibrated bool

	// Scored is set when the tick earned a point.
	Scored bool

	// Completed is set on the one tick that reached COMPLETE.
	Completed bool
	Result    Result
}

// Machine is the countdown and scoring logic of a session with no timing or
// I/O of its own. It is not safe for concurrent use.
type Machine struct {
	durationSeconds int
	minWeightKg     float64

	phase     Phase
	remaining int
	score     int
	ticks     int
}

// NewMachine returns a machine in CALIBRATION.
func NewMachine(cfg *Config) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		durationSeconds: cfg.DurationSeconds,
		minWeightKg:     cfg.MinScoringWeightKg,
		phase:           PhaseCalibration,
		remaining:       cfg.CalibrationSeconds,
	}, nil
}

// Tick advances the machine by one second. During TRAINING the sample is
// scored before the countdown moves. Ticks after COMPLETE do nothing.
func (m *Machine) Tick(s Sample) Step {
	if m.phase == PhaseComplete {
		return Step{Phase: m.phase}
	}

	m.ticks++
	var step Step

	if m.phase == PhaseTraining && m.scores(s) {
		m.score++
		step.Scored = true
	}

	m.remaining--
	if m.remaining <= 0 {
		switch m.phase {
		case PhaseCalibration:
			m.phase = PhaseTraining
			m.remaining = m.durationSeconds
			step.PhaseChanged = true
			step.Calibrated = true
		case PhaseTraining:
			m.phase = PhaseComplete
			m.remaining = 0
			step.PhaseChanged = true
			step.Completed = true
			step.Result = m.result()
		}
	}

	step.Phase = m.phase
	return step
}

func (m *Machine) scores(s Sample) bool {
	return s.Status == telemetry.StatusGreen && s.WeightKg > m.minWeightKg
}

func (m *Machine) result() Result {
	return Result{Score: m.score, DurationSeconds: m.durationSeconds}
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	return m.phase
}

// Snapshot returns the machine's current state.
func (m *Machine) Snapshot() Snapshot {
	return Snapshot{
		Phase:            m.phase,
		SecondsRemaining: m.remaining,
		DurationSeconds:  m.durationSeconds,
		Score:            m.score,
		Ticks:            m.ticks,
	}
}
