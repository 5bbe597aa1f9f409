package session

// Phase is a stage of a training session.
type Phase string

// Phases, in the only order a session moves through them.
const (
	PhaseCalibration Phase = "CALIBRATION"
	PhaseTraining    Phase = "TRAINING"
	PhaseComplete    Phase = "COMPLETE"
)

func (p Phase) String() string {
	return string(p)
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool {
	return p == PhaseComplete
}
