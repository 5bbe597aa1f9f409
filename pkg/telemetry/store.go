package telemetry

import (
	"sync"
	"time"
)

// Reader is the read side of a Store. Session code and the dashboard only
// ever see a Reader.
type Reader interface {
	Latest() Frame
	State() ConnectionState
	Snapshot() Snapshot
}

// Snapshot is a consistent view of the store.
type Snapshot struct {
	Frame     Frame           `json:"frame"`
	State     ConnectionState `json:"state"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Store holds the current frame and connection state. Its writers are
// unexported: only the Channel that owns it mutates it.
type Store struct {
	mu        sync.RWMutex
	frame     Frame
	state     ConnectionState
	updatedAt time.Time
}

// NewStore returns a store holding NoSignal in the CONNECTING state.
func NewStore() *Store {
	return &Store{
		frame: NoSignal(),
		state: StateConnecting,
	}
}

// Latest returns the most recent frame, or NoSignal.
func (s *Store) Latest() Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame
}

// State returns the current connection state.
func (s *Store) State() ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Snapshot returns frame, state and update time together.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Frame: s.frame, State: s.state, UpdatedAt: s.updatedAt}
}

func (s *Store) setFrame(f Frame, at time.Time) {
	s.mu.Lock()
	s.frame = f
	s.updatedAt = at
	s.mu.Unlock()
}

// setState returns true when the state actually changed.
func (s *Store) setState(st ConnectionState) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == st {
		return false
	}
	s.state = st
	return true
}

func (s *Store) reset(at time.Time) {
	s.setFrame(NoSignal(), at)
}
