package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/go-steady/pkg/events"
)

// Recorder stores a completed session's normalized score.
type Recorder interface {
	SaveSession(ctx context.Context, stabilityPercent, durationSeconds int) error
}

// Status describes the manager's current session, if any.
type Status struct {
	ID      string    `json:"id,omitempty"`
	Active  bool      `json:"active"`
	Started time.Time `json:"started,omitempty"`

	Snapshot *Snapshot `json:"snapshot,omitempty"`

	// Result is set once the session completes and until it is acknowledged.
	Result           *Result `json:"result,omitempty"`
	StabilityPercent int     `json:"stability_percent,omitempty"`
	Saved            bool    `json:"saved,omitempty"`
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// Session holds the options applied to every session the manager starts.
	Session []Option

	Recorder    Recorder
	Publisher   events.Publisher
	SaveTimeout time.Duration
	Logger      *slog.Logger

	// QueueSize bounds the events waiting to be published. Events beyond it
	// are dropped.
	QueueSize int

	// PublishTimeout bounds each event delivery.
	PublishTimeout time.Duration
}

type run struct {
	id      string
	session *Session
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	// Set under Manager.mu by the run goroutine. result is set as soon as
	// the session completes, before the save; done closes after the save.
	result *Result
	saved  bool
}

// Manager owns the single training session a client may have at a time.
type Manager struct {
	source   FrameSource
	options  []Option
	recorder Recorder
	saveTO   time.Duration
	base     *slog.Logger
	logger   *slog.Logger

	mu      sync.Mutex
	current *run
	runs    sync.WaitGroup

	queue *events.Queue
}

// NewManager creates a manager whose sessions sample source.
func NewManager(source FrameSource, cfg ManagerConfig) *Manager {
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Manager{
		source:   source,
		options:  cfg.Session,
		recorder: cfg.Recorder,
		saveTO:   cfg.SaveTimeout,
		base:     cfg.Logger,
		logger:   cfg.Logger.With("component", "session.manager"),
		queue:    events.NewQueue(cfg.Publisher, cfg.QueueSize, cfg.PublishTimeout, cfg.Logger),
	}
}

// Start begins a session of durationSeconds and returns its ID. It fails
// with ErrInvalidDuration before anything starts, and with ErrSessionActive
// while another session is running. A finished but unacknowledged outcome
// is discarded.
func (m *Manager) Start(durationSeconds int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && !m.current.over() {
		return "", ErrSessionActive
	}

	opts := append([]Option{WithLogger(m.base)}, m.options...)
	opts = append(opts, WithDuration(durationSeconds))
	s, err := New(m.source, opts...)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &run{
		id:      uuid.New().String(),
		session: s,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	m.current = r

	s.OnPhaseChange(func(p Phase) {
		m.publish(r.id, events.TypeSessionPhase, events.SessionPhase{Phase: p.String()})
	})

	m.publish(r.id, events.TypeSessionStarted, events.SessionStarted{
		DurationSeconds:    s.config.DurationSeconds,
		CalibrationSeconds: s.config.CalibrationSeconds,
	})

	m.runs.Add(1)
	go m.run(ctx, r)

	m.logger.Info("session start accepted", "id", r.id, "duration_s", durationSeconds)
	return r.id, nil
}

func (m *Manager) run(ctx context.Context, r *run) {
	defer m.runs.Done()
	defer r.session.WaitCommits()
	defer close(r.done)
	defer r.cancel()

	res, err := r.session.Run(ctx)
	if err != nil {
		if !IsCancelled(err) {
			m.logger.Error("session failed", "id", r.id, "error", err)
		}
		snap := r.session.Snapshot()
		m.publish(r.id, events.TypeSessionCancelled, events.SessionCancelled{
			Phase: snap.Phase.String(),
			Score: snap.Score,
		})
		return
	}

	// The outcome belongs to the user from here on, even while it saves.
	m.mu.Lock()
	r.result = &res
	m.mu.Unlock()

	saved := m.save(res)

	m.mu.Lock()
	r.saved = saved
	m.mu.Unlock()

	m.publish(r.id, events.TypeSessionCompleted, events.SessionCompleted{
		Score:            res.Score,
		DurationSeconds:  res.DurationSeconds,
		StabilityPercent: res.Percent(),
		Saved:            saved,
	})
}

// save records the normalized score once. Failure is logged.
func (m *Manager) save(res Result) bool {
	if m.recorder == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.saveTO)
	defer cancel()

	if err := m.recorder.SaveSession(ctx, res.Percent(), res.DurationSeconds); err != nil {
		m.logger.Warn("session save failed", "error", err, "percent", res.Percent())
		return false
	}
	return true
}

// publish queues an event without blocking the session goroutine.
func (m *Manager) publish(id string, t events.Type, data any) {
	e, err := events.New(t, id, data)
	if err != nil {
		m.logger.Warn("event encode failed", "type", t, "error", err)
		return
	}
	if err := m.queue.Publish(context.Background(), e); err != nil {
		m.logger.Warn("event not queued", "type", t, "error", err)
	}
}

// Cancel stops the running session, discarding its state. No completion is
// reported. It waits for the session goroutine to exit. A session that has
// already completed cannot be cancelled; acknowledge it instead.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	r := m.current
	if r == nil || r.over() {
		m.mu.Unlock()
		return ErrNoSession
	}
	m.current = nil
	m.mu.Unlock()

	r.cancel()
	<-r.done

	m.logger.Info("session cancelled", "id", r.id)
	return nil
}

// Acknowledge discards a completed session's outcome, freeing the manager
// for the next session. It returns the outcome being discarded.
func (m *Manager) Acknowledge() (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.current
	if r == nil {
		return Result{}, ErrNoSession
	}
	if r.result == nil {
		return Result{}, fmt.Errorf("%w: session %s has not completed", ErrSessionActive, r.id)
	}

	m.current = nil
	return *r.result, nil
}

// Status reports the current session.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.current
	if r == nil {
		return Status{}
	}

	snap := r.session.Snapshot()
	st := Status{
		ID:       r.id,
		Active:   !r.over(),
		Started:  r.started,
		Snapshot: &snap,
	}
	if r.result != nil {
		res := *r.result
		st.Result = &res
		st.StabilityPercent = res.Percent()
		st.Saved = r.saved
	}
	return st
}

// Wait blocks until the current session, if any, finishes or ctx ends.
func (m *Manager) Wait(ctx context.Context) error {
	m.mu.Lock()
	r := m.current
	m.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels any running session, waits for in-flight saves and
// calibration commits, then flushes queued events.
func (m *Manager) Close() error {
	err := m.Cancel()
	m.runs.Wait()
	m.queue.Close()
	if err != nil && !errors.Is(err, ErrNoSession) {
		return err
	}
	return nil
}

// over reports whether the run has completed or stopped. Call with
// Manager.mu held.
func (r *run) over() bool {
	if r.result != nil {
		return true
	}
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}
