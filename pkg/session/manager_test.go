package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-steady/pkg/clock"
	"github.com/teslashibe/go-steady/pkg/events"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

type saveCall struct {
	percent, duration int
}

type saveRecorder struct {
	mu    sync.Mutex
	calls []saveCall
	err   error
}

func (r *saveRecorder) SaveSession(_ context.Context, percent, duration int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, saveCall{percent, duration})
	return r.err
}

func (r *saveRecorder) Calls() []saveCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]saveCall(nil), r.calls...)
}

type managerFixture struct {
	m     *Manager
	fake  *clock.Fake
	src   *frameSource
	saves *saveRecorder
	pub   *events.Recorder
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := &managerFixture{
		fake:  clock.NewFake(time.Now()),
		src:   newFrameSource(greenFrame),
		saves: &saveRecorder{},
		pub:   &events.Recorder{},
	}
	f.m = NewManager(f.src, ManagerConfig{
		Session:   []Option{WithClock(f.fake), WithCalibrationSeconds(1)},
		Recorder:  f.saves,
		Publisher: f.pub,
		Logger:    quietLogger(),
	})
	t.Cleanup(func() { f.m.Close() })
	return f
}

func (f *managerFixture) start(t *testing.T, duration int) string {
	t.Helper()
	id, err := f.m.Start(duration)
	require.NoError(t, err)
	require.True(t, f.fake.BlockUntilTickers(1, 2*time.Second), "session ticker never started")
	return id
}

// waitDone waits for the session to finish, including its save.
func (f *managerFixture) waitDone(t *testing.T) Status {
	t.Helper()
	waitFor(t, "session to finish", func() bool { return !f.m.Status().Active })

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, f.m.Wait(ctx))
	return f.m.Status()
}

func TestManagerCompletesAndSaves(t *testing.T) {
	f := newManagerFixture(t)
	id := f.start(t, 3)
	assert.NotEmpty(t, id)

	_, err := f.m.Start(3)
	assert.ErrorIs(t, err, ErrSessionActive)

	st := f.m.Status()
	assert.True(t, st.Active)
	assert.Equal(t, id, st.ID)
	require.NotNil(t, st.Snapshot)
	assert.Equal(t, PhaseCalibration, st.Snapshot.Phase)

	_, err = f.m.Acknowledge()
	assert.ErrorIs(t, err, ErrSessionActive, "running sessions cannot be acknowledged")

	tick(f.fake, 4)
	st = f.waitDone(t)

	require.NotNil(t, st.Result)
	assert.Equal(t, Result{Score: 3, DurationSeconds: 3}, *st.Result)
	assert.Equal(t, 100, st.StabilityPercent)
	assert.True(t, st.Saved)
	assert.Equal(t, PhaseComplete, st.Snapshot.Phase)

	assert.Equal(t, []saveCall{{percent: 100, duration: 3}}, f.saves.Calls())

	waitFor(t, "completion event", func() bool { return f.pub.Count(events.TypeSessionCompleted) == 1 })
	assert.Equal(t, []events.Type{
		events.TypeSessionStarted,
		events.TypeSessionPhase,
		events.TypeSessionPhase,
		events.TypeSessionCompleted,
	}, f.pub.Types())

	for _, e := range f.pub.Events() {
		assert.Equal(t, id, e.SessionID)
	}

	var completed events.SessionCompleted
	require.NoError(t, f.pub.Events()[3].ParseData(&completed))
	assert.Equal(t, events.SessionCompleted{Score: 3, DurationSeconds: 3, StabilityPercent: 100, Saved: true}, completed)

	res, err := f.m.Acknowledge()
	require.NoError(t, err)
	assert.Equal(t, 3, res.Score)
	assert.Equal(t, Status{}, f.m.Status())

	_, err = f.m.Acknowledge()
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestManagerCancel(t *testing.T) {
	f := newManagerFixture(t)
	f.start(t, 10)

	tick(f.fake, 3)
	require.NoError(t, f.m.Cancel())

	assert.Equal(t, 0, f.fake.ActiveTickers(), "ticker left running after cancel")
	assert.Equal(t, Status{}, f.m.Status())
	assert.ErrorIs(t, f.m.Cancel(), ErrNoSession)

	waitFor(t, "cancel event", func() bool { return f.pub.Count(events.TypeSessionCancelled) == 1 })
	assert.Zero(t, f.pub.Count(events.TypeSessionCompleted))
	assert.Empty(t, f.saves.Calls(), "cancelled sessions are not saved")

	// A new session can start straight away.
	f.start(t, 5)
	assert.True(t, f.m.Status().Active)
}

type blockingRecorder struct {
	release chan struct{}
	calls   chan saveCall
}

func (r *blockingRecorder) SaveSession(ctx context.Context, percent, duration int) error {
	r.calls <- saveCall{percent, duration}
	select {
	case <-r.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestManagerCompletedOutcomeSurvivesSlowSave(t *testing.T) {
	fake := clock.NewFake(time.Now())
	rec := &blockingRecorder{release: make(chan struct{}), calls: make(chan saveCall, 1)}
	pub := &events.Recorder{}

	m := NewManager(newFrameSource(greenFrame), ManagerConfig{
		Session:     []Option{WithClock(fake), WithCalibrationSeconds(1)},
		Recorder:    rec,
		Publisher:   pub,
		SaveTimeout: time.Minute,
		Logger:      quietLogger(),
	})
	defer m.Close()

	_, err := m.Start(2)
	require.NoError(t, err)
	require.True(t, fake.BlockUntilTickers(1, 2*time.Second))
	tick(fake, 3)

	select {
	case call := <-rec.calls:
		assert.Equal(t, saveCall{percent: 100, duration: 2}, call)
	case <-time.After(2 * time.Second):
		t.Fatal("save never started")
	}

	// The save is still in flight.
	st := m.Status()
	assert.False(t, st.Active)
	require.NotNil(t, st.Result)
	assert.Equal(t, Result{Score: 2, DurationSeconds: 2}, *st.Result)
	assert.False(t, st.Saved)

	assert.ErrorIs(t, m.Cancel(), ErrNoSession, "a completed session cannot be cancelled")
	require.NotNil(t, m.Status().Result, "outcome must survive the cancel attempt")

	close(rec.release)
	waitFor(t, "save to finish", func() bool { return m.Status().Saved })
	waitFor(t, "completion event", func() bool { return pub.Count(events.TypeSessionCompleted) == 1 })
	assert.Zero(t, pub.Count(events.TypeSessionCancelled))

	res, err := m.Acknowledge()
	require.NoError(t, err)
	assert.Equal(t, 2, res.Score)
	assert.Equal(t, Status{}, m.Status())
}

func TestManagerCloseWaitsForCalibrationCommit(t *testing.T) {
	fake := clock.NewFake(time.Now())
	entered := make(chan struct{})
	release := make(chan struct{})

	m := NewManager(newFrameSource(greenFrame), ManagerConfig{
		Session: []Option{
			WithClock(fake),
			WithCalibrationSeconds(1),
			WithCalibrator(CalibratorFunc(func(ctx context.Context) error {
				close(entered)
				<-release
				return nil
			})),
		},
		Logger: quietLogger(),
	})

	_, err := m.Start(30)
	require.NoError(t, err)
	require.True(t, fake.BlockUntilTickers(1, 2*time.Second))
	tick(fake, 1)

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("calibration commit never started")
	}

	closed := make(chan struct{})
	go func() {
		m.Close()
		close(closed)
	}()

	select {
	case <-closed:
		t.Fatal("Close returned while a calibration commit was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return after the commit finished")
	}
}

func TestManagerRejectsInvalidDuration(t *testing.T) {
	f := newManagerFixture(t)

	for _, d := range []int{0, -5, 3601} {
		_, err := f.m.Start(d)
		assert.ErrorIs(t, err, ErrInvalidDuration, "duration %d", d)
	}

	assert.Equal(t, Status{}, f.m.Status())
	assert.Empty(t, f.pub.Events())
	assert.Zero(t, f.fake.ActiveTickers())
}

func TestManagerSaveFailureIsNotFatal(t *testing.T) {
	f := newManagerFixture(t)
	f.saves.err = errors.New("backend unavailable")

	f.src.Set(telemetry.Frame{TotalWeight: 70, Status: telemetry.StatusRed})
	f.start(t, 2)
	tick(f.fake, 3)

	st := f.waitDone(t)
	require.NotNil(t, st.Result)
	assert.Equal(t, 0, st.Result.Score)
	assert.False(t, st.Saved)
	assert.Len(t, f.saves.Calls(), 1)

	waitFor(t, "completion event", func() bool { return f.pub.Count(events.TypeSessionCompleted) == 1 })
	var completed events.SessionCompleted
	for _, e := range f.pub.Events() {
		if e.Type == events.TypeSessionCompleted {
			require.NoError(t, e.ParseData(&completed))
		}
	}
	assert.False(t, completed.Saved)
}

func TestManagerStartDiscardsUnacknowledgedOutcome(t *testing.T) {
	f := newManagerFixture(t)
	first := f.start(t, 1)
	tick(f.fake, 2)
	f.waitDone(t)

	second, err := f.m.Start(1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	st := f.m.Status()
	assert.Equal(t, second, st.ID)
	assert.Nil(t, st.Result)
}

func TestManagerPublishFailureIsNotFatal(t *testing.T) {
	fake := clock.NewFake(time.Now())
	pub := events.PublisherFunc(func(context.Context, *events.Event) error {
		return errors.New("broker down")
	})

	m := NewManager(newFrameSource(greenFrame), ManagerConfig{
		Session:   []Option{WithClock(fake), WithCalibrationSeconds(1)},
		Publisher: pub,
		Logger:    quietLogger(),
	})
	defer m.Close()

	_, err := m.Start(2)
	require.NoError(t, err)
	require.True(t, fake.BlockUntilTickers(1, 2*time.Second))
	tick(fake, 3)

	var st Status
	waitFor(t, "session to finish", func() bool {
		st = m.Status()
		return !st.Active
	})
	require.NotNil(t, st.Result)
	assert.Equal(t, 2, st.Result.Score)
	assert.False(t, st.Saved, "no recorder configured")
}

func TestManagerWait(t *testing.T) {
	f := newManagerFixture(t)
	assert.NoError(t, f.m.Wait(context.Background()))

	f.start(t, 30)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.m.Wait(ctx), context.DeadlineExceeded)
}

func TestManagerPublishTimeout(t *testing.T) {
	deadlines := make(chan time.Duration, 8)
	pub := events.PublisherFunc(func(ctx context.Context, _ *events.Event) error {
		if d, ok := ctx.Deadline(); ok {
			deadlines <- time.Until(d)
		}
		return nil
	})

	m := NewManager(newFrameSource(greenFrame), ManagerConfig{
		Session:        []Option{WithClock(clock.NewFake(time.Now())), WithCalibrationSeconds(1)},
		Publisher:      pub,
		PublishTimeout: 250 * time.Millisecond,
		Logger:         quietLogger(),
	})

	_, err := m.Start(5)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	select {
	case d := <-deadlines:
		assert.LessOrEqual(t, d, 250*time.Millisecond)
		assert.Greater(t, d, time.Duration(0))
	case <-time.After(2 * time.Second):
		t.Fatal("session.started never delivered")
	}
}
