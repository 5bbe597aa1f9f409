package clock

import (
	"sync"
	"time"
)

// Fake is a manually advanced Clock for tests.
//
// Timer channels are buffered and fire without blocking. Ticker channels are
// unbuffered: Advance blocks until the consumer receives each tick (or the
// ticker is stopped), so a test that advances one period at a time knows the
// previous tick has been picked up.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	timers  []*fakeTimer
	tickers []*fakeTicker
}

// NewFake returns a Fake clock starting at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the fake current time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTimer schedules a one-shot timer d after the fake now.
func (f *Fake) NewTimer(d time.Duration) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTimer{
		clock:    f,
		deadline: f.now.Add(d),
		ch:       make(chan time.Time, 1),
	}
	f.timers = append(f.timers, t)
	return t
}

// NewTicker creates a ticker with period d. d must be positive.
func (f *Fake) NewTicker(d time.Duration) Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	tk := &fakeTicker{
		clock:   f,
		period:  d,
		next:    f.now.Add(d),
		ch:      make(chan time.Time),
		stopped: make(chan struct{}),
	}
	f.tickers = append(f.tickers, tk)
	return tk
}

// Advance moves the clock forward by d, firing every timer and ticker that
// falls due on the way, in deadline order.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	for {
		timer, ticker, at := f.nextDueLocked(target)
		if timer == nil && ticker == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		f.now = at

		if timer != nil {
			f.removeTimerLocked(timer)
			timer.fired = true
			timer.ch <- at
			continue
		}

		ticker.next = ticker.next.Add(ticker.period)
		f.mu.Unlock()
		select {
		case ticker.ch <- at:
		case <-ticker.stopped:
		}
		f.mu.Lock()
	}
}

// PendingTimers reports timers that are neither fired nor stopped.
func (f *Fake) PendingTimers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.timers)
}

// ActiveTickers reports tickers that have not been stopped.
func (f *Fake) ActiveTickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// BlockUntilTimers waits until at least n timers are pending, or timeout.
func (f *Fake) BlockUntilTimers(n int, timeout time.Duration) bool {
	return poll(timeout, func() bool { return f.PendingTimers() >= n })
}

// BlockUntilTickers waits until at least n tickers are active, or timeout.
func (f *Fake) BlockUntilTickers(n int, timeout time.Duration) bool {
	return poll(timeout, func() bool { return f.ActiveTickers() >= n })
}

func poll(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *Fake) nextDueLocked(target time.Time) (*fakeTimer, *fakeTicker, time.Time) {
	var (
		bestTimer  *fakeTimer
		bestTicker *fakeTicker
		best       time.Time
	)
	for _, t := range f.timers {
		if t.deadline.After(target) {
			continue
		}
		if (bestTimer == nil && bestTicker == nil) || t.deadline.Before(best) {
			bestTimer, bestTicker, best = t, nil, t.deadline
		}
	}
	for _, tk := range f.tickers {
		if tk.next.After(target) {
			continue
		}
		if (bestTimer == nil && bestTicker == nil) || tk.next.Before(best) {
			bestTimer, bestTicker, best = nil, tk, tk.next
		}
	}
	return bestTimer, bestTicker, best
}

func (f *Fake) removeTimerLocked(t *fakeTimer) bool {
	for i, cur := range f.timers {
		if cur == t {
			f.timers = append(f.timers[:i], f.timers[i+1:]...)
			return true
		}
	}
	return false
}

func (f *Fake) removeTickerLocked(tk *fakeTicker) {
	for i, cur := range f.tickers {
		if cur == tk {
			f.tickers = append(f.tickers[:i], f.tickers[i+1:]...)
			return
		}
	}
}

type fakeTimer struct {
	clock    *Fake
	deadline time.Time
	ch       chan time.Time
	fired    bool
}

func (t *fakeTimer) C() <-chan time.Time { return t.ch }

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.fired {
		return false
	}
	return t.clock.removeTimerLocked(t)
}

type fakeTicker struct {
	clock    *Fake
	period   time.Duration
	next     time.Time
	ch       chan time.Time
	stopped  chan struct{}
	stopOnce sync.Once
}

func (tk *fakeTicker) C() <-chan time.Time { return tk.ch }

func (tk *fakeTicker) Stop() {
	tk.stopOnce.Do(func() {
		tk.clock.mu.Lock()
		tk.clock.removeTickerLocked(tk)
		tk.clock.mu.Unlock()
		close(tk.stopped)
	})
}
