package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFakeTimer(t *testing.T) {
	t.Run("fires at deadline", func(t *testing.T) {
		f := NewFake(epoch)
		timer := f.NewTimer(time.Second)

		if f.PendingTimers() != 1 {
			t.Fatalf("expected 1 pending timer, got %d", f.PendingTimers())
		}

		f.Advance(999 * time.Millisecond)
		select {
		case <-timer.C():
			t.Fatal("timer fired early")
		default:
		}

		f.Advance(time.Millisecond)
		select {
		case at := <-timer.C():
			if !at.Equal(epoch.Add(time.Second)) {
				t.Errorf("unexpected fire time %v", at)
			}
		default:
			t.Fatal("timer did not fire")
		}

		if f.PendingTimers() != 0 {
			t.Errorf("expected no pending timers, got %d", f.PendingTimers())
		}
		if timer.Stop() {
			t.Error("Stop after fire should return false")
		}
	})

	t.Run("stop cancels", func(t *testing.T) {
		f := NewFake(epoch)
		timer := f.NewTimer(time.Second)

		if !timer.Stop() {
			t.Fatal("Stop should report true for a pending timer")
		}
		if f.PendingTimers() != 0 {
			t.Errorf("expected 0 pending timers, got %d", f.PendingTimers())
		}

		f.Advance(2 * time.Second)
		select {
		case <-timer.C():
			t.Fatal("stopped timer fired")
		default:
		}
	})
}

func TestFakeTicker(t *testing.T) {
	f := NewFake(epoch)
	tk := f.NewTicker(time.Second)

	got := make(chan time.Time, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			got <- <-tk.C()
		}
		tk.Stop()
	}()

	f.Advance(3 * time.Second)
	<-done

	if len(got) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(got))
	}
	for i := 1; i <= 3; i++ {
		at := <-got
		if want := epoch.Add(time.Duration(i) * time.Second); !at.Equal(want) {
			t.Errorf("tick %d at %v, want %v", i, at, want)
		}
	}

	if f.ActiveTickers() != 0 {
		t.Errorf("expected ticker removed after Stop, got %d active", f.ActiveTickers())
	}

	// A stopped ticker must not block Advance.
	f.Advance(5 * time.Second)
	if !f.Now().Equal(epoch.Add(8 * time.Second)) {
		t.Errorf("unexpected now %v", f.Now())
	}
}

func TestBlockUntil(t *testing.T) {
	f := NewFake(epoch)

	if f.BlockUntilTimers(1, 5*time.Millisecond) {
		t.Fatal("expected timeout with no timers")
	}

	go func() {
		time.Sleep(2 * time.Millisecond)
		f.NewTimer(time.Second)
		f.NewTicker(time.Second)
	}()

	if !f.BlockUntilTimers(1, time.Second) {
		t.Fatal("timer never scheduled")
	}
	if !f.BlockUntilTickers(1, time.Second) {
		t.Fatal("ticker never created")
	}
}
