package events

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Defaults for a Queue.
const (
	DefaultQueueSize      = 64
	DefaultPublishTimeout = 5 * time.Second
)

var (
	// ErrQueueFull indicates an event dropped because the queue was full.
	ErrQueueFull = errors.New("events: queue full")

	// ErrQueueClosed indicates an event published after Close.
	ErrQueueClosed = errors.New("events: queue closed")
)

// Queue is a Publisher that hands events to another Publisher from its own
// goroutine, in order. Publish never blocks: when the queue is full the
// event is dropped.
type Queue struct {
	next    Publisher
	timeout time.Duration
	logger  *slog.Logger

	ch        chan *Event
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// NewQueue starts a queue of size events in front of next. Each delivery
// gets timeout. Non-positive values fall back to the defaults.
func NewQueue(next Publisher, size int, timeout time.Duration, logger *slog.Logger) *Queue {
	if next == nil {
		next = Nop{}
	}
	if size <= 0 {
		size = DefaultQueueSize
	}
	if timeout <= 0 {
		timeout = DefaultPublishTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	q := &Queue{
		next:    next,
		timeout: timeout,
		logger:  logger.With("component", "events.queue"),
		ch:      make(chan *Event, size),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

// Publish queues e. It returns ErrQueueFull or ErrQueueClosed instead of
// waiting.
func (q *Queue) Publish(_ context.Context, e *Event) error {
	select {
	case <-q.stop:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- e:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

func (q *Queue) loop() {
	defer close(q.done)

	for {
		select {
		case e := <-q.ch:
			q.deliver(e)
		case <-q.stop:
			for {
				select {
				case e := <-q.ch:
					q.deliver(e)
				default:
					return
				}
			}
		}
	}
}

func (q *Queue) deliver(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
	defer cancel()

	if err := q.next.Publish(ctx, e); err != nil {
		q.failed.Add(1)
		q.logger.Warn("event publish failed", "type", e.Type, "error", err)
		return
	}
	q.delivered.Add(1)
}

// Close delivers what is already queued and stops the queue. It is safe to
// call more than once.
func (q *Queue) Close() error {
	q.closeOnce.Do(func() { close(q.stop) })
	<-q.done
	return nil
}

// QueueStats contains queue counters.
type QueueStats struct {
	Pending   int   `json:"pending"`
	Delivered int64 `json:"delivered"`
	Failed    int64 `json:"failed"`
	Dropped   int64 `json:"dropped"`
}

// Stats returns queue counters.
func (q *Queue) Stats() QueueStats {
	return QueueStats{
		Pending:   len(q.ch),
		Delivered: q.delivered.Load(),
		Failed:    q.failed.Load(),
		Dropped:   q.dropped.Load(),
	}
}
