package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Channel maintains the telemetry stream and is the only writer of its Store.
type Channel struct {
	config *Config
	logger *slog.Logger
	store  *Store
	dialer *websocket.Dialer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	closed  bool

	// Callbacks, invoked from the channel goroutine.
	onFrame func(Frame)
	onState func(ConnectionState)

	framesReceived atomic.Int64
	framesDropped  atomic.Int64
	connects       atomic.Int64
	reconnects     atomic.Int64
}

// NewChannel creates a channel. Call Start to begin streaming.
func NewChannel(opts ...Option) (*Channel, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Channel{
		config: cfg,
		logger: cfg.Logger.With("component", "telemetry.channel"),
		store:  NewStore(),
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		done: make(chan struct{}),
	}, nil
}

// OnFrame sets the callback for each decoded frame.
func (c *Channel) OnFrame(callback func(Frame)) {
	c.mu.Lock()
	c.onFrame = callback
	c.mu.Unlock()
}

// OnStateChange sets the callback for connection state transitions.
func (c *Channel) OnStateChange(callback func(ConnectionState)) {
	c.mu.Lock()
	c.onState = callback
	c.mu.Unlock()
}

// Start launches the connect/read/reconnect loop in the background.
func (c *Channel) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.started {
		return ErrAlreadyStarted
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.logger.Info("telemetry channel starting",
		"url", c.config.URL,
		"reconnect_delay", c.config.ReconnectDelay,
	)

	go c.run(runCtx)
	return nil
}

// Close tears the channel down: it closes the socket, cancels any pending
// reconnect and waits for the loop to exit. Safe to call more than once.
func (c *Channel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	started := c.started
	c.mu.Unlock()

	if started {
		cancel()
		<-c.done
	} else {
		close(c.done)
	}

	c.setState(StateClosed)
	c.logger.Info("telemetry channel closed")
	return nil
}

// Done is closed once the channel has fully shut down.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Store returns the read side of the channel's store.
func (c *Channel) Store() Reader {
	return c.store
}

// Latest returns the most recent frame, or NoSignal.
func (c *Channel) Latest() Frame {
	return c.store.Latest()
}

// State returns the current connection state.
func (c *Channel) State() ConnectionState {
	return c.store.State()
}

// Snapshot returns the current frame and state together.
func (c *Channel) Snapshot() Snapshot {
	return c.store.Snapshot()
}

func (c *Channel) run(ctx context.Context) {
	defer close(c.done)

	for {
		c.setState(StateConnecting)

		conn, err := c.dial(ctx)
		if err == nil {
			c.connects.Add(1)
			c.setState(StateOpen)
			c.logger.Info("telemetry stream open", "url", c.config.URL)
			c.readLoop(ctx, conn)
		} else if ctx.Err() == nil {
			c.logger.Debug("telemetry dial failed", "error", err)
		}

		c.store.reset(time.Now())
		c.setState(StateClosed)

		if ctx.Err() != nil {
			return
		}

		c.reconnects.Add(1)
		c.setState(StateConnecting)
		if !c.wait(ctx) {
			c.setState(StateClosed)
			return
		}
	}
}

func (c *Channel) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.config.URL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: status %d: %w", c.config.URL, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("dial %s: %w", c.config.URL, err)
	}
	return conn, nil
}

// readLoop consumes frames until the socket errors or ctx is cancelled.
func (c *Channel) readLoop(ctx context.Context, conn *websocket.Conn) {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	defer func() {
		close(stop)
		conn.Close()
	}()

	if c.config.ReadLimit > 0 {
		conn.SetReadLimit(c.config.ReadLimit)
	}

	for {
		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("telemetry stream closed by source")
			} else {
				c.logger.Warn("telemetry stream dropped", "error", err)
			}
			return
		}

		c.handlePayload(data)
	}
}

func (c *Channel) handlePayload(data []byte) {
	frame, err := Decode(data)
	if err != nil {
		c.framesDropped.Add(1)
		c.logger.Debug("discarding telemetry payload", "error", err, "bytes", len(data))
		return
	}

	c.store.setFrame(frame, time.Now())
	c.framesReceived.Add(1)

	c.mu.Lock()
	cb := c.onFrame
	c.mu.Unlock()
	if cb != nil {
		cb(frame)
	}
}

// wait blocks for the reconnect delay. It returns false if ctx ends first,
// in which case the timer has been stopped.
func (c *Channel) wait(ctx context.Context) bool {
	timer := c.config.Clock.NewTimer(c.config.ReconnectDelay)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C():
		return true
	}
}

func (c *Channel) setState(st ConnectionState) {
	if !c.store.setState(st) {
		return
	}

	c.logger.Debug("telemetry state", "state", st.String())

	c.mu.Lock()
	cb := c.onState
	c.mu.Unlock()
	if cb != nil {
		cb(st)
	}
}

// Stats contains channel counters.
type Stats struct {
	State          string `json:"state"`
	FramesReceived int64  `json:"frames_received"`
	FramesDropped  int64  `json:"frames_dropped"`
	Connects       int64  `json:"connects"`
	Reconnects     int64  `json:"reconnects"`
}

// Stats returns channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		State:          c.State().String(),
		FramesReceived: c.framesReceived.Load(),
		FramesDropped:  c.framesDropped.Load(),
		Connects:       c.connects.Load(),
		Reconnects:     c.reconnects.Load(),
	}
}

// IsRunning reports whether the loop is active.
func (c *Channel) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started && !c.closed
}

var _ Reader = (*Channel)(nil)
