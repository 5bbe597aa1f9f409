package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/teslashibe/go-steady/pkg/backend"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// Occupier is a sensor whose occupancy can be toggled.
type Occupier interface {
	SetOccupied(bool)
	Occupied() bool
}

// Server serves a Platform over HTTP and WebSocket.
type Server struct {
	app      *fiber.App
	platform *Platform
	history  *History
	logger   *slog.Logger
	interval time.Duration

	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	running bool

	clients    atomic.Int64
	framesSent atomic.Uint64
	saved      atomic.Uint64
}

// NewServer creates a server for p. History is bounded by the platform's
// HistoryLimit.
func NewServer(p *Platform) *Server {
	s := &Server{
		platform: p,
		history:  NewHistory(p.config.HistoryLimit, p.config.Clock.Now),
		logger:   p.config.Logger.With("component", "platform-server"),
		interval: p.config.StreamInterval,
		stop:     make(chan struct{}),
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		AppName:               "steady-platform",
	})
	s.app.Use(recover.New())
	s.registerRoutes()
	return s
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// History returns the saved-session history.
func (s *Server) History() *History {
	return s.history
}

func (s *Server) registerRoutes() {
	s.app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	s.app.Get("/ws", websocket.New(s.handleStream))

	s.app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.app.Get("/api/stats", func(c *fiber.Ctx) error {
		return c.JSON(s.Stats())
	})

	s.app.Post(backend.PathCalibrate, s.handleCalibrate)
	s.app.Post(backend.PathSaveSession, s.handleSaveSession)
	s.app.Get(backend.PathHistory, func(c *fiber.Ctx) error {
		return c.JSON(s.history.Entries())
	})
	s.app.Post(backend.PathSessionReport, s.handleReport)
	s.app.Get(backend.PathGlobalAnalysis, func(c *fiber.Ctx) error {
		return c.JSON(backend.Report{Text: GlobalAnalysis(s.history.Entries())})
	})

	s.app.Post("/api/sim/occupancy", s.handleOccupancy)
}

// handleStream pushes the latest frame to one client every interval until
// the client goes away or the server stops.
func (s *Server) handleStream(c *websocket.Conn) {
	n := s.clients.Add(1)
	s.logger.Debug("stream client connected", "clients", n)
	defer func() {
		n := s.clients.Add(-1)
		s.logger.Debug("stream client disconnected", "clients", n)
	}()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		data, err := telemetry.Encode(s.platform.Latest())
		if err != nil {
			s.logger.Error("encode frame", "error", err)
			return
		}
		if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
		s.framesSent.Add(1)

		select {
		case <-gone:
			return
		case <-s.stop:
			c.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) handleCalibrate(c *fiber.Ctx) error {
	s.platform.Calibrate()
	return c.JSON(fiber.Map{"status": "success"})
}

func (s *Server) handleSaveSession(c *fiber.Ctx) error {
	score, err := strconv.Atoi(c.Query("score"))
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "score must be an integer")
	}
	duration, err := strconv.Atoi(c.Query("duration"))
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "duration must be an integer")
	}

	e := s.history.Add(score, duration)
	s.saved.Add(1)
	s.logger.Info("session saved", "label", e.Label, "score", score, "duration_s", duration)
	return c.JSON(fiber.Map{"status": "saved"})
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	var req backend.ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, err.Error())
	}
	weight := s.platform.Latest().TotalWeight
	return c.JSON(backend.Report{Text: SessionReport(weight, req)})
}

func (s *Server) handleOccupancy(c *fiber.Ctx) error {
	occ, ok := s.platform.Sensor().(Occupier)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "sensor occupancy is fixed")
	}
	var req struct {
		Occupied bool `json:"occupied"`
	}
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	occ.SetOccupied(req.Occupied)
	s.logger.Info("occupancy changed", "occupied", req.Occupied)
	return c.JSON(fiber.Map{"occupied": occ.Occupied()})
}

// Run listens on addr, samples the platform and serves until ctx ends.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("platform listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("platform: server already running")
	}
	s.running = true
	s.mu.Unlock()

	go func() {
		if err := s.platform.Run(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			s.logger.Error("sampling failed", "error", err)
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	s.logger.Info("platform listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.stopOnce.Do(func() { close(s.stop) })
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("platform shutdown: %w", err)
		}
		return nil
	}
}

// ServerStats contains server statistics.
type ServerStats struct {
	Platform   Stats  `json:"platform"`
	Clients    int64  `json:"clients"`
	FramesSent uint64 `json:"frames_sent"`
	Saved      uint64 `json:"saved"`
	History    int    `json:"history"`
}

// Stats returns server statistics.
func (s *Server) Stats() ServerStats {
	return ServerStats{
		Platform:   s.platform.Stats(),
		Clients:    s.clients.Load(),
		FramesSent: s.framesSent.Load(),
		Saved:      s.saved.Load(),
		History:    s.history.Len(),
	}
}
