// Package dashboard is the local HTTP and WebSocket surface of the training
// client: session control, live telemetry fan-out and pass-through access to
// the backend's history and reports.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-steady/pkg/backend"
	"github.com/teslashibe/go-steady/pkg/events"
	"github.com/teslashibe/go-steady/pkg/hub"
	"github.com/teslashibe/go-steady/pkg/session"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// Telemetry is the read side of the telemetry channel.
type Telemetry interface {
	Snapshot() telemetry.Snapshot
	Stats() telemetry.Stats
}

// Sessions controls the client's training session.
type Sessions interface {
	Start(durationSeconds int) (string, error)
	Cancel() error
	Acknowledge() (session.Result, error)
	Status() session.Status
}

// Reports reads history and narrative reports from the backend.
type Reports interface {
	History(ctx context.Context) ([]backend.HistoryEntry, error)
	SessionReport(ctx context.Context, req backend.ReportRequest) (string, error)
	GlobalAnalysis(ctx context.Context) (string, error)
}

// Classifier resolves a frame's stability status.
type Classifier interface {
	Classify(f telemetry.Frame) telemetry.Status
}

// Config configures a Server.
type Config struct {
	Port int

	Telemetry  Telemetry
	Sessions   Sessions
	Reports    Reports
	Classifier Classifier

	// ReportTimeout bounds pass-through backend calls.
	ReportTimeout time.Duration

	Logger *slog.Logger
}

// Server is the dashboard server.
type Server struct {
	app    *fiber.App
	config Config
	logger *slog.Logger

	telemetryHub *hub.Hub
	sessionHub   *hub.Hub

	mu      sync.Mutex
	running bool
}

// NewServer creates a dashboard server.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Telemetry == nil || cfg.Sessions == nil || cfg.Classifier == nil {
		return nil, errors.New("dashboard: telemetry, sessions and classifier are required")
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReportTimeout <= 0 {
		cfg.ReportTimeout = 30 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s := &Server{
		config:       cfg,
		logger:       cfg.Logger.With("component", "dashboard"),
		telemetryHub: hub.New("telemetry", cfg.Logger),
		sessionHub:   hub.New("session", cfg.Logger),
	}

	s.telemetryHub.OnRegister(func() []byte {
		data, _ := s.telemetryView().Bytes()
		return data
	})

	app := fiber.New(fiber.Config{
		AppName:               "Steady Dashboard",
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
	})

	app.Use(recover.New())
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/telemetry", s.handleTelemetry)
	api.Post("/sessions", s.handleStartSession)
	api.Get("/sessions/current", s.handleCurrentSession)
	api.Delete("/sessions/current", s.handleCancelSession)
	api.Post("/sessions/current/ack", s.handleAcknowledge)
	api.Get("/history", s.handleHistory)
	api.Post("/report", s.handleReport)
	api.Get("/analysis", s.handleAnalysis)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/telemetry", websocket.New(s.serveHub(s.telemetryHub)))
	app.Get("/ws/session", websocket.New(s.serveHub(s.sessionHub)))

	s.app = app
	return s, nil
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run starts the hubs and serves on the configured port until ctx ends.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("dashboard listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("dashboard: already running")
	}
	s.running = true
	s.mu.Unlock()

	go s.telemetryHub.Run(ctx)
	go s.sessionHub.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listener(ln)
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
			return fmt.Errorf("dashboard shutdown: %w", err)
		}
		return nil
	}
}

// PublishFrame fans a frame out to telemetry clients. Wire it to the
// channel's OnFrame.
func (s *Server) PublishFrame(f telemetry.Frame) {
	snap := s.config.Telemetry.Snapshot()
	snap.Frame = f
	if data, err := s.viewOf(snap).Bytes(); err == nil {
		s.telemetryHub.Broadcast(data)
	}
}

// Publish fans a lifecycle event out to session clients. It satisfies
// events.Publisher.
func (s *Server) Publish(_ context.Context, e *events.Event) error {
	data, err := e.Bytes()
	if err != nil {
		return err
	}
	s.sessionHub.Broadcast(data)
	return nil
}

func (s *Server) serveHub(h *hub.Hub) func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		if err := hub.Serve(h, c); err != nil {
			s.logger.Debug("websocket rejected", "error", err)
		}
	}
}

// Stats contains dashboard counters.
type Stats struct {
	Telemetry hub.Stats `json:"telemetry"`
	Session   hub.Stats `json:"session"`
}

// Stats returns dashboard counters.
func (s *Server) Stats() Stats {
	return Stats{
		Telemetry: s.telemetryHub.Stats(),
		Session:   s.sessionHub.Stats(),
	}
}

var _ events.Publisher = (*Server)(nil)
