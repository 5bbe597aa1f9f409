package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/teslashibe/go-steady/pkg/backend"
	"github.com/teslashibe/go-steady/pkg/session"
	"github.com/teslashibe/go-steady/pkg/telemetry"
)

// TelemetryView is what dashboard clients see of the latest frame.
type TelemetryView struct {
	Frame      telemetry.Frame  `json:"frame"`
	Status     telemetry.Status `json:"status"`
	Connection string           `json:"connection"`
	UpdatedAt  time.Time        `json:"updated_at"`
}

// Bytes returns the JSON-encoded view.
func (v TelemetryView) Bytes() ([]byte, error) {
	return json.Marshal(v)
}

func (s *Server) telemetryView() TelemetryView {
	return s.viewOf(s.config.Telemetry.Snapshot())
}

func (s *Server) viewOf(snap telemetry.Snapshot) TelemetryView {
	return TelemetryView{
		Frame:      snap.Frame,
		Status:     s.config.Classifier.Classify(snap.Frame),
		Connection: snap.State.String(),
		UpdatedAt:  snap.UpdatedAt,
	}
}

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Telemetry  TelemetryView   `json:"telemetry"`
	Connection telemetry.Stats `json:"connection"`
	Session    session.Status  `json:"session"`
	Dashboard  Stats           `json:"dashboard"`
}

// StartSessionRequest is the body of POST /api/sessions.
type StartSessionRequest struct {
	DurationSeconds int `json:"duration_seconds"`
}

// AcknowledgeResponse is the body returned when a result is acknowledged.
type AcknowledgeResponse struct {
	Score            int `json:"score"`
	DurationSeconds  int `json:"duration_seconds"`
	StabilityPercent int `json:"stability_percent"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "ok",
		"telemetry": s.config.Telemetry.Snapshot().State.String(),
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(StatusResponse{
		Telemetry:  s.telemetryView(),
		Connection: s.config.Telemetry.Stats(),
		Session:    s.config.Sessions.Status(),
		Dashboard:  s.Stats(),
	})
}

func (s *Server) handleTelemetry(c *fiber.Ctx) error {
	return c.JSON(s.telemetryView())
}

func (s *Server) handleStartSession(c *fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	id, err := s.config.Sessions.Start(req.DurationSeconds)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":               id,
		"duration_seconds": req.DurationSeconds,
	})
}

func (s *Server) handleCurrentSession(c *fiber.Ctx) error {
	st := s.config.Sessions.Status()
	if st.ID == "" {
		return session.ErrNoSession
	}
	return c.JSON(st)
}

func (s *Server) handleCancelSession(c *fiber.Ctx) error {
	if err := s.config.Sessions.Cancel(); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAcknowledge(c *fiber.Ctx) error {
	res, err := s.config.Sessions.Acknowledge()
	if err != nil {
		return err
	}
	return c.JSON(AcknowledgeResponse{
		Score:            res.Score,
		DurationSeconds:  res.DurationSeconds,
		StabilityPercent: res.Percent(),
	})
}

func (s *Server) handleHistory(c *fiber.Ctx) error {
	if s.config.Reports == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "backend not configured")
	}

	ctx, cancel := s.reportContext(c)
	defer cancel()

	entries, err := s.config.Reports.History(ctx)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

func (s *Server) handleReport(c *fiber.Ctx) error {
	if s.config.Reports == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "backend not configured")
	}

	var req backend.ReportRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := s.reportContext(c)
	defer cancel()

	text, err := s.config.Reports.SessionReport(ctx, req)
	if err != nil {
		return err
	}
	return c.JSON(backend.Report{Text: text})
}

func (s *Server) handleAnalysis(c *fiber.Ctx) error {
	if s.config.Reports == nil {
		return fiber.NewError(fiber.StatusServiceUnavailable, "backend not configured")
	}

	ctx, cancel := s.reportContext(c)
	defer cancel()

	text, err := s.config.Reports.GlobalAnalysis(ctx)
	if err != nil {
		return err
	}
	return c.JSON(backend.Report{Text: text})
}

func (s *Server) reportContext(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), s.config.ReportTimeout)
}

// errorHandler maps domain errors to HTTP statuses.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, session.ErrInvalidDuration), errors.Is(err, session.ErrInvalidConfig),
		errors.Is(err, backend.ErrInvalidArgument):
		code = fiber.StatusBadRequest
	case errors.Is(err, session.ErrSessionActive):
		code = fiber.StatusConflict
	case errors.Is(err, session.ErrNoSession):
		code = fiber.StatusNotFound
	case errors.As(err, &apiErr), errors.Is(err, backend.ErrRequest):
		code = fiber.StatusBadGateway
	}

	if code >= fiber.StatusInternalServerError {
		s.logger.Warn("request failed", "path", c.Path(), "status", code, "error", err)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
