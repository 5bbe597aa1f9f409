// Package backend is the client for the sensor backend's HTTP API: the
// calibration commit, session save, history and report endpoints.
package backend

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-resty/resty/v2"

	"github.com/teslashibe/go-steady/internal/httpc"
)

// Client talks to the sensor backend. It is safe for concurrent use.
type Client struct {
	config *Config
	logger *slog.Logger
	http   *resty.Client

	requests atomic.Int64
	failures atomic.Int64
}

// NewClient creates a backend client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := DefaultConfig()
	cfg.Apply(opts...)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = httpc.NewClient(cfg.Timeout)
	}

	rc := resty.NewWithClient(hc).
		SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	if cfg.RetryCount > 0 {
		rc.SetRetryCount(cfg.RetryCount).
			SetRetryWaitTime(cfg.RetryWaitTime).
			AddRetryCondition(func(r *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return (&APIError{StatusCode: r.StatusCode()}).Retryable()
			})
	}

	return &Client{
		config: cfg,
		logger: cfg.Logger.With("component", "backend"),
		http:   rc,
	}, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// CommitCalibration asks the backend to zero its baseline on the current
// readings.
func (c *Client) CommitCalibration(ctx context.Context) error {
	var out statusResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Post(PathCalibrate)
	if err := c.check(PathCalibrate, resp, err); err != nil {
		return err
	}

	c.logger.Debug("calibration committed", "status", out.Status)
	return nil
}

// SaveSession records a completed session's normalized score.
func (c *Client) SaveSession(ctx context.Context, stabilityPercent, durationSeconds int) error {
	if stabilityPercent < 0 || stabilityPercent > 100 {
		return fmt.Errorf("%w: stability percent %d outside 0-100", ErrInvalidArgument, stabilityPercent)
	}
	if durationSeconds <= 0 {
		return fmt.Errorf("%w: duration %d must be positive", ErrInvalidArgument, durationSeconds)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"score":    strconv.Itoa(stabilityPercent),
			"duration": strconv.Itoa(durationSeconds),
		}).
		Post(PathSaveSession)
	if err := c.check(PathSaveSession, resp, err); err != nil {
		return err
	}

	c.logger.Info("session saved", "percent", stabilityPercent, "duration_s", durationSeconds)
	return nil
}

// History returns saved sessions, oldest first.
func (c *Client) History(ctx context.Context) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&entries).
		Get(PathHistory)
	if err := c.check(PathHistory, resp, err); err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []HistoryEntry{}
	}
	return entries, nil
}

// SessionReport asks for a narrative report on one session.
func (c *Client) SessionReport(ctx context.Context, req ReportRequest) (string, error) {
	if req.DurationSeconds <= 0 {
		return "", fmt.Errorf("%w: duration %d must be positive", ErrInvalidArgument, req.DurationSeconds)
	}

	var out Report
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&out).
		Post(PathSessionReport)
	if err := c.check(PathSessionReport, resp, err); err != nil {
		return "", err
	}
	return out.Text, nil
}

// GlobalAnalysis asks for a narrative summary across all saved sessions.
func (c *Client) GlobalAnalysis(ctx context.Context) (string, error) {
	var out Report
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		Get(PathGlobalAnalysis)
	if err := c.check(PathGlobalAnalysis, resp, err); err != nil {
		return "", err
	}
	return out.Text, nil
}

func (c *Client) check(endpoint string, resp *resty.Response, err error) error {
	c.requests.Add(1)

	if err != nil {
		c.failures.Add(1)
		return fmt.Errorf("%w: %s: %w", ErrRequest, endpoint, err)
	}
	if resp.IsError() {
		c.failures.Add(1)
		return &APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode(),
			Body:       truncate(strings.TrimSpace(resp.String()), 200),
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Stats contains client counters.
type Stats struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
}

// Stats returns client counters.
func (c *Client) Stats() Stats {
	return Stats{
		Requests: c.requests.Load(),
		Failures: c.failures.Load(),
	}
}
