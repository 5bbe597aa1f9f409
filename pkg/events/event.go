// Package events defines the lifecycle events go-steady emits and the
// publishers that carry them to the dashboard and to MQTT.
package events

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies an event.
type Type string

const (
	TypeSessionStarted      Type = "session.started"
	TypeSessionPhase        Type = "session.phase"
	TypeSessionCompleted    Type = "session.completed"
	TypeSessionCancelled    Type = "session.cancelled"
	TypeTelemetryConnection Type = "telemetry.connection"
)

// Event is the envelope for every published event.
type Event struct {
	Type      Type            `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Timestamp int64           `json:"ts"` // Unix milliseconds
	Data      json.RawMessage `json:"data,omitempty"`
}

// New creates an event stamped with the current time.
func New(t Type, sessionID string, data any) (*Event, error) {
	var raw json.RawMessage
	if data != nil {
		var err error
		raw, err = json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event data: %w", err)
		}
	}

	return &Event{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().UnixMilli(),
		Data:      raw,
	}, nil
}

// ParseData unmarshals the event data into v.
func (e *Event) ParseData(v any) error {
	if e.Data == nil {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Bytes returns the JSON-encoded event.
func (e *Event) Bytes() ([]byte, error) {
	return json.Marshal(e)
}

// Parse decodes an event.
func Parse(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to parse event: %w", err)
	}
	return &e, nil
}

// =============================================================================
// Payloads
// =============================================================================

// SessionStarted is the payload of session.started.
type SessionStarted struct {
	DurationSeconds    int `json:"duration_seconds"`
	CalibrationSeconds int `json:"calibration_seconds"`
}

// SessionPhase is the payload of session.phase.
type SessionPhase struct {
	Phase string `json:"phase"`
}

// SessionCompleted is the payload of session.completed.
type SessionCompleted struct {
	Score            int  `json:"score"`
	DurationSeconds  int  `json:"duration_seconds"`
	StabilityPercent int  `json:"stability_percent"`
	Saved            bool `json:"saved"`
}

// SessionCancelled is the payload of session.cancelled.
type SessionCancelled struct {
	Phase string `json:"phase"`
	Score int    `json:"score"`
}

// TelemetryConnection is the payload of telemetry.connection.
type TelemetryConnection struct {
	State string `json:"state"`
}
