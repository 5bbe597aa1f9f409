package telemetry

import "errors"

// Sentinel errors for the telemetry package.
var (
	// ErrMalformedFrame indicates a payload that could not be decoded.
	ErrMalformedFrame = errors.New("telemetry: malformed frame")

	// ErrMissingURL indicates the channel was configured without an endpoint.
	ErrMissingURL = errors.New("telemetry: endpoint URL is required")

	// ErrInvalidReconnectDelay indicates a non-positive reconnect delay.
	ErrInvalidReconnectDelay = errors.New("telemetry: reconnect delay must be positive")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("telemetry: channel already started")

	// ErrClosed indicates the channel has been torn down.
	ErrClosed = errors.New("telemetry: channel closed")
)

// IsMalformed reports whether err came from decoding a bad payload.
func IsMalformed(err error) bool {
	return errors.Is(err, ErrMalformedFrame)
}
