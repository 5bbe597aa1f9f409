package backend

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for the backend package.
var (
	// ErrMissingBaseURL indicates a client configured without a backend.
	ErrMissingBaseURL = errors.New("backend: base URL is required")

	// ErrInvalidArgument indicates a request the backend would reject.
	ErrInvalidArgument = errors.New("backend: invalid argument")

	// ErrRequest indicates the request never produced a response.
	ErrRequest = errors.New("backend: request failed")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	Endpoint   string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("backend: %s: status %d: %s", e.Endpoint, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("backend: %s: status %d", e.Endpoint, e.StatusCode)
}

// Retryable reports whether the same request might succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable reports whether err is worth retrying. Transport failures are.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return errors.Is(err, ErrRequest)
}
