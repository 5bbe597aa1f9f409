package platform

import "errors"

// Sentinel errors for the platform package.
var (
	ErrInvalidInterval     = errors.New("platform: intervals must be positive")
	ErrInvalidAlpha        = errors.New("platform: filter alpha must be in (0, 1]")
	ErrInvalidScale        = errors.New("platform: scale factor must be positive")
	ErrInvalidHistoryLimit = errors.New("platform: history limit must be positive")
	ErrAlreadyRunning      = errors.New("platform: already running")
)
