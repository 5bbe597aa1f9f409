package session

import "errors"

// Sentinel errors for the session package.
var (
	// ErrInvalidDuration indicates a training length that is not positive or
	// exceeds the configured maximum.
	ErrInvalidDuration = errors.New("session: invalid duration")

	// ErrInvalidConfig indicates any other rejected setting.
	ErrInvalidConfig = errors.New("session: invalid config")

	// ErrCancelled is returned by Run when the context ends before COMPLETE.
	ErrCancelled = errors.New("session: cancelled")

	// ErrAlreadyStarted indicates Run was called twice on one session.
	ErrAlreadyStarted = errors.New("session: already started")

	// ErrSessionActive indicates a start request while a session is running.
	ErrSessionActive = errors.New("session: a session is already running")

	// ErrNoSession indicates there is no session to act on.
	ErrNoSession = errors.New("session: no session")
)

// IsCancelled reports whether err came from a cancelled session.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}
