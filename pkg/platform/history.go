package platform

import (
	"sync"
	"time"

	"github.com/teslashibe/go-steady/pkg/backend"
)

// HistoryLabelLayout formats the label of a saved session.
const HistoryLabelLayout = "02 Jan 15:04"

// History keeps the most recent saved sessions, oldest first.
type History struct {
	mu      sync.RWMutex
	limit   int
	entries []backend.HistoryEntry
	now     func() time.Time
}

// NewHistory returns a history holding at most limit entries.
func NewHistory(limit int, now func() time.Time) *History {
	if now == nil {
		now = time.Now
	}
	return &History{limit: limit, now: now}
}

// Add records a session and drops the oldest entries beyond the limit.
func (h *History) Add(score, durationSeconds int) backend.HistoryEntry {
	e := backend.HistoryEntry{
		Label:           h.now().Format(HistoryLabelLayout),
		StabilityScore:  score,
		DurationSeconds: durationSeconds,
	}

	h.mu.Lock()
	h.entries = append(h.entries, e)
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append([]backend.HistoryEntry(nil), h.entries[over:]...)
	}
	h.mu.Unlock()
	return e
}

// Entries returns a copy of the saved sessions.
func (h *History) Entries() []backend.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]backend.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of saved sessions.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
