package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// timerEntry tracks information about a scheduled timer
type timerEntry struct {
	timer     *time.Timer
	expiresAt time.Time
}

// Timer schedules one-shot callbacks for auto-advancing steps using Go's
// standard time package. All pending timers are invalidated on Stop.
type Timer struct {
	timers map[string]*timerEntry
	mu     sync.RWMutex
	nextID int64
}

// NewTimer creates a new Timer.
func NewTimer() *Timer {
	slog.Debug("Creating Timer")
	return &Timer{
		timers: make(map[string]*timerEntry),
	}
}

// ScheduleAfter schedules a function to run after a delay.
func (t *Timer) ScheduleAfter(delay time.Duration, fn func()) string {
	t.mu.Lock()
	t.nextID++
	id := fmt.Sprintf("timer_%d", t.nextID)
	t.mu.Unlock()

	slog.Debug("Timer ScheduleAfter", "id", id, "delay", delay)

	timer := time.AfterFunc(delay, func() {
		slog.Debug("Timer executing scheduled function", "id", id)
		fn()
		// Clean up timer reference
		t.mu.Lock()
		delete(t.timers, id)
		t.mu.Unlock()
	})

	t.mu.Lock()
	t.timers[id] = &timerEntry{
		timer:     timer,
		expiresAt: time.Now().Add(delay),
	}
	t.mu.Unlock()

	return id
}

// Cancel cancels a scheduled function by ID.
func (t *Timer) Cancel(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if entry, exists := t.timers[id]; exists {
		entry.timer.Stop()
		delete(t.timers, id)
		slog.Debug("Timer Cancel succeeded", "id", id)
	}
}

// Stop cancels all scheduled timers.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	slog.Debug("Timer stopping all timers", "count", len(t.timers))
	for _, entry := range t.timers {
		entry.timer.Stop()
	}
	t.timers = make(map[string]*timerEntry)
}
