package session

import (
	"sync"
	"time"

	"github.com/wonny/tailgame/internal/contracts"
)

// DefaultLogSize is the number of events kept for the dashboard
const DefaultLogSize = 30

// EventLog is a bounded ring of user-facing events
type EventLog struct {
	mu      sync.RWMutex
	entries []contracts.LogEntry
	max     int
}

// NewEventLog creates a log keeping the last max entries
func NewEventLog(max int) *EventLog {
	if max <= 0 {
		max = DefaultLogSize
	}
	return &EventLog{max: max}
}

// Add appends an event stamped at t
func (l *EventLog) Add(t time.Time, event, details string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, contracts.LogEntry{
		Time:    t,
		Stamp:   t.Format("15:04:05"),
		Event:   event,
		Details: details,
	})
	if len(l.entries) > l.max {
		l.entries = append([]contracts.LogEntry(nil), l.entries[len(l.entries)-l.max:]...)
	}
}

// Entries returns a copy, oldest first
func (l *EventLog) Entries() []contracts.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]contracts.LogEntry(nil), l.entries...)
}

// Recent returns up to n entries, newest first
func (l *EventLog) Recent(n int) []contracts.LogEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]contracts.LogEntry, 0, n)
	for i := len(l.entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

// Clear drops every entry
func (l *EventLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}
