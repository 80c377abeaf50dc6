package security

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nijenhuis/api-guard/internal/models"
)

// EventLog is an append-only ring buffer of security events. Once full,
// the oldest entries are evicted first.
type EventLog struct {
	mu     sync.Mutex
	events []models.SecurityEvent
	limit  int
}

// NewEventLog creates an event log holding at most limit entries
func NewEventLog(limit int) *EventLog {
	return &EventLog{
		events: make([]models.SecurityEvent, 0, limit),
		limit:  limit,
	}
}

// Append records an event
func (l *EventLog) Append(eventType models.EventType, details map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, models.SecurityEvent{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Type:      eventType,
		Details:   details,
	})
	if len(l.events) > l.limit {
		l.events = l.events[len(l.events)-l.limit:]
	}
}

// Recent returns copies of the last n events, oldest first
func (l *EventLog) Recent(n int) []models.SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n <= 0 || n > len(l.events) {
		n = len(l.events)
	}

	result := make([]models.SecurityEvent, n)
	copy(result, l.events[len(l.events)-n:])
	return result
}

// Len returns the number of buffered events
func (l *EventLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
