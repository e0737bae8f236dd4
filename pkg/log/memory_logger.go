package log

import "sync"

// MemoryLogger keeps the most recent events in memory.
// A zero limit keeps every event.
type MemoryLogger struct {
	mu     sync.Mutex
	limit  int
	events []Event
}

// NewMemoryLogger creates a MemoryLogger holding at most limit events.
func NewMemoryLogger(limit int) *MemoryLogger {
	return &MemoryLogger{limit: limit}
}

// Log appends the event, evicting the oldest one when full.
func (m *MemoryLogger) Log(event Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	if m.limit > 0 && len(m.events) > m.limit {
		m.events = m.events[len(m.events)-m.limit:]
	}
}

// Events returns a copy of the retained events, oldest first.
func (m *MemoryLogger) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.events))
	copy(out, m.events)
	return out
}

// Commands returns the command events with the given call state.
// An empty state returns every command event.
func (m *MemoryLogger) Commands(state string) []CommandEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CommandEvent
	for _, e := range m.events {
		if e.Command != nil && (state == "" || e.Command.State == state) {
			out = append(out, *e.Command)
		}
	}
	return out
}

// Reset drops all retained events.
func (m *MemoryLogger) Reset() {
	m.mu.Lock()
	m.events = nil
	m.mu.Unlock()
}

var _ Logger = (*MemoryLogger)(nil)
