package grace

import (
	"log/slog"
	"time"
)

// EventType identifies a grace period notification
type EventType string

const (
	EventOfflineStarted EventType = "OFFLINE_STARTED"
	EventOnlineRestored EventType = "ONLINE_RESTORED"
	EventWarning        EventType = "GRACE_WARNING"
	EventCritical       EventType = "GRACE_CRITICAL"
	EventExpired        EventType = "GRACE_EXPIRED"
)

// Event carries the status at the moment it was raised
type Event struct {
	Type   EventType `json:"type"`
	Status Status    `json:"status"`
	At     time.Time `json:"at"`
}

// Listener receives grace events
type Listener func(Event)

func eventForLevel(level WarningLevel) (EventType, bool) {
	switch level {
	case LevelWarning:
		return EventWarning, true
	case LevelCritical:
		return EventCritical, true
	case LevelExpired:
		return EventExpired, true
	}
	return "", false
}

// Subscribe registers l and returns a function that removes it
func (m *Manager) Subscribe(l Listener) func() {
	m.listenersMu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *Manager) emit(t EventType, status Status) {
	ev := Event{Type: t, Status: status, At: m.now()}

	m.listenersMu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("Grace listener panicked",
						slog.String("event", string(t)),
						slog.Any("panic", r))
				}
			}()
			l(ev)
		}()
	}
}
