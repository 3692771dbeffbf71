package license

import (
	"log/slog"
	"time"

	licenseErrors "licensecore/internal/errors"
	"licensecore/pkg/contracts/domain"
)

// EventType identifies a validator notification
type EventType string

const (
	EventValidated       EventType = "LICENSE_VALIDATED"
	EventOfflineFallback EventType = "LICENSE_OFFLINE_FALLBACK"
	EventRejected        EventType = "LICENSE_REJECTED"
	EventActivated       EventType = "LICENSE_ACTIVATED"
	EventDeactivated     EventType = "LICENSE_DEACTIVATED"
)

// Event is delivered to listeners after the validator state changed.
// Offline is set for validations answered from the cache.
type Event struct {
	Type    EventType          `json:"type"`
	License *domain.License    `json:"license,omitempty"`
	Code    licenseErrors.Code `json:"code,omitempty"`
	Offline bool               `json:"offline"`
	At      time.Time          `json:"at"`
}

// Listener receives validator events
type Listener func(Event)

// Subscribe registers l and returns a function that removes it
func (v *Validator) Subscribe(l Listener) func() {
	v.listenersMu.Lock()
	id := v.nextID
	v.nextID++
	v.listeners[id] = l
	v.listenersMu.Unlock()

	return func() {
		v.listenersMu.Lock()
		delete(v.listeners, id)
		v.listenersMu.Unlock()
	}
}

// emit calls every listener outside the state lock. A panicking listener is
// logged and does not affect the others.
func (v *Validator) emit(ev Event) {
	ev.At = v.now()

	v.listenersMu.RLock()
	listeners := make([]Listener, 0, len(v.listeners))
	for _, l := range v.listeners {
		listeners = append(listeners, l)
	}
	v.listenersMu.RUnlock()

	for _, l := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					v.logger.Error("License listener panicked",
						slog.String("event", string(ev.Type)),
						slog.Any("panic", r))
				}
			}()
			l(ev)
		}()
	}
}
