package monitor

import (
	"sync"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
	"github.com/t77yq/careops-alerts/internal/telemetry"
)

// Listener receives the full notification list, most recent first, after
// every change. A listener may call back into the AlertManager; the change
// it makes is delivered once the current round finishes.
type Listener func(notifications []model.AlertNotification)

// AddListener registers a listener and returns a function that removes it.
// The returned function may be called any number of times.
func (m *AlertManager) AddListener(listener Listener) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextListenerID
	m.nextListenerID++
	m.listeners[id] = listener
	count := len(m.listeners)
	m.mu.Unlock()

	telemetry.ActiveListeners.Set(float64(count))

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			count := len(m.listeners)
			m.mu.Unlock()
			telemetry.ActiveListeners.Set(float64(count))
		})
	}
}

// notifyListeners delivers a snapshot of the current list to every listener.
// Only one goroutine delivers at a time and it keeps going while changes
// arrive, so no listener sees an older list after a newer one. A call made
// during a delivery, including one from a listener, marks the list dirty and
// returns.
func (m *AlertManager) notifyListeners() {
	m.mu.Lock()
	m.hubDirty = true
	if m.hubDelivering {
		m.mu.Unlock()
		return
	}
	m.hubDelivering = true

	for m.hubDirty {
		m.hubDirty = false
		if len(m.listeners) == 0 {
			break
		}
		snapshot := make([]model.AlertNotification, 0, len(m.notifications))
		for _, n := range m.notifications {
			snapshot = append(snapshot, n.Clone())
		}
		listeners := make([]Listener, 0, len(m.listeners))
		for _, l := range m.listeners {
			listeners = append(listeners, l)
		}
		m.mu.Unlock()

		for _, l := range listeners {
			m.deliver(l, copyNotifications(snapshot))
		}

		m.mu.Lock()
	}

	m.hubDelivering = false
	m.mu.Unlock()
}

func (m *AlertManager) deliver(l Listener, notifications []model.AlertNotification) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Notification listener panicked", zap.Any("panic", r))
		}
	}()
	l(notifications)
}

func copyNotifications(in []model.AlertNotification) []model.AlertNotification {
	out := make([]model.AlertNotification, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
