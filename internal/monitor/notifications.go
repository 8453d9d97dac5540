package monitor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
	"github.com/t77yq/careops-alerts/internal/telemetry"
)

// GetNotifications returns the notifications matching filters, most recent
// first
func (m *AlertManager) GetNotifications(filters model.NotificationFilters) []model.AlertNotification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]model.AlertNotification, 0, len(m.notifications))
	for _, n := range m.notifications {
		if filters.Matches(n) {
			result = append(result, n.Clone())
		}
	}
	return result
}

// GetNotification returns a notification by ID
func (m *AlertManager) GetNotification(id string) (*model.AlertNotification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.findLocked(id)
	if n == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	c := n.Clone()
	return &c, nil
}

// MarkAsRead flags a notification as read
func (m *AlertManager) MarkAsRead(id string) error {
	m.mu.Lock()
	n := m.findLocked(id)
	if n == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	if n.IsRead {
		m.mu.Unlock()
		return nil
	}
	n.IsRead = true
	m.enqueueEventLocked(model.NotificationEventRead, n)
	m.mu.Unlock()

	m.flushEvents(context.Background())
	m.notifyListeners()
	return nil
}

// MarkAllAsRead flags every unread notification as read and returns how many
// changed
func (m *AlertManager) MarkAllAsRead() int {
	m.mu.Lock()
	changed := 0
	for _, n := range m.notifications {
		if !n.IsRead {
			n.IsRead = true
			m.enqueueEventLocked(model.NotificationEventRead, n)
			changed++
		}
	}
	m.mu.Unlock()

	if changed == 0 {
		return 0
	}

	m.flushEvents(context.Background())
	m.notifyListeners()
	return changed
}

// MarkAsResolved closes a notification. Once resolved, the rule that produced
// it may fire again.
func (m *AlertManager) MarkAsResolved(id, resolvedBy string) error {
	m.mu.Lock()
	n := m.findLocked(id)
	if n == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotificationNotFound, id)
	}
	if n.IsResolved {
		m.mu.Unlock()
		return nil
	}
	resolvedAt := m.now()
	n.IsResolved = true
	n.ResolvedAt = &resolvedAt
	n.ResolvedBy = resolvedBy
	updated := n.Clone()
	unresolved := m.unresolvedLocked()
	m.enqueueEventLocked(model.NotificationEventResolved, n)
	m.mu.Unlock()

	telemetry.NotificationsResolved.Inc()
	telemetry.UnresolvedNotifications.Set(float64(unresolved))

	m.logger.Info("Alert resolved",
		zap.String("id", updated.ID),
		zap.String("rule_id", updated.RuleID),
		zap.String("resolved_by", resolvedBy))

	m.flushEvents(context.Background())
	m.notifyListeners()
	return nil
}

// GetStats aggregates the current notifications
func (m *AlertManager) GetStats() model.NotificationStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := model.NotificationStats{
		Total:      len(m.notifications),
		BySeverity: make(map[model.AlertSeverity]int),
		ByType:     make(map[model.AlertType]int),
	}
	for _, n := range m.notifications {
		if !n.IsRead {
			stats.Unread++
		}
		if !n.IsResolved {
			stats.Unresolved++
		}
		stats.BySeverity[n.Severity]++
		stats.ByType[n.Type]++
	}
	return stats
}

func (m *AlertManager) findLocked(id string) *model.AlertNotification {
	for _, n := range m.notifications {
		if n.ID == id {
			return n
		}
	}
	return nil
}
