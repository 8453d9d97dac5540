package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/t77yq/careops-alerts/internal/model"
)

// seedNotifications fires three rules with distinct severities and types
func seedNotifications(t *testing.T) *AlertManager {
	t.Helper()

	manager, _ := newTestManager(t, map[string]any{
		"bed_occupancy_rate":         95,
		"emergency_wait_time":        90,
		"emergency_diversion_active": true,
	})

	requests := []model.CreateRuleRequest{
		occupancyRule(),
		{
			Name:       "Long Emergency Wait",
			Type:       model.AlertTypePatientWaitTime,
			Severity:   model.AlertSeverityHigh,
			Conditions: []model.Condition{{MetricID: "emergency_wait_time", Operator: model.OperatorGreaterOrEqual, Value: 60}},
		},
		{
			Name:       "Emergency Diversion Active",
			Type:       model.AlertTypeEmergencyCapacity,
			Severity:   model.AlertSeverityCritical,
			Conditions: []model.Condition{{MetricID: "emergency_diversion_active", Operator: model.OperatorEqual, Value: true}},
		},
	}
	for _, req := range requests {
		_, err := manager.CreateRule(req)
		require.NoError(t, err)
	}
	require.Equal(t, 3, manager.CheckAlerts(context.Background()))
	return manager
}

func TestNotifications_MostRecentFirst(t *testing.T) {
	manager := seedNotifications(t)

	notifications := manager.GetNotifications(model.NotificationFilters{})
	require.Len(t, notifications, 3)
	for i := 1; i < len(notifications); i++ {
		assert.False(t, notifications[i].TriggeredAt.After(notifications[i-1].TriggeredAt))
	}
	// rules are evaluated in creation order, so the last one is on top
	assert.Equal(t, "Emergency Diversion Active", notifications[0].RuleName)
}

func TestNotifications_Filters(t *testing.T) {
	manager := seedNotifications(t)
	all := manager.GetNotifications(model.NotificationFilters{})

	critical := manager.GetNotifications(model.NotificationFilters{
		Severity: []model.AlertSeverity{model.AlertSeverityCritical},
	})
	assert.Len(t, critical, 2)

	criticalCapacity := manager.GetNotifications(model.NotificationFilters{
		Severity: []model.AlertSeverity{model.AlertSeverityCritical},
		Type:     []model.AlertType{model.AlertTypeEmergencyCapacity},
	})
	require.Len(t, criticalCapacity, 1)
	assert.Equal(t, "Emergency Diversion Active", criticalCapacity[0].RuleName)

	require.NoError(t, manager.MarkAsRead(all[0].ID))
	unread := false
	assert.Len(t, manager.GetNotifications(model.NotificationFilters{IsRead: &unread}), 2)

	future := time.Now().Add(time.Hour)
	assert.Empty(t, manager.GetNotifications(model.NotificationFilters{From: &future}))

	past := time.Now().Add(-time.Hour)
	assert.Len(t, manager.GetNotifications(model.NotificationFilters{From: &past, To: &future}), 3)

	// the range is inclusive
	at := all[1].TriggeredAt
	exact := manager.GetNotifications(model.NotificationFilters{From: &at, To: &at})
	assert.NotEmpty(t, exact)
	for _, n := range exact {
		assert.True(t, n.TriggeredAt.Equal(at))
	}
}

func TestNotifications_ReadAndResolve(t *testing.T) {
	manager := seedNotifications(t)
	all := manager.GetNotifications(model.NotificationFilters{})

	require.NoError(t, manager.MarkAsRead(all[0].ID))
	require.NoError(t, manager.MarkAsRead(all[0].ID))
	n, err := manager.GetNotification(all[0].ID)
	require.NoError(t, err)
	assert.True(t, n.IsRead)
	assert.False(t, n.IsResolved)

	assert.Equal(t, 2, manager.MarkAllAsRead())
	assert.Equal(t, 0, manager.MarkAllAsRead())

	require.NoError(t, manager.MarkAsResolved(all[1].ID, "charge-nurse"))
	first, err := manager.GetNotification(all[1].ID)
	require.NoError(t, err)
	require.NotNil(t, first.ResolvedAt)

	// resolving again keeps the original resolver
	require.NoError(t, manager.MarkAsResolved(all[1].ID, "someone-else"))
	again, err := manager.GetNotification(all[1].ID)
	require.NoError(t, err)
	assert.Equal(t, "charge-nurse", again.ResolvedBy)
	assert.Equal(t, first.ResolvedAt, again.ResolvedAt)

	require.ErrorIs(t, manager.MarkAsRead("missing"), ErrNotificationNotFound)
	require.ErrorIs(t, manager.MarkAsResolved("missing", "x"), ErrNotificationNotFound)
	_, err = manager.GetNotification("missing")
	require.ErrorIs(t, err, ErrNotificationNotFound)
}

func TestNotifications_Stats(t *testing.T) {
	manager := seedNotifications(t)
	all := manager.GetNotifications(model.NotificationFilters{})

	require.NoError(t, manager.MarkAsRead(all[0].ID))
	require.NoError(t, manager.MarkAsResolved(all[2].ID, "ops"))

	stats := manager.GetStats()
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, 2, stats.Unread)
	assert.Equal(t, 2, stats.Unresolved)
	assert.Equal(t, 2, stats.BySeverity[model.AlertSeverityCritical])
	assert.Equal(t, 1, stats.BySeverity[model.AlertSeverityHigh])
	assert.Equal(t, 1, stats.ByType[model.AlertTypePatientWaitTime])
}

func TestNotifications_ReturnedCopies(t *testing.T) {
	manager := seedNotifications(t)

	all := manager.GetNotifications(model.NotificationFilters{})
	all[0].IsRead = true
	all[0].Data["emergency_diversion_active"] = false

	fresh := manager.GetNotifications(model.NotificationFilters{})
	assert.False(t, fresh[0].IsRead)
	assert.Equal(t, true, fresh[0].Data["emergency_diversion_active"])
}

func TestListeners(t *testing.T) {
	manager, provider := newTestManager(t, map[string]any{"bed_occupancy_rate": 95})
	_, err := manager.CreateRule(occupancyRule())
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		received [][]model.AlertNotification
	)
	unsubscribe := manager.AddListener(func(notifications []model.AlertNotification) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, notifications)
	})
	panicking := manager.AddListener(func([]model.AlertNotification) {
		panic("listener bug")
	})
	defer panicking()

	require.Equal(t, 1, manager.CheckAlerts(context.Background()))

	mu.Lock()
	require.Len(t, received, 1)
	require.Len(t, received[0], 1)
	id := received[0][0].ID
	mu.Unlock()

	require.NoError(t, manager.MarkAsResolved(id, "ops"))

	mu.Lock()
	require.Len(t, received, 2)
	assert.True(t, received[1][0].IsResolved)
	mu.Unlock()

	unsubscribe()
	unsubscribe()

	provider.Set("bed_occupancy_rate", 97)
	require.Equal(t, 1, manager.CheckAlerts(context.Background()))

	mu.Lock()
	assert.Len(t, received, 2)
	mu.Unlock()
}

func TestListeners_UnsubscribeRemovesOnlyItself(t *testing.T) {
	manager, _ := newTestManager(t, map[string]any{"bed_occupancy_rate": 95})
	_, err := manager.CreateRule(occupancyRule())
	require.NoError(t, err)

	var first, second int
	unsubscribeFirst := manager.AddListener(func([]model.AlertNotification) { first++ })
	manager.AddListener(func([]model.AlertNotification) { second++ })

	unsubscribeFirst()
	unsubscribeFirst()

	manager.CheckAlerts(context.Background())
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestListeners_MayMarkNotificationsRead(t *testing.T) {
	manager, _ := newTestManager(t, map[string]any{"bed_occupancy_rate": 95})
	_, err := manager.CreateRule(occupancyRule())
	require.NoError(t, err)

	var (
		mu       sync.Mutex
		received [][]model.AlertNotification
	)
	manager.AddListener(func(notifications []model.AlertNotification) {
		mu.Lock()
		received = append(received, notifications)
		mu.Unlock()

		for _, n := range notifications {
			if !n.IsRead {
				assert.NoError(t, manager.MarkAsRead(n.ID))
			}
		}
	})

	done := make(chan int, 1)
	go func() { done <- manager.CheckAlerts(context.Background()) }()

	select {
	case created := <-done:
		assert.Equal(t, 1, created)
	case <-time.After(2 * time.Second):
		t.Fatal("listener calling back into the manager blocked the pass")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 2)
	assert.False(t, received[0][0].IsRead)
	assert.True(t, received[1][0].IsRead)
	assert.Equal(t, 0, manager.GetStats().Unread)
}
