package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/careops-alerts/internal/model"
	"github.com/t77yq/careops-alerts/internal/testutil"
)

func testEvent(kind model.NotificationEventKind) model.NotificationEvent {
	return model.NotificationEvent{
		Kind: kind,
		Notification: model.AlertNotification{
			ID:          "n-1",
			RuleID:      "r-1",
			RuleName:    "Critical Bed Occupancy",
			Type:        model.AlertTypeBedOccupancy,
			Severity:    model.AlertSeverityCritical,
			Title:       "Critical Bed Occupancy",
			TriggeredAt: time.Now().UTC(),
		},
		OccurredAt: time.Now().UTC(),
	}
}

func TestNotificationPublisher_PublishesToKindSubject(t *testing.T) {
	_, _, js := testutil.StartJetStream(t)
	ctx := context.Background()

	publisher, err := NewNotificationPublisher(ctx, js, zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NoError(t, testutil.WaitForStream(t, js, alertStreamName, 5*time.Second))

	// a second publisher reuses the stream
	_, err = NewNotificationPublisher(ctx, js, zaptest.NewLogger(t))
	require.NoError(t, err)

	require.NoError(t, publisher.PublishEvent(ctx, testEvent(model.NotificationEventTriggered)))
	require.NoError(t, publisher.PublishEvent(ctx, testEvent(model.NotificationEventResolved)))

	msg, err := js.GetLastMsg(alertStreamName, "alert.resolved")
	require.NoError(t, err)

	var event model.NotificationEvent
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	assert.Equal(t, model.NotificationEventResolved, event.Kind)
	assert.Equal(t, "n-1", event.Notification.ID)
	assert.Equal(t, model.AlertSeverityCritical, event.Notification.Severity)

	assert.Equal(t, uint64(2), testutil.StreamMessages(t, js, alertStreamName))
}

func TestNotificationPublisher_DropsDuplicateTransitions(t *testing.T) {
	_, _, js := testutil.StartJetStream(t)
	ctx := context.Background()

	publisher, err := NewNotificationPublisher(ctx, js, zaptest.NewLogger(t))
	require.NoError(t, err)

	event := testEvent(model.NotificationEventRead)
	require.NoError(t, publisher.PublishEvent(ctx, event))
	require.NoError(t, publisher.PublishEvent(ctx, event))

	assert.Equal(t, uint64(1), testutil.StreamMessages(t, js, alertStreamName))
}

func TestNotificationPublisher_SubscribeEvents(t *testing.T) {
	_, nc, js := testutil.StartJetStream(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	publisher, err := NewNotificationPublisher(ctx, js, zaptest.NewLogger(t))
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []model.NotificationEvent
	)
	require.NoError(t, publisher.SubscribeEvents(ctx, func(event model.NotificationEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}))

	// malformed payloads are skipped
	_, err = js.Publish("alert.triggered", []byte("not json"))
	require.NoError(t, err)
	require.NoError(t, publisher.PublishEvent(ctx, testEvent(model.NotificationEventTriggered)))
	require.NoError(t, nc.Flush())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 1
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	assert.Equal(t, model.NotificationEventTriggered, events[0].Kind)
	mu.Unlock()
}

func TestSubjectFor(t *testing.T) {
	assert.Equal(t, "alert.triggered", SubjectFor(model.NotificationEventTriggered))
	assert.Equal(t, "alert.read", SubjectFor(model.NotificationEventRead))
	assert.Equal(t, "alert.resolved", SubjectFor(model.NotificationEventResolved))
}
