package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

const (
	alertStreamName    = "ALERTS"
	alertSubjectPrefix = "alert."
	alertStreamMaxAge  = 7 * 24 * time.Hour
	alertStreamMaxMsgs = 100000
)

// SubjectFor returns the subject a lifecycle event is published on
func SubjectFor(kind model.NotificationEventKind) string {
	return alertSubjectPrefix + string(kind)
}

// NotificationPublisher bridges notification lifecycle events onto JetStream
type NotificationPublisher struct {
	js     nats.JetStreamContext
	logger *zap.Logger
}

// NewNotificationPublisher creates the publisher and makes sure the ALERTS
// stream exists
func NewNotificationPublisher(ctx context.Context, js nats.JetStreamContext, logger *zap.Logger) (*NotificationPublisher, error) {
	p := &NotificationPublisher{
		js:     js,
		logger: logger.Named("publisher"),
	}

	if err := p.setupStream(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup streams: %w", err)
	}

	return p, nil
}

func (p *NotificationPublisher) setupStream(ctx context.Context) error {
	_, err := p.js.AddStream(&nats.StreamConfig{
		Name:     alertStreamName,
		Subjects: []string{alertSubjectPrefix + "*"},
		Storage:  nats.FileStorage,
		MaxAge:   alertStreamMaxAge,
		MaxMsgs:  alertStreamMaxMsgs,
	}, nats.Context(ctx))

	if err != nil {
		if errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			p.logger.Info("Stream already exists", zap.String("stream", alertStreamName))
			return nil
		}
		return err
	}

	p.logger.Info("Stream created successfully", zap.String("stream", alertStreamName))
	return nil
}

// PublishEvent publishes a lifecycle event to alert.<kind>
func (p *NotificationPublisher) PublishEvent(ctx context.Context, event model.NotificationEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	subject := SubjectFor(event.Kind)
	msg := nats.NewMsg(subject)
	msg.Data = data
	// redeliveries of the same transition are dropped by the stream
	msg.Header.Set(nats.MsgIdHdr, event.Notification.ID+"."+string(event.Kind))

	if _, err := p.js.PublishMsg(msg, nats.Context(ctx)); err != nil {
		p.logger.Error("Failed to publish event",
			zap.String("subject", subject),
			zap.String("notification_id", event.Notification.ID),
			zap.Error(err))
		return err
	}

	p.logger.Debug("Event published",
		zap.String("subject", subject),
		zap.String("notification_id", event.Notification.ID))
	return nil
}

// SubscribeEvents delivers every lifecycle event to handler until ctx is done
func (p *NotificationPublisher) SubscribeEvents(ctx context.Context, handler func(model.NotificationEvent)) error {
	sub, err := p.js.Subscribe(alertSubjectPrefix+"*", func(msg *nats.Msg) {
		var event model.NotificationEvent
		if err := json.Unmarshal(msg.Data, &event); err != nil {
			p.logger.Error("Failed to unmarshal event",
				zap.String("subject", msg.Subject),
				zap.Error(err))
			msg.Term()
			return
		}

		handler(event)
		msg.Ack()
	}, nats.DeliverNew(), nats.ManualAck())

	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		sub.Unsubscribe()
	}()

	return nil
}
