package handler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
	"github.com/t77yq/careops-alerts/internal/telemetry"
)

// ActionHandler delivers a notification to an external system
type ActionHandler interface {
	Execute(ctx context.Context, target string, notification *model.AlertNotification) error
}

// Dispatcher executes rule actions when a rule fires. Delivery is best
// effort: failures are logged, never returned.
type Dispatcher struct {
	logger      *zap.Logger
	timeout     time.Duration
	maxAttempts int
	backoff     RetryStrategy
	email       ActionHandler
	sms         ActionHandler
	webhook     ActionHandler
}

// DispatcherConfig wires the external transports. Nil handlers make the
// corresponding action a logged no-op.
type DispatcherConfig struct {
	Email   ActionHandler
	SMS     ActionHandler
	Webhook ActionHandler

	// Timeout bounds each delivery attempt
	Timeout time.Duration

	// MaxAttempts per action, including the first. Zero means one attempt.
	MaxAttempts int
	Backoff     RetryStrategy
}

// NewDispatcher creates a new action dispatcher
func NewDispatcher(logger *zap.Logger, config DispatcherConfig) *Dispatcher {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	if config.Backoff == nil {
		config.Backoff = DefaultBackoff
	}
	return &Dispatcher{
		logger:      logger.Named("dispatcher"),
		timeout:     config.Timeout,
		maxAttempts: config.MaxAttempts,
		backoff:     config.Backoff,
		email:       config.Email,
		sms:         config.SMS,
		webhook:     config.Webhook,
	}
}

// Dispatch runs every action of a fired rule in order
func (d *Dispatcher) Dispatch(ctx context.Context, actions []model.Action, notification *model.AlertNotification) {
	for _, action := range actions {
		if err := d.Execute(ctx, action, notification); err != nil {
			telemetry.ActionsExecuted.WithLabelValues(string(action.Type), "failed").Inc()
			d.logger.Error("Failed to execute action",
				zap.String("action_type", string(action.Type)),
				zap.String("target", action.Target),
				zap.String("notification_id", notification.ID),
				zap.String("rule_id", notification.RuleID),
				zap.Error(err))
			continue
		}
		telemetry.ActionsExecuted.WithLabelValues(string(action.Type), "success").Inc()
	}
}

// Execute runs a single action
func (d *Dispatcher) Execute(ctx context.Context, action model.Action, notification *model.AlertNotification) error {
	var h ActionHandler
	switch action.Type {
	case model.ActionTypeNotification:
		// The notification is already in the store.
		return nil
	case model.ActionTypeEmail:
		h = d.email
	case model.ActionTypeSMS:
		h = d.sms
	case model.ActionTypeWebhook:
		h = d.webhook
	default:
		return fmt.Errorf("unsupported action type: %s", action.Type)
	}

	if h == nil {
		d.logger.Warn("No transport configured for action",
			zap.String("action_type", string(action.Type)),
			zap.String("target", action.Target))
		return nil
	}

	return withRetry(ctx, d.maxAttempts, d.backoff, func(attempt int) error {
		execCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		d.logger.Info("Executing action",
			zap.String("action_type", string(action.Type)),
			zap.String("target", action.Target),
			zap.String("notification_id", notification.ID),
			zap.Int("attempt", attempt+1))

		return h.Execute(execCtx, action.Target, notification)
	})
}
