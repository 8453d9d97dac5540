package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

// SMSConfig holds SMS provider settings
type SMSConfig struct {
	Provider string
	APIKey   string
	From     string
}

// SMSHandler records SMS deliveries. No provider integration exists yet, so
// messages are only logged.
type SMSHandler struct {
	logger *zap.Logger
	config SMSConfig
}

// NewSMSHandler creates a new SMS handler
func NewSMSHandler(logger *zap.Logger, config SMSConfig) *SMSHandler {
	return &SMSHandler{
		logger: logger.Named("sms"),
		config: config,
	}
}

// Execute logs the SMS that would be sent to target
func (h *SMSHandler) Execute(ctx context.Context, target string, notification *model.AlertNotification) error {
	if target == "" {
		return fmt.Errorf("sms action has no recipient")
	}

	h.logger.Info("SMS notification",
		zap.String("provider", h.config.Provider),
		zap.String("to", target),
		zap.String("severity", string(notification.Severity)),
		zap.String("title", notification.Title))
	return nil
}
