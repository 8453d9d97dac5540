package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

// WebhookPayload is the JSON body posted to webhook targets
type WebhookPayload struct {
	Event        string                  `json:"event"`
	Notification model.AlertNotification `json:"notification"`
	SentAt       time.Time               `json:"sent_at"`
}

// WebhookHandler posts notifications to an HTTP endpoint
type WebhookHandler struct {
	logger     *zap.Logger
	httpClient *http.Client
	headers    map[string]string
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(logger *zap.Logger, timeout time.Duration, headers map[string]string) *WebhookHandler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookHandler{
		logger: logger.Named("webhook"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		headers: headers,
	}
}

// Execute posts the notification to the URL in target
func (h *WebhookHandler) Execute(ctx context.Context, target string, notification *model.AlertNotification) error {
	body, err := json.Marshal(WebhookPayload{
		Event:        "alert.triggered",
		Notification: *notification,
		SentAt:       time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}

	h.logger.Info("Posting webhook",
		zap.String("url", target),
		zap.String("notification_id", notification.ID))

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook failed with status: %d", resp.StatusCode)
	}
	return nil
}
