package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/t77yq/careops-alerts/internal/model"
)

type recordingHandler struct {
	mu      sync.Mutex
	targets []string
	err     error
}

func (h *recordingHandler) Execute(ctx context.Context, target string, n *model.AlertNotification) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.targets = append(h.targets, target)
	return h.err
}

func testNotification() *model.AlertNotification {
	return &model.AlertNotification{
		ID:          "n-1",
		RuleID:      "r-1",
		RuleName:    "Critical Bed Occupancy",
		Type:        model.AlertTypeBedOccupancy,
		Severity:    model.AlertSeverityCritical,
		Title:       "Critical Bed Occupancy",
		Message:     "bed_occupancy_rate is 95 (gt 90)",
		TriggeredAt: time.Now(),
	}
}

func TestDispatcher_RoutesByActionType(t *testing.T) {
	email := &recordingHandler{}
	sms := &recordingHandler{}
	webhook := &recordingHandler{}

	d := NewDispatcher(zaptest.NewLogger(t), DispatcherConfig{
		Email:   email,
		SMS:     sms,
		Webhook: webhook,
	})

	d.Dispatch(context.Background(), []model.Action{
		{Type: model.ActionTypeNotification},
		{Type: model.ActionTypeEmail, Target: "ops@example.com"},
		{Type: model.ActionTypeSMS, Target: "+15550100"},
		{Type: model.ActionTypeWebhook, Target: "http://hooks.local/alerts"},
	}, testNotification())

	assert.Equal(t, []string{"ops@example.com"}, email.targets)
	assert.Equal(t, []string{"+15550100"}, sms.targets)
	assert.Equal(t, []string{"http://hooks.local/alerts"}, webhook.targets)
}

func TestDispatcher_FailuresDoNotStopOtherActions(t *testing.T) {
	email := &recordingHandler{err: errors.New("smtp down")}
	webhook := &recordingHandler{}

	d := NewDispatcher(zaptest.NewLogger(t), DispatcherConfig{Email: email, Webhook: webhook})

	d.Dispatch(context.Background(), []model.Action{
		{Type: model.ActionTypeEmail, Target: "ops@example.com"},
		{Type: "pager"},
		{Type: model.ActionTypeWebhook, Target: "http://hooks.local/alerts"},
	}, testNotification())

	assert.Len(t, email.targets, 1)
	assert.Len(t, webhook.targets, 1)
}

func TestDispatcher_Execute(t *testing.T) {
	d := NewDispatcher(zaptest.NewLogger(t), DispatcherConfig{})

	require.NoError(t, d.Execute(context.Background(), model.Action{Type: model.ActionTypeNotification}, testNotification()))
	// no transport configured
	require.NoError(t, d.Execute(context.Background(), model.Action{Type: model.ActionTypeSMS, Target: "+1"}, testNotification()))
	require.Error(t, d.Execute(context.Background(), model.Action{Type: "carrier_pigeon"}, testNotification()))
}

func TestWebhookHandler_Execute(t *testing.T) {
	received := make(chan WebhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "token", r.Header.Get("X-Api-Key"))

		var payload WebhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		received <- payload
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	h := NewWebhookHandler(zaptest.NewLogger(t), time.Second, map[string]string{"X-Api-Key": "token"})
	err := h.Execute(context.Background(), server.URL, testNotification())
	require.NoError(t, err)

	payload := <-received
	assert.Equal(t, "alert.triggered", payload.Event)
	assert.Equal(t, "n-1", payload.Notification.ID)
	assert.Equal(t, model.AlertSeverityCritical, payload.Notification.Severity)
}

func TestWebhookHandler_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	h := NewWebhookHandler(zaptest.NewLogger(t), time.Second, nil)
	err := h.Execute(context.Background(), server.URL, testNotification())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestEmailHandler_Execute(t *testing.T) {
	h := NewEmailHandler(zaptest.NewLogger(t), EmailConfig{
		Host: "smtp.example.com",
		Port: 587,
		From: "alerts@example.com",
	})

	var gotAddr string
	var gotTo []string
	var gotMsg string
	h.send = func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotTo = to
		gotMsg = string(msg)
		return nil
	}

	err := h.Execute(context.Background(), "ops@example.com, nurse-lead@example.com", testNotification())
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, []string{"ops@example.com", "nurse-lead@example.com"}, gotTo)
	assert.True(t, strings.Contains(gotMsg, "Subject: [CRITICAL] Critical Bed Occupancy"))

	require.Error(t, h.Execute(context.Background(), " , ", testNotification()))
}

// silentSMTPServer accepts connections and never sends a greeting
func silentSMTPServer(t *testing.T) (host string, port int) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var mu sync.Mutex
	var conns []net.Conn
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			conns = append(conns, conn)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		defer mu.Unlock()
		for _, c := range conns {
			c.Close()
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestEmailHandler_SilentServerIsBoundedByTimeout(t *testing.T) {
	host, port := silentSMTPServer(t)
	email := NewEmailHandler(zaptest.NewLogger(t), EmailConfig{Host: host, Port: port, From: "alerts@example.com"})

	d := NewDispatcher(zaptest.NewLogger(t), DispatcherConfig{
		Email:       email,
		Timeout:     200 * time.Millisecond,
		MaxAttempts: 1,
	})

	done := make(chan error, 1)
	go func() {
		done <- d.Execute(context.Background(), model.Action{Type: model.ActionTypeEmail, Target: "ops@example.com"}, testNotification())
	}()

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("email delivery ignored the action timeout")
	}
}

func TestEmailHandler_CancelledBeforeSend(t *testing.T) {
	host, port := silentSMTPServer(t)
	email := NewEmailHandler(zaptest.NewLogger(t), EmailConfig{Host: host, Port: port, From: "alerts@example.com"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, email.Execute(ctx, "ops@example.com", testNotification()), context.Canceled)
}
