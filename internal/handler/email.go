package handler

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

// EmailConfig holds SMTP settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailHandler sends notifications by email
type EmailHandler struct {
	logger *zap.Logger
	config EmailConfig
	send   func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailHandler creates a new email handler
func NewEmailHandler(logger *zap.Logger, config EmailConfig) *EmailHandler {
	h := &EmailHandler{
		logger: logger.Named("email"),
		config: config,
	}
	h.send = h.sendMail
	return h
}

// Execute sends the notification to the comma separated recipients in target
func (h *EmailHandler) Execute(ctx context.Context, target string, notification *model.AlertNotification) error {
	recipients := splitRecipients(target)
	if len(recipients) == 0 {
		return fmt.Errorf("email action has no recipients")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if h.config.Username != "" {
		auth = smtp.PlainAuth("",
			h.config.Username,
			h.config.Password,
			h.config.Host)
	}

	msg := formatEmail(h.config.From, recipients, notification)
	addr := fmt.Sprintf("%s:%d", h.config.Host, h.config.Port)
	if err := h.send(ctx, addr, auth, h.config.From, recipients, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	h.logger.Info("Email sent",
		zap.String("notification_id", notification.ID),
		zap.Int("recipients", len(recipients)))
	return nil
}

// sendMail is smtp.SendMail bounded by ctx: the dial honours cancellation
// and the whole SMTP conversation shares the ctx deadline.
func (h *EmailHandler) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return err
		}
	}
	// unblock reads and writes on cancellation without a deadline
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	c, err := smtp.NewClient(conn, h.config.Host)
	if err != nil {
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: h.config.Host}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}

func formatEmail(from string, to []string, n *model.AlertNotification) []byte {
	return []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: [%s] %s\r\n"+
		"Content-Type: text/plain; charset=UTF-8\r\n"+
		"\r\n"+
		"%s\r\n"+
		"\r\n"+
		"Rule: %s\r\n"+
		"Triggered at: %s\r\n",
		from,
		strings.Join(to, ", "),
		strings.ToUpper(string(n.Severity)),
		n.Title,
		n.Message,
		n.RuleName,
		n.TriggeredAt.Format("2006-01-02 15:04:05 MST")))
}

func splitRecipients(target string) []string {
	var recipients []string
	for _, r := range strings.Split(target, ",") {
		if r = strings.TrimSpace(r); r != "" {
			recipients = append(recipients, r)
		}
	}
	return recipients
}
