package model

import (
	"slices"
	"time"
)

// AlertNotification is one occurrence of a rule's conditions becoming true
type AlertNotification struct {
	ID          string         `json:"id"`
	RuleID      string         `json:"rule_id"`
	RuleName    string         `json:"rule_name"`
	Type        AlertType      `json:"type"`
	Severity    AlertSeverity  `json:"severity"`
	Title       string         `json:"title"`
	Message     string         `json:"message"`
	Data        map[string]any `json:"data,omitempty"`
	IsRead      bool           `json:"is_read"`
	IsResolved  bool           `json:"is_resolved"`
	TriggeredAt time.Time      `json:"triggered_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
	ResolvedBy  string         `json:"resolved_by,omitempty"`
}

// Clone returns a copy that shares nothing mutable with n
func (n *AlertNotification) Clone() AlertNotification {
	c := *n
	if n.Data != nil {
		c.Data = make(map[string]any, len(n.Data))
		for k, v := range n.Data {
			c.Data[k] = v
		}
	}
	if n.ResolvedAt != nil {
		t := *n.ResolvedAt
		c.ResolvedAt = &t
	}
	return c
}

// NotificationFilters narrows a notification listing. Every supplied field
// must match; nil or empty fields are ignored.
type NotificationFilters struct {
	Severity   []AlertSeverity `json:"severity,omitempty"`
	Type       []AlertType     `json:"type,omitempty"`
	IsRead     *bool           `json:"is_read,omitempty"`
	IsResolved *bool           `json:"is_resolved,omitempty"`
	From       *time.Time      `json:"from,omitempty"`
	To         *time.Time      `json:"to,omitempty"`
}

// Matches reports whether n satisfies all filters
func (f NotificationFilters) Matches(n *AlertNotification) bool {
	if len(f.Severity) > 0 && !slices.Contains(f.Severity, n.Severity) {
		return false
	}
	if len(f.Type) > 0 && !slices.Contains(f.Type, n.Type) {
		return false
	}
	if f.IsRead != nil && n.IsRead != *f.IsRead {
		return false
	}
	if f.IsResolved != nil && n.IsResolved != *f.IsResolved {
		return false
	}
	if f.From != nil && n.TriggeredAt.Before(*f.From) {
		return false
	}
	if f.To != nil && n.TriggeredAt.After(*f.To) {
		return false
	}
	return true
}

// NotificationStats aggregates the current notification list
type NotificationStats struct {
	Total      int                   `json:"total"`
	Unread     int                   `json:"unread"`
	Unresolved int                   `json:"unresolved"`
	BySeverity map[AlertSeverity]int `json:"by_severity"`
	ByType     map[AlertType]int     `json:"by_type"`
}

// NotificationEventKind names a notification lifecycle transition
type NotificationEventKind string

const (
	NotificationEventTriggered NotificationEventKind = "triggered"
	NotificationEventRead      NotificationEventKind = "read"
	NotificationEventResolved  NotificationEventKind = "resolved"
)

// NotificationEvent is emitted to external observers on every transition
type NotificationEvent struct {
	Kind         NotificationEventKind `json:"kind"`
	Notification AlertNotification     `json:"notification"`
	OccurredAt   time.Time             `json:"occurred_at"`
}
