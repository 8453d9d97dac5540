package model

import "time"

// AlertSeverity represents the severity level of an alert
type AlertSeverity string

const (
	AlertSeverityCritical AlertSeverity = "critical"
	AlertSeverityHigh     AlertSeverity = "high"
	AlertSeverityMedium   AlertSeverity = "medium"
	AlertSeverityLow      AlertSeverity = "low"
)

// IsValid reports whether s is one of the known severities
func (s AlertSeverity) IsValid() bool {
	switch s {
	case AlertSeverityCritical, AlertSeverityHigh, AlertSeverityMedium, AlertSeverityLow:
		return true
	}
	return false
}

// AlertType is the domain tag of a rule
type AlertType string

const (
	AlertTypeBedOccupancy            AlertType = "bed_occupancy"
	AlertTypeBedAvailability         AlertType = "bed_availability"
	AlertTypeBillingOverdue          AlertType = "billing_overdue"
	AlertTypeAppointmentCancellation AlertType = "appointment_cancellation"
	AlertTypePatientWaitTime         AlertType = "patient_wait_time"
	AlertTypeEmergencyCapacity       AlertType = "emergency_capacity"
	AlertTypeSystemHealth            AlertType = "system_health"
)

// Operator is a comparison applied between a metric value and a threshold
type Operator string

const (
	OperatorGreaterThan    Operator = "gt"
	OperatorLessThan       Operator = "lt"
	OperatorGreaterOrEqual Operator = "gte"
	OperatorLessOrEqual    Operator = "lte"
	OperatorEqual          Operator = "eq"
	OperatorNotEqual       Operator = "ne"
)

// IsValid reports whether o is a known operator
func (o Operator) IsValid() bool {
	switch o {
	case OperatorGreaterThan, OperatorLessThan, OperatorGreaterOrEqual,
		OperatorLessOrEqual, OperatorEqual, OperatorNotEqual:
		return true
	}
	return false
}

// ActionType is the closed set of actions a rule can carry
type ActionType string

const (
	ActionTypeNotification ActionType = "notification"
	ActionTypeEmail        ActionType = "email"
	ActionTypeSMS          ActionType = "sms"
	ActionTypeWebhook      ActionType = "webhook"
)

// IsValid reports whether a is a known action type
func (a ActionType) IsValid() bool {
	switch a {
	case ActionTypeNotification, ActionTypeEmail, ActionTypeSMS, ActionTypeWebhook:
		return true
	}
	return false
}

// Condition compares the current value of one metric against a threshold
type Condition struct {
	ID       string   `json:"id"`
	MetricID string   `json:"metric_id"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value"`
}

// Action is executed when a rule fires. Target is a recipient, queue name
// or URL depending on Type.
type Action struct {
	ID     string     `json:"id"`
	Type   ActionType `json:"type"`
	Target string     `json:"target,omitempty"`
}

// AlertRule defines a set of AND-combined conditions and the actions to run
// when all of them hold
type AlertRule struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        AlertType     `json:"type"`
	Severity    AlertSeverity `json:"severity"`
	Conditions  []Condition   `json:"conditions"`
	Actions     []Action      `json:"actions"`
	IsActive    bool          `json:"is_active"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	CreatedBy   string        `json:"created_by"`
}

// Clone returns a deep copy of the rule
func (r *AlertRule) Clone() *AlertRule {
	c := *r
	c.Conditions = append([]Condition(nil), r.Conditions...)
	c.Actions = append([]Action(nil), r.Actions...)
	return &c
}

// CreateRuleRequest carries the caller supplied fields of a new rule
type CreateRuleRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Type        AlertType     `json:"type"`
	Severity    AlertSeverity `json:"severity"`
	Conditions  []Condition   `json:"conditions"`
	Actions     []Action      `json:"actions"`
	CreatedBy   string        `json:"created_by"`
}

// UpdateRuleRequest is merged over an existing rule. Nil fields are left
// untouched.
type UpdateRuleRequest struct {
	ID          string         `json:"id"`
	Name        *string        `json:"name,omitempty"`
	Description *string        `json:"description,omitempty"`
	Type        *AlertType     `json:"type,omitempty"`
	Severity    *AlertSeverity `json:"severity,omitempty"`
	Conditions  []Condition    `json:"conditions,omitempty"`
	Actions     []Action       `json:"actions,omitempty"`
	IsActive    *bool          `json:"is_active,omitempty"`
}
