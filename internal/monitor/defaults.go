package monitor

import "github.com/t77yq/careops-alerts/internal/model"

// defaultRuleAuthor marks rules seeded at startup
const defaultRuleAuthor = "system"

// DefaultRules returns the rule set seeded into a new AlertManager. Seeded
// rules are ordinary rules and may be edited or deleted.
func DefaultRules() []model.CreateRuleRequest {
	notify := []model.Action{{Type: model.ActionTypeNotification}}

	return []model.CreateRuleRequest{
		{
			Name:        "Critical Bed Occupancy",
			Description: "Bed occupancy is above 90%",
			Type:        model.AlertTypeBedOccupancy,
			Severity:    model.AlertSeverityCritical,
			Conditions: []model.Condition{
				{MetricID: "bed_occupancy_rate", Operator: model.OperatorGreaterThan, Value: 90.0},
			},
			Actions:   notify,
			CreatedBy: defaultRuleAuthor,
		},
		{
			Name:        "Low ICU Availability",
			Description: "Fewer than two ICU beds are free",
			Type:        model.AlertTypeBedAvailability,
			Severity:    model.AlertSeverityHigh,
			Conditions: []model.Condition{
				{MetricID: "icu_available_beds", Operator: model.OperatorLessThan, Value: 2.0},
			},
			Actions:   notify,
			CreatedBy: defaultRuleAuthor,
		},
		{
			Name:        "Overdue Billing",
			Description: "Overdue invoices exceed $100,000 across more than 50 invoices",
			Type:        model.AlertTypeBillingOverdue,
			Severity:    model.AlertSeverityMedium,
			Conditions: []model.Condition{
				{MetricID: "billing_overdue_amount", Operator: model.OperatorGreaterThan, Value: 100000.0},
				{MetricID: "billing_overdue_invoices", Operator: model.OperatorGreaterThan, Value: 50.0},
			},
			Actions:   notify,
			CreatedBy: defaultRuleAuthor,
		},
		{
			Name:        "High Appointment Cancellation Rate",
			Description: "More than 20% of today's appointments were cancelled",
			Type:        model.AlertTypeAppointmentCancellation,
			Severity:    model.AlertSeverityMedium,
			Conditions: []model.Condition{
				{MetricID: "appointment_cancellation_rate", Operator: model.OperatorGreaterThan, Value: 20.0},
			},
			Actions:   notify,
			CreatedBy: defaultRuleAuthor,
		},
		{
			Name:        "Long Emergency Wait",
			Description: "Average emergency wait time is an hour or more",
			Type:        model.AlertTypePatientWaitTime,
			Severity:    model.AlertSeverityHigh,
			Conditions: []model.Condition{
				{MetricID: "emergency_wait_time", Operator: model.OperatorGreaterOrEqual, Value: 60.0},
			},
			Actions:   notify,
			CreatedBy: defaultRuleAuthor,
		},
		{
			Name:        "Emergency Diversion Active",
			Description: "Ambulances are being diverted to other facilities",
			Type:        model.AlertTypeEmergencyCapacity,
			Severity:    model.AlertSeverityCritical,
			Conditions: []model.Condition{
				{MetricID: "emergency_diversion_active", Operator: model.OperatorEqual, Value: true},
			},
			Actions:   notify,
			CreatedBy: defaultRuleAuthor,
		},
	}
}
