package monitor

import "errors"

var (
	// ErrRuleNotFound is returned when a rule is not found
	ErrRuleNotFound = errors.New("rule not found")

	// ErrNotificationNotFound is returned when a notification is not found
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrInvalidRule is returned when a rule fails validation
	ErrInvalidRule = errors.New("invalid rule")

	// ErrNoMetricSource is returned when an AlertManager is created without
	// a metric source
	ErrNoMetricSource = errors.New("metric source is required")
)
