package monitor

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
)

// GetRule returns a copy of a rule by ID
func (m *AlertManager) GetRule(id string) (*model.AlertRule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rule, ok := m.rules[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule.Clone(), nil
}

// GetRules returns copies of all rules in creation order
func (m *AlertManager) GetRules() []*model.AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]*model.AlertRule, 0, len(m.ruleOrder))
	for _, id := range m.ruleOrder {
		rules = append(rules, m.rules[id].Clone())
	}
	return rules
}

// CreateRule adds a new active alert rule
func (m *AlertManager) CreateRule(req model.CreateRuleRequest) (*model.AlertRule, error) {
	now := m.now()
	rule := &model.AlertRule{
		ID:          uuid.New().String(),
		Name:        req.Name,
		Description: req.Description,
		Type:        req.Type,
		Severity:    req.Severity,
		Conditions:  withConditionIDs(req.Conditions, true),
		Actions:     withActionIDs(req.Actions, true),
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
		CreatedBy:   req.CreatedBy,
	}

	if err := m.validateRule(rule); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.rules[rule.ID] = rule
	m.ruleOrder = append(m.ruleOrder, rule.ID)
	m.mu.Unlock()

	m.logger.Info("Rule created",
		zap.String("rule_id", rule.ID),
		zap.String("name", rule.Name),
		zap.String("severity", string(rule.Severity)))

	return rule.Clone(), nil
}

// UpdateRule merges the supplied fields over an existing rule
func (m *AlertManager) UpdateRule(req model.UpdateRuleRequest) (*model.AlertRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.rules[req.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, req.ID)
	}

	rule := existing.Clone()
	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Type != nil {
		rule.Type = *req.Type
	}
	if req.Severity != nil {
		rule.Severity = *req.Severity
	}
	if req.Conditions != nil {
		rule.Conditions = withConditionIDs(req.Conditions, false)
	}
	if req.Actions != nil {
		rule.Actions = withActionIDs(req.Actions, false)
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}

	if err := m.validateRule(rule); err != nil {
		return nil, err
	}

	rule.UpdatedAt = m.now()
	if !rule.UpdatedAt.After(existing.UpdatedAt) {
		rule.UpdatedAt = existing.UpdatedAt.Add(1)
	}
	m.rules[rule.ID] = rule

	m.logger.Info("Rule updated",
		zap.String("rule_id", rule.ID),
		zap.Bool("is_active", rule.IsActive))

	return rule.Clone(), nil
}

// DeleteRule removes a rule. Notifications it produced are kept.
func (m *AlertManager) DeleteRule(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.rules[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	delete(m.rules, id)
	for i, ruleID := range m.ruleOrder {
		if ruleID == id {
			m.ruleOrder = append(m.ruleOrder[:i], m.ruleOrder[i+1:]...)
			break
		}
	}

	m.logger.Info("Rule deleted", zap.String("rule_id", id))
	return nil
}

func (m *AlertManager) validateRule(rule *model.AlertRule) error {
	if strings.TrimSpace(rule.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRule)
	}
	if !rule.Severity.IsValid() {
		return fmt.Errorf("%w: unknown severity %q", ErrInvalidRule, rule.Severity)
	}
	if len(rule.Conditions) == 0 {
		return fmt.Errorf("%w: at least one condition is required", ErrInvalidRule)
	}

	for i, cond := range rule.Conditions {
		if !cond.Operator.IsValid() {
			return fmt.Errorf("%w: condition %d: unknown operator %q", ErrInvalidRule, i, cond.Operator)
		}
		if !m.metrics.Has(cond.MetricID) {
			return fmt.Errorf("%w: condition %d: unknown metric %q", ErrInvalidRule, i, cond.MetricID)
		}
		if !isPrimitive(cond.Value) {
			return fmt.Errorf("%w: condition %d: unsupported threshold %v", ErrInvalidRule, i, cond.Value)
		}
		if _, numeric := toFloat(cond.Value); !numeric && isOrdering(cond.Operator) {
			return fmt.Errorf("%w: condition %d: operator %s needs a numeric threshold", ErrInvalidRule, i, cond.Operator)
		}
	}

	for i, action := range rule.Actions {
		if !action.Type.IsValid() {
			return fmt.Errorf("%w: action %d: unknown type %q", ErrInvalidRule, i, action.Type)
		}
		if action.Type != model.ActionTypeNotification && strings.TrimSpace(action.Target) == "" {
			return fmt.Errorf("%w: action %d: %s needs a target", ErrInvalidRule, i, action.Type)
		}
	}

	return nil
}

func isOrdering(op model.Operator) bool {
	switch op {
	case model.OperatorGreaterThan, model.OperatorLessThan,
		model.OperatorGreaterOrEqual, model.OperatorLessOrEqual:
		return true
	}
	return false
}

// withConditionIDs copies conditions and assigns ids. Unless fresh is set,
// ids supplied by the caller are kept.
func withConditionIDs(conds []model.Condition, fresh bool) []model.Condition {
	out := make([]model.Condition, len(conds))
	for i, c := range conds {
		if fresh || c.ID == "" {
			c.ID = uuid.New().String()
		}
		out[i] = c
	}
	return out
}

func withActionIDs(actions []model.Action, fresh bool) []model.Action {
	out := make([]model.Action, len(actions))
	for i, a := range actions {
		if fresh || a.ID == "" {
			a.ID = uuid.New().String()
		}
		out[i] = a
	}
	return out
}
