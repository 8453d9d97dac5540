package monitor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
	"github.com/t77yq/careops-alerts/internal/scheduler"
	"github.com/t77yq/careops-alerts/internal/telemetry"
)

const (
	// DefaultCheckInterval is the period between evaluation passes
	DefaultCheckInterval = 5 * time.Minute

	// DefaultInitialDelay is the wait before the first pass after a start
	DefaultInitialDelay = time.Second
)

// MetricSource supplies metric values to the evaluator
type MetricSource interface {
	Has(id string) bool
	CurrentValue(ctx context.Context, id string) (any, error)
	Descriptors() []model.MetricDescriptor
}

// ActionDispatcher executes the actions of a fired rule
type ActionDispatcher interface {
	Dispatch(ctx context.Context, actions []model.Action, notification *model.AlertNotification)
}

// EventPublisher forwards notification lifecycle events to external systems
type EventPublisher interface {
	PublishEvent(ctx context.Context, event model.NotificationEvent) error
}

// HistoryRecorder archives notifications
type HistoryRecorder interface {
	Store(ctx context.Context, notification *model.AlertNotification) error
	Update(ctx context.Context, notification *model.AlertNotification) error
}

// Option configures an AlertManager
type Option func(*AlertManager)

// WithDispatcher sets the action dispatcher
func WithDispatcher(d ActionDispatcher) Option {
	return func(m *AlertManager) { m.dispatcher = d }
}

// WithPublisher sets the event publisher
func WithPublisher(p EventPublisher) Option {
	return func(m *AlertManager) { m.publisher = p }
}

// WithHistory sets the notification archive
func WithHistory(h HistoryRecorder) Option {
	return func(m *AlertManager) { m.history = h }
}

// WithSchedule overrides the check interval and initial delay
func WithSchedule(interval, initialDelay time.Duration) Option {
	return func(m *AlertManager) {
		m.interval = interval
		m.initialDelay = initialDelay
	}
}

// WithoutDefaultRules starts the manager with an empty rule store
func WithoutDefaultRules() Option {
	return func(m *AlertManager) { m.seedDefaults = false }
}

// AlertManager evaluates alert rules against metrics and owns the resulting
// notifications. A single mutex guards rules, notifications and listeners.
type AlertManager struct {
	logger       *zap.Logger
	metrics      MetricSource
	dispatcher   ActionDispatcher
	publisher    EventPublisher
	history      HistoryRecorder
	scheduler    *scheduler.MonitorScheduler
	interval     time.Duration
	initialDelay time.Duration
	seedDefaults bool
	now          func() time.Time

	mu             sync.RWMutex
	rules          map[string]*model.AlertRule
	ruleOrder      []string
	notifications  []*model.AlertNotification // most recent first
	listeners      map[uint64]Listener
	nextListenerID uint64

	// Lifecycle events waiting to be archived and published, in the order
	// the changes were applied. Guarded by mu.
	pending  []pendingEvent
	flushing bool

	// A single goroutine delivers to listeners at a time. Guarded by mu.
	hubDirty      bool
	hubDelivering bool

	checkMu sync.Mutex
	actions sync.WaitGroup
}

type pendingEvent struct {
	kind         model.NotificationEventKind
	notification model.AlertNotification
}

// NewAlertManager creates a new alert manager. Monitoring does not start
// until StartMonitoring is called.
func NewAlertManager(logger *zap.Logger, metrics MetricSource, opts ...Option) (*AlertManager, error) {
	if metrics == nil {
		return nil, ErrNoMetricSource
	}

	m := &AlertManager{
		logger:       logger.Named("alert-manager"),
		metrics:      metrics,
		interval:     DefaultCheckInterval,
		initialDelay: DefaultInitialDelay,
		seedDefaults: true,
		now:          time.Now,
		rules:        make(map[string]*model.AlertRule),
		listeners:    make(map[uint64]Listener),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.scheduler = scheduler.NewMonitorScheduler(m.interval, m.initialDelay, func(ctx context.Context) {
		m.CheckAlerts(ctx)
	}, m.logger)

	if m.seedDefaults {
		for _, req := range DefaultRules() {
			if _, err := m.CreateRule(req); err != nil {
				m.logger.Warn("Skipping default rule",
					zap.String("name", req.Name),
					zap.Error(err))
			}
		}
	}

	return m, nil
}

// StartMonitoring starts the periodic evaluation. Calling it again restarts
// the schedule.
func (m *AlertManager) StartMonitoring(ctx context.Context) error {
	if err := m.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}
	m.logger.Info("Alert monitoring started",
		zap.Duration("interval", m.scheduler.Interval()))
	return nil
}

// StopMonitoring stops the periodic evaluation. It does not wait for an
// in-flight pass.
func (m *AlertManager) StopMonitoring() {
	m.scheduler.Stop()
}

// WaitForActions blocks until every dispatched action set has finished or
// ctx is done. It reports whether all actions finished.
func (m *AlertManager) WaitForActions(ctx context.Context) bool {
	done := make(chan struct{})
	go func() {
		m.actions.Wait()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

// IsMonitoring reports whether periodic evaluation is armed
func (m *AlertManager) IsMonitoring() bool {
	return m.scheduler.Running()
}

// GetMetrics returns the descriptors of all known metrics
func (m *AlertManager) GetMetrics() []model.MetricDescriptor {
	return m.metrics.Descriptors()
}

// CheckAlerts runs one evaluation pass over all active rules and returns the
// number of notifications created. A pass requested while another is running
// is skipped.
func (m *AlertManager) CheckAlerts(ctx context.Context) int {
	if !m.checkMu.TryLock() {
		telemetry.MonitorTicksTotal.WithLabelValues("skipped").Inc()
		m.logger.Debug("Evaluation pass already running, skipping")
		return 0
	}
	defer m.checkMu.Unlock()

	start := time.Now()
	rules := m.activeRules()
	created := 0

	for _, rule := range rules {
		if ctx.Err() != nil {
			m.logger.Warn("Evaluation pass cancelled", zap.Error(ctx.Err()))
			break
		}

		notification, err := m.evaluateRule(ctx, rule)
		if err != nil {
			telemetry.RuleEvaluationErrors.WithLabelValues(rule.ID).Inc()
			m.logger.Error("Failed to evaluate rule",
				zap.String("rule_id", rule.ID),
				zap.String("rule_name", rule.Name),
				zap.Error(err))
			continue
		}
		if notification != nil {
			created++
		}
	}

	telemetry.MonitorTicksTotal.WithLabelValues("completed").Inc()
	telemetry.MonitorTickDuration.Observe(time.Since(start).Seconds())
	m.logger.Debug("Evaluation pass completed",
		zap.Int("rules", len(rules)),
		zap.Int("triggered", created),
		zap.Duration("duration", time.Since(start)))

	return created
}

// activeRules snapshots the active rules in creation order
func (m *AlertManager) activeRules() []*model.AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rules := make([]*model.AlertRule, 0, len(m.ruleOrder))
	for _, id := range m.ruleOrder {
		if rule := m.rules[id]; rule.IsActive {
			rules = append(rules, rule.Clone())
		}
	}
	return rules
}

func (m *AlertManager) evaluateRule(ctx context.Context, rule *model.AlertRule) (n *model.AlertNotification, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while evaluating rule: %v", r)
		}
	}()

	values, ok := m.checkConditions(ctx, rule)
	if !ok {
		return nil, nil
	}
	return m.trigger(ctx, rule, values), nil
}

// checkConditions evaluates the AND of all conditions, stopping at the first
// false one. A metric that cannot be fetched makes its condition false.
func (m *AlertManager) checkConditions(ctx context.Context, rule *model.AlertRule) (map[string]any, bool) {
	if len(rule.Conditions) == 0 {
		return nil, false
	}

	values := make(map[string]any, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		value, err := m.metrics.CurrentValue(ctx, cond.MetricID)
		if err != nil {
			m.logger.Warn("Condition treated as false, metric unavailable",
				zap.String("rule_id", rule.ID),
				zap.String("metric_id", cond.MetricID),
				zap.Error(err))
			return nil, false
		}
		if !Evaluate(value, cond) {
			return nil, false
		}
		values[cond.MetricID] = value
	}
	return values, true
}

// trigger stores a new notification for rule unless one is still open
func (m *AlertManager) trigger(ctx context.Context, rule *model.AlertRule, values map[string]any) *model.AlertNotification {
	m.mu.Lock()

	current, ok := m.rules[rule.ID]
	switch {
	case !ok || !current.IsActive:
		// deleted or deactivated while its metrics were fetched
		m.mu.Unlock()
		return nil
	case !current.UpdatedAt.Equal(rule.UpdatedAt):
		// edited mid-pass; the next pass evaluates the new version
		m.mu.Unlock()
		return nil
	case m.hasOpenNotificationLocked(rule.ID):
		m.mu.Unlock()
		return nil
	}

	notification := &model.AlertNotification{
		ID:          uuid.New().String(),
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Type:        rule.Type,
		Severity:    rule.Severity,
		Title:       rule.Name,
		Message:     buildMessage(rule, values),
		Data:        values,
		TriggeredAt: m.now(),
	}
	m.notifications = append([]*model.AlertNotification{notification}, m.notifications...)
	unresolved := m.unresolvedLocked()
	created := notification.Clone()
	m.enqueueEventLocked(model.NotificationEventTriggered, notification)
	m.mu.Unlock()

	telemetry.NotificationsTriggered.WithLabelValues(string(created.Severity), string(created.Type)).Inc()
	telemetry.UnresolvedNotifications.Set(float64(unresolved))

	m.logger.Info("Alert triggered",
		zap.String("id", created.ID),
		zap.String("rule_id", created.RuleID),
		zap.String("type", string(created.Type)),
		zap.String("severity", string(created.Severity)))

	m.flushEvents(context.WithoutCancel(ctx))
	m.notifyListeners()
	m.dispatchActions(context.WithoutCancel(ctx), rule.Actions, created.Clone())

	return &created
}

// dispatchActions runs the actions in the background so a slow transport
// never holds up the evaluation pass
func (m *AlertManager) dispatchActions(ctx context.Context, actions []model.Action, n model.AlertNotification) {
	if m.dispatcher == nil || len(actions) == 0 {
		return
	}

	m.actions.Add(1)
	go func() {
		defer m.actions.Done()
		defer func() {
			if r := recover(); r != nil {
				m.logger.Error("Action dispatch panicked",
					zap.String("notification_id", n.ID),
					zap.Any("panic", r))
			}
		}()
		m.dispatcher.Dispatch(ctx, actions, &n)
	}()
}

func (m *AlertManager) hasOpenNotificationLocked(ruleID string) bool {
	for _, n := range m.notifications {
		if n.RuleID == ruleID && !n.IsResolved {
			return true
		}
	}
	return false
}

func (m *AlertManager) unresolvedLocked() int {
	count := 0
	for _, n := range m.notifications {
		if !n.IsResolved {
			count++
		}
	}
	return count
}

func (m *AlertManager) enqueueEventLocked(kind model.NotificationEventKind, n *model.AlertNotification) {
	if m.history == nil && m.publisher == nil {
		return
	}
	m.pending = append(m.pending, pendingEvent{kind: kind, notification: n.Clone()})
}

// flushEvents records queued events in the order they were queued. When
// another goroutine is already flushing, it picks up the new events and
// this call returns at once.
func (m *AlertManager) flushEvents(ctx context.Context) {
	m.mu.Lock()
	if m.flushing {
		m.mu.Unlock()
		return
	}
	m.flushing = true

	for len(m.pending) > 0 {
		batch := m.pending
		m.pending = nil
		m.mu.Unlock()

		for i := range batch {
			m.recordEvent(ctx, batch[i].kind, &batch[i].notification)
		}

		m.mu.Lock()
	}

	m.flushing = false
	m.mu.Unlock()
}

// recordEvent archives and publishes a lifecycle transition. Failures are
// logged only.
func (m *AlertManager) recordEvent(ctx context.Context, kind model.NotificationEventKind, n *model.AlertNotification) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Recording notification event panicked",
				zap.String("notification_id", n.ID),
				zap.String("event", string(kind)),
				zap.Any("panic", r))
		}
	}()

	if m.history != nil {
		var err error
		if kind == model.NotificationEventTriggered {
			err = m.history.Store(ctx, n)
		} else {
			err = m.history.Update(ctx, n)
		}
		if err != nil {
			m.logger.Error("Failed to archive notification",
				zap.String("notification_id", n.ID),
				zap.String("event", string(kind)),
				zap.Error(err))
		}
	}

	if m.publisher != nil {
		event := model.NotificationEvent{
			Kind:         kind,
			Notification: *n,
			OccurredAt:   m.now(),
		}
		if err := m.publisher.PublishEvent(ctx, event); err != nil {
			m.logger.Error("Failed to publish notification event",
				zap.String("notification_id", n.ID),
				zap.String("event", string(kind)),
				zap.Error(err))
		}
	}
}

func buildMessage(rule *model.AlertRule, values map[string]any) string {
	parts := make([]string, 0, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		parts = append(parts, fmt.Sprintf("%s is %v (%s %v)",
			cond.MetricID, values[cond.MetricID], cond.Operator, cond.Value))
	}
	summary := strings.Join(parts, ", ")
	if rule.Description == "" {
		return summary
	}
	return fmt.Sprintf("%s: %s", rule.Description, summary)
}
