package metric

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/t77yq/careops-alerts/internal/model"
	"github.com/t77yq/careops-alerts/internal/telemetry"
)

var (
	// ErrMetricNotFound is returned when a metric id is not registered
	ErrMetricNotFound = errors.New("metric not found")

	// ErrMetricFetch is returned when a metric value could not be retrieved
	ErrMetricFetch = errors.New("metric fetch failed")

	// ErrDuplicateMetric is returned when two metrics share an id
	ErrDuplicateMetric = errors.New("duplicate metric")
)

// DefaultFetchTimeout bounds a single metric fetch when none is configured
const DefaultFetchTimeout = 10 * time.Second

// Fetcher retrieves the current value of a metric. Values are float64,
// int-like numbers, bools or strings.
type Fetcher func(ctx context.Context) (any, error)

// Metric is a named, pollable data point
type Metric struct {
	model.MetricDescriptor
	Fetch Fetcher `json:"-"`
}

// Registry holds the metrics known to the engine. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	logger  *zap.Logger
	timeout time.Duration
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates a registry from the given metrics
func NewRegistry(logger *zap.Logger, timeout time.Duration, metrics ...Metric) (*Registry, error) {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	r := &Registry{
		logger:  logger.Named("metric-registry"),
		timeout: timeout,
		metrics: make(map[string]Metric, len(metrics)),
	}

	for _, m := range metrics {
		if m.ID == "" {
			return nil, fmt.Errorf("metric %q has no id", m.Name)
		}
		if m.Fetch == nil {
			return nil, fmt.Errorf("metric %s has no fetcher", m.ID)
		}
		if _, ok := r.metrics[m.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateMetric, m.ID)
		}
		r.metrics[m.ID] = m
		r.order = append(r.order, m.ID)
	}

	return r, nil
}

// Get returns a metric by id
func (r *Registry) Get(id string) (Metric, bool) {
	m, ok := r.metrics[id]
	return m, ok
}

// Has reports whether id is registered
func (r *Registry) Has(id string) bool {
	_, ok := r.metrics[id]
	return ok
}

// List returns the metrics in registration order
func (r *Registry) List() []Metric {
	metrics := make([]Metric, 0, len(r.order))
	for _, id := range r.order {
		metrics = append(metrics, r.metrics[id])
	}
	return metrics
}

// Descriptors returns the metric descriptions without values
func (r *Registry) Descriptors() []model.MetricDescriptor {
	descriptors := make([]model.MetricDescriptor, 0, len(r.order))
	for _, id := range r.order {
		descriptors = append(descriptors, r.metrics[id].MetricDescriptor)
	}
	return descriptors
}

// CurrentValue fetches the current value of a metric. The fetch is bounded by
// the registry timeout; failures are logged and wrapped in ErrMetricFetch.
func (r *Registry) CurrentValue(ctx context.Context, id string) (any, error) {
	m, ok := r.metrics[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMetricNotFound, id)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	type fetchResult struct {
		value any
		err   error
	}

	// Fetchers that ignore ctx must not stall the caller past the timeout.
	results := make(chan fetchResult, 1)
	start := time.Now()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				results <- fetchResult{err: fmt.Errorf("fetch panicked: %v", rec)}
			}
		}()
		value, err := m.Fetch(fetchCtx)
		results <- fetchResult{value: value, err: err}
	}()

	var value any
	var err error
	select {
	case res := <-results:
		value, err = res.value, res.err
	case <-fetchCtx.Done():
		err = fetchCtx.Err()
	}
	telemetry.MetricFetchDuration.WithLabelValues(id).Observe(time.Since(start).Seconds())

	if err != nil {
		telemetry.MetricFetchFailures.WithLabelValues(id).Inc()
		r.logger.Warn("Failed to fetch metric",
			zap.String("metric_id", id),
			zap.Duration("timeout", r.timeout),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %s: %v", ErrMetricFetch, id, err)
	}

	return value, nil
}
