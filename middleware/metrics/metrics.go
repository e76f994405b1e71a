// Package metrics provides Prometheus metrics for chronicle.
//
// Wrap an adapter (and optionally a publisher) to record operation counts,
// latencies, appended and loaded events, and concurrency conflicts:
//
//	m := metrics.New(metrics.WithMetricsServiceName("records-api"))
//	m.MustRegister()
//
//	store := chronicle.New(m.WrapEventStore(adapter),
//	    chronicle.WithPublisher(m.WrapPublisher(publisher)),
//	    chronicle.WithErrorObserver(m.ObserveStoreError))
package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/adapters"
)

// Default metric labels.
const (
	LabelEventType = "event_type"
	LabelOperation = "operation"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelService   = "service"
)

// Status values.
const (
	StatusSuccess  = "success"
	StatusError    = "error"
	StatusConflict = "conflict"
)

// Operation values.
const (
	OperationAppend         = "append"
	OperationLoad           = "load"
	OperationCurrentVersion = "current_version"
	OperationPublish        = "publish"
)

// Metrics holds all Prometheus metrics for chronicle.
type Metrics struct {
	namespace   string
	subsystem   string
	serviceName string

	operationsTotal      *prometheus.CounterVec
	operationDuration    *prometheus.HistogramVec
	eventsAppendedTotal  *prometheus.CounterVec
	eventsLoadedTotal    *prometheus.CounterVec
	conflictsTotal       *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
	errorsTotal          *prometheus.CounterVec
}

// MetricsOption configures Metrics.
type MetricsOption func(*Metrics)

// WithNamespace sets the Prometheus namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(m *Metrics) {
		m.namespace = namespace
	}
}

// WithSubsystem sets the Prometheus subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(m *Metrics) {
		m.subsystem = subsystem
	}
}

// WithMetricsServiceName sets the service name label.
func WithMetricsServiceName(name string) MetricsOption {
	return func(m *Metrics) {
		m.serviceName = name
	}
}

// New creates a new Metrics instance with default settings.
func New(opts ...MetricsOption) *Metrics {
	m := &Metrics{
		namespace:   "chronicle",
		serviceName: "unknown",
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initMetrics()
	return m
}

func (m *Metrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "eventstore_operations_total",
			Help:      "Total number of event store operations.",
		},
		[]string{LabelService, LabelOperation, LabelStatus},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "eventstore_operation_duration_seconds",
			Help:      "Duration of event store operations in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelService, LabelOperation},
	)

	m.eventsAppendedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_appended_total",
			Help:      "Total number of events appended to streams.",
		},
		[]string{LabelService, LabelEventType},
	)

	m.eventsLoadedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_loaded_total",
			Help:      "Total number of events loaded from streams.",
		},
		[]string{LabelService},
	)

	m.conflictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "concurrency_conflicts_total",
			Help:      "Total number of appends rejected by the optimistic version check.",
		},
		[]string{LabelService},
	)

	m.eventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "events_published_total",
			Help:      "Total number of committed events handed to the publisher.",
		},
		[]string{LabelService, LabelStatus},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: m.subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors by type.",
		},
		[]string{LabelService, LabelErrorType},
	)
}

// Collectors returns all Prometheus collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.eventsAppendedTotal,
		m.eventsLoadedTotal,
		m.conflictsTotal,
		m.eventsPublishedTotal,
		m.errorsTotal,
	}
}

// MustRegister registers all collectors with the default registry.
// Panics if registration fails.
func (m *Metrics) MustRegister() {
	prometheus.MustRegister(m.Collectors()...)
}

// Register registers all collectors with the given registry.
func (m *Metrics) Register(registry prometheus.Registerer) error {
	for _, collector := range m.Collectors() {
		if err := registry.Register(collector); err != nil {
			return err
		}
	}
	return nil
}

// errorTypeName maps an error onto a low-cardinality label value.
func errorTypeName(err error) string {
	if err == nil {
		return "none"
	}

	switch {
	case errors.Is(err, chronicle.ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, chronicle.ErrUnknownEventType):
		return "unknown_event_type"
	case errors.Is(err, chronicle.ErrDecodeFailed):
		return "decode_failed"
	case errors.Is(err, chronicle.ErrEncodeFailed):
		return "encode_failed"
	case errors.Is(err, chronicle.ErrPublishFailed):
		return "publish_failed"
	case errors.Is(err, chronicle.ErrNilAggregateID):
		return "nil_aggregate_id"
	case errors.Is(err, chronicle.ErrAdapterClosed):
		return "adapter_closed"
	case errors.Is(err, chronicle.ErrStorage):
		return "storage"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "context"
	default:
		return "unknown"
	}
}

// observe records duration and outcome of op, counting failures by type.
func (m *Metrics) observe(op string, start time.Time, err error) {
	if m.outcome(op, start, err) == StatusError {
		m.errorsTotal.WithLabelValues(m.serviceName, errorTypeName(err)).Inc()
	}
}

func (m *Metrics) outcome(op string, start time.Time, err error) string {
	m.operationDuration.WithLabelValues(m.serviceName, op).Observe(time.Since(start).Seconds())

	status := StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, chronicle.ErrConcurrencyConflict):
		status = StatusConflict
		m.conflictsTotal.WithLabelValues(m.serviceName).Inc()
	default:
		status = StatusError
	}

	m.operationsTotal.WithLabelValues(m.serviceName, op, status).Inc()
	return status
}

// ObserveStoreError counts failures detected by the EventStore itself, which
// never reach the adapter. Pass it to chronicle.WithErrorObserver:
//
//	store := chronicle.New(m.WrapEventStore(adapter),
//	    chronicle.WithErrorObserver(m.ObserveStoreError))
func (m *Metrics) ObserveStoreError(op string, err error) {
	if err == nil {
		return
	}
	m.RecordError(errorTypeName(err))
}

// Ensure EventStoreMiddleware implements the adapter contract.
var (
	_ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)
	_ adapters.HealthChecker     = (*EventStoreMiddleware)(nil)
)

// EventStoreMiddleware wraps an EventStoreAdapter with metrics.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	metrics *Metrics
}

// WrapEventStore wraps an adapter with metrics collection.
func (m *Metrics) WrapEventStore(adapter adapters.EventStoreAdapter) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		metrics: m,
	}
}

// Append stores events with metrics.
func (em *EventStoreMiddleware) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	start := time.Now()
	records, err := em.adapter.Append(ctx, aggregateID, expectedVersion, events)
	em.metrics.observe(OperationAppend, start, err)

	if err == nil {
		for _, r := range records {
			em.metrics.eventsAppendedTotal.WithLabelValues(em.metrics.serviceName, r.EventType).Inc()
		}
	}

	return records, err
}

// Load retrieves events with metrics.
func (em *EventStoreMiddleware) Load(ctx context.Context, aggregateID uuid.UUID) ([]adapters.EventRecord, error) {
	start := time.Now()
	records, err := em.adapter.Load(ctx, aggregateID)
	em.metrics.observe(OperationLoad, start, err)

	if err == nil {
		em.metrics.eventsLoadedTotal.WithLabelValues(em.metrics.serviceName).Add(float64(len(records)))
	}

	return records, err
}

// CurrentVersion returns the stream version with metrics.
func (em *EventStoreMiddleware) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	start := time.Now()
	version, err := em.adapter.CurrentVersion(ctx, aggregateID)
	em.metrics.observe(OperationCurrentVersion, start, err)
	return version, err
}

// Initialize initializes the adapter.
func (em *EventStoreMiddleware) Initialize(ctx context.Context) error {
	return em.adapter.Initialize(ctx)
}

// Close closes the adapter.
func (em *EventStoreMiddleware) Close() error {
	return em.adapter.Close()
}

// Ping forwards to the adapter when it supports health checks.
func (em *EventStoreMiddleware) Ping(ctx context.Context) error {
	if hc, ok := em.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// PublisherMiddleware wraps a chronicle.Publisher with metrics.
type PublisherMiddleware struct {
	publisher chronicle.Publisher
	metrics   *Metrics
}

// WrapPublisher wraps a publisher with metrics collection.
func (m *Metrics) WrapPublisher(publisher chronicle.Publisher) *PublisherMiddleware {
	return &PublisherMiddleware{publisher: publisher, metrics: m}
}

// Publish forwards records and counts the outcome per event. Failures are
// counted by type through ObserveStoreError, where they arrive as
// publish_failed.
func (pm *PublisherMiddleware) Publish(ctx context.Context, records []adapters.EventRecord) error {
	start := time.Now()
	err := pm.publisher.Publish(ctx, records)
	status := pm.metrics.outcome(OperationPublish, start, err)

	pm.metrics.eventsPublishedTotal.WithLabelValues(pm.metrics.serviceName, status).Add(float64(len(records)))

	return err
}

// RecordError records a custom error.
func (m *Metrics) RecordError(errorType string) {
	m.errorsTotal.WithLabelValues(m.serviceName, errorType).Inc()
}

// OperationsTotal returns the event store operations counter.
func (m *Metrics) OperationsTotal() *prometheus.CounterVec {
	return m.operationsTotal
}

// OperationDuration returns the event store duration histogram.
func (m *Metrics) OperationDuration() *prometheus.HistogramVec {
	return m.operationDuration
}

// EventsAppendedTotal returns the events appended counter.
func (m *Metrics) EventsAppendedTotal() *prometheus.CounterVec {
	return m.eventsAppendedTotal
}

// EventsLoadedTotal returns the events loaded counter.
func (m *Metrics) EventsLoadedTotal() *prometheus.CounterVec {
	return m.eventsLoadedTotal
}

// ConflictsTotal returns the concurrency conflicts counter.
func (m *Metrics) ConflictsTotal() *prometheus.CounterVec {
	return m.conflictsTotal
}

// EventsPublishedTotal returns the published events counter.
func (m *Metrics) EventsPublishedTotal() *prometheus.CounterVec {
	return m.eventsPublishedTotal
}

// ErrorsTotal returns the errors counter.
func (m *Metrics) ErrorsTotal() *prometheus.CounterVec {
	return m.errorsTotal
}
