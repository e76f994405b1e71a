// Package tracing provides OpenTelemetry integration for chronicle.
//
// Wrap the adapter handed to chronicle.New to get a client span per storage
// round trip, and the publisher to get a producer span per published batch:
//
//	tp := sdktrace.NewTracerProvider(...)
//	otel.SetTracerProvider(tp)
//
//	tracer := tracing.NewTracer(tracing.WithServiceName("records-api"))
//	store := chronicle.New(tracing.NewEventStoreMiddleware(adapter, tracer),
//	    chronicle.WithPublisher(tracing.NewPublisherMiddleware(publisher, tracer)))
//
// Spans carry the aggregate ID, the expected and resulting versions, and the
// event types involved. Version conflicts are flagged with the
// chronicle.conflict attribute.
package tracing

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/adapters"
)

const (
	// TracerName is the name of the chronicle tracer.
	TracerName = "github.com/havenhq/chronicle"

	// DefaultServiceName is the default service name for spans.
	DefaultServiceName = "chronicle"
)

// Tracer wraps OpenTelemetry tracer for chronicle operations.
type Tracer struct {
	tracer      trace.Tracer
	serviceName string
}

// TracerOption configures a Tracer.
type TracerOption func(*Tracer)

// WithTracerProvider sets a custom TracerProvider.
func WithTracerProvider(tp trace.TracerProvider) TracerOption {
	return func(t *Tracer) {
		t.tracer = tp.Tracer(TracerName)
	}
}

// WithServiceName sets the service name for spans.
func WithServiceName(name string) TracerOption {
	return func(t *Tracer) {
		t.serviceName = name
	}
}

// NewTracer creates a new Tracer with the global TracerProvider.
func NewTracer(opts ...TracerOption) *Tracer {
	t := &Tracer{
		tracer:      otel.Tracer(TracerName),
		serviceName: DefaultServiceName,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// StartSpan starts a new span with the given name.
func (t *Tracer) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, opts...)
}

// Tracer returns the underlying OpenTelemetry tracer.
func (t *Tracer) Tracer() trace.Tracer {
	return t.tracer
}

// ServiceName returns the configured service name.
func (t *Tracer) ServiceName() string {
	return t.serviceName
}

func (t *Tracer) startClientSpan(ctx context.Context, name string, aggregateID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := t.StartSpan(ctx, name, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("chronicle.service", t.serviceName),
		attribute.String("chronicle.aggregate_id", aggregateID.String()),
	)
	return ctx, span
}

func finish(span trace.Span, err error) {
	if err == nil {
		span.SetStatus(codes.Ok, "")
		return
	}

	var conflict *chronicle.ConcurrencyError
	if errors.As(err, &conflict) {
		span.SetAttributes(attribute.Bool("chronicle.conflict", true))
		span.AddEvent("version_conflict", trace.WithAttributes(
			attribute.Int64("chronicle.expected_version", int64(conflict.Expected)),
			attribute.Int64("chronicle.actual_version", int64(conflict.Actual)),
		))
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Ensure EventStoreMiddleware implements the adapter contract.
var (
	_ adapters.EventStoreAdapter = (*EventStoreMiddleware)(nil)
	_ adapters.HealthChecker     = (*EventStoreMiddleware)(nil)
)

// EventStoreMiddleware wraps an EventStoreAdapter with tracing.
type EventStoreMiddleware struct {
	adapter adapters.EventStoreAdapter
	tracer  *Tracer
}

// NewEventStoreMiddleware wraps an adapter with tracing.
func NewEventStoreMiddleware(adapter adapters.EventStoreAdapter, tracer *Tracer) *EventStoreMiddleware {
	return &EventStoreMiddleware{
		adapter: adapter,
		tracer:  tracer,
	}
}

// Append stores events with tracing.
func (m *EventStoreMiddleware) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []adapters.EventData) ([]adapters.EventRecord, error) {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.append", aggregateID)
	defer span.End()

	span.SetAttributes(
		attribute.Int64("chronicle.expected_version", int64(expectedVersion)),
		attribute.Int("chronicle.events.count", len(events)),
	)

	if len(events) > 0 {
		eventTypes := make([]string, len(events))
		for i, e := range events {
			eventTypes[i] = e.Type
		}
		span.SetAttributes(attribute.StringSlice("chronicle.events.types", eventTypes))
	}

	records, err := m.adapter.Append(ctx, aggregateID, expectedVersion, events)
	if err == nil && len(records) > 0 {
		span.SetAttributes(attribute.Int64("chronicle.stored.version", int64(records[len(records)-1].Sequence)))
	}
	finish(span, err)

	return records, err
}

// Load retrieves events with tracing.
func (m *EventStoreMiddleware) Load(ctx context.Context, aggregateID uuid.UUID) ([]adapters.EventRecord, error) {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.load", aggregateID)
	defer span.End()

	records, err := m.adapter.Load(ctx, aggregateID)
	if err == nil {
		span.SetAttributes(attribute.Int("chronicle.events.loaded", len(records)))
	}
	finish(span, err)

	return records, err
}

// CurrentVersion returns the stream version with tracing.
func (m *EventStoreMiddleware) CurrentVersion(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	ctx, span := m.tracer.startClientSpan(ctx, "eventstore.version", aggregateID)
	defer span.End()

	version, err := m.adapter.CurrentVersion(ctx, aggregateID)
	if err == nil {
		span.SetAttributes(attribute.Int64("chronicle.stream.version", int64(version)))
	}
	finish(span, err)

	return version, err
}

// Initialize initializes the adapter with tracing.
func (m *EventStoreMiddleware) Initialize(ctx context.Context) error {
	ctx, span := m.tracer.StartSpan(ctx, "eventstore.initialize",
		trace.WithSpanKind(trace.SpanKindClient),
	)
	defer span.End()

	span.SetAttributes(attribute.String("chronicle.service", m.tracer.serviceName))

	err := m.adapter.Initialize(ctx)
	finish(span, err)

	return err
}

// Close closes the adapter.
func (m *EventStoreMiddleware) Close() error {
	return m.adapter.Close()
}

// Ping forwards to the adapter when it supports health checks.
func (m *EventStoreMiddleware) Ping(ctx context.Context) error {
	if hc, ok := m.adapter.(adapters.HealthChecker); ok {
		return hc.Ping(ctx)
	}
	return nil
}

// PublisherMiddleware wraps a chronicle.Publisher with tracing.
type PublisherMiddleware struct {
	publisher chronicle.Publisher
	tracer    *Tracer
}

// NewPublisherMiddleware wraps a publisher with tracing.
func NewPublisherMiddleware(publisher chronicle.Publisher, tracer *Tracer) *PublisherMiddleware {
	return &PublisherMiddleware{publisher: publisher, tracer: tracer}
}

// Publish forwards records inside a producer span.
func (m *PublisherMiddleware) Publish(ctx context.Context, records []adapters.EventRecord) error {
	ctx, span := m.tracer.StartSpan(ctx, "eventstore.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
	)
	defer span.End()

	span.SetAttributes(
		attribute.String("chronicle.service", m.tracer.serviceName),
		attribute.Int("chronicle.events.count", len(records)),
	)
	if len(records) > 0 {
		span.SetAttributes(
			attribute.String("chronicle.aggregate_id", records[0].AggregateID.String()),
			attribute.Int64("chronicle.from_version", int64(records[0].Sequence)),
			attribute.Int64("chronicle.to_version", int64(records[len(records)-1].Sequence)),
		)
	}

	err := m.publisher.Publish(ctx, records)
	finish(span, err)

	return err
}

// SpanFromContext returns the current span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddEvent adds an event to the current span.
func AddEvent(ctx context.Context, name string, opts ...trace.EventOption) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, opts...)
}

// SetError sets an error on the current span.
func SetError(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetAttributes sets attributes on the current span.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attrs...)
}
