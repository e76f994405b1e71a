package chronicle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle/adapters"
)

// EventStore is the append-only stream store.
// It encodes events through its Codec and delegates durable writes, including
// the optimistic concurrency check, to an EventStoreAdapter.
type EventStore struct {
	adapter   adapters.EventStoreAdapter
	codec     Codec
	logger    Logger
	publisher Publisher
	observe   ErrorObserver
}

// Logger defines the logging interface for the event store.
// *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// noopLogger is a no-op logger implementation.
type noopLogger struct{}

func (l *noopLogger) Debug(msg string, args ...interface{}) {}
func (l *noopLogger) Info(msg string, args ...interface{})  {}
func (l *noopLogger) Warn(msg string, args ...interface{})  {}
func (l *noopLogger) Error(msg string, args ...interface{}) {}

// Publisher receives records after they have been durably appended.
type Publisher interface {
	Publish(ctx context.Context, records []adapters.EventRecord) error
}

// ErrorObserver is told about failures the store detects itself: encode
// and decode failures, unknown event types and publish failures. op is
// "append" or "load". Adapter errors are not reported here.
type ErrorObserver func(op string, err error)

// Option configures an EventStore.
type Option func(*EventStore)

// WithCodec sets a custom codec.
func WithCodec(c Codec) Option {
	return func(es *EventStore) {
		es.codec = c
	}
}

// WithRegistry uses a JSONCodec backed by the given registry.
func WithRegistry(r *TypeRegistry) Option {
	return func(es *EventStore) {
		es.codec = NewJSONCodec(r)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l Logger) Option {
	return func(es *EventStore) {
		es.logger = l
	}
}

// WithPublisher sets a publisher that is called after every successful append.
func WithPublisher(p Publisher) Option {
	return func(es *EventStore) {
		es.publisher = p
	}
}

// WithErrorObserver sets a callback for store-level failures.
func WithErrorObserver(o ErrorObserver) Option {
	return func(es *EventStore) {
		if o != nil {
			es.observe = o
		}
	}
}

// New creates a new EventStore with the given adapter and options.
func New(adapter adapters.EventStoreAdapter, opts ...Option) *EventStore {
	es := &EventStore{
		adapter: adapter,
		codec:   NewJSONCodec(nil),
		logger:  &noopLogger{},
		observe: func(string, error) {},
	}

	for _, opt := range opts {
		opt(es)
	}

	return es
}

// Codec returns the event store's codec.
func (s *EventStore) Codec() Codec {
	return s.codec
}

// Adapter returns the underlying adapter.
func (s *EventStore) Adapter() adapters.EventStoreAdapter {
	return s.adapter
}

// Registry returns the codec's registry, or nil when the codec has none.
func (s *EventStore) Registry() *TypeRegistry {
	if rc, ok := s.codec.(interface{ Registry() *TypeRegistry }); ok {
		return rc.Registry()
	}
	return nil
}

// Append writes events to the aggregate's stream if the stream is still at
// expectedVersion. Events receive sequences expectedVersion+1, +2, ... in
// the order given, and either all of them are stored or none.
//
// An empty batch succeeds immediately without checking the version.
// A stale expectedVersion fails with *ConcurrencyError.
func (s *EventStore) Append(ctx context.Context, aggregateID uuid.UUID, expectedVersion uint64, events []DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	if aggregateID == uuid.Nil {
		return ErrNilAggregateID
	}

	data := make([]adapters.EventData, len(events))
	for i, event := range events {
		payload, err := s.codec.Encode(event)
		if err != nil {
			err = encodeFailure(aggregateID, i, event, err)
			s.observe("append", err)
			return err
		}
		data[i] = adapters.EventData{
			Type:    event.EventType(),
			Payload: payload,
		}
	}

	records, err := s.adapter.Append(ctx, aggregateID, expectedVersion, data)
	if err != nil {
		var concErr *ConcurrencyError
		if errors.As(err, &concErr) {
			s.logger.Warn("concurrency conflict",
				"aggregate_id", aggregateID.String(),
				"expected_version", concErr.Expected,
				"actual_version", concErr.Actual)
		} else {
			s.logger.Error("append failed", "aggregate_id", aggregateID.String(), "error", err)
		}
		return err
	}

	toVersion := expectedVersion + uint64(len(records))
	s.logger.Debug("events appended",
		"aggregate_id", aggregateID.String(),
		"from_version", expectedVersion+1,
		"to_version", toVersion,
		"count", len(records))

	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, records); err != nil {
			s.logger.Error("publish failed", "aggregate_id", aggregateID.String(), "error", err)
			pubErr := &PublishError{
				AggregateID: aggregateID,
				FromVersion: expectedVersion + 1,
				ToVersion:   toVersion,
				Cause:       err,
			}
			s.observe("append", pubErr)
			return pubErr
		}
	}

	return nil
}

// Load returns every event of the aggregate in ascending sequence order.
// An aggregate without events yields an empty slice.
func (s *EventStore) Load(ctx context.Context, aggregateID uuid.UUID) ([]EventEnvelope, error) {
	if aggregateID == uuid.Nil {
		return nil, ErrNilAggregateID
	}

	records, err := s.adapter.Load(ctx, aggregateID)
	if err != nil {
		return nil, err
	}

	envelopes := make([]EventEnvelope, 0, len(records))
	for _, rec := range records {
		event, err := s.codec.Decode(rec.Payload, rec.EventType)
		if err != nil {
			err = s.decodeFailure(rec, err)
			s.observe("load", err)
			return nil, err
		}
		envelopes = append(envelopes, EventEnvelope{
			AggregateID: rec.AggregateID,
			Sequence:    rec.Sequence,
			RecordedAt:  rec.RecordedAt,
			Event:       event,
		})
	}

	return envelopes, nil
}

// Version returns the current version of the aggregate's stream (0 if empty).
func (s *EventStore) Version(ctx context.Context, aggregateID uuid.UUID) (uint64, error) {
	if aggregateID == uuid.Nil {
		return 0, ErrNilAggregateID
	}
	return s.adapter.CurrentVersion(ctx, aggregateID)
}

// Initialize sets up the required storage schema.
func (s *EventStore) Initialize(ctx context.Context) error {
	return s.adapter.Initialize(ctx)
}

// Close releases resources held by the event store.
func (s *EventStore) Close() error {
	return s.adapter.Close()
}

func encodeFailure(aggregateID uuid.UUID, index int, event DomainEvent, err error) error {
	var encErr *EncodeError
	if errors.As(err, &encErr) {
		detailed := *encErr
		detailed.AggregateID = aggregateID
		detailed.Index = index
		return &detailed
	}

	eventType := ""
	if event != nil {
		eventType = event.EventType()
	}
	return &EncodeError{AggregateID: aggregateID, Index: index, EventType: eventType, Cause: err}
}

func (s *EventStore) decodeFailure(rec adapters.EventRecord, err error) error {
	var unknown *UnknownEventTypeError
	if errors.As(err, &unknown) {
		s.logger.Error("unknown event type in stream",
			"aggregate_id", rec.AggregateID.String(),
			"sequence", rec.Sequence,
			"event_type", rec.EventType,
			"known_types", unknown.Known)
		return fmt.Errorf("chronicle: cannot load aggregate %s at sequence %d: %w",
			rec.AggregateID, rec.Sequence, err)
	}

	var decErr *DecodeError
	if errors.As(err, &decErr) {
		detailed := *decErr
		detailed.AggregateID = rec.AggregateID
		detailed.Sequence = rec.Sequence
		s.logger.Error("event decode failed",
			"aggregate_id", rec.AggregateID.String(),
			"sequence", rec.Sequence,
			"event_type", rec.EventType,
			"error", decErr.Cause)
		return &detailed
	}

	return &DecodeError{AggregateID: rec.AggregateID, Sequence: rec.Sequence, EventType: rec.EventType, Cause: err}
}
