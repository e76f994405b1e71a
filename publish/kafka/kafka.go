// Package kafka publishes committed event records to Kafka topics
// using github.com/segmentio/kafka-go.
//
// Each record becomes one message keyed by its aggregate ID, so every
// event of an aggregate lands on the same partition in sequence order.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/havenhq/chronicle/adapters"
)

// Message header keys.
const (
	HeaderEventType  = "event-type"
	HeaderSequence   = "sequence"
	HeaderRecordedAt = "recorded-at"
)

// MessageWriter is the subset of *kafkago.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// TopicFunc selects the topic for a record.
type TopicFunc func(record adapters.EventRecord) string

// Publisher publishes event records to Kafka.
type Publisher struct {
	brokers      []string
	balancer     kafkago.Balancer
	batchTimeout time.Duration
	transport    kafkago.RoundTripper
	topicFor     TopicFunc
	newWriter    func(topic string) MessageWriter

	mu      sync.RWMutex
	writers map[string]MessageWriter
}

// Option configures a Kafka Publisher.
type Option func(*Publisher)

// WithBrokers sets the Kafka broker addresses.
func WithBrokers(brokers ...string) Option {
	return func(p *Publisher) {
		p.brokers = brokers
	}
}

// WithBalancer sets the message balancer (partitioner).
// The default hashes the message key.
func WithBalancer(balancer kafkago.Balancer) Option {
	return func(p *Publisher) {
		p.balancer = balancer
	}
}

// WithBatchTimeout sets the batch timeout for the writer.
func WithBatchTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		p.batchTimeout = d
	}
}

// WithTopicFunc routes records to topics, for example one topic per event type.
func WithTopicFunc(fn TopicFunc) Option {
	return func(p *Publisher) {
		p.topicFor = fn
	}
}

// WithWriterFactory replaces the kafka-go writer constructor.
func WithWriterFactory(fn func(topic string) MessageWriter) Option {
	return func(p *Publisher) {
		p.newWriter = fn
	}
}

// New creates a Publisher that writes every record to topic.
func New(topic string, opts ...Option) *Publisher {
	p := &Publisher{
		brokers:      []string{"localhost:9092"},
		balancer:     &kafkago.Hash{},
		batchTimeout: 10 * time.Millisecond,
		topicFor:     func(adapters.EventRecord) string { return topic },
		writers:      make(map[string]MessageWriter),
	}
	p.newWriter = p.kafkaWriter

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Message converts a record into a Kafka message.
func Message(record adapters.EventRecord) kafkago.Message {
	return kafkago.Message{
		Key:   []byte(record.AggregateID.String()),
		Value: record.Payload,
		Time:  record.RecordedAt,
		Headers: []kafkago.Header{
			{Key: HeaderEventType, Value: []byte(record.EventType)},
			{Key: HeaderSequence, Value: []byte(strconv.FormatUint(record.Sequence, 10))},
			{Key: HeaderRecordedAt, Value: []byte(record.RecordedAt.UTC().Format(time.RFC3339Nano))},
		},
	}
}

// Publish writes records to their topics. Records for one topic are written
// in a single call in the order given. All topics are attempted even if some
// fail; errors are joined.
func (p *Publisher) Publish(ctx context.Context, records []adapters.EventRecord) error {
	grouped := make(map[string][]kafkago.Message)
	var order []string
	var errs []error

	for _, record := range records {
		topic := p.topicFor(record)
		if topic == "" {
			errs = append(errs, fmt.Errorf("kafka: no topic for event type %q", record.EventType))
			continue
		}
		if _, ok := grouped[topic]; !ok {
			order = append(order, topic)
		}
		grouped[topic] = append(grouped[topic], Message(record))
	}

	for _, topic := range order {
		if err := p.getWriter(topic).WriteMessages(ctx, grouped[topic]...); err != nil {
			errs = append(errs, fmt.Errorf("kafka: failed to write to topic %s: %w", topic, err))
		}
	}

	return errors.Join(errs...)
}

// Close closes all Kafka writers.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			return err
		}
		delete(p.writers, topic)
	}
	return nil
}

// getWriter returns or creates a writer for the given topic.
func (p *Publisher) getWriter(topic string) MessageWriter {
	p.mu.RLock()
	if w, ok := p.writers[topic]; ok {
		p.mu.RUnlock()
		return w
	}
	p.mu.RUnlock()

	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := p.newWriter(topic)
	p.writers[topic] = w
	return w
}

func (p *Publisher) kafkaWriter(topic string) MessageWriter {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               p.balancer,
		BatchTimeout:           p.batchTimeout,
		Transport:              p.transport,
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
