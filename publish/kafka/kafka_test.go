package kafka

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/adapters"
	"github.com/havenhq/chronicle/adapters/memory"
)

type fakeWriter struct {
	mu       sync.Mutex
	topic    string
	messages []kafkago.Message
	writeErr error
	closed   int
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafkago.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.writeErr != nil {
		return w.writeErr
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed++
	return nil
}

type fakeWriters struct {
	mu      sync.Mutex
	writers map[string]*fakeWriter
	err     error
}

func (f *fakeWriters) factory(topic string) MessageWriter {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writers == nil {
		f.writers = make(map[string]*fakeWriter)
	}
	w := &fakeWriter{topic: topic, writeErr: f.err}
	f.writers[topic] = w
	return w
}

func headers(msg kafkago.Message) map[string]string {
	out := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		out[h.Key] = string(h.Value)
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	p := New("events")
	assert.Equal(t, []string{"localhost:9092"}, p.brokers)
	assert.IsType(t, &kafkago.Hash{}, p.balancer)
	assert.Equal(t, "events", p.topicFor(adapters.EventRecord{}))
}

func TestNew_Options(t *testing.T) {
	balancer := &kafkago.RoundRobin{}
	p := New("events",
		WithBrokers("broker1:9092", "broker2:9092"),
		WithBatchTimeout(500*time.Millisecond),
		WithBalancer(balancer),
	)

	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, p.brokers)
	assert.Equal(t, 500*time.Millisecond, p.batchTimeout)
	assert.Equal(t, balancer, p.balancer)

	w, ok := p.getWriter("events").(*kafkago.Writer)
	require.True(t, ok)
	assert.Equal(t, "events", w.Topic)
	assert.Equal(t, kafkago.RequireAll, w.RequiredAcks)
}

func TestMessage(t *testing.T) {
	id := uuid.New()
	recorded := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

	msg := Message(adapters.EventRecord{
		AggregateID: id,
		Sequence:    7,
		EventType:   "ConsentRevoked",
		Payload:     []byte(`{"reason":"withdrawn"}`),
		RecordedAt:  recorded,
	})

	assert.Equal(t, []byte(id.String()), msg.Key)
	assert.JSONEq(t, `{"reason":"withdrawn"}`, string(msg.Value))
	assert.True(t, recorded.Equal(msg.Time))
	assert.Equal(t, map[string]string{
		HeaderEventType:  "ConsentRevoked",
		HeaderSequence:   "7",
		HeaderRecordedAt: "2026-03-01T09:30:00Z",
	}, headers(msg))
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	id := uuid.New()
	records := []adapters.EventRecord{
		{AggregateID: id, Sequence: 1, EventType: "ConsentGranted", Payload: []byte(`{}`)},
		{AggregateID: id, Sequence: 2, EventType: "ConsentScopeUpdated", Payload: []byte(`{}`)},
	}

	t.Run("writes one batch per topic in order", func(t *testing.T) {
		writers := &fakeWriters{}
		p := New("consent-events", WithWriterFactory(writers.factory))

		require.NoError(t, p.Publish(ctx, records))

		require.Len(t, writers.writers, 1)
		w := writers.writers["consent-events"]
		require.Len(t, w.messages, 2)
		assert.Equal(t, "1", headers(w.messages[0])[HeaderSequence])
		assert.Equal(t, "2", headers(w.messages[1])[HeaderSequence])
	})

	t.Run("routes by topic func", func(t *testing.T) {
		writers := &fakeWriters{}
		p := New("", WithWriterFactory(writers.factory), WithTopicFunc(func(r adapters.EventRecord) string {
			return "events." + r.EventType
		}))

		require.NoError(t, p.Publish(ctx, records))

		assert.Len(t, writers.writers, 2)
		assert.Len(t, writers.writers["events.ConsentGranted"].messages, 1)
		assert.Len(t, writers.writers["events.ConsentScopeUpdated"].messages, 1)
	})

	t.Run("reuses writers", func(t *testing.T) {
		writers := &fakeWriters{}
		p := New("events", WithWriterFactory(writers.factory))

		assert.Same(t, p.getWriter("events"), p.getWriter("events"))
		assert.NotSame(t, p.getWriter("events"), p.getWriter("other"))
	})

	t.Run("missing topic", func(t *testing.T) {
		p := New("", WithWriterFactory((&fakeWriters{}).factory))

		err := p.Publish(ctx, records[:1])
		require.Error(t, err)
		assert.Contains(t, err.Error(), `no topic for event type "ConsentGranted"`)
	})

	t.Run("write failure", func(t *testing.T) {
		broken := errors.New("leader not available")
		writers := &fakeWriters{err: broken}
		p := New("events", WithWriterFactory(writers.factory))

		err := p.Publish(ctx, records)
		require.ErrorIs(t, err, broken)
		assert.Contains(t, err.Error(), "topic events")
	})

	t.Run("empty batch", func(t *testing.T) {
		writers := &fakeWriters{}
		p := New("events", WithWriterFactory(writers.factory))

		require.NoError(t, p.Publish(ctx, nil))
		assert.Empty(t, writers.writers)
	})
}

func TestPublisher_Close(t *testing.T) {
	writers := &fakeWriters{}
	p := New("events", WithWriterFactory(writers.factory))
	_ = p.getWriter("events")

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Equal(t, 1, writers.writers["events"].closed)
}

func TestPublisher_BehindStore(t *testing.T) {
	writers := &fakeWriters{}
	p := New("records", WithWriterFactory(writers.factory))
	store := chronicle.New(memory.NewAdapter(), chronicle.WithPublisher(p))

	id := uuid.New()
	err := store.Append(context.Background(), id, 0, []chronicle.DomainEvent{
		noted{EventBase: chronicle.NewEventBase(id, time.Now()), Text: "first"},
	})
	require.NoError(t, err)

	w := writers.writers["records"]
	require.Len(t, w.messages, 1)
	assert.Equal(t, []byte(id.String()), w.messages[0].Key)
	assert.Equal(t, "Noted", headers(w.messages[0])[HeaderEventType])
}

type noted struct {
	chronicle.EventBase
	Text string `json:"text"`
}

func (noted) EventType() string { return "Noted" }

func TestPublisher_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test (short mode)")
	}
	brokers := os.Getenv("TEST_KAFKA_BROKERS")
	if brokers == "" {
		t.Skip("TEST_KAFKA_BROKERS not set")
	}

	topic := fmt.Sprintf("chronicle-test-%d", time.Now().UnixNano())
	createTopic(t, brokers, topic)

	p := New(topic, WithBrokers(brokers), WithBatchTimeout(10*time.Millisecond))
	p.transport = &kafkago.Transport{}
	defer p.Close()

	id := uuid.New()
	err := p.Publish(context.Background(), []adapters.EventRecord{
		{AggregateID: id, Sequence: 1, EventType: "ConsentGranted", Payload: []byte(`{"scope":"treatment"}`), RecordedAt: time.Now()},
	})
	require.NoError(t, err)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{brokers},
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
		MaxWait:   5 * time.Second,
	})
	defer reader.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte(id.String()), msg.Key)
	assert.Equal(t, "ConsentGranted", headers(msg)[HeaderEventType])
}

// createTopic pre-creates a Kafka topic and waits until it's available.
func createTopic(t *testing.T, brokers string, topic string) {
	t.Helper()
	conn, err := kafkago.Dial("tcp", brokers)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkago.Dial("tcp", net.JoinHostPort(controller.Host, fmt.Sprintf("%d", controller.Port)))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkago.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	require.NoError(t, err)

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("topic %s not available after 10s", topic)
}
