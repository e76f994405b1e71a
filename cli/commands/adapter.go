package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/adapters"
	"github.com/havenhq/chronicle/adapters/memory"
	"github.com/havenhq/chronicle/adapters/postgres"
	"github.com/havenhq/chronicle/adapters/sqlite"
	"github.com/havenhq/chronicle/cli/config"
	"github.com/havenhq/chronicle/domain"
	"github.com/havenhq/chronicle/middleware/tracing"
	"github.com/havenhq/chronicle/publish/kafka"
	"github.com/havenhq/chronicle/publish/webhook"
	"github.com/havenhq/chronicle/serializer/msgpack"
)

// Session is an opened event store plus everything that has to be released with it.
type Session struct {
	Store   *chronicle.EventStore
	Adapter adapters.EventStoreAdapter

	closers []func() error
}

// Close releases the publisher and the adapter.
func (s *Session) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AdapterFactory creates the appropriate adapter based on configuration.
type AdapterFactory struct {
	config *config.Config
}

// NewAdapterFactory creates a new adapter factory.
func NewAdapterFactory(cfg *config.Config) (*AdapterFactory, error) {
	if cfg.Database.Driver != config.DriverMemory && cfg.Database.URL == "" {
		return nil, fmt.Errorf("database.url is required for %s driver (or set CHRONICLE_DATABASE_URL)", cfg.Database.Driver)
	}
	return &AdapterFactory{config: cfg}, nil
}

// CreateAdapter creates the adapter for the configured driver.
// PostgreSQL connections are pinged with a short timeout to fail fast on bad URLs.
func (f *AdapterFactory) CreateAdapter(ctx context.Context) (adapters.EventStoreAdapter, error) {
	db := f.config.Database

	switch db.Driver {
	case config.DriverMemory:
		return memory.NewAdapter(), nil

	case config.DriverSQLite:
		opts := []sqlite.Option{}
		if db.Table != "" {
			opts = append(opts, sqlite.WithTable(db.Table))
		}
		adapter, err := sqlite.NewAdapter(db.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create sqlite adapter: %w", err)
		}
		return adapter, nil

	case config.DriverPostgres, config.DriverPQ:
		opts := []postgres.Option{}
		if db.Schema != "" {
			opts = append(opts, postgres.WithSchema(db.Schema))
		}
		if db.Table != "" {
			opts = append(opts, postgres.WithTable(db.Table))
		}
		if db.Driver == config.DriverPQ {
			opts = append(opts, postgres.WithDriver(postgres.DriverPQ))
		}

		adapter, err := postgres.NewAdapter(db.URL, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create postgres adapter: %w", err)
		}

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if err := adapter.Ping(pingCtx); err != nil {
			_ = adapter.Close()
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return adapter, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %s", db.Driver)
	}
}

// CreateCodec returns the configured payload codec over registry.
func (f *AdapterFactory) CreateCodec(registry *chronicle.TypeRegistry) (chronicle.Codec, error) {
	switch f.config.Database.Codec {
	case "", config.CodecJSON:
		return chronicle.NewJSONCodec(registry), nil
	case config.CodecMsgpack:
		return msgpack.NewCodec(registry), nil
	default:
		return nil, fmt.Errorf("unsupported codec: %s", f.config.Database.Codec)
	}
}

// CreatePublisher returns the configured publisher, or nil when publishing is off.
// contentType labels the payloads where the transport carries a media type.
func (f *AdapterFactory) CreatePublisher(contentType string) (chronicle.Publisher, error) {
	pub := f.config.Publish
	switch pub.Kind {
	case "", config.PublishNone:
		return nil, nil
	case config.PublishKafka:
		if len(pub.KafkaBrokers) == 0 || pub.KafkaTopic == "" {
			return nil, fmt.Errorf("kafka publishing needs publish.kafka_brokers and publish.kafka_topic")
		}
		return kafka.New(pub.KafkaTopic, kafka.WithBrokers(pub.KafkaBrokers...)), nil
	case config.PublishWebhook:
		if pub.WebhookURL == "" {
			return nil, fmt.Errorf("webhook publishing needs publish.webhook_url")
		}
		return webhook.New(pub.WebhookURL, webhook.WithContentType(contentType)), nil
	default:
		return nil, fmt.Errorf("unsupported publisher: %s", pub.Kind)
	}
}

// IsMemoryDriver returns true if using the memory driver.
func (f *AdapterFactory) IsMemoryDriver() bool {
	return f.config.Database.Driver == config.DriverMemory
}

// Open builds the event store for this invocation. The store uses the
// registry of every domain package, the configured codec and publisher, and
// is wrapped in tracing when --trace is on.
func (r *Runtime) Open(ctx context.Context) (*Session, error) {
	factory, err := NewAdapterFactory(r.Config)
	if err != nil {
		return nil, err
	}

	codec, err := factory.CreateCodec(domain.NewRegistry())
	if err != nil {
		return nil, err
	}

	publisher, err := factory.CreatePublisher(chronicle.ContentTypeOf(codec))
	if err != nil {
		return nil, err
	}

	adapter, err := factory.CreateAdapter(ctx)
	if err != nil {
		return nil, err
	}

	session := &Session{closers: []func() error{adapter.Close}}

	var tracer *tracing.Tracer
	if r.provider != nil {
		tracer = tracing.NewTracer(
			tracing.WithTracerProvider(r.provider),
			tracing.WithServiceName(r.Config.Telemetry.ServiceName),
		)
		adapter = tracing.NewEventStoreMiddleware(adapter, tracer)
	}
	session.Adapter = adapter

	opts := []chronicle.Option{
		chronicle.WithCodec(codec),
		chronicle.WithLogger(r.Logger),
	}
	if publisher != nil {
		if c, ok := publisher.(io.Closer); ok {
			session.closers = append(session.closers, c.Close)
		}
		p := publisher
		if tracer != nil {
			p = tracing.NewPublisherMiddleware(publisher, tracer)
		}
		opts = append(opts, chronicle.WithPublisher(p))
	}

	session.Store = chronicle.New(adapter, opts...)

	r.Logger.Debug("event store opened",
		"driver", r.Config.Database.Driver,
		"event_types", session.Store.Registry().Count())
	return session, nil
}
