package chronicle

import (
	"context"
	"errors"
	"reflect"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Repository rebuilds aggregates of type A from their streams and saves
// their new events with optimistic concurrency.
type Repository[A Aggregate] struct {
	store       *EventStore
	factory     AggregateFactory[A]
	maxAttempts uint
	newBackOff  func() backoff.BackOff
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*repositoryConfig)

type repositoryConfig struct {
	maxAttempts uint
	newBackOff  func() backoff.BackOff
}

// WithMaxAttempts bounds how many times Execute runs a command when saves
// keep hitting concurrency conflicts. The default of 1 disables retry.
// Only enable retry for commands that are safe to re-apply to fresh state.
func WithMaxAttempts(n uint) RepositoryOption {
	return func(c *repositoryConfig) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithRetryBackOff sets the pacing between Execute attempts.
// The factory is called once per Execute so policies with state are not shared.
func WithRetryBackOff(newBackOff func() backoff.BackOff) RepositoryOption {
	return func(c *repositoryConfig) {
		if newBackOff != nil {
			c.newBackOff = newBackOff
		}
	}
}

// DefaultRetryBackOff is a short exponential policy suited to conflict retries.
func DefaultRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond
	return b
}

// NewRepository creates a repository that builds empty aggregates with factory.
func NewRepository[A Aggregate](store *EventStore, factory AggregateFactory[A], opts ...RepositoryOption) *Repository[A] {
	cfg := repositoryConfig{
		maxAttempts: 1,
		newBackOff:  DefaultRetryBackOff,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Repository[A]{
		store:       store,
		factory:     factory,
		maxAttempts: cfg.maxAttempts,
		newBackOff:  cfg.newBackOff,
	}
}

// Load replays the aggregate's stream onto a fresh aggregate and returns it
// with the version it was built from. A new aggregate has version 0.
func (r *Repository[A]) Load(ctx context.Context, id uuid.UUID) (A, uint64, error) {
	var zero A

	envelopes, err := r.store.Load(ctx, id)
	if err != nil {
		return zero, 0, err
	}

	agg := r.factory(id)
	var version uint64
	for _, env := range envelopes {
		if err := agg.ApplyEvent(env.Event); err != nil {
			return zero, 0, err
		}
		version = env.Sequence
	}
	agg.SetVersion(version)

	return agg, version, nil
}

// Save appends events at expectedVersion. Pass the version the aggregate was
// loaded at so that concurrent modifications are detected.
func (r *Repository[A]) Save(ctx context.Context, id uuid.UUID, expectedVersion uint64, events []DomainEvent) error {
	return r.store.Append(ctx, id, expectedVersion, events)
}

// SaveAggregate appends the aggregate's uncommitted events at its loaded
// version. On success the version advances and the events are cleared.
func (r *Repository[A]) SaveAggregate(ctx context.Context, agg A) error {
	if isNilAggregate(agg) {
		return ErrNilAggregate
	}

	events := agg.UncommittedEvents()
	if len(events) == 0 {
		return nil
	}

	err := r.store.Append(ctx, agg.AggregateID(), agg.Version(), events)
	if err != nil && !errors.Is(err, ErrPublishFailed) {
		return err
	}

	// A publish failure still means the events are stored.
	agg.SetVersion(agg.Version() + uint64(len(events)))
	agg.ClearUncommittedEvents()
	return err
}

// Execute loads the aggregate, runs fn against it and saves the result.
// When the save fails with ErrConcurrencyConflict and attempts remain, the
// aggregate is reloaded and fn runs again against the fresh state.
// Any other error, including one returned by fn, ends Execute immediately.
func (r *Repository[A]) Execute(ctx context.Context, id uuid.UUID, fn func(A) error) (A, error) {
	operation := func() (A, error) {
		var zero A

		agg, _, err := r.Load(ctx, id)
		if err != nil {
			return zero, backoff.Permanent(err)
		}
		if err := fn(agg); err != nil {
			return zero, backoff.Permanent(err)
		}

		err = r.SaveAggregate(ctx, agg)
		switch {
		case err == nil:
			return agg, nil
		case errors.Is(err, ErrConcurrencyConflict):
			r.store.logger.Debug("retrying command after conflict", "aggregate_id", id.String())
			return zero, err
		default:
			return agg, backoff.Permanent(err)
		}
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(r.newBackOff()),
		backoff.WithMaxTries(r.maxAttempts))
}

func isNilAggregate(agg Aggregate) bool {
	if agg == nil {
		return true
	}
	v := reflect.ValueOf(agg)
	return v.Kind() == reflect.Ptr && v.IsNil()
}
