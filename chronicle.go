// Package chronicle provides an event-sourced persistence engine.
//
// Every change to a domain aggregate is stored as an immutable event in an
// append-only stream keyed by the aggregate's UUID. Current state is rebuilt
// by replaying the stream, and concurrent writers are kept apart by an
// optimistic version check on append.
//
// # Quick Start
//
// Build a registry from the event shapes your domain exports and create a
// store over one of the adapters:
//
//	registry := chronicle.NewTypeRegistry()
//	registry.RegisterEvents(consent.Events()...)
//
//	store := chronicle.New(memory.NewAdapter(), chronicle.WithRegistry(registry))
//
// For durable storage use the SQLite or PostgreSQL adapter:
//
//	adapter, err := postgres.NewAdapter(connStr)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	store := chronicle.New(adapter, chronicle.WithRegistry(registry))
//
// # Defining Events
//
// Events embed EventBase and declare a stable type tag:
//
//	type ConsentGranted struct {
//	    chronicle.EventBase
//	    Scope string `json:"scope"`
//	}
//
//	func (ConsentGranted) EventType() string { return "ConsentGranted" }
//
// The tag is what gets persisted. Renaming the Go type is safe; changing
// the tag orphans every stored event of that type.
//
// # Appending and Loading
//
//	err := store.Append(ctx, id, 0, []chronicle.DomainEvent{granted})
//	if errors.Is(err, chronicle.ErrConcurrencyConflict) {
//	    // reload and retry
//	}
//
//	envelopes, err := store.Load(ctx, id)
//
// # Aggregates
//
// Repository folds a stream onto an aggregate and saves what it records:
//
//	repo := chronicle.NewRepository(store, consent.New)
//	c, err := repo.Execute(ctx, id, func(c *consent.Consent) error {
//	    return c.Revoke("patient request", now)
//	})
package chronicle

// Version returns the library version.
func Version() string {
	return "0.1.0"
}
