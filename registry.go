package chronicle

import (
	"reflect"
	"sort"
	"sync"
)

// Unmarshaler parses an encoded payload into target, which is always a pointer.
type Unmarshaler func(target any) error

// EventShape describes how to rebuild one concrete event type from a payload.
type EventShape struct {
	// Type is the tag the event declares through its EventType method.
	Type string

	// Decode allocates a fresh event and fills it through unmarshal.
	Decode func(unmarshal Unmarshaler) (DomainEvent, error)
}

// Shape returns the EventShape for the event type T.
// The tag is read from T's own EventType method; nothing is derived from
// the Go type name. T is normally a struct value type. A pointer type is
// accepted and decodes to a freshly allocated pointer.
func Shape[T DomainEvent]() EventShape {
	return EventShape{
		Type: newEvent[T]().EventType(),
		Decode: func(unmarshal Unmarshaler) (DomainEvent, error) {
			event := newEvent[T]()
			if err := unmarshal(&event); err != nil {
				return nil, err
			}
			return event, nil
		},
	}
}

func newEvent[T DomainEvent]() T {
	var zero T
	t := reflect.TypeOf(zero)
	switch {
	case t == nil:
		panic("chronicle: Shape needs a concrete event type, not an interface")
	case t.Kind() == reflect.Pointer:
		return reflect.New(t.Elem()).Interface().(T)
	}
	return zero
}

// TypeRegistry maps event type tags to the shapes used to decode them.
//
// A process builds one registry at startup from the closed set of event
// shapes its domain packages export, then shares it with every codec.
// After startup it is only read, apart from occasional manual registration.
// It is safe for concurrent use.
type TypeRegistry struct {
	mu     sync.RWMutex
	shapes map[string]EventShape
}

// NewTypeRegistry creates a new empty TypeRegistry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		shapes: make(map[string]EventShape),
	}
}

// Register maps eventType to shape. Registering the same tag again replaces
// the previous shape.
func (r *TypeRegistry) Register(eventType string, shape EventShape) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.shapes[eventType] = shape
}

// RegisterEvents registers each shape under its declared Type.
func (r *TypeRegistry) RegisterEvents(shapes ...EventShape) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, shape := range shapes {
		r.shapes[shape.Type] = shape
	}
}

// Resolve returns the shape registered for eventType.
// It fails with *UnknownEventTypeError when the tag is not registered.
func (r *TypeRegistry) Resolve(eventType string) (EventShape, error) {
	r.mu.RLock()
	shape, ok := r.shapes[eventType]
	r.mu.RUnlock()

	if !ok {
		return EventShape{}, &UnknownEventTypeError{
			Requested: eventType,
			Known:     r.KnownTypes(),
		}
	}
	return shape, nil
}

// KnownTypes returns the registered type tags in sorted order.
func (r *TypeRegistry) KnownTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.shapes))
	for t := range r.shapes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count returns the number of registered event types.
func (r *TypeRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shapes)
}
