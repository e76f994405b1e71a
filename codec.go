package chronicle

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Codec converts domain events to durable payloads and back.
type Codec interface {
	// Encode converts an event to bytes. It is deterministic for a given event value.
	Encode(event DomainEvent) ([]byte, error)

	// Decode resolves eventType through the registry and parses payload into that shape.
	// Unknown types fail with *UnknownEventTypeError, malformed payloads with *DecodeError.
	Decode(payload []byte, eventType string) (DomainEvent, error)
}

// ContentTyper is implemented by codecs that can name the media type of the
// payloads they produce. Publishers use it to label messages.
type ContentTyper interface {
	ContentType() string
}

// ContentTypeOf returns the media type of payloads encoded by c, or
// application/octet-stream when c does not say.
func ContentTypeOf(c Codec) string {
	if ct, ok := c.(ContentTyper); ok {
		if t := ct.ContentType(); t != "" {
			return t
		}
	}
	return "application/octet-stream"
}

// JSONCodec is the default Codec implementation using JSON encoding.
type JSONCodec struct {
	registry *TypeRegistry
}

// NewJSONCodec creates a new JSONCodec backed by registry.
// A nil registry is replaced by an empty one.
func NewJSONCodec(registry *TypeRegistry) *JSONCodec {
	if registry == nil {
		registry = NewTypeRegistry()
	}
	return &JSONCodec{
		registry: registry,
	}
}

// Registry returns the underlying TypeRegistry.
func (c *JSONCodec) Registry() *TypeRegistry {
	return c.registry
}

// ContentType returns application/json.
func (c *JSONCodec) ContentType() string {
	return "application/json"
}

// Encode converts an event to JSON bytes.
func (c *JSONCodec) Encode(event DomainEvent) ([]byte, error) {
	if event == nil {
		return nil, NewEncodeError("", errors.New("event cannot be nil"))
	}

	data, err := json.Marshal(event)
	if err != nil {
		return nil, NewEncodeError(event.EventType(), err)
	}
	return data, nil
}

// Decode converts JSON bytes back to the event registered for eventType.
func (c *JSONCodec) Decode(payload []byte, eventType string) (DomainEvent, error) {
	shape, err := c.registry.Resolve(eventType)
	if err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return nil, NewDecodeError(eventType, errors.New("payload cannot be empty"))
	}
	// json.Unmarshal accepts null into a struct and leaves it zero.
	if trimmed[0] != '{' {
		return nil, NewDecodeError(eventType, errors.New("payload must be a JSON object"))
	}

	event, err := shape.Decode(func(target any) error {
		return json.Unmarshal(payload, target)
	})
	if err != nil {
		return nil, NewDecodeError(eventType, err)
	}
	return event, nil
}
