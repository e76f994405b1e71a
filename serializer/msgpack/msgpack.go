// Package msgpack provides a MessagePack codec for chronicle.
//
// MessagePack produces smaller payloads than JSON and is a drop-in
// replacement for the default JSONCodec. Field names follow the events'
// json tags, so one set of struct tags serves both codecs:
//
//	codec := msgpack.NewCodec(registry)
//	store := chronicle.New(adapter, chronicle.WithCodec(codec))
//
// Stored payloads are not interchangeable between codecs; pick one per
// event table.
package msgpack

import (
	"bytes"
	"errors"
	"reflect"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/havenhq/chronicle"
)

// ContentType is the media type of MessagePack payloads.
const ContentType = "application/msgpack"

// Ensure Codec implements chronicle.Codec.
var (
	_ chronicle.Codec        = (*Codec)(nil)
	_ chronicle.ContentTyper = (*Codec)(nil)
)

// Codec is a MessagePack implementation of chronicle.Codec.
type Codec struct {
	registry *chronicle.TypeRegistry
}

// NewCodec creates a MessagePack codec backed by registry.
// A nil registry is replaced by an empty one.
func NewCodec(registry *chronicle.TypeRegistry) *Codec {
	if registry == nil {
		registry = chronicle.NewTypeRegistry()
	}
	return &Codec{registry: registry}
}

// Registry returns the underlying TypeRegistry.
func (c *Codec) Registry() *chronicle.TypeRegistry {
	return c.registry
}

// ContentType returns application/msgpack.
func (c *Codec) ContentType() string {
	return ContentType
}

// Encode converts an event to MessagePack bytes.
func (c *Codec) Encode(event chronicle.DomainEvent) ([]byte, error) {
	if event == nil {
		return nil, chronicle.NewEncodeError("", errors.New("event cannot be nil"))
	}

	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	enc.SetSortMapKeys(true)

	if err := enc.Encode(event); err != nil {
		return nil, chronicle.NewEncodeError(event.EventType(), err)
	}
	return buf.Bytes(), nil
}

// Decode converts MessagePack bytes back to the event registered for eventType.
func (c *Codec) Decode(payload []byte, eventType string) (chronicle.DomainEvent, error) {
	shape, err := c.registry.Resolve(eventType)
	if err != nil {
		return nil, err
	}

	if len(payload) == 0 {
		return nil, chronicle.NewDecodeError(eventType, errors.New("payload cannot be empty"))
	}

	event, err := shape.Decode(func(target any) error {
		dec := msgpack.NewDecoder(bytes.NewReader(payload))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(target); err != nil {
			return err
		}
		toUTC(reflect.ValueOf(target))
		return nil
	})
	if err != nil {
		return nil, chronicle.NewDecodeError(eventType, err)
	}
	return event, nil
}

var timeType = reflect.TypeOf(time.Time{})

// toUTC rewrites every reachable time.Time in v to UTC. The msgpack time
// extension carries no zone and decodes into time.Local.
func toUTC(v reflect.Value) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface:
		if !v.IsNil() {
			toUTC(v.Elem())
		}
	case reflect.Struct:
		if v.Type() == timeType {
			if v.CanSet() {
				v.Set(reflect.ValueOf(v.Interface().(time.Time).UTC()))
			}
			return
		}
		for i := 0; i < v.NumField(); i++ {
			if v.Type().Field(i).IsExported() {
				toUTC(v.Field(i))
			}
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			toUTC(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Elem() != timeType {
			return
		}
		iter := v.MapRange()
		for iter.Next() {
			v.SetMapIndex(iter.Key(), reflect.ValueOf(iter.Value().Interface().(time.Time).UTC()))
		}
	}
}
