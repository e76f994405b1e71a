package chronicle

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	t.Run("tag comes from EventType", func(t *testing.T) {
		shape := Shape[TestNoteSealed]()
		assert.Equal(t, "TestNoteSealed", shape.Type)
	})

	t.Run("decode allocates a fresh value", func(t *testing.T) {
		shape := Shape[TestNoteAmended]()

		event, err := shape.Decode(func(target any) error {
			target.(*TestNoteAmended).Body = "updated"
			return nil
		})

		require.NoError(t, err)
		assert.Equal(t, TestNoteAmended{Body: "updated"}, event)
	})

	t.Run("pointer event types", func(t *testing.T) {
		var shape EventShape
		require.NotPanics(t, func() { shape = Shape[*TestNoteCreated]() })
		assert.Equal(t, "TestNoteCreated", shape.Type)

		r := NewTypeRegistry()
		r.RegisterEvents(shape)
		event, err := NewJSONCodec(r).Decode([]byte(`{"title":"Intake"}`), "TestNoteCreated")

		require.NoError(t, err)
		assert.Equal(t, &TestNoteCreated{Title: "Intake"}, event)
	})

	t.Run("pointer decodes do not share memory", func(t *testing.T) {
		shape := Shape[*TestNoteAmended]()
		first, err := shape.Decode(func(any) error { return nil })
		require.NoError(t, err)
		second, err := shape.Decode(func(any) error { return nil })
		require.NoError(t, err)

		assert.NotSame(t, first, second)
	})

	t.Run("interface type is rejected", func(t *testing.T) {
		assert.PanicsWithValue(t, "chronicle: Shape needs a concrete event type, not an interface", func() {
			Shape[DomainEvent]()
		})
	})

	t.Run("decode propagates unmarshal errors", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := Shape[TestNoteAmended]().Decode(func(any) error { return boom })
		assert.ErrorIs(t, err, boom)
	})
}

func TestTypeRegistry(t *testing.T) {
	t.Run("new registry is empty", func(t *testing.T) {
		r := NewTypeRegistry()

		assert.Equal(t, 0, r.Count())
		assert.Empty(t, r.KnownTypes())
	})

	t.Run("resolve registered type", func(t *testing.T) {
		r := newTestRegistry()

		shape, err := r.Resolve("TestNoteCreated")

		require.NoError(t, err)
		assert.Equal(t, "TestNoteCreated", shape.Type)
	})

	t.Run("unknown type lists known types", func(t *testing.T) {
		r := newTestRegistry()

		_, err := r.Resolve("OrderShipped")

		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrUnknownEventType))

		var unknown *UnknownEventTypeError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, "OrderShipped", unknown.Requested)
		assert.Equal(t, []string{"TestNoteAmended", "TestNoteCreated", "TestNoteSealed"}, unknown.Known)
	})

	t.Run("manual registration under another tag", func(t *testing.T) {
		r := NewTypeRegistry()
		r.Register("LegacyNoteCreated", Shape[TestNoteCreated]())

		_, err := r.Resolve("LegacyNoteCreated")
		assert.NoError(t, err)
		assert.Equal(t, []string{"LegacyNoteCreated"}, r.KnownTypes())
	})

	t.Run("re-registration replaces", func(t *testing.T) {
		r := newTestRegistry()
		r.RegisterEvents(Shape[TestNoteCreated]())

		assert.Equal(t, 3, r.Count())
	})

	t.Run("known types are sorted", func(t *testing.T) {
		r := NewTypeRegistry()
		r.RegisterEvents(Shape[TestNoteSealed](), Shape[TestNoteAmended](), Shape[TestNoteCreated]())

		assert.Equal(t, []string{"TestNoteAmended", "TestNoteCreated", "TestNoteSealed"}, r.KnownTypes())
	})
}

func TestTypeRegistry_ConcurrentAccess(t *testing.T) {
	r := newTestRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := r.Resolve("TestNoteAmended")
			assert.NoError(t, err)
			_ = r.KnownTypes()
		}()
		go func() {
			defer wg.Done()
			r.Register("TestNoteSealed", Shape[TestNoteSealed]())
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, r.Count())
}
