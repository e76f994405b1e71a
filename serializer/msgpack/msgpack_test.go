package msgpack

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/adapters/memory"
)

var (
	occurred = time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC)
	until    = time.Date(2025, 3, 1, 8, 0, 0, 500, time.UTC)
)

type WardTransferred struct {
	chronicle.EventBase
	FromWard string            `json:"fromWard"`
	ToWard   string            `json:"toWard"`
	Tags     []string          `json:"tags"`
	Extra    map[string]string `json:"extra"`
	Bed      *Bed              `json:"bed"`
	Until    *time.Time        `json:"until"`
	Rounds   []time.Time       `json:"rounds"`
}

func (WardTransferred) EventType() string { return "WardTransferred" }

type Bed struct {
	Number int    `json:"number"`
	Wing   string `json:"wing"`
}

func newRegistry() *chronicle.TypeRegistry {
	r := chronicle.NewTypeRegistry()
	r.RegisterEvents(chronicle.Shape[WardTransferred]())
	return r
}

func sample(id uuid.UUID) WardTransferred {
	return WardTransferred{
		EventBase: chronicle.NewEventBase(id, occurred),
		FromWard:  "A",
		ToWard:    "ICU",
		Tags:      []string{"urgent", "night"},
		Extra:     map[string]string{"z": "1", "a": "2"},
		Bed:       &Bed{Number: 12, Wing: "east"},
		Until:     &until,
		Rounds:    []time.Time{occurred.Add(time.Hour), occurred.Add(2 * time.Hour)},
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := NewCodec(newRegistry())
	id := uuid.New()
	original := sample(id)

	payload, err := codec.Encode(original)
	require.NoError(t, err)

	decoded, err := codec.Decode(payload, "WardTransferred")
	require.NoError(t, err)

	assert.Equal(t, original, decoded)
	assert.Equal(t, time.UTC, decoded.OccurredAt().Location())
}

func TestCodec_RoundTripIgnoresLocalZone(t *testing.T) {
	saved := time.Local
	time.Local = time.FixedZone("UTC-5", -5*60*60)
	defer func() { time.Local = saved }()

	codec := NewCodec(newRegistry())
	original := sample(uuid.New())

	payload, err := codec.Encode(original)
	require.NoError(t, err)
	decoded, err := codec.Decode(payload, "WardTransferred")
	require.NoError(t, err)

	assert.Equal(t, original, decoded)
}

func TestCodec_Encode(t *testing.T) {
	codec := NewCodec(nil)

	t.Run("deterministic", func(t *testing.T) {
		event := sample(uuid.New())

		first, err := codec.Encode(event)
		require.NoError(t, err)
		second, err := codec.Encode(event)
		require.NoError(t, err)

		assert.Equal(t, first, second)
	})

	t.Run("nil event", func(t *testing.T) {
		_, err := codec.Encode(nil)
		assert.True(t, errors.Is(err, chronicle.ErrEncodeFailed))
	})
}

func TestCodec_Decode(t *testing.T) {
	codec := NewCodec(newRegistry())

	t.Run("unknown type", func(t *testing.T) {
		_, err := codec.Decode([]byte{0x80}, "Missing")

		var unknown *chronicle.UnknownEventTypeError
		require.True(t, errors.As(err, &unknown))
		assert.Equal(t, []string{"WardTransferred"}, unknown.Known)
	})

	t.Run("empty payload", func(t *testing.T) {
		_, err := codec.Decode(nil, "WardTransferred")
		assert.True(t, errors.Is(err, chronicle.ErrDecodeFailed))
	})

	t.Run("garbage payload", func(t *testing.T) {
		_, err := codec.Decode([]byte{0xc1, 0xff, 0x00}, "WardTransferred")
		assert.True(t, errors.Is(err, chronicle.ErrDecodeFailed))
	})
}

func TestCodec_Registry(t *testing.T) {
	r := newRegistry()
	assert.Same(t, r, NewCodec(r).Registry())
	assert.NotNil(t, NewCodec(nil).Registry())
}

func TestCodec_WithEventStore(t *testing.T) {
	ctx := context.Background()
	registry := newRegistry()
	store := chronicle.New(memory.NewAdapter(), chronicle.WithCodec(NewCodec(registry)))
	id := uuid.New()

	require.NoError(t, store.Append(ctx, id, 0, []chronicle.DomainEvent{sample(id)}))

	envelopes, err := store.Load(ctx, id)
	require.NoError(t, err)
	require.Len(t, envelopes, 1)
	assert.Equal(t, sample(id), envelopes[0].Event)
	assert.Same(t, registry, store.Registry())
}

func TestCodec_ContentType(t *testing.T) {
	codec := NewCodec(nil)
	assert.Equal(t, "application/msgpack", codec.ContentType())
	assert.Equal(t, ContentType, chronicle.ContentTypeOf(codec))
}
