package casenote

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/havenhq/chronicle"
	"github.com/havenhq/chronicle/adapters/memory"
	"github.com/havenhq/chronicle/serializer/msgpack"
)

var (
	writtenAt = time.Date(2026, 2, 3, 16, 45, 0, 0, time.UTC)
	counselor = uuid.MustParse("0b8e6a52-7f0c-4b8e-a7e2-5d4c3b2a1f00")
	attorney  = uuid.MustParse("9d2f4e61-3a5b-4c7d-8e9f-0a1b2c3d4e5f")
)

func draft(t NoteType) Draft {
	return Draft{
		ClientID: uuid.New(),
		CaseID:   uuid.New(),
		Type:     t,
		Title:    "Intake follow-up",
		Content:  "Discussed safety plan options.",
		AuthorID: counselor,
	}
}

func created(t *testing.T, nt NoteType) *RestrictedNote {
	t.Helper()
	n := New(uuid.New())
	require.NoError(t, n.Create(draft(nt), writtenAt))
	return n
}

func TestNoteType_DefaultVisibility(t *testing.T) {
	tests := []struct {
		noteType NoteType
		expected Visibility
	}{
		{NoteStandard, VisibilityCaseTeam},
		{NoteCounseling, VisibilityClinicalOnly},
		{NotePrivilegedCounseling, VisibilityAuthorOnly},
		{NoteLegalAdvocacy, VisibilityLegalTeam},
		{NoteSafetyPlan, VisibilitySafetyTeam},
		{NoteMedical, VisibilityMedicalTeam},
	}

	for _, tt := range tests {
		t.Run(string(tt.noteType), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.noteType.DefaultVisibility())
			assert.Equal(t, tt.expected, created(t, tt.noteType).Visibility)
		})
	}
}

func TestRestrictedNote_Lifecycle(t *testing.T) {
	n := New(uuid.New())

	assert.ErrorIs(t, n.UpdateContent("x", counselor, "typo", writtenAt), ErrNotCreated)
	assert.ErrorIs(t, n.Unseal(counselor, "x", "x", writtenAt), ErrNotCreated)

	require.NoError(t, n.Create(draft(NoteCounseling), writtenAt))
	assert.ErrorIs(t, n.Create(draft(NoteCounseling), writtenAt), ErrAlreadyCreated)

	require.NoError(t, n.UpdateContent("Revised.", counselor, "clarify", writtenAt.Add(time.Hour)))
	assert.Equal(t, "Revised.", n.Content)
	assert.Equal(t, writtenAt.Add(time.Hour), n.LastModified)

	assert.ErrorIs(t, n.Unseal(counselor, "x", "x", writtenAt), ErrNotSealed)

	require.NoError(t, n.Seal(attorney, "subpoena", "court order 24-118", nil, writtenAt.Add(2*time.Hour)))
	assert.True(t, n.Sealed)
	assert.ErrorIs(t, n.UpdateContent("x", counselor, "x", writtenAt), ErrSealed)
	assert.ErrorIs(t, n.GrantAccess(uuid.New(), counselor, writtenAt), ErrSealed)

	require.NoError(t, n.Unseal(attorney, "order lifted", "court order 24-118", writtenAt.Add(3*time.Hour)))
	assert.False(t, n.Sealed)

	assert.Len(t, n.UncommittedEvents(), 4)
}

func TestRestrictedNote_GrantAccess(t *testing.T) {
	n := created(t, NoteStandard)
	viewer := uuid.New()

	require.NoError(t, n.GrantAccess(viewer, counselor, writtenAt))
	require.NoError(t, n.GrantAccess(viewer, counselor, writtenAt))

	assert.Equal(t, []uuid.UUID{viewer}, n.AuthorizedViewers)
	assert.Len(t, n.UncommittedEvents(), 2)
}

func TestRestrictedNote_VisibleTo(t *testing.T) {
	stranger := uuid.New()

	t.Run("scope decides for team notes", func(t *testing.T) {
		n := created(t, NoteStandard)
		assert.True(t, n.VisibleTo(stranger, true))
		assert.False(t, n.VisibleTo(stranger, false))
		assert.True(t, n.VisibleTo(counselor, false))
	})

	t.Run("author only", func(t *testing.T) {
		n := created(t, NotePrivilegedCounseling)
		assert.True(t, n.VisibleTo(counselor, false))
		assert.False(t, n.VisibleTo(stranger, true))
	})

	t.Run("explicit viewers", func(t *testing.T) {
		n := created(t, NoteStandard)
		viewer := uuid.New()
		require.NoError(t, n.GrantAccess(viewer, counselor, writtenAt))

		assert.True(t, n.VisibleTo(viewer, false))
		assert.False(t, n.VisibleTo(stranger, true))
	})

	t.Run("sealed", func(t *testing.T) {
		n := created(t, NoteStandard)
		require.NoError(t, n.Seal(attorney, "subpoena", "court order", nil, writtenAt))

		assert.True(t, n.VisibleTo(attorney, false))
		assert.False(t, n.VisibleTo(counselor, true))
	})
}

func TestRestrictedNote_RoundTripMsgpack(t *testing.T) {
	ctx := context.Background()
	registry := chronicle.NewTypeRegistry()
	registry.RegisterEvents(Events()...)
	store := chronicle.New(memory.NewAdapter(), chronicle.WithCodec(msgpack.NewCodec(registry)))
	repo := chronicle.NewRepository(store, New)

	id := uuid.New()
	viewer := uuid.New()
	expires := writtenAt.AddDate(0, 6, 0)

	n := New(id)
	d := draft(NoteLegalAdvocacy)
	require.NoError(t, n.Create(d, writtenAt))
	require.NoError(t, n.GrantAccess(viewer, counselor, writtenAt.Add(time.Minute)))
	require.NoError(t, n.Seal(attorney, "protective order", "PO-7", &expires, writtenAt.Add(time.Hour)))
	require.NoError(t, repo.SaveAggregate(ctx, n))

	loaded, version, err := repo.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), version)
	assert.Equal(t, d.CaseID, loaded.CaseID)
	assert.Equal(t, VisibilityLegalTeam, loaded.Visibility)
	assert.Equal(t, []uuid.UUID{viewer}, loaded.AuthorizedViewers)
	assert.True(t, loaded.Sealed)
	assert.Equal(t, attorney, loaded.SealedBy)
	assert.True(t, writtenAt.Equal(loaded.CreatedAt))

	envelopes, err := store.Load(ctx, id)
	require.NoError(t, err)
	sealed, ok := envelopes[2].Event.(RestrictedNoteSealed)
	require.True(t, ok)
	require.NotNil(t, sealed.ExpiresAt)
	assert.True(t, expires.Equal(*sealed.ExpiresAt))
	assert.True(t, sealed.Temporary)
}
