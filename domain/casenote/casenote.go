// Package casenote holds the restricted case note aggregate and its events.
package casenote

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle"
)

// NoteType classifies a note.
type NoteType string

// Note types.
const (
	NoteStandard             NoteType = "STANDARD"
	NoteCounseling           NoteType = "COUNSELING"
	NotePrivilegedCounseling NoteType = "PRIVILEGED_COUNSELING"
	NoteLegalAdvocacy        NoteType = "LEGAL_ADVOCACY"
	NoteSafetyPlan           NoteType = "SAFETY_PLAN"
	NoteMedical              NoteType = "MEDICAL"
)

// Visibility limits who may read a note.
type Visibility string

// Visibility scopes.
const (
	VisibilityCaseTeam     Visibility = "CASE_TEAM"
	VisibilityClinicalOnly Visibility = "CLINICAL_ONLY"
	VisibilityLegalTeam    Visibility = "LEGAL_TEAM"
	VisibilitySafetyTeam   Visibility = "SAFETY_TEAM"
	VisibilityMedicalTeam  Visibility = "MEDICAL_TEAM"
	VisibilityAuthorOnly   Visibility = "AUTHOR_ONLY"
	VisibilityCustom       Visibility = "CUSTOM"
)

// DefaultVisibility returns the scope a note type gets when none is given.
func (t NoteType) DefaultVisibility() Visibility {
	switch t {
	case NoteCounseling:
		return VisibilityClinicalOnly
	case NotePrivilegedCounseling:
		return VisibilityAuthorOnly
	case NoteLegalAdvocacy:
		return VisibilityLegalTeam
	case NoteSafetyPlan:
		return VisibilitySafetyTeam
	case NoteMedical:
		return VisibilityMedicalTeam
	default:
		return VisibilityCaseTeam
	}
}

var (
	// ErrAlreadyCreated is returned when creating a note that exists.
	ErrAlreadyCreated = errors.New("casenote: note already created")

	// ErrNotCreated is returned when changing a note that does not exist.
	ErrNotCreated = errors.New("casenote: note not created")

	// ErrSealed is returned when changing a sealed note.
	ErrSealed = errors.New("casenote: note is sealed")

	// ErrNotSealed is returned when unsealing a note that is not sealed.
	ErrNotSealed = errors.New("casenote: note is not sealed")
)

// Draft describes a new note.
type Draft struct {
	ClientID          uuid.UUID
	CaseID            uuid.UUID
	Type              NoteType
	Title             string
	Content           string
	AuthorID          uuid.UUID
	AuthorizedViewers []uuid.UUID
	// Empty means the note type's default visibility.
	Visibility Visibility
}

// RestrictedNote is a case note with restricted visibility.
type RestrictedNote struct {
	chronicle.AggregateBase

	ClientID          uuid.UUID
	CaseID            uuid.UUID
	Type              NoteType
	Title             string
	Content           string
	AuthorID          uuid.UUID
	AuthorizedViewers []uuid.UUID
	Visibility        Visibility
	CreatedAt         time.Time
	LastModified      time.Time

	Sealed     bool
	SealedBy   uuid.UUID
	SealReason string
}

// New returns an empty note for id.
func New(id uuid.UUID) *RestrictedNote {
	return &RestrictedNote{AggregateBase: chronicle.NewAggregateBase(id)}
}

func (n *RestrictedNote) created() bool {
	return !n.CreatedAt.IsZero()
}

// Create writes the note.
func (n *RestrictedNote) Create(d Draft, now time.Time) error {
	if n.created() {
		return ErrAlreadyCreated
	}

	visibility := d.Visibility
	if visibility == "" {
		visibility = d.Type.DefaultVisibility()
	}

	return n.raise(RestrictedNoteCreated{
		EventBase:         chronicle.NewEventBase(n.AggregateID(), now),
		ClientID:          d.ClientID,
		CaseID:            d.CaseID,
		NoteType:          d.Type,
		Title:             d.Title,
		Content:           d.Content,
		AuthorID:          d.AuthorID,
		AuthorizedViewers: d.AuthorizedViewers,
		Visibility:        visibility,
	})
}

// UpdateContent replaces the note body.
func (n *RestrictedNote) UpdateContent(content string, by uuid.UUID, reason string, now time.Time) error {
	if err := n.mutable(); err != nil {
		return err
	}
	return n.raise(RestrictedNoteUpdated{
		EventBase: chronicle.NewEventBase(n.AggregateID(), now),
		Content:   content,
		UpdatedBy: by,
		Reason:    reason,
	})
}

// GrantAccess adds viewer to the note's authorized viewers.
// Granting access to an existing viewer records nothing.
func (n *RestrictedNote) GrantAccess(viewer, by uuid.UUID, now time.Time) error {
	if err := n.mutable(); err != nil {
		return err
	}
	if slices.Contains(n.AuthorizedViewers, viewer) {
		return nil
	}
	return n.raise(RestrictedNoteAccessGranted{
		EventBase: chronicle.NewEventBase(n.AggregateID(), now),
		ViewerID:  viewer,
		GrantedBy: by,
	})
}

// Seal hides the note from everyone except the sealer.
func (n *RestrictedNote) Seal(by uuid.UUID, reason, legalBasis string, expiresAt *time.Time, now time.Time) error {
	if err := n.mutable(); err != nil {
		return err
	}
	return n.raise(RestrictedNoteSealed{
		EventBase:  chronicle.NewEventBase(n.AggregateID(), now),
		SealedBy:   by,
		Reason:     reason,
		LegalBasis: legalBasis,
		Temporary:  expiresAt != nil,
		ExpiresAt:  expiresAt,
	})
}

// Unseal lifts the seal.
func (n *RestrictedNote) Unseal(by uuid.UUID, reason, legalBasis string, now time.Time) error {
	if !n.created() {
		return ErrNotCreated
	}
	if !n.Sealed {
		return ErrNotSealed
	}
	return n.raise(RestrictedNoteUnsealed{
		EventBase:  chronicle.NewEventBase(n.AggregateID(), now),
		UnsealedBy: by,
		Reason:     reason,
		LegalBasis: legalBasis,
	})
}

// VisibleTo reports whether user may read the note. Role-based scopes are
// resolved by the caller and passed as inScope.
func (n *RestrictedNote) VisibleTo(user uuid.UUID, inScope bool) bool {
	if n.Sealed {
		return user == n.SealedBy
	}
	if len(n.AuthorizedViewers) > 0 || n.Visibility == VisibilityCustom {
		return slices.Contains(n.AuthorizedViewers, user)
	}
	if n.Visibility == VisibilityAuthorOnly {
		return user == n.AuthorID
	}
	return inScope || user == n.AuthorID
}

func (n *RestrictedNote) mutable() error {
	if !n.created() {
		return ErrNotCreated
	}
	if n.Sealed {
		return ErrSealed
	}
	return nil
}

func (n *RestrictedNote) raise(event chronicle.DomainEvent) error {
	if err := n.ApplyEvent(event); err != nil {
		return err
	}
	n.Record(event)
	return nil
}

// ApplyEvent applies a note event to the aggregate state.
func (n *RestrictedNote) ApplyEvent(event chronicle.DomainEvent) error {
	switch e := event.(type) {
	case RestrictedNoteCreated:
		n.ClientID = e.ClientID
		n.CaseID = e.CaseID
		n.Type = e.NoteType
		n.Title = e.Title
		n.Content = e.Content
		n.AuthorID = e.AuthorID
		n.AuthorizedViewers = slices.Clone(e.AuthorizedViewers)
		n.Visibility = e.Visibility
		n.CreatedAt = e.OccurredAt()
		n.LastModified = e.OccurredAt()
	case RestrictedNoteUpdated:
		n.Content = e.Content
		n.LastModified = e.OccurredAt()
	case RestrictedNoteAccessGranted:
		n.AuthorizedViewers = append(n.AuthorizedViewers, e.ViewerID)
	case RestrictedNoteSealed:
		n.Sealed = true
		n.SealedBy = e.SealedBy
		n.SealReason = e.Reason
	case RestrictedNoteUnsealed:
		n.Sealed = false
		n.SealedBy = uuid.Nil
		n.SealReason = ""
	default:
		return fmt.Errorf("casenote: unexpected event %s", event.EventType())
	}
	return nil
}
