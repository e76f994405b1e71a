package casenote

import (
	"time"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle"
)

// RestrictedNoteCreated is recorded when a note is written.
type RestrictedNoteCreated struct {
	chronicle.EventBase
	ClientID          uuid.UUID   `json:"clientId" msgpack:"clientId"`
	CaseID            uuid.UUID   `json:"caseId" msgpack:"caseId"`
	NoteType          NoteType    `json:"noteType" msgpack:"noteType"`
	Title             string      `json:"title" msgpack:"title"`
	Content           string      `json:"content" msgpack:"content"`
	AuthorID          uuid.UUID   `json:"authorId" msgpack:"authorId"`
	AuthorizedViewers []uuid.UUID `json:"authorizedViewers,omitempty" msgpack:"authorizedViewers,omitempty"`
	Visibility        Visibility  `json:"visibility" msgpack:"visibility"`
}

// EventType returns "RestrictedNoteCreated".
func (RestrictedNoteCreated) EventType() string { return "RestrictedNoteCreated" }

// RestrictedNoteUpdated is recorded when the note content changes.
type RestrictedNoteUpdated struct {
	chronicle.EventBase
	Content   string    `json:"content" msgpack:"content"`
	UpdatedBy uuid.UUID `json:"updatedBy" msgpack:"updatedBy"`
	Reason    string    `json:"reason" msgpack:"reason"`
}

// EventType returns "RestrictedNoteUpdated".
func (RestrictedNoteUpdated) EventType() string { return "RestrictedNoteUpdated" }

// RestrictedNoteSealed is recorded when a note is sealed.
type RestrictedNoteSealed struct {
	chronicle.EventBase
	SealedBy   uuid.UUID  `json:"sealedBy" msgpack:"sealedBy"`
	Reason     string     `json:"reason" msgpack:"reason"`
	LegalBasis string     `json:"legalBasis" msgpack:"legalBasis"`
	Temporary  bool       `json:"temporary" msgpack:"temporary"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty" msgpack:"expiresAt,omitempty"`
}

// EventType returns "RestrictedNoteSealed".
func (RestrictedNoteSealed) EventType() string { return "RestrictedNoteSealed" }

// RestrictedNoteUnsealed is recorded when a seal is lifted.
type RestrictedNoteUnsealed struct {
	chronicle.EventBase
	UnsealedBy uuid.UUID `json:"unsealedBy" msgpack:"unsealedBy"`
	Reason     string    `json:"reason" msgpack:"reason"`
	LegalBasis string    `json:"legalBasis" msgpack:"legalBasis"`
}

// EventType returns "RestrictedNoteUnsealed".
func (RestrictedNoteUnsealed) EventType() string { return "RestrictedNoteUnsealed" }

// RestrictedNoteAccessGranted is recorded when a viewer is added to the note.
type RestrictedNoteAccessGranted struct {
	chronicle.EventBase
	ViewerID  uuid.UUID `json:"viewerId" msgpack:"viewerId"`
	GrantedBy uuid.UUID `json:"grantedBy" msgpack:"grantedBy"`
}

// EventType returns "RestrictedNoteAccessGranted".
func (RestrictedNoteAccessGranted) EventType() string { return "RestrictedNoteAccessGranted" }

// Events returns the shapes of every restricted note event.
func Events() []chronicle.EventShape {
	return []chronicle.EventShape{
		chronicle.Shape[RestrictedNoteCreated](),
		chronicle.Shape[RestrictedNoteUpdated](),
		chronicle.Shape[RestrictedNoteSealed](),
		chronicle.Shape[RestrictedNoteUnsealed](),
		chronicle.Shape[RestrictedNoteAccessGranted](),
	}
}
