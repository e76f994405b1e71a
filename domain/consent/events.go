package consent

import (
	"time"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle"
)

// Type identifies what a consent authorizes.
type Type string

// Consent types.
const (
	TypeInformationSharing Type = "INFORMATION_SHARING"
	TypeHMISParticipation  Type = "HMIS_PARTICIPATION"
	TypeCourtTestimony     Type = "COURT_TESTIMONY"
	TypeMedicalSharing     Type = "MEDICAL_INFORMATION_SHARING"
	TypeReferralSharing    Type = "REFERRAL_SHARING"
	TypeResearch           Type = "RESEARCH_PARTICIPATION"
)

// ConsentGranted is recorded when a client grants a consent.
type ConsentGranted struct {
	chronicle.EventBase
	ClientID              uuid.UUID  `json:"clientId" msgpack:"clientId"`
	ConsentType           Type       `json:"consentType" msgpack:"consentType"`
	Purpose               string     `json:"purpose" msgpack:"purpose"`
	RecipientOrganization string     `json:"recipientOrganization,omitempty" msgpack:"recipientOrganization,omitempty"`
	RecipientContact      string     `json:"recipientContact,omitempty" msgpack:"recipientContact,omitempty"`
	GrantedBy             uuid.UUID  `json:"grantedBy" msgpack:"grantedBy"`
	ExpiresAt             *time.Time `json:"expiresAt,omitempty" msgpack:"expiresAt,omitempty"`
	Limitations           string     `json:"limitations,omitempty" msgpack:"limitations,omitempty"`
}

// EventType returns "ConsentGranted".
func (ConsentGranted) EventType() string { return "ConsentGranted" }

// ConsentRevoked is recorded when a granted consent is withdrawn.
type ConsentRevoked struct {
	chronicle.EventBase
	RevokedBy uuid.UUID `json:"revokedBy" msgpack:"revokedBy"`
	Reason    string    `json:"reason" msgpack:"reason"`
}

// EventType returns "ConsentRevoked".
func (ConsentRevoked) EventType() string { return "ConsentRevoked" }

// ConsentUpdated is recorded when limitations or the recipient contact change.
type ConsentUpdated struct {
	chronicle.EventBase
	Limitations      string    `json:"limitations" msgpack:"limitations"`
	RecipientContact string    `json:"recipientContact" msgpack:"recipientContact"`
	UpdatedBy        uuid.UUID `json:"updatedBy" msgpack:"updatedBy"`
}

// EventType returns "ConsentUpdated".
func (ConsentUpdated) EventType() string { return "ConsentUpdated" }

// ConsentExtended is recorded when the expiry of a consent moves.
type ConsentExtended struct {
	chronicle.EventBase
	PreviousExpiry *time.Time `json:"previousExpiry,omitempty" msgpack:"previousExpiry,omitempty"`
	NewExpiry      time.Time  `json:"newExpiry" msgpack:"newExpiry"`
	ExtendedBy     uuid.UUID  `json:"extendedBy" msgpack:"extendedBy"`
}

// EventType returns "ConsentExtended".
func (ConsentExtended) EventType() string { return "ConsentExtended" }

// Events returns the shapes of every consent event.
func Events() []chronicle.EventShape {
	return []chronicle.EventShape{
		chronicle.Shape[ConsentGranted](),
		chronicle.Shape[ConsentRevoked](),
		chronicle.Shape[ConsentUpdated](),
		chronicle.Shape[ConsentExtended](),
	}
}
