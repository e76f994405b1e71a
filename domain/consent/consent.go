// Package consent holds the consent aggregate and its events.
package consent

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/havenhq/chronicle"
)

// Status is the lifecycle state of a consent.
type Status string

// Consent statuses.
const (
	StatusNone    Status = ""
	StatusGranted Status = "GRANTED"
	StatusRevoked Status = "REVOKED"
)

// DefaultDuration applies when a grant gives no duration.
const DefaultDuration = 365 * 24 * time.Hour

var (
	// ErrAlreadyGranted is returned when granting a consent that exists.
	ErrAlreadyGranted = errors.New("consent: already granted")

	// ErrNotGranted is returned when changing a consent that is not currently granted.
	ErrNotGranted = errors.New("consent: not currently granted")

	// ErrExpiryInPast is returned when extending to a date that has passed.
	ErrExpiryInPast = errors.New("consent: new expiry is in the past")
)

// Grant describes a new consent.
type Grant struct {
	ClientID              uuid.UUID
	Type                  Type
	Purpose               string
	RecipientOrganization string
	RecipientContact      string
	GrantedBy             uuid.UUID
	// Duration of zero means DefaultDuration, negative means no expiry.
	Duration    time.Duration
	Limitations string
}

// Consent is a client's authorization to share their information.
type Consent struct {
	chronicle.AggregateBase

	ClientID              uuid.UUID
	Type                  Type
	Status                Status
	Purpose               string
	RecipientOrganization string
	RecipientContact      string
	Limitations           string
	GrantedAt             time.Time
	ExpiresAt             *time.Time
	RevokedAt             time.Time
	RevocationReason      string
}

// New returns an empty consent for id.
func New(id uuid.UUID) *Consent {
	return &Consent{AggregateBase: chronicle.NewAggregateBase(id)}
}

// Grant records a new consent.
func (c *Consent) Grant(g Grant, now time.Time) error {
	if c.Status != StatusNone {
		return ErrAlreadyGranted
	}

	e := ConsentGranted{
		EventBase:             chronicle.NewEventBase(c.AggregateID(), now),
		ClientID:              g.ClientID,
		ConsentType:           g.Type,
		Purpose:               g.Purpose,
		RecipientOrganization: g.RecipientOrganization,
		RecipientContact:      g.RecipientContact,
		GrantedBy:             g.GrantedBy,
		Limitations:           g.Limitations,
	}
	switch {
	case g.Duration == 0:
		expires := now.Add(DefaultDuration)
		e.ExpiresAt = &expires
	case g.Duration > 0:
		expires := now.Add(g.Duration)
		e.ExpiresAt = &expires
	}

	return c.raise(e)
}

// Revoke withdraws a granted consent.
func (c *Consent) Revoke(by uuid.UUID, reason string, now time.Time) error {
	if c.Status != StatusGranted {
		return ErrNotGranted
	}
	return c.raise(ConsentRevoked{
		EventBase: chronicle.NewEventBase(c.AggregateID(), now),
		RevokedBy: by,
		Reason:    reason,
	})
}

// Update changes the limitations and recipient contact.
func (c *Consent) Update(limitations, recipientContact string, by uuid.UUID, now time.Time) error {
	if c.Status != StatusGranted {
		return ErrNotGranted
	}
	return c.raise(ConsentUpdated{
		EventBase:        chronicle.NewEventBase(c.AggregateID(), now),
		Limitations:      limitations,
		RecipientContact: recipientContact,
		UpdatedBy:        by,
	})
}

// Extend moves the expiry to until.
func (c *Consent) Extend(until time.Time, by uuid.UUID, now time.Time) error {
	if c.Status != StatusGranted {
		return ErrNotGranted
	}
	if until.Before(now) {
		return ErrExpiryInPast
	}
	return c.raise(ConsentExtended{
		EventBase:      chronicle.NewEventBase(c.AggregateID(), now),
		PreviousExpiry: c.ExpiresAt,
		NewExpiry:      until,
		ExtendedBy:     by,
	})
}

// ValidAt reports whether the consent is granted and unexpired at t.
func (c *Consent) ValidAt(t time.Time) bool {
	return c.Status == StatusGranted && (c.ExpiresAt == nil || c.ExpiresAt.After(t))
}

func (c *Consent) raise(event chronicle.DomainEvent) error {
	if err := c.ApplyEvent(event); err != nil {
		return err
	}
	c.Record(event)
	return nil
}

// ApplyEvent applies a consent event to the aggregate state.
func (c *Consent) ApplyEvent(event chronicle.DomainEvent) error {
	switch e := event.(type) {
	case ConsentGranted:
		c.ClientID = e.ClientID
		c.Type = e.ConsentType
		c.Status = StatusGranted
		c.Purpose = e.Purpose
		c.RecipientOrganization = e.RecipientOrganization
		c.RecipientContact = e.RecipientContact
		c.Limitations = e.Limitations
		c.GrantedAt = e.OccurredAt()
		c.ExpiresAt = e.ExpiresAt
	case ConsentRevoked:
		c.Status = StatusRevoked
		c.RevokedAt = e.OccurredAt()
		c.RevocationReason = e.Reason
	case ConsentUpdated:
		c.Limitations = e.Limitations
		c.RecipientContact = e.RecipientContact
	case ConsentExtended:
		expires := e.NewExpiry
		c.ExpiresAt = &expires
	default:
		return fmt.Errorf("consent: unexpected event %s", event.EventType())
	}
	return nil
}
