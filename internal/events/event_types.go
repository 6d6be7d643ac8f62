package events

import (
	"time"

	"github.com/assetflow/handover-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventAssignmentCreated  EventType = "assignment.created"
	EventAssignmentSigned   EventType = "assignment.signed"
	EventAssignmentDisputed EventType = "assignment.disputed"
	EventAssignmentExpired  EventType = "assignment.expired"
	EventAssignmentReminded EventType = "assignment.reminded"
)

// Event represents a domain event emitted by services and sweeps.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	AssignmentID string    `json:"assignment_id"`
	Timestamp    time.Time `json:"timestamp"`
	Payload      any       `json:"payload"`
}

// AssignmentCreatedPayload payload.
type AssignmentCreatedPayload struct {
	Recipient domain.Recipient `json:"recipient"`
	Token     string           `json:"-"`
	ExpiresAt time.Time        `json:"expires_at"`
	AssetIDs  []string         `json:"asset_ids"`
}

// AssignmentSignedPayload payload.
type AssignmentSignedPayload struct {
	SignerEmail string    `json:"signer_email"`
	SignedAt    time.Time `json:"signed_at"`
}

// AssignmentDisputedPayload payload.
type AssignmentDisputedPayload struct {
	Reason     string    `json:"reason"`
	DisputedAt time.Time `json:"disputed_at"`
}

// AssignmentExpiredPayload payload.
type AssignmentExpiredPayload struct {
	TokenExpiresAt time.Time `json:"token_expires_at"`
	ExpiredAt      time.Time `json:"expired_at"`
}

// AssignmentRemindedPayload payload.
type AssignmentRemindedPayload struct {
	Sequence  int       `json:"sequence"`
	ExpiresAt time.Time `json:"expires_at"`
}
