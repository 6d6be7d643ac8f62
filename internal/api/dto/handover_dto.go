package dto

import (
	"time"

	"github.com/assetflow/handover-service/internal/domain"
)

// RecipientRequest is the employee snapshot captured at handover.
type RecipientRequest struct {
	EmployeeID         string  `json:"employee_id"`
	EmployeeName       string  `json:"employee_name"`
	EmployeeExternalID string  `json:"employee_external_id"`
	PrimaryEmail       string  `json:"primary_email"`
	BackupEmail        *string `json:"backup_email"`
	Office             string  `json:"office"`
}

// HandoverAssetRequest names one asset.
type HandoverAssetRequest struct {
	AssetID   string `json:"asset_id"`
	AssetCode string `json:"asset_code"`
}

// CreateHandoverRequest payload.
type CreateHandoverRequest struct {
	Recipient       RecipientRequest       `json:"recipient"`
	Assets          []HandoverAssetRequest `json:"assets"`
	TokenTTLSeconds int                    `json:"token_ttl_seconds"`
}

// ToRecipient converts the request snapshot.
func (r RecipientRequest) ToRecipient() domain.Recipient {
	return domain.Recipient{
		EmployeeID:         r.EmployeeID,
		EmployeeName:       r.EmployeeName,
		EmployeeExternalID: r.EmployeeExternalID,
		PrimaryEmail:       r.PrimaryEmail,
		BackupEmail:        r.BackupEmail,
		Office:             r.Office,
	}
}

// TokenTTL returns the requested ttl, zero meaning the configured default.
func (r CreateHandoverRequest) TokenTTL() time.Duration {
	if r.TokenTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(r.TokenTTLSeconds) * time.Second
}

// SigningLinkResponse carries the credential returned on creation.
type SigningLinkResponse struct {
	Token     string    `json:"token"`
	URL       string    `json:"url,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandoverResponse is the staff view of an assignment.
type HandoverResponse struct {
	ID               string                   `json:"id"`
	Status           domain.StateKind         `json:"status"`
	EmployeeID       string                   `json:"employee_id"`
	EmployeeName     string                   `json:"employee_name"`
	PrimaryEmail     string                   `json:"primary_email"`
	BackupEmail      *string                  `json:"backup_email,omitempty"`
	Office           string                   `json:"office"`
	AssignedAt       time.Time                `json:"assigned_at"`
	TokenExpiresAt   *time.Time               `json:"token_expires_at,omitempty"`
	ReminderCount    int                      `json:"reminder_count"`
	LastReminderSent *time.Time               `json:"last_reminder_sent,omitempty"`
	SignedByEmail    *string                  `json:"signed_by_email,omitempty"`
	SignatureDate    *time.Time               `json:"signature_date,omitempty"`
	DisputeReason    *string                  `json:"dispute_reason,omitempty"`
	Items            []AssignmentItemResponse `json:"items"`
	SigningLink      *SigningLinkResponse     `json:"signing_link,omitempty"`
}

// NewHandoverResponse maps an assignment and its items.
func NewHandoverResponse(a *domain.AssetAssignment, items []domain.AssignmentItem) HandoverResponse {
	resp := HandoverResponse{
		ID:               a.ID,
		Status:           a.Status(),
		EmployeeID:       a.Recipient.EmployeeID,
		EmployeeName:     a.Recipient.EmployeeName,
		PrimaryEmail:     a.Recipient.PrimaryEmail,
		BackupEmail:      a.Recipient.BackupEmail,
		Office:           a.Recipient.Office,
		AssignedAt:       a.AssignedAt,
		ReminderCount:    a.ReminderCount,
		LastReminderSent: a.LastReminderSent,
		Items:            itemResponses(items),
	}
	if a.HasToken() {
		expires := a.TokenExpiresAt
		resp.TokenExpiresAt = &expires
	}
	ref := a.Ref(items)
	resp.SignedByEmail = ref.SignedByEmail
	resp.SignatureDate = ref.SignatureDate
	resp.DisputeReason = ref.DisputeReason
	return resp
}
