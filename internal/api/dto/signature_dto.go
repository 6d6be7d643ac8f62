package dto

import (
	"time"

	"github.com/assetflow/handover-service/internal/domain"
)

// SignRequest payload.
type SignRequest struct {
	SignatureData string `json:"signature_data"`
	SignerEmail   string `json:"signer_email"`
}

// DisputeRequest payload.
type DisputeRequest struct {
	Reason string `json:"reason"`
}

// AssignmentItemResponse describes one asset on an assignment.
type AssignmentItemResponse struct {
	AssetID   string `json:"asset_id"`
	AssetCode string `json:"asset_code"`
}

// SigningAssignmentResponse is what the recipient sees behind a signing link.
type SigningAssignmentResponse struct {
	ID             string                   `json:"id"`
	Status         domain.StateKind         `json:"status"`
	EmployeeName   string                   `json:"employee_name"`
	Office         string                   `json:"office"`
	TokenExpiresAt time.Time                `json:"token_expires_at"`
	Actionable     bool                     `json:"actionable"`
	SignedByEmail  *string                  `json:"signed_by_email,omitempty"`
	SignatureDate  *time.Time               `json:"signature_date,omitempty"`
	DisputeReason  *string                  `json:"dispute_reason,omitempty"`
	Items          []AssignmentItemResponse `json:"items"`
}

// NewSigningAssignmentResponse maps the domain view. Actionable is false for
// finalized assignments and once the deadline has passed at now.
func NewSigningAssignmentResponse(ref domain.AssignmentRef, now time.Time) SigningAssignmentResponse {
	return SigningAssignmentResponse{
		ID:             ref.ID,
		Status:         ref.Status,
		EmployeeName:   ref.EmployeeName,
		Office:         ref.Office,
		TokenExpiresAt: ref.TokenExpiresAt,
		Actionable:     !ref.Status.Terminal() && !now.After(ref.TokenExpiresAt),
		SignedByEmail:  ref.SignedByEmail,
		SignatureDate:  ref.SignatureDate,
		DisputeReason:  ref.DisputeReason,
		Items:          itemResponses(ref.Items),
	}
}

func itemResponses(items []domain.AssignmentItem) []AssignmentItemResponse {
	out := make([]AssignmentItemResponse, 0, len(items))
	for _, item := range items {
		out = append(out, AssignmentItemResponse{AssetID: item.AssetID, AssetCode: item.AssetCode})
	}
	return out
}
