package repository

import (
	"fmt"
	"time"

	"github.com/assetflow/handover-service/internal/domain"
)

// assignmentRow is the stored shape of an assignment: boolean flags plus
// nullable columns. It never leaves this package.
type assignmentRow struct {
	ID                 string
	EmployeeID         string
	EmployeeName       string
	EmployeeExternalID string
	PrimaryEmail       string
	BackupEmail        *string
	Office             string
	SignatureToken     *string
	TokenExpiresAt     *time.Time
	IsSigned           bool
	IsDisputed         bool
	SignatureData      *string
	SignatureDate      *time.Time
	SignedByEmail      *string
	DisputeReason      *string
	DisputedAt         *time.Time
	ExpiredAt          *time.Time
	LastReminderSent   *time.Time
	ReminderCount      int
	AssignedAt         time.Time
	PDFSent            bool
}

func rowFromDomain(a *domain.AssetAssignment) assignmentRow {
	row := assignmentRow{
		ID:                 a.ID,
		EmployeeID:         a.Recipient.EmployeeID,
		EmployeeName:       a.Recipient.EmployeeName,
		EmployeeExternalID: a.Recipient.EmployeeExternalID,
		PrimaryEmail:       a.Recipient.PrimaryEmail,
		BackupEmail:        domain.ClonePtr(a.Recipient.BackupEmail),
		Office:             a.Recipient.Office,
		SignatureToken:     domain.ClonePtr(a.SignatureToken),
		LastReminderSent:   domain.ClonePtr(a.LastReminderSent),
		ReminderCount:      a.ReminderCount,
		AssignedAt:         a.AssignedAt,
		PDFSent:            a.PDFSent,
	}
	if !a.TokenExpiresAt.IsZero() {
		expires := a.TokenExpiresAt
		row.TokenExpiresAt = &expires
	}
	switch s := a.State.(type) {
	case domain.Signed:
		row.IsSigned = true
		row.SignatureData = &s.Data
		row.SignedByEmail = &s.SignerEmail
		row.SignatureDate = &s.At
	case domain.Disputed:
		row.IsDisputed = true
		row.DisputeReason = &s.Reason
		row.DisputedAt = &s.At
	case domain.Expired:
		row.ExpiredAt = &s.At
	}
	return row
}

func (r assignmentRow) toDomain() (*domain.AssetAssignment, error) {
	state, err := r.state()
	if err != nil {
		return nil, err
	}
	a := &domain.AssetAssignment{
		ID: r.ID,
		Recipient: domain.Recipient{
			EmployeeID:         r.EmployeeID,
			EmployeeName:       r.EmployeeName,
			EmployeeExternalID: r.EmployeeExternalID,
			PrimaryEmail:       r.PrimaryEmail,
			BackupEmail:        domain.ClonePtr(r.BackupEmail),
			Office:             r.Office,
		},
		SignatureToken:   domain.ClonePtr(r.SignatureToken),
		State:            state,
		LastReminderSent: domain.ClonePtr(r.LastReminderSent),
		ReminderCount:    r.ReminderCount,
		AssignedAt:       r.AssignedAt,
		PDFSent:          r.PDFSent,
	}
	if r.TokenExpiresAt != nil {
		a.TokenExpiresAt = *r.TokenExpiresAt
	}
	return a, nil
}

func (r assignmentRow) state() (domain.State, error) {
	switch {
	case r.IsSigned && r.IsDisputed:
		return nil, fmt.Errorf("%w: %s is both signed and disputed", domain.ErrCorruptState, r.ID)
	case r.IsSigned:
		if r.ExpiredAt != nil || r.SignatureData == nil || r.SignatureDate == nil {
			return nil, fmt.Errorf("%w: %s signed without signature fields", domain.ErrCorruptState, r.ID)
		}
		return domain.Signed{Data: *r.SignatureData, SignerEmail: deref(r.SignedByEmail), At: *r.SignatureDate}, nil
	case r.IsDisputed:
		if r.ExpiredAt != nil || r.DisputeReason == nil {
			return nil, fmt.Errorf("%w: %s disputed without reason", domain.ErrCorruptState, r.ID)
		}
		var at time.Time
		if r.DisputedAt != nil {
			at = *r.DisputedAt
		}
		return domain.Disputed{Reason: *r.DisputeReason, At: at}, nil
	case r.ExpiredAt != nil:
		return domain.Expired{At: *r.ExpiredAt}, nil
	default:
		return domain.Pending{}, nil
	}
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
