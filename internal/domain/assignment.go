package domain

import "time"

// Recipient is the employee snapshot captured when an assignment is created.
// Later edits to the employee record do not change it.
type Recipient struct {
	EmployeeID         string
	EmployeeName       string
	EmployeeExternalID string
	PrimaryEmail       string
	BackupEmail        *string
	Office             string
}

// Emails returns the addresses a notification should go to, primary first.
func (r Recipient) Emails() []string {
	emails := []string{r.PrimaryEmail}
	if r.BackupEmail != nil && *r.BackupEmail != "" && *r.BackupEmail != r.PrimaryEmail {
		emails = append(emails, *r.BackupEmail)
	}
	return emails
}

// AssetAssignment links one or more assets to a recipient awaiting or having
// given acknowledgment.
type AssetAssignment struct {
	ID        string
	Recipient Recipient

	SignatureToken *string
	TokenExpiresAt time.Time
	State          State

	LastReminderSent *time.Time
	ReminderCount    int

	AssignedAt time.Time
	PDFSent    bool
}

// HasToken reports whether a signing token has been issued.
func (a *AssetAssignment) HasToken() bool {
	return a.SignatureToken != nil && *a.SignatureToken != "" && !a.TokenExpiresAt.IsZero()
}

// Status returns the kind of the current state, treating a nil state as pending.
func (a *AssetAssignment) Status() StateKind {
	if a.State == nil {
		return StatePending
	}
	return a.State.Kind()
}

// TimeToExpiry returns the time left before the token deadline, never negative.
func (a *AssetAssignment) TimeToExpiry(now time.Time) time.Duration {
	remaining := a.TokenExpiresAt.Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clone returns a deep copy safe to hand across goroutines.
func (a *AssetAssignment) Clone() *AssetAssignment {
	if a == nil {
		return nil
	}
	c := *a
	c.Recipient.BackupEmail = ClonePtr(a.Recipient.BackupEmail)
	c.SignatureToken = ClonePtr(a.SignatureToken)
	c.LastReminderSent = ClonePtr(a.LastReminderSent)
	return &c
}

// AssignmentItem joins an assignment to one asset.
type AssignmentItem struct {
	ID           string
	AssignmentID string
	AssetID      string
	AssetCode    string
}

// AssignmentRef is the view of an assignment handed back to signing callers.
type AssignmentRef struct {
	ID             string
	Status         StateKind
	EmployeeName   string
	PrimaryEmail   string
	Office         string
	TokenExpiresAt time.Time
	SignedByEmail  *string
	SignatureDate  *time.Time
	DisputeReason  *string
	Items          []AssignmentItem
}

// Ref builds the caller-facing view of the assignment.
func (a *AssetAssignment) Ref(items []AssignmentItem) AssignmentRef {
	ref := AssignmentRef{
		ID:             a.ID,
		Status:         a.Status(),
		EmployeeName:   a.Recipient.EmployeeName,
		PrimaryEmail:   a.Recipient.PrimaryEmail,
		Office:         a.Recipient.Office,
		TokenExpiresAt: a.TokenExpiresAt,
		Items:          items,
	}
	switch s := a.State.(type) {
	case Signed:
		ref.SignedByEmail = &s.SignerEmail
		ref.SignatureDate = &s.At
	case Disputed:
		ref.DisputeReason = &s.Reason
	}
	return ref
}

// SigningToken is the credential issued for one assignment.
type SigningToken struct {
	Value        string
	AssignmentID string
	ExpiresAt    time.Time
}

// Reminder is what the notification collaborator receives for a due reminder.
type Reminder struct {
	AssignmentID  string
	Recipient     Recipient
	Token         string
	Sequence      int
	RemainingTime time.Duration
	ExpiresAt     time.Time
}

// ClonePtr returns a pointer to a copy of *p, or nil.
func ClonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
