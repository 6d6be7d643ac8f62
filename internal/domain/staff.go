package domain

import "time"

// StaffRole enumerates IT staff capabilities for handover administration.
type StaffRole string

const (
	StaffRoleAdmin      StaffRole = "ADMIN"
	StaffRoleTechnician StaffRole = "TECHNICIAN"
	StaffRoleAuditor    StaffRole = "AUDITOR"
)

// Valid reports whether the role is known.
func (r StaffRole) Valid() bool {
	switch r {
	case StaffRoleAdmin, StaffRoleTechnician, StaffRoleAuditor:
		return true
	}
	return false
}

// CanIssueHandovers reports whether the role may create assignments.
func (r StaffRole) CanIssueHandovers() bool {
	return r == StaffRoleAdmin || r == StaffRoleTechnician
}

// StaffToken is the metadata of an issued staff bearer token.
type StaffToken struct {
	SubjectID string
	Role      StaffRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}

// StaffPrincipal identifies the authenticated staff member behind a request.
type StaffPrincipal struct {
	ID   string
	Role StaffRole
}
