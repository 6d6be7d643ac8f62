package testfixtures

import (
	"fmt"
	"time"

	"github.com/assetflow/handover-service/internal/domain"
)

// Recipient returns a deterministic recipient snapshot for index n.
func Recipient(n int) domain.Recipient {
	backup := fmt.Sprintf("employee%d.backup@example.com", n)
	return domain.Recipient{
		EmployeeID:         fmt.Sprintf("emp-%03d", n),
		EmployeeName:       fmt.Sprintf("Employee %03d", n),
		EmployeeExternalID: fmt.Sprintf("E%05d", n),
		PrimaryEmail:       fmt.Sprintf("employee%d@example.com", n),
		BackupEmail:        &backup,
		Office:             "Main Campus",
	}
}

// Assignment returns a freshly created assignment without a token.
func Assignment(n int, assignedAt time.Time) *domain.AssetAssignment {
	if assignedAt.IsZero() {
		assignedAt = ReferenceTime()
	}
	return &domain.AssetAssignment{
		ID:         fmt.Sprintf("asg-%03d", n),
		Recipient:  Recipient(n),
		State:      domain.Pending{},
		AssignedAt: assignedAt,
	}
}

// Items links the assignment to one asset per code.
func Items(assignmentID string, codes ...string) []domain.AssignmentItem {
	items := make([]domain.AssignmentItem, 0, len(codes))
	for i, code := range codes {
		items = append(items, domain.AssignmentItem{
			ID:           fmt.Sprintf("%s-item-%d", assignmentID, i),
			AssignmentID: assignmentID,
			AssetID:      fmt.Sprintf("asset-%s", code),
			AssetCode:    code,
		})
	}
	return items
}
