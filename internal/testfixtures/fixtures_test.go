package testfixtures

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetflow/handover-service/internal/domain"
)

func TestAssignmentFixture(t *testing.T) {
	a := Assignment(7, time.Time{})
	assert.Equal(t, "asg-007", a.ID)
	assert.Equal(t, domain.StatePending, a.Status())
	assert.False(t, a.HasToken())
	assert.True(t, a.AssignedAt.Equal(ReferenceTime()))
	require.NotNil(t, a.Recipient.BackupEmail)
	assert.Len(t, a.Recipient.Emails(), 2)
}

func TestItemsFixture(t *testing.T) {
	items := Items("asg-001", "LT-100", "MON-200")
	require.Len(t, items, 2)
	assert.Equal(t, "asg-001", items[1].AssignmentID)
	assert.Equal(t, "MON-200", items[1].AssetCode)
	assert.NotEqual(t, items[0].ID, items[1].ID)
}
