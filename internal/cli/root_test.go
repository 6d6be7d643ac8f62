package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetflow/handover-service/internal/auth"
	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/domain"
)

// memoryEnv forces the in-memory backends so commands run without services.
func memoryEnv(t *testing.T) {
	t.Helper()
	t.Setenv("POSTGRES_DSN", "")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("AUTH_JWT_SECRET", "cli-test-secret")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "handover", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("log-level"))
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"serve"},
		{"sweep", "reminders"},
		{"sweep", "expiry"},
		{"migrate"},
		{"staff-token"},
	} {
		t.Run(strings.Join(path, " "), func(t *testing.T) {
			sub, _, err := cmd.Find(path)
			require.NoError(t, err)
			assert.Equal(t, path[len(path)-1], sub.Name())
		})
	}
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	flag := serve.Flags().Lookup("shutdown-timeout")
	require.NotNil(t, flag)
	assert.Equal(t, "10s", flag.DefValue)
	assert.NotNil(t, serve.Flags().Lookup("no-sweeps"))
}

func TestSweepCommandsRunAgainstMemoryStore(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "sweep", "reminders")
	require.NoError(t, err)
	assert.Contains(t, out, "reminders: selected=0 committed=0 skipped=0 failed=0")

	out, err = execute(t, "sweep", "expiry")
	require.NoError(t, err)
	assert.Contains(t, out, "expiry: selected=0")
}

func TestMigrateListAndMissingDSN(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "migrate", "--list")
	require.NoError(t, err)
	assert.Contains(t, out, "0001_asset_assignments.sql")

	_, err = execute(t, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_DSN")
}

func TestStaffTokenIssuesParseableToken(t *testing.T) {
	memoryEnv(t)

	out, err := execute(t, "staff-token", "--id", "tech-42", "--role", "ADMIN")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "# expires "))

	tokens := auth.NewTokenManager("cli-test-secret", time.Hour, clock.System())
	claims, err := tokens.ParseToken(lines[0])
	require.NoError(t, err)
	assert.Equal(t, "tech-42", claims.SubjectID)
	assert.Equal(t, domain.StaffRoleAdmin, claims.Role)
}

func TestStaffTokenRejectsBadInput(t *testing.T) {
	memoryEnv(t)

	_, err := execute(t, "staff-token", "--id", "x", "--role", "JANITOR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid role")

	_, err = execute(t, "staff-token", "--role", "ADMIN")
	require.Error(t, err)
}
