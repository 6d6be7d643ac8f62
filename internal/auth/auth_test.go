package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/testfixtures"
	apperrors "github.com/assetflow/handover-service/pkg/util/errorutil"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	clk := testfixtures.NewClock(time.Time{})
	tm := NewTokenManager("secret", time.Hour, clk)

	raw, meta, err := tm.GenerateToken("staff-1", domain.StaffRoleTechnician)
	require.NoError(t, err)
	assert.True(t, meta.ExpiresAt.Equal(clk.Now().Add(time.Hour)))

	claims, err := tm.ParseToken(raw)
	require.NoError(t, err)
	assert.Equal(t, "staff-1", claims.SubjectID)
	assert.Equal(t, domain.StaffRoleTechnician, claims.Role)

	clk.Advance(2 * time.Hour)
	_, err = tm.ParseToken(raw)
	require.Error(t, err)
}

func TestTokenManager_Rejects(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, nil)
	_, _, err := tm.GenerateToken("", domain.StaffRoleAdmin)
	require.Error(t, err)
	_, _, err = tm.GenerateToken("staff-1", domain.StaffRole("JANITOR"))
	require.Error(t, err)

	raw, _, err := NewTokenManager("other-secret", time.Hour, nil).GenerateToken("staff-1", domain.StaffRoleAdmin)
	require.NoError(t, err)
	_, err = tm.ParseToken(raw)
	require.Error(t, err)
}

func newAuthApp(tm *TokenManager, roles ...domain.StaffRole) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.SendStatus(fe.Code)
			}
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	app.Get("/protected", NewAuthMiddleware(tm).Handle, RequireStaffRole(roles...), func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return c.SendStatus(http.StatusInternalServerError)
		}
		return c.SendString(p.ID)
	})
	return app
}

func TestAuthMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", time.Hour, nil)
	app := newAuthApp(tm, domain.StaffRoleAdmin, domain.StaffRoleTechnician)
	techToken, _, err := tm.GenerateToken("tech-1", domain.StaffRoleTechnician)
	require.NoError(t, err)
	auditorToken, _, err := tm.GenerateToken("aud-1", domain.StaffRoleAuditor)
	require.NoError(t, err)

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not-a-jwt", http.StatusUnauthorized},
		{"insufficient role", "Bearer " + auditorToken, http.StatusForbidden},
		{"allowed", "Bearer " + techToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
}
