package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/assetflow/handover-service/internal/domain"
	apperrors "github.com/assetflow/handover-service/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// AuthMiddleware validates staff bearer tokens. The staff directory is owned
// elsewhere, so the principal comes from the verified claims alone.
type AuthMiddleware struct {
	tokens *TokenManager
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(strings.TrimSpace(parts[1]))
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &domain.StaffPrincipal{ID: claims.SubjectID, Role: claims.Role})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated staff member.
func PrincipalFromContext(c *fiber.Ctx) (*domain.StaffPrincipal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*domain.StaffPrincipal)
	return principal, ok
}
