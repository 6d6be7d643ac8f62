package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/domain"
)

const issuer = "handover-service"

// TokenManager handles issuing and validating staff JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenManager builds a new manager. A nil clock uses wall time.
func NewTokenManager(secret string, ttl time.Duration, clk clock.Clock) *TokenManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if clk == nil {
		clk = clock.System()
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl, clock: clk}
}

// Claims describes JWT payload.
type Claims struct {
	SubjectID string           `json:"sub"`
	Role      domain.StaffRole `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for a staff member.
func (tm *TokenManager) GenerateToken(subjectID string, role domain.StaffRole) (string, domain.StaffToken, error) {
	if subjectID == "" {
		return "", domain.StaffToken{}, errors.New("auth: subject id required")
	}
	if !role.Valid() {
		return "", domain.StaffToken{}, errors.New("auth: unknown staff role")
	}
	now := tm.clock.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		SubjectID: subjectID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", domain.StaffToken{}, err
	}
	return tokenString, domain.StaffToken{SubjectID: subjectID, Role: role, ExpiresAt: expiresAt, IssuedAt: now}, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(tm.clock.Now))
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	if !claims.Role.Valid() {
		return nil, errors.New("invalid token role")
	}
	return claims, nil
}
