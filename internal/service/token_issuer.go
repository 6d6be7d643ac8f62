package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/config"
	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/observability"
	"github.com/assetflow/handover-service/internal/repository"
	apperrors "github.com/assetflow/handover-service/pkg/util/errorutil"
)

// tokenBytes is the entropy of one signing token (256 bits).
const tokenBytes = 32

// TokenGenerator produces a candidate token string.
type TokenGenerator func() (string, error)

// GenerateToken returns 32 random bytes encoded as unpadded URL-safe base64.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// TokenIssuer mints unique signing tokens and attaches them to assignments.
type TokenIssuer struct {
	repo        repository.AssignmentRepository
	clock       clock.Clock
	generate    TokenGenerator
	defaultTTL  time.Duration
	maxAttempts int
	logger      *zap.Logger
	metrics     *observability.Metrics
}

// TokenIssuerDependencies bundles collaborators for the issuer.
type TokenIssuerDependencies struct {
	Repo      repository.AssignmentRepository
	Clock     clock.Clock
	Generator TokenGenerator
	Logger    *zap.Logger
	Metrics   *observability.Metrics
}

// NewTokenIssuer creates the issuer. A nil clock or generator falls back to
// the system clock and GenerateToken.
func NewTokenIssuer(cfg config.SignatureConfig, deps TokenIssuerDependencies) *TokenIssuer {
	issuer := &TokenIssuer{
		repo:        deps.Repo,
		clock:       deps.Clock,
		generate:    deps.Generator,
		defaultTTL:  cfg.TokenTTL,
		maxAttempts: cfg.TokenMaxAttempts,
		logger:      observability.OrNop(deps.Logger),
		metrics:     deps.Metrics,
	}
	if issuer.clock == nil {
		issuer.clock = clock.System()
	}
	if issuer.generate == nil {
		issuer.generate = GenerateToken
	}
	if issuer.maxAttempts <= 0 {
		issuer.maxAttempts = 5
	}
	return issuer
}

// commitFunc persists a candidate token. It returns domain.ErrTokenCollision
// when the store already holds the value.
type commitFunc func(ctx context.Context, token string, expiresAt time.Time) error

// Issue attaches a fresh token to an existing assignment. A ttl <= 0 uses the
// configured default. Collisions are retried up to the attempt limit, after
// which the call fails with ErrTokenGenerationFailed.
func (i *TokenIssuer) Issue(ctx context.Context, assignmentID string, ttl time.Duration) (domain.SigningToken, error) {
	return i.mint(ctx, assignmentID, ttl, func(ctx context.Context, token string, expiresAt time.Time) error {
		return i.repo.AttachToken(ctx, assignmentID, token, expiresAt)
	})
}

// CreateWithToken inserts a new assignment and its items together with a
// fresh token in one write, so a failed issue leaves nothing stored. The
// assignment's token fields are set on success and cleared on failure.
func (i *TokenIssuer) CreateWithToken(ctx context.Context, assignment *domain.AssetAssignment, items []domain.AssignmentItem, ttl time.Duration) (domain.SigningToken, error) {
	token, err := i.mint(ctx, assignment.ID, ttl, func(ctx context.Context, token string, expiresAt time.Time) error {
		assignment.SignatureToken = &token
		assignment.TokenExpiresAt = expiresAt
		return i.repo.Create(ctx, assignment, items)
	})
	if err != nil {
		assignment.SignatureToken = nil
		assignment.TokenExpiresAt = time.Time{}
	}
	return token, err
}

func (i *TokenIssuer) mint(ctx context.Context, assignmentID string, ttl time.Duration, commit commitFunc) (domain.SigningToken, error) {
	if ttl <= 0 {
		ttl = i.defaultTTL
	}
	if ttl <= 0 {
		return domain.SigningToken{}, validationError("token ttl must be positive", map[string]any{"field": "ttl"})
	}

	for attempt := 1; attempt <= i.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.SigningToken{}, err
		}
		candidate, err := i.generate()
		if err != nil {
			i.metrics.RecordTokenAttempt("error")
			return domain.SigningToken{}, apperrors.NewInternalError(fmt.Errorf("%w: %v", domain.ErrTokenGenerationFailed, err))
		}

		exists, err := i.repo.TokenExists(ctx, candidate)
		if err != nil {
			return domain.SigningToken{}, mapError(err)
		}
		if exists {
			i.metrics.RecordTokenAttempt("collision")
			i.logger.Warn("signing token collision", zap.String("assignment_id", assignmentID), zap.Int("attempt", attempt))
			continue
		}

		expiresAt := i.clock.Now().Add(ttl)
		err = commit(ctx, candidate, expiresAt)
		if errors.Is(err, domain.ErrTokenCollision) {
			i.metrics.RecordTokenAttempt("collision")
			i.logger.Warn("signing token collision on write", zap.String("assignment_id", assignmentID), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return domain.SigningToken{}, mapError(err)
		}

		i.metrics.RecordTokenAttempt("issued")
		i.logger.Info("signing token issued",
			zap.String("assignment_id", assignmentID),
			zap.Time("expires_at", expiresAt),
			zap.Int("attempts", attempt))
		return domain.SigningToken{Value: candidate, AssignmentID: assignmentID, ExpiresAt: expiresAt}, nil
	}

	i.logger.Error("signing token generation exhausted retries",
		zap.String("assignment_id", assignmentID),
		zap.Int("max_attempts", i.maxAttempts))
	return domain.SigningToken{}, apperrors.NewInternalError(domain.ErrTokenGenerationFailed)
}
