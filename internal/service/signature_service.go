package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/config"
	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/events"
	"github.com/assetflow/handover-service/internal/observability"
	"github.com/assetflow/handover-service/internal/repository"
)

// SignatureService resolves signing links and applies sign or dispute.
// A token is the only accepted credential; assignment ids are never used.
type SignatureService struct {
	repo       repository.AssignmentRepository
	clock      clock.Clock
	cfg        config.SignatureConfig
	dispatcher events.Dispatcher
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// SignatureDependencies bundles collaborators for the signature service.
type SignatureDependencies struct {
	Repo       repository.AssignmentRepository
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewSignatureService creates the service.
func NewSignatureService(cfg config.SignatureConfig, deps SignatureDependencies) *SignatureService {
	s := &SignatureService{
		repo:       deps.Repo,
		clock:      deps.Clock,
		cfg:        cfg,
		dispatcher: deps.Dispatcher,
		logger:     observability.OrNop(deps.Logger),
		metrics:    deps.Metrics,
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	return s
}

// ResolveToken returns the assignment behind a signing token. Finalized
// assignments stay resolvable so a receipt can be re-displayed.
func (s *SignatureService) ResolveToken(ctx context.Context, token string) (domain.AssignmentRef, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.AssignmentRef{}, mapError(domain.ErrTokenNotFound)
	}
	assignment, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return domain.AssignmentRef{}, mapError(err)
	}
	return s.ref(ctx, assignment)
}

// SignViaToken records the recipient's acknowledgment.
func (s *SignatureService) SignViaToken(ctx context.Context, token, signatureData, signerEmail string) (domain.AssignmentRef, error) {
	if err := s.validateSignature(signatureData, signerEmail); err != nil {
		s.metrics.RecordTransition(string(domain.TransitionSign), "invalid")
		return domain.AssignmentRef{}, err
	}
	signerEmail = strings.TrimSpace(signerEmail)
	assignment, err := s.transition(ctx, token, func(now time.Time) domain.Transition {
		return domain.SignTransition(signatureData, signerEmail, now)
	})
	if err != nil {
		return domain.AssignmentRef{}, err
	}

	signed, _ := assignment.State.(domain.Signed)
	s.publishEvent(ctx, events.Event{
		Type:         events.EventAssignmentSigned,
		AssignmentID: assignment.ID,
		Timestamp:    signed.At,
		Payload:      events.AssignmentSignedPayload{SignerEmail: signed.SignerEmail, SignedAt: signed.At},
	})
	return s.ref(ctx, assignment)
}

// DisputeViaToken records the recipient's objection. The reason is stored
// verbatim; only its trimmed length is bounded.
func (s *SignatureService) DisputeViaToken(ctx context.Context, token, reason string) (domain.AssignmentRef, error) {
	if err := s.validateReason(reason); err != nil {
		s.metrics.RecordTransition(string(domain.TransitionDispute), "invalid")
		return domain.AssignmentRef{}, err
	}
	assignment, err := s.transition(ctx, token, func(now time.Time) domain.Transition {
		return domain.DisputeTransition(reason, now)
	})
	if err != nil {
		return domain.AssignmentRef{}, err
	}

	disputed, _ := assignment.State.(domain.Disputed)
	s.publishEvent(ctx, events.Event{
		Type:         events.EventAssignmentDisputed,
		AssignmentID: assignment.ID,
		Timestamp:    disputed.At,
		Payload:      events.AssignmentDisputedPayload{Reason: disputed.Reason, DisputedAt: disputed.At},
	})
	return s.ref(ctx, assignment)
}

// transition resolves the token, checks the state machine and commits through
// the repository compare-and-set. A lost race is retried once from a fresh
// read; a second loss is classified by the row's resulting state.
func (s *SignatureService) transition(ctx context.Context, token string, build func(time.Time) domain.Transition) (*domain.AssetAssignment, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, mapError(domain.ErrTokenNotFound)
	}

	var kind domain.TransitionKind
	for attempt := 0; attempt < 2; attempt++ {
		current, err := s.repo.GetByToken(ctx, token)
		if err != nil {
			return nil, mapError(err)
		}
		tr := build(s.clock.Now())
		kind = tr.Kind
		if err := tr.Check(current); err != nil {
			s.metrics.RecordTransition(string(kind), outcomeOf(err))
			return nil, mapError(err)
		}

		updated, err := s.repo.ApplyTransition(ctx, current.ID, tr)
		if err == nil {
			s.metrics.RecordTransition(string(kind), "committed")
			s.logger.Info("assignment transition committed",
				zap.String("assignment_id", updated.ID),
				zap.String("transition", string(kind)),
				zap.String("state", string(updated.Status())))
			return updated, nil
		}
		if !errors.Is(err, domain.ErrConcurrencyConflict) {
			return nil, mapError(err)
		}
		s.logger.Debug("assignment transition lost race",
			zap.String("assignment_id", current.ID),
			zap.String("transition", string(kind)),
			zap.Int("attempt", attempt+1))
	}

	final, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, mapError(err)
	}
	cause := build(s.clock.Now()).Check(final)
	if cause == nil {
		cause = domain.ErrConcurrencyConflict
	}
	s.metrics.RecordTransition(string(kind), outcomeOf(cause))
	return nil, mapError(cause)
}

func (s *SignatureService) validateSignature(signatureData, signerEmail string) error {
	if strings.TrimSpace(signatureData) == "" {
		return validationError("signature data is required", map[string]any{"field": "signature_data", "constraint": "required"})
	}
	if len(signatureData) > s.cfg.MaxPayloadBytes {
		return payloadTooLargeError("signature_data", s.cfg.MaxPayloadBytes, len(signatureData))
	}
	email := strings.TrimSpace(signerEmail)
	if email == "" {
		return validationError("signer email is required", map[string]any{"field": "signer_email", "constraint": "required"})
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return validationError("signer email is invalid", map[string]any{"field": "signer_email", "constraint": "email"})
	}
	return nil
}

func (s *SignatureService) validateReason(reason string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(reason))
	if length < s.cfg.DisputeReasonMinLength {
		return validationError("dispute reason too short", map[string]any{
			"field":      "reason",
			"constraint": "min_length",
			"min_length": s.cfg.DisputeReasonMinLength,
			"length":     length,
		})
	}
	if length > s.cfg.DisputeReasonMaxLength {
		return validationError("dispute reason too long", map[string]any{
			"field":      "reason",
			"constraint": "max_length",
			"max_length": s.cfg.DisputeReasonMaxLength,
			"length":     length,
		})
	}
	return nil
}

func (s *SignatureService) ref(ctx context.Context, assignment *domain.AssetAssignment) (domain.AssignmentRef, error) {
	items, err := s.repo.ListItems(ctx, assignment.ID)
	if err != nil {
		return domain.AssignmentRef{}, mapError(err)
	}
	return assignment.Ref(items), nil
}

func (s *SignatureService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.clock.Now()
	}
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, domain.ErrTokenExpired):
		return "expired"
	case errors.Is(err, domain.ErrAlreadyFinalized):
		return "finalized"
	case errors.Is(err, domain.ErrTokenNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, domain.ErrNotYetExpired):
		return "not_due"
	default:
		return "error"
	}
}
