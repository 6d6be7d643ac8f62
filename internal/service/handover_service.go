package service

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/clock"
	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/events"
	"github.com/assetflow/handover-service/internal/observability"
	"github.com/assetflow/handover-service/internal/repository"
	apperrors "github.com/assetflow/handover-service/pkg/util/errorutil"
)

// HandoverService creates assignments and hands them to the token issuer.
type HandoverService struct {
	repo       repository.AssignmentRepository
	issuer     *TokenIssuer
	clock      clock.Clock
	dispatcher events.Dispatcher
	logger     *zap.Logger
}

// HandoverDependencies bundles collaborators.
type HandoverDependencies struct {
	Repo       repository.AssignmentRepository
	Issuer     *TokenIssuer
	Clock      clock.Clock
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// HandoverAssetInput names one asset being handed over.
type HandoverAssetInput struct {
	AssetID   string
	AssetCode string
}

// HandoverCreateInput describes a handover to a single recipient.
type HandoverCreateInput struct {
	Recipient domain.Recipient
	Assets    []HandoverAssetInput
	TokenTTL  time.Duration
}

// Handover is an assignment together with its items and, on creation, the
// signing token.
type Handover struct {
	Assignment *domain.AssetAssignment
	Items      []domain.AssignmentItem
	Token      *domain.SigningToken
}

// NewHandoverService creates the service.
func NewHandoverService(deps HandoverDependencies) *HandoverService {
	s := &HandoverService{
		repo:       deps.Repo,
		issuer:     deps.Issuer,
		clock:      deps.Clock,
		dispatcher: deps.Dispatcher,
		logger:     observability.OrNop(deps.Logger),
	}
	if s.clock == nil {
		s.clock = clock.System()
	}
	return s
}

// CreateHandover records the assignment together with its signing token.
// Nothing is stored when the token cannot be issued.
func (s *HandoverService) CreateHandover(ctx context.Context, actor *domain.StaffPrincipal, input HandoverCreateInput) (*Handover, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if !actor.Role.CanIssueHandovers() {
		return nil, apperrors.NewForbidden("insufficient role to create handovers")
	}
	recipient, err := normalizeRecipient(input.Recipient)
	if err != nil {
		return nil, err
	}
	if len(input.Assets) == 0 {
		return nil, validationError("at least one asset is required", map[string]any{"field": "assets", "constraint": "required"})
	}

	assignment := &domain.AssetAssignment{
		ID:         uuid.NewString(),
		Recipient:  recipient,
		State:      domain.Pending{},
		AssignedAt: s.clock.Now(),
	}
	items := make([]domain.AssignmentItem, 0, len(input.Assets))
	seenCodes := make(map[string]bool, len(input.Assets))
	seenIDs := make(map[string]bool, len(input.Assets))
	for i, asset := range input.Assets {
		id := strings.TrimSpace(asset.AssetID)
		code := strings.TrimSpace(asset.AssetCode)
		if code == "" || id == "" {
			return nil, validationError("asset id and code are required", map[string]any{"field": "assets", "index": i})
		}
		if seenIDs[id] {
			return nil, validationError("duplicate asset id", map[string]any{"field": "assets", "asset_id": id})
		}
		if seenCodes[code] {
			return nil, validationError("duplicate asset code", map[string]any{"field": "assets", "asset_code": code})
		}
		seenIDs[id], seenCodes[code] = true, true
		items = append(items, domain.AssignmentItem{
			ID:           uuid.NewString(),
			AssignmentID: assignment.ID,
			AssetID:      id,
			AssetCode:    code,
		})
	}

	token, err := s.issuer.CreateWithToken(ctx, assignment, items, input.TokenTTL)
	if err != nil {
		return nil, err
	}

	assetIDs := make([]string, 0, len(items))
	for _, item := range items {
		assetIDs = append(assetIDs, item.AssetID)
	}
	s.publishEvent(ctx, events.Event{
		Type:         events.EventAssignmentCreated,
		AssignmentID: assignment.ID,
		Payload: events.AssignmentCreatedPayload{
			Recipient: recipient,
			Token:     token.Value,
			ExpiresAt: token.ExpiresAt,
			AssetIDs:  assetIDs,
		},
	})
	s.logger.Info("handover created",
		zap.String("assignment_id", assignment.ID),
		zap.String("staff_id", actor.ID),
		zap.Int("items", len(items)))
	return &Handover{Assignment: assignment, Items: items, Token: &token}, nil
}

// GetHandover returns the assignment with its items. The token is not included.
func (s *HandoverService) GetHandover(ctx context.Context, actor *domain.StaffPrincipal, id string) (*Handover, error) {
	if actor == nil {
		return nil, apperrors.NewUnauthorized("staff required")
	}
	if !actor.Role.Valid() {
		return nil, apperrors.NewForbidden("unknown staff role")
	}
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.NewNotFound("assignment", map[string]any{"assignment_id": id})
		}
		return nil, mapError(err)
	}
	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	return &Handover{Assignment: assignment, Items: items}, nil
}

func normalizeRecipient(r domain.Recipient) (domain.Recipient, error) {
	r.EmployeeID = strings.TrimSpace(r.EmployeeID)
	r.EmployeeName = strings.TrimSpace(r.EmployeeName)
	r.EmployeeExternalID = strings.TrimSpace(r.EmployeeExternalID)
	r.PrimaryEmail = strings.ToLower(strings.TrimSpace(r.PrimaryEmail))
	r.Office = strings.TrimSpace(r.Office)
	if r.EmployeeID == "" || r.EmployeeName == "" {
		return r, validationError("employee id and name are required", map[string]any{"field": "recipient", "constraint": "required"})
	}
	if _, err := mail.ParseAddress(r.PrimaryEmail); err != nil {
		return r, validationError("primary email is invalid", map[string]any{"field": "primary_email", "constraint": "email"})
	}
	if r.BackupEmail != nil {
		backup := strings.ToLower(strings.TrimSpace(*r.BackupEmail))
		if backup == "" {
			r.BackupEmail = nil
			return r, nil
		}
		if _, err := mail.ParseAddress(backup); err != nil {
			return r, validationError("backup email is invalid", map[string]any{"field": "backup_email", "constraint": "email"})
		}
		r.BackupEmail = &backup
	}
	return r, nil
}

func (s *HandoverService) publishEvent(ctx context.Context, event events.Event) {
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
