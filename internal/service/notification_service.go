package service

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/assetflow/handover-service/internal/config"
	"github.com/assetflow/handover-service/internal/domain"
	"github.com/assetflow/handover-service/internal/events"
	"github.com/assetflow/handover-service/internal/observability"
)

// Notifier delivers messages to recipients. Delivery itself is owned by an
// external mail/PDF system; implementations report success or failure only.
type Notifier interface {
	SendSigningRequest(ctx context.Context, recipient domain.Recipient, token domain.SigningToken) error
	SendReminder(ctx context.Context, reminder domain.Reminder) error
}

// NotificationService handles emitting notifications for domain events.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.NotificationConfig
}

var _ Notifier = (*NotificationService)(nil)

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, cfg config.NotificationConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     observability.OrNop(logger),
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventAssignmentCreated, n.handleAssignmentCreated)
	n.dispatcher.Subscribe(events.EventAssignmentSigned, n.handleAssignmentFinalized)
	n.dispatcher.Subscribe(events.EventAssignmentDisputed, n.handleAssignmentFinalized)
	n.dispatcher.Subscribe(events.EventAssignmentExpired, n.handleAssignmentFinalized)
	n.dispatcher.Subscribe(events.EventAssignmentReminded, n.handleAssignmentReminded)
}

// SendSigningRequest sends the initial link to every recipient address.
func (n *NotificationService) SendSigningRequest(ctx context.Context, recipient domain.Recipient, token domain.SigningToken) error {
	link, err := n.SigningLink(token.Value)
	if err != nil {
		return err
	}
	for _, to := range recipient.Emails() {
		n.sendEmailNotificationStub(ctx, to, "asset handover signature requested", token.AssignmentID, link)
	}
	return nil
}

// SendReminder re-sends the link with the remaining time.
func (n *NotificationService) SendReminder(ctx context.Context, reminder domain.Reminder) error {
	link, err := n.SigningLink(reminder.Token)
	if err != nil {
		return err
	}
	for _, to := range reminder.Recipient.Emails() {
		n.sendEmailNotificationStub(ctx, to, "reminder: asset handover awaiting signature", reminder.AssignmentID, link)
	}
	n.logger.Info("reminder dispatched",
		zap.String("assignment_id", reminder.AssignmentID),
		zap.Int("sequence", reminder.Sequence),
		zap.Duration("remaining", reminder.RemainingTime.Truncate(time.Minute)))
	return nil
}

// SigningLink renders the public URL for a token.
func (n *NotificationService) SigningLink(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", errors.New("notification: empty signing token")
	}
	base := strings.TrimRight(n.cfg.SignBaseURL, "/")
	if base == "" {
		return "", errors.New("notification: SIGN_BASE_URL not configured")
	}
	return base + "/" + url.PathEscape(token), nil
}

func (n *NotificationService) handleAssignmentCreated(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.AssignmentCreatedPayload)
	if !ok {
		return errors.New("notification: unexpected assignment.created payload")
	}
	n.logger.Info("AssignmentCreated", zap.String("assignment_id", event.AssignmentID), zap.Int("assets", len(payload.AssetIDs)))
	return n.SendSigningRequest(ctx, payload.Recipient, domain.SigningToken{
		Value:        payload.Token,
		AssignmentID: event.AssignmentID,
		ExpiresAt:    payload.ExpiresAt,
	})
}

func (n *NotificationService) handleAssignmentFinalized(ctx context.Context, event events.Event) error {
	n.logger.Info("AssignmentFinalized", zap.String("assignment_id", event.AssignmentID), zap.String("event_type", string(event.Type)))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) handleAssignmentReminded(ctx context.Context, event events.Event) error {
	n.logger.Debug("AssignmentReminded", zap.String("assignment_id", event.AssignmentID), zap.Any("payload", event.Payload))
	n.sendWebhookNotificationStub(ctx, event)
	return nil
}

func (n *NotificationService) sendEmailNotificationStub(_ context.Context, to, subject, assignmentID, link string) {
	if strings.TrimSpace(n.cfg.EmailFrom) == "" {
		return
	}
	n.logger.Debug("sendEmailNotificationStub",
		zap.String("from", n.cfg.EmailFrom),
		zap.String("to", to),
		zap.String("subject", subject),
		zap.String("assignment_id", assignmentID),
		zap.Bool("has_link", link != ""))
}

func (n *NotificationService) sendWebhookNotificationStub(_ context.Context, event events.Event) {
	if strings.TrimSpace(n.cfg.WebhookURL) == "" {
		return
	}
	n.logger.Debug("sendWebhookNotificationStub",
		zap.String("url", n.cfg.WebhookURL),
		zap.String("assignment_id", event.AssignmentID),
		zap.String("event_type", string(event.Type)))
}
