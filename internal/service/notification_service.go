package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/repository"
)

const (
	replyNotificationTitle = "Nueva respuesta de Soporte"
	replyNotificationLink  = "/support"
)

// NotificationService turns support events into in-app notifications for
// the requester.
type NotificationService struct {
	dispatcher    events.Dispatcher
	notifications repository.NotificationRepository
	logger        *zap.Logger
	now           func() time.Time
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, notifications repository.NotificationRepository, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher:    dispatcher,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketReplied, n.handleTicketReplied)
	n.dispatcher.Subscribe(events.EventTicketStatusChanged, n.handleTicketStatusChanged)
}

func (n *NotificationService) handleTicketReplied(ctx context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TicketRepliedPayload)
	if !ok {
		return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
	}
	if payload.Internal || payload.RequesterUID == "" {
		return nil
	}

	notification := &domain.Notification{
		RecipientUID: payload.RequesterUID,
		Title:        replyNotificationTitle,
		Body:         fmt.Sprintf("Han respondido a tu ticket: %s", payload.Subject),
		Kind:         domain.NotificationKindInfo,
		Link:         replyNotificationLink,
		CreatedAt:    n.now(),
	}
	if err := n.notifications.Create(ctx, notification); err != nil {
		return fmt.Errorf("create reply notification: %w", err)
	}
	n.logger.Info("TicketReplied notification created",
		zap.String("ticket_id", event.TicketID),
		zap.String("recipient_uid", payload.RequesterUID),
	)
	return nil
}

func (n *NotificationService) handleTicketStatusChanged(_ context.Context, event events.Event) error {
	n.logger.Info("TicketStatusChanged", zap.String("ticket_id", event.TicketID), zap.Any("payload", event.Payload))
	return nil
}
