package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/repository"
)

// AuditService records one audit entry per mutating support event.
type AuditService struct {
	dispatcher events.Dispatcher
	audit      repository.AuditRepository
	logger     *zap.Logger
}

func NewAuditService(dispatcher events.Dispatcher, audit repository.AuditRepository, logger *zap.Logger) *AuditService {
	return &AuditService{dispatcher: dispatcher, audit: audit, logger: logger}
}

var auditActions = map[events.EventType]domain.AuditAction{
	events.EventTicketStatusChanged: domain.AuditTicketUpdate,
	events.EventTicketReplied:       domain.AuditTicketReplied,
	events.EventTicketNoteAdded:     domain.AuditTicketNote,
	events.EventTicketReadChanged:   domain.AuditTicketRead,
	events.EventTicketDeleted:       domain.AuditTicketDeleted,
	events.EventSupportCenterReset:  domain.AuditTicketClearAll,
}

// RegisterHandlers subscribes to every audited event.
func (a *AuditService) RegisterHandlers() {
	if a.dispatcher == nil {
		return
	}
	for eventType := range auditActions {
		a.dispatcher.Subscribe(eventType, a.handle)
	}
}

func (a *AuditService) handle(ctx context.Context, event events.Event) error {
	action, ok := auditActions[event.Type]
	if !ok {
		return nil
	}
	entry := &domain.AuditEntry{
		ActorUID:   event.Actor.UID,
		ActorEmail: event.Actor.Email,
		Action:     action,
		Context:    auditContext(event),
		CreatedAt:  event.Timestamp,
	}
	if err := a.audit.Create(ctx, entry); err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	a.logger.Info("audit",
		zap.String("action", string(action)),
		zap.String("actor_uid", entry.ActorUID),
		zap.Any("context", entry.Context),
	)
	return nil
}

func auditContext(event events.Event) map[string]any {
	ctx := map[string]any{}
	if event.TicketID != "" {
		ctx["ticket_id"] = event.TicketID
	}
	switch p := event.Payload.(type) {
	case events.TicketStatusChangedPayload:
		ctx["status"] = p.NewStatus
		ctx["previous_status"] = p.OldStatus
	case events.TicketRepliedPayload:
		ctx["message_id"] = p.MessageID
		ctx["email_sent"] = p.EmailSent
	case events.TicketReadChangedPayload:
		ctx["read"] = p.Read
	case events.TicketDeletedPayload:
		ctx["messages"] = p.Messages
		ctx["history"] = p.History
	case events.SupportCenterResetPayload:
		ctx["tickets"] = p.Tickets
		ctx["batches"] = p.Batches
	}
	return ctx
}
