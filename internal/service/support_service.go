package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/export"
	"github.com/repaart/support-desk/internal/notify"
	"github.com/repaart/support-desk/internal/observability"
	"github.com/repaart/support-desk/internal/repository"
	"github.com/repaart/support-desk/internal/richtext"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

// Error codes and messages surfaced to the admin.
const (
	codeStatusUpdateFailed = "STATUS_UPDATE_FAILED"
	codeReplyFailed        = "REPLY_FAILED"
	codeReadUpdateFailed   = "READ_UPDATE_FAILED"
	codeDeleteFailed       = "DELETE_FAILED"
	codeResetFailed        = "RESET_FAILED"

	msgStatusUpdateFailed = "no se pudo actualizar el estado"
	msgReplyFailed        = "no se pudo enviar la respuesta"
	msgReadUpdateFailed   = "no se pudo actualizar la lectura"
	msgDeleteFailed       = "no se pudo eliminar el ticket"
	msgResetFailed        = "no se pudo reiniciar el centro de soporte"
)

// SupportService implements the admin support desk workflows.
type SupportService struct {
	store      repository.Store
	mailer     notify.Mailer
	sanitizer  *richtext.Sanitizer
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	window     int
	now        func() time.Time
}

// SupportDependencies bundles collaborators for the support service.
type SupportDependencies struct {
	Store        repository.Store
	Mailer       notify.Mailer
	Sanitizer    *richtext.Sanitizer
	Dispatcher   events.Dispatcher
	Metrics      *observability.Metrics
	Logger       *zap.Logger
	TicketWindow int
	Clock        func() time.Time
}

// ReplyInput describes a reply or internal note.
type ReplyInput struct {
	TicketID string
	Text     string
	Internal bool
}

// ReplyResult reports what a reply produced.
type ReplyResult struct {
	Message   domain.TicketMessage
	Ticket    domain.Ticket
	EmailSent bool
}

// DeleteReport counts what a delete committed.
type DeleteReport struct {
	Tickets  int `json:"tickets"`
	Messages int `json:"messages"`
	History  int `json:"history"`
	Batches  int `json:"batches"`
}

// NewSupportService constructs the service.
func NewSupportService(deps SupportDependencies) *SupportService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	mailer := deps.Mailer
	if mailer == nil {
		mailer = notify.NewLogMailer(logger)
	}
	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = richtext.NewSanitizer()
	}
	window := deps.TicketWindow
	if window <= 0 {
		window = 50
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &SupportService{
		store:      deps.Store,
		mailer:     mailer,
		sanitizer:  sanitizer,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		window:     window,
		now:        clock,
	}
}

// Window is the number of recent tickets the desk works with.
func (s *SupportService) Window() int {
	return s.window
}

// ListRecent returns the newest tickets, newest first.
func (s *SupportService) ListRecent(ctx context.Context) ([]domain.Ticket, error) {
	tickets, err := s.store.Repositories().Tickets.ListRecent(ctx, s.window)
	if err != nil {
		return nil, fmt.Errorf("list recent tickets: %w", err)
	}
	return tickets, nil
}

func (s *SupportService) GetTicket(ctx context.Context, id string) (*domain.Ticket, error) {
	ticket, err := s.store.Repositories().Tickets.GetByID(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, id)
	}
	return ticket, nil
}

// ListMessages returns the thread of a ticket in creation order.
func (s *SupportService) ListMessages(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	msgs, err := s.store.Repositories().Messages.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list messages of %s: %w", ticketID, err)
	}
	return msgs, nil
}

// ListHistory returns the status timeline of a ticket.
func (s *SupportService) ListHistory(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	if _, err := s.GetTicket(ctx, ticketID); err != nil {
		return nil, err
	}
	entries, err := s.store.Repositories().History.ListByTicket(ctx, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list history of %s: %w", ticketID, err)
	}
	return entries, nil
}

// ChangeStatus sets a new status and appends the history entry in one
// transaction. Any status may follow any other.
func (s *SupportService) ChangeStatus(ctx context.Context, admin *domain.Admin, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	if strings.TrimSpace(string(status)) == "" {
		return nil, apperrors.NewValidationError("status required", map[string]any{"field": "status"})
	}
	next, err := domain.ParseStatus(string(status))
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "status", "value": status})
	}

	var (
		updated  *domain.Ticket
		previous domain.TicketStatus
	)
	err = s.store.WithinTx(ctx, func(repos repository.Repositories) error {
		ticket, err := repos.Tickets.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		previous = ticket.Status
		now := s.now()
		if err := repos.Tickets.UpdateStatus(ctx, id, next, now); err != nil {
			return err
		}
		if err := s.recordStatusChange(ctx, repos.History, admin, id, previous, next, now); err != nil {
			return err
		}
		ticket.Status = next
		ticket.LastUpdated = &now
		if next == domain.TicketStatusResolved {
			ticket.ResolvedAt = &now
		}
		updated = ticket
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		s.logger.Error("status change failed", zap.String("ticket_id", id), zap.Error(err))
		return nil, apperrors.NewOperationFailed(codeStatusUpdateFailed, msgStatusUpdateFailed, err)
	}

	s.metrics.RecordStatusChange(next)
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketStatusChanged,
		TicketID: id,
		Actor:    events.ActorFrom(admin),
		Payload: events.TicketStatusChangedPayload{
			OldStatus: previous,
			NewStatus: next,
			ChangedBy: admin.ActorLabel(),
		},
	})
	return updated, nil
}

// Reply posts a public reply or an internal note. The write is undone if
// the reply email cannot be dispatched.
func (s *SupportService) Reply(ctx context.Context, admin *domain.Admin, input ReplyInput) (*ReplyResult, error) {
	kind := replyKind(input.Internal)
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, apperrors.NewValidationError("reply text required", map[string]any{"field": "text"})
	}
	body := s.sanitizer.Render(text)
	if body == "" {
		return nil, apperrors.NewValidationError("reply text is empty after sanitizing", map[string]any{"field": "text"})
	}

	ticket, err := s.GetTicket(ctx, input.TicketID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	msg := domain.TicketMessage{
		TicketID:   ticket.ID,
		Text:       body,
		SenderID:   admin.ID(),
		SenderRole: domain.SenderRoleAdmin,
		CreatedAt:  now,
		IsInternal: input.Internal,
	}
	sendEmail := !input.Internal && strings.TrimSpace(ticket.Email) != ""

	var (
		before domain.ReplyFields
		after  domain.ReplyFields
	)
	sg := newSaga("reply", s.logger).
		step("persist reply",
			func(ctx context.Context) error {
				return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
					current, err := repos.Tickets.GetForUpdate(ctx, ticket.ID)
					if err != nil {
						return err
					}
					before = current.ReplyFields()
					after = applyReply(before, body, input.Internal, now)
					if err := repos.Messages.Create(ctx, &msg); err != nil {
						return err
					}
					return repos.Tickets.UpdateReplyFields(ctx, ticket.ID, after)
				})
			},
			func(ctx context.Context) error {
				return s.store.WithinTx(ctx, func(repos repository.Repositories) error {
					if err := repos.Messages.Delete(ctx, ticket.ID, msg.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
						return err
					}
					current, err := repos.Tickets.GetForUpdate(ctx, ticket.ID)
					if errors.Is(err, repository.ErrNotFound) {
						return nil
					}
					if err != nil {
						return err
					}
					return repos.Tickets.UpdateReplyFields(ctx, ticket.ID, current.ReplyFields().Revert(before, after))
				})
			})
	if sendEmail {
		sg.step("send reply email", func(ctx context.Context) error {
			return s.mailer.SendTicketReply(ctx, notify.TicketReplyEmail{
				To:              ticket.Email,
				Subject:         ticket.Subject,
				Reply:           body,
				OriginalMessage: ticket.Message,
				TicketID:        ticket.ID,
			})
		}, nil)
	}

	if err := sg.run(ctx); err != nil {
		s.metrics.RecordReply(kind, "failed")
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": ticket.ID})
		}
		s.logger.Error("reply failed", zap.String("ticket_id", ticket.ID), zap.Bool("internal", input.Internal), zap.Error(err))
		return nil, apperrors.NewOperationFailed(codeReplyFailed, msgReplyFailed, err)
	}
	s.metrics.RecordReply(kind, "ok")

	eventType := events.EventTicketReplied
	if input.Internal {
		eventType = events.EventTicketNoteAdded
	}
	s.publishEvent(ctx, events.Event{
		Type:     eventType,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(admin),
		Payload: events.TicketRepliedPayload{
			MessageID:      msg.ID,
			Subject:        ticket.Subject,
			RequesterUID:   ticket.UID,
			RequesterEmail: ticket.Email,
			Internal:       input.Internal,
			EmailSent:      sendEmail,
			BodyPreview:    richtext.Preview(body, 120),
		},
	})

	result := &ReplyResult{Message: msg, Ticket: *ticket, EmailSent: sendEmail}
	result.Ticket.Status = after.Status
	result.Ticket.Response = after.Response
	result.Ticket.RespondedAt = after.RespondedAt
	result.Ticket.Read = after.Read
	result.Ticket.LastMessageAt = after.LastMessageAt
	return result, nil
}

// applyReply computes the ticket fields after a reply. An internal note
// keeps status, response and response time.
func applyReply(before domain.ReplyFields, body string, internal bool, now time.Time) domain.ReplyFields {
	after := before
	after.Read = true
	after.LastMessageAt = &now
	if internal {
		return after
	}
	response := body
	after.Status = domain.TicketStatusPendingUser
	after.Response = &response
	after.RespondedAt = &now
	return after
}

// SetRead stores the read flag of a ticket.
func (s *SupportService) SetRead(ctx context.Context, admin *domain.Admin, id string, read bool) error {
	if err := s.store.Repositories().Tickets.SetRead(ctx, id, read); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
		}
		s.logger.Error("read update failed", zap.String("ticket_id", id), zap.Error(err))
		s.metrics.RecordReadToggle("failed")
		return apperrors.NewOperationFailed(codeReadUpdateFailed, msgReadUpdateFailed, err)
	}
	s.metrics.RecordReadToggle("ok")
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketReadChanged,
		TicketID: id,
		Actor:    events.ActorFrom(admin),
		Payload:  events.TicketReadChangedPayload{Read: read},
	})
	return nil
}

// Export writes the filtered recent tickets in the requested format.
func (s *SupportService) Export(ctx context.Context, filter aggregator.Filter, format export.Format, w io.Writer) error {
	tickets, err := s.ListRecent(ctx)
	if err != nil {
		return err
	}
	return export.Write(w, format, aggregator.Apply(tickets, filter))
}

func (s *SupportService) recordStatusChange(ctx context.Context, history repository.TicketHistoryRepository, admin *domain.Admin, ticketID string, previous, next domain.TicketStatus, at time.Time) error {
	entry := &domain.StatusHistoryEntry{
		TicketID:       ticketID,
		Status:         next,
		PreviousStatus: previous,
		ChangedBy:      admin.ActorLabel(),
		ChangedAt:      at,
	}
	return history.Create(ctx, entry)
}

func (s *SupportService) publishEvent(ctx context.Context, event events.Event) {
	if s.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}
	_ = s.dispatcher.Publish(ctx, event)
}

func mapNotFound(err error, id string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	return fmt.Errorf("get ticket %s: %w", id, err)
}

func replyKind(internal bool) string {
	if internal {
		return "internal"
	}
	return "public"
}
