package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/repository"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

// chunkedDeleter stages deletes into batches no larger than the store
// ceiling and commits a batch only when it is full or on flush. Staging
// order is commit order, so children staged before their ticket are never
// committed after it.
type chunkedDeleter struct {
	writer  repository.BatchWriter
	limit   int
	batch   repository.WriteBatch
	pending DeleteReport
	done    DeleteReport
}

func newChunkedDeleter(writer repository.BatchWriter) *chunkedDeleter {
	limit := writer.BatchLimit()
	if limit <= 0 {
		limit = repository.DefaultBatchLimit
	}
	return &chunkedDeleter{writer: writer, limit: limit, batch: writer.NewBatch()}
}

func (d *chunkedDeleter) ensureRoom(ctx context.Context) error {
	if d.batch.Len() < d.limit {
		return nil
	}
	return d.flush(ctx)
}

func (d *chunkedDeleter) message(ctx context.Context, ticketID, id string) error {
	if err := d.ensureRoom(ctx); err != nil {
		return err
	}
	d.batch.DeleteMessage(ticketID, id)
	d.pending.Messages++
	return nil
}

func (d *chunkedDeleter) history(ctx context.Context, ticketID, id string) error {
	if err := d.ensureRoom(ctx); err != nil {
		return err
	}
	d.batch.DeleteHistory(ticketID, id)
	d.pending.History++
	return nil
}

func (d *chunkedDeleter) ticket(ctx context.Context, id string) error {
	if err := d.ensureRoom(ctx); err != nil {
		return err
	}
	d.batch.DeleteTicket(id)
	d.pending.Tickets++
	return nil
}

func (d *chunkedDeleter) flush(ctx context.Context) error {
	if d.batch.Len() == 0 {
		return nil
	}
	if err := d.batch.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch %d: %w", d.done.Batches+1, err)
	}
	d.done.Tickets += d.pending.Tickets
	d.done.Messages += d.pending.Messages
	d.done.History += d.pending.History
	d.done.Batches++
	d.pending = DeleteReport{}
	d.batch = d.writer.NewBatch()
	return nil
}

// cascade stages every message and history entry of the ticket, then the
// ticket itself.
func (d *chunkedDeleter) cascade(ctx context.Context, repos repository.Repositories, ticketID string) error {
	msgIDs, err := repos.Messages.ListIDs(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("list messages of %s: %w", ticketID, err)
	}
	for _, id := range msgIDs {
		if err := d.message(ctx, ticketID, id); err != nil {
			return err
		}
	}
	historyIDs, err := repos.History.ListIDs(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("list history of %s: %w", ticketID, err)
	}
	for _, id := range historyIDs {
		if err := d.history(ctx, ticketID, id); err != nil {
			return err
		}
	}
	return d.ticket(ctx, ticketID)
}

// DeleteTicket removes a ticket with its messages and history.
func (s *SupportService) DeleteTicket(ctx context.Context, admin *domain.Admin, id string) (DeleteReport, error) {
	ticket, err := s.GetTicket(ctx, id)
	if err != nil {
		return DeleteReport{}, err
	}

	deleter := newChunkedDeleter(s.store)
	err = deleter.cascade(ctx, s.store.Repositories(), id)
	if err == nil {
		err = deleter.flush(ctx)
	}
	report := deleter.done
	s.metrics.RecordDeleted(report.Tickets, report.Messages, report.History)
	if err != nil {
		s.logger.Error("ticket delete failed",
			zap.String("ticket_id", id),
			zap.Int("committed_batches", report.Batches),
			zap.Error(err),
		)
		if report.Batches > 0 {
			s.publishDeleted(ctx, admin, ticket, report)
		}
		return report, apperrors.NewOperationFailed(codeDeleteFailed, msgDeleteFailed, err)
	}

	s.logger.Info("ticket deleted",
		zap.String("ticket_id", id),
		zap.Int("messages", report.Messages),
		zap.Int("history", report.History),
		zap.Int("batches", report.Batches),
	)
	s.publishDeleted(ctx, admin, ticket, report)
	return report, nil
}

func (s *SupportService) publishDeleted(ctx context.Context, admin *domain.Admin, ticket *domain.Ticket, report DeleteReport) {
	s.publishEvent(ctx, events.Event{
		Type:     events.EventTicketDeleted,
		TicketID: ticket.ID,
		Actor:    events.ActorFrom(admin),
		Payload: events.TicketDeletedPayload{
			Subject:  ticket.Subject,
			Messages: report.Messages,
			History:  report.History,
		},
	})
}

// ResetCenter deletes every ticket with its messages and history. On failure
// the report holds what was already committed.
func (s *SupportService) ResetCenter(ctx context.Context, admin *domain.Admin) (DeleteReport, error) {
	repos := s.store.Repositories()
	deleter := newChunkedDeleter(s.store)

	err := func() error {
		ids, err := repos.Tickets.ListIDs(ctx)
		if err != nil {
			return fmt.Errorf("list tickets: %w", err)
		}
		for _, id := range ids {
			if err := deleter.cascade(ctx, repos, id); err != nil {
				return err
			}
		}
		return deleter.flush(ctx)
	}()

	report := deleter.done
	s.metrics.RecordDeleted(report.Tickets, report.Messages, report.History)
	if report.Batches > 0 || err == nil {
		s.publishEvent(ctx, events.Event{
			Type:  events.EventSupportCenterReset,
			Actor: events.ActorFrom(admin),
			Payload: events.SupportCenterResetPayload{
				Tickets:  report.Tickets,
				Messages: report.Messages,
				History:  report.History,
				Batches:  report.Batches,
			},
		})
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Warn("support center reset cancelled", zap.Int("committed_batches", report.Batches))
		} else {
			s.logger.Error("support center reset failed", zap.Int("committed_batches", report.Batches), zap.Error(err))
		}
		return report, apperrors.NewOperationFailed(codeResetFailed, msgResetFailed, err)
	}

	s.logger.Info("support center reset",
		zap.Int("tickets", report.Tickets),
		zap.Int("messages", report.Messages),
		zap.Int("history", report.History),
		zap.Int("batches", report.Batches),
	)
	return report, nil
}
