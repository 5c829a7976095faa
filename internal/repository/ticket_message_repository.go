package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/repaart/support-desk/internal/domain"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	Delete(ctx context.Context, ticketID, id string) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
	ListIDs(ctx context.Context, ticketID string) ([]string, error)
}

type ticketMessageRepository struct {
	db DBTX
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(db DBTX) TicketMessageRepository {
	return &ticketMessageRepository{db: db}
}

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	const query = `
        INSERT INTO ticket_messages (ticket_id, text, sender_id, sender_role, created_at, is_internal)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		msg.TicketID,
		msg.Text,
		msg.SenderID,
		msg.SenderRole,
		msg.CreatedAt,
		msg.IsInternal,
	).Scan(&msg.ID)
}

func (r *ticketMessageRepository) Delete(ctx context.Context, ticketID, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM ticket_messages WHERE ticket_id=$1 AND id=$2`, ticketID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, text, sender_id, sender_role, created_at, is_internal
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.Text,
			&msg.SenderID,
			&msg.SenderRole,
			&msg.CreatedAt,
			&msg.IsInternal,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (r *ticketMessageRepository) ListIDs(ctx context.Context, ticketID string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM ticket_messages WHERE ticket_id=$1`, ticketID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
