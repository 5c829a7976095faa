package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/repaart/support-desk/internal/domain"
)

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	// GetForUpdate locks the ticket for the rest of the surrounding transaction.
	GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error)
	// ListRecent returns up to limit tickets, newest first.
	ListRecent(ctx context.Context, limit int) ([]domain.Ticket, error)
	ListIDs(ctx context.Context) ([]string, error)
	UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, at time.Time) error
	UpdateReplyFields(ctx context.Context, id string, fields domain.ReplyFields) error
	SetRead(ctx context.Context, id string, read bool) error
}

type ticketRepository struct {
	db DBTX
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(db DBTX) TicketRepository {
	return &ticketRepository{db: db}
}

const ticketColumns = `id, subject, message, email, uid, display_name, category, urgency, status, read,
               created_at, responded_at, last_message_at, last_updated, resolved_at, attachment_url, response`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ticket.Validate(); err != nil {
		return err
	}
	const query = `
        INSERT INTO tickets (subject, message, email, uid, display_name, category, urgency, status, read, created_at, attachment_url)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
        RETURNING id`
	return r.db.QueryRow(ctx, query,
		ticket.Subject,
		ticket.Message,
		ticket.Email,
		ticket.UID,
		ticket.DisplayName,
		ticket.Category,
		ticket.Urgency,
		ticket.Status,
		ticket.Read,
		ticket.CreatedAt,
		ticket.AttachmentURL,
	).Scan(&ticket.ID)
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1`, id)
}

func (r *ticketRepository) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.fetchSingle(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id=$1 FOR UPDATE`, id)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, arg any) (*domain.Ticket, error) {
	ticket, err := scanTicket(r.db.QueryRow(ctx, query, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ticket, nil
}

func (r *ticketRepository) ListRecent(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM tickets ORDER BY created_at DESC LIMIT %d`, ticketColumns, limit)
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Ticket
	for rows.Next() {
		ticket, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *ticket)
	}
	return result, rows.Err()
}

func (r *ticketRepository) ListIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM tickets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (r *ticketRepository) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, at time.Time) error {
	var resolvedAt *time.Time
	if status == domain.TicketStatusResolved {
		resolvedAt = &at
	}
	const query = `
        UPDATE tickets SET status=$1, last_updated=$2, resolved_at=COALESCE($3, resolved_at)
        WHERE id=$4`
	cmd, err := r.db.Exec(ctx, query, status, at, resolvedAt, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) UpdateReplyFields(ctx context.Context, id string, fields domain.ReplyFields) error {
	const query = `
        UPDATE tickets SET status=$1, response=$2, responded_at=$3, read=$4, last_message_at=$5
        WHERE id=$6`
	cmd, err := r.db.Exec(ctx, query,
		fields.Status,
		fields.Response,
		fields.RespondedAt,
		fields.Read,
		fields.LastMessageAt,
		id,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ticketRepository) SetRead(ctx context.Context, id string, read bool) error {
	cmd, err := r.db.Exec(ctx, `UPDATE tickets SET read=$1 WHERE id=$2`, read, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := row.Scan(
		&ticket.ID,
		&ticket.Subject,
		&ticket.Message,
		&ticket.Email,
		&ticket.UID,
		&ticket.DisplayName,
		&ticket.Category,
		&ticket.Urgency,
		&ticket.Status,
		&ticket.Read,
		&ticket.CreatedAt,
		&ticket.RespondedAt,
		&ticket.LastMessageAt,
		&ticket.LastUpdated,
		&ticket.ResolvedAt,
		&ticket.AttachmentURL,
		&ticket.Response,
	); err != nil {
		return nil, err
	}
	if err := ticket.Validate(); err != nil {
		return nil, fmt.Errorf("ticket %s: %w", ticket.ID, err)
	}
	return &ticket, nil
}
