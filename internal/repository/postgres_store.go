package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a pgx pool.
type PostgresStore struct {
	pool       *pgxpool.Pool
	batchLimit int
}

// NewPostgresStore wraps pool. A non-positive batchLimit falls back to
// DefaultBatchLimit.
func NewPostgresStore(pool *pgxpool.Pool, batchLimit int) *PostgresStore {
	if batchLimit <= 0 {
		batchLimit = DefaultBatchLimit
	}
	return &PostgresStore{pool: pool, batchLimit: batchLimit}
}

// Repositories returns repositories bound to the pool.
func (s *PostgresStore) Repositories() Repositories {
	return bindRepositories(s.pool)
}

// WithinTx runs fn inside a single transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(Repositories) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(bindRepositories(tx))
	})
}

func (s *PostgresStore) BatchLimit() int {
	return s.batchLimit
}

func (s *PostgresStore) NewBatch() WriteBatch {
	return &pgWriteBatch{pool: s.pool, limit: s.batchLimit}
}

func bindRepositories(db DBTX) Repositories {
	return Repositories{
		Tickets:       NewTicketRepository(db),
		Messages:      NewTicketMessageRepository(db),
		History:       NewTicketHistoryRepository(db),
		Notifications: NewNotificationRepository(db),
		Audit:         NewAuditRepository(db),
	}
}

type pgWriteBatch struct {
	OpList
	pool  *pgxpool.Pool
	limit int
}

// Commit sends every staged delete in one round trip inside one transaction.
// A ticket delete locks the ticket and sweeps its remaining messages and
// history first, so a reply racing the cascade cannot leave an orphan or
// trip the foreign key.
func (b *pgWriteBatch) Commit(ctx context.Context) error {
	if b.Len() == 0 {
		return nil
	}
	if b.Len() > b.limit {
		return fmt.Errorf("%w: %d > %d", ErrBatchTooLarge, b.Len(), b.limit)
	}

	batch := &pgx.Batch{}
	for _, op := range b.Ops() {
		switch op.Kind {
		case OpDeleteMessage:
			batch.Queue(`DELETE FROM ticket_messages WHERE ticket_id=$1 AND id=$2`, op.TicketID, op.ID)
		case OpDeleteHistory:
			batch.Queue(`DELETE FROM ticket_history WHERE ticket_id=$1 AND id=$2`, op.TicketID, op.ID)
		case OpDeleteTicket:
			batch.Queue(`SELECT id FROM tickets WHERE id=$1 FOR UPDATE`, op.ID)
			batch.Queue(`DELETE FROM ticket_messages WHERE ticket_id=$1`, op.ID)
			batch.Queue(`DELETE FROM ticket_history WHERE ticket_id=$1`, op.ID)
			batch.Queue(`DELETE FROM tickets WHERE id=$1`, op.ID)
		}
	}

	return pgx.BeginFunc(ctx, b.pool, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range batch.Len() {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return err
			}
		}
		return results.Close()
	})
}

var _ Store = (*PostgresStore)(nil)
