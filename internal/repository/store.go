package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("not found")
	// ErrBatchTooLarge is returned when a write batch exceeds the store ceiling.
	ErrBatchTooLarge = errors.New("write batch exceeds operation limit")
)

// DefaultBatchLimit mirrors the per-commit ceiling of the document store.
const DefaultBatchLimit = 500

// DBTX is satisfied by both the pool and a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles the repositories bound to one connection or transaction.
type Repositories struct {
	Tickets       TicketRepository
	Messages      TicketMessageRepository
	History       TicketHistoryRepository
	Notifications NotificationRepository
	Audit         AuditRepository
}

// Transactor runs fn against repositories sharing one transaction. The
// transaction commits when fn returns nil and rolls back otherwise.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(Repositories) error) error
}

// WriteBatch stages deletes that are applied all-or-nothing on Commit.
// DeleteTicket also removes any children of the ticket still present at
// commit time.
type WriteBatch interface {
	DeleteTicket(id string)
	DeleteMessage(ticketID, id string)
	DeleteHistory(ticketID, id string)
	Len() int
	Commit(ctx context.Context) error
}

// BatchWriter creates write batches bounded by BatchLimit operations.
type BatchWriter interface {
	NewBatch() WriteBatch
	BatchLimit() int
}

// Store is everything the support service needs from persistence.
type Store interface {
	Transactor
	BatchWriter
	Repositories() Repositories
}

// BatchOpKind identifies a staged batch operation.
type BatchOpKind int

const (
	OpDeleteTicket BatchOpKind = iota
	OpDeleteMessage
	OpDeleteHistory
)

// BatchOp is one staged delete.
type BatchOp struct {
	Kind     BatchOpKind
	TicketID string
	ID       string
}

// OpList stages batch operations in order. Batch implementations embed it.
type OpList struct {
	ops []BatchOp
}

func (l *OpList) DeleteTicket(id string) {
	l.ops = append(l.ops, BatchOp{Kind: OpDeleteTicket, TicketID: id, ID: id})
}

func (l *OpList) DeleteMessage(ticketID, id string) {
	l.ops = append(l.ops, BatchOp{Kind: OpDeleteMessage, TicketID: ticketID, ID: id})
}

func (l *OpList) DeleteHistory(ticketID, id string) {
	l.ops = append(l.ops, BatchOp{Kind: OpDeleteHistory, TicketID: ticketID, ID: id})
}

func (l *OpList) Len() int {
	return len(l.ops)
}

// Ops returns the staged operations in order.
func (l *OpList) Ops() []BatchOp {
	return l.ops
}
