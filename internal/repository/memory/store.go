package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/repository"
)

// Store is an in-memory implementation of repository.Store. Transactions
// and batches run against a copy of the dataset that is swapped in on
// success, so a failure leaves nothing behind.
type Store struct {
	mu         sync.Mutex
	data       *dataset
	batchLimit int

	fmu     sync.Mutex
	faults  map[string]fault
	batches []int
}

type fault struct {
	skip int
	err  error
}

type dataset struct {
	tickets       map[string]domain.Ticket
	messages      map[string]map[string]domain.TicketMessage
	history       map[string]map[string]domain.StatusHistoryEntry
	notifications []domain.Notification
	audit         []domain.AuditEntry
}

func newDataset() *dataset {
	return &dataset{
		tickets:  make(map[string]domain.Ticket),
		messages: make(map[string]map[string]domain.TicketMessage),
		history:  make(map[string]map[string]domain.StatusHistoryEntry),
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for id, t := range d.tickets {
		c.tickets[id] = t
	}
	for tid, msgs := range d.messages {
		m := make(map[string]domain.TicketMessage, len(msgs))
		for id, msg := range msgs {
			m[id] = msg
		}
		c.messages[tid] = m
	}
	for tid, entries := range d.history {
		h := make(map[string]domain.StatusHistoryEntry, len(entries))
		for id, e := range entries {
			h[id] = e
		}
		c.history[tid] = h
	}
	c.notifications = append([]domain.Notification(nil), d.notifications...)
	c.audit = append([]domain.AuditEntry(nil), d.audit...)
	return c
}

// NewStore creates an empty store. A non-positive batchLimit falls back to
// repository.DefaultBatchLimit.
func NewStore(batchLimit int) *Store {
	if batchLimit <= 0 {
		batchLimit = repository.DefaultBatchLimit
	}
	return &Store{
		data:       newDataset(),
		batchLimit: batchLimit,
		faults:     make(map[string]fault),
	}
}

// FailNext makes the next call of the named operation return err. Names
// look like "tickets.UpdateStatus", "messages.Create" or "batch.Commit".
func (s *Store) FailNext(op string, err error) {
	s.FailAfter(op, 0, err)
}

// FailAfter lets n calls of the named operation succeed, then fails the
// next one with err.
func (s *Store) FailAfter(op string, n int, err error) {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	s.faults[op] = fault{skip: n, err: err}
}

func (s *Store) fault(op string) error {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	f, ok := s.faults[op]
	if !ok {
		return nil
	}
	if f.skip > 0 {
		f.skip--
		s.faults[op] = f
		return nil
	}
	delete(s.faults, op)
	return f.err
}

// CommittedBatches returns the operation count of every committed batch.
func (s *Store) CommittedBatches() []int {
	s.fmu.Lock()
	defer s.fmu.Unlock()
	return append([]int(nil), s.batches...)
}

func (s *Store) Repositories() repository.Repositories {
	return s.bind(&view{s: s})
}

// WithinTx serializes fn against a private copy of the data.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.data.clone()
	if err := fn(s.bind(&view{s: s, tx: tx})); err != nil {
		return err
	}
	s.data = tx
	return nil
}

func (s *Store) BatchLimit() int {
	return s.batchLimit
}

func (s *Store) NewBatch() repository.WriteBatch {
	return &batch{s: s}
}

func (s *Store) bind(v *view) repository.Repositories {
	return repository.Repositories{
		Tickets:       &ticketRepo{v},
		Messages:      &messageRepo{v},
		History:       &historyRepo{v},
		Notifications: &notificationRepo{v},
		Audit:         &auditRepo{v},
	}
}

// SeedTicket stores t as-is, without validation, and returns its id.
func (s *Store) SeedTicket(t domain.Ticket) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.data.tickets[t.ID] = t
	return t.ID
}

// SeedMessage stores msg under its ticket and returns its id.
func (s *Store) SeedMessage(msg domain.TicketMessage) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	putMessage(s.data, msg)
	return msg.ID
}

// SeedHistory stores entry under its ticket and returns its id.
func (s *Store) SeedHistory(entry domain.StatusHistoryEntry) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	putHistory(s.data, entry)
	return entry.ID
}

// Counts reports the number of tickets, messages and history entries.
func (s *Store) Counts() (tickets, messages, history int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.data.messages {
		messages += len(m)
	}
	for _, h := range s.data.history {
		history += len(h)
	}
	return len(s.data.tickets), messages, history
}

// Notifications returns every stored notification.
func (s *Store) Notifications() []domain.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Notification(nil), s.data.notifications...)
}

// AuditEntries returns every stored audit entry.
func (s *Store) AuditEntries() []domain.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.AuditEntry(nil), s.data.audit...)
}

func putMessage(d *dataset, msg domain.TicketMessage) {
	if d.messages[msg.TicketID] == nil {
		d.messages[msg.TicketID] = make(map[string]domain.TicketMessage)
	}
	d.messages[msg.TicketID][msg.ID] = msg
}

func putHistory(d *dataset, entry domain.StatusHistoryEntry) {
	if d.history[entry.TicketID] == nil {
		d.history[entry.TicketID] = make(map[string]domain.StatusHistoryEntry)
	}
	d.history[entry.TicketID][entry.ID] = entry
}

// view routes repository calls either to the live dataset, under the store
// lock, or to a transaction copy whose lock is already held.
type view struct {
	s  *Store
	tx *dataset
}

func (v *view) do(ctx context.Context, op string, fn func(d *dataset) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.s.fault(op); err != nil {
		return err
	}
	if v.tx != nil {
		return fn(v.tx)
	}
	v.s.mu.Lock()
	defer v.s.mu.Unlock()
	return fn(v.s.data)
}

type ticketRepo struct{ *view }

func (r *ticketRepo) Create(ctx context.Context, ticket *domain.Ticket) error {
	if err := ticket.Validate(); err != nil {
		return err
	}
	return r.do(ctx, "tickets.Create", func(d *dataset) error {
		if ticket.ID == "" {
			ticket.ID = uuid.NewString()
		}
		d.tickets[ticket.ID] = *ticket
		return nil
	})
}

func (r *ticketRepo) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.do(ctx, "tickets.GetByID", func(d *dataset) error {
		t, ok := d.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		if err := t.Validate(); err != nil {
			return fmt.Errorf("ticket %s: %w", id, err)
		}
		out = &t
		return nil
	})
	return out, err
}

func (r *ticketRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

func (r *ticketRepo) ListRecent(ctx context.Context, limit int) ([]domain.Ticket, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []domain.Ticket
	err := r.do(ctx, "tickets.ListRecent", func(d *dataset) error {
		out = make([]domain.Ticket, 0, len(d.tickets))
		for _, t := range d.tickets {
			if err := t.Validate(); err != nil {
				return fmt.Errorf("ticket %s: %w", t.ID, err)
			}
			out = append(out, t)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *ticketRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.do(ctx, "tickets.ListIDs", func(d *dataset) error {
		for id := range d.tickets {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

func (r *ticketRepo) UpdateStatus(ctx context.Context, id string, status domain.TicketStatus, at time.Time) error {
	return r.do(ctx, "tickets.UpdateStatus", func(d *dataset) error {
		t, ok := d.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		t.Status = status
		t.LastUpdated = &at
		if status == domain.TicketStatusResolved {
			t.ResolvedAt = &at
		}
		d.tickets[id] = t
		return nil
	})
}

func (r *ticketRepo) UpdateReplyFields(ctx context.Context, id string, fields domain.ReplyFields) error {
	return r.do(ctx, "tickets.UpdateReplyFields", func(d *dataset) error {
		t, ok := d.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		t.Status = fields.Status
		t.Response = fields.Response
		t.RespondedAt = fields.RespondedAt
		t.Read = fields.Read
		t.LastMessageAt = fields.LastMessageAt
		d.tickets[id] = t
		return nil
	})
}

func (r *ticketRepo) SetRead(ctx context.Context, id string, read bool) error {
	return r.do(ctx, "tickets.SetRead", func(d *dataset) error {
		t, ok := d.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		t.Read = read
		d.tickets[id] = t
		return nil
	})
}

type messageRepo struct{ *view }

func (r *messageRepo) Create(ctx context.Context, msg *domain.TicketMessage) error {
	return r.do(ctx, "messages.Create", func(d *dataset) error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		putMessage(d, *msg)
		return nil
	})
}

func (r *messageRepo) Delete(ctx context.Context, ticketID, id string) error {
	return r.do(ctx, "messages.Delete", func(d *dataset) error {
		if _, ok := d.messages[ticketID][id]; !ok {
			return repository.ErrNotFound
		}
		delete(d.messages[ticketID], id)
		return nil
	})
}

func (r *messageRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	err := r.do(ctx, "messages.ListByTicket", func(d *dataset) error {
		for _, msg := range d.messages[ticketID] {
			out = append(out, msg)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, err
}

func (r *messageRepo) ListIDs(ctx context.Context, ticketID string) ([]string, error) {
	var ids []string
	err := r.do(ctx, "messages.ListIDs", func(d *dataset) error {
		for id := range d.messages[ticketID] {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

type historyRepo struct{ *view }

func (r *historyRepo) Create(ctx context.Context, entry *domain.StatusHistoryEntry) error {
	return r.do(ctx, "history.Create", func(d *dataset) error {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		putHistory(d, *entry)
		return nil
	})
}

func (r *historyRepo) ListByTicket(ctx context.Context, ticketID string) ([]domain.StatusHistoryEntry, error) {
	var out []domain.StatusHistoryEntry
	err := r.do(ctx, "history.ListByTicket", func(d *dataset) error {
		for _, e := range d.history[ticketID] {
			out = append(out, e)
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ChangedAt.Equal(out[j].ChangedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ChangedAt.Before(out[j].ChangedAt)
	})
	return out, err
}

func (r *historyRepo) ListIDs(ctx context.Context, ticketID string) ([]string, error) {
	var ids []string
	err := r.do(ctx, "history.ListIDs", func(d *dataset) error {
		for id := range d.history[ticketID] {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

type notificationRepo struct{ *view }

func (r *notificationRepo) Create(ctx context.Context, n *domain.Notification) error {
	return r.do(ctx, "notifications.Create", func(d *dataset) error {
		if n.ID == "" {
			n.ID = uuid.NewString()
		}
		d.notifications = append(d.notifications, *n)
		return nil
	})
}

func (r *notificationRepo) ListByRecipient(ctx context.Context, uid string) ([]domain.Notification, error) {
	var out []domain.Notification
	err := r.do(ctx, "notifications.ListByRecipient", func(d *dataset) error {
		for i := len(d.notifications) - 1; i >= 0; i-- {
			if d.notifications[i].RecipientUID == uid {
				out = append(out, d.notifications[i])
			}
		}
		return nil
	})
	return out, err
}

type auditRepo struct{ *view }

func (r *auditRepo) Create(ctx context.Context, entry *domain.AuditEntry) error {
	return r.do(ctx, "audit.Create", func(d *dataset) error {
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		d.audit = append(d.audit, *entry)
		return nil
	})
}

func (r *auditRepo) ListByAction(ctx context.Context, action domain.AuditAction, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.AuditEntry
	err := r.do(ctx, "audit.ListByAction", func(d *dataset) error {
		for i := len(d.audit) - 1; i >= 0 && len(out) < limit; i-- {
			if d.audit[i].Action == action {
				out = append(out, d.audit[i])
			}
		}
		return nil
	})
	return out, err
}

type batch struct {
	repository.OpList
	s *Store
}

// Commit applies the staged deletes atomically. Deleting a missing document
// is not an error. A ticket delete also drops children written after they
// were listed.
func (b *batch) Commit(ctx context.Context) error {
	if b.Len() == 0 {
		return nil
	}
	if b.Len() > b.s.batchLimit {
		return fmt.Errorf("%w: %d > %d", repository.ErrBatchTooLarge, b.Len(), b.s.batchLimit)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.s.fault("batch.Commit"); err != nil {
		return err
	}

	b.s.mu.Lock()
	next := b.s.data.clone()
	for _, op := range b.Ops() {
		switch op.Kind {
		case repository.OpDeleteMessage:
			delete(next.messages[op.TicketID], op.ID)
		case repository.OpDeleteHistory:
			delete(next.history[op.TicketID], op.ID)
		case repository.OpDeleteTicket:
			delete(next.messages, op.ID)
			delete(next.history, op.ID)
			delete(next.tickets, op.ID)
		}
	}
	b.s.data = next
	b.s.mu.Unlock()

	b.s.fmu.Lock()
	b.s.batches = append(b.s.batches, b.Len())
	b.s.fmu.Unlock()
	return nil
}

var _ repository.Store = (*Store)(nil)
