// Package desk holds the per-admin support desk session: the loaded inbox,
// filter, selection, thread and reply draft, kept current by live watchers.
package desk

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/feed"
	"github.com/repaart/support-desk/internal/live"
	"github.com/repaart/support-desk/internal/service"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

// ErrClosed is returned by actions on a closed desk.
var ErrClosed = errors.New("desk closed")

// Backend is the support service as seen by a desk.
type Backend interface {
	live.TicketLoader
	live.MessageLoader
	ChangeStatus(ctx context.Context, admin *domain.Admin, id string, status domain.TicketStatus) (*domain.Ticket, error)
	Reply(ctx context.Context, admin *domain.Admin, input service.ReplyInput) (*service.ReplyResult, error)
	SetRead(ctx context.Context, admin *domain.Admin, id string, read bool) error
	DeleteTicket(ctx context.Context, admin *domain.Admin, id string) (service.DeleteReport, error)
	ResetCenter(ctx context.Context, admin *domain.Admin) (service.DeleteReport, error)
}

// Draft is the reply being composed.
type Draft struct {
	Text     string
	Internal bool
}

// View is a consistent picture of the desk state.
type View struct {
	Tickets         []domain.Ticket
	Filtered        []domain.Ticket
	Metrics         domain.SupportMetrics
	Selected        *domain.Ticket
	Messages        []domain.TicketMessage
	Filter          aggregator.Filter
	Draft           Draft
	Loading         bool
	MessagesLoading bool
	Err             error
}

// Options tune a desk.
type Options struct {
	Thresholds domain.SLAThresholds
	Clock      func() time.Time
	Logger     *zap.Logger
}

// Desk is one admin's session. All methods are safe for concurrent use.
type Desk struct {
	id         string
	admin      *domain.Admin
	backend    Backend
	feed       feed.Feed
	thresholds domain.SLAThresholds
	now        func() time.Time
	logger     *zap.Logger
	cancel     context.CancelFunc
	watchCtx   context.Context
	wg         sync.WaitGroup

	mu              sync.Mutex
	closed          bool
	tickets         []domain.Ticket
	loading         bool
	err             error
	filter          aggregator.Filter
	selected        string
	generation      uint64
	messages        []domain.TicketMessage
	messagesLoading bool
	draft           Draft
	lastActive      time.Time
	streams         int
	ticketWatcher   *live.Watcher[domain.Ticket]
	messageWatcher  *live.Watcher[domain.TicketMessage]
	updates         chan View
}

// Open starts a desk for admin and begins loading the inbox.
func Open(ctx context.Context, backend Backend, f feed.Feed, admin *domain.Admin, opts Options) *Desk {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	thresholds := opts.Thresholds
	if thresholds.Warning <= 0 || thresholds.Critical <= 0 {
		thresholds = domain.DefaultSLAThresholds
	}
	id := uuid.NewString()
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d := &Desk{
		id:         id,
		admin:      admin,
		backend:    backend,
		feed:       f,
		thresholds: thresholds,
		now:        clock,
		logger:     logger.With(zap.String("desk_id", id), zap.String("admin", admin.ActorLabel())),
		cancel:     cancel,
		watchCtx:   watchCtx,
		filter:     aggregator.DefaultFilter(),
		loading:    true,
		lastActive: clock(),
		updates:    make(chan View, 1),
	}

	d.mu.Lock()
	d.ticketWatcher = live.WatchTickets(watchCtx, backend, f, d.logger)
	d.wg.Add(1)
	go d.pumpTickets(d.ticketWatcher)
	d.publishLocked()
	d.mu.Unlock()
	return d
}

// ID identifies the desk.
func (d *Desk) ID() string {
	return d.id
}

// Admin is the owner of the desk.
func (d *Desk) Admin() *domain.Admin {
	return d.admin
}

// LastActive is the time of the last call made by the owner.
func (d *Desk) LastActive() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastActive
}

// Updates streams views latest-wins. The channel closes with the desk.
func (d *Desk) Updates() <-chan View {
	return d.updates
}

// View returns the current state. Reading the view counts as activity.
func (d *Desk) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.closed {
		d.lastActive = d.now()
	}
	return d.viewLocked()
}

// Attach registers a consumer streaming Updates. The desk is not idle while
// any consumer is attached. The returned detach func is safe to call twice.
func (d *Desk) Attach() (func(), error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.touchLocked(); err != nil {
		return nil, err
	}
	d.streams++
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			d.streams--
			if !d.closed {
				d.lastActive = d.now()
			}
		})
	}, nil
}

// Idle reports whether the desk has no attached stream and no activity
// since now-timeout.
func (d *Desk) Idle(now time.Time, timeout time.Duration) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streams == 0 && now.Sub(d.lastActive) > timeout
}

// Close stops every watcher. It is safe to call more than once.
func (d *Desk) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.updates)
	tw, mw := d.ticketWatcher, d.messageWatcher
	d.ticketWatcher, d.messageWatcher = nil, nil
	d.mu.Unlock()

	d.cancel()
	if tw != nil {
		tw.Close()
	}
	if mw != nil {
		mw.Close()
	}
	d.wg.Wait()
	d.logger.Debug("desk closed")
}

// SetFilter replaces the filter.
func (d *Desk) SetFilter(filter aggregator.Filter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.touchLocked(); err != nil {
		return err
	}
	filter.Tab = aggregator.ParseTab(string(filter.Tab))
	if strings.TrimSpace(filter.Category) == "" {
		filter.Category = aggregator.CategoryAll
	}
	d.filter = filter
	d.publishLocked()
	return nil
}

// Select switches the open thread. An empty id clears the selection.
func (d *Desk) Select(id string) error {
	d.mu.Lock()
	if err := d.touchLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	if id != "" {
		if _, ok := aggregator.FindByID(d.tickets, id); !ok {
			d.mu.Unlock()
			return apperrors.NewNotFound("ticket", map[string]any{"id": id})
		}
	}
	if id == d.selected {
		d.mu.Unlock()
		return nil
	}
	old := d.switchLocked(id)
	d.publishLocked()
	d.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// switchLocked changes the selection and returns the watcher to close.
func (d *Desk) switchLocked(id string) *live.Watcher[domain.TicketMessage] {
	old := d.messageWatcher
	d.messageWatcher = nil
	d.generation++
	d.selected = id
	d.messages = nil
	d.messagesLoading = false
	if id != "" && !d.closed {
		w := live.WatchMessages(d.watchCtx, d.backend, d.feed, id, d.logger)
		d.messageWatcher = w
		d.messagesLoading = true
		d.wg.Add(1)
		go d.pumpMessages(d.generation, w)
	}
	return old
}

// SetDraft stores the reply being composed.
func (d *Desk) SetDraft(draft Draft) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.touchLocked(); err != nil {
		return err
	}
	d.draft = draft
	d.publishLocked()
	return nil
}

// Reply sends the draft to the selected ticket. The draft is cleared only
// when the reply succeeds and the draft was not edited in the meantime.
func (d *Desk) Reply(ctx context.Context) (*service.ReplyResult, error) {
	d.mu.Lock()
	if err := d.touchLocked(); err != nil {
		d.mu.Unlock()
		return nil, err
	}
	ticketID, draft := d.selected, d.draft
	d.mu.Unlock()

	if ticketID == "" {
		return nil, apperrors.NewValidationError("no ticket selected", nil)
	}
	result, err := d.backend.Reply(ctx, d.admin, service.ReplyInput{
		TicketID: ticketID,
		Text:     draft.Text,
		Internal: draft.Internal,
	})

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.failLocked(err)
		return nil, err
	}
	if d.draft == draft {
		d.draft = Draft{}
	}
	d.err = nil
	d.publishLocked()
	return result, nil
}

// ToggleRead flips the read flag locally, then remotely. A remote failure
// restores the value the ticket had before the toggle.
func (d *Desk) ToggleRead(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	if err := d.touchLocked(); err != nil {
		d.mu.Unlock()
		return false, err
	}
	idx := d.indexLocked(id)
	if idx < 0 {
		d.mu.Unlock()
		return false, apperrors.NewNotFound("ticket", map[string]any{"id": id})
	}
	previous := d.tickets[idx].Read
	d.tickets[idx].Read = !previous
	d.publishLocked()
	d.mu.Unlock()

	err := d.backend.SetRead(ctx, d.admin, id, !previous)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		if idx := d.indexLocked(id); idx >= 0 {
			d.tickets[idx].Read = previous
		}
		d.failLocked(err)
		return previous, err
	}
	return !previous, nil
}

// ChangeStatus updates the status of a ticket.
func (d *Desk) ChangeStatus(ctx context.Context, id string, status domain.TicketStatus) (*domain.Ticket, error) {
	if err := d.touch(); err != nil {
		return nil, err
	}
	ticket, err := d.backend.ChangeStatus(ctx, d.admin, id, status)
	if err != nil {
		d.fail(err)
		return nil, err
	}
	return ticket, nil
}

// Delete removes a ticket and its thread. The selection is cleared when it
// pointed at the deleted ticket.
func (d *Desk) Delete(ctx context.Context, id string) (service.DeleteReport, error) {
	if err := d.touch(); err != nil {
		return service.DeleteReport{}, err
	}
	report, err := d.backend.DeleteTicket(ctx, d.admin, id)
	if err != nil {
		d.fail(err)
		return report, err
	}
	d.dropSelection(func(selected string) bool { return selected == id })
	return report, nil
}

// Reset deletes every ticket in the support center.
func (d *Desk) Reset(ctx context.Context) (service.DeleteReport, error) {
	if err := d.touch(); err != nil {
		return service.DeleteReport{}, err
	}
	report, err := d.backend.ResetCenter(ctx, d.admin)
	if report.Tickets > 0 {
		d.dropSelection(func(string) bool { return true })
	}
	if err != nil {
		d.fail(err)
	}
	return report, err
}

func (d *Desk) pumpTickets(w *live.Watcher[domain.Ticket]) {
	defer d.wg.Done()
	for snap := range w.Updates() {
		d.applyTickets(snap)
	}
}

func (d *Desk) pumpMessages(generation uint64, w *live.Watcher[domain.TicketMessage]) {
	defer d.wg.Done()
	for snap := range w.Updates() {
		d.applyMessages(generation, snap)
	}
}

func (d *Desk) applyTickets(snap live.Snapshot[domain.Ticket]) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.loading = false
	d.tickets = snap.Items
	d.err = snap.Err
	var old *live.Watcher[domain.TicketMessage]
	if snap.Err == nil && d.selected != "" {
		// The selected ticket was deleted or left the window.
		if _, ok := aggregator.FindByID(d.tickets, d.selected); !ok {
			old = d.switchLocked("")
		}
	}
	d.publishLocked()
	d.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

func (d *Desk) applyMessages(generation uint64, snap live.Snapshot[domain.TicketMessage]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || generation != d.generation {
		return
	}
	d.messagesLoading = false
	d.messages = snap.Items
	if snap.Err != nil {
		d.err = snap.Err
	}
	d.publishLocked()
}

func (d *Desk) dropSelection(match func(selected string) bool) {
	d.mu.Lock()
	var old *live.Watcher[domain.TicketMessage]
	if d.selected != "" && match(d.selected) {
		old = d.switchLocked("")
		d.publishLocked()
	}
	d.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (d *Desk) touch() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.touchLocked()
}

func (d *Desk) touchLocked() error {
	if d.closed {
		return ErrClosed
	}
	d.lastActive = d.now()
	return nil
}

func (d *Desk) fail(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failLocked(err)
}

func (d *Desk) failLocked(err error) {
	d.logger.Warn("desk action failed", zap.Error(err))
	d.err = err
	d.publishLocked()
}

func (d *Desk) indexLocked(id string) int {
	for i := range d.tickets {
		if d.tickets[i].ID == id {
			return i
		}
	}
	return -1
}

func (d *Desk) publishLocked() {
	if d.closed {
		return
	}
	live.OfferLatest(d.updates, d.viewLocked())
}

func (d *Desk) viewLocked() View {
	tickets := append([]domain.Ticket(nil), d.tickets...)
	view := View{
		Tickets:         tickets,
		Filtered:        aggregator.Apply(tickets, d.filter),
		Metrics:         aggregator.ComputeMetrics(tickets, d.now(), d.thresholds),
		Messages:        append([]domain.TicketMessage(nil), d.messages...),
		Filter:          d.filter,
		Draft:           d.draft,
		Loading:         d.loading,
		MessagesLoading: d.messagesLoading,
		Err:             d.err,
	}
	if t, ok := aggregator.FindByID(tickets, d.selected); ok {
		view.Selected = &t
	}
	return view
}
