package service

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/events"
	"github.com/repaart/support-desk/internal/export"
	"github.com/repaart/support-desk/internal/notify"
	"github.com/repaart/support-desk/internal/repository/memory"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

type fakeMailer struct {
	mu     sync.Mutex
	sent   []notify.TicketReplyEmail
	err    error
	before func()
}

func (m *fakeMailer) SendTicketReply(_ context.Context, email notify.TicketReplyEmail) error {
	if m.before != nil {
		m.before()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

type fixture struct {
	store   *memory.Store
	mailer  *fakeMailer
	service *SupportService
	events  []events.Event
	now     time.Time
	admin   *domain.Admin
}

func newFixture(t *testing.T, batchLimit int) *fixture {
	t.Helper()
	f := &fixture{
		store:  memory.NewStore(batchLimit),
		mailer: &fakeMailer{},
		now:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		admin:  &domain.Admin{UID: "admin-1", Email: "admin@repaart.es"},
	}
	logger := zap.NewNop()
	dispatcher := events.NewInMemoryDispatcher(logger)
	dispatcher.SubscribeAll(func(_ context.Context, e events.Event) error {
		f.events = append(f.events, e)
		return nil
	})
	repos := f.store.Repositories()
	NewNotificationService(dispatcher, repos.Notifications, logger).RegisterHandlers()
	NewAuditService(dispatcher, repos.Audit, logger).RegisterHandlers()

	f.service = NewSupportService(SupportDependencies{
		Store:      f.store,
		Mailer:     f.mailer,
		Dispatcher: dispatcher,
		Logger:     logger,
		Clock:      func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) seed(subject string, mutate ...func(*domain.Ticket)) string {
	t := domain.Ticket{
		Subject:   subject,
		Message:   "mensaje original",
		Email:     "rider@repaart.es",
		UID:       "rider-1",
		Category:  domain.TicketCategoryOperational,
		Urgency:   domain.TicketUrgencyMedium,
		Status:    domain.TicketStatusOpen,
		CreatedAt: f.now.Add(-time.Hour),
	}
	for _, m := range mutate {
		m(&t)
	}
	return f.store.SeedTicket(t)
}

func (f *fixture) ticket(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.service.GetTicket(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func httpStatus(err error) int {
	return apperrors.ToDomainError(err).HTTPStatus
}

func TestChangeStatusRecordsHistory(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("Moto averiada")

	updated, err := f.service.ChangeStatus(context.Background(), f.admin, id, domain.TicketStatusResolved)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusResolved, updated.Status)

	stored := f.ticket(t, id)
	assert.Equal(t, domain.TicketStatusResolved, stored.Status)
	require.NotNil(t, stored.ResolvedAt)
	assert.Equal(t, f.now, *stored.ResolvedAt)
	require.NotNil(t, stored.LastUpdated)

	history, err := f.service.ListHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TicketStatusOpen, history[0].PreviousStatus)
	assert.Equal(t, domain.TicketStatusResolved, history[0].Status)
	assert.Equal(t, "admin@repaart.es", history[0].ChangedBy)

	audit := f.store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, domain.AuditTicketUpdate, audit[0].Action)
}

func TestChangeStatusAllowsAnyTransition(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x", func(t *domain.Ticket) { t.Status = domain.TicketStatusResolved })

	_, err := f.service.ChangeStatus(context.Background(), nil, id, domain.TicketStatusOpen)
	require.NoError(t, err)

	history, err := f.service.ListHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.SystemActor, history[0].ChangedBy)
}

func TestChangeStatusFailureLeavesNoHistory(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")

	f.store.FailNext("history.Create", errors.New("quota exceeded"))
	_, err := f.service.ChangeStatus(context.Background(), f.admin, id, domain.TicketStatusInvestigating)
	require.Error(t, err)

	de := apperrors.ToDomainError(err)
	assert.Equal(t, "STATUS_UPDATE_FAILED", de.Code)
	assert.Equal(t, "no se pudo actualizar el estado", de.Message)

	assert.Equal(t, domain.TicketStatusOpen, f.ticket(t, id).Status)
	history, err := f.service.ListHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, history)
	assert.Empty(t, f.events)
}

func TestChangeStatusErrors(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")

	_, err := f.service.ChangeStatus(context.Background(), f.admin, "missing", domain.TicketStatusResolved)
	assert.Equal(t, http.StatusNotFound, httpStatus(err))

	_, err = f.service.ChangeStatus(context.Background(), f.admin, id, "closed")
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	_, err = f.service.ChangeStatus(context.Background(), f.admin, id, "")
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))
}

func TestPublicReplyOnTicketWithoutMessages(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("Pago pendiente")

	result, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "Hola"})
	require.NoError(t, err)
	assert.True(t, result.EmailSent)

	msgs, err := f.service.ListMessages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hola", msgs[0].Text)
	assert.False(t, msgs[0].IsInternal)
	assert.Equal(t, domain.SenderRoleAdmin, msgs[0].SenderRole)
	assert.Equal(t, "admin-1", msgs[0].SenderID)

	ticket := f.ticket(t, id)
	require.NotNil(t, ticket.Response)
	assert.Equal(t, "Hola", *ticket.Response)
	assert.True(t, ticket.Read)
	assert.Equal(t, domain.TicketStatusPendingUser, ticket.Status)
	require.NotNil(t, ticket.RespondedAt)
	assert.Equal(t, f.now, *ticket.RespondedAt)

	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, notify.TicketReplyEmail{
		To:              "rider@repaart.es",
		Subject:         "Pago pendiente",
		Reply:           "Hola",
		OriginalMessage: "mensaje original",
		TicketID:        id,
	}, f.mailer.sent[0])

	notifications := f.store.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, "rider-1", notifications[0].RecipientUID)
	assert.Equal(t, "Nueva respuesta de Soporte", notifications[0].Title)
	assert.Equal(t, "Han respondido a tu ticket: Pago pendiente", notifications[0].Body)
	assert.Equal(t, domain.NotificationKindInfo, notifications[0].Kind)
	assert.Equal(t, "/support", notifications[0].Link)
}

func TestInternalNoteLeavesStatusAndSkipsCollaborators(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x", func(t *domain.Ticket) { t.Status = domain.TicketStatusInvestigating })

	result, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "revisar con contabilidad", Internal: true})
	require.NoError(t, err)
	assert.False(t, result.EmailSent)

	ticket := f.ticket(t, id)
	assert.Equal(t, domain.TicketStatusInvestigating, ticket.Status)
	assert.Nil(t, ticket.Response)
	assert.Nil(t, ticket.RespondedAt)
	require.NotNil(t, ticket.LastMessageAt)

	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.store.Notifications())

	msgs, err := f.service.ListMessages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].IsInternal)

	audit := f.store.AuditEntries()
	require.Len(t, audit, 1)
	assert.Equal(t, domain.AuditTicketNote, audit[0].Action)
}

func TestPublicReplyWithoutEmailOrUID(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x", func(t *domain.Ticket) {
		t.Email = ""
		t.UID = ""
	})

	result, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "hecho"})
	require.NoError(t, err)
	assert.False(t, result.EmailSent)
	assert.Empty(t, f.mailer.sent)
	assert.Empty(t, f.store.Notifications())
	assert.Equal(t, domain.TicketStatusPendingUser, f.ticket(t, id).Status)
}

func TestReplyIsNotDeduplicated(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")

	for i := 0; i < 2; i++ {
		_, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "Hola"})
		require.NoError(t, err)
		f.now = f.now.Add(time.Second)
	}
	msgs, err := f.service.ListMessages(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
	assert.Len(t, f.mailer.sent, 2)
}

func TestReplyEmailFailureCompensates(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")
	f.mailer.err = errors.New("smtp down")

	_, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "Hola"})
	require.Error(t, err)
	assert.Equal(t, "REPLY_FAILED", apperrors.ToDomainError(err).Code)
	assert.ErrorContains(t, err, "smtp down")

	msgs, err := f.service.ListMessages(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	ticket := f.ticket(t, id)
	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Nil(t, ticket.Response)
	assert.False(t, ticket.Read)
	assert.Nil(t, ticket.LastMessageAt)
	assert.Empty(t, f.store.Notifications())
	assert.Empty(t, f.events)
}

func TestReplyCompensationKeepsConcurrentStatusChange(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")
	other := &domain.Admin{UID: "admin-2", Email: "ops@repaart.es"}
	f.mailer.err = errors.New("smtp down")
	f.mailer.before = func() {
		_, err := f.service.ChangeStatus(context.Background(), other, id, domain.TicketStatusResolved)
		require.NoError(t, err)
	}

	_, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "Hola"})
	require.Error(t, err)

	ticket := f.ticket(t, id)
	assert.Equal(t, domain.TicketStatusResolved, ticket.Status)
	assert.Nil(t, ticket.Response)
	assert.Nil(t, ticket.RespondedAt)
	assert.False(t, ticket.Read)
	assert.Nil(t, ticket.LastMessageAt)
}

func TestReplyPersistFailureSendsNoEmail(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")
	f.store.FailNext("tickets.UpdateReplyFields", errors.New("write conflict"))

	_, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "Hola"})
	require.Error(t, err)
	assert.Empty(t, f.mailer.sent)

	msgs, err := f.service.ListMessages(context.Background(), id)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReplyValidation(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")

	_, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: "   "})
	assert.Equal(t, http.StatusBadRequest, httpStatus(err))

	_, err = f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: "missing", Text: "Hola"})
	assert.Equal(t, http.StatusNotFound, httpStatus(err))
}

func TestReplyRendersMarkdownAndSanitizes(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")

	_, err := f.service.Reply(context.Background(), f.admin, ReplyInput{TicketID: id, Text: `<p>ok<script>alert(1)</script></p>`})
	require.NoError(t, err)

	msgs, err := f.service.ListMessages(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "<p>ok</p>", msgs[0].Text)
}

func TestSetRead(t *testing.T) {
	f := newFixture(t, 0)
	id := f.seed("x")

	require.NoError(t, f.service.SetRead(context.Background(), f.admin, id, true))
	assert.True(t, f.ticket(t, id).Read)

	err := f.service.SetRead(context.Background(), f.admin, "missing", true)
	assert.Equal(t, http.StatusNotFound, httpStatus(err))

	f.store.FailNext("tickets.SetRead", errors.New("offline"))
	err = f.service.SetRead(context.Background(), f.admin, id, false)
	assert.Equal(t, "READ_UPDATE_FAILED", apperrors.ToDomainError(err).Code)
}

func TestExportUsesFilter(t *testing.T) {
	f := newFixture(t, 0)
	f.seed("abierto")
	f.seed("cerrado", func(t *domain.Ticket) { t.Status = domain.TicketStatusResolved })

	var buf bytes.Buffer
	filter := aggregator.Filter{Tab: aggregator.TabResolved}
	require.NoError(t, f.service.Export(context.Background(), filter, export.FormatCSV, &buf))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "cerrado")
}
