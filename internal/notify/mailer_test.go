package notify

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-message/mail"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/config"
)

func TestBuildTicketReplyHasBothParts(t *testing.T) {
	raw, err := BuildTicketReply("soporte@repaart.es", TicketReplyEmail{
		To:              "rider@repaart.es",
		Subject:         "Moto averiada",
		Reply:           "<p>Ya está <strong>reparada</strong></p>",
		OriginalMessage: "La moto no arranca",
		TicketID:        "t-42",
	}, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	require.NoError(t, err)

	subject, err := mr.Header.Subject()
	require.NoError(t, err)
	assert.Equal(t, "Re: Moto averiada [Ticket #t-42]", subject)
	assert.Equal(t, "t-42", mr.Header.Get("X-Ticket-ID"))

	var bodies = map[string]string{}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		ih, ok := part.Header.(*mail.InlineHeader)
		require.True(t, ok)
		ct, _, err := ih.ContentType()
		require.NoError(t, err)
		body, err := io.ReadAll(part.Body)
		require.NoError(t, err)
		bodies[ct] = string(body)
	}

	assert.Contains(t, bodies["text/plain"], "Ya está reparada")
	assert.Contains(t, bodies["text/plain"], "La moto no arranca")
	assert.Contains(t, bodies["text/html"], "<strong>reparada</strong>")
}

func TestNewMailerFallsBackToLog(t *testing.T) {
	m := NewMailer(config.SMTPConfig{Enabled: false}, zap.NewNop())
	_, ok := m.(*LogMailer)
	assert.True(t, ok)
	assert.NoError(t, m.SendTicketReply(context.Background(), TicketReplyEmail{To: "x@y.z"}))
}

func TestSMTPMailerRequiresRecipient(t *testing.T) {
	m := NewSMTPMailer(config.SMTPConfig{Enabled: true, Host: "localhost", Port: 2525}, zap.NewNop())
	assert.Error(t, m.SendTicketReply(context.Background(), TicketReplyEmail{}))
}
