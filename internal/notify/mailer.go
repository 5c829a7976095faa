package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"html"
	"io"
	"net/smtp"
	"strings"
	"time"

	"github.com/emersion/go-message/mail"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/config"
	"github.com/repaart/support-desk/internal/richtext"
)

// TicketReplyEmail is what the requester receives when support answers.
type TicketReplyEmail struct {
	To              string
	Subject         string
	Reply           string
	OriginalMessage string
	TicketID        string
}

// Mailer dispatches support emails.
type Mailer interface {
	SendTicketReply(ctx context.Context, email TicketReplyEmail) error
}

// NewMailer returns an SMTP mailer when SMTP is enabled and a logging
// mailer otherwise.
func NewMailer(cfg config.SMTPConfig, logger *zap.Logger) Mailer {
	if !cfg.Enabled {
		logger.Warn("SMTP disabled; reply emails will only be logged")
		return NewLogMailer(logger)
	}
	return NewSMTPMailer(cfg, logger)
}

// SMTPMailer delivers multipart messages over SMTP.
type SMTPMailer struct {
	cfg    config.SMTPConfig
	logger *zap.Logger
	now    func() time.Time
}

func NewSMTPMailer(cfg config.SMTPConfig, logger *zap.Logger) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, logger: logger, now: time.Now}
}

func (m *SMTPMailer) SendTicketReply(ctx context.Context, email TicketReplyEmail) error {
	if strings.TrimSpace(email.To) == "" {
		return errors.New("no recipient specified")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	raw, err := BuildTicketReply(m.cfg.From, email, m.now())
	if err != nil {
		return fmt.Errorf("build reply email: %w", err)
	}

	client, err := m.dial()
	if err != nil {
		return err
	}
	defer client.Close()

	if m.cfg.User != "" && m.cfg.Password != "" {
		auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("smtp authentication failed: %w", err)
		}
	}
	if err := client.Mail(m.cfg.From); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}
	if err := client.Rcpt(email.To); err != nil {
		return fmt.Errorf("failed to set recipient %s: %w", email.To, err)
	}
	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to initiate data transfer: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data transfer: %w", err)
	}
	if err := client.Quit(); err != nil {
		return fmt.Errorf("failed to quit smtp session: %w", err)
	}

	m.logger.Info("reply email sent",
		zap.String("ticket_id", email.TicketID),
		zap.String("to", email.To),
	)
	return nil
}

func (m *SMTPMailer) dial() (*smtp.Client, error) {
	client, err := smtp.Dial(m.cfg.Addr())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to smtp server: %w", err)
	}
	if m.cfg.StartTLS {
		if err := client.StartTLS(&tls.Config{ServerName: m.cfg.Host}); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to start tls: %w", err)
		}
	}
	return client, nil
}

// BuildTicketReply renders the RFC 5322 message with a plain-text and an
// HTML alternative.
func BuildTicketReply(from string, email TicketReplyEmail, now time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(now)
	h.SetAddressList("From", []*mail.Address{{Name: "Soporte Repaart", Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: email.To}})
	h.SetSubject(replySubject(email))
	h.Set("X-Ticket-ID", email.TicketID)

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	tw, err := mw.CreateInline()
	if err != nil {
		return nil, err
	}
	if err := writeInline(tw, "text/plain", plainBody(email)); err != nil {
		return nil, err
	}
	if err := writeInline(tw, "text/html", htmlBody(email)); err != nil {
		return nil, err
	}
	if err := tw.Close(); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeInline(tw *mail.InlineWriter, contentType, body string) error {
	var ih mail.InlineHeader
	ih.SetContentType(contentType, map[string]string{"charset": "utf-8"})
	w, err := tw.CreatePart(ih)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, body); err != nil {
		return err
	}
	return w.Close()
}

func replySubject(email TicketReplyEmail) string {
	return fmt.Sprintf("Re: %s [Ticket #%s]", email.Subject, email.TicketID)
}

func plainBody(email TicketReplyEmail) string {
	var b strings.Builder
	b.WriteString(richtext.StripHTML(email.Reply))
	b.WriteString("\n\n--- Mensaje original ---\n")
	b.WriteString(email.OriginalMessage)
	b.WriteString("\n")
	return b.String()
}

func htmlBody(email TicketReplyEmail) string {
	var b strings.Builder
	b.WriteString("<div>")
	b.WriteString(email.Reply)
	b.WriteString("</div><hr><p><strong>Mensaje original</strong></p><blockquote>")
	b.WriteString(html.EscapeString(email.OriginalMessage))
	b.WriteString("</blockquote>")
	return b.String()
}

// LogMailer records reply emails in the log instead of sending them.
type LogMailer struct {
	logger *zap.Logger
}

func NewLogMailer(logger *zap.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendTicketReply(_ context.Context, email TicketReplyEmail) error {
	m.logger.Info("reply email (not sent)",
		zap.String("ticket_id", email.TicketID),
		zap.String("to", email.To),
		zap.String("subject", replySubject(email)),
	)
	return nil
}
