package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidStatus   = errors.New("invalid ticket status")
	ErrInvalidUrgency  = errors.New("invalid ticket urgency")
	ErrInvalidCategory = errors.New("invalid ticket category")
	ErrMalformedTicket = errors.New("malformed ticket")
)

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen          TicketStatus = "open"
	TicketStatusPendingUser   TicketStatus = "pending_user"
	TicketStatusInvestigating TicketStatus = "investigating"
	TicketStatusResolved      TicketStatus = "resolved"
)

// ParseStatus validates a stored or requested status. A missing status is
// read as open.
func ParseStatus(raw string) (TicketStatus, error) {
	switch s := TicketStatus(strings.TrimSpace(raw)); s {
	case "":
		return TicketStatusOpen, nil
	case TicketStatusOpen, TicketStatusPendingUser, TicketStatusInvestigating, TicketStatusResolved:
		return s, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
}

// TicketUrgency enumerates how urgent the requester flagged the case.
type TicketUrgency string

const (
	TicketUrgencyLow      TicketUrgency = "low"
	TicketUrgencyMedium   TicketUrgency = "medium"
	TicketUrgencyHigh     TicketUrgency = "high"
	TicketUrgencyCritical TicketUrgency = "critical"
)

// ParseUrgency validates an urgency value.
func ParseUrgency(raw string) (TicketUrgency, error) {
	switch u := TicketUrgency(strings.TrimSpace(raw)); u {
	case TicketUrgencyLow, TicketUrgencyMedium, TicketUrgencyHigh, TicketUrgencyCritical:
		return u, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidUrgency, raw)
	}
}

// TicketCategory classifies the support case. Values match what the
// franchise app stores.
type TicketCategory string

const (
	TicketCategoryOperational TicketCategory = "operativa"
	TicketCategoryFinancial   TicketCategory = "finanzas"
	TicketCategoryTechnical   TicketCategory = "tecnico"
	TicketCategoryAccident    TicketCategory = "accidente"
)

// TicketCategories lists every category in display order.
var TicketCategories = []TicketCategory{
	TicketCategoryOperational,
	TicketCategoryFinancial,
	TicketCategoryTechnical,
	TicketCategoryAccident,
}

// ParseCategory validates a category value.
func ParseCategory(raw string) (TicketCategory, error) {
	c := TicketCategory(strings.TrimSpace(raw))
	for _, known := range TicketCategories {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidCategory, raw)
}

// Ticket is a customer support case.
type Ticket struct {
	ID            string
	Subject       string
	Message       string
	Email         string
	UID           string
	DisplayName   string
	Category      TicketCategory
	Urgency       TicketUrgency
	Status        TicketStatus
	Read          bool
	CreatedAt     time.Time
	RespondedAt   *time.Time
	LastMessageAt *time.Time
	LastUpdated   *time.Time
	ResolvedAt    *time.Time
	AttachmentURL *string
	Response      *string
}

// Validate checks the enum fields and required attributes.
func (t *Ticket) Validate() error {
	if t == nil {
		return ErrMalformedTicket
	}
	status, err := ParseStatus(string(t.Status))
	if err != nil {
		return err
	}
	t.Status = status
	if _, err := ParseUrgency(string(t.Urgency)); err != nil {
		return err
	}
	if _, err := ParseCategory(string(t.Category)); err != nil {
		return err
	}
	if strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: subject required", ErrMalformedTicket)
	}
	if t.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at required", ErrMalformedTicket)
	}
	return nil
}

// IsResolved reports whether the ticket is closed from the desk's point of view.
func (t Ticket) IsResolved() bool {
	return t.Status == TicketStatusResolved
}

// HasResponseTime reports whether the ticket can contribute to the average
// response time.
func (t Ticket) HasResponseTime() bool {
	return !t.CreatedAt.IsZero() && t.RespondedAt != nil && !t.RespondedAt.IsZero()
}

// ReplyFields is the part of a ticket a reply mutates. It is captured before
// a reply so the change can be undone.
type ReplyFields struct {
	Status        TicketStatus
	Response      *string
	RespondedAt   *time.Time
	Read          bool
	LastMessageAt *time.Time
}

// Revert undoes a reply field by field: a field is restored to before only
// while it still holds the value the reply wrote, so later writes by others
// survive.
func (f ReplyFields) Revert(before, after ReplyFields) ReplyFields {
	out := f
	if f.Status == after.Status {
		out.Status = before.Status
	}
	if equalPtr(f.Response, after.Response) {
		out.Response = before.Response
	}
	if equalTime(f.RespondedAt, after.RespondedAt) {
		out.RespondedAt = before.RespondedAt
	}
	if f.Read == after.Read {
		out.Read = before.Read
	}
	if equalTime(f.LastMessageAt, after.LastMessageAt) {
		out.LastMessageAt = before.LastMessageAt
	}
	return out
}

func equalPtr[T comparable](a, b *T) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

// ReplyFields returns the current reply-related state.
func (t Ticket) ReplyFields() ReplyFields {
	return ReplyFields{
		Status:        t.Status,
		Response:      t.Response,
		RespondedAt:   t.RespondedAt,
		Read:          t.Read,
		LastMessageAt: t.LastMessageAt,
	}
}
