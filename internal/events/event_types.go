package events

import (
	"time"

	"github.com/repaart/support-desk/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketStatusChanged EventType = "ticket_status_changed"
	EventTicketReplied       EventType = "ticket_replied"
	EventTicketNoteAdded     EventType = "ticket_note_added"
	EventTicketReadChanged   EventType = "ticket_read_changed"
	EventTicketDeleted       EventType = "ticket_deleted"
	EventSupportCenterReset  EventType = "support_center_reset"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UID   string `json:"uid"`
	Email string `json:"email,omitempty"`
}

// ActorFrom builds an Actor for the given admin, falling back to the system actor.
func ActorFrom(admin *domain.Admin) Actor {
	if admin == nil {
		return Actor{UID: domain.SystemActor}
	}
	return Actor{UID: admin.ID(), Email: admin.Email}
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	TicketID  string      `json:"ticket_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// TicketStatusChangedPayload payload.
type TicketStatusChangedPayload struct {
	OldStatus domain.TicketStatus `json:"old_status"`
	NewStatus domain.TicketStatus `json:"new_status"`
	ChangedBy string              `json:"changed_by"`
}

// TicketRepliedPayload is emitted for public replies and internal notes.
type TicketRepliedPayload struct {
	MessageID      string `json:"message_id"`
	Subject        string `json:"subject"`
	RequesterUID   string `json:"requester_uid,omitempty"`
	RequesterEmail string `json:"requester_email,omitempty"`
	Internal       bool   `json:"internal"`
	EmailSent      bool   `json:"email_sent"`
	BodyPreview    string `json:"body_preview"`
}

// TicketReadChangedPayload payload.
type TicketReadChangedPayload struct {
	Read bool `json:"read"`
}

// TicketDeletedPayload payload.
type TicketDeletedPayload struct {
	Subject  string `json:"subject,omitempty"`
	Messages int    `json:"messages"`
	History  int    `json:"history"`
}

// SupportCenterResetPayload payload.
type SupportCenterResetPayload struct {
	Tickets  int `json:"tickets"`
	Messages int `json:"messages"`
	History  int `json:"history"`
	Batches  int `json:"batches"`
}
