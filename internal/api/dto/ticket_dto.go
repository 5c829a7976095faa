package dto

import (
	"time"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/domain"
)

// TicketResponse is the wire form of a ticket.
type TicketResponse struct {
	ID            string                `json:"id"`
	Subject       string                `json:"subject"`
	Message       string                `json:"message"`
	Email         string                `json:"email,omitempty"`
	UID           string                `json:"uid,omitempty"`
	DisplayName   string                `json:"display_name,omitempty"`
	Category      domain.TicketCategory `json:"category"`
	Urgency       domain.TicketUrgency  `json:"urgency"`
	Status        domain.TicketStatus   `json:"status"`
	Read          bool                  `json:"read"`
	CreatedAt     time.Time             `json:"created_at"`
	RespondedAt   *time.Time            `json:"responded_at,omitempty"`
	LastMessageAt *time.Time            `json:"last_message_at,omitempty"`
	LastUpdated   *time.Time            `json:"last_updated,omitempty"`
	ResolvedAt    *time.Time            `json:"resolved_at,omitempty"`
	AttachmentURL *string               `json:"attachment_url,omitempty"`
	Response      *string               `json:"response,omitempty"`
	SLA           domain.SLASeverity    `json:"sla,omitempty"`
}

// TicketMessageResponse represents thread message.
type TicketMessageResponse struct {
	ID         string            `json:"id"`
	TicketID   string            `json:"ticket_id"`
	Text       string            `json:"text"`
	SenderID   string            `json:"sender_id"`
	SenderRole domain.SenderRole `json:"sender_role"`
	CreatedAt  time.Time         `json:"created_at"`
	IsInternal bool              `json:"is_internal"`
}

// TicketHistoryResponse is one status timeline entry.
type TicketHistoryResponse struct {
	ID             string              `json:"id"`
	Status         domain.TicketStatus `json:"status"`
	PreviousStatus domain.TicketStatus `json:"previous_status,omitempty"`
	ChangedBy      string              `json:"changed_by"`
	ChangedAt      time.Time           `json:"changed_at"`
}

// TicketListResponse is the aggregated inbox.
type TicketListResponse struct {
	Tickets  []TicketResponse      `json:"tickets"`
	Filtered []TicketResponse      `json:"filtered"`
	Metrics  domain.SupportMetrics `json:"metrics"`
	Filter   aggregator.Filter     `json:"filter"`
}

// UpdateStatusRequest payload.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ReplyRequest payload.
type ReplyRequest struct {
	Text     string `json:"text"`
	Internal bool   `json:"internal"`
}

// ReplyResponse reports the posted message.
type ReplyResponse struct {
	Message   TicketMessageResponse `json:"message"`
	Ticket    TicketResponse        `json:"ticket"`
	EmailSent bool                  `json:"email_sent"`
}

// SetReadRequest payload.
type SetReadRequest struct {
	Read bool `json:"read"`
}

// ResetRequest must carry the confirmation word.
type ResetRequest struct {
	Confirm string `json:"confirm"`
}

// ResetConfirmation is the word a reset request must carry.
const ResetConfirmation = "RESET"

// NewTicketResponse maps a ticket, stamping its SLA severity.
func NewTicketResponse(t domain.Ticket, now time.Time, thresholds domain.SLAThresholds) TicketResponse {
	return TicketResponse{
		ID:            t.ID,
		Subject:       t.Subject,
		Message:       t.Message,
		Email:         t.Email,
		UID:           t.UID,
		DisplayName:   t.DisplayName,
		Category:      t.Category,
		Urgency:       t.Urgency,
		Status:        t.Status,
		Read:          t.Read,
		CreatedAt:     t.CreatedAt,
		RespondedAt:   t.RespondedAt,
		LastMessageAt: t.LastMessageAt,
		LastUpdated:   t.LastUpdated,
		ResolvedAt:    t.ResolvedAt,
		AttachmentURL: t.AttachmentURL,
		Response:      t.Response,
		SLA:           aggregator.Severity(t, now, thresholds),
	}
}

// NewTicketResponses maps a ticket list.
func NewTicketResponses(tickets []domain.Ticket, now time.Time, thresholds domain.SLAThresholds) []TicketResponse {
	out := make([]TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, NewTicketResponse(t, now, thresholds))
	}
	return out
}

// NewTicketMessageResponse maps a message.
func NewTicketMessageResponse(msg domain.TicketMessage) TicketMessageResponse {
	return TicketMessageResponse{
		ID:         msg.ID,
		TicketID:   msg.TicketID,
		Text:       msg.Text,
		SenderID:   msg.SenderID,
		SenderRole: msg.SenderRole,
		CreatedAt:  msg.CreatedAt,
		IsInternal: msg.IsInternal,
	}
}

// NewTicketMessageResponses maps a thread.
func NewTicketMessageResponses(msgs []domain.TicketMessage) []TicketMessageResponse {
	out := make([]TicketMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, NewTicketMessageResponse(m))
	}
	return out
}

// NewTicketHistoryResponses maps a status timeline.
func NewTicketHistoryResponses(entries []domain.StatusHistoryEntry) []TicketHistoryResponse {
	out := make([]TicketHistoryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, TicketHistoryResponse{
			ID:             e.ID,
			Status:         e.Status,
			PreviousStatus: e.PreviousStatus,
			ChangedBy:      e.ChangedBy,
			ChangedAt:      e.ChangedAt,
		})
	}
	return out
}
