package domain

import "time"

// SenderRole indicates who authored a message.
type SenderRole string

const (
	SenderRoleAdmin    SenderRole = "admin"
	SenderRoleCustomer SenderRole = "customer"
)

// TicketMessage captures one entry of a ticket thread. Text may carry
// sanitized HTML.
type TicketMessage struct {
	ID         string
	TicketID   string
	Text       string
	SenderID   string
	SenderRole SenderRole
	CreatedAt  time.Time
	IsInternal bool
}
