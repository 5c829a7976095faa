package domain

import "time"

// NotificationKind tags in-app notifications.
type NotificationKind string

const (
	NotificationKindInfo    NotificationKind = "info"
	NotificationKindWarning NotificationKind = "warning"
)

// Notification is an in-app message for a franchise user.
type Notification struct {
	ID           string
	RecipientUID string
	Title        string
	Body         string
	Kind         NotificationKind
	Link         string
	Read         bool
	CreatedAt    time.Time
}

// AuditAction enumerates audited support actions.
type AuditAction string

const (
	AuditTicketUpdate   AuditAction = "TICKET_UPDATE"
	AuditTicketReplied  AuditAction = "TICKET_REPLIED"
	AuditTicketNote     AuditAction = "TICKET_NOTE"
	AuditTicketRead     AuditAction = "TICKET_READ"
	AuditTicketDeleted  AuditAction = "TICKET_DELETED"
	AuditTicketClearAll AuditAction = "TICKET_CLEAR_ALL"
)

// AuditEntry records who did what.
type AuditEntry struct {
	ID         string
	ActorUID   string
	ActorEmail string
	Action     AuditAction
	Context    map[string]any
	CreatedAt  time.Time
}
