package domain

import "time"

// StatusHistoryEntry is an immutable audit trail entry for a status change.
type StatusHistoryEntry struct {
	ID             string
	TicketID       string
	Status         TicketStatus
	PreviousStatus TicketStatus
	ChangedBy      string
	ChangedAt      time.Time
}
