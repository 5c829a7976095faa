package domain

import "time"

// SLASeverity is derived from the time a ticket has been waiting.
type SLASeverity string

const (
	SLAOk       SLASeverity = "ok"
	SLAWarning  SLASeverity = "warning"
	SLACritical SLASeverity = "critical"
)

// SLAThresholds bound the warning and critical severities.
type SLAThresholds struct {
	Warning  time.Duration
	Critical time.Duration
}

// DefaultSLAThresholds are used when configuration leaves them unset.
var DefaultSLAThresholds = SLAThresholds{
	Warning:  2 * time.Hour,
	Critical: 24 * time.Hour,
}

// SupportMetrics summarizes a loaded ticket set. It is never persisted.
type SupportMetrics struct {
	Total              int                    `json:"total"`
	Open               int                    `json:"open"`
	Pending            int                    `json:"pending"`
	Investigating      int                    `json:"investigating"`
	Resolved           int                    `json:"resolved"`
	Unread             int                    `json:"unread"`
	Critical           int                    `json:"critical"`
	High               int                    `json:"high"`
	AvgResponseMinutes float64                `json:"avg_response_minutes"`
	ByCategory         map[TicketCategory]int `json:"by_category"`
	BySLA              map[SLASeverity]int    `json:"by_sla"`
}
