// Package aggregator derives filtered views and metrics from a loaded ticket
// set. Every function is pure: callers pass the snapshot and the clock.
package aggregator

import (
	"strings"
	"time"

	"github.com/repaart/support-desk/internal/domain"
)

// Tab selects one of the inbox tabs.
type Tab string

const (
	TabAll      Tab = "all"
	TabOpen     Tab = "open"
	TabResolved Tab = "resolved"
	TabHigh     Tab = "high"
	TabUnread   Tab = "unread"
)

// CategoryAll disables the category filter.
const CategoryAll = "all"

// ParseTab maps a query value to a tab, defaulting to all.
func ParseTab(raw string) Tab {
	switch t := Tab(strings.ToLower(strings.TrimSpace(raw))); t {
	case TabOpen, TabResolved, TabHigh, TabUnread:
		return t
	default:
		return TabAll
	}
}

// Filter is the inbox filter state.
type Filter struct {
	Tab      Tab    `json:"tab"`
	Category string `json:"category"`
	Search   string `json:"search"`
}

// DefaultFilter shows every ticket.
func DefaultFilter() Filter {
	return Filter{Tab: TabAll, Category: CategoryAll}
}

// Apply returns the tickets matching the filter, preserving input order. The
// tab is applied first, the category second and the text search last.
func Apply(tickets []domain.Ticket, filter Filter) []domain.Ticket {
	result := make([]domain.Ticket, 0, len(tickets))
	query := strings.ToLower(strings.TrimSpace(filter.Search))
	for _, t := range tickets {
		if !matchesTab(t, filter.Tab) {
			continue
		}
		if filter.Category != "" && filter.Category != CategoryAll && string(t.Category) != filter.Category {
			continue
		}
		if query != "" && !matchesSearch(t, query) {
			continue
		}
		result = append(result, t)
	}
	return result
}

func matchesTab(t domain.Ticket, tab Tab) bool {
	switch tab {
	case TabOpen:
		return t.Status != domain.TicketStatusResolved
	case TabResolved:
		return t.Status == domain.TicketStatusResolved
	case TabHigh:
		return t.Urgency == domain.TicketUrgencyHigh || t.Urgency == domain.TicketUrgencyCritical
	case TabUnread:
		return !t.Read
	default:
		return true
	}
}

func matchesSearch(t domain.Ticket, query string) bool {
	return strings.Contains(strings.ToLower(t.Subject), query) ||
		strings.Contains(strings.ToLower(t.Email), query) ||
		strings.Contains(strings.ToLower(t.Message), query)
}

// ComputeMetrics folds the ticket set into SupportMetrics. Tickets lacking a
// response time are left out of the average entirely.
func ComputeMetrics(tickets []domain.Ticket, now time.Time, thresholds domain.SLAThresholds) domain.SupportMetrics {
	m := domain.SupportMetrics{
		Total:      len(tickets),
		ByCategory: make(map[domain.TicketCategory]int, len(domain.TicketCategories)),
		BySLA: map[domain.SLASeverity]int{
			domain.SLAOk:       0,
			domain.SLAWarning:  0,
			domain.SLACritical: 0,
		},
	}
	for _, c := range domain.TicketCategories {
		m.ByCategory[c] = 0
	}

	var totalMinutes float64
	var responded int
	for _, t := range tickets {
		switch t.Status {
		case domain.TicketStatusOpen, "":
			m.Open++
		case domain.TicketStatusPendingUser:
			m.Pending++
		case domain.TicketStatusInvestigating:
			m.Investigating++
		case domain.TicketStatusResolved:
			m.Resolved++
		}
		if !t.Read {
			m.Unread++
		}
		switch t.Urgency {
		case domain.TicketUrgencyCritical:
			m.Critical++
		case domain.TicketUrgencyHigh:
			m.High++
		}
		if _, ok := m.ByCategory[t.Category]; ok {
			m.ByCategory[t.Category]++
		}
		m.BySLA[Severity(t, now, thresholds)]++

		if t.HasResponseTime() {
			totalMinutes += t.RespondedAt.Sub(t.CreatedAt).Minutes()
			responded++
		}
	}
	if responded > 0 {
		m.AvgResponseMinutes = totalMinutes / float64(responded)
	}
	return m
}

// Severity grades how long an unresolved ticket has been waiting.
func Severity(t domain.Ticket, now time.Time, thresholds domain.SLAThresholds) domain.SLASeverity {
	if t.IsResolved() || t.CreatedAt.IsZero() {
		return domain.SLAOk
	}
	if thresholds.Warning <= 0 || thresholds.Critical <= 0 {
		thresholds = domain.DefaultSLAThresholds
	}
	elapsed := now.Sub(t.CreatedAt)
	switch {
	case elapsed >= thresholds.Critical:
		return domain.SLACritical
	case elapsed >= thresholds.Warning:
		return domain.SLAWarning
	default:
		return domain.SLAOk
	}
}

// FindByID returns the ticket with the given id from a snapshot.
func FindByID(tickets []domain.Ticket, id string) (domain.Ticket, bool) {
	for _, t := range tickets {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Ticket{}, false
}
