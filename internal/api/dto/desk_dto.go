package dto

import (
	"time"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/desk"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/pkg/util/errorutil"
)

// DeskOpenedResponse identifies a new desk session.
type DeskOpenedResponse struct {
	ID string `json:"id"`
}

// FilterRequest payload.
type FilterRequest struct {
	Tab      string `json:"tab"`
	Category string `json:"category"`
	Search   string `json:"search"`
}

// Filter converts the payload.
func (r FilterRequest) Filter() aggregator.Filter {
	return aggregator.Filter{Tab: aggregator.Tab(r.Tab), Category: r.Category, Search: r.Search}
}

// SelectionRequest payload. An empty ticket id clears the selection.
type SelectionRequest struct {
	TicketID string `json:"ticket_id"`
}

// DraftRequest payload.
type DraftRequest struct {
	Text     string `json:"text"`
	Internal bool   `json:"internal"`
}

// ToggleReadResponse reports the resulting read flag.
type ToggleReadResponse struct {
	Read bool `json:"read"`
}

// ErrorResponse mirrors the error envelope inside a desk view.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DeskViewResponse is one frame of the desk stream.
type DeskViewResponse struct {
	Tickets         []TicketResponse        `json:"tickets"`
	Filtered        []TicketResponse        `json:"filtered"`
	Metrics         domain.SupportMetrics   `json:"metrics"`
	Selected        *TicketResponse         `json:"selected,omitempty"`
	Messages        []TicketMessageResponse `json:"messages"`
	Filter          aggregator.Filter       `json:"filter"`
	Draft           DraftRequest            `json:"draft"`
	Loading         bool                    `json:"loading"`
	MessagesLoading bool                    `json:"messages_loading"`
	Error           *ErrorResponse          `json:"error,omitempty"`
}

// NewDeskViewResponse maps a desk view.
func NewDeskViewResponse(v desk.View, now time.Time, thresholds domain.SLAThresholds) DeskViewResponse {
	resp := DeskViewResponse{
		Tickets:         NewTicketResponses(v.Tickets, now, thresholds),
		Filtered:        NewTicketResponses(v.Filtered, now, thresholds),
		Metrics:         v.Metrics,
		Messages:        NewTicketMessageResponses(v.Messages),
		Filter:          v.Filter,
		Draft:           DraftRequest{Text: v.Draft.Text, Internal: v.Draft.Internal},
		Loading:         v.Loading,
		MessagesLoading: v.MessagesLoading,
	}
	if v.Selected != nil {
		selected := NewTicketResponse(*v.Selected, now, thresholds)
		resp.Selected = &selected
	}
	if v.Err != nil {
		de := errorutil.ToDomainError(v.Err)
		resp.Error = &ErrorResponse{Code: de.Code, Message: de.Message}
	}
	return resp
}
