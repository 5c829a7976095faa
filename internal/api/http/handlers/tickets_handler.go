package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/repaart/support-desk/internal/aggregator"
	"github.com/repaart/support-desk/internal/api/dto"
	"github.com/repaart/support-desk/internal/auth"
	"github.com/repaart/support-desk/internal/domain"
	"github.com/repaart/support-desk/internal/export"
	"github.com/repaart/support-desk/internal/service"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

// TicketsHandler exposes the admin ticket endpoints.
type TicketsHandler struct {
	service    *service.SupportService
	thresholds domain.SLAThresholds
	now        func() time.Time
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(supportService *service.SupportService, thresholds domain.SLAThresholds, clock func() time.Time) *TicketsHandler {
	if clock == nil {
		clock = time.Now
	}
	return &TicketsHandler{service: supportService, thresholds: thresholds, now: clock}
}

// ListTickets GET /api/tickets.
func (h *TicketsHandler) ListTickets(c *fiber.Ctx) error {
	tickets, err := h.service.ListRecent(c.UserContext())
	if err != nil {
		return err
	}
	filter := parseFilter(c)
	now := h.now()
	return c.JSON(fiber.Map{"data": dto.TicketListResponse{
		Tickets:  dto.NewTicketResponses(tickets, now, h.thresholds),
		Filtered: dto.NewTicketResponses(aggregator.Apply(tickets, filter), now, h.thresholds),
		Metrics:  aggregator.ComputeMetrics(tickets, now, h.thresholds),
		Filter:   filter,
	}})
}

// ExportTickets GET /api/tickets/export.
func (h *TicketsHandler) ExportTickets(c *fiber.Ctx) error {
	format, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		return apperrors.NewValidationError(err.Error(), map[string]any{"format": c.Query("format")})
	}
	var buf bytes.Buffer
	if err := h.service.Export(c.UserContext(), parseFilter(c), format, &buf); err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, format.ContentType())
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", format.Filename(h.now().Format("2006-01-02"))))
	return c.Send(buf.Bytes())
}

// GetTicket GET /api/tickets/:id.
func (h *TicketsHandler) GetTicket(c *fiber.Ctx) error {
	ticket, err := h.service.GetTicket(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(*ticket, h.now(), h.thresholds)})
}

// ListMessages GET /api/tickets/:id/messages.
func (h *TicketsHandler) ListMessages(c *fiber.Ctx) error {
	msgs, err := h.service.ListMessages(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketMessageResponses(msgs)})
}

// ListHistory GET /api/tickets/:id/history.
func (h *TicketsHandler) ListHistory(c *fiber.Ctx) error {
	entries, err := h.service.ListHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketHistoryResponses(entries)})
}

// UpdateStatus PATCH /api/tickets/:id/status.
func (h *TicketsHandler) UpdateStatus(c *fiber.Ctx) error {
	admin, err := adminFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := h.service.ChangeStatus(c.UserContext(), admin, c.Params("id"), domain.TicketStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(*ticket, h.now(), h.thresholds)})
}

// Reply POST /api/tickets/:id/replies.
func (h *TicketsHandler) Reply(c *fiber.Ctx) error {
	admin, err := adminFrom(c)
	if err != nil {
		return err
	}
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.service.Reply(c.UserContext(), admin, service.ReplyInput{
		TicketID: c.Params("id"),
		Text:     req.Text,
		Internal: req.Internal,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": h.replyResponse(result)})
}

// SetRead PATCH /api/tickets/:id/read.
func (h *TicketsHandler) SetRead(c *fiber.Ctx) error {
	admin, err := adminFrom(c)
	if err != nil {
		return err
	}
	var req dto.SetReadRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := h.service.SetRead(c.UserContext(), admin, c.Params("id"), req.Read); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// DeleteTicket DELETE /api/tickets/:id.
func (h *TicketsHandler) DeleteTicket(c *fiber.Ctx) error {
	admin, err := adminFrom(c)
	if err != nil {
		return err
	}
	report, err := h.service.DeleteTicket(c.UserContext(), admin, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// ResetCenter POST /api/tickets/reset.
func (h *TicketsHandler) ResetCenter(c *fiber.Ctx) error {
	admin, err := adminFrom(c)
	if err != nil {
		return err
	}
	var req dto.ResetRequest
	if err := c.BodyParser(&req); err != nil || req.Confirm != dto.ResetConfirmation {
		return apperrors.NewValidationError("reset requires confirmation", map[string]any{"confirm": dto.ResetConfirmation})
	}
	report, err := h.service.ResetCenter(c.UserContext(), admin)
	if err != nil {
		de := apperrors.ToDomainError(err)
		return c.Status(de.HTTPStatus).JSON(fiber.Map{
			"data":  report,
			"error": fiber.Map{"code": de.Code, "message": de.Message},
		})
	}
	return c.JSON(fiber.Map{"data": report})
}

func (h *TicketsHandler) replyResponse(result *service.ReplyResult) dto.ReplyResponse {
	return dto.ReplyResponse{
		Message:   dto.NewTicketMessageResponse(result.Message),
		Ticket:    dto.NewTicketResponse(result.Ticket, h.now(), h.thresholds),
		EmailSent: result.EmailSent,
	}
}

func parseFilter(c *fiber.Ctx) aggregator.Filter {
	filter := aggregator.DefaultFilter()
	filter.Tab = aggregator.ParseTab(c.Query("tab"))
	if category := c.Query("category"); category != "" {
		filter.Category = category
	}
	filter.Search = c.Query("q")
	return filter
}

func adminFrom(c *fiber.Ctx) (*domain.Admin, error) {
	admin, ok := auth.AdminFromContext(c)
	if !ok {
		return nil, apperrors.NewUnauthorized("admin required")
	}
	return admin, nil
}
