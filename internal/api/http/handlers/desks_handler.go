package handlers

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/repaart/support-desk/internal/api/dto"
	"github.com/repaart/support-desk/internal/desk"
	"github.com/repaart/support-desk/internal/domain"
	apperrors "github.com/repaart/support-desk/pkg/util/errorutil"
)

// DesksHandler exposes desk sessions.
type DesksHandler struct {
	registry   *desk.Registry
	thresholds domain.SLAThresholds
	now        func() time.Time
	keepAlive  time.Duration
	logger     *zap.Logger
}

// NewDesksHandler constructs handler.
func NewDesksHandler(registry *desk.Registry, thresholds domain.SLAThresholds, logger *zap.Logger) *DesksHandler {
	return &DesksHandler{
		registry:   registry,
		thresholds: thresholds,
		now:        time.Now,
		keepAlive:  15 * time.Second,
		logger:     logger,
	}
}

// Open POST /api/desks.
func (h *DesksHandler) Open(c *fiber.Ctx) error {
	admin, err := adminFrom(c)
	if err != nil {
		return err
	}
	d := h.registry.Open(c.UserContext(), admin)
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.DeskOpenedResponse{ID: d.ID()}})
}

// View GET /api/desks/:id.
func (h *DesksHandler) View(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewDeskViewResponse(d.View(), h.now(), h.thresholds)})
}

// Events GET /api/desks/:id/events streams desk views as server-sent events.
// A desk supports one stream at a time.
func (h *DesksHandler) Events(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	detach, err := d.Attach()
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer detach()
		ticker := time.NewTicker(h.keepAlive)
		defer ticker.Stop()

		if err := h.writeView(w, d.View()); err != nil {
			return
		}
		updates := d.Updates()
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					_, _ = fmt.Fprint(w, "event: closed\ndata: {}\n\n")
					_ = w.Flush()
					return
				}
				if err := h.writeView(w, view); err != nil {
					h.logger.Debug("desk stream ended", zap.String("desk_id", d.ID()), zap.Error(err))
					return
				}
			case <-ticker.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func (h *DesksHandler) writeView(w *bufio.Writer, view desk.View) error {
	payload, err := json.Marshal(dto.NewDeskViewResponse(view, h.now(), h.thresholds))
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: view\ndata: %s\n\n", payload); err != nil {
		return err
	}
	return w.Flush()
}

// SetFilter PUT /api/desks/:id/filter.
func (h *DesksHandler) SetFilter(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	var req dto.FilterRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := d.SetFilter(req.Filter()); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Select PUT /api/desks/:id/selection.
func (h *DesksHandler) Select(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	var req dto.SelectionRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := d.Select(req.TicketID); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// SetDraft PUT /api/desks/:id/draft.
func (h *DesksHandler) SetDraft(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	var req dto.DraftRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if err := d.SetDraft(desk.Draft{Text: req.Text, Internal: req.Internal}); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

// Reply POST /api/desks/:id/reply.
func (h *DesksHandler) Reply(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	result, err := d.Reply(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": dto.ReplyResponse{
		Message:   dto.NewTicketMessageResponse(result.Message),
		Ticket:    dto.NewTicketResponse(result.Ticket, h.now(), h.thresholds),
		EmailSent: result.EmailSent,
	}})
}

// ToggleRead POST /api/desks/:id/read/:ticketID.
func (h *DesksHandler) ToggleRead(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	read, err := d.ToggleRead(c.UserContext(), c.Params("ticketID"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.ToggleReadResponse{Read: read}})
}

// ChangeStatus PATCH /api/desks/:id/tickets/:ticketID/status.
func (h *DesksHandler) ChangeStatus(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	ticket, err := d.ChangeStatus(c.UserContext(), c.Params("ticketID"), domain.TicketStatus(req.Status))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewTicketResponse(*ticket, h.now(), h.thresholds)})
}

// DeleteTicket DELETE /api/desks/:id/tickets/:ticketID.
func (h *DesksHandler) DeleteTicket(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	report, err := d.Delete(c.UserContext(), c.Params("ticketID"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Reset POST /api/desks/:id/reset.
func (h *DesksHandler) Reset(c *fiber.Ctx) error {
	d, err := h.desk(c)
	if err != nil {
		return err
	}
	var req dto.ResetRequest
	if err := c.BodyParser(&req); err != nil || req.Confirm != dto.ResetConfirmation {
		return apperrors.NewValidationError("reset requires confirmation", map[string]any{"confirm": dto.ResetConfirmation})
	}
	report, err := d.Reset(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": report})
}

// Close DELETE /api/desks/:id.
func (h *DesksHandler) Close(c *fiber.Ctx) error {
	admin, err := adminFrom(c)
	if err != nil {
		return err
	}
	if err := h.registry.Close(c.Params("id"), admin); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (h *DesksHandler) desk(c *fiber.Ctx) (*desk.Desk, error) {
	admin, err := adminFrom(c)
	if err != nil {
		return nil, err
	}
	return h.registry.Get(c.Params("id"), admin)
}
