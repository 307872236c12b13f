package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/models"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

type QueueHandler struct {
	q service.QueueService
	p service.PostingService
}

func NewQueueHandler(queue service.QueueService, posting service.PostingService) *QueueHandler {
	return &QueueHandler{q: queue, p: posting}
}

func (h *QueueHandler) ListEntries(c *fiber.Ctx) error {
	status := models.QueueStatus(c.Query("status"))

	entries, err := h.q.List(c.Context(), status, c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(entries)
}

func (h *QueueHandler) GetEntry(c *fiber.Ctx) error {
	entry, err := h.q.Get(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(entry)
}

// Enqueue schedules a specific item outside the scheduler's slots.
func (h *QueueHandler) Enqueue(c *fiber.Ctx) error {
	var req transfer.EnqueueRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	entry, err := h.q.Enqueue(c.Context(), req.MediaID, req.ScheduledFor)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

// Action records a human decision. Losing the race to another actor is a
// normal response carrying the winner's outcome.
func (h *QueueHandler) Action(c *fiber.Ctx) error {
	var req transfer.ActionRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	out, err := h.p.HandleHumanAction(c.Context(), c.Params("id"), GetActor(c), service.HumanAction(req.Action))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(out)
}

func (h *QueueHandler) Attempt(c *fiber.Ctx) error {
	out, err := h.p.RequestAttempt(c.Context(), c.Params("id"), GetActor(c))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(out)
}

func (h *QueueHandler) Abort(c *fiber.Ctx) error {
	id := c.Params("id")
	if !h.p.Abort(id) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No attempt in flight for " + id,
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"aborted": true})
}
