package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

type ScheduleHandler struct {
	s service.SchedulerService
}

func NewScheduleHandler(service service.SchedulerService) *ScheduleHandler {
	return &ScheduleHandler{s: service}
}

// Slots previews slot generation for an arbitrary window without touching
// the queue.
func (h *ScheduleHandler) Slots(c *fiber.Ctx) error {
	var req transfer.SlotsRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	slots, err := h.s.GenerateSlots(req.Start, req.End, req.Count)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"slots": slots})
}

func (h *ScheduleHandler) Tick(c *fiber.Ctx) error {
	start := time.Now()
	report, err := h.s.Tick(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	c.Set("X-Tick-Duration", time.Since(start).String())
	return c.JSON(report)
}
