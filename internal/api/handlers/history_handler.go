package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/service"
)

const (
	defaultHistorySpan = 7 * 24 * time.Hour
	defaultStatsSpan   = 30 * 24 * time.Hour
)

type HistoryHandler struct {
	s service.HistoryService
}

func NewHistoryHandler(service service.HistoryService) *HistoryHandler {
	return &HistoryHandler{s: service}
}

// ListHistory filters by media_id, then actor, then the from/to range.
func (h *HistoryHandler) ListHistory(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	if mediaID := c.Query("media_id"); mediaID != "" {
		entries, err := h.s.ListByMedia(c.Context(), mediaID, limit)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(entries)
	}
	if actor := c.Query("actor"); actor != "" {
		entries, err := h.s.ListByActor(c.Context(), actor, limit)
		if err != nil {
			return errorResponse(c, err)
		}
		return c.JSON(entries)
	}

	from, to, err := timeRange(c, defaultHistorySpan)
	if err != nil {
		return errorResponse(c, err)
	}
	entries, err := h.s.ListBetween(c.Context(), from, to, limit)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(entries)
}

func (h *HistoryHandler) Stats(c *fiber.Ctx) error {
	from, to, err := timeRange(c, defaultStatsSpan)
	if err != nil {
		return errorResponse(c, err)
	}
	stats, err := h.s.Stats(c.Context(), from, to)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(stats)
}

func timeRange(c *fiber.Ctx, span time.Duration) (time.Time, time.Time, error) {
	to, err := queryTime(c, "to", time.Now().UTC())
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	from, err := queryTime(c, "from", to.Add(-span))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}
