package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

type MediaHandler struct {
	m  service.MediaService
	s  service.SelectorService
	lk service.LockService
}

func NewMediaHandler(media service.MediaService, selector service.SelectorService, locks service.LockService) *MediaHandler {
	return &MediaHandler{m: media, s: selector, lk: locks}
}

func (h *MediaHandler) Register(c *fiber.Ctx) error {
	var req transfer.RegisterMediaRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	item, err := h.m.Register(c.Context(), service.RegisterMedia{
		SourceURI: req.SourceURI,
		FileName:  req.FileName,
		Category:  req.Category,
		Caption:   req.Caption,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(item)
}

func (h *MediaHandler) ListMedia(c *fiber.Ctx) error {
	items, err := h.m.List(c.Context(), c.Query("category"), c.QueryBool("active", false),
		c.QueryInt("limit", 50), c.QueryInt("offset", 0))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(items)
}

func (h *MediaHandler) GetMedia(c *fiber.Ctx) error {
	item, err := h.m.Get(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(item)
}

func (h *MediaHandler) SetActive(c *fiber.Ctx) error {
	var req transfer.SetActiveRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	if err := h.m.SetActive(c.Context(), c.Params("id"), *req.Active); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// Next previews the item the selector would pick for category right now.
func (h *MediaHandler) Next(c *fiber.Ctx) error {
	item, err := h.s.SelectNext(c.Context(), c.Query("category"))
	if err != nil {
		return errorResponse(c, err)
	}
	if item == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No eligible media",
		})
	}
	return c.JSON(item)
}

func (h *MediaHandler) ListLocks(c *fiber.Ctx) error {
	locks, err := h.lk.ListLocks(c.Context(), c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(locks)
}
