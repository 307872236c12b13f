package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

type SettingsHandler struct {
	s      service.SettingsService
	chatID int64
}

func NewSettingsHandler(service service.SettingsService, chatID int64) *SettingsHandler {
	return &SettingsHandler{s: service, chatID: chatID}
}

func (h *SettingsHandler) GetSettingsInfo(c *fiber.Ctx) error {
	settingsInfo, err := h.s.GetSettingsInfo(c.Context(), h.chatID)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(settingsInfo)
}

// UpdateSettings applies only the fields present in the body.
func (h *SettingsHandler) UpdateSettings(c *fiber.Ctx) error {
	var req transfer.SettingsRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	settings, err := h.s.UpdateSettings(c.Context(), h.chatID, service.SettingsPatch{
		IsPaused:        req.IsPaused,
		DryRun:          req.DryRun,
		AutoPostEnabled: req.AutoPostEnabled,
		AccountID:       req.AccountID,
		PostsPerDay:     req.PostsPerDay,
		WindowStartHour: req.WindowStartHour,
		WindowEndHour:   req.WindowEndHour,
		Category:        req.Category,
	})
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(settings)
}
