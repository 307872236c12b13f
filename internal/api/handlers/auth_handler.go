package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/internal/transfer"
	"github.com/maheshrc27/postqueue/pkg/utils"
)

const sessionDuration = 24 * time.Hour

type AuthHandler struct {
	s          service.ApiKeyService
	secretKey  string
	cookieName string
}

func NewAuthHandler(secretKey, cookieName string, service service.ApiKeyService) *AuthHandler {
	return &AuthHandler{s: service, secretKey: secretKey, cookieName: cookieName}
}

// Login trades an operator key for a session token, returned in the body and
// as a cookie.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req transfer.LoginRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	actor, err := h.s.GetActor(c.Context(), req.ApiKey)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "Invalid api key",
		})
	}

	token, err := utils.GenerateToken(h.secretKey, actor, sessionDuration)
	if err != nil {
		return err
	}

	c.Cookie(&fiber.Cookie{
		Name:     h.cookieName,
		Value:    token,
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
		Path:     "/",
		Expires:  time.Now().Add(sessionDuration),
	})
	return c.JSON(fiber.Map{"token": token, "actor": actor})
}

func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	c.Cookie(&fiber.Cookie{
		Name:   h.cookieName,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	return c.SendStatus(fiber.StatusOK)
}

func (h *AuthHandler) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"actor": GetActor(c)})
}
