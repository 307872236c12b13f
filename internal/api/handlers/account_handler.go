package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/postqueue/internal/service"
	"github.com/maheshrc27/postqueue/internal/transfer"
)

// AccountHandler manages the Instagram accounts posts are published to.
type AccountHandler struct {
	s service.AccountService
}

func NewAccountHandler(service service.AccountService) *AccountHandler {
	return &AccountHandler{s: service}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context())
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(accounts)
}

// RegisterAccount stores a long-lived token obtained outside the API. The
// token is checked against the Graph API before it is saved.
func (h *AccountHandler) RegisterAccount(c *fiber.Ctx) error {
	var req transfer.RegisterAccountRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	account, err := h.s.Register(c.Context(), req.AccessToken, req.ExpiresIn)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(account)
}

func (h *AccountHandler) SetActive(c *fiber.Ctx) error {
	var req transfer.SetActiveRequest
	if err := parseBody(c, &req); err != nil {
		return errorResponse(c, err)
	}

	if err := h.s.SetActive(c.Context(), c.Params("id"), *req.Active); err != nil {
		return errorResponse(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
