package controllers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/accounts"
)

type UserController struct {
	accounts *accounts.Service
}

func NewUserController(svc *accounts.Service) *UserController {
	return &UserController{accounts: svc}
}

// HandleMe returns the caller's profile including the credit balance.
func (uc *UserController) HandleMe(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}
	view, err := uc.accounts.Profile(c.UserContext(), userID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(view)
}
