package controllers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/usercontext"
)

// currentUserID returns the authenticated user, or writes a 401.
func currentUserID(c *fiber.Ctx) (uint, bool) {
	uc := usercontext.GetUserContext(c)
	if !uc.IsLoggedIn || uc.UserID == 0 {
		_ = jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Missing or invalid authentication")
		return 0, false
	}
	return uc.UserID, true
}

// idParam parses a positive numeric route parameter, or writes a 400.
func idParam(c *fiber.Ctx, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Params(name), 10, 64)
	if err != nil || v == 0 {
		_ = jsonError(c, fiber.StatusBadRequest, "bad_request", name+" must be a positive integer")
		return 0, false
	}
	return uint(v), true
}

// clientCountry reads the visitor country set by the CDN.
func clientCountry(c *fiber.Ctx) string {
	return strings.ToUpper(strings.TrimSpace(c.Get("CF-IPCountry")))
}
