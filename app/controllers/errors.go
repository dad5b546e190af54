package controllers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/accounts"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/billing"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/credits"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/transform"
)

type errorMapping struct {
	err     error
	status  int
	code    string
	message string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{credits.ErrInsufficientCredits, fiber.StatusPaymentRequired, "insufficient_credits", "No credits available. Please purchase credits to continue."},
	{billing.ErrInvalidPackage, fiber.StatusBadRequest, "invalid_package", "Invalid or inactive pricing plan"},
	{billing.ErrOfferAlreadyRedeemed, fiber.StatusBadRequest, "offer_already_redeemed", "The introductory offer has already been redeemed"},
	{billing.ErrGateway, fiber.StatusInternalServerError, "gateway_error", "Failed to create payment. Please try again."},
	{billing.ErrWebhookAuth, fiber.StatusUnauthorized, "invalid_signature", "Webhook authentication failed"},
	{billing.ErrUnmatchedWebhook, fiber.StatusNotFound, "unknown_payment", "Webhook does not match any payment"},
	{billing.ErrMalformedWebhook, fiber.StatusBadRequest, "invalid_payload", "Malformed webhook payload"},
	{billing.ErrOrderNotFound, fiber.StatusNotFound, "not_found", "Payment not found"},
	{transform.ErrInvalidImage, fiber.StatusBadRequest, "invalid_image", "The uploaded file is not a supported image"},
	{transform.ErrTokenRequired, fiber.StatusBadRequest, "token_required", "Download token is required"},
	{transform.ErrTokenExpired, fiber.StatusForbidden, "token_expired", "Download token has expired"},
	{transform.ErrImageNotFound, fiber.StatusNotFound, "not_found", "Image not found or access denied"},
	{transform.ErrGenerationFailed, fiber.StatusBadGateway, "generation_failed", "Failed to transform image. Please try again later."},
	{accounts.ErrUserNotFound, fiber.StatusNotFound, "not_found", "User not found"},
	{accounts.ErrUserDisabled, fiber.StatusForbidden, "forbidden", "User inactive"},
}

// StatusForError maps a service error to its HTTP status and error code.
func StatusForError(err error) (int, string, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code, m.message
		}
	}
	return fiber.StatusInternalServerError, "internal_server_error", "Something went wrong"
}

// renderError writes the JSON error body for err. Internal detail is only logged.
func renderError(c *fiber.Ctx, err error) error {
	status, code, message := StatusForError(err)
	if status >= fiber.StatusInternalServerError {
		log.Errorf("[API] %s %s: %v", c.Method(), c.Path(), err)
	} else {
		log.Debugf("[API] %s %s: %v", c.Method(), c.Path(), err)
	}
	return jsonError(c, status, code, message)
}

func jsonError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   code,
		"message": message,
	})
}
