package router

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/Ghiblit/app/controllers"
)

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

type HttpRouter struct {
	auth         *controllers.AuthController
	oauthEnabled bool
	checks       map[string]HealthCheck
}

func NewHttpRouter(auth *controllers.AuthController, oauthEnabled bool, checks map[string]HealthCheck) *HttpRouter {
	return &HttpRouter{auth: auth, oauthEnabled: oauthEnabled, checks: checks}
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	app.Get("/health", h.handleHealth)

	// Social OAuth
	if h.oauthEnabled {
		app.Get("/auth/:provider", h.auth.HandleOAuthBegin)
		app.Get("/auth/:provider/callback", h.auth.HandleOAuthCallback)
	} else {
		log.Warn("[Router] OAuth is not configured, /auth routes are disabled")
	}
}

func (h HttpRouter) handleHealth(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
	defer cancel()

	status := fiber.StatusOK
	results := fiber.Map{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			log.Warnf("[Health] %s: %v", name, err)
			results[name] = "down"
			status = fiber.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	return c.Status(status).JSON(fiber.Map{"status": statusText(status), "checks": results})
}

func statusText(status int) string {
	if status == fiber.StatusOK {
		return "ok"
	}
	return "degraded"
}
