package router

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	apiv1 "github.com/ManuelReschke/Ghiblit/internal/api/v1"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/middleware"
)

const (
	apiRequestsPerMinute = 60
	webhookPath          = "/api/v1/payments/webhook"
)

type ApiRouter struct {
	server       *apiv1.APIServer
	jwtSecret    string
	allowOrigins string
	storage      fiber.Storage
}

// NewApiRouter builds the /api router. storage backs the rate limiter and may
// be nil for in-memory counters.
func NewApiRouter(server *apiv1.APIServer, jwtSecret, allowOrigins string, storage fiber.Storage) *ApiRouter {
	return &ApiRouter{server: server, jwtSecret: jwtSecret, allowOrigins: allowOrigins, storage: storage}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api",
		cors.New(cors.Config{
			AllowOrigins: h.allowOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		}),
		limiter.New(limiter.Config{
			Max:        apiRequestsPerMinute,
			Expiration: time.Minute,
			Storage:    h.storage,
			// Gateway deliveries arrive in bursts from a handful of IPs.
			Next: func(c *fiber.Ctx) bool {
				return strings.HasPrefix(c.Path(), webhookPath)
			},
			LimitReached: func(c *fiber.Ctx) error {
				return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
					"error":   "rate_limited",
					"message": "Too many requests, please slow down",
				})
			},
		}),
		middleware.BearerAuth(h.jwtSecret),
	)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.server)
}
