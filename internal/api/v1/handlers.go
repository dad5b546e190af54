package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/Ghiblit/app/controllers"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/middleware"
)

// Pong is the body of GET /ping.
type Pong struct {
	Ping string `json:"ping"`
}

// APIServer bundles the controllers served under /api/v1.
type APIServer struct {
	Payments *controllers.PaymentController
	Images   *controllers.ImageController
	Users    *controllers.UserController
	Auth     *controllers.AuthController
	Stats    *controllers.StatsController
}

// NewAPIServer creates a new API server instance
func NewAPIServer(payments *controllers.PaymentController, images *controllers.ImageController,
	users *controllers.UserController, auth *controllers.AuthController, stats *controllers.StatsController) *APIServer {
	return &APIServer{Payments: payments, Images: images, Users: users, Auth: auth, Stats: stats}
}

// GetPing handles the ping endpoint
func (s *APIServer) GetPing(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(Pong{Ping: "pong"})
}

// RegisterHandlers mounts the v1 routes on router. Authentication is resolved
// by the bearer middleware installed on the parent group.
func RegisterHandlers(router fiber.Router, s *APIServer) {
	router.Get("/ping", s.GetPing)

	auth := middleware.RequireAPIAuth

	router.Post("/auth/refresh", auth, s.Auth.HandleRefresh)
	router.Get("/users/me", auth, s.Users.HandleMe)

	images := router.Group("/images")
	images.Get("/styles", s.Images.HandleStyles)
	images.Get("/recent", s.Images.HandleRecent)
	images.Get("/mine", auth, s.Images.HandleMine)
	images.Post("/transform", auth, s.Images.HandleTransform)
	images.Get("/:id/download", auth, s.Images.HandleDownload)
	images.Post("/:id/token", auth, s.Images.HandleReissueToken)

	payments := router.Group("/payments")
	payments.Post("/webhook", s.Payments.HandleWebhook)
	payments.Get("/plans", auth, s.Payments.HandlePlans)
	payments.Post("/create", auth, s.Payments.HandleCreate)
	payments.Get("/history", auth, s.Payments.HandleHistory)
	payments.Get("/:id/status", auth, s.Payments.HandleStatus)

	if s.Stats != nil {
		router.Get("/stats", middleware.RequireAPIAdmin, s.Stats.HandleStats)
	}
}
