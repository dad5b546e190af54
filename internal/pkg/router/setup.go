package router

import (
	"github.com/gofiber/fiber/v2"
)

// Router installs a group of routes on the app.
type Router interface {
	InstallRouter(app *fiber.App)
}

// InstallRouter installs the HTTP routes first so the API group sees the
// app-wide middleware, then the API routes.
func InstallRouter(app *fiber.App, httpRouter *HttpRouter, apiRouter *ApiRouter) {
	setup(app, httpRouter, apiRouter)
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
