package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/Ghiblit/app/controllers"
	apiv1 "github.com/ManuelReschke/Ghiblit/internal/api/v1"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/security"
)

const testSecret = "router-test-secret"

func newTestApp(checks map[string]HealthCheck) *fiber.App {
	app := fiber.New()
	server := apiv1.NewAPIServer(&controllers.PaymentController{}, &controllers.ImageController{},
		&controllers.UserController{}, &controllers.AuthController{}, nil)
	InstallRouter(app, NewHttpRouter(nil, false, checks), NewApiRouter(server, testSecret, "*", nil))
	return app
}

func decode(t *testing.T, app *fiber.App, method, path, bearer string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]interface{}{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func TestPing(t *testing.T) {
	status, out := decode(t, newTestApp(nil), fiber.MethodGet, "/api/v1/ping", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "pong", out["ping"])
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	app := newTestApp(nil)
	for _, path := range []string{"/api/v1/users/me", "/api/v1/images/mine", "/api/v1/payments/plans"} {
		status, out := decode(t, app, fiber.MethodGet, path, "")
		assert.Equal(t, fiber.StatusUnauthorized, status, path)
		assert.Equal(t, "unauthorized", out["error"], path)
	}

	status, _ := decode(t, app, fiber.MethodGet, "/api/v1/users/me", "not-a-jwt")
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestStatsRouteIsAbsentWithoutController(t *testing.T) {
	app := newTestApp(nil)
	token, _, err := security.IssueAccessToken(1, "admin", "admin", testSecret, time.Hour, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(fiber.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	status, out := decode(t, newTestApp(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
	}), fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "ok", out["status"])

	status, out = decode(t, newTestApp(map[string]HealthCheck{
		"database": func(context.Context) error { return nil },
		"redis":    func(context.Context) error { return errors.New("connection refused") },
	}), fiber.MethodGet, "/health", "")
	assert.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Equal(t, "degraded", out["status"])
	assert.Equal(t, "down", out["checks"].(map[string]interface{})["redis"])
}

func TestOAuthRoutesDisabledWithoutProvider(t *testing.T) {
	req := httptest.NewRequest(fiber.MethodGet, "/auth/google", nil)
	resp, err := newTestApp(nil).Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}
