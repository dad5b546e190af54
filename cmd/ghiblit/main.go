package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/ManuelReschke/Ghiblit/app/controllers"
	"github.com/ManuelReschke/Ghiblit/app/repository"
	apiv1 "github.com/ManuelReschke/Ghiblit/internal/api/v1"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/accounts"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/billing"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/cache"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/credits"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/database"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/env"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/imagegen"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/jobqueue"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/oauth"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/router"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/s3storage"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/session"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/statistics"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/transform"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/upload"
)

// bodyLimit leaves room for multipart framing around the largest accepted image.
const bodyLimit = upload.MaxImageBytes + 1<<20

func main() {
	app, cfg, manager := NewApplication()

	go func() {
		if err := app.Listen(fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port)); err != nil {
			log.Fatal(err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	manager.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}

func NewApplication() (*fiber.App, *config.Config, *jobqueue.Manager) {
	env.SetupEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	database.SetupDatabase()
	cache.SetupCache()

	db := database.GetDB()
	rdb := cache.GetClient()
	repository.InitializeFactory(db)
	repos := repository.GetGlobalRepositories()

	profiles := cache.NewProfileCache(rdb)
	ledger := credits.NewLedger(db, profiles)
	billingSvc := billing.NewServiceFromDB(db, billing.NewDodoClient(cfg.Gateway), profiles).
		WithGatewayTimeout(cfg.Gateway.Timeout)

	store := newObjectStore(cfg)
	stats := counter.New(rdb)
	transformSvc := transform.NewService(repos.Image, repos.StylePrompt, credits.NewGate(ledger),
		imagegen.NewOpenAIClient(cfg.ImageGen), store, cache.NewJSONCache(rdb), stats)
	accountSvc := accounts.NewService(repos.User, repos.Image, profiles, cfg.Auth.SignupCredits)

	authController := controllers.NewAuthController(accountSvc, cfg)
	server := apiv1.NewAPIServer(
		controllers.NewPaymentController(billingSvc, repos.User, ledger),
		controllers.NewImageController(transformSvc),
		controllers.NewUserController(accountSvc),
		authController,
		controllers.NewStatsController(statistics.New(db), stats),
	)

	manager := jobqueue.InitManager(billingSvc, cfg.Reconcile)
	manager.Start()

	app := fiber.New(fiber.Config{
		BodyLimit: bodyLimit,
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs/api/",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
	}))

	if mem, ok := store.(*s3storage.MemoryStore); ok {
		app.Get("/objects/*", func(c *fiber.Ctx) error {
			body, err := mem.Get(c.UserContext(), c.Params("*"))
			if err != nil {
				return fiber.ErrNotFound
			}
			c.Set(fiber.HeaderContentType, s3storage.ContentTypeFor(c.Params("*")))
			return c.Send(body)
		})
	}

	// ROUTER
	checks := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		},
	}
	router.InstallRouter(app,
		router.NewHttpRouter(authController, oauth.Setup(cfg, rdb), checks),
		router.NewApiRouter(server, cfg.Auth.JWTSecret, cfg.HTTP.FrontendURL, session.NewRedisStorage(rdb, session.LimiterDB)),
	)

	return app, cfg, manager
}

// newObjectStore connects to S3. Development without a reachable bucket falls
// back to an in-process store.
func newObjectStore(cfg *config.Config) s3storage.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	client, err := s3storage.NewClient(ctx, cfg.Storage, cfg.IsDev())
	if err == nil {
		return client
	}
	if !cfg.IsDev() {
		log.Fatalf("Object storage unavailable: %v", err)
	}
	log.Printf("Object storage unavailable, using in-memory store: %v", err)
	return s3storage.NewMemoryStore(fmt.Sprintf("http://%s:%s/objects", cfg.HTTP.Host, cfg.HTTP.Port))
}
