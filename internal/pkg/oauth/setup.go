package oauth

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
	"github.com/redis/go-redis/v9"
	gothfiber "github.com/shareed2k/goth_fiber"

	"github.com/ManuelReschke/Ghiblit/internal/pkg/config"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/session"
)

const ProviderGoogle = "google"

// CallbackURL is where the provider sends the user back to.
func CallbackURL(cfg *config.Config, provider string) string {
	base := strings.TrimRight(cfg.HTTP.PublicDomain, "/")
	if base == "" {
		base = "http://localhost:" + cfg.HTTP.Port
	}
	return base + "/auth/" + provider + "/callback"
}

// Setup registers the Google provider and the Redis-backed OAuth state store.
// It returns false when no client credentials are configured.
func Setup(cfg *config.Config, rdb *redis.Client) bool {
	if cfg.Auth.GoogleKey == "" || cfg.Auth.GoogleSecret == "" {
		log.Warn("[OAuth] GOOGLE_KEY/GOOGLE_SECRET not set, Google login disabled")
		return false
	}

	goth.UseProviders(
		google.New(cfg.Auth.GoogleKey, cfg.Auth.GoogleSecret, CallbackURL(cfg, ProviderGoogle), "email", "profile"),
	)

	gothfiber.SessionStore = session.NewRedisStore(rdb, session.StoreConfig{
		KeyLookup:  "cookie:" + gothic.SessionName,
		Expiration: time.Hour,
		Secure:     !cfg.IsDev(),
		Database:   session.OAuthStateDB,
	})
	return true
}
