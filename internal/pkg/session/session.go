package session

import (
	"net"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2/middleware/session"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"
)

// OAuthStateDB keeps OAuth state apart from the cache keys (DB 0).
const OAuthStateDB = 2

// StoreConfig describes a Redis-backed fiber session store.
type StoreConfig struct {
	KeyLookup  string
	Expiration time.Duration
	Secure     bool
	Database   int
}

// LimiterDB keeps rate limiter counters apart from sessions and the cache.
const LimiterDB = 3

// NewRedisStorage opens a fiber storage on database of the server client points at.
func NewRedisStorage(client *goredis.Client, database int) *redis.Storage {
	host, port, username, password := "localhost", 6379, "", ""
	if client != nil {
		opts := client.Options()
		if h, p, err := net.SplitHostPort(opts.Addr); err == nil {
			host = h
			if v, err := strconv.Atoi(p); err == nil {
				port = v
			}
		} else if opts.Addr != "" {
			host = opts.Addr
		}
		username, password = opts.Username, opts.Password
	}

	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		Database: database,
		Reset:    false,
	})
}

// NewRedisStore builds a session store on the same Redis server the cache uses.
func NewRedisStore(client *goredis.Client, cfg StoreConfig) *session.Store {
	return session.New(session.Config{
		Storage:        NewRedisStorage(client, cfg.Database),
		KeyLookup:      cfg.KeyLookup,
		CookieHTTPOnly: true,
		CookieSameSite: "Lax",
		CookieSecure:   cfg.Secure,
		Expiration:     cfg.Expiration,
	})
}
