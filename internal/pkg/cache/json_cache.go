package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	ProfileTTL      = 15 * time.Minute
	RecentImagesTTL = 10 * time.Minute
	RecentImagesKey = "recent_images"
)

// ProfileKey is the cache key of a user's profile snapshot.
func ProfileKey(userID uint) string {
	return fmt.Sprintf("user_profile_%d", userID)
}

// JSONCache is a read-through cache of JSON snapshots. It is never authoritative:
// a miss or a Redis error means the caller loads from the database.
type JSONCache struct {
	rdb *redis.Client
}

func NewJSONCache(rdb *redis.Client) *JSONCache {
	return &JSONCache{rdb: rdb}
}

// Load decodes the value under key into dst. It returns false on a miss.
func (c *JSONCache) Load(ctx context.Context, key string, dst interface{}) (bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// A corrupt entry is dropped so the next read repopulates it.
		_ = c.rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *JSONCache) Store(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key, raw, ttl).Err()
}

func (c *JSONCache) Drop(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// ProfileCache holds per-user profile snapshots under user_profile_{id}.
type ProfileCache struct {
	store *JSONCache
	ttl   time.Duration
}

func NewProfileCache(rdb *redis.Client) *ProfileCache {
	return &ProfileCache{store: NewJSONCache(rdb), ttl: ProfileTTL}
}

func (p *ProfileCache) Get(ctx context.Context, userID uint, dst interface{}) (bool, error) {
	return p.store.Load(ctx, ProfileKey(userID), dst)
}

func (p *ProfileCache) Set(ctx context.Context, userID uint, v interface{}) error {
	return p.store.Store(ctx, ProfileKey(userID), v, p.ttl)
}

// Invalidate drops the snapshot so the next read observes the current balance.
func (p *ProfileCache) Invalidate(ctx context.Context, userID uint) error {
	return p.store.Drop(ctx, ProfileKey(userID))
}
