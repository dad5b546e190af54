package counter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	transformsKeyPrefix = "stats:transforms"
	totalField          = "total"

	// Retention keeps the daily hashes around for the stats window.
	Retention = 90 * 24 * time.Hour
)

// DayCount is the number of transforms of one UTC day.
type DayCount struct {
	Date    string           `json:"date"`
	Total   int64            `json:"total"`
	ByStyle map[string]int64 `json:"by_style"`
}

// Counter keeps per-day transform counters in Redis hashes.
type Counter struct {
	rdb *redis.Client
	now func() time.Time
}

func New(rdb *redis.Client) *Counter {
	return &Counter{rdb: rdb, now: time.Now}
}

func dayKey(day time.Time) string {
	return fmt.Sprintf("%s:%s", transformsKeyPrefix, day.UTC().Format(time.DateOnly))
}

// AddTransform increments today's counters for style.
func (c *Counter) AddTransform(ctx context.Context, style string) error {
	key := dayKey(c.now())
	pipe := c.rdb.TxPipeline()
	pipe.HIncrBy(ctx, key, totalField, 1)
	pipe.HIncrBy(ctx, key, style, 1)
	pipe.Expire(ctx, key, Retention)
	_, err := pipe.Exec(ctx)
	return err
}

// Daily returns the counters for the last days days, newest first. Days
// without transforms are reported with zero totals.
func (c *Counter) Daily(ctx context.Context, days int) ([]DayCount, error) {
	if days < 1 {
		days = 1
	}
	today := c.now().UTC()

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, days)
	for i := 0; i < days; i++ {
		cmds[i] = pipe.HGetAll(ctx, dayKey(today.AddDate(0, 0, -i)))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	out := make([]DayCount, 0, days)
	for i, cmd := range cmds {
		dc := DayCount{Date: today.AddDate(0, 0, -i).Format(time.DateOnly), ByStyle: map[string]int64{}}
		for field, raw := range cmd.Val() {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				continue
			}
			if field == totalField {
				dc.Total = n
			} else {
				dc.ByStyle[field] = n
			}
		}
		out = append(out, dc)
	}
	return out, nil
}
