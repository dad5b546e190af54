package statistics

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/cache"
)

const (
	CacheKeyUsers           = "statistics:users:total"
	CacheKeyImagesTotal     = "statistics:images:total"
	CacheKeyImagesDaily     = "statistics:images:daily:%s" // Format with date YYYY-MM-DD
	CacheKeyCompletedOrders = "statistics:orders:completed"
	CacheKeyCreditsSold     = "statistics:credits:sold"
	CacheExpiration         = 30 * time.Minute

	cacheUpdateInterval = 5 * time.Minute
)

// Data holds the headline numbers of the admin stats endpoint.
type Data struct {
	TotalUsers      int64 `json:"total_users"`
	TotalImages     int64 `json:"total_images"`
	TodayImages     int64 `json:"today_images"`
	CompletedOrders int64 `json:"completed_orders"`
	CreditsSold     int64 `json:"credits_sold"`
}

// Service counts from the database and keeps the results in Redis.
type Service struct {
	db  *gorm.DB
	now func() time.Time

	mu              sync.Mutex
	lastCacheUpdate time.Time
}

func New(db *gorm.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// ShouldUpdateCache reports whether the cached numbers are older than the update interval.
func (s *Service) ShouldUpdateCache() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.lastCacheUpdate) > cacheUpdateInterval
}

// ResetCacheUpdateTimer forces a refresh on the next Get.
func (s *Service) ResetCacheUpdateTimer() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCacheUpdate = time.Time{}
}

type counter struct {
	key   string
	count func() (int64, error)
}

func (s *Service) counters() []counter {
	start, end := s.today()
	return []counter{
		{CacheKeyUsers, func() (int64, error) {
			var n int64
			return n, s.db.Model(&models.User{}).Count(&n).Error
		}},
		{CacheKeyImagesTotal, func() (int64, error) {
			var n int64
			return n, s.db.Model(&models.GeneratedImage{}).Count(&n).Error
		}},
		{s.dailyKey(), func() (int64, error) {
			var n int64
			return n, s.db.Model(&models.GeneratedImage{}).
				Where("created_at >= ? AND created_at < ?", start, end).Count(&n).Error
		}},
		{CacheKeyCompletedOrders, func() (int64, error) {
			var n int64
			return n, s.db.Model(&models.PaymentOrder{}).
				Where("status = ?", models.ORDER_STATUS_COMPLETED).Count(&n).Error
		}},
		{CacheKeyCreditsSold, func() (int64, error) {
			var n int64
			return n, s.db.Model(&models.PaymentOrder{}).
				Where("status = ?", models.ORDER_STATUS_COMPLETED).
				Select("COALESCE(SUM(credits_purchased), 0)").Scan(&n).Error
		}},
	}
}

func (s *Service) today() (time.Time, time.Time) {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return start, start.Add(24 * time.Hour)
}

func (s *Service) dailyKey() string {
	return fmt.Sprintf(CacheKeyImagesDaily, s.now().Format("2006-01-02"))
}

// UpdateStatisticsCache recounts every number and stores it in the cache.
func (s *Service) UpdateStatisticsCache() error {
	for _, c := range s.counters() {
		n, err := c.count()
		if err != nil {
			return fmt.Errorf("count %s: %w", c.key, err)
		}
		if err := cache.Set(c.key, strconv.FormatInt(n, 10), CacheExpiration); err != nil {
			return fmt.Errorf("cache %s: %w", c.key, err)
		}
	}
	s.mu.Lock()
	s.lastCacheUpdate = s.now()
	s.mu.Unlock()
	return nil
}

// Get returns the statistics, served from cache where possible. A cache miss
// or an unreachable cache falls back to counting in the database.
func (s *Service) Get() (Data, error) {
	if s.ShouldUpdateCache() {
		if err := s.UpdateStatisticsCache(); err != nil {
			log.Warnf("[Statistics] Failed to refresh cache: %v", err)
		}
	}

	values := make([]int64, 0, 5)
	for _, c := range s.counters() {
		n, err := s.read(c)
		if err != nil {
			return Data{}, err
		}
		values = append(values, n)
	}
	return Data{
		TotalUsers:      values[0],
		TotalImages:     values[1],
		TodayImages:     values[2],
		CompletedOrders: values[3],
		CreditsSold:     values[4],
	}, nil
}

func (s *Service) read(c counter) (int64, error) {
	if val, err := cache.Get(c.key); err == nil {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			return n, nil
		}
	}
	n, err := c.count()
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", c.key, err)
	}
	if err := cache.Set(c.key, strconv.FormatInt(n, 10), CacheExpiration); err != nil {
		log.Debugf("[Statistics] Failed to cache %s: %v", c.key, err)
	}
	return n, nil
}
