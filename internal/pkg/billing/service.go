package billing

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/credits"
)

const defaultGatewayTimeout = 15 * time.Second

// Service implements the catalog, order creation and payment reconciliation.
type Service struct {
	repo           Repository
	gateway        Gateway
	cache          credits.Invalidator
	gatewayTimeout time.Duration
}

// NewService creates a billing service from injected collaborators. cache may be nil.
func NewService(repo Repository, gateway Gateway, cache credits.Invalidator) *Service {
	return &Service{
		repo:           repo,
		gateway:        gateway,
		cache:          cache,
		gatewayTimeout: defaultGatewayTimeout,
	}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, cache credits.Invalidator) *Service {
	return NewService(NewRepository(db), gateway, cache)
}

// WithGatewayTimeout bounds every gateway call made by the service.
func (s *Service) WithGatewayTimeout(d time.Duration) *Service {
	if d > 0 {
		s.gatewayTimeout = d
	}
	return s
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID uint, limit int) ([]models.PaymentOrder, error) {
	return s.repo.WithContext(ctx).ListOrdersByUser(userID, limit)
}

// GetOrderForUser loads an order owned by userID.
func (s *Service) GetOrderForUser(ctx context.Context, orderID, userID uint) (*models.PaymentOrder, error) {
	return s.repo.WithContext(ctx).GetOrderForUser(orderID, userID)
}

func (s *Service) invalidateProfile(ctx context.Context, userID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		log.Warnf("[Billing] failed to invalidate profile cache for user %d: %v", userID, err)
	}
}
