package billing

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/credits"
)

// Repository provides DB operations used by the billing service.
type Repository interface {
	// WithContext returns a repository whose queries honour ctx.
	WithContext(ctx context.Context) Repository

	ListActivePackages() ([]models.PricingPackage, error)
	GetActivePackage(id uint) (*models.PricingPackage, error)
	GetUserProfile(userID uint) (*models.UserProfile, error)
	FindPackage(name, region string) (*models.PricingPackage, error)
	PackageReferenced(id uint) (bool, error)
	SavePackage(pkg *models.PricingPackage) error
	DeactivatePackagesExcept(keep []uint) (int64, error)

	CreateOrder(order *models.PaymentOrder) error
	SetOrderGatewayRef(orderID uint, externalID, link string) error
	TransitionOrder(orderID uint, to string, from ...string) (bool, error)
	CompleteOrder(order *models.PaymentOrder) (bool, error)
	GetOrder(orderID uint) (*models.PaymentOrder, error)
	GetOrderForUser(orderID, userID uint) (*models.PaymentOrder, error)
	GetOrderByExternalID(externalID string) (*models.PaymentOrder, error)
	FindOpenIntroOrder(userID uint) (*models.PaymentOrder, error)
	ListOrdersByUser(userID uint, limit int) ([]models.PaymentOrder, error)
	ListStaleOrders(olderThan, newerThan time.Time, limit int) ([]models.PaymentOrder, error)

	GetWebhookEvent(eventID string) (*models.PaymentWebhookEvent, error)
	CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error)
	MarkWebhookProcessed(id uint, processed bool, processingError string) error
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) WithContext(ctx context.Context) Repository {
	return &gormRepository{db: r.db.WithContext(ctx)}
}

func (r *gormRepository) ListActivePackages() ([]models.PricingPackage, error) {
	var pkgs []models.PricingPackage
	err := r.db.Where("is_active = ?", true).Order("sort_order ASC, id ASC").Find(&pkgs).Error
	return pkgs, err
}

func (r *gormRepository) GetActivePackage(id uint) (*models.PricingPackage, error) {
	var p models.PricingPackage
	err := r.db.Where("id = ? AND is_active = ?", id, true).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidPackage
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetUserProfile(userID uint) (*models.UserProfile, error) {
	var p models.UserProfile
	err := r.db.Where("user_id = ?", userID).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) FindPackage(name, region string) (*models.PricingPackage, error) {
	var p models.PricingPackage
	err := r.db.Where("name = ? AND region = ?", name, region).First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) PackageReferenced(id uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.PaymentOrder{}).Where("package_id = ?", id).Limit(1).Count(&count).Error
	return count > 0, err
}

func (r *gormRepository) SavePackage(pkg *models.PricingPackage) error {
	return r.db.Save(pkg).Error
}

func (r *gormRepository) DeactivatePackagesExcept(keep []uint) (int64, error) {
	q := r.db.Model(&models.PricingPackage{}).Where("is_active = ?", true)
	if len(keep) > 0 {
		q = q.Where("id NOT IN ?", keep)
	}
	res := q.Update("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *gormRepository) CreateOrder(order *models.PaymentOrder) error {
	return r.db.Create(order).Error
}

func (r *gormRepository) SetOrderGatewayRef(orderID uint, externalID, link string) error {
	return r.db.Model(&models.PaymentOrder{}).Where("id = ?", orderID).Updates(map[string]interface{}{
		"external_payment_id":   externalID,
		"external_payment_link": link,
	}).Error
}

// TransitionOrder moves an order to status `to` only while it is in one of
// `from`. It reports whether this call performed the transition.
func (r *gormRepository) TransitionOrder(orderID uint, to string, from ...string) (bool, error) {
	res := r.db.Model(&models.PaymentOrder{}).
		Where("id = ? AND status IN ?", orderID, from).
		Updates(map[string]interface{}{"status": to, "updated_at": time.Now()})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CompleteOrder marks the order completed and credits its buyer in one
// transaction. Only the caller whose conditional update wins grants credits;
// every other caller gets false and changes nothing.
func (r *gormRepository) CompleteOrder(order *models.PaymentOrder) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.PaymentOrder{}).
			Where("id = ? AND status NOT IN ?", order.ID, models.TerminalOrderStatuses).
			Updates(map[string]interface{}{"status": models.ORDER_STATUS_COMPLETED, "updated_at": time.Now()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if order.IsIntro() {
			var redeemed bool
			if err := tx.Model(&models.UserProfile{}).Where("user_id = ?", order.UserID).
				Select("intro_offer_redeemed").Scan(&redeemed).Error; err != nil {
				return err
			}
			if redeemed {
				log.Warnf("[Billing] order %s is a paid intro offer but user %d already redeemed one", order.OrderRef, order.UserID)
			}
		}
		if err := credits.ApplyCredit(tx, order.UserID, order.CreditsPurchased, order.IsIntro()); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (r *gormRepository) GetOrder(orderID uint) (*models.PaymentOrder, error) {
	return r.findOrder("id = ?", orderID)
}

func (r *gormRepository) GetOrderForUser(orderID, userID uint) (*models.PaymentOrder, error) {
	return r.findOrder("id = ? AND user_id = ?", orderID, userID)
}

func (r *gormRepository) GetOrderByExternalID(externalID string) (*models.PaymentOrder, error) {
	return r.findOrder("external_payment_id = ?", externalID)
}

// FindOpenIntroOrder returns the user's newest pending or processing order
// for any intro package that already has a payment link.
func (r *gormRepository) FindOpenIntroOrder(userID uint) (*models.PaymentOrder, error) {
	intro := r.db.Model(&models.PricingPackage{}).Select("id").Where("is_intro_offer = ?", true)
	var o models.PaymentOrder
	err := r.db.
		Where("user_id = ? AND status IN ? AND external_payment_id <> '' AND package_id IN (?)",
			userID, []string{models.ORDER_STATUS_PENDING, models.ORDER_STATUS_PROCESSING}, intro).
		Order("created_at DESC, id DESC").
		First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *gormRepository) findOrder(query string, args ...interface{}) (*models.PaymentOrder, error) {
	var o models.PaymentOrder
	err := r.db.Where(query, args...).First(&o).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (r *gormRepository) ListOrdersByUser(userID uint, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	q := r.db.Where("user_id = ?", userID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&orders).Error
	return orders, err
}

// ListStaleOrders returns non-terminal orders with a gateway reference created
// between newerThan and olderThan, oldest first.
func (r *gormRepository) ListStaleOrders(olderThan, newerThan time.Time, limit int) ([]models.PaymentOrder, error) {
	var orders []models.PaymentOrder
	err := r.db.
		Where("status IN ? AND external_payment_id <> '' AND created_at <= ? AND created_at >= ?",
			[]string{models.ORDER_STATUS_PENDING, models.ORDER_STATUS_PROCESSING}, olderThan, newerThan).
		Order("created_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

func (r *gormRepository) GetWebhookEvent(eventID string) (*models.PaymentWebhookEvent, error) {
	var ev models.PaymentWebhookEvent
	err := r.db.Where("event_id = ?", eventID).First(&ev).Error
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.PaymentWebhookEvent) (bool, *models.PaymentWebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	stored, err := r.GetWebhookEvent(event.EventID)
	if err != nil {
		return false, nil, err
	}
	return created, stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processed bool, processingError string) error {
	updates := map[string]interface{}{
		"processed":        processed,
		"processing_error": processingError,
	}
	if processed {
		now := time.Now()
		updates["processed_at"] = &now
	}
	return r.db.Model(&models.PaymentWebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}
