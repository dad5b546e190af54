package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

// CreateOrder persists a pending order for the package and asks the gateway
// for a payment link. If the gateway fails the order is kept as failed and
// the returned error wraps ErrGateway. An intro package with an open intro
// checkout returns that order.
func (s *Service) CreateOrder(ctx context.Context, user *models.User, packageID uint) (*models.PaymentOrder, error) {
	if user == nil || user.ID == 0 {
		return nil, errors.New("user is required")
	}
	repo := s.repo.WithContext(ctx)
	pkg, err := repo.GetActivePackage(packageID)
	if err != nil {
		return nil, err
	}
	if pkg.IsIntroOffer {
		redeemed, err := profileIntroRedeemed(repo, user.ID)
		if err != nil {
			return nil, err
		}
		if redeemed {
			return nil, ErrOfferAlreadyRedeemed
		}
		// One intro checkout at a time: hand back the open link instead of a second order.
		open, err := repo.FindOpenIntroOrder(user.ID)
		if err == nil {
			log.Infof("[Billing] reusing open intro order %s for user %d", open.OrderRef, user.ID)
			return open, nil
		}
		if !errors.Is(err, ErrOrderNotFound) {
			return nil, err
		}
	}

	amount, currency := pkg.Price()
	meta := datatypes.JSONMap{
		"package_id": pkg.ID,
		"is_intro":   pkg.IsIntroOffer,
	}
	if pkg.ExternalProductID != "" {
		meta["external_product_id"] = pkg.ExternalProductID
	}
	order := &models.PaymentOrder{
		OrderRef:         models.NewOrderRef(),
		UserID:           user.ID,
		PackageID:        pkg.ID,
		Amount:           amount,
		Currency:         currency,
		CreditsPurchased: pkg.Credits,
		Status:           models.ORDER_STATUS_PENDING,
		Metadata:         meta,
	}
	if err := repo.CreateOrder(order); err != nil {
		return nil, err
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	link, err := s.gateway.CreatePaymentLink(gctx, order, user)
	// Writes after the gateway call must land even if the caller went away.
	repo = s.repo.WithContext(context.WithoutCancel(ctx))
	if err != nil {
		log.Errorf("[Billing] payment link creation failed for order %s: %v", order.OrderRef, err)
		if _, terr := repo.TransitionOrder(order.ID, models.ORDER_STATUS_FAILED, models.ORDER_STATUS_PENDING); terr != nil {
			log.Errorf("[Billing] failed to mark order %s failed: %v", order.OrderRef, terr)
		}
		order.Status = models.ORDER_STATUS_FAILED
		return order, fmt.Errorf("%w: %w", ErrGateway, err)
	}

	if err := repo.SetOrderGatewayRef(order.ID, link.ExternalID, link.URL); err != nil {
		// The gateway issued a link this order can no longer be matched to.
		log.Errorf("[Billing] order %s lost gateway payment %s (%s): %v", order.OrderRef, link.ExternalID, link.URL, err)
		if _, terr := repo.TransitionOrder(order.ID, models.ORDER_STATUS_FAILED, models.ORDER_STATUS_PENDING); terr != nil {
			log.Errorf("[Billing] failed to mark order %s failed: %v", order.OrderRef, terr)
		}
		order.Status = models.ORDER_STATUS_FAILED
		return order, fmt.Errorf("%w: record payment %s: %w", ErrGateway, link.ExternalID, err)
	}
	order.ExternalPaymentID = link.ExternalID
	order.ExternalPaymentLink = link.URL
	log.Infof("[Billing] order %s created for user %d (package %d, %s %s)", order.OrderRef, user.ID, pkg.ID, amount.StringFixed(2), currency)
	return order, nil
}
