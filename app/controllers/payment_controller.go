package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/app/repository"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/billing"
)

const historyLimit = 50

// BalanceReader returns the current credit balance of a user.
type BalanceReader interface {
	Balance(ctx context.Context, userID uint) (int, error)
}

type PaymentController struct {
	billing  *billing.Service
	users    repository.UserRepository
	balances BalanceReader
	validate *validator.Validate
}

func NewPaymentController(svc *billing.Service, users repository.UserRepository, balances BalanceReader) *PaymentController {
	return &PaymentController{billing: svc, users: users, balances: balances, validate: validator.New()}
}

type createPaymentRequest struct {
	PlanID    uint `json:"plan_id"`
	PackageID uint `json:"package_id"`
}

type planView struct {
	ID           uint            `json:"id"`
	Name         string          `json:"name"`
	Credits      int             `json:"credits"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DisplayPrice string          `json:"display_price"`
	Region       string          `json:"region"`
	IsIntroOffer bool            `json:"is_intro_offer"`
}

type orderView struct {
	ID               uint            `json:"payment_id"`
	OrderRef         string          `json:"order_ref"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	CreditsPurchased int             `json:"credits_purchased"`
	Status           string          `json:"status"`
	CreatedAt        string          `json:"created_at"`
}

func displayPrice(price decimal.Decimal, currency string) string {
	if currency == models.CURRENCY_INR {
		return "₹" + price.StringFixed(2)
	}
	return "$" + price.StringFixed(2)
}

// HandlePlans lists the packages the caller may buy in their region.
func (pc *PaymentController) HandlePlans(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}

	region := billing.RegionFromCountry(clientCountry(c))
	if q := strings.ToUpper(c.Query("region")); q == models.REGION_IN || q == models.REGION_GLOBAL {
		region = q
	}

	pkgs, err := pc.billing.Eligible(c.UserContext(), userID, region)
	if err != nil {
		return renderError(c, err)
	}
	plans := make([]planView, 0, len(pkgs))
	for _, p := range pkgs {
		price, currency := p.Price()
		plans = append(plans, planView{
			ID:           p.ID,
			Name:         p.Name,
			Credits:      p.Credits,
			Price:        price,
			Currency:     currency,
			DisplayPrice: displayPrice(price, currency),
			Region:       p.Region,
			IsIntroOffer: p.IsIntroOffer,
		})
	}
	return c.JSON(fiber.Map{"region": region, "plans": plans})
}

// HandleCreate creates a pending order and returns the hosted payment link.
func (pc *PaymentController) HandleCreate(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}

	var req createPaymentRequest
	if err := c.BodyParser(&req); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "bad_request", "Invalid request body")
	}
	packageID := req.PlanID
	if packageID == 0 {
		packageID = req.PackageID
	}
	if err := pc.validate.Var(packageID, "required,gt=0"); err != nil {
		return jsonError(c, fiber.StatusBadRequest, "invalid_package", "plan_id is required")
	}

	user, err := pc.users.GetByID(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return jsonError(c, fiber.StatusUnauthorized, "unauthorized", "Unknown user")
	}
	if err != nil {
		return renderError(c, err)
	}

	order, err := pc.billing.CreateOrder(c.UserContext(), user, packageID)
	if err != nil {
		return renderError(c, err)
	}

	log.Infof("[Payments] user %d created order %s for package %d", userID, order.OrderRef, packageID)
	return c.JSON(fiber.Map{
		"payment_id":      order.ID,
		"order_ref":       order.OrderRef,
		"dodo_payment_id": order.ExternalPaymentID,
		"payment_url":     order.ExternalPaymentLink,
		"amount":          order.Amount,
		"currency":        order.Currency,
		"credits":         order.CreditsPurchased,
		"status":          order.Status,
	})
}

// HandleStatus reports the order state, polling the gateway for open orders.
func (pc *PaymentController) HandleStatus(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}
	orderID, ok := idParam(c, "id")
	if !ok {
		return nil
	}

	order, err := pc.billing.GetOrderForUser(c.UserContext(), orderID, userID)
	if err != nil {
		return renderError(c, err)
	}
	res, err := pc.billing.CheckStatus(c.UserContext(), order)
	if err != nil {
		return renderError(c, err)
	}

	body := fiber.Map{
		"payment_id":        res.Order.ID,
		"status":            res.Status,
		"credits_purchased": res.Order.CreditsPurchased,
	}
	if res.Message != "" {
		body["message"] = res.Message
	}
	if res.Status == models.ORDER_STATUS_COMPLETED && pc.balances != nil {
		if balance, err := pc.balances.Balance(c.UserContext(), userID); err == nil {
			body["credit_balance"] = balance
		}
	}
	return c.JSON(body)
}

// HandleHistory lists the caller's orders, newest first.
func (pc *PaymentController) HandleHistory(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return nil
	}
	orders, err := pc.billing.ListOrders(c.UserContext(), userID, historyLimit)
	if err != nil {
		return renderError(c, err)
	}
	out := make([]orderView, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderView{
			ID:               o.ID,
			OrderRef:         o.OrderRef,
			Amount:           o.Amount,
			Currency:         o.Currency,
			CreditsPurchased: o.CreditsPurchased,
			Status:           o.Status,
			CreatedAt:        o.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(out)
}

// HandleWebhook applies a gateway delivery. The raw body is verified as received.
func (pc *PaymentController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	headers := billing.WebhookHeaders{
		ID:        strings.TrimSpace(c.Get("webhook-id")),
		Signature: strings.TrimSpace(c.Get("webhook-signature")),
		Timestamp: strings.TrimSpace(c.Get("webhook-timestamp")),
	}

	res, err := pc.billing.HandleWebhook(c.UserContext(), headers, rawBody)
	if err != nil {
		return renderError(c, err)
	}
	if res.Duplicate {
		return c.JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.JSON(fiber.Map{"ok": true})
}
