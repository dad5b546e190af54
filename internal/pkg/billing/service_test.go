package billing

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
	"github.com/ManuelReschke/Ghiblit/internal/pkg/testutil"
)

type fakeGateway struct {
	mu          sync.Mutex
	createErr   error
	statusErr   error
	nilStatus   bool
	status      map[string]*string
	statusCalls int
	nextID      int
	secret      string
}

func (g *fakeGateway) CreatePaymentLink(_ context.Context, order *models.PaymentOrder, _ *models.User) (PaymentLink, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return PaymentLink{}, g.createErr
	}
	g.nextID++
	id := fmt.Sprintf("pay_%d", g.nextID)
	return PaymentLink{ExternalID: id, URL: "https://checkout.test/" + id}, nil
}

func (g *fakeGateway) GetPaymentStatus(_ context.Context, externalID string) (*GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	if g.statusErr != nil {
		return nil, g.statusErr
	}
	if g.nilStatus {
		return nil, nil
	}
	return &GatewayStatus{ExternalID: externalID, Status: g.status[externalID]}, nil
}

func (g *fakeGateway) VerifyWebhookSignature(rawBody []byte, signature, eventID, timestamp string) bool {
	return VerifyStandardWebhookSignature(rawBody, signature, eventID, timestamp, g.secret, time.Now())
}

func (g *fakeGateway) setStatus(externalID string, status *string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.status == nil {
		g.status = map[string]*string{}
	}
	g.status[externalID] = status
}

type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInvalidator) Invalidate(context.Context, uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

type billingFixture struct {
	db      *gorm.DB
	svc     *Service
	gateway *fakeGateway
	cache   *fakeInvalidator
	user    *models.User
	pkg5    *models.PricingPackage
	intro   *models.PricingPackage
	secret  string
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t,
		&models.User{},
		&models.UserProfile{},
		&models.PricingPackage{},
		&models.PaymentOrder{},
		&models.PaymentWebhookEvent{},
	)

	user := &models.User{Username: "kiki", Email: "kiki@example.com", Role: models.ROLE_USER, Status: models.STATUS_ACTIVE}
	require.NoError(t, db.Create(user).Error)
	require.NoError(t, db.Create(&models.UserProfile{UserID: user.ID, CreditBalance: 0}).Error)

	pkg5 := &models.PricingPackage{Name: "5 credits", Credits: 5, PriceINR: decimal.NewFromInt(50), Region: models.REGION_IN, IsActive: true}
	intro := &models.PricingPackage{Name: "Intro", Credits: 2, PriceINR: decimal.NewFromInt(50), Region: models.REGION_IN, IsActive: true, IsIntroOffer: true}
	require.NoError(t, db.Create(pkg5).Error)
	require.NoError(t, db.Create(intro).Error)

	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("fixture-secret"))
	gw := &fakeGateway{secret: secret}
	inv := &fakeInvalidator{}
	svc := NewServiceFromDB(db, gw, inv).WithGatewayTimeout(time.Second)

	return &billingFixture{db: db, svc: svc, gateway: gw, cache: inv, user: user, pkg5: pkg5, intro: intro, secret: secret}
}

func (f *billingFixture) balance(t *testing.T) (int, bool) {
	t.Helper()
	var p models.UserProfile
	require.NoError(t, f.db.Where("user_id = ?", f.user.ID).First(&p).Error)
	return p.CreditBalance, p.IntroOfferRedeemed
}

func (f *billingFixture) orderStatus(t *testing.T, id uint) string {
	t.Helper()
	var o models.PaymentOrder
	require.NoError(t, f.db.First(&o, id).Error)
	return o.Status
}

func (f *billingFixture) webhook(t *testing.T, eventID, eventType, paymentID string) (*WebhookResult, error) {
	t.Helper()
	body := []byte(fmt.Sprintf(`{"type":%q,"data":{"payment_id":%q}}`, eventType, paymentID))
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	headers := WebhookHeaders{ID: eventID, Timestamp: ts, Signature: SignStandardWebhook(f.secret, eventID, ts, body)}
	return f.svc.HandleWebhook(context.Background(), headers, body)
}

func succeeded() *string { return strPtr("succeeded") }

func TestCreateOrder(t *testing.T) {
	f := newBillingFixture(t)

	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	assert.Regexp(t, `^GHB-[0-9A-F]{8}$`, order.OrderRef)
	assert.Equal(t, models.ORDER_STATUS_PENDING, order.Status)
	assert.Equal(t, "50.00", order.Amount.StringFixed(2))
	assert.Equal(t, models.CURRENCY_INR, order.Currency)
	assert.Equal(t, 5, order.CreditsPurchased)
	assert.Equal(t, "pay_1", order.ExternalPaymentID)
	assert.Equal(t, "https://checkout.test/pay_1", order.ExternalPaymentLink)

	var stored models.PaymentOrder
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, "pay_1", stored.ExternalPaymentID)
	assert.Equal(t, false, stored.Metadata["is_intro"])
	pkgID, ok := stored.MetadataPackageID()
	require.True(t, ok)
	assert.Equal(t, f.pkg5.ID, pkgID)
}

func TestCreateOrderAmountIsFixedAtCreation(t *testing.T) {
	f := newBillingFixture(t)

	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	require.NoError(t, f.db.Model(&models.PricingPackage{}).Where("id = ?", f.pkg5.ID).Update("price_inr", decimal.NewFromInt(999)).Error)

	var stored models.PaymentOrder
	require.NoError(t, f.db.First(&stored, order.ID).Error)
	assert.Equal(t, "50.00", stored.Amount.StringFixed(2))
}

func TestCreateOrderInvalidPackage(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.svc.CreateOrder(context.Background(), f.user, 9999)
	assert.ErrorIs(t, err, ErrInvalidPackage)

	require.NoError(t, f.db.Model(&models.PricingPackage{}).Where("id = ?", f.pkg5.ID).Update("is_active", false).Error)
	_, err = f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	assert.ErrorIs(t, err, ErrInvalidPackage)

	var count int64
	f.db.Model(&models.PaymentOrder{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestCreateOrderGatewayFailureKeepsFailedOrder(t *testing.T) {
	f := newBillingFixture(t)
	f.gateway.createErr = errors.New("connection refused")

	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	assert.ErrorIs(t, err, ErrGateway)
	require.NotNil(t, order)
	assert.Equal(t, models.ORDER_STATUS_FAILED, f.orderStatus(t, order.ID))
}

// refLosingRepo fails to record the gateway reference of a new order.
type refLosingRepo struct {
	Repository
}

func (r refLosingRepo) WithContext(ctx context.Context) Repository {
	return refLosingRepo{r.Repository.WithContext(ctx)}
}

func (r refLosingRepo) SetOrderGatewayRef(uint, string, string) error {
	return errors.New("deadlock found when trying to get lock")
}

func TestCreateOrderUnrecordedPaymentMarksOrderFailed(t *testing.T) {
	f := newBillingFixture(t)
	svc := NewService(refLosingRepo{NewRepository(f.db)}, f.gateway, f.cache)

	order, err := svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	assert.ErrorIs(t, err, ErrGateway)
	assert.ErrorContains(t, err, "pay_1")
	require.NotNil(t, order)
	assert.Equal(t, models.ORDER_STATUS_FAILED, order.Status)
	assert.Equal(t, models.ORDER_STATUS_FAILED, f.orderStatus(t, order.ID))
}

func TestServiceHonoursCancelledContext(t *testing.T) {
	f := newBillingFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.svc.ListOrders(ctx, f.user.ID, 10)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.svc.Eligible(ctx, f.user.ID, models.REGION_IN)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = f.svc.CreateOrder(ctx, f.user, f.pkg5.ID)
	assert.ErrorIs(t, err, context.Canceled)

	var count int64
	require.NoError(t, f.db.Model(&models.PaymentOrder{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestCheckStatusNilGatewayAnswerIsProcessing(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)
	f.gateway.nilStatus = true

	res, err := f.svc.CheckStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_PENDING, res.Status)
	assert.Equal(t, processingMessage, res.Message)

	balance, _ := f.balance(t)
	assert.Equal(t, 0, balance)
}

func TestCheckStatusTerminalSkipsGateway(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)
	f.gateway.setStatus(order.ExternalPaymentID, strPtr("failed"))

	res, err := f.svc.CheckStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_FAILED, res.Status)
	assert.Equal(t, 1, f.gateway.statusCalls)

	res, err = f.svc.CheckStatus(context.Background(), res.Order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_FAILED, res.Status)
	assert.Equal(t, 1, f.gateway.statusCalls)
}

func TestCheckStatusDoubleCompletionCreditsOnce(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)
	f.gateway.setStatus(order.ExternalPaymentID, succeeded())

	// Two pollers holding the same stale in-memory order.
	stale := *order
	res, err := f.svc.CheckStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_COMPLETED, res.Status)

	res, err = f.svc.CheckStatus(context.Background(), &stale)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_COMPLETED, res.Status)

	balance, _ := f.balance(t)
	assert.Equal(t, 5, balance)
	assert.Equal(t, 1, f.cache.calls)
}

func TestCheckStatusAmbiguousLeavesOrderUntouched(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	f.gateway.setStatus(order.ExternalPaymentID, nil)
	res, err := f.svc.CheckStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_PENDING, res.Status)
	assert.NotEmpty(t, res.Message)

	f.gateway.setStatus(order.ExternalPaymentID, strPtr("something_new"))
	res, err = f.svc.CheckStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_PENDING, res.Status)

	f.gateway.statusErr = context.DeadlineExceeded
	res, err = f.svc.CheckStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_PENDING, res.Status)

	balance, _ := f.balance(t)
	assert.Equal(t, 0, balance)
}

func TestCheckStatusForwardOnly(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	f.gateway.setStatus(order.ExternalPaymentID, strPtr("requires_customer_action"))
	res, err := f.svc.CheckStatus(context.Background(), order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_PROCESSING, res.Status)

	f.gateway.setStatus(order.ExternalPaymentID, strPtr("Cancelled"))
	res, err = f.svc.CheckStatus(context.Background(), res.Order)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_CANCELLED, res.Status)

	// A late success never resurrects a cancelled order.
	_, err = f.webhook(t, "evt_late", EventPaymentSucceeded, order.ExternalPaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_CANCELLED, f.orderStatus(t, order.ID))
	balance, _ := f.balance(t)
	assert.Equal(t, 0, balance)
}

func TestWebhookCompletesAndReplayIsDeduped(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	res, err := f.webhook(t, "evt_1", EventPaymentSucceeded, order.ExternalPaymentID)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.ORDER_STATUS_COMPLETED, f.orderStatus(t, order.ID))
	balance, _ := f.balance(t)
	assert.Equal(t, 5, balance)

	res, err = f.webhook(t, "evt_1", EventPaymentSucceeded, order.ExternalPaymentID)
	require.NoError(t, err)
	assert.True(t, res.Duplicate)
	balance, _ = f.balance(t)
	assert.Equal(t, 5, balance)

	var count int64
	f.db.Model(&models.PaymentWebhookEvent{}).Where("event_id = ?", "evt_1").Count(&count)
	assert.Equal(t, int64(1), count)

	var ev models.PaymentWebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", "evt_1").First(&ev).Error)
	assert.True(t, ev.Processed)
	require.NotNil(t, ev.PaymentOrderID)
	assert.Equal(t, order.ID, *ev.PaymentOrderID)
}

func TestWebhookAndPollRaceCreditOnce(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)
	f.gateway.setStatus(order.ExternalPaymentID, succeeded())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		stale := *order
		_, _ = f.svc.CheckStatus(context.Background(), &stale)
	}()
	go func() {
		defer wg.Done()
		_, _ = f.webhook(t, "evt_race", EventPaymentSucceeded, order.ExternalPaymentID)
	}()
	wg.Wait()

	balance, _ := f.balance(t)
	assert.Equal(t, 5, balance)
	assert.Equal(t, models.ORDER_STATUS_COMPLETED, f.orderStatus(t, order.ID))
}

func TestWebhookInvalidSignatureMutatesNothing(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	body := []byte(fmt.Sprintf(`{"type":"payment.succeeded","data":{"payment_id":%q}}`, order.ExternalPaymentID))
	ts := strconv.FormatInt(time.Now().Unix(), 10)

	_, err = f.svc.HandleWebhook(context.Background(), WebhookHeaders{ID: "evt_bad", Timestamp: ts, Signature: "v1,Zm9v"}, body)
	assert.ErrorIs(t, err, ErrWebhookAuth)

	_, err = f.svc.HandleWebhook(context.Background(), WebhookHeaders{ID: "evt_bad", Timestamp: ts}, body)
	assert.ErrorIs(t, err, ErrWebhookAuth)

	assert.Equal(t, models.ORDER_STATUS_PENDING, f.orderStatus(t, order.ID))
	var count int64
	f.db.Model(&models.PaymentWebhookEvent{}).Count(&count)
	assert.Equal(t, int64(0), count)
	balance, _ := f.balance(t)
	assert.Equal(t, 0, balance)
}

func TestWebhookUnmatchedPersistsNothing(t *testing.T) {
	f := newBillingFixture(t)

	_, err := f.webhook(t, "evt_other", EventPaymentSucceeded, "pay_unknown")
	assert.ErrorIs(t, err, ErrUnmatchedWebhook)

	var count int64
	f.db.Model(&models.PaymentWebhookEvent{}).Count(&count)
	assert.Equal(t, int64(0), count)
}

func TestWebhookFailedAndIgnoredTypes(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	_, err = f.webhook(t, "evt_refund", "refund.succeeded", order.ExternalPaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_PENDING, f.orderStatus(t, order.ID))

	_, err = f.webhook(t, "evt_fail", EventPaymentFailed, order.ExternalPaymentID)
	require.NoError(t, err)
	assert.Equal(t, models.ORDER_STATUS_FAILED, f.orderStatus(t, order.ID))

	var ev models.PaymentWebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", "evt_refund").First(&ev).Error)
	assert.True(t, ev.Processed)
}

func TestWebhookCompletionFailureIsRetriedOnRedelivery(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)

	// Without a profile the credit cannot be applied and the transaction rolls back.
	require.NoError(t, f.db.Where("user_id = ?", f.user.ID).Delete(&models.UserProfile{}).Error)

	_, err = f.webhook(t, "evt_retry", EventPaymentSucceeded, order.ExternalPaymentID)
	require.Error(t, err)
	assert.Equal(t, models.ORDER_STATUS_PENDING, f.orderStatus(t, order.ID))

	var ev models.PaymentWebhookEvent
	require.NoError(t, f.db.Where("event_id = ?", "evt_retry").First(&ev).Error)
	assert.False(t, ev.Processed)
	assert.NotEmpty(t, ev.ProcessingError)

	require.NoError(t, f.db.Create(&models.UserProfile{UserID: f.user.ID}).Error)
	res, err := f.webhook(t, "evt_retry", EventPaymentSucceeded, order.ExternalPaymentID)
	require.NoError(t, err)
	assert.False(t, res.Duplicate)
	assert.Equal(t, models.ORDER_STATUS_COMPLETED, f.orderStatus(t, order.ID))
	balance, _ := f.balance(t)
	assert.Equal(t, 5, balance)
}

func TestIntroOfferRedeemedOnlyOnCompletion(t *testing.T) {
	f := newBillingFixture(t)

	first, err := f.svc.CreateOrder(context.Background(), f.user, f.intro.ID)
	require.NoError(t, err)
	_, redeemed := f.balance(t)
	assert.False(t, redeemed)

	_, err = f.webhook(t, "evt_intro", EventPaymentSucceeded, first.ExternalPaymentID)
	require.NoError(t, err)

	balance, redeemed := f.balance(t)
	assert.Equal(t, 2, balance)
	assert.True(t, redeemed)

	_, err = f.svc.CreateOrder(context.Background(), f.user, f.intro.ID)
	assert.ErrorIs(t, err, ErrOfferAlreadyRedeemed)

	pkgs, err := f.svc.Eligible(context.Background(), f.user.ID, models.REGION_IN)
	require.NoError(t, err)
	assert.Equal(t, []string{"5 credits"}, pkgNames(pkgs))
}

func TestIntroOfferOpenCheckoutIsReused(t *testing.T) {
	f := newBillingFixture(t)

	first, err := f.svc.CreateOrder(context.Background(), f.user, f.intro.ID)
	require.NoError(t, err)

	again, err := f.svc.CreateOrder(context.Background(), f.user, f.intro.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, first.ExternalPaymentLink, again.ExternalPaymentLink)
	assert.Equal(t, 1, f.gateway.nextID)

	var count int64
	require.NoError(t, f.db.Model(&models.PaymentOrder{}).Where("user_id = ?", f.user.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	// Non-intro packages are unaffected.
	other, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)

	// Once the open checkout fails a new intro order may start.
	_, err = f.webhook(t, "evt_intro_failed", EventPaymentFailed, first.ExternalPaymentID)
	require.NoError(t, err)
	fresh, err := f.svc.CreateOrder(context.Background(), f.user, f.intro.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, fresh.ID)

	_, err = f.webhook(t, "evt_intro_paid", EventPaymentSucceeded, fresh.ExternalPaymentID)
	require.NoError(t, err)
	balance, redeemed := f.balance(t)
	assert.Equal(t, 2, balance)
	assert.True(t, redeemed)
}

func TestReconcilePending(t *testing.T) {
	f := newBillingFixture(t)
	order, err := f.svc.CreateOrder(context.Background(), f.user, f.pkg5.ID)
	require.NoError(t, err)
	f.gateway.setStatus(order.ExternalPaymentID, succeeded())

	// Too young to be picked up.
	checked, completed, err := f.svc.ReconcilePending(context.Background(), time.Hour, 72*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, checked)
	assert.Equal(t, 0, completed)

	require.NoError(t, f.db.Model(&models.PaymentOrder{}).Where("id = ?", order.ID).
		Update("created_at", time.Now().Add(-2*time.Hour)).Error)

	checked, completed, err = f.svc.ReconcilePending(context.Background(), time.Hour, 72*time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, checked)
	assert.Equal(t, 1, completed)
	balance, _ := f.balance(t)
	assert.Equal(t, 5, balance)
}
