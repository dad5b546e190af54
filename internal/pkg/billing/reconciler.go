package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

const processingMessage = "Payment is still being processed"

// CheckStatus polls the gateway for a non-terminal order and applies what it
// reports. Terminal orders are answered from the database. Unknown, null or
// unreachable gateway answers leave the order untouched and report processing.
func (s *Service) CheckStatus(ctx context.Context, order *models.PaymentOrder) (*StatusResult, error) {
	if order.IsTerminal() {
		return &StatusResult{Order: order, Status: order.Status}, nil
	}
	if strings.TrimSpace(order.ExternalPaymentID) == "" {
		return &StatusResult{Order: order, Status: order.Status, Message: processingMessage}, nil
	}

	gctx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()
	st, err := s.gateway.GetPaymentStatus(gctx, order.ExternalPaymentID)
	if err != nil {
		log.Warnf("[Billing] status check for order %s failed, treating as processing: %v", order.OrderRef, err)
		return &StatusResult{Order: order, Status: order.Status, Message: processingMessage}, nil
	}
	if st == nil {
		st = &GatewayStatus{ExternalID: order.ExternalPaymentID}
	}

	switch classifyGatewayStatus(st.Status) {
	case outcomeSucceeded:
		if err := s.applyCompletion(ctx, order); err != nil {
			return nil, err
		}
	case outcomeFailed:
		if err := s.markTerminal(ctx, order, models.ORDER_STATUS_FAILED); err != nil {
			return nil, err
		}
	case outcomeCancelled:
		if err := s.markTerminal(ctx, order, models.ORDER_STATUS_CANCELLED); err != nil {
			return nil, err
		}
	case outcomeProcessing:
		if err := s.markProcessing(ctx, order); err != nil {
			return nil, err
		}
	default:
		raw := "null"
		if st.Status != nil {
			raw = *st.Status
		}
		log.Infof("[Billing] order %s gateway status %q, treating as processing", order.OrderRef, raw)
	}

	fresh, err := s.repo.WithContext(ctx).GetOrder(order.ID)
	if err != nil {
		return nil, err
	}
	res := &StatusResult{Order: fresh, Status: fresh.Status}
	if !fresh.IsTerminal() {
		res.Message = processingMessage
	}
	return res, nil
}

// HandleWebhook authenticates a gateway delivery and applies it at most once
// per event id.
func (s *Service) HandleWebhook(ctx context.Context, headers WebhookHeaders, rawBody []byte) (*WebhookResult, error) {
	if headers.ID == "" || headers.Signature == "" || headers.Timestamp == "" {
		return nil, ErrWebhookAuth
	}
	if !s.gateway.VerifyWebhookSignature(rawBody, headers.Signature, headers.ID, headers.Timestamp) {
		log.Warnf("[Billing] invalid webhook signature for event %s", headers.ID)
		return nil, ErrWebhookAuth
	}

	var payload WebhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedWebhook, err)
	}
	res := &WebhookResult{EventID: headers.ID, EventType: payload.Type}
	repo := s.repo.WithContext(ctx)

	existing, err := repo.GetWebhookEvent(headers.ID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	if existing != nil && existing.Processed {
		log.Infof("[Billing] webhook event %s already processed", headers.ID)
		res.Duplicate = true
		return res, nil
	}

	paymentID := strings.TrimSpace(payload.Data.PaymentID)
	if paymentID == "" {
		return nil, ErrUnmatchedWebhook
	}
	order, err := repo.GetOrderByExternalID(paymentID)
	if errors.Is(err, ErrOrderNotFound) {
		log.Warnf("[Billing] webhook event %s references unknown payment %q", headers.ID, paymentID)
		return nil, ErrUnmatchedWebhook
	}
	if err != nil {
		return nil, err
	}
	res.OrderID = order.ID

	event := existing
	if event == nil {
		orderID := order.ID
		created, stored, err := repo.CreateWebhookEventIfNotExists(&models.PaymentWebhookEvent{
			EventID:        headers.ID,
			EventType:      payload.Type,
			PaymentOrderID: &orderID,
			Payload:        rawBody,
		})
		if err != nil {
			return nil, err
		}
		if !created && stored.Processed {
			res.Duplicate = true
			return res, nil
		}
		event = stored
	}

	var applyErr error
	switch eventOutcome(payload.Type) {
	case outcomeSucceeded:
		applyErr = s.applyCompletion(ctx, order)
	case outcomeFailed:
		applyErr = s.markTerminal(ctx, order, models.ORDER_STATUS_FAILED)
	case outcomeCancelled:
		applyErr = s.markTerminal(ctx, order, models.ORDER_STATUS_CANCELLED)
	default:
		log.Infof("[Billing] ignoring webhook event %s of type %q", headers.ID, payload.Type)
	}

	// A failed transition leaves the event unprocessed so redelivery retries it.
	errMsg := ""
	if applyErr != nil {
		errMsg = applyErr.Error()
	}
	if err := repo.MarkWebhookProcessed(event.ID, applyErr == nil, errMsg); err != nil {
		log.Errorf("[Billing] failed to mark webhook event %s: %v", headers.ID, err)
		if applyErr == nil {
			return nil, err
		}
	}
	if applyErr != nil {
		return nil, applyErr
	}
	return res, nil
}

// ReconcilePending re-checks non-terminal orders created between maxAge and
// minAge ago. It never cancels an order on its own.
func (s *Service) ReconcilePending(ctx context.Context, minAge, maxAge time.Duration, limit int) (checked, completed int, err error) {
	now := time.Now()
	orders, err := s.repo.WithContext(ctx).ListStaleOrders(now.Add(-minAge), now.Add(-maxAge), limit)
	if err != nil {
		return 0, 0, err
	}
	for i := range orders {
		if ctx.Err() != nil {
			return checked, completed, ctx.Err()
		}
		res, err := s.CheckStatus(ctx, &orders[i])
		checked++
		if err != nil {
			log.Errorf("[Billing] reconcile of order %s failed: %v", orders[i].OrderRef, err)
			continue
		}
		if res.Status == models.ORDER_STATUS_COMPLETED {
			completed++
		}
	}
	return checked, completed, nil
}

// applyCompletion grants the order's credits exactly once. When another
// trigger already completed the order this is a no-op.
func (s *Service) applyCompletion(ctx context.Context, order *models.PaymentOrder) error {
	if order.Status == models.ORDER_STATUS_COMPLETED {
		return nil
	}
	applied, err := s.repo.WithContext(ctx).CompleteOrder(order)
	if err != nil {
		return fmt.Errorf("complete order %s: %w", order.OrderRef, err)
	}
	if !applied {
		log.Infof("[Billing] order %s was already finalized, skipping credit grant", order.OrderRef)
		return nil
	}
	order.Status = models.ORDER_STATUS_COMPLETED
	s.invalidateProfile(ctx, order.UserID)
	log.Infof("[Billing] order %s completed, added %d credits to user %d", order.OrderRef, order.CreditsPurchased, order.UserID)
	return nil
}

// markTerminal moves a pending or processing order to failed or cancelled.
// Orders that are already terminal are left alone.
func (s *Service) markTerminal(ctx context.Context, order *models.PaymentOrder, status string) error {
	ok, err := s.repo.WithContext(ctx).TransitionOrder(order.ID, status, models.ORDER_STATUS_PENDING, models.ORDER_STATUS_PROCESSING)
	if err != nil {
		return fmt.Errorf("mark order %s %s: %w", order.OrderRef, status, err)
	}
	if ok {
		order.Status = status
		log.Infof("[Billing] order %s marked %s", order.OrderRef, status)
	}
	return nil
}

func (s *Service) markProcessing(ctx context.Context, order *models.PaymentOrder) error {
	ok, err := s.repo.WithContext(ctx).TransitionOrder(order.ID, models.ORDER_STATUS_PROCESSING, models.ORDER_STATUS_PENDING)
	if err != nil {
		return fmt.Errorf("mark order %s processing: %w", order.OrderRef, err)
	}
	if ok {
		order.Status = models.ORDER_STATUS_PROCESSING
	}
	return nil
}
