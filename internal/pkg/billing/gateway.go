package billing

import (
	"context"

	"github.com/ManuelReschke/Ghiblit/app/models"
)

// Gateway is the payment processor as seen by the reconciler.
type Gateway interface {
	CreatePaymentLink(ctx context.Context, order *models.PaymentOrder, user *models.User) (PaymentLink, error)
	GetPaymentStatus(ctx context.Context, externalID string) (*GatewayStatus, error)
	VerifyWebhookSignature(rawBody []byte, signature, eventID, timestamp string) bool
}
