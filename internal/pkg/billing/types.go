package billing

import "github.com/ManuelReschke/Ghiblit/app/models"

// PaymentLink is what the gateway returns for a newly created hosted payment.
type PaymentLink struct {
	ExternalID string
	URL        string
}

// GatewayStatus is the gateway's view of a payment. Status is nil when the
// gateway reported null.
type GatewayStatus struct {
	ExternalID string
	Status     *string
}

// WebhookHeaders carries the Standard Webhooks headers of a delivery.
type WebhookHeaders struct {
	ID        string
	Signature string
	Timestamp string
}

// WebhookPayload is the subset of a gateway event the reconciler reads.
type WebhookPayload struct {
	Type string `json:"type"`
	Data struct {
		PaymentID string `json:"payment_id"`
		Status    string `json:"status,omitempty"`
	} `json:"data"`
}

// StatusResult is returned by CheckStatus. Status is the order status after
// the check; Message explains a non-terminal answer.
type StatusResult struct {
	Order   *models.PaymentOrder
	Status  string
	Message string
}

// WebhookResult describes what a webhook delivery did.
type WebhookResult struct {
	EventID   string
	EventType string
	OrderID   uint
	Duplicate bool
}

const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventPaymentCancelled = "payment.cancelled"
)
