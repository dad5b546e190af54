package billing

import "errors"

var (
	ErrInvalidPackage       = errors.New("invalid or inactive pricing package")
	ErrOfferAlreadyRedeemed = errors.New("introductory offer already redeemed")
	ErrGateway              = errors.New("payment gateway error")
	ErrWebhookAuth          = errors.New("webhook authentication failed")
	ErrUnmatchedWebhook     = errors.New("webhook does not match any payment order")
	ErrMalformedWebhook     = errors.New("malformed webhook payload")
	ErrOrderNotFound        = errors.New("payment order not found")
)
