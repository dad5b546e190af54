package billing

import "strings"

type gatewayOutcome int

const (
	outcomeUnknown gatewayOutcome = iota
	outcomeProcessing
	outcomeSucceeded
	outcomeFailed
	outcomeCancelled
)

// classifyGatewayStatus maps a gateway status string case-insensitively. Nil,
// empty and unrecognised values are unknown and must not change the order.
func classifyGatewayStatus(status *string) gatewayOutcome {
	if status == nil {
		return outcomeUnknown
	}
	s := strings.ToLower(strings.TrimSpace(*status))
	switch {
	case s == "succeeded":
		return outcomeSucceeded
	case s == "failed":
		return outcomeFailed
	case s == "cancelled" || s == "canceled":
		return outcomeCancelled
	case s == "processing" || strings.HasPrefix(s, "requires_"):
		return outcomeProcessing
	default:
		return outcomeUnknown
	}
}

func eventOutcome(eventType string) gatewayOutcome {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case EventPaymentSucceeded:
		return outcomeSucceeded
	case EventPaymentFailed:
		return outcomeFailed
	case EventPaymentCancelled, "payment.canceled":
		return outcomeCancelled
	default:
		return outcomeUnknown
	}
}
