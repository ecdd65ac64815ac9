// Package payment drives the hosted-checkout lifecycle: building payment
// links, reconciling provider webhooks, redeeming the browser callback, and
// pushing local status changes back to the provider.
package payment

import (
	"strings"

	"github.com/noah-isme/foxy-bridge/internal/order"
)

// MapTransactionStatus translates a provider transaction status into the
// local order status. The second return is false for statuses the mapping
// does not recognise; callers log those and leave the order untouched.
func MapTransactionStatus(remote string) (order.Status, bool) {
	switch strings.ToLower(strings.TrimSpace(remote)) {
	case "captured", "approved", "authorized":
		return order.StatusCompleted, true
	case "rejected", "declined":
		return order.StatusFailed, true
	case "refunded", "voided":
		return order.StatusRefunded, true
	case "pending":
		return order.StatusProcessing, true
	default:
		return "", false
	}
}
