package foxy

import (
	"context"
	"fmt"
	"net/http"
)

func (c *Client) subscriptionURL(id string) string {
	return c.baseURL + "/subscriptions/" + id
}

// SubscriptionFromTransaction resolves the provider subscription id behind a
// transaction. Transaction resources embed their subscriptions when fetched
// with the subscriptions zoom; other resource shapes carry a direct
// subscription link. A transaction with neither is not subscription-backed
// and yields a NotFoundError.
func (c *Client) SubscriptionFromTransaction(ctx context.Context, transactionID string) (string, error) {
	var txn transactionResource
	zoomed := c.transactionURL(transactionID) + "?zoom=subscriptions"
	if err := c.do(ctx, http.MethodGet, zoomed, nil, &txn); err != nil {
		return "", fmt.Errorf("fetch transaction %s: %w", transactionID, err)
	}

	var href string
	if txn.Type == "transaction" {
		if len(txn.Embedded.Subscriptions) > 0 {
			href = txn.Embedded.Subscriptions[0].Links.Href("self")
		}
	} else {
		href = txn.Links.Href("fx:subscription")
	}
	if href == "" {
		return "", &NotFoundError{Resource: "subscription for transaction " + transactionID}
	}
	id := idFromHref(href)
	if id == "" {
		return "", fmt.Errorf("subscription link %q carried no id", href)
	}
	return id, nil
}

// ChargePastDue sets the subscription's past-due amount and triggers an
// immediate charge attempt when the provider exposes the charge link.
func (c *Client) ChargePastDue(ctx context.Context, subscriptionID string, amount float64) error {
	patch := map[string]any{"past_due_amount": amount}
	var sub subscriptionResource
	if err := c.do(ctx, http.MethodPatch, c.subscriptionURL(subscriptionID), patch, &sub); err != nil {
		return fmt.Errorf("set past due amount on subscription %s: %w", subscriptionID, err)
	}
	chargeHref := sub.Links.Href("fx:charge_past_due")
	if chargeHref == "" {
		return nil
	}
	if err := c.do(ctx, http.MethodPost, chargeHref, map[string]any{}, nil); err != nil {
		return fmt.Errorf("charge past due on subscription %s: %w", subscriptionID, err)
	}
	return nil
}

// DeactivateSubscription turns off auto-billing for a subscription.
func (c *Client) DeactivateSubscription(ctx context.Context, subscriptionID string) error {
	patch := map[string]any{"is_active": false}
	if err := c.do(ctx, http.MethodPatch, c.subscriptionURL(subscriptionID), patch, nil); err != nil {
		return fmt.Errorf("deactivate subscription %s: %w", subscriptionID, err)
	}
	return nil
}
