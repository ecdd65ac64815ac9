package foxy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Transaction actions that can be requested against a completed payment.
const (
	ActionVoid   = "fx:void"
	ActionRefund = "fx:refund"
)

func (c *Client) transactionURL(id string) string {
	return c.baseURL + "/transactions/" + id
}

// PaymentStatus fetches the provider's current status string for a
// transaction. Unknown transactions yield a NotFoundError.
func (c *Client) PaymentStatus(ctx context.Context, transactionID string) (string, error) {
	var txn transactionResource
	err := c.do(ctx, http.MethodGet, c.transactionURL(transactionID), nil, &txn)
	if err != nil {
		var failed *FailedRequestError
		if errors.As(err, &failed) && failed.Status == http.StatusNotFound {
			return "", &NotFoundError{Resource: "transaction " + transactionID}
		}
		return "", fmt.Errorf("fetch transaction %s: %w", transactionID, err)
	}
	return txn.Status, nil
}

// TransitionTransaction requests a void or refund on the provider side. The
// provider only exposes the action link while the transaction is in a state
// that allows it; when the link is missing an admin notice is raised and nil
// is returned so the local status change still stands.
func (c *Client) TransitionTransaction(ctx context.Context, transactionID, action string) error {
	var txn transactionResource
	if err := c.do(ctx, http.MethodGet, c.transactionURL(transactionID), nil, &txn); err != nil {
		return fmt.Errorf("fetch transaction %s: %w", transactionID, err)
	}
	href := txn.Links.Href(action)
	if href == "" {
		msg := fmt.Sprintf("transaction %s does not allow %s; settle it manually on the provider dashboard", transactionID, action)
		if c.notices != nil {
			if err := c.notices.Notice(ctx, "transaction_action_unavailable", msg); err != nil {
				c.log.Warn().Err(err).Msg("record admin notice failed")
			}
		}
		c.log.Warn().Str("transaction_id", transactionID).Str("action", action).Msg("transaction action link absent")
		return nil
	}
	if err := c.do(ctx, http.MethodPost, href, map[string]any{}, nil); err != nil {
		return fmt.Errorf("%s transaction %s: %w", action, transactionID, err)
	}
	return nil
}
