package foxy

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// CreateCart creates an empty provider-side cart. Its id is the transaction
// id the provider will echo back on webhooks for this checkout attempt.
func (c *Client) CreateCart(ctx context.Context) (RemoteCart, error) {
	endpoint, err := c.cartsEndpoint()
	if err != nil {
		return RemoteCart{}, err
	}
	var cart cartResource
	if err := c.do(ctx, http.MethodPost, endpoint, map[string]any{}, &cart); err != nil {
		return RemoteCart{}, fmt.Errorf("create cart: %w", err)
	}
	self := cart.Links.Href("self")
	remote := RemoteCart{
		TransactionID: idFromHref(self),
		ItemsURL:      cart.Links.Href("fx:items"),
		SessionURL:    cart.Links.Href("fx:create_session"),
	}
	if remote.TransactionID == "" || remote.ItemsURL == "" || remote.SessionURL == "" {
		return RemoteCart{}, fmt.Errorf("create cart: incomplete link set in response")
	}
	return remote, nil
}

// AddCartItem appends one line item to a remote cart.
func (c *Client) AddCartItem(ctx context.Context, cart RemoteCart, item CartItem) error {
	if err := c.do(ctx, http.MethodPost, cart.ItemsURL, item, nil); err != nil {
		return fmt.Errorf("add cart item %q: %w", item.Name, err)
	}
	return nil
}

// CreateCheckoutSession turns a populated cart into a checkout link. The
// provider hands back a cart URL; shoppers are sent straight to checkout.
func (c *Client) CreateCheckoutSession(ctx context.Context, cart RemoteCart) (string, error) {
	var session checkoutSessionResource
	if err := c.do(ctx, http.MethodPost, cart.SessionURL, map[string]any{}, &session); err != nil {
		return "", fmt.Errorf("create checkout session: %w", err)
	}
	if session.CartLink == "" {
		return "", fmt.Errorf("create checkout session: empty cart link")
	}
	return strings.Replace(session.CartLink, "/cart?", "/checkout?", 1), nil
}
