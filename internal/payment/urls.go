package payment

import (
	"net/url"
	"strings"
)

// StorefrontURLs builds the shopper-facing redirect targets for the checkout
// callback.
type StorefrontURLs struct {
	Base string
}

func (u StorefrontURLs) page(path string, params url.Values) string {
	base := strings.TrimRight(u.Base, "/") + path
	if len(params) == 0 {
		return base
	}
	return base + "?" + params.Encode()
}

// Home is the storefront landing page with an error notice.
func (u StorefrontURLs) Home(notice string) string {
	params := url.Values{}
	if notice != "" {
		params.Set("notice", notice)
	}
	return u.page("/", params)
}

// OrderView is the shopper's view of one order.
func (u StorefrontURLs) OrderView(orderID, notice string) string {
	params := url.Values{}
	if notice != "" {
		params.Set("notice", notice)
	}
	return u.page("/orders/"+orderID, params)
}

// OrderReceived is the thank-you page after a successful payment.
func (u StorefrontURLs) OrderReceived(orderID string) string {
	return u.page("/orders/"+orderID+"/received", nil)
}
