package payment

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/common"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/session"
)

// guestCustomerID is what the provider expects as fc_customer_id for
// shoppers without a provider account.
const guestCustomerID = "0"

// SSO answers the provider's single-sign-on redirect during hosted checkout.
// The provider sends the shopper here mid-checkout; we vouch for them by
// signing a short-lived token with the configured store secret and bouncing
// them back to the checkout.
type SSO struct {
	Sessions SessionStore
	Creds    foxy.CredentialStore
	Domain   func() string
	TokenTTL time.Duration
	Now      func() time.Time
	Log      zerolog.Logger
}

func (h *SSO) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *SSO) tokenTTL() time.Duration {
	if h.TokenTTL > 0 {
		return h.TokenTTL
	}
	return 300 * time.Second
}

// Handle processes GET /foxy/sso.
func (h *SSO) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Sessions == nil || h.Creds == nil || h.Domain == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "sso unavailable", nil)
		return
	}
	ctx := r.Context()

	customerID := guestCustomerID
	if sessionID, ok := common.ShopperSession(ctx); ok {
		rec, err := h.Sessions.Peek(ctx, sessionID)
		switch {
		case err == nil && rec.CustomerID != "":
			customerID = rec.CustomerID
		case err != nil && !errors.Is(err, session.ErrNotFound):
			h.Log.Error().Err(err).Msg("peek payment session failed")
		}
	}

	creds, err := h.Creds.Load(ctx)
	if err != nil {
		h.Log.Error().Err(err).Msg("load credentials for sso failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "sso unavailable", nil)
		return
	}
	domain := h.Domain()
	if domain == "" {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "store not discovered", nil)
		return
	}

	ts := h.now().Add(h.tokenTTL()).Unix()
	token := foxy.SignSSO(customerID, ts, creds.StoreSecret)

	params := url.Values{}
	params.Set("fc_auth_token", token)
	params.Set("fc_customer_id", customerID)
	params.Set("timestamp", fmt.Sprintf("%d", ts))
	if fcsid := r.URL.Query().Get("fcsid"); fcsid != "" {
		params.Set("fcsid", fcsid)
	}
	http.Redirect(w, r, "https://"+domain+"/checkout?"+params.Encode(), http.StatusFound)
}
