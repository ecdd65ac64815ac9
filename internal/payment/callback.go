package payment

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/common"
	"github.com/noah-isme/foxy-bridge/internal/obs"
	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/session"
)

// StatusQuerier fetches the live provider status for a transaction.
type StatusQuerier interface {
	PaymentStatus(ctx context.Context, transactionID string) (string, error)
}

// Callback handles the shopper's return from the hosted checkout. The
// payment session record is consumed before anything else, so a replayed
// callback URL finds nothing and falls back to the error path.
type Callback struct {
	Orders   OrderStore
	Sessions SessionStore
	Status   StatusQuerier
	URLs     StorefrontURLs
	Log      zerolog.Logger
}

// Handle processes GET /foxy/callback?fc_order_id=<transaction id>.
func (h *Callback) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil || h.Sessions == nil || h.Status == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "callback unavailable", nil)
		return
	}
	ctx := r.Context()
	transactionID := r.URL.Query().Get("fc_order_id")

	sessionID, hasSession := common.ShopperSession(ctx)
	var rec session.Record
	if hasSession {
		var err error
		rec, err = h.Sessions.Consume(ctx, sessionID)
		if err != nil && !errors.Is(err, session.ErrNotFound) {
			h.Log.Error().Err(err).Msg("consume payment session failed")
		}
	}

	o, found, err := h.Orders.FindByTransactionID(ctx, transactionID)
	if err != nil {
		h.Log.Error().Err(err).Str("transaction_id", transactionID).Msg("callback order lookup failed")
		h.redirect(w, r, h.URLs.Home("payment-error"), "error")
		return
	}
	// An absent order or a session remembering a different transaction both
	// mean this URL cannot be trusted.
	if !found || rec.TransactionID != transactionID {
		h.Log.Warn().
			Str("transaction_id", transactionID).
			Str("session_transaction_id", rec.TransactionID).
			Bool("order_found", found).
			Msg("callback rejected")
		h.redirect(w, r, h.URLs.Home("payment-error"), "rejected")
		return
	}

	remoteStatus, err := h.Status.PaymentStatus(ctx, transactionID)
	if err != nil {
		h.Log.Error().Err(err).Str("transaction_id", transactionID).Msg("live payment status query failed")
		h.redirect(w, r, h.URLs.OrderView(o.ID.String(), "payment-status-unavailable"), "error")
		return
	}

	final, err := applyTransactionStatus(ctx, h.Orders, h.Log, o, remoteStatus)
	if err != nil {
		h.Log.Error().Err(err).Str("order_id", o.ID.String()).Msg("apply callback status failed")
		h.redirect(w, r, h.URLs.OrderView(o.ID.String(), "payment-error"), "error")
		return
	}

	if final != order.StatusCompleted {
		h.redirect(w, r, h.URLs.OrderView(o.ID.String(), "payment-not-completed"), "not_paid")
		return
	}
	h.redirect(w, r, h.URLs.OrderReceived(o.ID.String()), "paid")
}

func (h *Callback) redirect(w http.ResponseWriter, r *http.Request, target, result string) {
	if obs.CallbackTotal != nil {
		obs.CallbackTotal.WithLabelValues(result).Inc()
	}
	http.Redirect(w, r, target, http.StatusFound)
}
