package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/common"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/lock"
	"github.com/noah-isme/foxy-bridge/internal/obs"
	"github.com/noah-isme/foxy-bridge/internal/order"
)

const (
	headerWebhookEvent     = "Foxy-Webhook-Event"
	headerWebhookSignature = "Foxy-Webhook-Signature"
)

// allowedWebhookEvents is the transaction event family this endpoint accepts.
var allowedWebhookEvents = map[string]bool{
	"transaction/created":  true,
	"transaction/modified": true,
	"transaction/captured": true,
	"transaction/refunded": true,
	"transaction/voided":   true,
	"transaction/refeed":   true,
}

// SubscriptionLookup resolves the provider subscription behind a transaction.
type SubscriptionLookup interface {
	SubscriptionFromTransaction(ctx context.Context, transactionID string) (string, error)
}

// Webhook reconciles provider transaction webhooks onto local orders.
//
// The provider treats any non-2xx as a delivery failure and retries, so the
// handler answers 500 for conditions worth retrying (bad signature during a
// key rotation, malformed body) and 400 for payloads that will never apply.
type Webhook struct {
	Creds     foxy.CredentialStore
	Orders    OrderStore
	Subs      SubscriptionLookup
	Notices   foxy.AdminNotifier
	Replay    *redis.Client
	ReplayTTL time.Duration
	Lock      *lock.Locker
	Log       zerolog.Logger
}

type webhookPayload struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
}

// Handle processes one transaction webhook delivery.
func (h *Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Creds == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	ctx := r.Context()
	event := r.Header.Get(headerWebhookEvent)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.finish(w, event, http.StatusInternalServerError, "INVALID_BODY", "unable to read payload")
		return
	}

	creds, err := h.Creds.Load(ctx)
	if err != nil {
		h.finish(w, event, http.StatusInternalServerError, "INTERNAL", "credentials unavailable")
		return
	}
	if !foxy.VerifyWebhookSignature(body, creds.WebhookSignature, r.Header.Get(headerWebhookSignature)) {
		h.Log.Warn().Str("event", event).Msg("webhook signature verification failed")
		h.finish(w, event, http.StatusInternalServerError, "INVALID_SIGNATURE", "signature verification failed")
		return
	}

	var payload webhookPayload
	if err := json.Unmarshal(body, &payload); err != nil || payload.ID.String() == "" {
		h.finish(w, event, http.StatusInternalServerError, "INVALID_BODY", "unparsable webhook payload")
		return
	}

	if !allowedWebhookEvents[event] {
		h.finish(w, event, http.StatusBadRequest, "UNSUPPORTED_EVENT", "unsupported webhook event")
		return
	}

	if h.Replay != nil && h.ReplayTTL > 0 {
		key := "wh:foxy:" + common.Sha256Hex(string(body))
		fresh, err := h.Replay.SetNX(ctx, key, "1", h.ReplayTTL).Result()
		if err != nil {
			h.finish(w, event, http.StatusInternalServerError, "REPLAY_STORE_ERROR", "replay guard unavailable")
			return
		}
		if !fresh {
			// Byte-identical redelivery; the first copy already applied.
			h.observe(event, "replay")
			common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": "duplicate"}})
			return
		}
	}

	transactionID := payload.ID.String()
	apply := func(ctx context.Context) error {
		o, found, err := h.resolveOrder(ctx, transactionID)
		if err != nil {
			h.finish(w, event, http.StatusInternalServerError, "INTERNAL", "order lookup failed")
			return nil
		}
		if !found {
			if h.Notices != nil {
				_ = h.Notices.Notice(ctx, "webhook_order_unresolved",
					"webhook for transaction "+transactionID+" matched no local order")
			}
			h.finish(w, event, http.StatusBadRequest, "ORDER_UNRESOLVED", "no local order for transaction")
			return nil
		}
		if _, err := applyTransactionStatus(ctx, h.Orders, h.Log, o, payload.Status); err != nil {
			h.finish(w, event, http.StatusInternalServerError, "INTERNAL", "unable to apply status")
			return nil
		}
		h.observe(event, "ok")
		common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"status": "applied"}})
		return nil
	}

	if h.Lock == nil {
		_ = apply(ctx)
		return
	}
	// Deliveries for the same transaction apply one at a time so the status
	// transitions they trigger do not interleave.
	if err := h.Lock.WithLock(ctx, "wh:txn:"+transactionID, 30*time.Second, apply); err != nil {
		h.finish(w, event, http.StatusInternalServerError, "INTERNAL", "unable to serialize delivery")
	}
}

// resolveOrder finds the order for a transaction, falling back through the
// provider's subscription zoom for renewal charges whose transaction id the
// store has never seen.
func (h *Webhook) resolveOrder(ctx context.Context, transactionID string) (order.Order, bool, error) {
	o, found, err := h.Orders.FindByTransactionID(ctx, transactionID)
	if err != nil || found {
		return o, found, err
	}
	if h.Subs == nil {
		return order.Order{}, false, nil
	}
	remoteSubID, err := h.Subs.SubscriptionFromTransaction(ctx, transactionID)
	if err != nil {
		if foxy.IsNotFound(err) {
			return order.Order{}, false, nil
		}
		return order.Order{}, false, err
	}
	o, found, err = h.Orders.FindBySubscriptionID(ctx, remoteSubID)
	if err != nil || !found {
		return order.Order{}, found, err
	}
	// Cache the resolved transaction id so the next delivery hits directly.
	if setErr := h.Orders.SetTransactionID(ctx, o.ID, transactionID); setErr != nil {
		h.Log.Warn().Err(setErr).Str("order_id", o.ID.String()).Msg("cache transaction id failed")
	}
	return o, true, nil
}

func (h *Webhook) finish(w http.ResponseWriter, event string, status int, code, message string) {
	h.observe(event, "error")
	common.JSONError(w, status, code, message, nil)
}

func (h *Webhook) observe(event, result string) {
	if obs.FoxyWebhookTotal == nil {
		return
	}
	if event == "" {
		event = "unknown"
	}
	obs.FoxyWebhookTotal.WithLabelValues(event, result).Inc()
}
