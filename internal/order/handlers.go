package order

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/common"
)

// StatusWatcher reacts to manual order status changes, e.g. by asking the
// provider to void or refund the backing transaction.
type StatusWatcher interface {
	OrderStatusChanged(ctx context.Context, o Order, from, to Status) error
}

// Handler serves shopper-facing order reads.
type Handler struct {
	Store *Store
}

// Get returns one order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	o, err := h.Store.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orderPayload(o)})
}

// AdminHandler serves operator endpoints: manual status changes and the
// admin notice feed.
type AdminHandler struct {
	Store   *Store
	Notices *NoticeStore
	Watcher StatusWatcher
	Log     zerolog.Logger
}

var validManualStatuses = map[Status]bool{
	StatusCancelled: true,
	StatusRefunded:  true,
	StatusVoided:    true,
	StatusCompleted: true,
	StatusFailed:    true,
}

// UpdateStatus applies a manual status change and notifies the watcher so
// provider-side effects (void, refund) can follow.
func (h *AdminHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var payload struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || !validManualStatuses[payload.Status] {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid status", nil)
		return
	}
	o, err := h.Store.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order", nil)
		return
	}
	if o.Status == payload.Status {
		common.JSON(w, http.StatusOK, map[string]any{"data": orderPayload(o)})
		return
	}
	if err := h.Store.UpdateStatus(r.Context(), id, payload.Status); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to update order", nil)
		return
	}
	if h.Watcher != nil {
		if err := h.Watcher.OrderStatusChanged(r.Context(), o, o.Status, payload.Status); err != nil {
			h.Log.Error().Err(err).Str("order_id", id.String()).Msg("status watcher failed")
		}
	}
	o.Status = payload.Status
	common.JSON(w, http.StatusOK, map[string]any{"data": orderPayload(o)})
}

// CreateSubscription registers a recurring schedule anchored to an existing
// order, typically a completed subscription purchase. The renewal worker
// picks the record up once next_payment_at passes.
func (h *AdminHandler) CreateSubscription(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var payload struct {
		NextPaymentAt time.Time `json:"nextPaymentAt"`
		TotalCents    int64     `json:"totalCents"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.NextPaymentAt.IsZero() {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "nextPaymentAt is required", nil)
		return
	}
	o, err := h.Store.GetOrder(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load order", nil)
		return
	}
	total := payload.TotalCents
	if total <= 0 {
		total = o.TotalCents
	}
	sub, err := h.Store.CreateSubscription(r.Context(), Subscription{
		ID:                 uuid.New(),
		ParentOrderID:      o.ID,
		CustomerID:         o.CustomerID,
		Email:              o.Email,
		FirstName:          o.FirstName,
		LastName:           o.LastName,
		TotalCents:         total,
		NextPaymentAt:      payload.NextPaymentAt,
		Status:             "active",
		FoxySubscriptionID: o.FoxySubscriptionID,
	})
	if err != nil {
		h.Log.Error().Err(err).Str("order_id", id.String()).Msg("create subscription failed")
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to create subscription", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"id":            sub.ID.String(),
		"parentOrderId": sub.ParentOrderID.String(),
		"status":        sub.Status,
		"totalCents":    sub.TotalCents,
		"nextPaymentAt": sub.NextPaymentAt,
	}})
}

// ListNotices returns recent admin notices.
func (h *AdminHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	if h.Notices == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "notice store not configured", nil)
		return
	}
	notices, err := h.Notices.List(r.Context(), 50)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load notices", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": notices})
}

func orderPayload(o Order) map[string]any {
	return map[string]any{
		"id":         o.ID.String(),
		"status":     o.Status,
		"email":      o.Email,
		"totalCents": o.TotalCents,
		"createdAt":  o.CreatedAt,
		"updatedAt":  o.UpdatedAt,
	}
}
