package payment

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/cart"
	"github.com/noah-isme/foxy-bridge/internal/common"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/order"
)

// CheckoutInput identifies the shopper paying for the current cart.
type CheckoutInput struct {
	Email      string    `json:"email" validate:"required,email"`
	FirstName  string    `json:"firstName" validate:"required"`
	LastName   string    `json:"lastName" validate:"required"`
	CustomerID uuid.UUID `json:"customerId,omitempty"`
}

// Handler exposes the payment-link and subscription endpoints.
type Handler struct {
	Svc      *Service
	Subs     *Subscriptions
	Orders   OrderStore
	Carts    *cart.Store
	Validate *validator.Validate
	Log      zerolog.Logger
}

// CreateLink handles POST /api/v1/payments/foxy/link: turns the shopper's
// cart into an awaiting-payment order and returns the signed checkout URL.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Orders == nil || h.Carts == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "payments unavailable", nil)
		return
	}
	ctx := r.Context()
	sessionID, ok := common.ShopperSession(ctx)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "NO_SESSION", "missing shopper session", nil)
		return
	}
	var in CheckoutInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid checkout details", err.Error())
			return
		}
	}

	c, err := h.Carts.Get(ctx, sessionID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load cart", nil)
		return
	}
	if len(c.Items) == 0 {
		common.JSONError(w, http.StatusBadRequest, "CART_EMPTY", "cart is empty", nil)
		return
	}

	o, err := h.Orders.CreateOrder(ctx, order.Order{
		Email:      in.Email,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		TotalCents: c.TotalCents(),
		CustomerID: in.CustomerID,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to create order", nil)
		return
	}

	link, err := h.Svc.CreatePaymentLink(ctx, sessionID, LinkTarget{OrderID: o.ID})
	if err != nil {
		h.linkError(w, err, o.ID)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"orderId":     o.ID.String(),
		"paymentLink": link,
	}})
}

// ChangePaymentMethod handles POST /api/v1/subscriptions/{id}/payment-method:
// issues a checkout link that replaces the payment method on file without
// charging the subscription.
func (h *Handler) ChangePaymentMethod(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "payments unavailable", nil)
		return
	}
	ctx := r.Context()
	sessionID, ok := common.ShopperSession(ctx)
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "NO_SESSION", "missing shopper session", nil)
		return
	}
	subID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid subscription id", nil)
		return
	}

	link, err := h.Svc.CreatePaymentLink(ctx, sessionID, LinkTarget{
		SubscriptionID:      subID,
		PaymentMethodChange: true,
	})
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "subscription not found", nil)
			return
		}
		h.linkError(w, err, uuid.Nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"paymentLink": link,
	}})
}

// CancelSubscription handles POST /api/v1/subscriptions/{id}/cancel: marks
// the subscription cancelled locally and deactivates it on the provider.
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	if h.Subs == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "NOT_CONFIGURED", "subscriptions unavailable", nil)
		return
	}
	ctx := r.Context()
	subID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid subscription id", nil)
		return
	}
	sub, err := h.Orders.GetSubscription(ctx, subID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "subscription not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load subscription", nil)
		return
	}
	if err := h.Orders.UpdateSubscriptionStatus(ctx, subID, "cancelled"); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to cancel subscription", nil)
		return
	}
	h.Subs.Cancel(ctx, sub)
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"subscriptionId": subID.String(),
		"status":         "cancelled",
	}})
}

// linkError maps link-generation failures to shopper-safe responses; the
// order stays awaiting-payment so the shopper can retry.
func (h *Handler) linkError(w http.ResponseWriter, err error, orderID uuid.UUID) {
	if errors.Is(err, foxy.ErrCartEmpty) {
		common.JSONError(w, http.StatusBadRequest, "CART_EMPTY", "cart is empty", nil)
		return
	}
	logEvent := h.Log.Error().Err(err)
	if orderID != uuid.Nil {
		logEvent = logEvent.Str("order_id", orderID.String())
	}
	logEvent.Msg("payment link generation failed")
	common.JSONError(w, http.StatusBadGateway, "PAYMENT_LINK_FAILED", "payment is temporarily unavailable, please try again later", nil)
}
