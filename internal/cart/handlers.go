package cart

import (
	"encoding/json"
	"net/http"

	validator "github.com/go-playground/validator/v10"

	"github.com/noah-isme/foxy-bridge/internal/common"
)

// Handler exposes the shopper cart over HTTP.
type Handler struct {
	Store    *Store
	Validate *validator.Validate
}

// Get returns the current cart for the shopper session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart store not configured", nil)
		return
	}
	sessionID, ok := common.ShopperSession(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "NO_SESSION", "missing shopper session", nil)
		return
	}
	c, err := h.Store.Get(r.Context(), sessionID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load cart", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{
		"items":      c.Items,
		"totalCents": c.TotalCents(),
	}})
}

// AddItem appends a line item to the shopper's cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart store not configured", nil)
		return
	}
	sessionID, ok := common.ShopperSession(r.Context())
	if !ok {
		common.JSONError(w, http.StatusBadRequest, "NO_SESSION", "missing shopper session", nil)
		return
	}
	var item Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item payload", nil)
		return
	}
	if item.Qty == 0 {
		item.Qty = 1
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(item); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid item", err.Error())
			return
		}
	}
	c, err := h.Store.AddItem(r.Context(), sessionID, item)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to update cart", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"items":      c.Items,
		"totalCents": c.TotalCents(),
	}})
}
