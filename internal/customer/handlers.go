package customer

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/common"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
)

// Input is the write payload for customer endpoints. Addresses are not
// stored locally; when present on an update they are forwarded to the
// provider as its default billing/shipping addresses.
type Input struct {
	Email     string                `json:"email" validate:"required,email"`
	FirstName string                `json:"firstName" validate:"required"`
	LastName  string                `json:"lastName" validate:"required"`
	Billing   *foxy.CustomerAddress `json:"billing,omitempty"`
	Shipping  *foxy.CustomerAddress `json:"shipping,omitempty"`
}

// Handler exposes customer CRUD. Every successful local write triggers a
// mirror call; mirror failures are logged and surfaced as admin concerns,
// never as request failures.
type Handler struct {
	Store    *Store
	Mirror   *Mirror
	Validate *validator.Validate
	Log      zerolog.Logger
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (Input, bool) {
	var in Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return Input{}, false
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(in); err != nil {
			common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "invalid customer", err.Error())
			return Input{}, false
		}
	}
	return in, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid customer id", nil)
		return uuid.Nil, false
	}
	return id, true
}

// Create registers a new customer and mirrors it to the provider.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer store not configured", nil)
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	c, err := h.Store.Create(r.Context(), Customer{
		Email: in.Email, FirstName: in.FirstName, LastName: in.LastName,
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to create customer", nil)
		return
	}
	if h.Mirror != nil {
		if err := h.Mirror.Created(r.Context(), c); err != nil {
			h.Log.Warn().Err(err).Str("customer_id", c.ID.String()).Msg("mirror customer create failed")
		}
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// Get returns one customer.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer store not configured", nil)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load customer", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Update rewrites a customer profile and mirrors the change.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer store not configured", nil)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}
	c, err := h.Store.Update(r.Context(), Customer{
		ID: id, Email: in.Email, FirstName: in.FirstName, LastName: in.LastName,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to update customer", nil)
		return
	}
	if h.Mirror != nil {
		if err := h.Mirror.Updated(r.Context(), c, in.Billing, in.Shipping); err != nil {
			h.Log.Warn().Err(err).Str("customer_id", c.ID.String()).Msg("mirror customer update failed")
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// Delete removes a customer locally and on the provider.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "customer store not configured", nil)
		return
	}
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	c, err := h.Store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "customer not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to load customer", nil)
		return
	}
	if err := h.Store.Delete(r.Context(), id); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unable to delete customer", nil)
		return
	}
	if h.Mirror != nil {
		if err := h.Mirror.Deleted(r.Context(), c); err != nil {
			h.Log.Warn().Err(err).Str("customer_id", c.ID.String()).Msg("mirror customer delete failed")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}
