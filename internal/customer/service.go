package customer

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/foxy"
)

// Mirror pushes local customer lifecycle events to the provider so shoppers
// see one consistent account on the hosted checkout. Mirror calls are
// best-effort from the caller's perspective: local writes never roll back
// because the provider was unreachable.
type Mirror struct {
	Store  *Store
	Client *foxy.Client
	Log    zerolog.Logger
}

// Created ensures a provider customer exists for a new local customer and
// binds its id.
func (m *Mirror) Created(ctx context.Context, c Customer) error {
	_, err := m.Client.FindOrCreateCustomer(ctx, foxy.CustomerInput{
		LocalID:   c.ID.String(),
		Email:     c.Email,
		FirstName: c.FirstName,
		LastName:  c.LastName,
	})
	return err
}

// Updated propagates profile changes to the bound provider customer. An
// unbound customer is mirrored as a create instead. Address defaults are
// synced afterwards when the caller supplied them; per-address failures are
// logged inside the client and never fail the update.
func (m *Mirror) Updated(ctx context.Context, c Customer, billing, shipping *foxy.CustomerAddress) error {
	remoteID := c.FoxyCustomerID
	if remoteID == "" {
		id, err := m.Client.FindOrCreateCustomer(ctx, foxy.CustomerInput{
			LocalID:   c.ID.String(),
			Email:     c.Email,
			FirstName: c.FirstName,
			LastName:  c.LastName,
		})
		if err != nil {
			return err
		}
		remoteID = id
	} else {
		if err := m.Client.UpdateCustomer(ctx, remoteID, foxy.CustomerInput{
			LocalID:   c.ID.String(),
			Email:     c.Email,
			FirstName: c.FirstName,
			LastName:  c.LastName,
		}); err != nil {
			return err
		}
	}
	if billing != nil || shipping != nil {
		m.Client.UpdateDefaultAddresses(ctx, remoteID, billing, shipping)
	}
	return nil
}

// Deleted removes the provider-side record for a deleted local customer.
// Customers that never checked out have no provider record to remove.
func (m *Mirror) Deleted(ctx context.Context, c Customer) error {
	if c.FoxyCustomerID == "" {
		return &foxy.NotFoundError{Resource: "remote customer for " + c.ID.String()}
	}
	return m.Client.DeleteCustomer(ctx, c.FoxyCustomerID)
}
