package foxy

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// FindOrCreateCustomer resolves a provider customer for the given input,
// searching by email before creating so repeated checkouts reuse one remote
// record. Known local customers get their provider id bound on first use.
func (c *Client) FindOrCreateCustomer(ctx context.Context, in CustomerInput) (string, error) {
	endpoint, err := c.customersEndpoint()
	if err != nil {
		return "", err
	}

	var list customerListResource
	searchURL := endpoint + "?email=" + url.QueryEscape(in.Email)
	if err := c.do(ctx, http.MethodGet, searchURL, nil, &list); err != nil {
		return "", fmt.Errorf("search customer: %w", err)
	}

	var remoteID string
	if list.TotalItems > 0 && len(list.Embedded.Customers) > 0 {
		found := list.Embedded.Customers[0]
		remoteID = found.ID.String()
		if remoteID == "" {
			remoteID = idFromHref(found.Links.Href("self"))
		}
	} else {
		var created customerResource
		err := c.do(ctx, http.MethodPost, endpoint, customerPayload(in), &created)
		if err != nil {
			return "", fmt.Errorf("create customer: %w", err)
		}
		remoteID = idFromHref(created.Links.Href("self"))
		if remoteID == "" {
			remoteID = created.ID.String()
		}
	}
	if remoteID == "" {
		return "", fmt.Errorf("customer response carried no id")
	}

	if c.binder != nil && in.LocalID != "" {
		if err := c.binder.BindRemoteCustomer(ctx, in.LocalID, remoteID); err != nil {
			c.log.Warn().Err(err).Str("customer_id", in.LocalID).Msg("bind remote customer failed")
		}
	}
	return remoteID, nil
}

// UpdateCustomer pushes name and email changes to an existing provider
// customer.
func (c *Client) UpdateCustomer(ctx context.Context, remoteID string, in CustomerInput) error {
	endpoint, err := c.customersEndpoint()
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodPatch, endpoint+"/"+remoteID, customerPayload(in), nil); err != nil {
		return fmt.Errorf("update customer %s: %w", remoteID, err)
	}
	return nil
}

// DeleteCustomer removes the provider-side customer record.
func (c *Client) DeleteCustomer(ctx context.Context, remoteID string) error {
	endpoint, err := c.customersEndpoint()
	if err != nil {
		return err
	}
	if err := c.do(ctx, http.MethodDelete, endpoint+"/"+remoteID, nil, nil); err != nil {
		return fmt.Errorf("delete customer %s: %w", remoteID, err)
	}
	return nil
}

// UpdateDefaultAddresses syncs the default billing and shipping addresses.
// Each address is pushed independently; a failure on one is logged and does
// not block the other, since checkout can proceed without prefilled
// addresses.
func (c *Client) UpdateDefaultAddresses(ctx context.Context, remoteID string, billing, shipping *CustomerAddress) {
	endpoint, err := c.customersEndpoint()
	if err != nil {
		c.log.Warn().Err(err).Msg("default address sync skipped")
		return
	}
	customerURL := endpoint + "/" + remoteID
	if billing != nil {
		if err := c.do(ctx, http.MethodPatch, customerURL+"/default_billing_address", billing, nil); err != nil {
			c.log.Warn().Err(err).Str("remote_customer_id", remoteID).Msg("sync billing address failed")
		}
	}
	if shipping != nil {
		if err := c.do(ctx, http.MethodPatch, customerURL+"/default_shipping_address", shipping, nil); err != nil {
			c.log.Warn().Err(err).Str("remote_customer_id", remoteID).Msg("sync shipping address failed")
		}
	}
}

func customerPayload(in CustomerInput) map[string]any {
	return map[string]any{
		"email":      in.Email,
		"first_name": in.FirstName,
		"last_name":  in.LastName,
	}
}
