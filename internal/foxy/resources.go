package foxy

import "encoding/json"

type apiHome struct {
	Links Links `json:"_links"`
}

type storeResource struct {
	Links           Links  `json:"_links"`
	StoreDomain     string `json:"store_domain"`
	UseRemoteDomain bool   `json:"use_remote_domain"`
	WebhookKey      string `json:"webhook_key"`
	UseSingleSignOn bool   `json:"use_single_sign_on"`
	SingleSignOnURL string `json:"single_sign_on_url"`
}

type cartResource struct {
	Links Links `json:"_links"`
}

type checkoutSessionResource struct {
	CartLink string `json:"cart_link"`
}

type tokenResource struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

type subscriptionResource struct {
	Links Links `json:"_links"`
}

type transactionResource struct {
	Type     string `json:"type"`
	Status   string `json:"status"`
	Links    Links  `json:"_links"`
	Embedded struct {
		Subscriptions []subscriptionResource `json:"fx:subscriptions"`
	} `json:"_embedded"`
}

type customerResource struct {
	ID    json.Number `json:"id"`
	Links Links       `json:"_links"`
}

type customerListResource struct {
	TotalItems int `json:"total_items"`
	Embedded   struct {
		Customers []customerResource `json:"fx:customers"`
	} `json:"_embedded"`
}

// RemoteCart is a provider-side cart created for one checkout attempt. Its id
// doubles as the transaction id correlated with the local order.
type RemoteCart struct {
	TransactionID string
	ItemsURL      string
	SessionURL    string
}

// CartItem is one line item posted to a remote cart.
type CartItem struct {
	Name                  string  `json:"name"`
	Price                 float64 `json:"price"`
	URL                   string  `json:"url,omitempty"`
	SubscriptionFrequency string  `json:"subscription_frequency,omitempty"`
	SubscriptionStartDate string  `json:"subscription_start_date,omitempty"`
}

// CustomerAddress carries a default billing or shipping address in the
// provider's field vocabulary.
type CustomerAddress struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Company    string `json:"company,omitempty"`
	Address1   string `json:"address1"`
	Address2   string `json:"address2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// CustomerInput describes a local customer to mirror onto the provider.
// LocalID is the zero UUID for guest shoppers.
type CustomerInput struct {
	LocalID   string
	Email     string
	FirstName string
	LastName  string
}
