package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/cart"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/obs"
	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/session"
)

// The provider quotes prices in currency units; local amounts are cents.
func centsToPrice(cents int64) float64 {
	return float64(cents) / 100
}

// subscriptionFrequencySentinel tells the provider the placeholder item is
// billed on the subscription's own schedule, not on this item's frequency.
const subscriptionFrequencySentinel = "10y"

// defaultLinkTTL is how long a signed checkout link stays valid when the
// service is not configured with its own TTL.
const defaultLinkTTL = 600 * time.Second

// Provider is the slice of the provider client the session manager needs.
type Provider interface {
	CreateCart(ctx context.Context) (foxy.RemoteCart, error)
	AddCartItem(ctx context.Context, remote foxy.RemoteCart, item foxy.CartItem) error
	CreateCheckoutSession(ctx context.Context, remote foxy.RemoteCart) (string, error)
	FindOrCreateCustomer(ctx context.Context, in foxy.CustomerInput) (string, error)
	LinkSecret(ctx context.Context) (string, error)
}

// OrderStore is the slice of the order store the payment flows need.
type OrderStore interface {
	CreateOrder(ctx context.Context, o order.Order) (order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	FindByTransactionID(ctx context.Context, transactionID string) (order.Order, bool, error)
	FindBySubscriptionID(ctx context.Context, foxySubscriptionID string) (order.Order, bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status) error
	SetTransactionID(ctx context.Context, id uuid.UUID, transactionID string) error
	SetSubscriptionRef(ctx context.Context, id uuid.UUID, foxySubscriptionID string) error
	GetSubscription(ctx context.Context, id uuid.UUID) (order.Subscription, error)
	SetSubscriptionRemoteID(ctx context.Context, id uuid.UUID, foxySubscriptionID string) error
	UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status string) error
	CreateRenewalOrder(ctx context.Context, sub order.Subscription) (order.Order, error)
}

// SessionStore is the slice of the session store the payment flows need.
type SessionStore interface {
	Put(ctx context.Context, sessionID string, rec session.Record) error
	Peek(ctx context.Context, sessionID string) (session.Record, error)
	Consume(ctx context.Context, sessionID string) (session.Record, error)
}

// LinkTarget names what a payment link pays for: a fresh order, or an
// existing subscription whose payment method is being changed.
type LinkTarget struct {
	OrderID             uuid.UUID
	SubscriptionID      uuid.UUID
	PaymentMethodChange bool
}

// Service builds signed hosted-checkout links and records the payment
// session that ties the provider transaction back to the local order.
type Service struct {
	Provider Provider
	Orders   OrderStore
	Carts    *cart.Store
	Sessions SessionStore
	LinkTTL  time.Duration
	Now      func() time.Time
	Log      zerolog.Logger
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) linkTTL() time.Duration {
	if s.LinkTTL > 0 {
		return s.LinkTTL
	}
	return defaultLinkTTL
}

// CreatePaymentLink builds the signed checkout URL for the target. Order
// checkouts require a non-empty local cart, checked before any provider
// call. Remote failures propagate so callers can keep the order in
// awaiting-payment and show a generic failure.
func (s *Service) CreatePaymentLink(ctx context.Context, sessionID string, target LinkTarget) (string, error) {
	if target.PaymentMethodChange {
		return s.methodChangeLink(ctx, sessionID, target.SubscriptionID)
	}
	return s.orderLink(ctx, sessionID, target.OrderID)
}

func (s *Service) orderLink(ctx context.Context, sessionID string, orderID uuid.UUID) (string, error) {
	o, err := s.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	c, err := s.Carts.Get(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if len(c.Items) == 0 {
		return "", foxy.ErrCartEmpty
	}
	if o.Status != order.StatusAwaitingPayment {
		if err := s.Orders.UpdateStatus(ctx, o.ID, order.StatusAwaitingPayment); err != nil {
			return "", err
		}
	}

	item := foxy.CartItem{
		Name:  "Order " + shortID(o.ID),
		Price: centsToPrice(o.TotalCents),
	}
	if o.SubscriptionID != uuid.Nil {
		item.SubscriptionFrequency = subscriptionFrequencySentinel
	}
	link, rec, err := s.buildLink(ctx, item, foxy.CustomerInput{
		LocalID:   localID(o.CustomerID),
		Email:     o.Email,
		FirstName: o.FirstName,
		LastName:  o.LastName,
	})
	if err != nil {
		observeLink("order", false)
		return "", err
	}
	if err := s.Orders.SetTransactionID(ctx, o.ID, rec.TransactionID); err != nil {
		return "", err
	}
	rec.OrderID = o.ID.String()
	if err := s.Sessions.Put(ctx, sessionID, rec); err != nil {
		return "", err
	}
	observeLink("order", true)
	return link, nil
}

func (s *Service) methodChangeLink(ctx context.Context, sessionID string, subscriptionID uuid.UUID) (string, error) {
	sub, err := s.Orders.GetSubscription(ctx, subscriptionID)
	if err != nil {
		return "", err
	}
	item := foxy.CartItem{
		Name:                  "Subscription " + shortID(sub.ID),
		Price:                 centsToPrice(sub.TotalCents),
		SubscriptionFrequency: subscriptionFrequencySentinel,
	}
	if !sub.NextPaymentAt.IsZero() {
		item.SubscriptionStartDate = sub.NextPaymentAt.Format("2006-01-02")
	}
	link, rec, err := s.buildLink(ctx, item, foxy.CustomerInput{
		LocalID:   localID(sub.CustomerID),
		Email:     sub.Email,
		FirstName: sub.FirstName,
		LastName:  sub.LastName,
	})
	if err != nil {
		observeLink("method_change", false)
		return "", err
	}
	// The new transaction replaces the parent order's cached id so the
	// webhook can still resolve this subscription.
	if err := s.Orders.SetTransactionID(ctx, sub.ParentOrderID, rec.TransactionID); err != nil {
		return "", err
	}
	rec.OrderID = sub.ParentOrderID.String()
	rec.ChangePaymentMethod = true
	rec.SubscriptionID = sub.ID.String()
	if err := s.Sessions.Put(ctx, sessionID, rec); err != nil {
		return "", err
	}
	observeLink("method_change", true)
	return link, nil
}

// buildLink runs the provider-side steps shared by both flows: remote cart,
// line item, checkout session, customer resolution, link signing.
func (s *Service) buildLink(ctx context.Context, item foxy.CartItem, customer foxy.CustomerInput) (string, session.Record, error) {
	remote, err := s.Provider.CreateCart(ctx)
	if err != nil {
		return "", session.Record{}, err
	}
	if err := s.Provider.AddCartItem(ctx, remote, item); err != nil {
		return "", session.Record{}, err
	}
	link, err := s.Provider.CreateCheckoutSession(ctx, remote)
	if err != nil {
		return "", session.Record{}, err
	}
	remoteCustomerID, err := s.Provider.FindOrCreateCustomer(ctx, customer)
	if err != nil {
		return "", session.Record{}, err
	}
	secret, err := s.Provider.LinkSecret(ctx)
	if err != nil {
		return "", session.Record{}, err
	}

	ts := s.now().Add(s.linkTTL()).Unix()
	token := foxy.SignSSO(remoteCustomerID, ts, secret)
	signed := fmt.Sprintf("%s&fc_auth_token=%s&fc_customer_id=%s&timestamp=%d",
		link, token, remoteCustomerID, ts)

	rec := session.Record{
		TransactionID: remote.TransactionID,
		PaymentLink:   signed,
		CustomerID:    remoteCustomerID,
		Attempt:       1,
	}
	return signed, rec, nil
}

func observeLink(flow string, ok bool) {
	if obs.PaymentLinkTotal == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	obs.PaymentLinkTotal.WithLabelValues(flow, result).Inc()
}

func shortID(id uuid.UUID) string {
	return id.String()[:8]
}

func localID(id uuid.UUID) string {
	if id == uuid.Nil {
		return ""
	}
	return id.String()
}
