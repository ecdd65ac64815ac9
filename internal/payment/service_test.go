package payment_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/foxy-bridge/internal/cart"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/payment"
)

var fixedNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, orders *stubOrders, provider *stubProvider) (*payment.Service, *cart.Store, payment.SessionStore) {
	carts := newCartStore(t)
	sessions := newSessionStore(t)
	svc := &payment.Service{
		Provider: provider,
		Orders:   orders,
		Carts:    carts,
		Sessions: sessions,
		Now:      func() time.Time { return fixedNow },
		Log:      zerolog.Nop(),
	}
	return svc, carts, sessions
}

func TestCreatePaymentLinkEmptyCart(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	svc, _, _ := newService(t, orders, provider)

	o, err := orders.CreateOrder(context.Background(), order.Order{Email: "jo@example.com"})
	require.NoError(t, err)

	_, err = svc.CreatePaymentLink(context.Background(), "shopper-a", payment.LinkTarget{OrderID: o.ID})
	require.ErrorIs(t, err, foxy.ErrCartEmpty)
	require.Zero(t, provider.callCount())
	require.Equal(t, order.StatusAwaitingPayment, orders.status(o.ID))
}

func TestCreatePaymentLinkForOrder(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	svc, carts, sessions := newService(t, orders, provider)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "shopper-a", cart.Item{Name: "Mug", PriceCents: 1250, Qty: 2})
	require.NoError(t, err)
	o, err := orders.CreateOrder(ctx, order.Order{Email: "jo@example.com", TotalCents: 2500})
	require.NoError(t, err)

	link, err := svc.CreatePaymentLink(ctx, "shopper-a", payment.LinkTarget{OrderID: o.ID})
	require.NoError(t, err)

	ts := fixedNow.Add(600 * time.Second).Unix()
	token := foxy.SignSSO("314", ts, "hook-key")
	require.Equal(t, fmt.Sprintf(
		"https://acme.foxycart.com/checkout?session=sess-1&fc_auth_token=%s&fc_customer_id=314&timestamp=%d",
		token, ts), link)

	// Order remembers the remote transaction.
	stored, err := orders.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, "981237", stored.FoxyTransactionID)

	// Session record ties the attempt to the shopper.
	rec, err := sessions.Peek(ctx, "shopper-a")
	require.NoError(t, err)
	require.Equal(t, "981237", rec.TransactionID)
	require.Equal(t, o.ID.String(), rec.OrderID)
	require.Equal(t, "314", rec.CustomerID)
	require.Equal(t, 1, rec.Attempt)
	require.Equal(t, link, rec.PaymentLink)
	require.False(t, rec.ChangePaymentMethod)

	// One aggregate line item at the order total.
	require.Len(t, provider.cartItems, 1)
	require.InDelta(t, 25.0, provider.cartItems[0].Price, 0.001)
	require.Empty(t, provider.cartItems[0].SubscriptionFrequency)
}

func TestCreatePaymentLinkConfiguredTTL(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	svc, carts, _ := newService(t, orders, provider)
	svc.LinkTTL = 120 * time.Second
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "shopper-a", cart.Item{Name: "Mug", PriceCents: 1250, Qty: 1})
	require.NoError(t, err)
	o, err := orders.CreateOrder(ctx, order.Order{Email: "jo@example.com", TotalCents: 1250})
	require.NoError(t, err)

	link, err := svc.CreatePaymentLink(ctx, "shopper-a", payment.LinkTarget{OrderID: o.ID})
	require.NoError(t, err)
	require.Contains(t, link, fmt.Sprintf("timestamp=%d", fixedNow.Add(120*time.Second).Unix()))
}

func TestCreatePaymentLinkMethodChange(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	svc, _, sessions := newService(t, orders, provider)
	ctx := context.Background()

	parent, err := orders.CreateOrder(ctx, order.Order{Email: "jo@example.com", Status: order.StatusCompleted})
	require.NoError(t, err)
	sub := order.Subscription{
		ID:            uuid.New(),
		ParentOrderID: parent.ID,
		Email:         "jo@example.com",
		TotalCents:    999,
		NextPaymentAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}
	orders.putSub(sub)

	link, err := svc.CreatePaymentLink(ctx, "shopper-a", payment.LinkTarget{
		SubscriptionID:      sub.ID,
		PaymentMethodChange: true,
	})
	require.NoError(t, err)
	require.Contains(t, link, "fc_auth_token=")

	// The placeholder item never drives billing itself.
	require.Len(t, provider.cartItems, 1)
	require.Equal(t, "10y", provider.cartItems[0].SubscriptionFrequency)
	require.Equal(t, "2024-06-01", provider.cartItems[0].SubscriptionStartDate)

	// The new transaction replaces the parent order's cached id.
	stored, err := orders.GetOrder(ctx, parent.ID)
	require.NoError(t, err)
	require.Equal(t, "981237", stored.FoxyTransactionID)

	rec, err := sessions.Peek(ctx, "shopper-a")
	require.NoError(t, err)
	require.True(t, rec.ChangePaymentMethod)
	require.Equal(t, sub.ID.String(), rec.SubscriptionID)
}

func TestCreatePaymentLinkOverwritesPriorAttempt(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	svc, carts, sessions := newService(t, orders, provider)
	ctx := context.Background()

	_, err := carts.AddItem(ctx, "shopper-a", cart.Item{Name: "Mug", PriceCents: 100, Qty: 1})
	require.NoError(t, err)
	o, err := orders.CreateOrder(ctx, order.Order{Email: "jo@example.com", TotalCents: 100})
	require.NoError(t, err)

	first, err := svc.CreatePaymentLink(ctx, "shopper-a", payment.LinkTarget{OrderID: o.ID})
	require.NoError(t, err)
	second, err := svc.CreatePaymentLink(ctx, "shopper-a", payment.LinkTarget{OrderID: o.ID})
	require.NoError(t, err)
	require.Equal(t, first, second)

	rec, err := sessions.Peek(ctx, "shopper-a")
	require.NoError(t, err)
	require.Equal(t, second, rec.PaymentLink)
	require.Equal(t, 1, rec.Attempt)
}
