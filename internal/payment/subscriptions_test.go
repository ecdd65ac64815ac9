package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/payment"
)

func seedSubscription(t *testing.T, orders *stubOrders, remoteID, parentTxn string) order.Subscription {
	t.Helper()
	parent, err := orders.CreateOrder(context.Background(), order.Order{
		Status:            order.StatusCompleted,
		FoxyTransactionID: parentTxn,
	})
	require.NoError(t, err)
	sub := order.Subscription{
		ID:                 uuid.New(),
		ParentOrderID:      parent.ID,
		Email:              "jo@example.com",
		TotalCents:         999,
		Status:             "active",
		FoxySubscriptionID: remoteID,
	}
	orders.putSub(sub)
	return sub
}

func TestResolveRemoteIDUsesCache(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	subs := &payment.Subscriptions{Provider: provider, Orders: orders, Log: zerolog.Nop()}
	sub := seedSubscription(t, orders, "808", "981")

	id, err := subs.ResolveRemoteID(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, "808", id)
	require.Zero(t, provider.callCount())
}

func TestResolveRemoteIDFallsBackThroughParentOrder(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{remoteSubID: "808"}
	subs := &payment.Subscriptions{Provider: provider, Orders: orders, Log: zerolog.Nop()}
	sub := seedSubscription(t, orders, "", "981")

	id, err := subs.ResolveRemoteID(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, "808", id)

	// Cached on both the subscription and the parent order.
	cached, err := orders.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, "808", cached.FoxySubscriptionID)
	parent, err := orders.GetOrder(context.Background(), sub.ParentOrderID)
	require.NoError(t, err)
	require.Equal(t, "808", parent.FoxySubscriptionID)
}

func TestResolveRemoteIDNotFoundWithoutTransaction(t *testing.T) {
	orders := newStubOrders()
	subs := &payment.Subscriptions{Provider: &stubProvider{}, Orders: orders, Log: zerolog.Nop()}
	sub := seedSubscription(t, orders, "", "")

	_, err := subs.ResolveRemoteID(context.Background(), sub)
	require.Error(t, err)
}

func TestRenewChargesPastDue(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	subs := &payment.Subscriptions{Provider: provider, Orders: orders, Log: zerolog.Nop()}
	sub := seedSubscription(t, orders, "808", "981")
	renewal, err := orders.CreateRenewalOrder(context.Background(), sub)
	require.NoError(t, err)

	require.NoError(t, subs.Renew(context.Background(), renewal, sub))
	require.Equal(t, order.StatusAwaitingPayment, orders.status(renewal.ID))
}

func TestRenewFailureMarksOrderFailed(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{chargeErr: errors.New("card declined")}
	subs := &payment.Subscriptions{Provider: provider, Orders: orders, Log: zerolog.Nop()}
	sub := seedSubscription(t, orders, "808", "981")
	renewal, err := orders.CreateRenewalOrder(context.Background(), sub)
	require.NoError(t, err)

	err = subs.Renew(context.Background(), renewal, sub)
	require.ErrorContains(t, err, "card declined")
	require.Equal(t, order.StatusFailed, orders.status(renewal.ID))
}

func TestCancelDeactivatesRemote(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{remoteSubID: "808"}
	subs := &payment.Subscriptions{Provider: provider, Orders: orders, Log: zerolog.Nop()}
	// Not cached locally: cancellation resolves through the parent order.
	sub := seedSubscription(t, orders, "", "981")

	subs.Cancel(context.Background(), sub)
	require.Equal(t, []string{"808"}, provider.deactivated)
}

func TestCancelWithoutRemoteSubscriptionIsQuiet(t *testing.T) {
	orders := newStubOrders()
	provider := &stubProvider{}
	subs := &payment.Subscriptions{Provider: provider, Orders: orders, Log: zerolog.Nop()}
	sub := seedSubscription(t, orders, "", "")

	subs.Cancel(context.Background(), sub)
	require.Empty(t, provider.deactivated)
}

func TestWatcherVoidsAndRefunds(t *testing.T) {
	provider := &stubProvider{}
	notices := &stubNotices{}
	w := &payment.Watcher{Provider: provider, Notices: notices, Log: zerolog.Nop()}
	o := order.Order{ID: uuid.New(), FoxyTransactionID: "981"}

	require.NoError(t, w.OrderStatusChanged(context.Background(), o, order.StatusCompleted, order.StatusVoided))
	require.NoError(t, w.OrderStatusChanged(context.Background(), o, order.StatusCompleted, order.StatusRefunded))
	require.Equal(t, []string{"981:fx:void", "981:fx:refund"}, provider.transitions)

	// Non-reversal edges do nothing.
	require.NoError(t, w.OrderStatusChanged(context.Background(), o, order.StatusProcessing, order.StatusCompleted))
	require.Len(t, provider.transitions, 2)
}

func TestWatcherMissingTransactionRaisesNotice(t *testing.T) {
	provider := &stubProvider{}
	notices := &stubNotices{}
	w := &payment.Watcher{Provider: provider, Notices: notices, Log: zerolog.Nop()}
	o := order.Order{ID: uuid.New()}

	require.NoError(t, w.OrderStatusChanged(context.Background(), o, order.StatusCompleted, order.StatusRefunded))
	require.Empty(t, provider.transitions)
	require.Equal(t, []string{"reversal_without_transaction"}, notices.codes)
}
