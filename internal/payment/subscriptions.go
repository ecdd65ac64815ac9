package payment

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/obs"
	"github.com/noah-isme/foxy-bridge/internal/order"
)

// SubscriptionProvider is the slice of the provider client the subscription
// flows need.
type SubscriptionProvider interface {
	SubscriptionFromTransaction(ctx context.Context, transactionID string) (string, error)
	ChargePastDue(ctx context.Context, subscriptionID string, amount float64) error
	DeactivateSubscription(ctx context.Context, subscriptionID string) error
}

// Subscriptions drives renewal charges and cancellations against the
// provider.
type Subscriptions struct {
	Provider SubscriptionProvider
	Orders   OrderStore
	Log      zerolog.Logger
}

// ResolveRemoteID finds the provider subscription id for a local
// subscription. The id is cached on the subscription; when absent it is
// resolved through the parent order's transaction and cached on both the
// subscription and the parent order. An unresolvable id is a NotFoundError,
// which callers treat as "nothing to do" rather than a hard failure.
func (s *Subscriptions) ResolveRemoteID(ctx context.Context, sub order.Subscription) (string, error) {
	if sub.FoxySubscriptionID != "" {
		return sub.FoxySubscriptionID, nil
	}
	parent, err := s.Orders.GetOrder(ctx, sub.ParentOrderID)
	if err != nil {
		return "", fmt.Errorf("load parent order: %w", err)
	}
	if parent.FoxyTransactionID == "" {
		return "", &foxy.NotFoundError{Resource: "transaction for subscription " + sub.ID.String()}
	}
	remoteID, err := s.Provider.SubscriptionFromTransaction(ctx, parent.FoxyTransactionID)
	if err != nil {
		return "", err
	}
	if err := s.Orders.SetSubscriptionRemoteID(ctx, sub.ID, remoteID); err != nil {
		s.Log.Warn().Err(err).Str("subscription_id", sub.ID.String()).Msg("cache remote subscription id failed")
	}
	if err := s.Orders.SetSubscriptionRef(ctx, parent.ID, remoteID); err != nil {
		s.Log.Warn().Err(err).Str("order_id", parent.ID.String()).Msg("cache subscription ref failed")
	}
	return remoteID, nil
}

// Renew charges the subscription's past-due amount against the provider for
// one renewal order. Any failure marks the renewal order failed and is
// returned so the scheduler records the attempt.
func (s *Subscriptions) Renew(ctx context.Context, renewal order.Order, sub order.Subscription) error {
	remoteID, err := s.ResolveRemoteID(ctx, sub)
	if err != nil {
		return s.failRenewal(ctx, renewal, err)
	}
	// A renewal order created before the remote id was first resolved lacks
	// the subscription ref the settlement webhook resolves it by.
	if renewal.FoxySubscriptionID == "" {
		if err := s.Orders.SetSubscriptionRef(ctx, renewal.ID, remoteID); err != nil {
			s.Log.Warn().Err(err).Str("order_id", renewal.ID.String()).Msg("stamp renewal subscription ref failed")
		}
	}
	if err := s.Provider.ChargePastDue(ctx, remoteID, centsToPrice(renewal.TotalCents)); err != nil {
		return s.failRenewal(ctx, renewal, err)
	}
	if obs.SubscriptionRenewalTotal != nil {
		obs.SubscriptionRenewalTotal.WithLabelValues("charged").Inc()
	}
	return nil
}

func (s *Subscriptions) failRenewal(ctx context.Context, renewal order.Order, cause error) error {
	if err := s.Orders.UpdateStatus(ctx, renewal.ID, order.StatusFailed); err != nil {
		s.Log.Error().Err(err).Str("order_id", renewal.ID.String()).Msg("mark renewal order failed errored")
	}
	if obs.SubscriptionRenewalTotal != nil {
		obs.SubscriptionRenewalTotal.WithLabelValues("failed").Inc()
	}
	return cause
}

// Cancel turns off auto-billing for a subscription on the provider side.
// Provider errors are logged, never raised; the local cancellation stands
// either way.
func (s *Subscriptions) Cancel(ctx context.Context, sub order.Subscription) {
	remoteID, err := s.ResolveRemoteID(ctx, sub)
	if err != nil {
		if foxy.IsNotFound(err) {
			s.Log.Info().Str("subscription_id", sub.ID.String()).Msg("no remote subscription to deactivate")
			return
		}
		s.Log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("resolve remote subscription failed")
		return
	}
	if err := s.Provider.DeactivateSubscription(ctx, remoteID); err != nil {
		s.Log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("deactivate remote subscription failed")
	}
}
