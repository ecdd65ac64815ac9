package payment

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/order"
)

// Transitioner requests a void or refund action on a provider transaction.
type Transitioner interface {
	TransitionTransaction(ctx context.Context, transactionID, action string) error
}

// Watcher mirrors manual local order status changes back to the provider.
// Only the completed -> {cancelled,refunded,voided} edges have a provider
// side effect; everything else is local bookkeeping.
type Watcher struct {
	Provider Transitioner
	Notices  foxy.AdminNotifier
	Log      zerolog.Logger
}

var reversalStatuses = map[order.Status]bool{
	order.StatusCancelled: true,
	order.StatusRefunded:  true,
	order.StatusVoided:    true,
}

// OrderStatusChanged implements order.StatusWatcher.
func (w *Watcher) OrderStatusChanged(ctx context.Context, o order.Order, from, to order.Status) error {
	if from != order.StatusCompleted || !reversalStatuses[to] {
		return nil
	}
	if o.FoxyTransactionID == "" {
		msg := "order " + o.ID.String() + " moved to " + string(to) + " but has no provider transaction to reverse"
		if w.Notices != nil {
			if err := w.Notices.Notice(ctx, "reversal_without_transaction", msg); err != nil {
				w.Log.Warn().Err(err).Msg("record admin notice failed")
			}
		}
		w.Log.Warn().Str("order_id", o.ID.String()).Msg("reversal requested without transaction id")
		return nil
	}
	action := foxy.ActionRefund
	if to == order.StatusVoided {
		action = foxy.ActionVoid
	}
	return w.Provider.TransitionTransaction(ctx, o.FoxyTransactionID, action)
}
