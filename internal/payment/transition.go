package payment

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/order"
)

// applyTransactionStatus maps a provider status onto the order and applies
// it. Unmapped statuses are logged and left alone; re-applying the current
// status is a no-op. Returns the status the order ended up in.
func applyTransactionStatus(ctx context.Context, orders OrderStore, log zerolog.Logger, o order.Order, remoteStatus string) (order.Status, error) {
	mapped, ok := MapTransactionStatus(remoteStatus)
	if !ok {
		log.Warn().
			Str("order_id", o.ID.String()).
			Str("remote_status", remoteStatus).
			Msg("unmapped transaction status, order left untouched")
		return o.Status, nil
	}
	if mapped == o.Status {
		return o.Status, nil
	}
	if err := orders.UpdateStatus(ctx, o.ID, mapped); err != nil {
		return o.Status, err
	}
	log.Info().
		Str("order_id", o.ID.String()).
		Str("from", string(o.Status)).
		Str("to", string(mapped)).
		Str("remote_status", remoteStatus).
		Msg("order status reconciled")
	return mapped, nil
}
