// Package tasks holds the asynq task types and handlers for background
// subscription renewal.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/lock"
	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/payment"
)

const (
	// TypeRenewalScan sweeps for subscriptions due for renewal.
	TypeRenewalScan = "foxy:subscription:scan"
	// TypeRenew charges one subscription renewal.
	TypeRenew = "foxy:subscription:renew"
)

// RenewPayload identifies one renewal attempt.
type RenewPayload struct {
	SubscriptionID string `json:"subscription_id"`
	OrderID        string `json:"order_id"`
}

// NewRenewTask builds the asynq task for one renewal charge.
func NewRenewTask(subscriptionID, orderID uuid.UUID) (*asynq.Task, error) {
	payload, err := json.Marshal(RenewPayload{
		SubscriptionID: subscriptionID.String(),
		OrderID:        orderID.String(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRenew, payload, asynq.MaxRetry(3)), nil
}

// NewRenewalScanTask builds the periodic sweep task.
func NewRenewalScanTask() *asynq.Task {
	return asynq.NewTask(TypeRenewalScan, nil)
}

// RenewalStore is the slice of the order store the worker needs.
type RenewalStore interface {
	ListRenewalsDue(ctx context.Context, now time.Time, limit int) ([]order.Subscription, error)
	CreateRenewalOrder(ctx context.Context, sub order.Subscription) (order.Order, error)
	GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (order.Subscription, error)
	SetNextPaymentAt(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RenewalWorker handles the renewal task family. The scan handler fans out
// one renew task per due subscription; each renew task drives a single
// past-due charge and returns its error so asynq records and retries the
// attempt.
type RenewalWorker struct {
	Store     RenewalStore
	Subs      *payment.Subscriptions
	Queue     Enqueuer
	Lock      *lock.Locker
	BatchSize int
	Period    time.Duration
	Now       func() time.Time
	Log       zerolog.Logger
}

func (w *RenewalWorker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

func (w *RenewalWorker) batchSize() int {
	if w.BatchSize > 0 {
		return w.BatchSize
	}
	return 50
}

// period is the billing interval used to advance next_payment_at once a
// renewal order exists for the current cycle.
func (w *RenewalWorker) period() time.Duration {
	if w.Period > 0 {
		return w.Period
	}
	return 30 * 24 * time.Hour
}

// HandleScan processes one TypeRenewalScan task. With a Locker configured
// only one worker replica sweeps per tick; the others skip silently.
func (w *RenewalWorker) HandleScan(ctx context.Context, task *asynq.Task) error {
	if w.Lock == nil {
		return w.scan(ctx)
	}
	err := w.Lock.TryWithLock(ctx, "foxy:renewal:scan", 5*time.Minute, w.scan)
	if errors.Is(err, lock.ErrNotAcquired) {
		w.Log.Debug().Msg("renewal scan held elsewhere")
		return nil
	}
	return err
}

func (w *RenewalWorker) scan(ctx context.Context) error {
	due, err := w.Store.ListRenewalsDue(ctx, w.now(), w.batchSize())
	if err != nil {
		return fmt.Errorf("list renewals due: %w", err)
	}
	for _, sub := range due {
		renewal, err := w.Store.CreateRenewalOrder(ctx, sub)
		if err != nil {
			w.Log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("create renewal order failed")
			continue
		}
		// Advance the schedule now so the next sweep does not double-charge
		// while this renewal is still in flight.
		if err := w.Store.SetNextPaymentAt(ctx, sub.ID, sub.NextPaymentAt.Add(w.period())); err != nil {
			w.Log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("advance next payment failed")
		}
		renewTask, err := NewRenewTask(sub.ID, renewal.ID)
		if err != nil {
			w.Log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("build renew task failed")
			continue
		}
		if _, err := w.Queue.EnqueueContext(ctx, renewTask); err != nil {
			w.Log.Error().Err(err).Str("subscription_id", sub.ID.String()).Msg("enqueue renew task failed")
		}
	}
	w.Log.Info().Int("due", len(due)).Msg("renewal scan complete")
	return nil
}

// HandleRenew processes one TypeRenew task.
func (w *RenewalWorker) HandleRenew(ctx context.Context, task *asynq.Task) error {
	var payload RenewPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("decode renew payload: %w", err)
	}
	subID, err := uuid.Parse(payload.SubscriptionID)
	if err != nil {
		return fmt.Errorf("parse subscription id: %w", err)
	}
	orderID, err := uuid.Parse(payload.OrderID)
	if err != nil {
		return fmt.Errorf("parse order id: %w", err)
	}

	sub, err := w.Store.GetSubscription(ctx, subID)
	if err != nil {
		return fmt.Errorf("load subscription: %w", err)
	}
	renewal, err := w.Store.GetOrder(ctx, orderID)
	if err != nil {
		return fmt.Errorf("load renewal order: %w", err)
	}
	return w.Subs.Renew(ctx, renewal, sub)
}

// Register wires the renewal handlers onto an asynq mux.
func (w *RenewalWorker) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeRenewalScan, w.HandleScan)
	mux.HandleFunc(TypeRenew, w.HandleRenew)
}
