// Package order owns the local order and subscription records that mirror
// checkout activity on the hosted payment provider.
package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Status is the local lifecycle state of an order.
type Status string

const (
	StatusAwaitingPayment Status = "awaiting-payment"
	StatusProcessing      Status = "processing"
	StatusCompleted       Status = "completed"
	StatusFailed          Status = "failed"
	StatusRefunded        Status = "refunded"
	StatusCancelled       Status = "cancelled"
	StatusVoided          Status = "voided"
)

// ErrNotFound indicates the order or subscription does not exist.
var ErrNotFound = errors.New("order: not found")

// Order is one purchase, either a one-off checkout or a subscription charge.
type Order struct {
	ID                 uuid.UUID
	Status             Status
	Email              string
	FirstName          string
	LastName           string
	TotalCents         int64
	FoxyTransactionID  string
	FoxySubscriptionID string
	CustomerID         uuid.UUID
	SubscriptionID     uuid.UUID
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Subscription is a recurring purchase anchored to its first (parent) order.
type Subscription struct {
	ID                 uuid.UUID
	ParentOrderID      uuid.UUID
	CustomerID         uuid.UUID
	Email              string
	FirstName          string
	LastName           string
	TotalCents         int64
	NextPaymentAt      time.Time
	Status             string
	FoxySubscriptionID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Store reads and writes orders and subscriptions.
type Store struct {
	Pool *pgxpool.Pool
}

const orderColumns = `id, status, email, first_name, last_name, total_cents,
	coalesce(foxy_transaction_id, ''), coalesce(foxy_subscription_id, ''),
	customer_id, subscription_id, created_at, updated_at`

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	var id, customerID, subscriptionID pgtype.UUID
	err := row.Scan(&id, &o.Status, &o.Email, &o.FirstName, &o.LastName, &o.TotalCents,
		&o.FoxyTransactionID, &o.FoxySubscriptionID, &customerID, &subscriptionID,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	o.ID = fromPGUUID(id)
	o.CustomerID = fromPGUUID(customerID)
	o.SubscriptionID = fromPGUUID(subscriptionID)
	return o, nil
}

// CreateOrder inserts a new order in awaiting-payment state.
func (s *Store) CreateOrder(ctx context.Context, o Order) (Order, error) {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = StatusAwaitingPayment
	}
	row := s.Pool.QueryRow(ctx, `
		INSERT INTO orders (id, status, email, first_name, last_name, total_cents,
			foxy_subscription_id, customer_id, subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, nullif($7, ''), $8, $9)
		RETURNING `+orderColumns,
		toPGUUID(o.ID), o.Status, o.Email, o.FirstName, o.LastName, o.TotalCents,
		o.FoxySubscriptionID, toPGUUIDPtr(o.CustomerID), toPGUUIDPtr(o.SubscriptionID))
	return scanOrder(row)
}

// GetOrder loads an order by id.
func (s *Store) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, toPGUUID(id))
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, ErrNotFound
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

// FindByTransactionID resolves the order a provider transaction belongs to.
func (s *Store) FindByTransactionID(ctx context.Context, transactionID string) (Order, bool, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE foxy_transaction_id = $1`, transactionID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, false, nil
		}
		return Order{}, false, fmt.Errorf("find order by transaction: %w", err)
	}
	return o, true, nil
}

// FindBySubscriptionID resolves the most recent order carrying a provider
// subscription id, used when a webhook references a renewal charge the store
// has not seen as a transaction yet.
func (s *Store) FindBySubscriptionID(ctx context.Context, foxySubscriptionID string) (Order, bool, error) {
	row := s.Pool.QueryRow(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE foxy_subscription_id = $1
		ORDER BY created_at DESC LIMIT 1`, foxySubscriptionID)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, false, nil
		}
		return Order{}, false, fmt.Errorf("find order by subscription: %w", err)
	}
	return o, true, nil
}

// UpdateStatus moves an order to a new status. Setting the same status again
// is a no-op, so replayed webhooks stay harmless.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders SET status = $2, updated_at = now()
		WHERE id = $1`, toPGUUID(id), status)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetTransactionID records the provider transaction id for an order.
func (s *Store) SetTransactionID(ctx context.Context, id uuid.UUID, transactionID string) error {
	tag, err := s.Pool.Exec(ctx, `
		UPDATE orders SET foxy_transaction_id = $2, updated_at = now()
		WHERE id = $1`, toPGUUID(id), transactionID)
	if err != nil {
		return fmt.Errorf("set transaction id: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSubscriptionRef caches the provider subscription id on an order. The
// first value written wins; renewal orders referencing the same subscription
// keep their own copy.
func (s *Store) SetSubscriptionRef(ctx context.Context, id uuid.UUID, foxySubscriptionID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE orders SET foxy_subscription_id = $2, updated_at = now()
		WHERE id = $1 AND (foxy_subscription_id IS NULL OR foxy_subscription_id = '')`,
		toPGUUID(id), foxySubscriptionID)
	if err != nil {
		return fmt.Errorf("set subscription ref: %w", err)
	}
	return nil
}

// CreateSubscription records a new local subscription anchored to its parent
// order.
func (s *Store) CreateSubscription(ctx context.Context, sub Subscription) (Subscription, error) {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = "active"
	}
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO subscriptions (id, parent_order_id, customer_id, email, first_name, last_name,
			total_cents, next_payment_at, status, foxy_subscription_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, nullif($10, ''))`,
		toPGUUID(sub.ID), toPGUUID(sub.ParentOrderID), toPGUUIDPtr(sub.CustomerID),
		sub.Email, sub.FirstName, sub.LastName, sub.TotalCents, sub.NextPaymentAt,
		sub.Status, sub.FoxySubscriptionID)
	if err != nil {
		return Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	if _, err := s.Pool.Exec(ctx, `
		UPDATE orders SET subscription_id = $2, updated_at = now()
		WHERE id = $1`, toPGUUID(sub.ParentOrderID), toPGUUID(sub.ID)); err != nil {
		return Subscription{}, fmt.Errorf("link subscription to order: %w", err)
	}
	return s.GetSubscription(ctx, sub.ID)
}

const subscriptionColumns = `id, parent_order_id, customer_id, email, first_name, last_name,
	total_cents, next_payment_at, status, coalesce(foxy_subscription_id, ''), created_at, updated_at`

func scanSubscription(row pgx.Row) (Subscription, error) {
	var sub Subscription
	var id, parentID, customerID pgtype.UUID
	err := row.Scan(&id, &parentID, &customerID, &sub.Email, &sub.FirstName, &sub.LastName,
		&sub.TotalCents, &sub.NextPaymentAt, &sub.Status, &sub.FoxySubscriptionID,
		&sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		return Subscription{}, err
	}
	sub.ID = fromPGUUID(id)
	sub.ParentOrderID = fromPGUUID(parentID)
	sub.CustomerID = fromPGUUID(customerID)
	return sub, nil
}

// GetSubscription loads a subscription by id.
func (s *Store) GetSubscription(ctx context.Context, id uuid.UUID) (Subscription, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`, toPGUUID(id))
	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Subscription{}, ErrNotFound
		}
		return Subscription{}, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

// SetSubscriptionRemoteID caches the resolved provider subscription id.
func (s *Store) SetSubscriptionRemoteID(ctx context.Context, id uuid.UUID, foxySubscriptionID string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE subscriptions SET foxy_subscription_id = $2, updated_at = now()
		WHERE id = $1`, toPGUUID(id), foxySubscriptionID)
	if err != nil {
		return fmt.Errorf("set subscription remote id: %w", err)
	}
	return nil
}

// UpdateSubscriptionStatus changes a subscription's lifecycle state.
func (s *Store) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE subscriptions SET status = $2, updated_at = now()
		WHERE id = $1`, toPGUUID(id), status)
	if err != nil {
		return fmt.Errorf("update subscription status: %w", err)
	}
	return nil
}

// SetNextPaymentAt advances the renewal schedule.
func (s *Store) SetNextPaymentAt(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.Pool.Exec(ctx, `
		UPDATE subscriptions SET next_payment_at = $2, updated_at = now()
		WHERE id = $1`, toPGUUID(id), at)
	if err != nil {
		return fmt.Errorf("set next payment: %w", err)
	}
	return nil
}

// CreateRenewalOrder inserts a new awaiting-payment order for one renewal
// charge of the subscription, copying the subscriber identity.
func (s *Store) CreateRenewalOrder(ctx context.Context, sub Subscription) (Order, error) {
	return s.CreateOrder(ctx, Order{
		Status:             StatusAwaitingPayment,
		Email:              sub.Email,
		FirstName:          sub.FirstName,
		LastName:           sub.LastName,
		TotalCents:         sub.TotalCents,
		FoxySubscriptionID: sub.FoxySubscriptionID,
		CustomerID:         sub.CustomerID,
		SubscriptionID:     sub.ID,
	})
}

// ListRenewalsDue returns active subscriptions whose next payment date has
// passed, oldest first.
func (s *Store) ListRenewalsDue(ctx context.Context, now time.Time, limit int) ([]Subscription, error) {
	rows, err := s.Pool.Query(ctx, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status = 'active' AND next_payment_at <= $1
		ORDER BY next_payment_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list renewals due: %w", err)
	}
	defer rows.Close()
	var due []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		due = append(due, sub)
	}
	return due, rows.Err()
}

func toPGUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// toPGUUIDPtr maps the zero UUID to SQL NULL.
func toPGUUIDPtr(id uuid.UUID) pgtype.UUID {
	if id == uuid.Nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: id, Valid: true}
}

func fromPGUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return uuid.UUID(id.Bytes)
}
