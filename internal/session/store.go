// Package session persists short-lived payment sessions in Redis. A session
// ties one checkout attempt to the order it pays for, and is consumed exactly
// once when the shopper returns from the hosted checkout.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned when a session id is unknown or already consumed.
var ErrNotFound = errors.New("session: not found")

// Record is the state saved for one checkout attempt.
type Record struct {
	TransactionID       string `json:"transaction_id"`
	PaymentLink         string `json:"payment_link"`
	CustomerID          string `json:"customer_id,omitempty"`
	OrderID             string `json:"order_id"`
	Attempt             int    `json:"attempt"`
	ChangePaymentMethod bool   `json:"change_payment_method,omitempty"`
	SubscriptionID      string `json:"subscription_id,omitempty"`
}

// Store reads and writes payment sessions keyed by the shopper session id.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func key(sessionID string) string {
	return "payment:session:" + sessionID
}

// Put saves the record for a shopper session, replacing any previous attempt.
// Last write wins: only the newest checkout attempt can be redeemed.
func (s *Store) Put(ctx context.Context, sessionID string, rec Record) error {
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.R.Set(ctx, key(sessionID), encoded, s.TTL).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

// Peek returns the record without consuming it.
func (s *Store) Peek(ctx context.Context, sessionID string) (Record, error) {
	raw, err := s.R.Get(ctx, key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("load session: %w", err)
	}
	return decode(raw)
}

// Consume atomically reads and deletes the record. A second call for the same
// shopper session returns ErrNotFound.
func (s *Store) Consume(ctx context.Context, sessionID string) (Record, error) {
	raw, err := s.R.GetDel(ctx, key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("consume session: %w", err)
	}
	return decode(raw)
}

func decode(raw []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("decode session: %w", err)
	}
	return rec, nil
}
