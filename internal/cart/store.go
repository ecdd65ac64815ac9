// Package cart keeps the local shopping cart in Redis, keyed by the shopper
// session cookie. The cart only exists locally until checkout, when its items
// are replayed onto a provider-side cart.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound indicates the shopper has no cart yet.
var ErrNotFound = errors.New("cart not found")

// Item is a single cart line.
type Item struct {
	Name       string `json:"name" validate:"required"`
	PriceCents int64  `json:"priceCents" validate:"gte=0"`
	Qty        int    `json:"qty" validate:"gte=1"`
	URL        string `json:"url,omitempty" validate:"omitempty,url"`
}

// Cart is the full cart for one shopper session.
type Cart struct {
	Items []Item `json:"items"`
}

// TotalCents sums all lines.
func (c Cart) TotalCents() int64 {
	var total int64
	for _, it := range c.Items {
		total += it.PriceCents * int64(it.Qty)
	}
	return total
}

// Store persists carts in Redis with a sliding TTL.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func key(sessionID string) string {
	return "cart:" + sessionID
}

// Get loads the cart for a shopper session. A missing cart is an empty cart.
func (s *Store) Get(ctx context.Context, sessionID string) (Cart, error) {
	raw, err := s.R.Get(ctx, key(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Cart{}, nil
		}
		return Cart{}, fmt.Errorf("load cart: %w", err)
	}
	var c Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return Cart{}, fmt.Errorf("decode cart: %w", err)
	}
	return c, nil
}

// AddItem appends one line and resets the cart TTL.
func (s *Store) AddItem(ctx context.Context, sessionID string, item Item) (Cart, error) {
	c, err := s.Get(ctx, sessionID)
	if err != nil {
		return Cart{}, err
	}
	c.Items = append(c.Items, item)
	if err := s.save(ctx, sessionID, c); err != nil {
		return Cart{}, err
	}
	return c, nil
}

// Clear removes the cart, typically after a completed checkout.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	if err := s.R.Del(ctx, key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (s *Store) save(ctx context.Context, sessionID string, c Cart) error {
	encoded, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := s.R.Set(ctx, key(sessionID), encoded, s.TTL).Err(); err != nil {
		return fmt.Errorf("store cart: %w", err)
	}
	return nil
}
