package payment_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/noah-isme/foxy-bridge/internal/cart"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/session"
)

// stubOrders is an in-memory OrderStore.
type stubOrders struct {
	mu     sync.Mutex
	orders map[uuid.UUID]order.Order
	seq    []uuid.UUID
	subs   map[uuid.UUID]order.Subscription
}

func newStubOrders() *stubOrders {
	return &stubOrders{
		orders: map[uuid.UUID]order.Order{},
		subs:   map[uuid.UUID]order.Subscription{},
	}
}

func (s *stubOrders) CreateOrder(ctx context.Context, o order.Order) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = order.StatusAwaitingPayment
	}
	s.orders[o.ID] = o
	s.seq = append(s.seq, o.ID)
	return o, nil
}

func (s *stubOrders) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, order.ErrNotFound
	}
	return o, nil
}

func (s *stubOrders) FindByTransactionID(ctx context.Context, transactionID string) (order.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.orders {
		if o.FoxyTransactionID == transactionID && transactionID != "" {
			return o, true, nil
		}
	}
	return order.Order{}, false, nil
}

// FindBySubscriptionID returns the most recently created match, like the
// real store.
func (s *stubOrders) FindBySubscriptionID(ctx context.Context, foxySubscriptionID string) (order.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if foxySubscriptionID == "" {
		return order.Order{}, false, nil
	}
	for i := len(s.seq) - 1; i >= 0; i-- {
		if o := s.orders[s.seq[i]]; o.FoxySubscriptionID == foxySubscriptionID {
			return o, true, nil
		}
	}
	return order.Order{}, false, nil
}

func (s *stubOrders) UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.Status = status
	s.orders[id] = o
	return nil
}

func (s *stubOrders) SetTransactionID(ctx context.Context, id uuid.UUID, transactionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	o.FoxyTransactionID = transactionID
	s.orders[id] = o
	return nil
}

func (s *stubOrders) SetSubscriptionRef(ctx context.Context, id uuid.UUID, foxySubscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return order.ErrNotFound
	}
	if o.FoxySubscriptionID == "" {
		o.FoxySubscriptionID = foxySubscriptionID
		s.orders[id] = o
	}
	return nil
}

func (s *stubOrders) GetSubscription(ctx context.Context, id uuid.UUID) (order.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return order.Subscription{}, order.ErrNotFound
	}
	return sub, nil
}

func (s *stubOrders) SetSubscriptionRemoteID(ctx context.Context, id uuid.UUID, foxySubscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return order.ErrNotFound
	}
	sub.FoxySubscriptionID = foxySubscriptionID
	s.subs[id] = sub
	return nil
}

func (s *stubOrders) UpdateSubscriptionStatus(ctx context.Context, id uuid.UUID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return order.ErrNotFound
	}
	sub.Status = status
	s.subs[id] = sub
	return nil
}

func (s *stubOrders) CreateRenewalOrder(ctx context.Context, sub order.Subscription) (order.Order, error) {
	return s.CreateOrder(ctx, order.Order{
		Email:              sub.Email,
		FirstName:          sub.FirstName,
		LastName:           sub.LastName,
		TotalCents:         sub.TotalCents,
		FoxySubscriptionID: sub.FoxySubscriptionID,
		CustomerID:         sub.CustomerID,
		SubscriptionID:     sub.ID,
	})
}

func (s *stubOrders) putOrder(o order.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		s.seq = append(s.seq, o.ID)
	}
	s.orders[o.ID] = o
}

func (s *stubOrders) putSub(sub order.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
}

func (s *stubOrders) status(id uuid.UUID) order.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id].Status
}

// stubProvider implements the provider-facing interfaces used by the
// payment flows and records every call.
type stubProvider struct {
	mu             sync.Mutex
	calls          []string
	cartItems      []foxy.CartItem
	status         string
	statusErr      error
	remoteSubID    string
	remoteSubErr   error
	chargeErr      error
	transitions    []string
	deactivated    []string
	linkSecretVal  string
	remoteCustomer string
}

func (p *stubProvider) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *stubProvider) CreateCart(ctx context.Context) (foxy.RemoteCart, error) {
	p.record("create_cart")
	return foxy.RemoteCart{TransactionID: "981237", ItemsURL: "items", SessionURL: "session"}, nil
}

func (p *stubProvider) AddCartItem(ctx context.Context, remote foxy.RemoteCart, item foxy.CartItem) error {
	p.record("add_item")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cartItems = append(p.cartItems, item)
	return nil
}

func (p *stubProvider) CreateCheckoutSession(ctx context.Context, remote foxy.RemoteCart) (string, error) {
	p.record("create_session")
	return "https://acme.foxycart.com/checkout?session=sess-1", nil
}

func (p *stubProvider) FindOrCreateCustomer(ctx context.Context, in foxy.CustomerInput) (string, error) {
	p.record("find_or_create_customer")
	if p.remoteCustomer == "" {
		return "314", nil
	}
	return p.remoteCustomer, nil
}

func (p *stubProvider) LinkSecret(ctx context.Context) (string, error) {
	p.record("link_secret")
	if p.linkSecretVal == "" {
		return "hook-key", nil
	}
	return p.linkSecretVal, nil
}

func (p *stubProvider) PaymentStatus(ctx context.Context, transactionID string) (string, error) {
	p.record("payment_status")
	if p.statusErr != nil {
		return "", p.statusErr
	}
	return p.status, nil
}

func (p *stubProvider) SubscriptionFromTransaction(ctx context.Context, transactionID string) (string, error) {
	p.record("subscription_from_transaction")
	if p.remoteSubErr != nil {
		return "", p.remoteSubErr
	}
	if p.remoteSubID == "" {
		return "", &foxy.NotFoundError{Resource: "subscription"}
	}
	return p.remoteSubID, nil
}

func (p *stubProvider) ChargePastDue(ctx context.Context, subscriptionID string, amount float64) error {
	p.record("charge_past_due")
	return p.chargeErr
}

func (p *stubProvider) TransitionTransaction(ctx context.Context, transactionID, action string) error {
	p.record("transition")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.transitions = append(p.transitions, transactionID+":"+action)
	return nil
}

func (p *stubProvider) DeactivateSubscription(ctx context.Context, subscriptionID string) error {
	p.record("deactivate")
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivated = append(p.deactivated, subscriptionID)
	return nil
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

// stubNotices records admin notices.
type stubNotices struct {
	mu    sync.Mutex
	codes []string
}

func (n *stubNotices) Notice(ctx context.Context, code, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.codes = append(n.codes, code)
	return nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newSessionStore(t *testing.T) *session.Store {
	return &session.Store{R: newRedis(t), TTL: time.Hour}
}

func newCartStore(t *testing.T) *cart.Store {
	return &cart.Store{R: newRedis(t), TTL: time.Hour}
}
