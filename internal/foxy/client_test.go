package foxy_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/foxy-bridge/internal/foxy"
)

type fakeProvider struct {
	t *testing.T

	mu             sync.Mutex
	tokenRequests  int
	storePatches   []map[string]any
	customerPosts  int
	customerBody   map[string]any
	voidPosts      int
	refundPosts    int
	customerPatch  map[string]any
	addressPatches map[string]map[string]any
	customerDels   int
	itemPosts      []map[string]any
	searchHits     int
	ssoURL         string
	useSSO         bool
	voidLink       bool
	transactionTyp string
	embedSubs      bool

	srv *httptest.Server
}

func newFakeProvider(t *testing.T) *fakeProvider {
	f := &fakeProvider{t: t, transactionTyp: "transaction"}
	f.srv = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeProvider) url(path string) string { return f.srv.URL + path }

// locked runs fn under the provider mutex so tests can assert on recorded
// state without racing the handler goroutine.
func (f *fakeProvider) locked(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn()
}

func (f *fakeProvider) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.URL.Path != "/token" {
		auth := r.Header.Get("Authorization")
		if auth != "Bearer fresh-token" && auth != "Bearer seeded-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Header.Get("FOXY-API-VERSION") != "1" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
	}

	write := func(v any) {
		w.Header().Set("Content-Type", "application/hal+json")
		require.NoError(f.t, json.NewEncoder(w).Encode(v))
	}
	link := func(path string) map[string]any {
		return map[string]any{"href": f.url(path)}
	}

	switch {
	case r.URL.Path == "/token" && r.Method == http.MethodPost:
		f.tokenRequests++
		require.NoError(f.t, r.ParseForm())
		require.Equal(f.t, "refresh_token", r.PostForm.Get("grant_type"))
		require.Equal(f.t, "refresh-123", r.PostForm.Get("refresh_token"))
		user, pass, ok := r.BasicAuth()
		require.True(f.t, ok)
		require.Equal(f.t, "client-id", user)
		require.Equal(f.t, "client-secret", pass)
		write(map[string]any{"access_token": "fresh-token", "expires_in": 7200})

	case r.URL.Path == "/" && r.Method == http.MethodGet:
		write(map[string]any{"_links": map[string]any{"fx:store": link("/stores/77")}})

	case r.URL.Path == "/stores/77" && r.Method == http.MethodGet:
		write(map[string]any{
			"_links": map[string]any{
				"self":         link("/stores/77"),
				"fx:customers": link("/stores/77/customers"),
				"fx:carts":     link("/stores/77/carts"),
			},
			"store_domain":       "acme-widgets",
			"use_remote_domain":  false,
			"webhook_key":        "hook-key-abc",
			"use_single_sign_on": f.useSSO,
			"single_sign_on_url": f.ssoURL,
		})

	case r.URL.Path == "/stores/77" && r.Method == http.MethodPatch:
		var patch map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&patch))
		f.storePatches = append(f.storePatches, patch)
		f.useSSO = true
		if v, ok := patch["single_sign_on_url"].(string); ok {
			f.ssoURL = v
		}
		write(map[string]any{})

	case r.URL.Path == "/stores/77/carts" && r.Method == http.MethodPost:
		write(map[string]any{"_links": map[string]any{
			"self":              link("/carts/500"),
			"fx:items":          link("/carts/500/items"),
			"fx:create_session": link("/carts/500/session"),
		}})

	case r.URL.Path == "/carts/500/items" && r.Method == http.MethodPost:
		var item map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&item))
		f.itemPosts = append(f.itemPosts, item)
		write(map[string]any{})

	case r.URL.Path == "/carts/500/session" && r.Method == http.MethodPost:
		write(map[string]any{"cart_link": "https://acme-widgets.foxycart.com/cart?session=sess-900"})

	case r.URL.Path == "/stores/77/customers" && r.Method == http.MethodGet:
		if f.searchHits > 0 {
			write(map[string]any{
				"total_items": f.searchHits,
				"_embedded": map[string]any{"fx:customers": []map[string]any{{
					"id":     json.Number("314"),
					"_links": map[string]any{"self": link("/customers/314")},
				}}},
			})
			return
		}
		write(map[string]any{"total_items": 0})

	case r.URL.Path == "/stores/77/customers" && r.Method == http.MethodPost:
		f.customerPosts++
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.customerBody))
		write(map[string]any{"_links": map[string]any{"self": link("/customers/901")}})

	case r.URL.Path == "/stores/77/customers/314" && r.Method == http.MethodPatch:
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&f.customerPatch))
		write(map[string]any{})

	case r.URL.Path == "/stores/77/customers/314" && r.Method == http.MethodDelete:
		f.customerDels++
		write(map[string]any{})

	case strings.HasPrefix(r.URL.Path, "/stores/77/customers/314/default_") && r.Method == http.MethodPatch:
		var addr map[string]any
		require.NoError(f.t, json.NewDecoder(r.Body).Decode(&addr))
		if f.addressPatches == nil {
			f.addressPatches = map[string]map[string]any{}
		}
		f.addressPatches[strings.TrimPrefix(r.URL.Path, "/stores/77/customers/314/")] = addr
		write(map[string]any{})

	case r.URL.Path == "/transactions/missing" && r.Method == http.MethodGet:
		http.Error(w, "no such transaction", http.StatusNotFound)

	case strings.HasPrefix(r.URL.Path, "/transactions/") && r.Method == http.MethodGet:
		links := map[string]any{"self": link(r.URL.Path)}
		if f.voidLink {
			links["fx:void"] = link(r.URL.Path + "/void")
		}
		body := map[string]any{
			"type":   f.transactionTyp,
			"status": "captured",
			"_links": links,
		}
		if f.embedSubs {
			body["_embedded"] = map[string]any{"fx:subscriptions": []map[string]any{
				{"_links": map[string]any{"self": link("/subscriptions/808")}},
			}}
		} else if f.transactionTyp != "transaction" {
			links["fx:subscription"] = link("/subscriptions/808")
		}
		write(body)

	case strings.HasSuffix(r.URL.Path, "/void") && r.Method == http.MethodPost:
		f.voidPosts++
		write(map[string]any{})

	default:
		http.Error(w, fmt.Sprintf("unexpected %s %s", r.Method, r.URL.Path), http.StatusNotFound)
	}
}

type noticeRecorder struct {
	mu      sync.Mutex
	notices []string
}

func (n *noticeRecorder) Notice(ctx context.Context, code, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, code)
	return nil
}

type binderRecorder struct {
	mu    sync.Mutex
	bound map[string]string
}

func (b *binderRecorder) BindRemoteCustomer(ctx context.Context, localID, remoteID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bound == nil {
		b.bound = map[string]string{}
	}
	b.bound[localID] = remoteID
	return nil
}

func newTestClient(f *fakeProvider, creds foxy.Credentials, opts func(*foxy.Options)) *foxy.Client {
	o := foxy.Options{
		Creds:          foxy.NewMemoryCredentialStore(creds),
		BaseURL:        f.srv.URL,
		SSOCallbackURL: "https://shop.example.com/foxy/sso",
		Log:            zerolog.Nop(),
		HTTPClient:     f.srv.Client(),
	}
	if opts != nil {
		opts(&o)
	}
	return foxy.NewClient(o)
}

func expiredCreds() foxy.Credentials {
	return foxy.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-123",
		AccessToken:  "stale-token",
	}
}

func liveCreds() foxy.Credentials {
	return foxy.Credentials{
		ClientID:             "client-id",
		ClientSecret:         "client-secret",
		RefreshToken:         "refresh-123",
		AccessToken:          "seeded-token",
		AccessTokenExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestTokenRefreshedWhenExpiryMissing(t *testing.T) {
	f := newFakeProvider(t)
	store := foxy.NewMemoryCredentialStore(expiredCreds())
	client := newTestClient(f, expiredCreds(), func(o *foxy.Options) { o.Creds = store })

	require.NoError(t, client.Discover(context.Background()))
	f.locked(func() { require.Equal(t, 1, f.tokenRequests) })

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "fresh-token", saved.AccessToken)
	require.InDelta(t, time.Until(saved.AccessTokenExpiresAt).Seconds(), 7200, 60)

	// Further calls reuse the refreshed token.
	_, err = client.CreateCart(context.Background())
	require.NoError(t, err)
	f.locked(func() { require.Equal(t, 1, f.tokenRequests) })
}

func TestTokenNotRefreshedWhileValid(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)

	require.NoError(t, client.Discover(context.Background()))
	f.locked(func() { require.Zero(t, f.tokenRequests) })
}

func TestDiscoverRegistersSSOOnce(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)

	require.NoError(t, client.Discover(context.Background()))
	f.locked(func() {
		require.Len(t, f.storePatches, 1)
		require.Equal(t, true, f.storePatches[0]["use_single_sign_on"])
		require.Equal(t, "https://shop.example.com/foxy/sso", f.storePatches[0]["single_sign_on_url"])
	})
	require.Equal(t, "acme-widgets.foxycart.com", client.StoreDomain())

	secret, err := client.LinkSecret(context.Background())
	require.NoError(t, err)
	require.Equal(t, "hook-key-abc", secret)

	// Second discovery sees the registered URL and leaves the store alone.
	require.NoError(t, client.Discover(context.Background()))
	f.locked(func() { require.Len(t, f.storePatches, 1) })
}

func TestCartToCheckoutLink(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)
	require.NoError(t, client.Discover(context.Background()))

	cart, err := client.CreateCart(context.Background())
	require.NoError(t, err)
	require.Equal(t, "500", cart.TransactionID)

	err = client.AddCartItem(context.Background(), cart, foxy.CartItem{Name: "Mug", Price: 12.50})
	require.NoError(t, err)
	f.locked(func() {
		require.Len(t, f.itemPosts, 1)
		require.Equal(t, "Mug", f.itemPosts[0]["name"])
	})

	link, err := client.CreateCheckoutSession(context.Background(), cart)
	require.NoError(t, err)
	require.Equal(t, "https://acme-widgets.foxycart.com/checkout?session=sess-900", link)
}

func TestFindOrCreateCustomerReusesExisting(t *testing.T) {
	f := newFakeProvider(t)
	f.searchHits = 1
	binder := &binderRecorder{}
	client := newTestClient(f, liveCreds(), func(o *foxy.Options) { o.Binder = binder })
	require.NoError(t, client.Discover(context.Background()))

	id, err := client.FindOrCreateCustomer(context.Background(), foxy.CustomerInput{
		LocalID: "local-1", Email: "jo@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "314", id)
	f.locked(func() { require.Zero(t, f.customerPosts) })
	require.Equal(t, "314", binder.bound["local-1"])
}

func TestFindOrCreateCustomerCreatesWhenMissing(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)
	require.NoError(t, client.Discover(context.Background()))

	id, err := client.FindOrCreateCustomer(context.Background(), foxy.CustomerInput{
		Email: "new@example.com", FirstName: "New", LastName: "Shopper",
	})
	require.NoError(t, err)
	require.Equal(t, "901", id)
	f.locked(func() {
		require.Equal(t, 1, f.customerPosts)
		require.Equal(t, "new@example.com", f.customerBody["email"])
	})
}

func TestUpdateCustomer(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)
	require.NoError(t, client.Discover(context.Background()))

	err := client.UpdateCustomer(context.Background(), "314", foxy.CustomerInput{
		Email: "renamed@example.com", FirstName: "Re", LastName: "Named",
	})
	require.NoError(t, err)
	f.locked(func() {
		require.Equal(t, "renamed@example.com", f.customerPatch["email"])
		require.Equal(t, "Re", f.customerPatch["first_name"])
	})
}

func TestUpdateDefaultAddresses(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)
	require.NoError(t, client.Discover(context.Background()))

	client.UpdateDefaultAddresses(context.Background(), "314",
		&foxy.CustomerAddress{Address1: "1 Main St", City: "Springfield", Country: "US"},
		nil)
	f.locked(func() {
		require.Len(t, f.addressPatches, 1)
		require.Equal(t, "1 Main St", f.addressPatches["default_billing_address"]["address1"])
	})
}

func TestDeleteCustomer(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)
	require.NoError(t, client.Discover(context.Background()))

	require.NoError(t, client.DeleteCustomer(context.Background(), "314"))
	f.locked(func() { require.Equal(t, 1, f.customerDels) })
}

func TestSubscriptionResolutionFromEmbedded(t *testing.T) {
	f := newFakeProvider(t)
	f.embedSubs = true
	client := newTestClient(f, liveCreds(), nil)

	id, err := client.SubscriptionFromTransaction(context.Background(), "981")
	require.NoError(t, err)
	require.Equal(t, "808", id)
}

func TestSubscriptionResolutionFromLink(t *testing.T) {
	f := newFakeProvider(t)
	f.transactionTyp = "cart"
	client := newTestClient(f, liveCreds(), nil)

	id, err := client.SubscriptionFromTransaction(context.Background(), "981")
	require.NoError(t, err)
	require.Equal(t, "808", id)
}

func TestSubscriptionResolutionAbsent(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)

	_, err := client.SubscriptionFromTransaction(context.Background(), "981")
	require.True(t, foxy.IsNotFound(err))
}

func TestTransitionTransactionGatedByActionLink(t *testing.T) {
	f := newFakeProvider(t)
	notices := &noticeRecorder{}
	client := newTestClient(f, liveCreds(), func(o *foxy.Options) { o.Notices = notices })

	// No void link exposed: notice raised, no error.
	require.NoError(t, client.TransitionTransaction(context.Background(), "981", foxy.ActionVoid))
	f.locked(func() { require.Zero(t, f.voidPosts) })
	require.Equal(t, []string{"transaction_action_unavailable"}, notices.notices)

	f.mu.Lock()
	f.voidLink = true
	f.mu.Unlock()
	require.NoError(t, client.TransitionTransaction(context.Background(), "981", foxy.ActionVoid))
	f.locked(func() { require.Equal(t, 1, f.voidPosts) })
}

func TestPaymentStatus(t *testing.T) {
	f := newFakeProvider(t)
	client := newTestClient(f, liveCreds(), nil)

	status, err := client.PaymentStatus(context.Background(), "981")
	require.NoError(t, err)
	require.Equal(t, "captured", status)

	_, err = client.PaymentStatus(context.Background(), "missing")
	require.True(t, foxy.IsNotFound(err))
}
