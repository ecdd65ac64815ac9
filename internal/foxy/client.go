package foxy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/foxy-bridge/internal/obs"
)

const (
	apiVersion         = "1"
	tokenRefreshMargin = 300 * time.Second
	linkSecretTTL      = 24 * time.Hour
	defaultTimeout     = 60 * time.Second
)

// APIBaseURL returns the hAPI root for the given environment.
func APIBaseURL(isTest bool) string {
	if isTest {
		return "https://api-sandbox.foxycart.com"
	}
	return "https://api.foxycart.com"
}

// AdminNotifier records operator-facing notices for conditions that need a
// human follow-up on the provider dashboard.
type AdminNotifier interface {
	Notice(ctx context.Context, code, message string) error
}

// CustomerBinder links a provider customer id back to a local customer record.
type CustomerBinder interface {
	BindRemoteCustomer(ctx context.Context, localID, remoteID string) error
}

// Options configures a Client.
type Options struct {
	Creds          CredentialStore
	Binder         CustomerBinder
	Notices        AdminNotifier
	BaseURL        string
	SSOCallbackURL string
	Timeout        time.Duration
	Log            zerolog.Logger
	HTTPClient     *http.Client
}

// Client talks to the hosted payment provider's HAL API. It refreshes its own
// OAuth token and caches store discovery results.
type Client struct {
	creds          CredentialStore
	binder         CustomerBinder
	notices        AdminNotifier
	http           *http.Client
	baseURL        string
	ssoCallbackURL string
	log            zerolog.Logger

	mu                  sync.Mutex
	accessToken         string
	tokenExpiresAt      time.Time
	storeURL            string
	customersURL        string
	cartsURL            string
	storeDomain         string
	useRemoteDomain     bool
	linkSecret          string
	linkSecretFetchedAt time.Time
}

// NewClient builds a Client. Discover must be called before cart or customer
// operations; transaction lookups only need credentials.
func NewClient(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return &Client{
		creds:          opts.Creds,
		binder:         opts.Binder,
		notices:        opts.Notices,
		http:           hc,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		ssoCallbackURL: opts.SSOCallbackURL,
		log:            opts.Log,
	}
}

// ensureToken returns a bearer token, refreshing it when the stored expiry is
// missing or closer than the refresh margin. A failed refresh falls back to
// the last known token rather than failing the calling operation outright.
func (c *Client) ensureToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken == "" {
		creds, err := c.creds.Load(ctx)
		if err != nil {
			return "", fmt.Errorf("load credentials: %w", err)
		}
		c.accessToken = creds.AccessToken
		c.tokenExpiresAt = creds.AccessTokenExpiresAt
	}

	stale := c.tokenExpiresAt.IsZero() || time.Until(c.tokenExpiresAt) < tokenRefreshMargin
	if !stale && c.accessToken != "" {
		return c.accessToken, nil
	}

	if err := c.refreshToken(ctx); err != nil {
		c.log.Warn().Err(err).Msg("token refresh failed")
		if c.accessToken != "" {
			return c.accessToken, nil
		}
		return "", err
	}
	return c.accessToken, nil
}

// refreshToken exchanges the refresh token for a new access token. Caller
// holds c.mu.
func (c *Client) refreshToken(ctx context.Context) error {
	creds, err := c.creds.Load(ctx)
	if err != nil {
		return fmt.Errorf("load credentials: %w", err)
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", creds.RefreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.SetBasicAuth(creds.ClientID, creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("FOXY-API-VERSION", apiVersion)

	started := time.Now()
	resp, err := c.http.Do(req)
	observeRequest("token", started, err == nil)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &FailedRequestError{Status: resp.StatusCode, Body: string(body)}
	}
	var tok tokenResource
	if err := json.Unmarshal(body, &tok); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	c.accessToken = tok.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	if err := c.creds.SaveAccessToken(ctx, c.accessToken, c.tokenExpiresAt); err != nil {
		c.log.Warn().Err(err).Msg("persist refreshed token failed")
	}
	return nil
}

// do performs one authenticated API call and decodes the response into out
// when out is non-nil. Responses at or above 400 become FailedRequestError.
func (c *Client) do(ctx context.Context, method, rawURL string, payload, out any) error {
	token, err := c.ensureToken(ctx)
	if err != nil {
		return err
	}
	var reqBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		reqBody = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reqBody)
	if err != nil {
		return err
	}
	req.Header.Set("FOXY-API-VERSION", apiVersion)
	req.Header.Set("Authorization", "Bearer "+token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observeRequest(method, started, false)
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		observeRequest(method, started, false)
		return err
	}
	if resp.StatusCode >= 400 {
		observeRequest(method, started, false)
		return &FailedRequestError{Status: resp.StatusCode, Body: string(body)}
	}
	observeRequest(method, started, true)
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, rawURL, err)
		}
	}
	return nil
}

func observeRequest(method string, started time.Time, ok bool) {
	if obs.FoxyRequestDuration == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	obs.FoxyRequestDuration.WithLabelValues(method, result).Observe(obs.DurationMillis(time.Since(started)))
}

// Discover resolves the store resource from the API home, caches its link
// relations and domain, refreshes the checkout-link secret, and registers the
// single-sign-on callback URL if it is not already set. Safe to call again;
// the store is only patched when its SSO settings differ.
func (c *Client) Discover(ctx context.Context) error {
	var home apiHome
	if err := c.do(ctx, http.MethodGet, c.baseURL, nil, &home); err != nil {
		return fmt.Errorf("discover api home: %w", err)
	}
	storeHref := home.Links.Href("fx:store")
	if storeHref == "" {
		return fmt.Errorf("discover: api home has no store link")
	}
	var store storeResource
	if err := c.do(ctx, http.MethodGet, storeHref, nil, &store); err != nil {
		return fmt.Errorf("discover store: %w", err)
	}

	c.mu.Lock()
	c.storeURL = storeHref
	c.customersURL = store.Links.Href("fx:customers")
	c.cartsURL = store.Links.Href("fx:carts")
	c.storeDomain = store.StoreDomain
	c.useRemoteDomain = store.UseRemoteDomain
	if store.WebhookKey != "" {
		c.linkSecret = store.WebhookKey
		c.linkSecretFetchedAt = time.Now()
	}
	c.mu.Unlock()

	if c.ssoCallbackURL != "" && (!store.UseSingleSignOn || store.SingleSignOnURL != c.ssoCallbackURL) {
		patch := map[string]any{
			"use_single_sign_on": true,
			"single_sign_on_url": c.ssoCallbackURL,
		}
		if err := c.do(ctx, http.MethodPatch, storeHref, patch, nil); err != nil {
			return fmt.Errorf("register sso url: %w", err)
		}
	}
	return nil
}

// Discovered reports whether store discovery has completed.
func (c *Client) Discovered() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storeURL != ""
}

// StoreDomain returns the fully qualified checkout domain.
func (c *Client) StoreDomain() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.storeDomain == "" {
		return ""
	}
	if c.useRemoteDomain {
		return c.storeDomain
	}
	return c.storeDomain + ".foxycart.com"
}

// LinkSecret returns the store's webhook key used to sign checkout links.
// The cached value is refreshed from the store resource once a day.
func (c *Client) LinkSecret(ctx context.Context) (string, error) {
	c.mu.Lock()
	secret := c.linkSecret
	fetched := c.linkSecretFetchedAt
	storeHref := c.storeURL
	c.mu.Unlock()

	if secret != "" && time.Since(fetched) < linkSecretTTL {
		return secret, nil
	}
	if storeHref == "" {
		if err := c.Discover(ctx); err != nil {
			return "", err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.linkSecret == "" {
			return "", fmt.Errorf("store has no webhook key")
		}
		return c.linkSecret, nil
	}

	var store storeResource
	if err := c.do(ctx, http.MethodGet, storeHref, nil, &store); err != nil {
		if secret != "" {
			c.log.Warn().Err(err).Msg("link secret refresh failed, using cached value")
			return secret, nil
		}
		return "", err
	}
	if store.WebhookKey == "" {
		return "", fmt.Errorf("store has no webhook key")
	}
	c.mu.Lock()
	c.linkSecret = store.WebhookKey
	c.linkSecretFetchedAt = time.Now()
	c.mu.Unlock()
	return store.WebhookKey, nil
}

func (c *Client) customersEndpoint() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.customersURL == "" {
		return "", fmt.Errorf("store not discovered")
	}
	return c.customersURL, nil
}

func (c *Client) cartsEndpoint() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cartsURL == "" {
		return "", fmt.Errorf("store not discovered")
	}
	return c.cartsURL, nil
}
