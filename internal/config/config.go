package config

import (
	"fmt"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string `validate:"required"`
	RedisURL           string `validate:"required"`
	MigrationsDir      string
	CORSAllowedOrigins []string

	// PublicBaseURL is where Foxy reaches us (webhook, callback, SSO).
	PublicBaseURL string `validate:"required,url"`
	// StorefrontBaseURL is where shoppers are redirected after checkout.
	StorefrontBaseURL string `validate:"required,url"`

	FoxyClientID         string `validate:"required"`
	FoxyClientSecret     string `validate:"required"`
	FoxyAccessToken      string
	FoxyRefreshToken     string `validate:"required"`
	FoxyStoreSecret      string `validate:"required"`
	FoxyWebhookSignature string `validate:"required"`
	FoxyIsTest           bool
	FoxyHTTPTimeout      time.Duration

	PaymentLinkTTL      time.Duration
	SSOTokenTTL         time.Duration
	PaymentSessionTTL   time.Duration
	CartTTL             time.Duration
	WebhookReplayTTL    time.Duration
	IdempotencyTTL      time.Duration
	RenewalScanCron     string
	RenewalBatchSize    int
	PublicRateLimit     string
	CookieSecure        bool
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		MigrationsDir:      valueOrDefault(k.String("MIGRATIONS_DIR"), "migrations"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		PublicBaseURL:     strings.TrimRight(k.String("PUBLIC_BASE_URL"), "/"),
		StorefrontBaseURL: strings.TrimRight(k.String("STOREFRONT_BASE_URL"), "/"),

		FoxyClientID:         k.String("FOXY_CLIENT_ID"),
		FoxyClientSecret:     k.String("FOXY_CLIENT_SECRET"),
		FoxyAccessToken:      k.String("FOXY_ACCESS_TOKEN"),
		FoxyRefreshToken:     k.String("FOXY_REFRESH_TOKEN"),
		FoxyStoreSecret:      k.String("FOXY_STORE_SECRET"),
		FoxyWebhookSignature: k.String("FOXY_WEBHOOK_SIGNATURE"),
		FoxyIsTest:           parseBool(valueOrDefault(k.String("FOXY_IS_TEST"), "true")),
		FoxyHTTPTimeout:      parseDuration(k.String("FOXY_HTTP_TIMEOUT"), "60s"),

		PaymentLinkTTL:    parseDuration(k.String("PAYMENT_LINK_TTL"), "600s"),
		SSOTokenTTL:       parseDuration(k.String("SSO_TOKEN_TTL"), "300s"),
		PaymentSessionTTL: parseDuration(k.String("PAYMENT_SESSION_TTL"), "24h"),
		CartTTL:           parseDuration(k.String("CART_TTL"), "168h"),
		WebhookReplayTTL:  parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),
		IdempotencyTTL:    parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		RenewalScanCron:   valueOrDefault(k.String("RENEWAL_SCAN_CRON"), "@every 1h"),
		RenewalBatchSize:  intOrDefault(k.Int("RENEWAL_BATCH_SIZE"), 50),
		PublicRateLimit:   valueOrDefault(k.String("PUBLIC_RATE_LIMIT"), "120-M"),
		CookieSecure:      parseBool(k.String("COOKIE_SECURE")),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// SSOCallbackURL is the endpoint registered on the Foxy store for single sign-on.
func (c *Config) SSOCallbackURL() string {
	return c.PublicBaseURL + "/foxy/sso"
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func intOrDefault(value, fallback int) int {
	if value > 0 {
		return value
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
