package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	validator "github.com/go-playground/validator/v10"
	migrate "github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	limiterstdlib "github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"

	"github.com/noah-isme/foxy-bridge/internal/cart"
	"github.com/noah-isme/foxy-bridge/internal/common"
	"github.com/noah-isme/foxy-bridge/internal/config"
	"github.com/noah-isme/foxy-bridge/internal/customer"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/health"
	"github.com/noah-isme/foxy-bridge/internal/lock"
	"github.com/noah-isme/foxy-bridge/internal/obs"
	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/payment"
	"github.com/noah-isme/foxy-bridge/internal/security"
	"github.com/noah-isme/foxy-bridge/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "foxybridge")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	tracingEnabled := envBool("OBS_ENABLE_TRACING", true)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "foxy-bridge-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				ctx := context.Background()
				if err := shutdown(ctx); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	if err := runMigrations(cfg); err != nil {
		logger.Fatal().Err(err).Msg("run migrations")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger, metricsEnabled)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	orderStore := &order.Store{Pool: pool}
	noticeStore := &order.NoticeStore{Pool: pool}
	customerStore := &customer.Store{Pool: pool}
	credStore := &foxy.PGCredentialStore{Pool: pool}

	if err := credStore.Seed(ctx, foxy.Credentials{
		ClientID:         cfg.FoxyClientID,
		ClientSecret:     cfg.FoxyClientSecret,
		AccessToken:      cfg.FoxyAccessToken,
		RefreshToken:     cfg.FoxyRefreshToken,
		StoreSecret:      cfg.FoxyStoreSecret,
		WebhookSignature: cfg.FoxyWebhookSignature,
		IsTest:           cfg.FoxyIsTest,
	}); err != nil {
		logger.Fatal().Err(err).Msg("seed provider credentials")
	}

	foxyClient := foxy.NewClient(foxy.Options{
		Creds:          credStore,
		Binder:         customerStore,
		Notices:        noticeStore,
		BaseURL:        foxy.APIBaseURL(cfg.FoxyIsTest),
		SSOCallbackURL: cfg.SSOCallbackURL(),
		Timeout:        cfg.FoxyHTTPTimeout,
		Log:            logger,
	})
	if err := foxyClient.Discover(ctx); err != nil {
		// provider outage should not block boot; readiness reports it
		logger.Error().Err(err).Msg("discover provider store")
	}

	sessions := &session.Store{R: redisClient, TTL: cfg.PaymentSessionTTL}
	carts := &cart.Store{R: redisClient, TTL: cfg.CartTTL}
	validate := validator.New()

	mirror := &customer.Mirror{Store: customerStore, Client: foxyClient, Log: logger}
	customerHandler := &customer.Handler{Store: customerStore, Mirror: mirror, Validate: validate, Log: logger}
	cartHandler := &cart.Handler{Store: carts, Validate: validate}

	paymentSvc := &payment.Service{
		Provider: foxyClient,
		Orders:   orderStore,
		Carts:    carts,
		Sessions: sessions,
		LinkTTL:  cfg.PaymentLinkTTL,
		Log:      logger,
	}
	subscriptions := &payment.Subscriptions{Provider: foxyClient, Orders: orderStore, Log: logger}
	paymentHandler := &payment.Handler{
		Svc:      paymentSvc,
		Subs:     subscriptions,
		Orders:   orderStore,
		Carts:    carts,
		Validate: validate,
		Log:      logger,
	}
	webhookHandler := &payment.Webhook{
		Creds:     credStore,
		Orders:    orderStore,
		Subs:      foxyClient,
		Notices:   noticeStore,
		Replay:    redisClient,
		ReplayTTL: cfg.WebhookReplayTTL,
		Lock:      &lock.Locker{R: redisClient},
		Log:       logger,
	}
	callbackHandler := &payment.Callback{
		Orders:   orderStore,
		Sessions: sessions,
		Status:   foxyClient,
		URLs:     payment.StorefrontURLs{Base: cfg.StorefrontBaseURL},
		Log:      logger,
	}
	ssoHandler := &payment.SSO{
		Sessions: sessions,
		Creds:    credStore,
		Domain:   foxyClient.StoreDomain,
		TokenTTL: cfg.SSOTokenTTL,
		Log:      logger,
	}
	watcher := &payment.Watcher{Provider: foxyClient, Notices: noticeStore, Log: logger}

	orderHandler := &order.Handler{Store: orderStore}
	orderAdmin := &order.AdminHandler{Store: orderStore, Notices: noticeStore, Watcher: watcher, Log: logger}

	idem := common.Idem{R: redisClient, TTL: cfg.IdempotencyTTL}

	publicLimiter, err := newPublicLimiter(redisClient, cfg.PublicRateLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise rate limiter")
	}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(security.Headers{Enable: true, EnableHSTS: envBool("SECURE_ENABLE_HSTS", true)}.Middleware)
	r.Use(common.ShopperSessionMiddleware(cfg.CookieSecure))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	healthHandler := health.Handler{
		Checker:      readinessChecker{db: pool, redis: redisClient},
		DBTimeout:    envDurationMillis("HEALTH_READY_DB_TIMEOUT_MS", 500),
		RedisTimeout: envDurationMillis("HEALTH_READY_REDIS_TIMEOUT_MS", 300),
		Provider: func(ctx context.Context) error {
			if foxyClient.Discovered() {
				return nil
			}
			return foxyClient.Discover(ctx)
		},
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	// provider-facing endpoints, rate limited per client IP
	r.Group(func(pub chi.Router) {
		pub.Use(publicLimiter.Handler)
		pub.Use(security.BodyLimit{Max: 1 << 20}.Middleware)
		pub.Post("/webhooks/foxy/transaction", webhookHandler.Handle)
		pub.Get("/foxy/callback", callbackHandler.Handle)
		pub.Get("/foxy/sso", ssoHandler.Handle)
	})

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/cart", func(c chi.Router) {
			c.Get("/", cartHandler.Get)
			c.With(idem.Middleware).Post("/items", cartHandler.AddItem)
		})

		v.With(idem.Middleware).Post("/payments/foxy/link", paymentHandler.CreateLink)

		v.Route("/subscriptions/{id}", func(s chi.Router) {
			s.Post("/payment-method", paymentHandler.ChangePaymentMethod)
			s.Post("/cancel", paymentHandler.CancelSubscription)
		})

		v.Get("/orders/{id}", orderHandler.Get)

		v.Route("/customers", func(c chi.Router) {
			c.Post("/", customerHandler.Create)
			c.Route("/{id}", func(child chi.Router) {
				child.Get("/", customerHandler.Get)
				child.Patch("/", customerHandler.Update)
				child.Delete("/", customerHandler.Delete)
			})
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Patch("/orders/{id}/status", orderAdmin.UpdateStatus)
			admin.Post("/orders/{id}/subscription", orderAdmin.CreateSubscription)
			admin.Get("/notices", orderAdmin.ListNotices)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-runCtx.Done():
		logger.Info().Msg("shutdown signal received")
		health.SetReady(false)
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown server")
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server exited unexpectedly")
		}
	}
}

func runMigrations(cfg *config.Config) error {
	m, err := migrate.New("file://"+cfg.MigrationsDir, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = m.Close()
	}()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "foxy-bridge-api"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger, metricsEnabled bool) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(client); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
}

func newPublicLimiter(rdb *redis.Client, formatted string) (*limiterstdlib.Middleware, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return nil, err
	}
	store, err := limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "ratelimit:public"})
	if err != nil {
		return nil, err
	}
	return limiterstdlib.NewMiddleware(limiter.New(store, rate)), nil
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type readinessChecker struct {
	db    *pgxpool.Pool
	redis *redis.Client
}

func (c readinessChecker) PingDB(ctx context.Context, timeout time.Duration) error {
	if c.db == nil {
		return errors.New("db not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.db.Ping(ctx)
}

func (c readinessChecker) PingRedis(ctx context.Context, timeout time.Duration) error {
	if c.redis == nil {
		return errors.New("redis not configured")
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.redis.Ping(ctx).Err()
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}
