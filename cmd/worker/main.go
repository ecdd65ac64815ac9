package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/foxy-bridge/internal/config"
	"github.com/noah-isme/foxy-bridge/internal/foxy"
	"github.com/noah-isme/foxy-bridge/internal/lock"
	"github.com/noah-isme/foxy-bridge/internal/obs"
	"github.com/noah-isme/foxy-bridge/internal/order"
	"github.com/noah-isme/foxy-bridge/internal/payment"
	"github.com/noah-isme/foxy-bridge/internal/tasks"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "foxybridge")
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	orderStore := &order.Store{Pool: pool}
	noticeStore := &order.NoticeStore{Pool: pool}
	credStore := &foxy.PGCredentialStore{Pool: pool}

	foxyClient := foxy.NewClient(foxy.Options{
		Creds:          credStore,
		Notices:        noticeStore,
		BaseURL:        foxy.APIBaseURL(cfg.FoxyIsTest),
		SSOCallbackURL: cfg.SSOCallbackURL(),
		Timeout:        cfg.FoxyHTTPTimeout,
		Log:            logger,
	})
	if err := foxyClient.Discover(ctx); err != nil {
		logger.Error().Err(err).Msg("discover provider store")
	}

	subscriptions := &payment.Subscriptions{Provider: foxyClient, Orders: orderStore, Log: logger}

	redisOpt, err := asynqRedisOpt(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for task queue")
	}

	taskClient := asynq.NewClient(redisOpt)
	defer func() {
		if err := taskClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close task client")
		}
	}()

	scanLock := &lock.Locker{R: redisClient}
	renewalWorker := &tasks.RenewalWorker{
		Store:     orderStore,
		Subs:      subscriptions,
		Queue:     taskClient,
		Lock:      scanLock,
		BatchSize: cfg.RenewalBatchSize,
		Log:       logger,
	}

	mux := asynq.NewServeMux()
	renewalWorker.Register(mux)

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: envInt("WORKER_CONCURRENCY", 5),
	})
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	if _, err := scheduler.Register(cfg.RenewalScanCron, tasks.NewRenewalScanTask()); err != nil {
		logger.Fatal().Err(err).Msg("register renewal scan")
	}
	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}

	logger.Info().Str("cron", cfg.RenewalScanCron).Msg("worker started")
	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	scheduler.Shutdown()
	srv.Shutdown()
}

func asynqRedisOpt(rawURL string) (asynq.RedisClientOpt, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}
	return asynq.RedisClientOpt{
		Addr:     opts.Addr,
		Username: opts.Username,
		Password: opts.Password,
		DB:       opts.DB,
	}, nil
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
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "foxy-bridge-worker"

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(initCtx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(initCtx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}

	initCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(initCtx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return client
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

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}
