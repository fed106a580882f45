// Command worker consumes grading jobs from Redpanda and writes results.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/ai/openrouter"
	aistub "github.com/fairyhunter13/assignment-grader/internal/adapter/ai/stub"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/observability"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/queue/shared"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/assignment-grader/internal/app"
	"github.com/fairyhunter13/assignment-grader/internal/config"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/service/ratelimiter"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.SetAppEnv(cfg.AppEnv)

	// The worker exposes its own /metrics so Prometheus can scrape queue and
	// grading instrumentation separately from the API process.
	observability.InitMetrics()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: ":9090", Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		if err := srv.ListenAndServe(); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("database connection failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	jobRepo := postgres.NewJobRepo(pool)
	upRepo := postgres.NewUploadRepo(pool)
	resRepo := postgres.NewResultRepo(pool)

	var rdb *redis.Client
	if opts, rerr := redis.ParseURL(cfg.RedisURL); rerr != nil {
		slog.Error("invalid redis url", slog.Any("error", rerr))
	} else {
		rdb = redis.NewClient(opts)
	}

	// Producer used for retry and DLQ flows inside the worker. The
	// transactional ID differs from the API's producer so the two processes
	// never conflict.
	queueProducer, err := redpanda.NewProducerWithTransactionalID(cfg.KafkaBrokers, "assignment-grader-worker-producer")
	if err != nil {
		slog.Error("queue producer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queueProducer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	// Env-configured retry knobs over the built-in error taxonomy.
	baseRetryCfg := domain.DefaultRetryConfig()
	cfgRetry := cfg.GetRetryConfig()
	retryCfg := domain.RetryConfig{
		MaxRetries:         cfgRetry.MaxRetries,
		InitialDelay:       cfgRetry.InitialDelay,
		MaxDelay:           cfgRetry.MaxDelay,
		Multiplier:         cfgRetry.Multiplier,
		Jitter:             cfgRetry.Jitter,
		RetryableErrors:    baseRetryCfg.RetryableErrors,
		NonRetryableErrors: baseRetryCfg.NonRetryableErrors,
	}
	retryManager := redpanda.NewRetryManager(queueProducer, queueProducer, jobRepo, retryCfg)

	gateway := buildGateway(cfg, rdb)
	limits := shared.Limits{
		PerFileChars: cfg.PerFileCharLimit,
		BatchChars:   cfg.BatchCharBudget,
	}

	maxWorkers := cfg.ConsumerMaxConcurrency
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	minWorkers := maxWorkers / 2
	if minWorkers < 1 {
		minWorkers = 1
	}
	slog.Info("worker scaling configuration",
		slog.Int("min_workers", minWorkers),
		slog.Int("max_workers", maxWorkers),
		slog.Duration("scaling_interval", cfg.WorkerScalingInterval),
		slog.Duration("idle_timeout", cfg.WorkerIdleTimeout))

	worker, err := redpanda.NewConsumerWithConfig(
		cfg.KafkaBrokers,
		"assignment-grader-workers",
		"assignment-grader-consumer",
		jobRepo,
		upRepo,
		resRepo,
		gateway,
		limits,
		minWorkers,
		maxWorkers,
	)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	worker.WithRetryManager(retryManager).
		WithScalingInterval(cfg.WorkerScalingInterval).
		WithIdleTimeout(cfg.WorkerIdleTimeout)
	defer func() {
		if err := worker.Close(); err != nil {
			slog.Error("failed to close worker", slog.Any("error", err))
		}
	}()

	// Requeue or expire dead-lettered jobs alongside the main consumer.
	dlqConsumer, err := redpanda.NewDLQConsumer(cfg.KafkaBrokers, "assignment-grader-dlq-workers", retryManager, jobRepo)
	if err != nil {
		slog.Error("DLQ consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	dlqConsumer.WithMaxAge(cfg.DLQMaxAge)
	defer dlqConsumer.Stop()
	if err := dlqConsumer.Start(ctx); err != nil {
		slog.Error("DLQ consumer start error", slog.Any("error", err))
	}

	// Jobs stuck in processing (for example after a worker crash) are failed
	// once they outlive the longest possible model call.
	sweeperMaxAge := cfg.OpenRouterTimeout + time.Minute
	if sweeper := app.NewStuckJobSweeper(jobRepo, sweeperMaxAge, 0); sweeper != nil {
		go sweeper.Run(ctx)
	}

	slog.Info("starting redpanda consumer")
	go func() {
		if err := worker.Start(ctx); err != nil {
			slog.Error("worker error", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigCh
	slog.Info("signal received, shutting down", slog.String("signal", sig.String()))
}

// buildGateway returns the model gateway: OpenRouter when an API key is
// configured, otherwise the deterministic stub so the queue can be exercised
// offline.
func buildGateway(cfg config.Config, rdb *redis.Client) domain.ModelGateway {
	if cfg.OpenRouterAPIKey == "" {
		slog.Warn("OPENROUTER_API_KEY not set; using stub model gateway")
		return aistub.New()
	}
	var limiter ratelimiter.Limiter
	if rdb != nil {
		limiter = ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{})
	}
	return openrouter.New(cfg, limiter)
}
