// Command server starts the assignment grader HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/ai/openrouter"
	aistub "github.com/fairyhunter13/assignment-grader/internal/adapter/ai/stub"
	ghfetch "github.com/fairyhunter13/assignment-grader/internal/adapter/github"
	httpserver "github.com/fairyhunter13/assignment-grader/internal/adapter/httpserver"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/observability"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/repo/postgres"
	tikaext "github.com/fairyhunter13/assignment-grader/internal/adapter/textextractor/tika"
	"github.com/fairyhunter13/assignment-grader/internal/app"
	"github.com/fairyhunter13/assignment-grader/internal/config"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/service/models"
	"github.com/fairyhunter13/assignment-grader/internal/service/ratelimiter"
	"github.com/fairyhunter13/assignment-grader/internal/usecase"
)

// redisAdapter narrows *redis.Client to the readiness probe interface.
type redisAdapter struct{ rdb *redis.Client }

func (r redisAdapter) Ping(ctx context.Context) app.RedisPingResult { return r.rdb.Ping(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Dev-only metrics (per-request series) stay off outside development.
	observability.SetAppEnv(cfg.AppEnv)

	// Register all Prometheus metrics once per process so /metrics exposes
	// HTTP, model and job instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	upRepo := postgres.NewUploadRepo(pool)
	jobRepo := postgres.NewJobRepo(pool)
	resRepo := postgres.NewResultRepo(pool)

	if cfg.DataRetentionDays > 0 {
		cleanupSvc := postgres.NewCleanupService(postgres.PoolBeginner{Pool: pool}, cfg.DataRetentionDays)
		go cleanupSvc.RunPeriodic(ctx, cfg.CleanupInterval)
		slog.Info("cleanup service started",
			slog.Int("retention_days", cfg.DataRetentionDays),
			slog.Duration("interval", cfg.CleanupInterval))
	}

	// Redis backs the models catalog cache and the provider rate limiter.
	// The API stays up without it; those paths just lose their cache.
	var rdb *redis.Client
	if opts, rerr := redis.ParseURL(cfg.RedisURL); rerr != nil {
		slog.Error("invalid redis url", slog.Any("error", rerr))
	} else {
		rdb = redis.NewClient(opts)
	}

	qClient, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("redpanda producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := qClient.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	gateway := buildGateway(cfg, rdb)
	ext := tikaext.New(cfg.TikaURL)
	fetcher := ghfetch.New(cfg.GitHubAPIBase, cfg.GitHubToken, cfg.GitHubMaxFiles)
	catalog := models.NewService(cfg.OpenRouterAPIKey, cfg.OpenRouterBaseURL, rdb, cfg.ModelsCacheTTL)

	uploadSvc := usecase.NewUploadService(upRepo, ext, cfg.MaxUploadMB*1024*1024, cfg.MaxUploadFiles)
	gradeSvc := usecase.NewGradeService(jobRepo, qClient, upRepo, config.GetDefaultTitle())
	resultSvc := usecase.NewResultService(jobRepo, resRepo)
	repoSvc := usecase.NewRepoGradeService(fetcher, gateway, cfg.RepoFileCharLimit, cfg.RepoTotalCharLimit)
	modelsSvc := usecase.NewModelsService(catalog)

	var redisClient app.RedisClient
	if rdb != nil {
		redisClient = redisAdapter{rdb: rdb}
	}
	dbCheck, redisCheck, tikaCheck := app.BuildReadinessChecks(cfg, pool, redisClient)

	srv := httpserver.NewServer(cfg, uploadSvc, gradeSvc, resultSvc, repoSvc, modelsSvc, dbCheck, redisCheck, tikaCheck)

	var admin *httpserver.AdminServer
	if cfg.AdminEnabled() {
		admin = httpserver.NewAdminServer(cfg, jobRepo, modelsSvc)
	}

	handler := app.BuildRouter(cfg, srv, admin)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}

// buildGateway returns the model gateway: OpenRouter when an API key is
// configured, otherwise the deterministic stub so local development works
// offline. Repo grading calls the gateway inline from the HTTP path.
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
