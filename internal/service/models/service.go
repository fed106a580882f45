// Package models serves the model catalog behind GET /v1/models. The
// OpenRouter /models listing is cached in Redis so repeated catalog reads do
// not hit the provider; Redis failures fall through to a live fetch.
package models

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Model is one catalog entry as returned to API clients.
type Model struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// catalogResponse mirrors the OpenRouter /models payload.
type catalogResponse struct {
	Data []Model `json:"data"`
}

const cacheKey = "models:catalog"

// Service fetches and caches the model catalog.
type Service struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	rdb        *redis.Client
	ttl        time.Duration
}

// NewService creates a catalog service. rdb may be nil, in which case every
// List call fetches from the API.
func NewService(apiKey, baseURL string, rdb *redis.Client, ttl time.Duration) *Service {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("OpenRouter %s %s", r.Method, r.URL.Path)
		}))
	return &Service{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
		rdb:        rdb,
		ttl:        ttl,
	}
}

// List returns the model catalog, preferring the Redis cache.
func (s *Service) List(ctx context.Context) ([]Model, error) {
	if cached, ok := s.fromCache(ctx); ok {
		slog.Debug("serving model catalog from cache", slog.Int("count", len(cached)))
		return cached, nil
	}

	models, err := s.fetchFromAPI(ctx)
	if err != nil {
		return nil, err
	}
	s.storeCache(ctx, models)
	return models, nil
}

// Refresh drops the cached catalog and fetches a fresh copy.
func (s *Service) Refresh(ctx context.Context) ([]Model, error) {
	if s.rdb != nil {
		if err := s.rdb.Del(ctx, cacheKey).Err(); err != nil {
			slog.Warn("failed to drop model catalog cache", slog.Any("error", err))
		}
	}
	return s.List(ctx)
}

func (s *Service) fromCache(ctx context.Context) ([]Model, bool) {
	if s.rdb == nil {
		return nil, false
	}
	raw, err := s.rdb.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Warn("model catalog cache read failed", slog.Any("error", err))
		}
		return nil, false
	}
	var models []Model
	if err := json.Unmarshal(raw, &models); err != nil {
		slog.Warn("model catalog cache entry corrupt, refetching", slog.Any("error", err))
		return nil, false
	}
	return models, true
}

func (s *Service) storeCache(ctx context.Context, models []Model) {
	if s.rdb == nil {
		return
	}
	raw, err := json.Marshal(models)
	if err != nil {
		return
	}
	if err := s.rdb.Set(ctx, cacheKey, raw, s.ttl).Err(); err != nil {
		slog.Warn("model catalog cache write failed", slog.Any("error", err))
	}
}

func (s *Service) fetchFromAPI(ctx context.Context) ([]Model, error) {
	url := s.baseURL + "/models"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("op=models.fetch: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		slog.Error("model catalog request failed", slog.String("url", url), slog.Any("error", err))
		return nil, fmt.Errorf("op=models.fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		slog.Error("model catalog returned non-200",
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)))
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return nil, fmt.Errorf("op=models.fetch: catalog rate limited (429)")
		case http.StatusUnauthorized:
			return nil, fmt.Errorf("op=models.fetch: catalog authentication failed (401)")
		}
		return nil, fmt.Errorf("op=models.fetch: catalog status %d", resp.StatusCode)
	}

	var out catalogResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("op=models.fetch: decode: %w", err)
	}

	slog.Info("fetched model catalog",
		slog.Int("count", len(out.Data)),
		slog.Duration("duration", time.Since(start)))
	return out.Data, nil
}
