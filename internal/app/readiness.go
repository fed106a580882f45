package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fairyhunter13/assignment-grader/internal/config"
)

// Pinger is the minimal slice of a database pool used by readiness.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPingResult mirrors the result of a go-redis Ping call.
type RedisPingResult interface{ Err() error }

// RedisClient is the minimal slice of a Redis client used by readiness.
type RedisClient interface{ Ping(ctx context.Context) RedisPingResult }

// Check is one readiness probe.
type Check = func(ctx context.Context) error

// BuildReadinessChecks returns the db, redis and tika probes backing /readyz.
// A nil dependency yields a probe that always fails, so a misconfigured
// instance never reports ready.
func BuildReadinessChecks(cfg config.Config, pool Pinger, rdb RedisClient) (db, redis, tika Check) {
	db = func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	redis = func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
	tika = func(ctx context.Context) error {
		if cfg.TikaURL == "" {
			return fmt.Errorf("tika url not configured")
		}
		client := &http.Client{Timeout: 2 * time.Second}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.TikaURL+"/version", nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("tika status %d", resp.StatusCode)
		}
		return nil
	}
	return db, redis, tika
}
