package openrouter

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/fairyhunter13/assignment-grader/internal/service/ratelimiter"
)

func newTestLuaLimiter(t *testing.T) (*ratelimiter.RedisLuaLimiter, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	limiter := ratelimiter.NewRedisLuaLimiter(rdb, nil)

	cleanup := func() {
		_ = rdb.Close()
		mr.Close()
	}

	return limiter, cleanup
}

func TestUpdateLimiterFromRetryAfter_ConfiguresBucket(t *testing.T) {
	limiter, cleanup := newTestLuaLimiter(t)
	defer cleanup()

	c := &Client{limiter: limiter}

	apiKey := "test-openrouter-key" //nolint:gosec // Test credential.
	d := 10 * time.Second
	c.updateLimiterFromRetryAfter(apiKey, d)

	ctx := context.Background()
	bucketKey := openRouterBucketKey(apiKey)

	allowed, retryAfter, err := limiter.Allow(ctx, bucketKey, 1)
	if err != nil {
		t.Fatalf("unexpected error on first allowed call: %v", err)
	}
	if !allowed {
		t.Fatalf("expected allowed=true on first call after configuration")
	}
	if retryAfter != 0 {
		t.Fatalf("expected retryAfter=0 on first call, got %v", retryAfter)
	}

	allowed, retryAfter, err = limiter.Allow(ctx, bucketKey, 1)
	if err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	if allowed {
		t.Fatalf("expected limiter to deny second call after single-capacity bucket is spent")
	}
	if retryAfter <= 0 {
		t.Fatalf("expected positive retryAfter from Retry-After-derived bucket, got %v", retryAfter)
	}
}

func TestUpdateLimiterFromRetryAfter_NilLimiterSafe(_ *testing.T) {
	c := &Client{}
	c.updateLimiterFromRetryAfter("key", 5*time.Second)
}

func TestOpenRouterBucketKey_Stable(t *testing.T) {
	a := openRouterBucketKey("key-a")
	b := openRouterBucketKey("key-a")
	if a != b {
		t.Fatalf("expected stable bucket key, got %q vs %q", a, b)
	}
	if a == openRouterBucketKey("key-b") {
		t.Fatalf("expected distinct keys for distinct credentials")
	}
	if a == "key-a" || len(a) == 0 {
		t.Fatalf("bucket key must not expose the raw credential: %q", a)
	}
}
