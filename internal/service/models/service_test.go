package models

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCatalogServer(t *testing.T, calls *int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(calls, 1)
		if r.URL.Path != "/models" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Fatalf("unexpected auth header: %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"id": "openai/gpt-4o-mini", "name": "GPT-4o Mini"},
				{"id": "meta-llama/llama-3.1-8b-instruct", "name": "Llama 3.1 8B"},
			},
		})
	}))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func TestList_FetchesAndCaches(t *testing.T) {
	var calls int64
	ts := newCatalogServer(t, &calls)
	defer ts.Close()

	mr, rdb := newTestRedis(t)
	svc := NewService("test-key", ts.URL, rdb, time.Hour)

	ctx := context.Background()
	models, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	assert.Equal(t, "openai/gpt-4o-mini", models[0].ID)
	assert.Equal(t, "GPT-4o Mini", models[0].Name)

	// Second call must be served from cache.
	again, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, models, again)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))

	// Cache entry carries the configured TTL.
	assert.True(t, mr.Exists("models:catalog"))
	assert.Greater(t, mr.TTL("models:catalog"), time.Duration(0))
}

func TestList_CacheExpiryTriggersRefetch(t *testing.T) {
	var calls int64
	ts := newCatalogServer(t, &calls)
	defer ts.Close()

	mr, rdb := newTestRedis(t)
	svc := NewService("test-key", ts.URL, rdb, time.Minute)

	ctx := context.Background()
	_, err := svc.List(ctx)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = svc.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestList_NoRedisStillServes(t *testing.T) {
	var calls int64
	ts := newCatalogServer(t, &calls)
	defer ts.Close()

	svc := NewService("test-key", ts.URL, nil, time.Hour)

	models, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 2)
}

func TestList_CorruptCacheEntryRefetches(t *testing.T) {
	var calls int64
	ts := newCatalogServer(t, &calls)
	defer ts.Close()

	mr, rdb := newTestRedis(t)
	require.NoError(t, mr.Set("models:catalog", "{not json"))

	svc := NewService("test-key", ts.URL, rdb, time.Hour)

	models, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, models, 2)
	assert.Equal(t, int64(1), atomic.LoadInt64(&calls))
}

func TestRefresh_DropsCache(t *testing.T) {
	var calls int64
	ts := newCatalogServer(t, &calls)
	defer ts.Close()

	_, rdb := newTestRedis(t)
	svc := NewService("test-key", ts.URL, rdb, time.Hour)

	ctx := context.Background()
	_, err := svc.List(ctx)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), atomic.LoadInt64(&calls))
}

func TestList_UpstreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantMsg string
	}{
		{"rate limited", http.StatusTooManyRequests, "rate limited"},
		{"auth failure", http.StatusUnauthorized, "authentication failed"},
		{"server error", http.StatusInternalServerError, "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer ts.Close()

			svc := NewService("test-key", ts.URL, nil, time.Hour)
			_, err := svc.List(context.Background())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}
