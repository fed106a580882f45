// Package openrouter implements the model gateway against the OpenRouter
// chat-completions API.
package openrouter

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"log/slog"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/assignment-grader/internal/adapter/observability"
	"github.com/fairyhunter13/assignment-grader/internal/config"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/grading"
	"github.com/fairyhunter13/assignment-grader/internal/service/ratelimiter"
)

// Client implements domain.ModelGateway using OpenRouter chat completions.
// All requests go to the single configured model; transient failures are
// retried with exponential backoff, auth and other client errors fail fast.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	counter *tokencount.Counter
	limiter ratelimiter.Limiter
}

// bucketConfigurer is implemented by limiters that support dynamic bucket
// reconfiguration from provider rate-limit feedback.
type bucketConfigurer interface {
	SetBucketConfig(key string, cfg ratelimiter.BucketConfig)
}

// New constructs an OpenRouter-backed gateway. limiter may be nil; when set it
// gates outbound calls before they reach the provider.
func New(cfg config.Config, limiter ratelimiter.Limiter) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("OpenRouter %s %s", r.Method, r.URL.Path)
		}))
	timeout := cfg.OpenRouterTimeout
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: timeout, Transport: transport},
		counter: tokencount.NewCounter(),
		limiter: limiter,
	}
}

// getBackoffConfig returns a configured ExponentialBackOff based on the current environment.
func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()

	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier

	return expo
}

// openRouterBucketKey derives the limiter bucket key for an API key without
// storing the key itself in Redis.
func openRouterBucketKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return "openrouter:" + hex.EncodeToString(sum[:8])
}

// updateLimiterFromRetryAfter reconfigures the local bucket so the next
// attempt waits out the provider's Retry-After window instead of hammering it.
func (c *Client) updateLimiterFromRetryAfter(apiKey string, retryAfter time.Duration) {
	if c.limiter == nil || retryAfter <= 0 {
		return
	}
	bc, ok := c.limiter.(bucketConfigurer)
	if !ok {
		return
	}
	bc.SetBucketConfig(openRouterBucketKey(apiKey), ratelimiter.BucketConfig{
		Capacity:   1,
		RefillRate: 1.0 / retryAfter.Seconds(),
	})
	slog.Info("configured limiter bucket from Retry-After",
		slog.String("provider", "openrouter"),
		slog.Duration("retry_after", retryAfter))
}

// Generate sends one chat-completion request and returns the raw model text.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if strings.TrimSpace(userPrompt) == "" {
		return "", fmt.Errorf("%w: empty prompt", domain.ErrInvalidArgument)
	}
	if c.cfg.OpenRouterAPIKey == "" {
		slog.Error("OpenRouter API key missing", slog.String("provider", "openrouter"))
		return "", fmt.Errorf("%w: OPENROUTER_API_KEY missing", domain.ErrInvalidArgument)
	}
	if systemPrompt == "" {
		systemPrompt = grading.SystemPrompt
	}

	model := c.cfg.OpenRouterModel
	endpoint := c.cfg.OpenRouterBaseURL + "/chat/completions"

	body := map[string]any{
		"model":       model,
		"temperature": 0.2,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	b, _ := json.Marshal(body)

	slog.Info("calling OpenRouter API",
		slog.String("provider", "openrouter"),
		slog.String("model", model),
		slog.Int("prompt_chars", len(userPrompt)))

	var out struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}

	bucketKey := openRouterBucketKey(c.cfg.OpenRouterAPIKey)
	op := func() error {
		if c.limiter != nil {
			allowed, retryAfter, lerr := c.limiter.Allow(ctx, bucketKey, 1)
			if lerr == nil && !allowed {
				slog.Warn("local rate limit hit, deferring attempt",
					slog.String("provider", "openrouter"),
					slog.Duration("retry_after", retryAfter))
				return fmt.Errorf("locally rate limited, retry after %s", retryAfter)
			}
		}

		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(b))
		r.Header.Set("Authorization", "Bearer "+c.cfg.OpenRouterAPIKey)
		r.Header.Set("Content-Type", "application/json")
		if c.cfg.OpenRouterReferer != "" {
			r.Header.Set("HTTP-Referer", c.cfg.OpenRouterReferer)
		}
		if c.cfg.OpenRouterTitle != "" {
			r.Header.Set("X-Title", c.cfg.OpenRouterTitle)
		}
		resp, err := c.hc.Do(r)
		observability.AIRequestsTotal.WithLabelValues("openrouter", "chat").Inc()
		observability.AIRequestDuration.WithLabelValues("openrouter", "chat").Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		bodyBytes, err := io.ReadAll(resp.Body)
		if err != nil {
			slog.Error("failed to read response body", slog.String("provider", "openrouter"), slog.Any("error", err))
			return err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			slog.Warn("ai provider rate limited",
				slog.String("provider", "openrouter"),
				slog.Int("status", resp.StatusCode),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")))
			if ra, perr := strconv.Atoi(resp.Header.Get("Retry-After")); perr == nil && ra > 0 {
				c.updateLimiterFromRetryAfter(c.cfg.OpenRouterAPIKey, time.Duration(ra)*time.Second)
			}
			return fmt.Errorf("%w: chat status 429", domain.ErrUpstreamRateLimit)
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			// Client error: non-retryable
			bodySnippet := string(bodyBytes)
			if len(bodySnippet) > 512 {
				bodySnippet = bodySnippet[:512]
			}
			slog.Warn("ai provider 4xx",
				slog.String("provider", "openrouter"),
				slog.Int("status", resp.StatusCode),
				slog.String("model", model),
				slog.String("endpoint", endpoint),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
				slog.String("body", bodySnippet))
			return backoff.Permanent(fmt.Errorf("%w: chat status %d", domain.ErrInvalidArgument, resp.StatusCode))
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			// 5xx and others: retryable
			bodySnippet := string(bodyBytes)
			if len(bodySnippet) > 512 {
				bodySnippet = bodySnippet[:512]
			}
			slog.Error("ai provider non-2xx",
				slog.String("provider", "openrouter"),
				slog.Int("status", resp.StatusCode),
				slog.String("model", model),
				slog.String("endpoint", endpoint),
				slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
				slog.String("body", bodySnippet))
			return fmt.Errorf("%w: chat status %d", domain.ErrUpstreamTimeout, resp.StatusCode)
		}
		if err := json.Unmarshal(bodyBytes, &out); err != nil {
			slog.Error("ai provider decode error",
				slog.String("provider", "openrouter"),
				slog.String("model", model),
				slog.Any("error", err))
			return err
		}
		return nil
	}

	expo := c.getBackoffConfig()
	bo := backoff.WithContext(expo, ctx)

	if err := backoff.Retry(op, bo); err != nil {
		slog.Error("OpenRouter API failed after retries",
			slog.String("provider", "openrouter"),
			slog.String("model", model),
			slog.Any("error", err))
		if errors.Is(err, domain.ErrInvalidArgument) ||
			errors.Is(err, domain.ErrUpstreamRateLimit) ||
			errors.Is(err, domain.ErrUpstreamTimeout) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}

	if len(out.Choices) == 0 {
		slog.Error("OpenRouter API returned empty choices", slog.String("provider", "openrouter"), slog.String("model", model))
		return "", errors.New("empty choices from model response")
	}

	content := out.Choices[0].Message.Content

	if out.Model != "" && out.Model != model {
		slog.Warn("model substitution detected",
			slog.String("requested_model", model),
			slog.String("actual_model", out.Model),
			slog.String("provider", "openrouter"))
	}

	c.recordTokenUsage(systemPrompt, userPrompt, content, model, out.Usage.PromptTokens, out.Usage.CompletionTokens)

	slog.Info("OpenRouter API call successful",
		slog.String("provider", "openrouter"),
		slog.String("model", model),
		slog.Int("content_chars", len(content)))
	return content, nil
}

// recordTokenUsage prefers provider-reported counts and falls back to a local
// tiktoken estimate when the response carried no usage block.
func (c *Client) recordTokenUsage(systemPrompt, userPrompt, content, model string, promptTokens, completionTokens int) {
	if promptTokens <= 0 && completionTokens <= 0 {
		usage, err := c.counter.CalculateUsage(systemPrompt, userPrompt, content, model, "openrouter")
		if err != nil {
			slog.Warn("token usage estimate failed", slog.String("model", model), slog.Any("error", err))
			return
		}
		promptTokens = usage.PromptTokens
		completionTokens = usage.CompletionTokens
	}
	observability.ObserveTokenUsage("openrouter", promptTokens, completionTokens)
}
