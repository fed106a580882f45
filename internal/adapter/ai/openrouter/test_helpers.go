// Package openrouter provides test helpers for the gateway adapter.
package openrouter

import (
	"github.com/fairyhunter13/assignment-grader/internal/config"
)

// NewTestClient creates a client with test-appropriate backoff configuration.
func NewTestClient(cfg config.Config) *Client {
	// Override the config to use test environment
	cfg.AppEnv = "test"
	return New(cfg, nil)
}
