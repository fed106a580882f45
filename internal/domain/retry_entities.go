package domain

import (
	"math"
	"strings"
	"time"
)

// RetryStatus represents the retry state of a grading job.
type RetryStatus string

const (
	// RetryStatusNone indicates no retries have been attempted.
	RetryStatusNone RetryStatus = "none"
	// RetryStatusRetrying indicates the job is being retried.
	RetryStatusRetrying RetryStatus = "retrying"
	// RetryStatusExhausted indicates all retries have been exhausted.
	RetryStatusExhausted RetryStatus = "exhausted"
	// RetryStatusDLQ indicates the job has been moved to the dead letter queue.
	RetryStatusDLQ RetryStatus = "dlq"
)

// RetryConfig defines retry behavior for queue-level job processing.
type RetryConfig struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// Jitter adds randomness to spread retries under load.
	Jitter bool
	// RetryableErrors lists substrings of errors worth retrying.
	RetryableErrors []string
	// NonRetryableErrors lists substrings of errors that must not retry.
	NonRetryableErrors []string
}

// DefaultRetryConfig returns the default queue retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
		RetryableErrors: []string{
			"context deadline exceeded",
			"connection refused",
			"timeout",
			"temporary failure",
			"rate limited",
			"upstream timeout",
			"upstream rate limit",
		},
		NonRetryableErrors: []string{
			"invalid argument",
			"not found",
			"conflict",
			"schema invalid",
			"authentication failed",
			"authorization failed",
		},
	}
}

// RetryInfo tracks retry attempts for one job.
type RetryInfo struct {
	AttemptCount  int
	MaxAttempts   int
	LastAttemptAt time.Time
	NextRetryAt   time.Time
	RetryStatus   RetryStatus
	LastError     string
	ErrorHistory  []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ShouldRetry reports whether the job should be retried for err. Retryable
// substrings win over non-retryable ones; unknown errors default to retryable.
func (ri *RetryInfo) ShouldRetry(err error, config RetryConfig) bool {
	if ri.AttemptCount >= config.MaxRetries {
		return false
	}
	if ri.RetryStatus == RetryStatusDLQ {
		return false
	}
	errorStr := err.Error()
	for _, retryable := range config.RetryableErrors {
		if strings.Contains(errorStr, retryable) {
			return true
		}
	}
	for _, nonRetryable := range config.NonRetryableErrors {
		if strings.Contains(errorStr, nonRetryable) {
			return false
		}
	}
	return true
}

// CalculateNextRetryDelay returns the exponential backoff delay for the next
// attempt, capped at MaxDelay, with 10% jitter when enabled.
func (ri *RetryInfo) CalculateNextRetryDelay(config RetryConfig) time.Duration {
	delay := time.Duration(float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(ri.AttemptCount)))
	if delay > config.MaxDelay {
		delay = config.MaxDelay
	}
	if config.Jitter {
		delay += time.Duration(float64(delay) * 0.1)
	}
	return delay
}

// UpdateRetryAttempt records the outcome of one attempt.
func (ri *RetryInfo) UpdateRetryAttempt(err error) {
	ri.AttemptCount++
	ri.LastAttemptAt = time.Now()
	ri.UpdatedAt = time.Now()
	if err != nil {
		ri.LastError = err.Error()
		ri.ErrorHistory = append(ri.ErrorHistory, err.Error())
	}
}

// MarkAsExhausted marks the retry info as exhausted.
func (ri *RetryInfo) MarkAsExhausted() {
	ri.RetryStatus = RetryStatusExhausted
	ri.UpdatedAt = time.Now()
}

// MarkAsDLQ marks the retry info as moved to the dead letter queue.
func (ri *RetryInfo) MarkAsDLQ() {
	ri.RetryStatus = RetryStatusDLQ
	ri.UpdatedAt = time.Now()
}

// MarkAsRetrying marks the retry info as currently retrying.
func (ri *RetryInfo) MarkAsRetrying() {
	ri.RetryStatus = RetryStatusRetrying
	ri.UpdatedAt = time.Now()
}

// DLQJob represents a grading job that exhausted its retries.
type DLQJob struct {
	JobID           string
	OriginalPayload GradeTaskPayload
	RetryInfo       RetryInfo
	FailureReason   string
	MovedToDLQAt    time.Time
	// CanBeReprocessed marks jobs safe to replay from the DLQ.
	CanBeReprocessed bool
}
