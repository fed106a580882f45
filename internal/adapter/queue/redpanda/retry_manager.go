package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// DLQEnqueuer publishes serialized DLQ jobs to the dead-letter topic.
// *Producer satisfies it.
type DLQEnqueuer interface {
	EnqueueDLQ(ctx context.Context, jobID string, dlqData []byte) error
}

// RetryManager handles automatic retries and DLQ management for failed grade
// jobs.
type RetryManager struct {
	producer    domain.Queue
	dlqProducer DLQEnqueuer
	jobs        domain.JobRepository
	config      domain.RetryConfig
}

// NewRetryManager creates a new retry manager.
func NewRetryManager(producer domain.Queue, dlqProducer DLQEnqueuer, jobs domain.JobRepository, config domain.RetryConfig) *RetryManager {
	return &RetryManager{
		producer:    producer,
		dlqProducer: dlqProducer,
		jobs:        jobs,
		config:      config,
	}
}

// RetryJob attempts to retry a failed job.
func (rm *RetryManager) RetryJob(ctx context.Context, jobID string, retryInfo *domain.RetryInfo, payload domain.GradeTaskPayload) error {
	// Upstream rate-limit and timeout failures bypass inline retries and go
	// straight to the DLQ so the DLQ consumer can enforce a cooling window
	// before requeueing. Retrying immediately would hammer a model provider
	// that has already signaled backpressure.
	code := classifyFailureCode(retryInfo.LastError)
	if code == "UPSTREAM_RATE_LIMIT" || code == "UPSTREAM_TIMEOUT" {
		reason := retryInfo.LastError
		slog.Info("routing upstream failure to DLQ for cooldown",
			slog.String("job_id", jobID),
			slog.String("error_code", code),
			slog.String("last_error", retryInfo.LastError))
		return rm.moveToDLQ(ctx, jobID, payload, retryInfo, reason)
	}

	if !retryInfo.ShouldRetry(fmt.Errorf("%s", retryInfo.LastError), rm.config) {
		slog.Info("job should not be retried, moving to DLQ",
			slog.String("job_id", jobID),
			slog.String("last_error", retryInfo.LastError),
			slog.String("retry_status", string(retryInfo.RetryStatus)))
		return rm.moveToDLQ(ctx, jobID, payload, retryInfo, "job should not be retried")
	}

	if retryInfo.AttemptCount >= rm.config.MaxRetries {
		slog.Info("max retries reached, moving to DLQ",
			slog.String("job_id", jobID),
			slog.Int("attempt_count", retryInfo.AttemptCount),
			slog.Int("max_retries", rm.config.MaxRetries))
		return rm.moveToDLQ(ctx, jobID, payload, retryInfo, "max retries reached")
	}

	delay := retryInfo.CalculateNextRetryDelay(rm.config)
	retryInfo.NextRetryAt = time.Now().Add(delay)

	retryInfo.MarkAsRetrying()
	retryInfo.UpdateRetryAttempt(nil)

	// Flip the job back to queued so the API reports it as pending again.
	if err := rm.jobs.UpdateStatus(ctx, jobID, domain.JobQueued, nil); err != nil {
		slog.Error("failed to update job status for retry",
			slog.String("job_id", jobID),
			slog.Any("error", err))
		return fmt.Errorf("update job status for retry: %w", err)
	}

	go rm.scheduleRetry(ctx, jobID, payload, retryInfo)

	slog.Info("job scheduled for retry",
		slog.String("job_id", jobID),
		slog.Int("attempt", retryInfo.AttemptCount),
		slog.Duration("delay", delay),
		slog.Time("next_retry_at", retryInfo.NextRetryAt))

	return nil
}

// scheduleRetry re-enqueues a job after its backoff delay has elapsed.
func (rm *RetryManager) scheduleRetry(ctx context.Context, jobID string, payload domain.GradeTaskPayload, retryInfo *domain.RetryInfo) {
	delay := retryInfo.CalculateNextRetryDelay(rm.config)
	time.Sleep(delay)

	job, err := rm.jobs.Get(ctx, jobID)
	if err != nil {
		slog.Error("failed to get job for retry",
			slog.String("job_id", jobID),
			slog.Any("error", err))
		return
	}

	// Skip if some other path already moved the job on.
	if job.Status != domain.JobQueued {
		slog.Info("job status changed, skipping retry",
			slog.String("job_id", jobID),
			slog.String("current_status", string(job.Status)))
		return
	}

	_, err = rm.producer.EnqueueGrade(ctx, payload)
	if err != nil {
		slog.Error("failed to enqueue job for retry",
			slog.String("job_id", jobID),
			slog.Any("error", err))

		retryInfo.MarkAsExhausted()
		_ = rm.jobs.UpdateStatus(ctx, jobID, domain.JobFailed, ptr("failed to enqueue for retry"))
		return
	}

	slog.Info("job enqueued for retry",
		slog.String("job_id", jobID),
		slog.Int("attempt", retryInfo.AttemptCount))
}

// moveToDLQ publishes the job to the dead-letter topic and marks it failed.
func (rm *RetryManager) moveToDLQ(ctx context.Context, jobID string, payload domain.GradeTaskPayload, retryInfo *domain.RetryInfo, reason string) error {
	dlqJob := domain.DLQJob{
		JobID:            jobID,
		OriginalPayload:  payload,
		RetryInfo:        *retryInfo,
		FailureReason:    reason,
		MovedToDLQAt:     time.Now(),
		CanBeReprocessed: true,
	}

	retryInfo.MarkAsDLQ()

	dlqData, err := json.Marshal(dlqJob)
	if err != nil {
		slog.Error("failed to marshal DLQ job",
			slog.String("job_id", jobID),
			slog.Any("error", err))
		return fmt.Errorf("marshal DLQ job: %w", err)
	}

	if err := rm.dlqProducer.EnqueueDLQ(ctx, jobID, dlqData); err != nil {
		slog.Error("failed to enqueue job to DLQ",
			slog.String("job_id", jobID),
			slog.Any("error", err))
		return fmt.Errorf("enqueue to DLQ: %w", err)
	}

	if err := rm.jobs.UpdateStatus(ctx, jobID, domain.JobFailed, &reason); err != nil {
		slog.Error("failed to update job status to failed",
			slog.String("job_id", jobID),
			slog.Any("error", err))
	}

	slog.Info("job moved to DLQ",
		slog.String("job_id", jobID),
		slog.String("reason", reason),
		slog.Int("attempt_count", retryInfo.AttemptCount),
		slog.String("retry_status", string(retryInfo.RetryStatus)))

	return nil
}

// ProcessDLQJob decides whether a dead-lettered job can go back onto the main
// topic, enforcing a cooling window for upstream rate-limit/timeout failures.
func (rm *RetryManager) ProcessDLQJob(ctx context.Context, dlqJob domain.DLQJob) error {
	if !dlqJob.CanBeReprocessed {
		slog.Info("DLQ job cannot be reprocessed",
			slog.String("job_id", dlqJob.JobID),
			slog.String("failure_reason", dlqJob.FailureReason))
		return fmt.Errorf("DLQ job cannot be reprocessed")
	}

	loweredReason := strings.ToLower(dlqJob.FailureReason)
	loweredError := strings.ToLower(dlqJob.RetryInfo.LastError)
	combined := loweredReason + " " + loweredError
	isRateLimitOrTimeout := strings.Contains(combined, "rate limit") ||
		strings.Contains(combined, "timeout") ||
		strings.Contains(combined, "deadline exceeded")
	const rateLimitDLQCooldown = 30 * time.Second
	if isRateLimitOrTimeout {
		cooldownUntil := dlqJob.MovedToDLQAt.Add(rateLimitDLQCooldown)
		if delay := time.Until(cooldownUntil); delay > 0 {
			slog.Info("DLQ cooling in effect for upstream rate limit/timeout",
				slog.String("job_id", dlqJob.JobID),
				slog.Duration("cooling_remaining", delay))
			go func(job domain.DLQJob, d time.Duration) {
				time.Sleep(d)
				if err := rm.requeueFromDLQ(context.Background(), job); err != nil {
					slog.Error("failed to requeue cooled DLQ job",
						slog.String("job_id", job.JobID),
						slog.Any("error", err))
				}
			}(dlqJob, delay)
			return nil
		}
	}

	return rm.requeueFromDLQ(ctx, dlqJob)
}

// requeueFromDLQ flips the job back to queued and enqueues the original
// payload on the main grade topic.
func (rm *RetryManager) requeueFromDLQ(ctx context.Context, dlqJob domain.DLQJob) error {
	if err := rm.jobs.UpdateStatus(ctx, dlqJob.JobID, domain.JobQueued, nil); err != nil {
		slog.Error("failed to update job status for DLQ reprocessing",
			slog.String("job_id", dlqJob.JobID),
			slog.Any("error", err))
		return fmt.Errorf("update job status for DLQ reprocessing: %w", err)
	}

	_, err := rm.producer.EnqueueGrade(ctx, dlqJob.OriginalPayload)
	if err != nil {
		slog.Error("failed to enqueue DLQ job for reprocessing",
			slog.String("job_id", dlqJob.JobID),
			slog.Any("error", err))
		return fmt.Errorf("enqueue DLQ job for reprocessing: %w", err)
	}

	slog.Info("DLQ job enqueued for reprocessing",
		slog.String("job_id", dlqJob.JobID),
		slog.String("original_failure_reason", dlqJob.FailureReason))

	return nil
}

// GetRetryStats summarizes job counts by status for diagnostics.
func (rm *RetryManager) GetRetryStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{}, 4)
	for _, status := range []domain.JobStatus{domain.JobQueued, domain.JobProcessing, domain.JobCompleted, domain.JobFailed} {
		n, err := rm.jobs.CountByStatus(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("count jobs by status %q: %w", status, err)
		}
		stats[string(status)] = n
	}
	return stats, nil
}

func ptr(s string) *string {
	return &s
}
