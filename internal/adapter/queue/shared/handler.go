// Package shared provides the grading pipeline shared by queue consumers.
package shared

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/observability"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/extract"
	"github.com/fairyhunter13/assignment-grader/internal/grading"
)

// Limits carries the character budgets applied before prompting.
type Limits struct {
	// PerFileChars truncates each submission before question detection.
	PerFileChars int
	// BatchChars caps the combined content packed into one model call.
	BatchChars int
}

// HandleGrade processes one grading task with the given dependencies: it
// loads the referenced uploads, prepares them for prompting, runs the
// batched grading pipeline and stores the result. The job row moves
// queued -> processing -> completed/failed around the call.
func HandleGrade(
	ctx context.Context,
	jobs domain.JobRepository,
	uploads domain.UploadRepository,
	results domain.ResultRepository,
	gateway domain.ModelGateway,
	limits Limits,
	payload domain.GradeTaskPayload,
) error {
	tracer := otel.Tracer("queue.handler")
	ctx, span := tracer.Start(ctx, "HandleGrade")
	defer span.End()

	// Check for nil dependencies
	if jobs == nil {
		return fmt.Errorf("job repository is nil")
	}
	if uploads == nil {
		return fmt.Errorf("upload repository is nil")
	}
	if results == nil {
		return fmt.Errorf("result repository is nil")
	}
	if gateway == nil {
		return fmt.Errorf("model gateway is nil")
	}

	observability.StartProcessingJob("grade")

	if err := jobs.UpdateStatus(ctx, payload.JobID, domain.JobProcessing, nil); err != nil {
		slog.Error("failed to update job status to processing", slog.String("job_id", payload.JobID), slog.Any("error", err))
		observability.FailJob("grade")
		return fmt.Errorf("update job status: %w", err)
	}

	// All referenced uploads must resolve; a job never grades partial input.
	ups, err := uploads.GetMany(ctx, payload.FileIDs)
	if err != nil {
		slog.Error("failed to load uploaded files", slog.String("job_id", payload.JobID), slog.Any("error", err))
		observability.FailJob("grade")
		_ = jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, ptr("failed to load uploaded files"))
		return fmt.Errorf("load uploads: %w", err)
	}

	files := make([]extract.File, 0, len(ups))
	for _, u := range ups {
		files = append(files, extract.File{
			Filename:    u.Filename,
			DisplayName: u.Filename,
			FileType:    u.FileType,
			Content:     u.Text,
		})
	}
	prepared := extract.Prepare(files, limits.PerFileChars)

	slog.Info("grading submission files",
		slog.String("job_id", payload.JobID),
		slog.Int("files", len(prepared)))
	grader := grading.NewGrader(gateway, limits.BatchChars)
	outcome, err := grader.Grade(ctx, payload.Title, payload.Description, prepared)
	if err != nil {
		slog.Error("grading failed", slog.String("job_id", payload.JobID), slog.Any("error", err))
		observability.FailJob("grade")
		_ = jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, ptr("grading failed"))
		return fmt.Errorf("grade: %w", err)
	}

	// Store the result before flipping the status so a completed job always
	// has a readable result row.
	res := domain.Result{
		JobID:     payload.JobID,
		Summary:   outcome.Summary,
		Scores:    outcome.Scores,
		RawText:   outcome.RawText,
		CreatedAt: time.Now().UTC(),
	}
	if err := results.Upsert(ctx, res); err != nil {
		slog.Error("failed to store result", slog.String("job_id", payload.JobID), slog.Any("error", err))
		observability.FailJob("grade")
		_ = jobs.UpdateStatus(ctx, payload.JobID, domain.JobFailed, ptr("failed to store result"))
		return fmt.Errorf("store result: %w", err)
	}

	if err := jobs.UpdateStatus(ctx, payload.JobID, domain.JobCompleted, nil); err != nil {
		slog.Error("failed to update job status to completed", slog.String("job_id", payload.JobID), slog.Any("error", err))
		observability.FailJob("grade")
		return fmt.Errorf("update job status: %w", err)
	}

	percents := make([]*float64, 0, len(outcome.Scores))
	for _, s := range outcome.Scores {
		percents = append(percents, s.ScorePercent)
	}
	observability.ObserveGradingOutcome(percents)
	observability.CompleteJob("grade")
	slog.Info("job completed", slog.String("job_id", payload.JobID))
	return nil
}

// ptr returns a pointer to the given string.
func ptr(s string) *string { return &s }
