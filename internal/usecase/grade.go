// Package usecase contains application business logic services.
package usecase

import (
	"fmt"
	"time"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/observability"
)

// GradeService orchestrates job creation and queueing for grading.
type GradeService struct {
	Jobs    domain.JobRepository
	Queue   domain.Queue
	Uploads domain.UploadRepository
	// DefaultTitle substitutes for requests that omit the assignment title.
	DefaultTitle string
}

// NewGradeService constructs a GradeService with its dependencies.
func NewGradeService(j domain.JobRepository, q domain.Queue, u domain.UploadRepository, defaultTitle string) GradeService {
	return GradeService{Jobs: j, Queue: q, Uploads: u, DefaultTitle: defaultTitle}
}

// Enqueue validates inputs, creates a queued job, and produces the grading
// task. Every referenced upload must exist before a job row is written, so a
// bad file id fails the request instead of the job. When an idempotency key
// matches an earlier job, that job's id is returned and nothing is enqueued.
func (s GradeService) Enqueue(ctx domain.Context, title, description string, fileIDs []string, idemKey string) (string, error) {
	if description == "" {
		return "", fmt.Errorf("%w: description required", domain.ErrInvalidArgument)
	}
	if len(fileIDs) == 0 {
		return "", fmt.Errorf("%w: file_ids required", domain.ErrInvalidArgument)
	}
	if idemKey != "" {
		if j, err := s.Jobs.FindByIdempotencyKey(ctx, idemKey); err == nil && j.ID != "" {
			return j.ID, nil
		}
	}
	if _, err := s.Uploads.GetMany(ctx, fileIDs); err != nil {
		return "", fmt.Errorf("op=usecase.Enqueue: %w", err)
	}
	if title == "" {
		title = s.DefaultTitle
	}

	j := domain.Job{Status: domain.JobQueued, FileIDs: fileIDs, CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()}
	if idemKey != "" {
		j.IdemKey = &idemKey
	}
	jobID, err := s.Jobs.Create(ctx, j)
	if err != nil {
		return "", err
	}

	payload := domain.GradeTaskPayload{
		JobID:       jobID,
		Title:       title,
		Description: description,
		FileIDs:     fileIDs,
		RequestID:   observability.RequestIDFromContext(ctx),
	}
	if _, err := s.Queue.EnqueueGrade(ctx, payload); err != nil {
		_ = s.Jobs.UpdateStatus(ctx, jobID, domain.JobFailed, ptr("enqueue failed"))
		return "", err
	}
	return jobID, nil
}

func ptr(s string) *string { return &s }
