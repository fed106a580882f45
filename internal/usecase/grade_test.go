package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/domain/mocks"
	"github.com/fairyhunter13/assignment-grader/internal/observability"
	"github.com/fairyhunter13/assignment-grader/internal/usecase"
)

func setupGradeMocks(t *testing.T) (*mocks.MockJobRepository, *mocks.MockQueue, *mocks.MockUploadRepository) {
	return mocks.NewMockJobRepository(t), mocks.NewMockQueue(t), mocks.NewMockUploadRepository(t)
}

func TestGrade_Enqueue_Success(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	jobRepo, queue, uploadRepo := setupGradeMocks(t)

	uploadRepo.On("GetMany", mock.Anything, []string{"f1", "f2"}).
		Return([]domain.Upload{{ID: "f1"}, {ID: "f2"}}, nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j domain.Job) bool {
		return j.Status == domain.JobQueued && len(j.FileIDs) == 2 && j.IdemKey == nil
	})).Return("job-abc", nil)
	queue.On("EnqueueGrade", mock.Anything, mock.MatchedBy(func(p domain.GradeTaskPayload) bool {
		return p.JobID == "job-abc" && p.Title == "Quiz 1" && p.Description == "grade strictly" &&
			len(p.FileIDs) == 2
	})).Return("t-1", nil)

	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")
	jobID, err := svc.Enqueue(ctx, "Quiz 1", "grade strictly", []string{"f1", "f2"}, "")
	require.NoError(t, err)
	assert.Equal(t, "job-abc", jobID)
}

func TestGrade_Enqueue_DefaultTitleApplied(t *testing.T) {
	t.Parallel()
	jobRepo, queue, uploadRepo := setupGradeMocks(t)

	uploadRepo.On("GetMany", mock.Anything, mock.Anything).Return([]domain.Upload{{ID: "f1"}}, nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).Return("job-1", nil)
	queue.On("EnqueueGrade", mock.Anything, mock.MatchedBy(func(p domain.GradeTaskPayload) bool {
		return p.Title == "Grading Task"
	})).Return("t-1", nil)

	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")
	_, err := svc.Enqueue(context.Background(), "", "desc", []string{"f1"}, "")
	require.NoError(t, err)
}

func TestGrade_Enqueue_InvalidArgs(t *testing.T) {
	t.Parallel()
	jobRepo, queue, uploadRepo := setupGradeMocks(t)
	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")

	_, err := svc.Enqueue(context.Background(), "t", "", []string{"f1"}, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Enqueue(context.Background(), "t", "desc", nil, "")
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	jobRepo.AssertNotCalled(t, "Create")
	queue.AssertNotCalled(t, "EnqueueGrade")
}

func TestGrade_Enqueue_UnknownFileID(t *testing.T) {
	t.Parallel()
	jobRepo, queue, uploadRepo := setupGradeMocks(t)

	uploadRepo.On("GetMany", mock.Anything, []string{"missing"}).
		Return(nil, fmt.Errorf("op=upload.get_many: upload missing: %w", domain.ErrNotFound))

	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")
	_, err := svc.Enqueue(context.Background(), "t", "desc", []string{"missing"}, "")
	require.ErrorIs(t, err, domain.ErrNotFound)
	jobRepo.AssertNotCalled(t, "Create")
}

func TestGrade_Enqueue_Idempotency_ReturnsExistingJob(t *testing.T) {
	t.Parallel()
	jobRepo, queue, uploadRepo := setupGradeMocks(t)

	jobRepo.On("FindByIdempotencyKey", mock.Anything, "idem-1").
		Return(domain.Job{ID: "existing"}, nil)

	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")
	jobID, err := svc.Enqueue(context.Background(), "t", "desc", []string{"f1"}, "idem-1")
	require.NoError(t, err)
	assert.Equal(t, "existing", jobID)

	// A replayed request touches neither the uploads nor the queue.
	uploadRepo.AssertNotCalled(t, "GetMany")
	queue.AssertNotCalled(t, "EnqueueGrade")
}

func TestGrade_Enqueue_IdemKeyStoredOnJob(t *testing.T) {
	t.Parallel()
	jobRepo, queue, uploadRepo := setupGradeMocks(t)

	jobRepo.On("FindByIdempotencyKey", mock.Anything, "idem-2").
		Return(domain.Job{}, fmt.Errorf("%w: no job for key", domain.ErrNotFound))
	uploadRepo.On("GetMany", mock.Anything, mock.Anything).Return([]domain.Upload{{ID: "f1"}}, nil)
	jobRepo.On("Create", mock.Anything, mock.MatchedBy(func(j domain.Job) bool {
		return j.IdemKey != nil && *j.IdemKey == "idem-2"
	})).Return("job-2", nil)
	queue.On("EnqueueGrade", mock.Anything, mock.Anything).Return("t-1", nil)

	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")
	jobID, err := svc.Enqueue(context.Background(), "t", "desc", []string{"f1"}, "idem-2")
	require.NoError(t, err)
	assert.Equal(t, "job-2", jobID)
}

func TestGrade_Enqueue_QueueFail_UpdatesJobFailed(t *testing.T) {
	t.Parallel()
	jobRepo, queue, uploadRepo := setupGradeMocks(t)

	uploadRepo.On("GetMany", mock.Anything, mock.Anything).Return([]domain.Upload{{ID: "f1"}}, nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).Return("job-abc", nil)
	queue.On("EnqueueGrade", mock.Anything, mock.Anything).Return("", errors.New("queue down"))
	jobRepo.On("UpdateStatus", mock.Anything, "job-abc", domain.JobFailed, mock.AnythingOfType("*string")).Return(nil)

	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")
	_, err := svc.Enqueue(context.Background(), "t", "desc", []string{"f1"}, "")
	require.Error(t, err)
}

func TestGrade_Enqueue_RequestIDCarriedIntoPayload(t *testing.T) {
	t.Parallel()
	jobRepo, queue, uploadRepo := setupGradeMocks(t)

	uploadRepo.On("GetMany", mock.Anything, mock.Anything).Return([]domain.Upload{{ID: "f1"}}, nil)
	jobRepo.On("Create", mock.Anything, mock.Anything).Return("job-9", nil)
	queue.On("EnqueueGrade", mock.Anything, mock.MatchedBy(func(p domain.GradeTaskPayload) bool {
		return p.RequestID == "req-9"
	})).Return("t-1", nil)

	ctx := observability.ContextWithRequestID(context.Background(), "req-9")
	svc := usecase.NewGradeService(jobRepo, queue, uploadRepo, "Grading Task")
	_, err := svc.Enqueue(ctx, "t", "desc", []string{"f1"}, "")
	require.NoError(t, err)
}
