package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/domain/mocks"
)

func TestNewStuckJobSweeper(t *testing.T) {
	assert.Nil(t, NewStuckJobSweeper(nil, time.Minute, time.Minute))

	s := NewStuckJobSweeper(mocks.NewMockJobRepository(t), 0, 0)
	require.NotNil(t, s)
	assert.Equal(t, 3*time.Minute, s.maxAge)
	assert.Equal(t, time.Minute, s.every)
}

func TestSweepOnceMarksOldProcessingJobsFailed(t *testing.T) {
	repo := mocks.NewMockJobRepository(t)
	old := domain.Job{ID: "job-old", Status: domain.JobProcessing, UpdatedAt: time.Now().Add(-10 * time.Minute)}
	fresh := domain.Job{ID: "job-fresh", Status: domain.JobProcessing, UpdatedAt: time.Now()}

	repo.On("ListWithFilters", mock.Anything, 0, 100, "", string(domain.JobProcessing)).
		Return([]domain.Job{old, fresh}, nil).Once()
	repo.On("UpdateStatus", mock.Anything, "job-old", domain.JobFailed, mock.AnythingOfType("*string")).
		Return(nil).Once()

	s := NewStuckJobSweeper(repo, 3*time.Minute, time.Minute)
	s.sweepOnce(context.Background())

	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, "job-fresh", mock.Anything, mock.Anything)
}

func TestSweepOncePagesThroughAllProcessingJobs(t *testing.T) {
	repo := mocks.NewMockJobRepository(t)

	page1 := make([]domain.Job, 100)
	for i := range page1 {
		page1[i] = domain.Job{ID: "fresh", Status: domain.JobProcessing, UpdatedAt: time.Now()}
	}
	old := domain.Job{ID: "job-stuck", Status: domain.JobProcessing, UpdatedAt: time.Now().Add(-time.Hour)}

	repo.On("ListWithFilters", mock.Anything, 0, 100, "", string(domain.JobProcessing)).
		Return(page1, nil).Once()
	repo.On("ListWithFilters", mock.Anything, 100, 100, "", string(domain.JobProcessing)).
		Return([]domain.Job{old}, nil).Once()
	repo.On("UpdateStatus", mock.Anything, "job-stuck", domain.JobFailed, mock.AnythingOfType("*string")).
		Return(nil).Once()

	s := NewStuckJobSweeper(repo, 3*time.Minute, time.Minute)
	s.sweepOnce(context.Background())
}

func TestSweepOnceStopsWhenListingFails(t *testing.T) {
	repo := mocks.NewMockJobRepository(t)
	repo.On("ListWithFilters", mock.Anything, 0, 100, "", string(domain.JobProcessing)).
		Return(nil, assert.AnError).Once()

	s := NewStuckJobSweeper(repo, 3*time.Minute, time.Minute)
	s.sweepOnce(context.Background())

	repo.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	repo := mocks.NewMockJobRepository(t)
	repo.On("ListWithFilters", mock.Anything, 0, 100, "", string(domain.JobProcessing)).
		Return(nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewStuckJobSweeper(repo, time.Minute, time.Minute)
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
