package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// StuckJobSweeper fails grading jobs that sat in processing past the maximum
// age. A consumer crash between claiming a task and writing the result leaves
// such rows behind; failing them stops clients from polling a job that will
// never finish. The read path never flips status itself.
type StuckJobSweeper struct {
	jobs   domain.JobRepository
	maxAge time.Duration
	every  time.Duration
}

// NewStuckJobSweeper builds a sweeper. Non-positive durations fall back to a
// 3 minute age limit checked every minute.
func NewStuckJobSweeper(jobs domain.JobRepository, maxAge, every time.Duration) *StuckJobSweeper {
	if jobs == nil {
		return nil
	}
	if maxAge <= 0 {
		maxAge = 3 * time.Minute
	}
	if every <= 0 {
		every = time.Minute
	}
	return &StuckJobSweeper{jobs: jobs, maxAge: maxAge, every: every}
}

// Run sweeps once immediately and then on every tick until the context ends.
func (s *StuckJobSweeper) Run(ctx context.Context) {
	if s == nil || s.jobs == nil {
		return
	}
	ticker := time.NewTicker(s.every)
	defer ticker.Stop()

	s.sweepOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Info("stuck job sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *StuckJobSweeper) sweepOnce(ctx context.Context) {
	ctx, span := otel.Tracer("jobs.sweeper").Start(ctx, "StuckJobSweeper.sweepOnce")
	defer span.End()

	cutoff := time.Now().Add(-s.maxAge)
	const pageSize = 100

	checked, failed := 0, 0
	for offset := 0; ; offset += pageSize {
		jobs, err := s.jobs.ListWithFilters(ctx, offset, pageSize, "", string(domain.JobProcessing))
		if err != nil {
			span.RecordError(err)
			slog.Error("stuck job sweep failed to list jobs", slog.Any("error", err))
			return
		}
		checked += len(jobs)
		if len(jobs) == 0 {
			break
		}

		for _, j := range jobs {
			if !j.UpdatedAt.Before(cutoff) {
				continue
			}
			msg := fmt.Sprintf("job processing exceeded maximum age %v; marked failed by sweeper", s.maxAge)
			if err := s.jobs.UpdateStatus(ctx, j.ID, domain.JobFailed, &msg); err != nil {
				slog.Error("stuck job sweep failed to update job status",
					slog.String("job_id", j.ID), slog.Any("error", err))
				continue
			}
			failed++
			slog.Warn("stuck job marked failed",
				slog.String("job_id", j.ID),
				slog.Time("updated_at", j.UpdatedAt))
		}

		if len(jobs) < pageSize {
			break
		}
	}

	span.SetAttributes(
		attribute.Int("jobs.checked", checked),
		attribute.Int("jobs.marked_failed", failed),
	)
	if failed > 0 {
		slog.Info("stuck job sweep complete",
			slog.Int("checked", checked), slog.Int("marked_failed", failed))
	}
}
