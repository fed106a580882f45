package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Tx is the transaction surface the cleanup service needs.
type Tx interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Beginner starts transactions for the cleanup service.
type Beginner interface {
	Begin(ctx context.Context) (Tx, error)
}

// PoolBeginner adapts pgxpool's Begin to the Beginner interface.
type PoolBeginner struct {
	Pool interface {
		Begin(ctx context.Context) (pgx.Tx, error)
	}
}

// Begin starts a transaction on the wrapped pool.
func (p PoolBeginner) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return tx, nil
}

// CleanupService handles data retention and cleanup
type CleanupService struct {
	DB            Beginner
	RetentionDays int
}

// NewCleanupService creates a new cleanup service
func NewCleanupService(db Beginner, retentionDays int) *CleanupService {
	if retentionDays <= 0 {
		retentionDays = 90 // default 90 days
	}
	return &CleanupService{DB: db, RetentionDays: retentionDays}
}

// CleanupOldData removes data older than retention period
func (s *CleanupService) CleanupOldData(ctx context.Context) error {
	cutoff := time.Now().AddDate(0, 0, -s.RetentionDays)

	// Start transaction for consistency
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return fmt.Errorf("cleanup begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Delete results of expired jobs first so the job delete never orphans them
	var deletedResults int64
	err = tx.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM results
			WHERE job_id IN (SELECT id FROM jobs WHERE created_at < $1)
			RETURNING 1
		)
		SELECT count(*) FROM deleted
	`, cutoff).Scan(&deletedResults)
	if err != nil {
		return fmt.Errorf("cleanup results: %w", err)
	}

	var deletedJobs int64
	err = tx.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM jobs WHERE created_at < $1 RETURNING 1
		)
		SELECT count(*) FROM deleted
	`, cutoff).Scan(&deletedJobs)
	if err != nil {
		return fmt.Errorf("cleanup jobs: %w", err)
	}

	// Uploads stay as long as any surviving job still references them
	var deletedUploads int64
	err = tx.QueryRow(ctx, `
		WITH deleted AS (
			DELETE FROM uploads
			WHERE created_at < $1
			AND NOT EXISTS (SELECT 1 FROM jobs WHERE uploads.id = ANY(jobs.file_ids))
			RETURNING 1
		)
		SELECT count(*) FROM deleted
	`, cutoff).Scan(&deletedUploads)
	if err != nil {
		return fmt.Errorf("cleanup uploads: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("cleanup commit: %w", err)
	}

	slog.Info("data cleanup completed",
		slog.Int64("deleted_jobs", deletedJobs),
		slog.Int64("deleted_results", deletedResults),
		slog.Int64("deleted_uploads", deletedUploads),
		slog.Time("cutoff", cutoff),
	)

	return nil
}

// RunPeriodic starts a periodic cleanup job
func (s *CleanupService) RunPeriodic(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 24 * time.Hour // daily by default
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Run initial cleanup
	if err := s.CleanupOldData(ctx); err != nil {
		slog.Error("initial cleanup failed", slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup service stopping")
			return
		case <-ticker.C:
			if err := s.CleanupOldData(ctx); err != nil {
				slog.Error("periodic cleanup failed", slog.Any("error", err))
			}
		}
	}
}
