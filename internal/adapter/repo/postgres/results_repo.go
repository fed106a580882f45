package postgres

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// ResultRepo persists and loads grading results from PostgreSQL. Score
// entries are stored as one JSONB document per job.
type ResultRepo struct{ Pool PgxPool }

// NewResultRepo constructs a ResultRepo with the given pool.
func NewResultRepo(p PgxPool) *ResultRepo { return &ResultRepo{Pool: p} }

// Upsert inserts or updates a result by job_id.
func (r *ResultRepo) Upsert(ctx domain.Context, res domain.Result) error {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.Upsert")
	defer span.End()
	scores, err := json.Marshal(res.Scores)
	if err != nil {
		return fmt.Errorf("op=result.upsert_marshal: %w", err)
	}
	q := `INSERT INTO results (job_id, summary, scores, raw_text, created_at)
	VALUES ($1,$2,$3,$4,$5)
	ON CONFLICT (job_id)
	DO UPDATE SET summary=EXCLUDED.summary, scores=EXCLUDED.scores, raw_text=EXCLUDED.raw_text`
	_, err = r.Pool.Exec(ctx, q, res.JobID, res.Summary, scores, res.RawText, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=result.upsert: %w", err)
	}
	return nil
}

// GetByJobID loads a result by its job_id.
func (r *ResultRepo) GetByJobID(ctx domain.Context, jobID string) (domain.Result, error) {
	tracer := otel.Tracer("repo.results")
	ctx, span := tracer.Start(ctx, "results.GetByJobID")
	defer span.End()
	q := `SELECT job_id, summary, scores, raw_text, created_at FROM results WHERE job_id=$1`
	row := r.Pool.QueryRow(ctx, q, jobID)
	var res domain.Result
	var scores []byte
	if err := row.Scan(&res.JobID, &res.Summary, &scores, &res.RawText, &res.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Result{}, fmt.Errorf("op=result.get: %w", domain.ErrNotFound)
		}
		return domain.Result{}, fmt.Errorf("op=result.get: %w", err)
	}
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &res.Scores); err != nil {
			return domain.Result{}, fmt.Errorf("op=result.get_unmarshal: %w", err)
		}
	}
	return res, nil
}
