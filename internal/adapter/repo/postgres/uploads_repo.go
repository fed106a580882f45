// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports for data persistence.
// The package provides type-safe database operations with
// connection pooling and transaction support.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// UploadRepo persists and loads uploads using a minimal pgx pool.
type UploadRepo struct{ Pool PgxPool }

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// NewUploadRepo constructs an UploadRepo with the given pool.
func NewUploadRepo(p PgxPool) *UploadRepo { return &UploadRepo{Pool: p} }

const uploadColumns = `id, text, filename, mime, file_type, extension, size, from_ocr, created_at`

// Create stores a new upload and returns its id (generates one if empty).
func (r *UploadRepo) Create(ctx domain.Context, u domain.Upload) (string, error) {
	tracer := otel.Tracer("repo.uploads")
	ctx, span := tracer.Start(ctx, "uploads.Create")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "uploads"),
	)
	id := u.ID
	if id == "" {
		id = uuid.New().String()
	}
	q := `INSERT INTO uploads (` + uploadColumns + `) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	_, err := r.Pool.Exec(ctx, q, id, u.Text, u.Filename, u.MIME, u.FileType, u.Extension, u.Size, u.FromOCR, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("op=upload.create: %w", err)
	}
	return id, nil
}

// Get loads an upload by id.
func (r *UploadRepo) Get(ctx domain.Context, id string) (domain.Upload, error) {
	tracer := otel.Tracer("repo.uploads")
	ctx, span := tracer.Start(ctx, "uploads.Get")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "uploads"),
	)
	q := `SELECT ` + uploadColumns + ` FROM uploads WHERE id=$1`
	row := r.Pool.QueryRow(ctx, q, id)
	var u domain.Upload
	if err := row.Scan(&u.ID, &u.Text, &u.Filename, &u.MIME, &u.FileType, &u.Extension, &u.Size, &u.FromOCR, &u.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return domain.Upload{}, fmt.Errorf("op=upload.get: %w", domain.ErrNotFound)
		}
		return domain.Upload{}, fmt.Errorf("op=upload.get: %w", err)
	}
	return u, nil
}

// GetMany loads uploads for the given ids, preserving input order. A missing
// id fails the whole load with ErrNotFound naming that id.
func (r *UploadRepo) GetMany(ctx domain.Context, ids []string) ([]domain.Upload, error) {
	tracer := otel.Tracer("repo.uploads")
	ctx, span := tracer.Start(ctx, "uploads.GetMany")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "uploads"),
	)
	if len(ids) == 0 {
		return nil, nil
	}
	q := `SELECT ` + uploadColumns + ` FROM uploads WHERE id = ANY($1)`
	rows, err := r.Pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("op=upload.get_many: %w", err)
	}
	defer rows.Close()
	byID := make(map[string]domain.Upload, len(ids))
	for rows.Next() {
		var u domain.Upload
		if err := rows.Scan(&u.ID, &u.Text, &u.Filename, &u.MIME, &u.FileType, &u.Extension, &u.Size, &u.FromOCR, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=upload.get_many_scan: %w", err)
		}
		byID[u.ID] = u
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=upload.get_many_rows: %w", err)
	}
	out := make([]domain.Upload, 0, len(ids))
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("op=upload.get_many: upload %s: %w", id, domain.ErrNotFound)
		}
		out = append(out, u)
	}
	return out, nil
}

// Count returns the total number of uploads.
func (r *UploadRepo) Count(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.uploads")
	ctx, span := tracer.Start(ctx, "uploads.Count")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "COUNT"),
		attribute.String("db.sql.table", "uploads"),
	)
	q := `SELECT COUNT(*) FROM uploads`
	row := r.Pool.QueryRow(ctx, q)
	var count int64
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("op=upload.count: %w", err)
	}
	return count, nil
}
