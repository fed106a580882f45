package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/assignment-grader/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

var uploadCols = []string{"id", "text", "filename", "mime", "file_type", "extension", "size", "from_ocr", "created_at"}

func TestUploadRepo_Create(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		upload  domain.Upload
		setup   func(pgxmock.PgxPoolIface)
		wantErr bool
		errMsg  string
	}{
		{
			name: "successful create with provided ID",
			upload: domain.Upload{
				ID:        "test-123",
				Text:      "Q1: What is Go?\nA1: A language.",
				Filename:  "answers.pdf",
				MIME:      "application/pdf",
				FileType:  "pdf",
				Extension: ".pdf",
				Size:      1024,
			},
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec("INSERT INTO uploads").
					WithArgs("test-123", "Q1: What is Go?\nA1: A language.", "answers.pdf", "application/pdf", "pdf", ".pdf", int64(1024), false, pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "successful create without ID (generates UUID)",
			upload: domain.Upload{
				Text:      "scanned answers",
				Filename:  "scan.pdf",
				MIME:      "application/pdf",
				FileType:  "pdf",
				Extension: ".pdf",
				Size:      2048,
				FromOCR:   true,
			},
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec("INSERT INTO uploads").
					WithArgs(pgxmock.AnyArg(), "scanned answers", "scan.pdf", "application/pdf", "pdf", ".pdf", int64(2048), true, pgxmock.AnyArg()).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "database error",
			upload: domain.Upload{
				ID:   "error-123",
				Text: "Error test",
			},
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectExec("INSERT INTO uploads").
					WithArgs("error-123", "Error test", "", "", "", "", int64(0), false, pgxmock.AnyArg()).
					WillReturnError(assert.AnError)
			},
			wantErr: true,
			errMsg:  "op=upload.create",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer m.Close()
			tt.setup(m)

			repo := postgres.NewUploadRepo(m)

			id, err := repo.Create(context.Background(), tt.upload)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				assert.Empty(t, id)
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, id)
				if tt.upload.ID != "" {
					assert.Equal(t, tt.upload.ID, id)
				}
			}
			require.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestUploadRepo_Get(t *testing.T) {
	t.Parallel()

	fixedTime := time.Now().UTC()

	tests := []struct {
		name    string
		id      string
		setup   func(pgxmock.PgxPoolIface)
		want    domain.Upload
		wantErr error
		errMsg  string
	}{
		{
			name: "successful get",
			id:   "test-123",
			setup: func(m pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows(uploadCols).
					AddRow("test-123", "Q1: What is Go?", "answers.pdf", "application/pdf", "pdf", ".pdf", int64(1024), false, fixedTime)
				m.ExpectQuery(`SELECT id, text, filename, mime, file_type, extension, size, from_ocr, created_at FROM uploads WHERE id=\$1`).
					WithArgs("test-123").
					WillReturnRows(rows)
			},
			want: domain.Upload{
				ID:        "test-123",
				Text:      "Q1: What is Go?",
				Filename:  "answers.pdf",
				MIME:      "application/pdf",
				FileType:  "pdf",
				Extension: ".pdf",
				Size:      1024,
				CreatedAt: fixedTime,
			},
		},
		{
			name: "not found maps to sentinel",
			id:   "nonexistent",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT id, text, filename, mime, file_type, extension, size, from_ocr, created_at FROM uploads WHERE id=\$1`).
					WithArgs("nonexistent").
					WillReturnError(pgx.ErrNoRows)
			},
			wantErr: domain.ErrNotFound,
			errMsg:  "op=upload.get",
		},
		{
			name: "database error",
			id:   "error-id",
			setup: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery(`SELECT id, text, filename, mime, file_type, extension, size, from_ocr, created_at FROM uploads WHERE id=\$1`).
					WithArgs("error-id").
					WillReturnError(assert.AnError)
			},
			wantErr: assert.AnError,
			errMsg:  "op=upload.get",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer m.Close()
			tt.setup(m)

			repo := postgres.NewUploadRepo(m)

			got, err := repo.Get(context.Background(), tt.id)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			require.NoError(t, m.ExpectationsWereMet())
		})
	}
}

func TestUploadRepo_GetMany_PreservesOrder(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	fixedTime := time.Now().UTC()
	// Rows come back in storage order; the repo must reorder to the request.
	rows := pgxmock.NewRows(uploadCols).
		AddRow("a", "first", "a.pdf", "application/pdf", "pdf", ".pdf", int64(1), false, fixedTime).
		AddRow("b", "second", "b.pdf", "application/pdf", "pdf", ".pdf", int64(2), false, fixedTime)
	m.ExpectQuery(`SELECT id, text, filename, mime, file_type, extension, size, from_ocr, created_at FROM uploads WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"b", "a"}).
		WillReturnRows(rows)

	repo := postgres.NewUploadRepo(m)
	got, err := repo.GetMany(context.Background(), []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestUploadRepo_GetMany_MissingID(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	rows := pgxmock.NewRows(uploadCols).
		AddRow("a", "first", "a.pdf", "application/pdf", "pdf", ".pdf", int64(1), false, time.Now().UTC())
	m.ExpectQuery(`SELECT id, text, filename, mime, file_type, extension, size, from_ocr, created_at FROM uploads WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"a", "ghost"}).
		WillReturnRows(rows)

	repo := postgres.NewUploadRepo(m)
	_, err = repo.GetMany(context.Background(), []string{"a", "ghost"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "ghost")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestUploadRepo_GetMany_Empty(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	repo := postgres.NewUploadRepo(m)
	got, err := repo.GetMany(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestUploadRepo_Count(t *testing.T) {
	t.Parallel()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer m.Close()

	m.ExpectQuery(`SELECT COUNT\(\*\) FROM uploads`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	repo := postgres.NewUploadRepo(m)
	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), count)
	require.NoError(t, m.ExpectationsWereMet())
}
