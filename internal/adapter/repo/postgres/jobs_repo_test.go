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

var jobCols = []string{"id", "status", "error", "created_at", "updated_at", "file_ids", "idempotency_key"}

func newJobMock(t *testing.T) (pgxmock.PgxPoolIface, *postgres.JobRepo) {
	t.Helper()
	m, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m, postgres.NewJobRepo(m)
}

func TestJobRepo_Create(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	idem := "idem-key-1"
	job := domain.Job{
		ID:      "job-1",
		Status:  domain.JobQueued,
		FileIDs: []string{"u1", "u2"},
		IdemKey: &idem,
	}

	m.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", domain.JobQueued, "", pgxmock.AnyArg(), pgxmock.AnyArg(), []string{"u1", "u2"}, &idem).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := repo.Create(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, "job-1", id)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_Create_GeneratesID(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectExec("INSERT INTO jobs").
		WithArgs(pgxmock.AnyArg(), domain.JobQueued, "", pgxmock.AnyArg(), pgxmock.AnyArg(), []string{"u1"}, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	id, err := repo.Create(context.Background(), domain.Job{Status: domain.JobQueued, FileIDs: []string{"u1"}})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_Create_DBError(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectExec("INSERT INTO jobs").
		WithArgs("job-1", domain.JobQueued, "", pgxmock.AnyArg(), pgxmock.AnyArg(), []string{"u1"}, pgxmock.AnyArg()).
		WillReturnError(assert.AnError)

	_, err := repo.Create(context.Background(), domain.Job{ID: "job-1", Status: domain.JobQueued, FileIDs: []string{"u1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=job.create")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_UpdateStatus(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectExec("UPDATE jobs SET").
		WithArgs("job-1", domain.JobCompleted, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "job-1", domain.JobCompleted, nil))

	errMsg := "grading failed"
	m.ExpectExec("UPDATE jobs SET").
		WithArgs("job-1", domain.JobFailed, "grading failed", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, repo.UpdateStatus(context.Background(), "job-1", domain.JobFailed, &errMsg))

	m.ExpectExec("UPDATE jobs SET").
		WithArgs("job-1", domain.JobCompleted, "", pgxmock.AnyArg()).
		WillReturnError(assert.AnError)
	err := repo.UpdateStatus(context.Background(), "job-1", domain.JobCompleted, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=job.update_status")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_Get(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(jobCols).
		AddRow("job-1", domain.JobCompleted, "", now, now, []string{"u1", "u2"}, nil)
	m.ExpectQuery(`SELECT id, status, COALESCE\(error,''\), created_at, updated_at, file_ids, idempotency_key FROM jobs WHERE id=\$1`).
		WithArgs("job-1").
		WillReturnRows(rows)

	job, err := repo.Get(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, []string{"u1", "u2"}, job.FileIDs)
	assert.Nil(t, job.IdemKey)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_Get_NotFound(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectQuery(`FROM jobs WHERE id=\$1`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.Get(context.Background(), "ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=job.get")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_FindByIdempotencyKey(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	now := time.Now().UTC()
	idem := "idem-key-1"
	rows := pgxmock.NewRows(jobCols).
		AddRow("job-1", domain.JobQueued, "", now, now, []string{"u1"}, &idem)
	m.ExpectQuery(`FROM jobs WHERE idempotency_key=\$1 LIMIT 1`).
		WithArgs("idem-key-1").
		WillReturnRows(rows)

	job, err := repo.FindByIdempotencyKey(context.Background(), "idem-key-1")
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)
	require.NotNil(t, job.IdemKey)
	assert.Equal(t, "idem-key-1", *job.IdemKey)

	m.ExpectQuery(`FROM jobs WHERE idempotency_key=\$1 LIMIT 1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	_, err = repo.FindByIdempotencyKey(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "op=job.find_idem")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_ListWithFilters_NoFilters(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(jobCols).
		AddRow("job-2", domain.JobQueued, "", now, now, []string{"u3"}, nil).
		AddRow("job-1", domain.JobFailed, "boom", now.Add(-time.Hour), now, []string{"u1"}, nil)
	m.ExpectQuery(`FROM jobs ORDER BY created_at DESC OFFSET \$1 LIMIT \$2`).
		WithArgs(0, 10).
		WillReturnRows(rows)

	jobs, err := repo.ListWithFilters(context.Background(), 0, 10, "", "")
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "job-2", jobs[0].ID)
	assert.Equal(t, "job-1", jobs[1].ID)
	assert.Equal(t, "boom", jobs[1].Error)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_ListWithFilters_SearchAndStatus(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	now := time.Now().UTC()
	rows := pgxmock.NewRows(jobCols).
		AddRow("job-1", domain.JobProcessing, "", now, now, []string{"u1"}, nil)
	m.ExpectQuery(`WHERE id LIKE \$1 AND status = \$2 ORDER BY created_at DESC OFFSET \$3 LIMIT \$4`).
		WithArgs("job%", "processing", 0, 5).
		WillReturnRows(rows)

	jobs, err := repo.ListWithFilters(context.Background(), 0, 5, "job", "processing")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, domain.JobProcessing, jobs[0].Status)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_ListWithFilters_QueryError(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectQuery(`FROM jobs ORDER BY created_at DESC`).
		WithArgs(0, 10).
		WillReturnError(assert.AnError)

	jobs, err := repo.ListWithFilters(context.Background(), 0, 10, "", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=job.list_with_filters")
	assert.Nil(t, jobs)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_ListWithFilters_Empty(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectQuery(`FROM jobs ORDER BY created_at DESC`).
		WithArgs(20, 10).
		WillReturnRows(pgxmock.NewRows(jobCols))

	jobs, err := repo.ListWithFilters(context.Background(), 20, 10, "", "")
	require.NoError(t, err)
	assert.Empty(t, jobs)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_Count(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(5)))

	count, err := repo.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_CountByStatus(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	m.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs WHERE status = \$1`).
		WithArgs(domain.JobCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(3)))

	count, err := repo.CountByStatus(context.Background(), domain.JobCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	m.ExpectQuery(`SELECT COUNT\(\*\) FROM jobs WHERE status = \$1`).
		WithArgs(domain.JobFailed).
		WillReturnError(assert.AnError)
	_, err = repo.CountByStatus(context.Background(), domain.JobFailed)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "op=job.count_by_status")
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_GetAverageProcessingTime(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	avg := 1.5
	m.ExpectQuery(`SELECT AVG\(EXTRACT\(EPOCH FROM \(updated_at - created_at\)\)\) FROM jobs WHERE status = \$1`).
		WithArgs(domain.JobCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(&avg))

	got, err := repo.GetAverageProcessingTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.5, got)
	require.NoError(t, m.ExpectationsWereMet())
}

func TestJobRepo_GetAverageProcessingTime_NoCompletedJobs(t *testing.T) {
	t.Parallel()
	m, repo := newJobMock(t)

	// AVG over zero rows yields NULL
	m.ExpectQuery(`SELECT AVG\(EXTRACT\(EPOCH FROM \(updated_at - created_at\)\)\) FROM jobs WHERE status = \$1`).
		WithArgs(domain.JobCompleted).
		WillReturnRows(pgxmock.NewRows([]string{"avg"}).AddRow(nil))

	got, err := repo.GetAverageProcessingTime(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.0, got)
	require.NoError(t, m.ExpectationsWereMet())
}
