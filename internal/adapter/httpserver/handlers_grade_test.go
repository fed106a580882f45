package httpserver_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

func postJSON(target, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestGradeHandler_Accepted(t *testing.T) {
	srv, m := newTestServer(t, baseCfg())
	m.uploads.On("GetMany", mock.Anything, []string{"f1", "f2"}).
		Return([]domain.Upload{{ID: "f1"}, {ID: "f2"}}, nil)
	m.jobs.On("Create", mock.Anything, mock.MatchedBy(func(j domain.Job) bool {
		return j.Status == domain.JobQueued && len(j.FileIDs) == 2
	})).Return("job-1", nil)
	m.queue.On("EnqueueGrade", mock.Anything, mock.MatchedBy(func(p domain.GradeTaskPayload) bool {
		return p.JobID == "job-1" && p.Title == "Quiz 1"
	})).Return("t-1", nil)

	rec := httptest.NewRecorder()
	srv.GradeHandler()(rec, postJSON("/v1/grade",
		`{"title":"Quiz 1","description":"Grade the attached answers","file_ids":["f1","f2"]}`))

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	got := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "job-1", got["id"])
	assert.Equal(t, "queued", got["status"])
}

func TestGradeHandler_ValidationFailure(t *testing.T) {
	srv, m := newTestServer(t, baseCfg())

	rec := httptest.NewRecorder()
	srv.GradeHandler()(rec, postJSON("/v1/grade", `{"description":"","file_ids":[]}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON(t, rec.Body.Bytes())
	e := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_ARGUMENT", e["code"])
	details, ok := e["details"].(map[string]any)
	require.True(t, ok, "expected field details, got %v", e)
	assert.Contains(t, details, "description")
	assert.Contains(t, details, "fileids")
	m.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGradeHandler_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t, baseCfg())

	rec := httptest.NewRecorder()
	srv.GradeHandler()(rec, postJSON("/v1/grade", `{"description": oops`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	_, msg := apiErr(t, rec.Body.Bytes())
	assert.Contains(t, msg, "invalid json")
}

func TestGradeHandler_IdempotentReplay(t *testing.T) {
	srv, m := newTestServer(t, baseCfg())
	m.jobs.On("FindByIdempotencyKey", mock.Anything, "idem-1").
		Return(domain.Job{ID: "existing-7", Status: domain.JobCompleted}, nil)

	req := postJSON("/v1/grade", `{"description":"Grade it","file_ids":["f1"]}`)
	req.Header.Set("Idempotency-Key", "idem-1")
	rec := httptest.NewRecorder()
	srv.GradeHandler()(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	got := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, "existing-7", got["id"])
	m.uploads.AssertNotCalled(t, "GetMany", mock.Anything, mock.Anything)
	m.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestGradeHandler_UnknownFileID(t *testing.T) {
	srv, m := newTestServer(t, baseCfg())
	m.uploads.On("GetMany", mock.Anything, []string{"ghost"}).
		Return(nil, fmt.Errorf("%w: upload ghost", domain.ErrNotFound))

	rec := httptest.NewRecorder()
	srv.GradeHandler()(rec, postJSON("/v1/grade", `{"description":"Grade it","file_ids":["ghost"]}`))

	require.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := apiErr(t, rec.Body.Bytes())
	assert.Equal(t, "NOT_FOUND", code)
	m.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
