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

	"github.com/fairyhunter13/assignment-grader/internal/adapter/httpserver"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/domain/mocks"
	"github.com/fairyhunter13/assignment-grader/internal/usecase"
)

func repoGradeServer(t *testing.T) (*httpserver.Server, *mocks.MockRepoFetcher, *mocks.MockModelGateway) {
	t.Helper()
	f := mocks.NewMockRepoFetcher(t)
	g := mocks.NewMockModelGateway(t)
	srv := &httpserver.Server{
		Cfg:        baseCfg(),
		RepoGrades: usecase.NewRepoGradeService(f, g, 20000, 100000),
	}
	return srv, f, g
}

func TestRepoGradeHandler_Success(t *testing.T) {
	srv, f, g := repoGradeServer(t)
	f.On("FetchTextFiles", mock.Anything, "alice", "webapp").
		Return([]domain.RepoFile{{Path: "main.py", Content: "print('hello')"}}, nil)
	g.On("Generate", mock.Anything, mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.Contains(p, "main.py")
	})).Return(`{"summary":"solid","scores":[{"name":"main.py","score_percent":88,"reasoning":"ok","details":[]}]}`, nil)

	rec := httptest.NewRecorder()
	srv.RepoGradeHandler()(rec, postJSON("/v1/grade/repo",
		`{"description":"Grade the webapp assignment","github_url":"https://github.com/alice/webapp"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeJSON(t, rec.Body.Bytes())
	assert.Equal(t, true, got["success"])
	res, ok := got["result"].(map[string]any)
	require.True(t, ok)
	scores, ok := res["scores"].([]any)
	require.True(t, ok)
	require.Len(t, scores, 1)
	first := scores[0].(map[string]any)
	assert.Equal(t, "main.py", first["name"])
	assert.InDelta(t, 88, first["score_percent"], 0.001)
	assert.NotEmpty(t, got["raw_response"])
}

func TestRepoGradeHandler_URLFromDescription(t *testing.T) {
	srv, f, g := repoGradeServer(t)
	f.On("FetchTextFiles", mock.Anything, "bob", "cli-tool").
		Return([]domain.RepoFile{{Path: "cmd/main.go", Content: "package main"}}, nil)
	g.On("Generate", mock.Anything, mock.Anything, mock.Anything).
		Return(`{"summary":"fine","scores":[{"name":"cmd/main.go","score_percent":75,"reasoning":"ok","details":[]}]}`, nil).Once()

	rec := httptest.NewRecorder()
	srv.RepoGradeHandler()(rec, postJSON("/v1/grade/repo",
		`{"description":"Review https://github.com/bob/cli-tool.git against the rubric"}`))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestRepoGradeHandler_MissingDescription(t *testing.T) {
	srv, f, _ := repoGradeServer(t)

	rec := httptest.NewRecorder()
	srv.RepoGradeHandler()(rec, postJSON("/v1/grade/repo", `{"github_url":"https://github.com/a/b"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON(t, rec.Body.Bytes())
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "description")
	f.AssertNotCalled(t, "FetchTextFiles", mock.Anything, mock.Anything, mock.Anything)
}

func TestRepoGradeHandler_BadURLFieldFailsValidation(t *testing.T) {
	srv, _, _ := repoGradeServer(t)

	rec := httptest.NewRecorder()
	srv.RepoGradeHandler()(rec, postJSON("/v1/grade/repo",
		`{"description":"Grade it","github_url":"not a url"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeJSON(t, rec.Body.Bytes())
	details := body["error"].(map[string]any)["details"].(map[string]any)
	assert.Contains(t, details, "githuburl")
}

func TestRepoGradeHandler_NonGitHubURLRejected(t *testing.T) {
	srv, f, _ := repoGradeServer(t)

	rec := httptest.NewRecorder()
	srv.RepoGradeHandler()(rec, postJSON("/v1/grade/repo",
		`{"description":"Grade it","github_url":"https://gitlab.com/a/b"}`))

	require.Equal(t, http.StatusBadRequest, rec.Code)
	code, _ := apiErr(t, rec.Body.Bytes())
	assert.Equal(t, "INVALID_ARGUMENT", code)
	f.AssertNotCalled(t, "FetchTextFiles", mock.Anything, mock.Anything, mock.Anything)
}

func TestRepoGradeHandler_RepoNotFound(t *testing.T) {
	srv, f, _ := repoGradeServer(t)
	f.On("FetchTextFiles", mock.Anything, "alice", "gone").
		Return(nil, fmt.Errorf("%w: github status 404", domain.ErrNotFound))

	rec := httptest.NewRecorder()
	srv.RepoGradeHandler()(rec, postJSON("/v1/grade/repo",
		`{"description":"Grade it","github_url":"https://github.com/alice/gone"}`))

	require.Equal(t, http.StatusNotFound, rec.Code)
	code, _ := apiErr(t, rec.Body.Bytes())
	assert.Equal(t, "NOT_FOUND", code)
}
