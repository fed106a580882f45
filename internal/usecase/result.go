package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// ResultService provides read access to grading results and assembles the
// API response envelope including ETag logic and error mapping.
type ResultService struct {
	Jobs    domain.JobRepository
	Results domain.ResultRepository
}

// NewResultService constructs a ResultService with the given repositories.
func NewResultService(j domain.JobRepository, r domain.ResultRepository) ResultService {
	return ResultService{Jobs: j, Results: r}
}

// Fetch returns the HTTP status code, response body, and ETag for the given
// job id. It implements conditional responses (304 Not Modified) based on
// If-None-Match and returns proper shapes for queued/processing/failed states.
// Stuck jobs are failed by the background sweeper, never by this read path.
func (s ResultService) Fetch(ctx domain.Context, id, ifNoneMatch string) (int, map[string]any, string, error) {
	job, err := s.Jobs.Get(ctx, id)
	if err != nil {
		slog.Error("failed to get job", slog.String("job_id", id), slog.Any("error", err))
		if errors.Is(err, domain.ErrNotFound) {
			return http.StatusNotFound, nil, "", fmt.Errorf("%w: job not found", domain.ErrNotFound)
		}
		return http.StatusInternalServerError, nil, "", err
	}

	if job.Status != domain.JobCompleted {
		m := map[string]any{"id": id, "status": string(job.Status)}
		if job.Status == domain.JobFailed {
			m["error"] = map[string]any{
				"code":    errorCodeFromJobError(job.Error),
				"message": job.Error,
			}
		}
		etag := makeETag(m)
		if etag == ifNoneMatch {
			return http.StatusNotModified, nil, etag, nil
		}
		return http.StatusOK, m, etag, nil
	}

	res, err := s.Results.GetByJobID(ctx, id)
	if err != nil {
		slog.Error("failed to load result for completed job", slog.String("job_id", id), slog.Any("error", err))
		return http.StatusInternalServerError, nil, "", err
	}
	m := map[string]any{
		"id": id, "status": string(domain.JobCompleted),
		"result": map[string]any{
			"summary":  res.Summary,
			"scores":   res.Scores,
			"raw_text": res.RawText,
		},
	}
	etag := makeETag(m)
	if etag == ifNoneMatch {
		return http.StatusNotModified, nil, etag, nil
	}
	return http.StatusOK, m, etag, nil
}

func makeETag(v any) string {
	b, _ := json.Marshal(v)
	s := sha256.Sum256(b)
	return hex.EncodeToString(s[:])
}

// errorCodeFromJobError maps a stored job error message to a stable error
// code. The mapping matches the consumer-side failure classification so job
// metrics and API error codes agree.
func errorCodeFromJobError(msg string) string {
	s := strings.ToLower(strings.TrimSpace(msg))
	if s == "" {
		return "INTERNAL"
	}

	switch {
	case strings.Contains(s, "schema invalid"), strings.Contains(s, "invalid json"), strings.Contains(s, "out of range"), strings.Contains(s, "empty"):
		return "SCHEMA_INVALID"
	case strings.Contains(s, "rate limit"):
		return "UPSTREAM_RATE_LIMIT"
	case strings.Contains(s, "timeout"), strings.Contains(s, "deadline exceeded"):
		return "UPSTREAM_TIMEOUT"
	case strings.Contains(s, "not found"):
		return "NOT_FOUND"
	case strings.Contains(s, "invalid argument"), strings.Contains(s, "ids required"):
		return "INVALID_ARGUMENT"
	default:
		return "INTERNAL"
	}
}
