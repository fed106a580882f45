package domain

import (
	"context"
	"errors"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrRateLimited       = errors.New("rate limited")
	ErrUpstreamTimeout   = errors.New("upstream timeout")
	ErrUpstreamRateLimit = errors.New("upstream rate limit")
	ErrSchemaInvalid     = errors.New("schema invalid")
	ErrInternal          = errors.New("internal error")
)

// Upload represents one stored submission document after text extraction.
// Invariants: Size <= configured max; Text sanitized (control chars stripped);
// FromOCR marks text recovered by the OCR fallback rather than plain extraction.
type Upload struct {
	ID        string
	Text      string
	Filename  string
	MIME      string
	FileType  string
	Extension string
	Size      int64
	FromOCR   bool
	CreatedAt time.Time
}

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

type Job struct {
	ID        string
	Status    JobStatus
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
	FileIDs   []string
	IdemKey   *string
}

// Result is the stored outcome of one grading job. Scores always has exactly
// one entry per submitted file, in submission order.
type Result struct {
	JobID     string
	Summary   *string
	Scores    []ScoreEntry
	RawText   string
	CreatedAt time.Time
}

// Repositories (ports)

type UploadRepository interface {
	Create(ctx Context, u Upload) (string, error)
	Get(ctx Context, id string) (Upload, error)
	// GetMany returns uploads for ids preserving the given order.
	GetMany(ctx Context, ids []string) ([]Upload, error)
}

type JobRepository interface {
	Create(ctx Context, j Job) (string, error)
	UpdateStatus(ctx Context, id string, status JobStatus, errMsg *string) error
	Get(ctx Context, id string) (Job, error)
	FindByIdempotencyKey(ctx Context, key string) (Job, error)
	// ListWithFilters pages jobs newest-first; search matches the id prefix,
	// status filters exactly. Empty filter strings match everything.
	ListWithFilters(ctx Context, offset, limit int, search, status string) ([]Job, error)
	CountByStatus(ctx Context, status JobStatus) (int64, error)
}

type ResultRepository interface {
	Upsert(ctx Context, r Result) error
	GetByJobID(ctx Context, jobID string) (Result, error)
}

// Queue (port)

type Queue interface {
	EnqueueGrade(ctx Context, payload GradeTaskPayload) (string, error)
}

// ModelGateway (port)
// Generate sends one chat-completion request and returns the raw model text.
// Implementations retry transient failures internally and fail fast on auth
// errors; exhaustion surfaces as a wrapped sentinel, never a panic.
type ModelGateway interface {
	Generate(ctx Context, systemPrompt, userPrompt string) (string, error)
}

// TextExtractor (port)
// Extract returns the extracted text for the given file bytes. ExtractOCR
// forces OCR-based extraction, used as a fallback for scanned documents.
type TextExtractor interface {
	Extract(ctx Context, filename string, data []byte) (string, error)
	ExtractOCR(ctx Context, filename string, data []byte) (string, error)
}

// RepoFetcher (port)
// FetchTextFiles lists and downloads text-like files from a remote repository.
type RepoFetcher interface {
	FetchTextFiles(ctx Context, owner, repo string) ([]RepoFile, error)
}

// RepoFile is one fetched repository file with decoded text content.
type RepoFile struct {
	Path    string
	Content string
}

// GradeTaskPayload

type GradeTaskPayload struct {
	JobID       string
	Title       string
	Description string
	FileIDs     []string
	// RequestID carries the originating HTTP request id so worker logs stay
	// correlated with API logs.
	RequestID string
}

// Context is an alias to context.Context so domain signatures stay compact.
type Context = context.Context
