package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/fairyhunter13/assignment-grader/internal/config"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/extract"
	"github.com/fairyhunter13/assignment-grader/internal/usecase"
	"github.com/gabriel-vasile/mimetype"
)

// Server aggregates handler dependencies.
type Server struct {
	Cfg        config.Config
	Uploads    usecase.UploadService
	Grades     usecase.GradeService
	Results    usecase.ResultService
	RepoGrades usecase.RepoGradeService
	Models     usecase.ModelsService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
	TikaCheck  func(ctx context.Context) error
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, uploads usecase.UploadService, grades usecase.GradeService, results usecase.ResultService, repoGrades usecase.RepoGradeService, models usecase.ModelsService, dbCheck, redisCheck, tikaCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Uploads: uploads, Grades: grades, Results: results, RepoGrades: repoGrades, Models: models, DBCheck: dbCheck, RedisCheck: redisCheck, TikaCheck: tikaCheck}
}

// uploadRegistry drives the intake allowlist; it mirrors the registry the
// upload usecase extracts with, so a file accepted here is always handled.
var uploadRegistry = extract.DefaultRegistry()

// allowedUploadExt reports whether the filename's extension is a format the
// grading pipeline understands.
func allowedUploadExt(name string) bool {
	_, ok := uploadRegistry.Lookup(filepath.Ext(name))
	return ok
}

// allowedMIMEFor checks the sniffed content type against what the filename's
// registered format may legitimately sniff as. Zip-based Office formats may
// report as plain zip with some producers, so those are let through.
func allowedMIMEFor(m, filename string) bool {
	m = strings.ToLower(m)
	if i := strings.IndexByte(m, ';'); i >= 0 {
		m = strings.TrimSpace(m[:i])
	}
	switch uploadRegistry.TypeFor(filename) {
	case "text", "csv":
		return strings.HasPrefix(m, "text/") ||
			m == "application/json" || m == "application/xml" || m == "application/javascript"
	case "pdf":
		return m == "application/pdf"
	case "docx":
		return m == "application/vnd.openxmlformats-officedocument.wordprocessingml.document" || m == "application/zip"
	case "doc":
		return m == "application/msword" || m == "application/x-ole-storage"
	case "excel":
		return m == "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" ||
			m == "application/vnd.ms-excel" || m == "application/zip" || strings.HasPrefix(m, "text/")
	case "ppt":
		return m == "application/vnd.openxmlformats-officedocument.presentationml.presentation" ||
			m == "application/vnd.ms-powerpoint" || m == "application/zip"
	default:
		return false
	}
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// negotiateJSON rejects requests whose Accept header explicitly refuses JSON.
func negotiateJSON(w http.ResponseWriter, r *http.Request) bool {
	a := r.Header.Get("Accept")
	if a == "" || a == "*/*" || strings.Contains(a, "application/json") {
		return true
	}
	writeStatusError(w, http.StatusNotAcceptable, "INVALID_ARGUMENT", "not acceptable", map[string]any{"accept": a})
	return false
}

// validateStruct runs the request DTO through the validator and writes the
// field->tag map as error details on failure.
func validateStruct(w http.ResponseWriter, r *http.Request, req any) bool {
	err := getValidator().Struct(req)
	if err == nil {
		return true
	}
	verrs := map[string]string{}
	if ve, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range ve {
			verrs[strings.ToLower(fe.Field())] = fe.Tag()
		}
	}
	writeError(w, r, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument), verrs)
	return false
}

// UploadHandler handles multipart upload of submission documents. The form
// carries one or more files under the repeated "files" field.
func (s *Server) UploadHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
			writeError(w, r, fmt.Errorf("%w: content-type must be multipart/form-data", domain.ErrInvalidArgument), nil)
			return
		}

		maxBytes := s.Cfg.MaxUploadMB * 1024 * 1024
		totalCap := maxBytes * 2
		if s.Cfg.MaxUploadFiles > 0 {
			totalCap = maxBytes * int64(s.Cfg.MaxUploadFiles)
		}
		r.Body = http.MaxBytesReader(w, r.Body, totalCap)
		if err := r.ParseMultipartForm(maxBytes); err != nil {
			if strings.Contains(strings.ToLower(err.Error()), "too large") {
				writeStatusError(w, http.StatusRequestEntityTooLarge, "INVALID_ARGUMENT", "payload too large", map[string]any{"max_mb": s.Cfg.MaxUploadMB})
				return
			}
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}

		fhs := r.MultipartForm.File["files"]
		if len(fhs) == 0 {
			writeError(w, r, fmt.Errorf("%w: at least one file required", domain.ErrInvalidArgument), map[string]string{"field": "files"})
			return
		}
		if s.Cfg.MaxUploadFiles > 0 && len(fhs) > s.Cfg.MaxUploadFiles {
			writeError(w, r, fmt.Errorf("%w: maximum %d files allowed", domain.ErrInvalidArgument, s.Cfg.MaxUploadFiles), nil)
			return
		}

		incoming := make([]usecase.IncomingFile, 0, len(fhs))
		for _, fh := range fhs {
			if fh.Size > maxBytes {
				writeStatusError(w, http.StatusRequestEntityTooLarge, "INVALID_ARGUMENT", "file too large", map[string]any{"filename": fh.Filename, "max_mb": s.Cfg.MaxUploadMB})
				return
			}
			if !allowedUploadExt(fh.Filename) {
				writeStatusError(w, http.StatusUnsupportedMediaType, "INVALID_ARGUMENT",
					fmt.Sprintf("unsupported media type for %s (extension)", fh.Filename),
					map[string]any{"filename": fh.Filename})
				return
			}
			f, err := fh.Open()
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: open %s: %v", domain.ErrInvalidArgument, fh.Filename, err), nil)
				return
			}
			data, err := io.ReadAll(f)
			_ = f.Close()
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: read %s: %v", domain.ErrInvalidArgument, fh.Filename, err), nil)
				return
			}
			mt := mimetype.Detect(data)
			if !allowedMIMEFor(mt.String(), fh.Filename) {
				writeStatusError(w, http.StatusUnsupportedMediaType, "INVALID_ARGUMENT",
					fmt.Sprintf("unsupported media type for %s (content)", fh.Filename),
					map[string]any{"filename": fh.Filename, "mime": mt.String()})
				return
			}
			incoming = append(incoming, usecase.IncomingFile{Filename: fh.Filename, MIME: mt.String(), Data: data})
		}

		ids, err := s.Uploads.Ingest(r.Context(), incoming)
		if err != nil {
			writeError(w, r, fmt.Errorf("upload ingest: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
	}
}

// GradeHandler enqueues an asynchronous grading job and replies 202 with the
// job id. An Idempotency-Key header makes retried requests return the same
// job.
func (s *Server) GradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Title       string   `json:"title" validate:"omitempty,max=300"`
			Description string   `json:"description" validate:"required,max=20000"`
			FileIDs     []string `json:"file_ids" validate:"required,min=1,dive,required,max=100"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if !validateStruct(w, r, req) {
			return
		}
		jobID, err := s.Grades.Enqueue(r.Context(), req.Title, req.Description, req.FileIDs, r.Header.Get("Idempotency-Key"))
		if err != nil {
			writeError(w, r, fmt.Errorf("enqueue: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": jobID, "status": string(domain.JobQueued)})
	}
}

// ResultHandler returns job status, and the stored result once completed.
// Malformed job ids are rejected with 409 before touching storage.
func (s *Server) ResultHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		id := chi.URLParam(r, "id")
		if vr := ValidateJobID(id); !vr.Valid {
			writeError(w, r, fmt.Errorf("%w: malformed job id", domain.ErrConflict), vr.Errors)
			return
		}
		status, body, etag, err := s.Results.Fetch(r.Context(), id, r.Header.Get("If-None-Match"))
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if etag != "" {
			w.Header().Set("ETag", etag)
		}
		if status == http.StatusNotModified {
			w.WriteHeader(status)
			return
		}
		writeJSON(w, status, body)
	}
}

// RepoGradeHandler grades a public GitHub repository synchronously. The
// repository URL comes from the request body or, failing that, from the first
// github.com link inside the description.
func (s *Server) RepoGradeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		var req struct {
			Description string `json:"description" validate:"required,max=20000"`
			GitHubURL   string `json:"github_url" validate:"omitempty,url"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument), nil)
			return
		}
		if !validateStruct(w, r, req) {
			return
		}
		out, err := s.RepoGrades.Grade(r.Context(), req.Description, req.GitHubURL)
		if err != nil {
			writeError(w, r, fmt.Errorf("repo grade: %w", err), nil)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// ModelsHandler lists the model catalog through the cache-backed service.
func (s *Server) ModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !negotiateJSON(w, r) {
			return
		}
		list, err := s.Models.List(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": list})
	}
}

// HealthzHandler reports process liveness.
func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler probes the dependencies the API cannot serve without.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{
			{"db", s.DBCheck},
			{"redis", s.RedisCheck},
			{"tika", s.TikaCheck},
		}
		ok := true
		checks := make([]check, 0, len(probes))
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				ok = false
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
