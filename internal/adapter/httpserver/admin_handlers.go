package httpserver

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/assignment-grader/internal/config"
	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/usecase"
)

// AdminServer exposes the cookie-authenticated operations API: login/logout,
// job statistics, a filtered job listing and a model-catalog refresh. It is
// mounted only when ADMIN_ENABLED is set together with full credentials.
type AdminServer struct {
	cfg      config.Config
	sessions *SessionManager
	jobs     domain.JobRepository
	models   usecase.ModelsService
}

// NewAdminServer constructs the admin surface.
func NewAdminServer(cfg config.Config, jobs domain.JobRepository, models usecase.ModelsService) *AdminServer {
	return &AdminServer{
		cfg:      cfg,
		sessions: NewSessionManager(cfg),
		jobs:     jobs,
		models:   models,
	}
}

// Sessions exposes the session manager, mainly for tests.
func (a *AdminServer) Sessions() *SessionManager { return a.sessions }

// Routes returns the router to mount under /admin.
func (a *AdminServer) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/login", a.LoginHandler())
	r.Post("/logout", a.LogoutHandler())
	r.Group(func(pr chi.Router) {
		pr.Use(a.sessions.RequireSession)
		pr.Get("/api/status", a.StatusHandler())
		pr.Get("/api/jobs", a.JobsHandler())
		pr.Post("/api/models/refresh", a.RefreshModelsHandler())
	})
	return r
}

// checkPassword compares the submitted password with the configured one. The
// configured value may be either an argon2id hash or a plain secret; plain
// secrets are compared in constant time.
func (a *AdminServer) checkPassword(password string) bool {
	stored := a.cfg.AdminPassword
	if strings.HasPrefix(stored, "argon2id$") {
		return VerifyPassword(password, stored)
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(stored)) == 1
}

// readCredentials pulls username/password from a JSON body or a classic
// form post.
func readCredentials(r *http.Request) (string, string, error) {
	if strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		var req struct {
			Username string `json:"username"`
			Password string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return "", "", fmt.Errorf("invalid json body")
		}
		return req.Username, req.Password, nil
	}
	if err := r.ParseForm(); err != nil {
		return "", "", fmt.Errorf("invalid form body")
	}
	return r.FormValue("username"), r.FormValue("password"), nil
}

// LoginHandler authenticates the configured admin user and issues a session
// cookie.
func (a *AdminServer) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
		username, password, err := readCredentials(r)
		if err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.cfg.AdminUsername)) == 1
		if !userOK || !a.checkPassword(password) {
			LoggerFrom(r).Warn("admin login rejected", "username", SanitizeString(username))
			writeStatusError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid credentials", nil)
			return
		}
		sessionValue, err := a.sessions.CreateSession(username)
		if err != nil {
			writeError(w, r, fmt.Errorf("create session: %w", err), nil)
			return
		}
		a.sessions.SetSessionCookie(w, sessionValue)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "username": username})
	}
}

// LogoutHandler clears the session cookie. It does not require a valid
// session so a stale cookie can always be dropped.
func (a *AdminServer) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		a.sessions.ClearSessionCookie(w)
		w.WriteHeader(http.StatusNoContent)
	}
}

// jobStatsProvider is satisfied by job repositories that track aggregate
// statistics beyond the core port, such as the postgres implementation.
type jobStatsProvider interface {
	Count(ctx domain.Context) (int64, error)
	GetAverageProcessingTime(ctx domain.Context) (float64, error)
}

// StatusHandler reports per-status job counts for the authenticated admin,
// plus totals and average processing time when the repository tracks them.
func (a *AdminServer) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts := map[string]int64{}
		for _, st := range []domain.JobStatus{domain.JobQueued, domain.JobProcessing, domain.JobCompleted, domain.JobFailed} {
			n, err := a.jobs.CountByStatus(r.Context(), st)
			if err != nil {
				writeError(w, r, fmt.Errorf("count jobs: %w", err), nil)
				return
			}
			counts[string(st)] = n
		}
		body := map[string]any{"status": "authenticated", "jobs": counts}
		if sd := sessionFrom(r); sd != nil {
			body["username"] = sd.Username
		}
		// Aggregate stats are best-effort; the dashboard stays usable when
		// one of the heavier queries fails.
		if st, ok := a.jobs.(jobStatsProvider); ok {
			if total, err := st.Count(r.Context()); err == nil {
				body["total_jobs"] = total
			}
			if avg, err := st.GetAverageProcessingTime(r.Context()); err == nil {
				body["avg_processing_seconds"] = avg
			}
		}
		writeJSON(w, http.StatusOK, body)
	}
}

type adminJob struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	FileCount int       `json:"file_count"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobsHandler lists jobs newest-first with optional id search and status
// filter. Query parameters: page, limit, search, status.
func (a *AdminServer) JobsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		pageStr, limitStr := q.Get("page"), q.Get("limit")
		search := SanitizeString(q.Get("search"))
		status := q.Get("status")

		for _, vr := range []ValidationResult{
			ValidatePagination(pageStr, limitStr),
			ValidateSearchQuery(search),
			ValidateStatus(status),
		} {
			if !vr.Valid {
				writeError(w, r, fmt.Errorf("%w: invalid query", domain.ErrInvalidArgument), vr.Errors)
				return
			}
		}

		page, limit := 1, 20
		if pageStr != "" {
			page, _ = strconv.Atoi(pageStr)
		}
		if limitStr != "" {
			limit, _ = strconv.Atoi(limitStr)
		}

		jobs, err := a.jobs.ListWithFilters(r.Context(), (page-1)*limit, limit, search, status)
		if err != nil {
			writeError(w, r, fmt.Errorf("list jobs: %w", err), nil)
			return
		}
		out := make([]adminJob, 0, len(jobs))
		for _, j := range jobs {
			out = append(out, adminJob{
				ID:        j.ID,
				Status:    string(j.Status),
				Error:     j.Error,
				FileCount: len(j.FileIDs),
				CreatedAt: j.CreatedAt,
				UpdatedAt: j.UpdatedAt,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"jobs": out, "page": page, "limit": limit})
	}
}

// RefreshModelsHandler forces a model-catalog refetch, bypassing the cache.
func (a *AdminServer) RefreshModelsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := a.models.Refresh(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": list, "count": len(list)})
	}
}
