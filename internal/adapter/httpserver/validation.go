package httpserver

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult carries the outcome of validating request input.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

func invalid(field, code, msg string) ValidationResult {
	return ValidationResult{Valid: false, Errors: []ValidationError{{Field: field, Code: code, Message: msg}}}
}

var (
	jobIDPattern  = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	searchPattern = regexp.MustCompile(`^[a-zA-Z0-9\s_-]+$`)
	jobIDStrip    = regexp.MustCompile(`[^a-zA-Z0-9_-]`)
)

// ValidateJobID checks that a job id from the URL path is shaped like an id
// this service issues.
func ValidateJobID(jobID string) ValidationResult {
	switch {
	case jobID == "":
		return invalid("id", "REQUIRED", "Job ID is required")
	case len(jobID) > 100:
		return invalid("id", "TOO_LONG", "Job ID is too long (max 100 characters)")
	case !jobIDPattern.MatchString(jobID):
		return invalid("id", "INVALID_FORMAT", "Job ID contains invalid characters")
	}
	return ValidationResult{Valid: true}
}

// ValidatePagination checks page/limit query parameters. Empty values are
// valid; the caller applies its defaults.
func ValidatePagination(page, limit string) ValidationResult {
	var errs []ValidationError
	if page != "" {
		if n, err := strconv.Atoi(page); err != nil || n < 1 {
			errs = append(errs, ValidationError{Field: "page", Code: "INVALID_FORMAT", Message: "Page must be a positive integer"})
		}
	}
	if limit != "" {
		if n, err := strconv.Atoi(limit); err != nil || n < 1 || n > 100 {
			errs = append(errs, ValidationError{Field: "limit", Code: "INVALID_FORMAT", Message: "Limit must be between 1 and 100"})
		}
	}
	if len(errs) > 0 {
		return ValidationResult{Valid: false, Errors: errs}
	}
	return ValidationResult{Valid: true}
}

// ValidateSearchQuery restricts job-search terms to characters that cannot
// smuggle wildcards or injection into the storage layer.
func ValidateSearchQuery(query string) ValidationResult {
	switch {
	case query == "":
		return ValidationResult{Valid: true}
	case len(query) > 200:
		return invalid("search", "TOO_LONG", "Search query is too long (max 200 characters)")
	case !searchPattern.MatchString(query):
		return invalid("search", "INVALID_FORMAT", "Search query contains invalid characters")
	}
	return ValidationResult{Valid: true}
}

// ValidateStatus checks a job status filter against the known lifecycle
// states. Empty means no filter.
func ValidateStatus(status string) ValidationResult {
	switch domain.JobStatus(status) {
	case "", domain.JobQueued, domain.JobProcessing, domain.JobCompleted, domain.JobFailed:
		return ValidationResult{Valid: true}
	}
	return invalid("status", "INVALID_VALUE", "Status must be one of: queued, processing, completed, failed")
}

// SanitizeString normalizes free-text input: strips null bytes, trims
// whitespace, bounds length and forces valid UTF-8.
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")
	input = strings.TrimSpace(input)
	if len(input) > 1000 {
		input = input[:1000]
	}
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	return input
}

// SanitizeJobID strips every character a job id may not contain.
func SanitizeJobID(jobID string) string {
	jobID = jobIDStrip.ReplaceAllString(jobID, "")
	if len(jobID) > 100 {
		jobID = jobID[:100]
	}
	return jobID
}
