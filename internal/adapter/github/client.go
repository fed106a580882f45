// Package github provides a minimal GitHub contents API client used to fetch
// text-like files from public repositories for grading.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"log/slog"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// codeExtensions lists the file extensions fetched from a repository. Files
// without an extension (Makefile, Dockerfile, LICENSE) are fetched as well.
var codeExtensions = map[string]struct{}{
	".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".java": {},
	".cpp": {}, ".c": {}, ".h": {}, ".hpp": {}, ".cs": {}, ".go": {},
	".rs": {}, ".rb": {}, ".php": {}, ".swift": {}, ".kt": {}, ".dart": {},
	".r": {}, ".m": {}, ".scala": {}, ".clj": {}, ".hs": {}, ".elm": {},
	".ex": {}, ".exs": {}, ".erl": {}, ".ml": {}, ".fs": {}, ".vue": {},
	".svelte": {}, ".html": {}, ".css": {}, ".scss": {}, ".sass": {},
	".less": {}, ".json": {}, ".xml": {}, ".yaml": {}, ".yml": {},
	".toml": {}, ".ini": {}, ".cfg": {}, ".conf": {}, ".sh": {}, ".bat": {},
	".ps1": {}, ".sql": {}, ".md": {}, ".txt": {}, ".log": {}, ".env": {},
	".gitignore": {}, ".dockerfile": {}, ".dockerignore": {}, ".makefile": {},
	".cmake": {}, ".gradle": {}, ".maven": {}, ".pom": {},
}

// skipDirs lists directory names never descended into.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "__pycache__": {}, ".pytest_cache": {},
	".venv": {}, "venv": {}, "env": {}, ".env": {}, "dist": {}, "build": {},
	".next": {}, ".nuxt": {}, ".cache": {}, "coverage": {}, ".idea": {},
	".vscode": {}, ".vs": {}, "target": {}, "bin": {}, "obj": {},
	".gradle": {}, ".mvn": {},
}

// Client is a minimal GitHub contents API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	maxFiles   int
}

// New constructs a client. token may be empty for anonymous access; maxFiles
// caps how many files one fetch returns.
func New(baseURL, token string, maxFiles int) *Client {
	if maxFiles <= 0 {
		maxFiles = 100
	}
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("GitHub %s %s", r.Method, r.URL.Path)
		}))
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second, Transport: transport},
		maxFiles:   maxFiles,
	}
}

// ParseRepoURL extracts owner and repo from a GitHub repository URL.
func ParseRepoURL(rawURL string) (owner, repo string, err error) {
	u := strings.TrimSuffix(strings.TrimSuffix(strings.TrimSpace(rawURL), "/"), ".git")
	idx := strings.Index(u, "github.com/")
	if idx < 0 {
		return "", "", fmt.Errorf("%w: not a github.com URL: %q", domain.ErrInvalidArgument, rawURL)
	}
	rest := strings.Trim(u[idx+len("github.com/"):], "/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: URL missing owner/repo: %q", domain.ErrInvalidArgument, rawURL)
	}
	repo = parts[1]
	if i := strings.IndexAny(repo, "?#"); i >= 0 {
		repo = repo[:i]
	}
	return parts[0], repo, nil
}

// contentsEntry is one item of a directory listing.
type contentsEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// fileContent is the contents API payload for a single file.
type fileContent struct {
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Content  string `json:"content"`
}

// FetchTextFiles walks the repository depth-first and returns decoded text
// files, capped at maxFiles. Individual file or subdirectory failures are
// logged and skipped; only a failure to list the repository root is an error.
func (c *Client) FetchTextFiles(ctx context.Context, owner, repo string) ([]domain.RepoFile, error) {
	branch := c.defaultBranch(ctx, owner, repo)

	var files []domain.RepoFile
	if err := c.walk(ctx, owner, repo, "", branch, &files, true); err != nil {
		return nil, err
	}
	slog.Info("fetched repository files",
		slog.String("owner", owner),
		slog.String("repo", repo),
		slog.Int("count", len(files)))
	return files, nil
}

// defaultBranch resolves the repository's default branch, falling back to main.
func (c *Client) defaultBranch(ctx context.Context, owner, repo string) string {
	var info struct {
		DefaultBranch string `json:"default_branch"`
	}
	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo)
	if err := c.getJSON(ctx, url, &info); err != nil {
		slog.Warn("failed to resolve default branch",
			slog.String("owner", owner),
			slog.String("repo", repo),
			slog.Any("error", err))
		return "main"
	}
	if info.DefaultBranch == "" {
		return "main"
	}
	return info.DefaultBranch
}

func (c *Client) walk(ctx context.Context, owner, repo, dir, branch string, files *[]domain.RepoFile, root bool) error {
	if len(*files) >= c.maxFiles {
		return nil
	}

	url := fmt.Sprintf("%s/repos/%s/%s/contents", c.baseURL, owner, repo)
	if dir != "" {
		url = fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, dir)
	}
	url += "?ref=" + branch

	var entries []contentsEntry
	if err := c.getJSON(ctx, url, &entries); err != nil {
		if root {
			return fmt.Errorf("op=github.FetchTextFiles: %w", err)
		}
		slog.Warn("failed to list repository directory",
			slog.String("dir", dir),
			slog.Any("error", err))
		return nil
	}

	for _, e := range entries {
		if len(*files) >= c.maxFiles {
			slog.Warn("repository file cap reached",
				slog.String("owner", owner),
				slog.String("repo", repo),
				slog.Int("max_files", c.maxFiles))
			return nil
		}
		switch e.Type {
		case "dir":
			if _, skip := skipDirs[strings.ToLower(e.Name)]; skip {
				continue
			}
			if err := c.walk(ctx, owner, repo, e.Path, branch, files, false); err != nil {
				return err
			}
		case "file":
			if !wantedFile(e.Name) {
				continue
			}
			content, ok := c.fetchFile(ctx, owner, repo, e.Path)
			if !ok {
				continue
			}
			*files = append(*files, domain.RepoFile{Path: e.Path, Content: content})
		}
	}
	return nil
}

// wantedFile reports whether a file name is text-like enough to fetch.
func wantedFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return true
	}
	_, ok := codeExtensions[ext]
	return ok
}

// fetchFile downloads and decodes one file. Non-files, non-base64 payloads
// and transport errors all report !ok.
func (c *Client) fetchFile(ctx context.Context, owner, repo, filePath string) (string, bool) {
	url := fmt.Sprintf("%s/repos/%s/%s/contents/%s", c.baseURL, owner, repo, filePath)
	var fc fileContent
	if err := c.getJSON(ctx, url, &fc); err != nil {
		slog.Warn("failed to fetch repository file",
			slog.String("path", filePath),
			slog.Any("error", err))
		return "", false
	}
	if fc.Type != "file" || fc.Encoding != "base64" {
		return "", false
	}
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(fc.Content, "\n", ""))
	if err != nil {
		slog.Warn("failed to decode repository file",
			slog.String("path", filePath),
			slog.Any("error", err))
		return "", false
	}
	return strings.ToValidUTF8(string(raw), "�"), true
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	c.setHeaders(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: github status 404", domain.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("github status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "assignment-grader")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}
}
