package usecase

import (
	"fmt"
	"log/slog"
	"path"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/extract"
	"github.com/fairyhunter13/assignment-grader/internal/grading"
)

// githubURLRe matches the first GitHub repository URL inside free text.
var githubURLRe = regexp.MustCompile(`https?://github\.com/[\w\-.]+/[\w\-.]+`)

// noRepoFilesMessage is returned to clients when a repository yields nothing
// gradable. The envelope stays a 200 so UIs can show it as a plain notice.
const noRepoFilesMessage = "No files found in the repository. Please check if the repository is public and accessible."

// RepoGradeService grades a GitHub repository synchronously against the
// rules in the request description. No job row is written; the grading
// pipeline runs inline and the outcome is returned directly.
type RepoGradeService struct {
	Fetcher domain.RepoFetcher
	Gateway domain.ModelGateway
	// PerFileChars and TotalChars bound how much repository content enters
	// the prompt; files past the total budget are dropped, not truncated.
	PerFileChars int
	TotalChars   int
}

// NewRepoGradeService constructs a RepoGradeService.
func NewRepoGradeService(f domain.RepoFetcher, g domain.ModelGateway, perFileChars, totalChars int) RepoGradeService {
	return RepoGradeService{Fetcher: f, Gateway: g, PerFileChars: perFileChars, TotalChars: totalChars}
}

// Grade fetches the repository's text files and grades them against the
// description. When githubURL is empty the first GitHub URL found in the
// description is used. An empty repository is not an error: the envelope
// carries success=false with an explanatory message.
func (s RepoGradeService) Grade(ctx domain.Context, description, githubURL string) (map[string]any, error) {
	description = strings.TrimSpace(description)
	if description == "" {
		return nil, fmt.Errorf("%w: description with grading rules required", domain.ErrInvalidArgument)
	}
	owner, repo, err := resolveRepoURL(githubURL, description)
	if err != nil {
		return nil, err
	}

	files, err := s.Fetcher.FetchTextFiles(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.RepoGrade: %w", err)
	}
	if len(files) == 0 {
		return map[string]any{"success": false, "error": noRepoFilesMessage}, nil
	}

	selected := s.selectWithinBudget(files)
	prepared := extract.Prepare(selected, s.PerFileChars)

	slog.Info("grading repository files",
		slog.String("owner", owner),
		slog.String("repo", repo),
		slog.Int("files", len(prepared)))
	grader := grading.NewGrader(s.Gateway, s.TotalChars)
	title := fmt.Sprintf("GitHub repository %s/%s", owner, repo)
	outcome, err := grader.Grade(ctx, title, description, prepared)
	if err != nil {
		return nil, fmt.Errorf("op=usecase.RepoGrade: %w", err)
	}

	return map[string]any{
		"success": true,
		"result": map[string]any{
			"summary": outcome.Summary,
			"scores":  outcome.Scores,
		},
		"raw_response": outcome.RawText,
	}, nil
}

// selectWithinBudget keeps files in listing order until the total content
// budget is reached, accounting each file at no more than the per-file limit
// since longer content is truncated to that limit before prompting. The
// first file is always kept.
func (s RepoGradeService) selectWithinBudget(files []domain.RepoFile) []extract.File {
	selected := make([]extract.File, 0, len(files))
	total := 0
	for _, rf := range files {
		n := utf8.RuneCountInString(rf.Content)
		if n > s.PerFileChars {
			n = s.PerFileChars
		}
		if total+n > s.TotalChars && len(selected) > 0 {
			slog.Warn("repository content budget reached",
				slog.Int("files_kept", len(selected)),
				slog.Int("files_total", len(files)))
			break
		}
		selected = append(selected, extract.File{
			Filename:    path.Base(rf.Path),
			DisplayName: rf.Path,
			FileType:    "text",
			Content:     rf.Content,
		})
		total += n
	}
	return selected
}

// resolveRepoURL picks the repository URL from the explicit argument or, when
// absent, from the first GitHub URL mentioned in the description, and splits
// it into owner and repository name.
func resolveRepoURL(githubURL, description string) (owner, repo string, err error) {
	raw := strings.TrimSpace(githubURL)
	if raw == "" {
		raw = githubURLRe.FindString(description)
		if raw == "" {
			return "", "", fmt.Errorf("%w: github repository url required", domain.ErrInvalidArgument)
		}
	}
	m := githubURLRe.FindString(raw)
	if m == "" {
		return "", "", fmt.Errorf("%w: invalid github repository url: %q", domain.ErrInvalidArgument, raw)
	}
	rest := m[strings.Index(m, "github.com/")+len("github.com/"):]
	parts := strings.SplitN(rest, "/", 2)
	owner = parts[0]
	repo = strings.TrimSuffix(parts[1], ".git")
	return owner, repo, nil
}
