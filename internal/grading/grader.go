package grading

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/pkg/textx"
)

// rawSnippetLimit caps how much of an unusable retry response is attached to
// a placeholder's reasoning.
const rawSnippetLimit = 500

// Grader coordinates batched model calls and reconciles the results so that
// every input file ends up with exactly one score entry.
type Grader struct {
	gateway     domain.ModelGateway
	totalBudget int
}

// NewGrader builds a Grader. totalBudget caps the combined processed content
// length per batch, in characters.
func NewGrader(gateway domain.ModelGateway, totalBudget int) *Grader {
	return &Grader{gateway: gateway, totalBudget: totalBudget}
}

// Grade runs the full pipeline over the prepared files: batching, one model
// call per batch, response parsing, reconciliation, and retry passes for
// files that came back without a usable result. Failed batch calls degrade
// to placeholders rather than failing the run; the only returned error is
// context cancellation.
func (g *Grader) Grade(ctx domain.Context, title, description string, files []domain.PreparedFile) (domain.GradeOutcome, error) {
	batches := BuildBatches(files, g.totalBudget)

	var (
		agg          []domain.ScoreEntry
		summaryParts []string
		rawParts     []string
	)
	for _, batch := range batches {
		prompt := BuildPrompt(title, description, batch)
		raw, err := g.gateway.Generate(ctx, SystemPrompt, prompt)
		if err != nil {
			if ctx.Err() != nil {
				return domain.GradeOutcome{}, ctx.Err()
			}
			slog.Warn("batch grading call failed",
				slog.Int("batch_files", len(batch.Files)),
				slog.Any("error", err))
			continue
		}
		rawParts = append(rawParts, raw)

		summary, scores := ParseResponse(raw)
		scores = assignBatchNames(scores, batch)
		agg = append(agg, scores...)
		if summary != nil && *summary != "" {
			summaryParts = append(summaryParts, *summary)
		}
	}

	final := Reconcile(files, agg)
	if err := g.remediate(ctx, title, files, final); err != nil {
		return domain.GradeOutcome{}, err
	}

	outcome := domain.GradeOutcome{
		Scores:  final,
		RawText: strings.Join(rawParts, "\n\n"),
	}
	if len(summaryParts) > 0 {
		s := strings.Join(summaryParts, "\n---\n")
		outcome.Summary = &s
	}
	return outcome, nil
}

// assignBatchNames overwrites entry names with the batch's display names. A
// single-file batch claims every entry; otherwise names are assigned by
// position over the shorter of the two lists, skipping empty display names.
func assignBatchNames(scores []domain.ScoreEntry, batch domain.Batch) []domain.ScoreEntry {
	if len(scores) == 0 {
		return scores
	}
	if len(batch.Files) == 1 {
		base := batch.Files[0].DisplayName
		if base == "" {
			base = "Unnamed"
		}
		for i := range scores {
			scores[i].Name = base
		}
		return scores
	}
	n := len(scores)
	if len(batch.Files) < n {
		n = len(batch.Files)
	}
	for i := 0; i < n; i++ {
		if batch.Files[i].DisplayName != "" {
			scores[i].Name = batch.Files[i].DisplayName
		}
	}
	return scores
}

// remediate runs the retry passes when at least one file has no score. Error
// placeholders carry a zero score and do not count as missing.
func (g *Grader) remediate(ctx domain.Context, title string, files []domain.PreparedFile, final []domain.ScoreEntry) error {
	missing := 0
	for _, s := range final {
		if s.ScorePercent == nil {
			missing++
		}
	}
	if missing == 0 {
		return nil
	}
	slog.Warn("placeholders added for files without model results", slog.Int("count", missing))
	if err := g.retrySingles(ctx, title, files, final); err != nil {
		return err
	}
	return g.retrySearch(ctx, title, files, final)
}

// retrySingles re-queries the model once per file whose score is still nil,
// with a single-file prompt. A usable first entry replaces the placeholder;
// otherwise a snippet of the raw response is attached to the reasoning.
func (g *Grader) retrySingles(ctx domain.Context, title string, files []domain.PreparedFile, final []domain.ScoreEntry) error {
	for i := range final {
		if final[i].ScorePercent != nil {
			continue
		}
		if i >= len(files) {
			continue
		}
		fd := files[i]

		raw, err := g.gateway.Generate(ctx, SystemPrompt, buildSingleFilePrompt(title, fd))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("single-file retry failed",
				slog.String("filename", fd.Filename),
				slog.Any("error", err))
			continue
		}
		if _, scores := ParseResponse(raw); len(scores) > 0 {
			entry := scores[0]
			entry.Name = fd.DisplayName
			final[i] = entry
			slog.Info("recovered result via single-file retry", slog.String("filename", fd.Filename))
			continue
		}
		if raw != "" {
			final[i].Reasoning += " Model raw response on retry: " + textx.Snippet(raw, rawSnippetLimit)
		}
	}
	return nil
}

// retrySearch re-queries the model for files whose entry has no details and
// whose reasoning or score suggests nothing was found, asking it to hunt for
// implicit question/answer text.
func (g *Grader) retrySearch(ctx domain.Context, title string, files []domain.PreparedFile, final []domain.ScoreEntry) error {
	for i := range final {
		if len(final[i].Details) > 0 {
			continue
		}
		if i >= len(files) {
			continue
		}
		fd := files[i]

		content := strings.TrimSpace(fd.ContentProcessed)
		if utf8.RuneCountInString(content) < 10 {
			continue
		}
		reason := strings.ToLower(final[i].Reasoning)
		sp := final[i].ScorePercent
		if !strings.Contains(reason, "no questions") && sp != nil && *sp != 0 {
			continue
		}

		raw, err := g.gateway.Generate(ctx, SystemPrompt, buildSearchPrompt(title, fd, content))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Debug("search-and-grade retry failed",
				slog.String("filename", fd.Filename),
				slog.Any("error", err))
			continue
		}
		if _, scores := ParseResponse(raw); len(scores) > 0 {
			entry := scores[0]
			if fd.DisplayName != "" {
				entry.Name = fd.DisplayName
			}
			final[i] = entry
			slog.Info("recovered detailed grading via search-and-grade retry", slog.String("filename", fd.Filename))
			continue
		}
		if raw != "" {
			final[i].Reasoning += " Model raw search response: " + textx.Snippet(raw, rawSnippetLimit)
		}
	}
	return nil
}
