package grading

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// Reconcile aligns aggregated score entries with the input files, producing
// exactly one entry per file in input order. Each file claims an unused entry
// by exact display-name match, then case-insensitive match, then the entry at
// the same position. Files left without a match receive a placeholder: zero
// percent when extraction failed, a nil score otherwise.
func Reconcile(files []domain.PreparedFile, scores []domain.ScoreEntry) []domain.ScoreEntry {
	final := make([]domain.ScoreEntry, 0, len(files))
	used := make(map[int]bool, len(scores))
	for idx, f := range files {
		base := f.DisplayName
		assigned := -1
		for j, s := range scores {
			if used[j] {
				continue
			}
			if s.Name != "" && s.Name == base {
				assigned = j
				break
			}
		}
		if assigned < 0 {
			for j, s := range scores {
				if used[j] {
					continue
				}
				if s.Name != "" && strings.EqualFold(s.Name, base) {
					assigned = j
					break
				}
			}
		}
		if assigned < 0 && idx < len(scores) && !used[idx] {
			assigned = idx
		}
		if assigned >= 0 {
			used[assigned] = true
			final = append(final, scores[assigned])
		} else {
			final = append(final, placeholderFor(f, idx))
		}
	}
	return final
}

func placeholderFor(f domain.PreparedFile, idx int) domain.ScoreEntry {
	name := f.DisplayName
	if name == "" {
		name = fmt.Sprintf("File %d", idx+1)
	}
	if f.IsError {
		return domain.ScoreEntry{
			Name:         name,
			ScorePercent: domain.Score(0),
			Reasoning:    "No content was found within the document to evaluate. The file could not be processed (may be corrupted, password-protected, or in an unsupported format).",
			Details:      []domain.ScoreDetail{},
		}
	}
	return domain.ScoreEntry{
		Name:      name,
		Reasoning: "No result returned by model for this file (possibly truncated/prompt overflow or model error).",
		Details:   []domain.ScoreDetail{},
	}
}
