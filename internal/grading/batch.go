package grading

import (
	"unicode/utf8"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

// BuildBatches greedily groups files into batches whose combined processed
// content stays within totalBudget characters. Input order is preserved and
// the first file of a batch is always admitted, so a single oversized file
// still gets a batch of its own.
func BuildBatches(files []domain.PreparedFile, totalBudget int) []domain.Batch {
	var batches []domain.Batch
	var current []domain.PreparedFile
	size := 0
	for _, f := range files {
		n := utf8.RuneCountInString(f.ContentProcessed)
		switch {
		case size == 0:
			current = append(current, f)
			size += n
		case size+n > totalBudget:
			batches = append(batches, domain.Batch{Files: current})
			current = []domain.PreparedFile{f}
			size = n
		default:
			current = append(current, f)
			size += n
		}
	}
	if len(current) > 0 {
		batches = append(batches, domain.Batch{Files: current})
	}
	return batches
}
