package extract

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/internal/grading"
)

// File is one extracted document entering the grading pipeline.
type File struct {
	Filename    string
	DisplayName string
	FileType    string
	Content     string
}

// noTextPlaceholder substitutes for content that stripped to nothing.
const noTextPlaceholder = "[No extractable text from file]"

// Prepare turns extracted documents into prompt-ready files: extractor error
// placeholders are rewritten into an explicit error notice, empty content is
// substituted, oversized content is truncated to perFileLimit characters with
// a trailing note, and question/answer structure is detected on the truncated
// content.
func Prepare(files []File, perFileLimit int) []domain.PreparedFile {
	prepared := make([]domain.PreparedFile, 0, len(files))
	for _, f := range files {
		content := f.Content
		isErr := IsExtractionError(content)
		if strings.TrimSpace(content) == "" || isErr {
			if isErr {
				label := f.Filename
				if label == "" {
					label = "file"
				}
				content = fmt.Sprintf("[ERROR: Could not extract content from %s. The file may be corrupted, password-protected, or in an unsupported format.]", label)
			} else {
				content = noTextPlaceholder
			}
		}

		note := ""
		if runes := []rune(content); len(runes) > perFileLimit {
			overflow := len(runes) - perFileLimit
			content = string(runes[:perFileLimit])
			note = fmt.Sprintf("\n[TRUNCATED %d chars due to per-file limit]", overflow)
		}

		// question detection runs on the truncated content, without the note
		qaPairs := grading.ExtractQAPairs(content)
		hasQuestions := len(qaPairs) > 0 || grading.DetectQuestionLike(content)

		prepared = append(prepared, domain.PreparedFile{
			Filename:         f.Filename,
			DisplayName:      f.DisplayName,
			FileType:         f.FileType,
			ContentProcessed: content + note,
			IsError:          isErr,
			HasQuestions:     hasQuestions,
			QAPairs:          qaPairs,
		})
	}
	return prepared
}
