package grading

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
	"github.com/fairyhunter13/assignment-grader/pkg/textx"
)

// SystemPrompt accompanies every grading request sent to the model gateway.
const SystemPrompt = "You are a strict grader that returns JSON only."

// responseSchema is the exact JSON shape the model is instructed to return.
const responseSchema = `{
  "summary": string,
  "scores": [
    {
      "name": string,
      "score_percent": number,
      "reasoning": string,
      "details": [
        {
          "question": string,
          "student_answer": string,
          "correct_answer": string,
          "is_correct": boolean,
          "feedback": string
        }
      ]
    }
  ]
}
`

const singleRetrySchema = `Schema:
{ "summary": string, "scores": [{ "name": string, "score_percent": number, "reasoning": string, "details": [] }] }
`

const searchRetrySchema = `Schema:
{ "summary": string, "scores": [{ "name": string, "score_percent": number, "reasoning": string, "details": [{"question": string, "student_answer": string, "correct_answer": string, "is_correct": boolean, "feedback": string}] }] }
`

// BuildPrompt renders the grading prompt for one batch. The prompt lists the
// expected entry names in file order, flags unprocessable files, and inlines
// any question/answer pairs found during preparation ahead of the extracted
// content.
func BuildPrompt(title, description string, batch domain.Batch) string {
	names := make([]string, 0, len(batch.Files))
	for _, f := range batch.Files {
		names = append(names, promptName(f))
	}

	var b strings.Builder
	b.WriteString("Title: " + title + "\n")
	b.WriteString("Task Description (General Instructions Only):\n" + description + "\n\n")
	b.WriteString("You are a strict grader. You will be given ONLY the extracted TEXT CONTENT from uploaded files (PDF, DOCX, XLSX, TXT, etc.).\n")
	b.WriteString("\n")
	b.WriteString("Important constraints:\n")
	b.WriteString("- The uploaded file text may contain MULTIPLE students.\n")
	b.WriteString("- Each student MAY have a DIFFERENT SET OF QUESTIONS and DIFFERENT ANSWERS.\n")
	b.WriteString("- Questions are present inside the uploaded file text and may vary per student.\n")
	b.WriteString("- For EACH student:\n")
	b.WriteString("  - Identify the student name using patterns like 'Name:', 'Student:', 'Candidate:'.\n")
	b.WriteString("  - Extract ONLY the questions that belong to that specific student.\n")
	b.WriteString("  - Extract the corresponding answers provided by that student.\n")
	b.WriteString("- Do NOT assume that questions are shared across students.\n")
	b.WriteString("\n")
	b.WriteString("Grading rules:\n")
	b.WriteString("- If an Answer Key or Rubric is present anywhere in the file text, apply it to the relevant questions.\n")
	b.WriteString("- If no Answer Key is found, infer correct answers based on the question and standard academic expectations.\n")
	b.WriteString("- Evaluate each student STRICTLY based on THEIR OWN questions and answers only.\n")
	b.WriteString("- Compute an OVERALL percentage score (score_percent) between 0-100 (round to one decimal if needed).\n")
	b.WriteString("- Provide concise reasoning explaining which answers were correct or incorrect for that student.\n")
	b.WriteString("- If any questions, answers, or mappings are missing or ambiguous, be conservative and explicitly state assumptions.\n")
	b.WriteString("\n")
	b.WriteString("Output requirements:\n")
	b.WriteString("- Treat EACH FILE as ONE distinct student's submission; do NOT merge content across files.\n")
	b.WriteString("- Produce EXACTLY one entry per file, in the SAME ORDER as files appear below.\n")
	if len(names) > 0 {
		b.WriteString("- Use these exact names for the 'name' field, in order: " + strings.Join(names, ", ") + "\n")
	}
	b.WriteString("- For EACH student's questions, return granular 'details' entries for each question you identified.\n")
	b.WriteString("- For each detail include: the question (or a concise label if long), the student's answer (if present), the correct answer (from key or inferred), whether it is correct, and a short feedback.\n")
	b.WriteString("- Compute score_percent from the proportion of correct details (0-100).\n")
	b.WriteString("Return ONLY JSON (no prose, no markdown) in this exact schema:\n")
	b.WriteString(responseSchema)
	b.WriteString("\nHere are the files (extracted text follows):\n\n")

	for _, f := range batch.Files {
		fmt.Fprintf(&b, "--- File: %s (%s) ---\n", f.Filename, f.FileType)
		if f.IsError {
			b.WriteString("[WARNING: This file could not be processed. The content below is an error message, not actual file content. Return score_percent: 0.00 and reasoning explaining that the file could not be read.]\n")
		}
		if !f.HasQuestions && !f.IsError {
			b.WriteString("[NOTE: This file may contain questions/answers in tables, headers, or non-standard formats — search thoroughly.]\n")
		}
		if len(f.QAPairs) > 0 {
			b.WriteString("EXTRACTED_QUESTION_ANSWER_PAIRS:\n")
			for _, p := range f.QAPairs {
				a := "[NO ANSWER EXTRACTED]"
				if p.Answer != nil && *p.Answer != "" {
					a = *p.Answer
				}
				fmt.Fprintf(&b, "Q: %s\nA: %s\n\n", p.Question, a)
			}
		}
		b.WriteString(f.ContentProcessed)
		b.WriteString("\n\n")
	}
	return b.String()
}

// buildSingleFilePrompt renders the simplified prompt used to retry one file
// that came back without a result.
func buildSingleFilePrompt(title string, f domain.PreparedFile) string {
	if title == "" {
		title = "Grading Task"
	}
	content := f.ContentProcessed
	if content == "" {
		content = "[No content]"
	}
	parts := []string{
		"Title: " + title + "\n",
		"You are a strict grader. Return ONLY JSON in the exact schema specified below. Be concise and conservative when assumptions are needed.\n",
		singleRetrySchema,
		fmt.Sprintf("--- File: %s (%s) ---\n", f.Filename, f.FileType),
		content,
	}
	return strings.Join(parts, "\n")
}

// buildSearchPrompt renders the search-and-grade prompt used when a file's
// result has no details and its content may hold implicit questions.
func buildSearchPrompt(title string, f domain.PreparedFile, content string) string {
	if title == "" {
		title = "Grading Task"
	}
	parts := []string{
		"Title: " + title + "\n",
		"Instruction: The file below may not use explicit 'Question' markers. Search the content thoroughly for question-like text and the corresponding student answers. If you find none, say explicitly 'No questions found'. Otherwise, grade each student's answers and return ONLY JSON using this schema. Be conservative and do not hallucinate.",
		searchRetrySchema,
		fmt.Sprintf("--- File: %s (%s) ---\n", f.Filename, f.FileType),
		content,
	}
	return strings.Join(parts, "\n")
}

// promptName resolves the name the model should emit for a file.
func promptName(f domain.PreparedFile) string {
	if f.DisplayName != "" {
		return f.DisplayName
	}
	if s := textx.Stem(f.Filename); s != "" {
		return s
	}
	return "Unnamed"
}
