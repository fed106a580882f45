// Package grading implements the batch orchestration pipeline that turns
// extracted submission text into per-file grading results: question/answer
// extraction, size-bounded batching, prompt construction, response parsing,
// and score reconciliation.
package grading

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

var (
	// questionLineRe marks a line that starts a question: an explicit
	// "Question"/"Q1" label or a numbered item like "3." or "2)".
	questionLineRe = regexp.MustCompile(`(?i)^\s*(?:Question\b[:\s]*|Q\d*[:\s]*|Q\d+\b|\d+\s*[.)\-:])`)
	// answerMarkerRe marks an inline "Answer:" label anywhere in a line.
	answerMarkerRe = regexp.MustCompile(`(?i)\bAnswer\b[:\s]*`)
	// questionStripRe removes the leading question label from a question line.
	questionStripRe = regexp.MustCompile(`(?i)^\s*(?:Question\b[:\s]*|Q\d*[:\s]*|\d+\s*[.)\-:]\s*)`)

	questionHintRes = []*regexp.Regexp{
		regexp.MustCompile(`(?im)\bQ(?:uestion)?\s*\d+\b`),
		regexp.MustCompile(`(?im)\bQ\d+\b`),
		regexp.MustCompile(`(?im)\bQuestion:\b`),
		regexp.MustCompile(`(?im)\bName:\b`),
		regexp.MustCompile(`(?im)\bStudent:\b`),
		regexp.MustCompile(`(?im)\bCandidate:\b`),
		regexp.MustCompile(`(?im)^\d+\.\s`),
	}
)

// splitLines normalizes line endings and right-trims every line.
func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	lines := strings.Split(normalized, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRightFunc(l, unicode.IsSpace)
	}
	return lines
}

// ExtractQAPairs scans extracted text for question/answer structure. It
// recognizes two shapes: tab-separated table rows whose cells mention
// questions or answers, and question lines (labeled, numbered, or containing
// "?") followed by answer lines collected up to the next question line. An
// "Answer:" marker inside the span is stripped and the remainder of the span
// is consumed into the same answer.
func ExtractQAPairs(text string) []domain.QAPair {
	var qa []domain.QAPair
	if text == "" {
		return qa
	}
	lines := splitLines(text)
	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++
			continue
		}
		if strings.Contains(line, "\t") {
			if pair, ok := tabRowPair(line); ok {
				qa = append(qa, pair)
				i++
				continue
			}
		}
		if questionLineRe.MatchString(line) || strings.Contains(line, "?") {
			qText := strings.TrimSpace(questionStripRe.ReplaceAllString(line, ""))
			if qText == "" {
				qText = line
			}
			var ansLines []string
			j := i + 1
			for j < len(lines) {
				l := strings.TrimSpace(lines[j])
				if l == "" {
					// skip blank separators unless the next line starts a question
					j++
					if j < len(lines) && questionLineRe.MatchString(lines[j]) {
						break
					}
					continue
				}
				if questionLineRe.MatchString(l) {
					break
				}
				if answerMarkerRe.MatchString(l) {
					if a := strings.TrimSpace(answerMarkerRe.ReplaceAllString(l, "")); a != "" {
						ansLines = append(ansLines, a)
					}
					j++
					for j < len(lines) && !questionLineRe.MatchString(lines[j]) {
						if s := strings.TrimSpace(lines[j]); s != "" {
							ansLines = append(ansLines, s)
						}
						j++
					}
					break
				}
				ansLines = append(ansLines, l)
				j++
			}
			qa = append(qa, domain.QAPair{
				Question: qText,
				Answer:   answerOrNil(strings.TrimSpace(strings.Join(ansLines, " "))),
			})
			i = j
			continue
		}
		i++
	}
	return qa
}

// tabRowPair maps a table-like row to a pair when one of its cells looks like
// a question/answer column. The first cell becomes the question and the
// second the answer.
func tabRowPair(line string) (domain.QAPair, bool) {
	cells := strings.Split(line, "\t")
	for k, c := range cells {
		cells[k] = strings.TrimSpace(c)
	}
	hit := false
	for _, c := range cells {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "question") || strings.Contains(lc, "answer") || lc == "q" {
			hit = true
			break
		}
	}
	if !hit {
		return domain.QAPair{}, false
	}
	answer := ""
	if len(cells) > 1 {
		answer = cells[1]
	}
	return domain.QAPair{Question: cells[0], Answer: answerOrNil(answer)}, true
}

func answerOrNil(a string) *string {
	if a == "" {
		return nil
	}
	return &a
}

// DetectQuestionLike reports whether text carries question-like markers such
// as "Q1"/"Question 2" labels, student name headers, or numbered items.
func DetectQuestionLike(text string) bool {
	if text == "" {
		return false
	}
	for _, re := range questionHintRes {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
