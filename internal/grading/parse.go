package grading

import (
	"encoding/json"
	"regexp"

	"github.com/fairyhunter13/assignment-grader/internal/domain"
)

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*\\})\\s*```")
	braceSpanRe   = regexp.MustCompile(`\{[\s\S]*\}`)
)

// responseEnvelope decodes the top-level fields independently so a malformed
// scores array cannot discard a usable summary, and vice versa.
type responseEnvelope struct {
	Summary json.RawMessage `json:"summary"`
	Scores  json.RawMessage `json:"scores"`
}

// ParseResponse extracts the summary and score entries from a raw model
// response. Candidates are tried in order: the raw text as-is, the contents
// of a fenced code block, and the span from the first "{" to the last "}".
// Parsing never fails hard: an unusable response yields no summary and no
// scores, and individual entries that do not fit the schema are dropped.
func ParseResponse(raw string) (*string, []domain.ScoreEntry) {
	for _, candidate := range jsonCandidates(raw) {
		var env responseEnvelope
		if err := json.Unmarshal([]byte(candidate), &env); err != nil {
			continue
		}
		return decodeSummary(env.Summary), decodeScores(env.Scores)
	}
	return nil, nil
}

func jsonCandidates(raw string) []string {
	candidates := []string{raw}
	if m := fencedBlockRe.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := braceSpanRe.FindString(raw); m != "" {
		candidates = append(candidates, m)
	}
	return candidates
}

func decodeSummary(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	var s *string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return s
}

func decodeScores(raw json.RawMessage) []domain.ScoreEntry {
	if raw == nil {
		return nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil
	}
	scores := make([]domain.ScoreEntry, 0, len(elems))
	for _, e := range elems {
		var entry domain.ScoreEntry
		if err := json.Unmarshal(e, &entry); err != nil {
			continue
		}
		scores = append(scores, entry)
	}
	return scores
}
