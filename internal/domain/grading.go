package domain

// QAPair is one heuristically extracted question/answer pair. Answer is nil
// when a question was found with no answer text following it.
type QAPair struct {
	Question string
	Answer   *string
}

// PreparedFile is one input document after extraction and truncation, ready
// for batching. DisplayName is fixed at preparation time and is the join key
// for score reconciliation; it never changes afterwards.
type PreparedFile struct {
	Filename         string
	DisplayName      string
	FileType         string
	ContentProcessed string
	IsError          bool
	HasQuestions     bool
	QAPairs          []QAPair
}

// Batch is an ordered, size-bounded group of prepared files sent together in
// one prompt. A batch never reorders files and never holds zero files.
type Batch struct {
	Files []PreparedFile
}

// ScoreDetail is one sub-question evaluation inside a score entry.
type ScoreDetail struct {
	Question      string `json:"question"`
	StudentAnswer string `json:"student_answer"`
	CorrectAnswer string `json:"correct_answer"`
	IsCorrect     bool   `json:"is_correct"`
	Feedback      string `json:"feedback"`
}

// ScoreEntry is one grading result, either model-produced or synthesized.
// A nil ScorePercent distinguishes "not evaluated at all" from "evaluated as
// zero"; final output never leaves Reasoning empty.
type ScoreEntry struct {
	Name         string        `json:"name"`
	ScorePercent *float64      `json:"score_percent"`
	Reasoning    string        `json:"reasoning"`
	Details      []ScoreDetail `json:"details"`
}

// GradeOutcome is what one grading run produces: the joined batch summaries,
// exactly one score per input file in input order, and the concatenated raw
// model responses kept for diagnostics.
type GradeOutcome struct {
	Summary *string
	Scores  []ScoreEntry
	RawText string
}

// Score returns a pointer to v, for building ScoreEntry literals.
func Score(v float64) *float64 { return &v }
