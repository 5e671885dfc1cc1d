// Package engine turns plain-text question banks into structured exams,
// derives answer keys, shuffles per-student views and scores submissions.
//
// Everything here is pure and deterministic apart from the randomness used by
// Shuffle, so a parsed Exam can be shared by any number of goroutines.
package engine

import (
	"fmt"
	"slices"
	"strings"
)

// QuestionKind classifies a question for shuffling and grading.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindOpen           QuestionKind = "open"
)

// Question is a single parsed exam question.
type Question struct {
	Number    int          `json:"number"`
	Text      string       `json:"text"`
	Lines     []string     `json:"-"`
	Options   []string     `json:"options"`
	Kind      QuestionKind `json:"type"`
	Answer    string       `json:"correct_answer,omitempty"`
	HasAnswer bool         `json:"-"`
}

// Display renders the question the way it is shown to students and keyed in
// submissions, e.g. "3. What is 2+2?".
func (q Question) Display() string {
	return fmt.Sprintf("%d. %s", q.Number, q.Text)
}

// IsOpen reports whether the question needs manual review.
func (q Question) IsOpen() bool {
	return q.Kind == KindOpen
}

// Clone returns a deep copy of q.
func (q Question) Clone() Question {
	c := q
	c.Lines = slices.Clone(q.Lines)
	c.Options = slices.Clone(q.Options)
	return c
}

// AnswerKey maps canonical question text to its correct answer line.
type AnswerKey map[string]string

// Lookup resolves a submitted question (which may still carry its rendered
// ordinal) to the canonical answer.
func (k AnswerKey) Lookup(submitted string) (string, bool) {
	ans, ok := k[StripOrdinal(submitted)]
	return ans, ok
}

// Direction is the text direction used to render an exam.
type Direction string

const (
	DirectionLTR Direction = "ltr"
	DirectionRTL Direction = "rtl"
)

// Exam is a fully parsed question bank. It is never mutated after Parse.
type Exam struct {
	Questions []Question `json:"questions"`
	Key       AnswerKey  `json:"-"`
	Language  string     `json:"language"`
	Direction Direction  `json:"direction"`
	Issues    []Issue    `json:"issues,omitempty"`
	Source    string     `json:"-"`
}

// Len returns the number of parsed questions.
func (e *Exam) Len() int {
	return len(e.Questions)
}

// buildOptions derives the displayable options from a question's raw lines.
// Multiple-choice questions drop "answer:" lines and markers; open questions
// keep only their marker lines.
func buildOptions(kind QuestionKind, lines []string) []string {
	opts := make([]string, 0, len(lines))
	for _, l := range lines {
		marker := IsOpenMarker(l)
		if kind == KindOpen {
			if marker {
				opts = append(opts, l)
			}
			continue
		}
		if marker || isAnswerLine(l) {
			continue
		}
		opts = append(opts, l)
	}
	return opts
}

func isAnswerLine(line string) bool {
	return strings.HasPrefix(strings.ToLower(line), "answer:")
}
