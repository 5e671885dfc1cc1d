package engine

import (
	"math"
	"strings"
)

// ScorePending is returned when a submission contains an open question and
// must wait for manual review.
const ScorePending = -1

// Score grades submitted answers (keyed by the rendered question text)
// against key and returns a percentage in [0, 100] or ScorePending.
//
// total is the number of questions the student was shown; when it is not
// positive the number of submitted answers is used instead. Answers are
// compared after trimming surrounding whitespace, case-sensitively.
func Score(key AnswerKey, submitted map[string]string, total int) int {
	correct := 0
	for question, answer := range submitted {
		want, ok := key.Lookup(question)
		if !ok {
			continue
		}
		if IsOpenMarker(want) {
			return ScorePending
		}
		if strings.TrimSpace(answer) == strings.TrimSpace(want) {
			correct++
		}
	}

	if total <= 0 {
		total = len(submitted)
	}
	if total == 0 {
		return 0
	}
	if correct > total {
		correct = total
	}
	// Half-way percentages round to even, e.g. 1 of 8 scores 12.
	return int(math.RoundToEven(100 * float64(correct) / float64(total)))
}

// HasOpenQuestions reports whether any of questions needs manual review.
func HasOpenQuestions(questions []Question) bool {
	for _, q := range questions {
		if q.IsOpen() {
			return true
		}
	}
	return false
}
