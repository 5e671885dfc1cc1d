package engine

import (
	"fmt"
	"strings"
)

// OpenMarkers are the phrases that turn a question into a free-response item
// when they appear in its first content line.
var OpenMarkers = []string{
	"Programming task:",
	"Open Question/Multiple lines question/task:",
	"Type your answer here",
}

// SyntheticMarker is inserted after questions that have no content line.
var SyntheticMarker = OpenMarkers[0]

// IsOpenMarker reports whether text contains any open-question marker.
func IsOpenMarker(text string) bool {
	for _, m := range OpenMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// Classify returns the kind of a question given its canonical answer.
func Classify(answer string) QuestionKind {
	if IsOpenMarker(answer) {
		return KindOpen
	}
	return KindMultipleChoice
}

// BuildAnswerKey binds each canonical question text to the first content
// line of the first block carrying that text. Later blocks with the same
// text never overwrite the binding; each collision is reported.
func BuildAnswerKey(blocks []Block) (AnswerKey, []Issue) {
	key := make(AnswerKey, len(blocks))
	var issues []Issue

	for i, b := range blocks {
		text := StripOrdinal(b.Heading)
		if _, exists := key[text]; exists {
			issues = append(issues, Issue{
				QuestionNum: i + 1,
				Type:        IssueDuplicateQuestion,
				Message:     fmt.Sprintf("Question %d repeats an earlier question; the first answer is kept", i+1),
				Text:        b.Heading,
			})
			continue
		}
		if len(b.Lines) == 0 {
			continue
		}
		key[text] = b.Lines[0]
	}
	return key, issues
}
