package engine

import (
	"fmt"
	"strings"
)

// IssueType identifies a problem found in exam content.
type IssueType string

const (
	IssueMissingAnswer       IssueType = "missing_answer"
	IssueInsufficientOptions IssueType = "insufficient_options"
	IssueOrphanLine          IssueType = "orphan_line"
	IssueDuplicateQuestion   IssueType = "duplicate_question"
)

// Blocking reports whether the issue makes the exam invalid. Orphan lines and
// duplicates are warnings only.
func (t IssueType) Blocking() bool {
	return t == IssueMissingAnswer || t == IssueInsufficientOptions
}

// Issue is a format problem absorbed during parsing.
type Issue struct {
	QuestionNum int       `json:"question_num,omitempty"`
	Type        IssueType `json:"type"`
	Message     string    `json:"message"`
	Text        string    `json:"text,omitempty"`
}

// Exam types reported by Validate.
const (
	ExamTypeMixed          = "Mixed"
	ExamTypeMultipleChoice = "Multiple Choice"
	ExamTypeOpen           = "Open Questions"
	ExamTypeUnknown        = "Unknown"
)

// Metadata summarizes exam content for the instructor.
type Metadata struct {
	Language            string    `json:"language"`
	Direction           Direction `json:"direction"`
	TotalQuestions      int       `json:"total_questions"`
	MultipleChoiceCount int       `json:"multiple_choice_count"`
	OpenQuestionsCount  int       `json:"open_questions_count"`
	ExamType            string    `json:"exam_type"`
	Valid               bool      `json:"valid"`
	Issues              []Issue   `json:"issues"`
}

// Validate parses content and reports counts plus every issue found.
func Validate(content string) Metadata {
	exam, blocks := parse(content)

	meta := Metadata{
		Language:       exam.Language,
		Direction:      exam.Direction,
		TotalQuestions: exam.Len(),
		Issues:         append([]Issue{}, exam.Issues...),
	}

	for i, q := range exam.Questions {
		num := i + 1
		raw := blocks[i].Heading + "\n" + strings.Join(blocks[i].Lines, "\n")

		if q.IsOpen() {
			meta.OpenQuestionsCount++
			continue
		}
		meta.MultipleChoiceCount++

		if !q.HasAnswer {
			meta.Issues = append(meta.Issues, Issue{
				QuestionNum: num,
				Type:        IssueMissingAnswer,
				Message:     fmt.Sprintf("Question %d: Missing correct answer", num),
				Text:        raw,
			})
		}

		options := 0
		for _, l := range q.Lines {
			if !isAnswerLine(l) {
				options++
			}
		}
		if options < 2 {
			meta.Issues = append(meta.Issues, Issue{
				QuestionNum: num,
				Type:        IssueInsufficientOptions,
				Message:     fmt.Sprintf("Question %d: Only %d options (need at least 2)", num, options),
				Text:        raw,
			})
		}
	}

	switch {
	case meta.MultipleChoiceCount > 0 && meta.OpenQuestionsCount > 0:
		meta.ExamType = ExamTypeMixed
	case meta.MultipleChoiceCount > 0:
		meta.ExamType = ExamTypeMultipleChoice
	case meta.OpenQuestionsCount > 0:
		meta.ExamType = ExamTypeOpen
	default:
		meta.ExamType = ExamTypeUnknown
	}

	meta.Valid = meta.TotalQuestions > 0
	for _, is := range meta.Issues {
		if is.Type.Blocking() {
			meta.Valid = false
			break
		}
	}
	return meta
}
