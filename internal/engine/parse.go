package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrEmptyExam is returned when content holds no question at all.
var ErrEmptyExam = errors.New("exam contains no questions")

// Parse turns raw exam text into an Exam. Malformed lines never fail the
// parse; they are reported in Exam.Issues instead.
func Parse(content string) (*Exam, error) {
	exam, _ := parse(content)
	if exam.Len() == 0 {
		return nil, ErrEmptyExam
	}
	return exam, nil
}

// LoadFile reads and parses the exam stored at path.
func LoadFile(path string) (*Exam, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exam file: %w", err)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read exam file: %w", err)
	}

	exam, err := Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return exam, nil
}

// parse runs the whole pipeline and also returns the blocks the questions
// were built from, in the same order.
func parse(content string) (*Exam, []Block) {
	lines := Normalize(SplitLines(content))
	blocks, issues := Segment(lines)
	key, dupIssues := BuildAnswerKey(blocks)
	issues = append(issues, dupIssues...)

	questions := make([]Question, 0, len(blocks))
	for i, b := range blocks {
		text := StripOrdinal(b.Heading)
		answer, ok := key[text]
		kind := Classify(answer)
		questions = append(questions, Question{
			Number:    i + 1,
			Text:      text,
			Lines:     append([]string(nil), b.Lines...),
			Options:   buildOptions(kind, b.Lines),
			Kind:      kind,
			Answer:    answer,
			HasAnswer: ok,
		})
	}

	return &Exam{
		Questions: questions,
		Key:       key,
		Language:  DetectLanguage(content),
		Direction: DetectDirection(content),
		Issues:    issues,
		Source:    content,
	}, blocks
}
