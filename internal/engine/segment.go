package engine

import "fmt"

// Block is a question line together with the content lines that follow it.
type Block struct {
	Heading string
	Lines   []string
}

type segmentState int

const (
	stateScanning segmentState = iota
	stateAccumulating
)

// Segment splits normalized lines into question blocks. Content before the
// first question is reported as orphan_line issues and otherwise ignored.
// Blocks that end up without any content line are dropped.
func Segment(lines []string) ([]Block, []Issue) {
	var (
		blocks  []Block
		issues  []Issue
		current Block
		state   = stateScanning
	)

	closeBlock := func() {
		if len(current.Lines) > 0 {
			blocks = append(blocks, current)
		}
		current = Block{}
	}

	for i, line := range lines {
		if IsQuestionLine(line) {
			if state == stateAccumulating {
				closeBlock()
			}
			current = Block{Heading: line}
			state = stateAccumulating
			continue
		}

		switch state {
		case stateScanning:
			issues = append(issues, Issue{
				Type:    IssueOrphanLine,
				Message: fmt.Sprintf("Line %d is not attached to any question", i+1),
				Text:    line,
			})
		case stateAccumulating:
			current.Lines = append(current.Lines, line)
		}
	}

	if state == stateAccumulating {
		closeBlock()
	}
	return blocks, issues
}
