package engine

import "math/rand/v2"

// Randomizer permutes n elements through swap. *rand.Rand satisfies it.
type Randomizer interface {
	Shuffle(n int, swap func(i, j int))
}

type globalRand struct{}

func (globalRand) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultRandomizer uses the goroutine-safe global source.
var DefaultRandomizer Randomizer = globalRand{}

// Shuffle returns a copy of questions. When enabled, options of every
// multiple-choice question are permuted, the question order is permuted and
// questions are renumbered from 1. The input slice is never touched.
func Shuffle(questions []Question, enabled bool, rnd Randomizer) []Question {
	out := make([]Question, len(questions))
	for i, q := range questions {
		out[i] = q.Clone()
	}
	if !enabled {
		return out
	}
	if rnd == nil {
		rnd = DefaultRandomizer
	}

	for i := range out {
		if out[i].Kind != KindMultipleChoice {
			continue
		}
		opts := out[i].Options
		rnd.Shuffle(len(opts), func(a, b int) { opts[a], opts[b] = opts[b], opts[a] })
	}

	rnd.Shuffle(len(out), func(a, b int) { out[a], out[b] = out[b], out[a] })

	for i := range out {
		out[i].Number = i + 1
	}
	return out
}

// Draw builds one student's view of exam: shuffled (when enabled) and then
// cut to maxQuestions. maxQuestions <= 0 keeps every question.
func Draw(exam *Exam, shuffle bool, maxQuestions int, rnd Randomizer) []Question {
	qs := Shuffle(exam.Questions, shuffle, rnd)
	if maxQuestions > 0 && len(qs) > maxQuestions {
		qs = qs[:maxQuestions]
	}
	return qs
}
