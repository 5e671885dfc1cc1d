package model

import (
	"time"

	"github.com/stemsi/autoexam/internal/engine"
)

// ExamFile describes one exam source file in a teacher's directory.
type ExamFile struct {
	Name     string    `json:"name"`
	Size     int64     `json:"size"`
	Modified time.Time `json:"modified"`
}

// SaveExamSourceRequest replaces the content of an exam file.
type SaveExamSourceRequest struct {
	Content string `json:"content" binding:"required"`
}

// ExamSource is the raw content of an exam file.
type ExamSource struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ValidateExamRequest carries exam source text to check without saving.
type ValidateExamRequest struct {
	Content string `json:"content"`
}

// PreviewExamRequest renders exam source as a student would see it.
type PreviewExamRequest struct {
	Content string `json:"content" binding:"required"`
	Shuffle bool   `json:"shuffle"`
}

// PreviewExamResponse holds the rendered preview, answers included.
type PreviewExamResponse struct {
	Questions []engine.Question `json:"questions"`
	Total     int               `json:"total"`
	Language  string            `json:"language"`
	Direction engine.Direction  `json:"direction"`
	Issues    []engine.Issue    `json:"issues"`
}
