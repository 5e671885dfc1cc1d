package model

import (
	"time"

	"github.com/stemsi/autoexam/internal/engine"
	"github.com/stemsi/autoexam/internal/session"
)

// StartExamRequest is the payload a teacher sends to open an exam session.
type StartExamRequest struct {
	Filename        string          `json:"filename" binding:"required,exam_filename"`
	Title           string          `json:"title" binding:"required,max=200"`
	Shuffle         *bool           `json:"shuffle"`
	MaxQuestions    int             `json:"max_questions" binding:"min=0,max=1000"`
	DurationMinutes int             `json:"duration_minutes" binding:"min=0,max=1440"`
	Features        map[string]bool `json:"features"`
}

// StartExamResponse is returned when an exam session opens.
type StartExamResponse struct {
	SessionID      int64  `json:"session_id"`
	StudentURL     string `json:"student_url"`
	MonitorURL     string `json:"monitor_url"`
	ResultsFolder  string `json:"results_folder"`
	TotalQuestions int    `json:"total_questions"`
}

// ExamInfo is the public description shown on the registration page.
type ExamInfo struct {
	SessionID       int64            `json:"session_id"`
	Title           string           `json:"title"`
	Status          session.Status   `json:"status"`
	DurationMinutes int              `json:"duration_minutes"`
	QuestionCount   int              `json:"question_count"`
	Language        string           `json:"language"`
	Direction       engine.Direction `json:"direction"`
}

// RegisterStudentRequest registers a student into a running session.
type RegisterStudentRequest struct {
	FirstName string `json:"first_name" binding:"required,max=100,person_name"`
	LastName  string `json:"last_name" binding:"required,max=100,person_name"`
}

// StudentQuestion is a question as sent to a student. It never carries the
// correct answer.
type StudentQuestion struct {
	Number  int                 `json:"number"`
	Text    string              `json:"text"`
	Display string              `json:"display"`
	Type    engine.QuestionKind `json:"type"`
	Options []string            `json:"options"`
}

// NewStudentQuestions strips answers from drawn questions.
func NewStudentQuestions(qs []engine.Question) []StudentQuestion {
	out := make([]StudentQuestion, len(qs))
	for i, q := range qs {
		opts := q.Options
		if q.IsOpen() {
			opts = []string{}
		}
		out[i] = StudentQuestion{
			Number:  q.Number,
			Text:    q.Text,
			Display: q.Display(),
			Type:    q.Kind,
			Options: opts,
		}
	}
	return out
}

// StudentExamView is what a registered student works from.
type StudentExamView struct {
	Token           string            `json:"token"`
	FirstName       string            `json:"first_name"`
	LastName        string            `json:"last_name"`
	Title           string            `json:"title"`
	StartTime       time.Time         `json:"start_time"`
	DurationSeconds int               `json:"duration_seconds"`
	Language        string            `json:"language"`
	Direction       engine.Direction  `json:"direction"`
	Questions       []StudentQuestion `json:"questions"`
}

// DeviceInfo is the browser fingerprint a student sends with a submission.
type DeviceInfo struct {
	DeviceID         string `json:"device_id" binding:"max=200"`
	Platform         string `json:"platform" binding:"max=200"`
	ScreenResolution string `json:"screen_resolution" binding:"max=50"`
	UserAgent        string `json:"user_agent_full" binding:"max=1000"`
}

// StudentTokenRequest identifies a student within a session.
type StudentTokenRequest struct {
	Token string `json:"token" binding:"required,uuid"`
}

// SubmitExamRequest carries the student's answers keyed by the question's
// display text, "N. text".
type SubmitExamRequest struct {
	Token   string            `json:"token" binding:"required,uuid"`
	Answers map[string]string `json:"answers"`
	Device  *DeviceInfo       `json:"device_info"`
}

// SubmitExamResponse reports the grading outcome. Score is nil when open
// questions need manual review.
type SubmitExamResponse struct {
	Score            *int   `json:"score"`
	Pending          bool   `json:"pending"`
	Message          string `json:"message"`
	TimeSpentSeconds int    `json:"time_spent_seconds"`
}

// CheatReportRequest is sent by the exam page when it detects suspicious
// activity (tab switch, copy, devtools, ...).
type CheatReportRequest struct {
	Token   string         `json:"token" binding:"required,uuid"`
	Type    string         `json:"type" binding:"required,max=64"`
	Details map[string]any `json:"details"`
}

// RefreshResponse returns the student's refresh counter.
type RefreshResponse struct {
	RefreshAttempts int `json:"refresh_attempts"`
}

// SessionSummary bundles session info with the student table.
type SessionSummary struct {
	Session  session.SessionInfo   `json:"session"`
	Students []session.StudentView `json:"students"`
}
