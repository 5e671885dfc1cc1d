package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamRun is the durable record of one exam session. Session ids restart
// with the process, so runs are keyed by their own uuid.
type ExamRun struct {
	RunID           uuid.UUID  `json:"run_id"`
	SessionID       int64      `json:"session_id"`
	TeacherUsername string     `json:"teacher_username"`
	Filename        string     `json:"filename"`
	Title           string     `json:"title"`
	ResultsFolder   string     `json:"results_folder"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	Submissions     int        `json:"submissions"`
}

// SubmissionRecord is queued to Redis on submit and copied into PostgreSQL
// by the submission worker.
type SubmissionRecord struct {
	RunID            uuid.UUID         `json:"run_id"`
	StudentToken     uuid.UUID         `json:"student_token"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	Score            *int              `json:"score"`
	CheatingAttempts int               `json:"cheating_attempts"`
	RefreshAttempts  int               `json:"refresh_attempts"`
	TimeSpentSeconds int               `json:"time_spent_seconds"`
	Answers          map[string]string `json:"answers"`
	IPAddress        string            `json:"ip_address"`
	UserAgent        string            `json:"user_agent"`
	DeviceID         string            `json:"device_id"`
	SubmittedAt      time.Time         `json:"submitted_at"`
}

// CheatRecord is queued to Redis per cheating attempt and copied into
// PostgreSQL by the cheat worker.
type CheatRecord struct {
	RunID        uuid.UUID      `json:"run_id"`
	StudentToken uuid.UUID      `json:"student_token"`
	EventType    string         `json:"event_type"`
	Details      map[string]any `json:"details"`
	OccurredAt   time.Time      `json:"occurred_at"`
}
