package model

import (
	"time"

	"github.com/stemsi/autoexam/internal/session"
)

// MonitorEventType names the events pushed to a teacher's live monitor.
type MonitorEventType string

const (
	MonitorSnapshot         MonitorEventType = "snapshot"
	MonitorStudentJoined    MonitorEventType = "student_joined"
	MonitorStudentSubmitted MonitorEventType = "student_submitted"
	MonitorCheatAttempt     MonitorEventType = "cheat_attempt"
	MonitorRefresh          MonitorEventType = "refresh"
	MonitorSessionEnded     MonitorEventType = "session_ended"
)

// MonitorEvent is published on the session's Redis channel and forwarded to
// SSE clients verbatim.
type MonitorEvent struct {
	Type      MonitorEventType      `json:"type"`
	SessionID int64                 `json:"session_id"`
	Student   *session.StudentView  `json:"student,omitempty"`
	Students  []session.StudentView `json:"students,omitempty"`
	CheatType string                `json:"cheat_type,omitempty"`
	Timestamp time.Time             `json:"timestamp"`
}
