// Package session keeps the live state of running exams: one ExamSession per
// teacher-started exam and one StudentRecord per student attempt.
//
// State lives in memory for the lifetime of the process. Each session carries
// its own lock so students of different exams never contend.
package session

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

// Errors returned by Manager operations. ErrSessionEnded also matches
// ErrNotFound: an ended session no longer accepts students.
var (
	ErrNotFound         = errors.New("exam session or student not found")
	ErrSessionEnded     = fmt.Errorf("%w: exam session has ended", ErrNotFound)
	ErrAlreadySubmitted = errors.New("exam already submitted")
	ErrForbidden        = errors.New("exam session belongs to another teacher")
)

// Status is the lifecycle state of an ExamSession.
type Status string

const (
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"
)

// StudentStatus is the lifecycle state of a StudentRecord.
type StudentStatus string

const (
	StudentInProgress StudentStatus = "in_progress"
	StudentCompleted  StudentStatus = "completed"
	StudentAbandoned  StudentStatus = "abandoned"
)

// Settings are stored verbatim when an exam starts.
type Settings struct {
	Shuffle      bool            `json:"shuffle"`
	MaxQuestions int             `json:"max_questions"`
	Duration     time.Duration   `json:"duration"`
	Port         int             `json:"port,omitempty"`
	Features     map[string]bool `json:"features,omitempty"`
}

// CheatEvent is one entry of a student's cheat log.
type CheatEvent struct {
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`
	Details   map[string]any `json:"details,omitempty"`
}

// StudentRecord is one student's attempt at an exam.
type StudentRecord struct {
	Token            string            `json:"student_session_id"`
	FirstName        string            `json:"first_name"`
	LastName         string            `json:"last_name"`
	StartTime        time.Time         `json:"start_time"`
	Status           StudentStatus     `json:"status"`
	Score            *int              `json:"score"`
	Answers          map[string]string `json:"answers"`
	RefreshAttempts  int               `json:"refresh_attempts"`
	CheatingAttempts int               `json:"cheating_attempts"`
	CheatLog         []CheatEvent      `json:"cheating_log"`
	EndTime          *time.Time        `json:"end_time"`
	TimeSpent        time.Duration     `json:"time_spent"`
}

// FullName joins first and last name.
func (r *StudentRecord) FullName() string {
	return r.FirstName + " " + r.LastName
}

func (r *StudentRecord) clone() StudentRecord {
	c := *r
	c.Answers = maps.Clone(r.Answers)
	c.CheatLog = slices.Clone(r.CheatLog)
	if r.Score != nil {
		s := *r.Score
		c.Score = &s
	}
	if r.EndTime != nil {
		e := *r.EndTime
		c.EndTime = &e
	}
	return c
}

// freeze ends the attempt at now with the given status.
func (r *StudentRecord) freeze(status StudentStatus, now time.Time) {
	r.Status = status
	r.EndTime = &now
	r.TimeSpent = now.Sub(r.StartTime)
}

// view projects the record at now. Students still writing get their elapsed
// time computed live.
func (r *StudentRecord) view(now time.Time) StudentView {
	spent := r.TimeSpent
	if r.Status == StudentInProgress {
		spent = now.Sub(r.StartTime)
	}

	v := StudentView{
		Token:            r.Token,
		Name:             r.FullName(),
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		StartTime:        r.StartTime,
		Status:           r.Status,
		RefreshAttempts:  r.RefreshAttempts,
		CheatingAttempts: r.CheatingAttempts,
		TimeSpent:        int(spent.Seconds()),
	}
	if r.Score != nil {
		sc := *r.Score
		v.Score = &sc
	}
	if r.EndTime != nil {
		e := *r.EndTime
		v.EndTime = &e
	}
	return v
}

// StudentView is the read-only projection shown on the monitor page.
type StudentView struct {
	Token            string        `json:"student_session_id"`
	Name             string        `json:"name"`
	FirstName        string        `json:"first_name"`
	LastName         string        `json:"last_name"`
	StartTime        time.Time     `json:"start_time"`
	EndTime          *time.Time    `json:"end_time"`
	Status           StudentStatus `json:"status"`
	Score            *int          `json:"score"`
	RefreshAttempts  int           `json:"refresh_attempts"`
	CheatingAttempts int           `json:"cheating_attempts"`
	TimeSpent        int           `json:"time_spent"`
}

// SessionInfo is a lock-free snapshot of an ExamSession.
type SessionInfo struct {
	ID            int64     `json:"exam_id"`
	TeacherID     string    `json:"teacher_id"`
	Filename      string    `json:"filename"`
	Title         string    `json:"title"`
	StartTime     time.Time `json:"start_time"`
	Status        Status    `json:"status"`
	Settings      Settings  `json:"settings"`
	ResultsFolder string    `json:"results_folder,omitempty"`
	StudentCount  int       `json:"student_count"`
}

// ExamSession is one teacher-started run of an exam.
type ExamSession struct {
	mu sync.Mutex

	id            int64
	teacherID     string
	filename      string
	title         string
	startTime     time.Time
	status        Status
	settings      Settings
	resultsFolder string
	students      map[string]*StudentRecord
}

// info must be called with s.mu held.
func (s *ExamSession) info() SessionInfo {
	settings := s.settings
	settings.Features = maps.Clone(s.settings.Features)
	return SessionInfo{
		ID:            s.id,
		TeacherID:     s.teacherID,
		Filename:      s.filename,
		Title:         s.title,
		StartTime:     s.startTime,
		Status:        s.status,
		Settings:      settings,
		ResultsFolder: s.resultsFolder,
		StudentCount:  len(s.students),
	}
}
