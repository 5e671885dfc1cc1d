package service

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/logger"
	"github.com/stemsi/autoexam/internal/model"
)

// ErrInvalidLogCategory is returned for an unknown audit log name.
var ErrInvalidLogCategory = errors.New("unknown log category")

// Audit event names.
const (
	EventExamStart       = "exam_start"
	EventCheatingAttempt = "cheating_attempt"
	EventExamSubmit      = "exam_submit"
	EventLoginAttempt    = "login_attempt"
)

const (
	maxLogEntries = 1000
	// maxLogLine bounds one decoded audit line. Longer lines are skipped.
	maxLogLine = 1 << 20
	// maxCheatDetails bounds the client-supplied details of a cheat report.
	maxCheatDetails = 16 << 10
)

// ProctoringService writes the audit trail of exams into one JSON-lines
// file per category under LOGS_DIR.
type ProctoringService struct {
	dir  string
	logs map[model.LogCategory]*logger.FileLogger
}

// NewProctoringService opens (creating when missing) every audit log.
func NewProctoringService(dir string) (*ProctoringService, error) {
	s := &ProctoringService{dir: dir, logs: make(map[model.LogCategory]*logger.FileLogger)}
	for _, c := range model.LogCategories {
		fl, err := logger.NewFileLogger(dir, c.FileName())
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("open %s: %w", c.FileName(), err)
		}
		s.logs[c] = fl
	}
	return s, nil
}

// Close closes every audit file.
func (s *ProctoringService) Close() error {
	var errs []error
	for _, fl := range s.logs {
		errs = append(errs, fl.Close())
	}
	return errors.Join(errs...)
}

func (s *ProctoringService) entry(c model.LogCategory, event string) *zerolog.Event {
	return s.logs[c].Log().Str("event", event)
}

// LogExamStart records a teacher opening an exam session.
func (s *ProctoringService) LogExamStart(sessionID int64, teacher, filename, title string) {
	s.entry(model.LogSessions, EventExamStart).
		Int64("exam_id", sessionID).
		Str("teacher_id", teacher).
		Str("filename", filename).
		Str("title", title).
		Send()
}

// CheatEntry describes one cheating attempt for the audit log.
type CheatEntry struct {
	SessionID int64
	Token     string
	Student   string
	Type      string
	Details   map[string]any
	IP        string
	UserAgent string
}

// LogCheat records a cheating attempt.
func (s *ProctoringService) LogCheat(e CheatEntry) {
	ev := s.entry(model.LogCheating, EventCheatingAttempt).
		Int64("exam_id", e.SessionID).
		Str("student_session_id", e.Token).
		Str("student_name", e.Student).
		Str("type", e.Type).
		Str("ip_address", e.IP).
		Str("user_agent", e.UserAgent)
	if len(e.Details) > 0 {
		raw, err := json.Marshal(e.Details)
		switch {
		case err != nil:
			ev = ev.Str("details_error", err.Error())
		case len(raw) > maxCheatDetails:
			ev = ev.Bool("details_truncated", true).Int("details_size", len(raw))
		default:
			ev = ev.RawJSON("details", raw)
		}
	}
	ev.Send()
}

// SubmitEntry describes one submission for the audit log.
type SubmitEntry struct {
	SessionID        int64
	Token            string
	Student          string
	Score            int
	CheatingAttempts int
	TimeSpentSeconds int
	IP               string
	UserAgent        string
	DeviceID         string
}

// LogSubmission records a student handing in an exam.
func (s *ProctoringService) LogSubmission(e SubmitEntry) {
	s.entry(model.LogSubmissions, EventExamSubmit).
		Int64("exam_id", e.SessionID).
		Str("student_session_id", e.Token).
		Str("student_name", e.Student).
		Int("score", e.Score).
		Int("cheating_attempts", e.CheatingAttempts).
		Int("time_spent", e.TimeSpentSeconds).
		Str("ip_address", e.IP).
		Str("user_agent", e.UserAgent).
		Str("device_id", e.DeviceID).
		Send()
}

// LogLogin records a teacher login attempt, successful or not.
func (s *ProctoringService) LogLogin(username string, success bool, ip, userAgent string) {
	s.entry(model.LogLogins, EventLoginAttempt).
		Str("username", username).
		Bool("success", success).
		Str("ip_address", ip).
		Str("user_agent", userAgent).
		Send()
}

// Read decodes the newest entries of a category, oldest first. Lines that
// are not JSON objects are skipped.
func (s *ProctoringService) Read(c model.LogCategory, limit int) ([]map[string]any, error) {
	if !c.Valid() {
		return nil, ErrInvalidLogCategory
	}
	if limit <= 0 || limit > maxLogEntries {
		limit = maxLogEntries
	}

	f, err := os.Open(filepath.Join(s.dir, c.FileName()))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []map[string]any{}, nil
		}
		return nil, fmt.Errorf("open log: %w", err)
	}
	defer f.Close()

	entries := make([]map[string]any, 0)
	r := bufio.NewReaderSize(f, 64*1024)
	line := make([]byte, 0, 64*1024)
	skip := false
	for {
		chunk, err := r.ReadSlice('\n')
		if !skip {
			line = append(line, chunk...)
			if len(line) > maxLogLine {
				skip = true
			}
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}

		var e map[string]any
		if !skip && json.Unmarshal(line, &e) == nil && e != nil {
			entries = append(entries, e)
			if len(entries) > limit {
				entries = entries[1:]
			}
		}
		line, skip = line[:0], false

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read log: %w", err)
		}
	}
	return entries, nil
}
