package session

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager owns every ExamSession of the process. Create one with NewManager
// and share it between handlers.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*ExamSession
	nextID   atomic.Int64

	now func() time.Time
	log zerolog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates an empty Manager.
func NewManager(log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[int64]*ExamSession),
		now:      time.Now,
		log:      log.With().Str("component", "session_manager").Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) get(id int64) (*ExamSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// StartExam registers a new running session and returns its id. Ids start at
// 1 and only grow.
func (m *Manager) StartExam(teacherID, filename, title string, settings Settings) int64 {
	id := m.nextID.Add(1)
	settings.Features = maps.Clone(settings.Features)

	s := &ExamSession{
		id:        id,
		teacherID: teacherID,
		filename:  filename,
		title:     title,
		startTime: m.now(),
		status:    StatusRunning,
		settings:  settings,
		students:  make(map[string]*StudentRecord),
	}

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	m.log.Info().
		Int64("exam_id", id).
		Str("teacher_id", teacherID).
		Str("filename", filename).
		Msg("Exam session started")
	return id
}

// SetResultsFolder records where the artifacts of a session are written.
func (m *Manager) SetResultsFolder(id int64, path string) error {
	s, ok := m.get(id)
	if !ok {
		return ErrNotFound
	}
	s.mu.Lock()
	s.resultsFolder = path
	s.mu.Unlock()
	return nil
}

// Session returns a snapshot of the session.
func (m *Manager) Session(id int64) (SessionInfo, error) {
	s, ok := m.get(id)
	if !ok {
		return SessionInfo{}, ErrNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info(), nil
}

// RegisterStudent adds a student to a running session and returns the
// opaque token identifying the attempt.
func (m *Manager) RegisterStudent(id int64, firstName, lastName string) (string, error) {
	s, ok := m.get(id)
	if !ok {
		return "", ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusRunning {
		return "", ErrSessionEnded
	}

	token := uuid.NewString()
	s.students[token] = &StudentRecord{
		Token:     token,
		FirstName: firstName,
		LastName:  lastName,
		StartTime: m.now(),
		Status:    StudentInProgress,
		Answers:   map[string]string{},
	}
	return token, nil
}

// RecordRefresh counts a page reload by the student and returns the new
// total.
func (m *Manager) RecordRefresh(id int64, token string) (int, error) {
	s, ok := m.get(id)
	if !ok {
		return 0, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[token]
	if !ok {
		return 0, ErrNotFound
	}
	st.RefreshAttempts++
	return st.RefreshAttempts, nil
}

// LogCheatAttempt appends to the student's cheat log. Unknown sessions or
// tokens are ignored.
func (m *Manager) LogCheatAttempt(id int64, token, attemptType string, details map[string]any) {
	s, ok := m.get(id)
	if !ok {
		m.log.Debug().Int64("exam_id", id).Str("type", attemptType).Msg("Cheat attempt for unknown session ignored")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[token]
	if !ok {
		m.log.Debug().Int64("exam_id", id).Str("type", attemptType).Msg("Cheat attempt for unknown student ignored")
		return
	}

	st.CheatingAttempts++
	st.CheatLog = append(st.CheatLog, CheatEvent{
		Timestamp: m.now(),
		Type:      attemptType,
		Details:   maps.Clone(details),
	})
}

// Submit completes the student's attempt with the given answers and score.
// A nil score means grading is pending.
func (m *Manager) Submit(id int64, token string, answers map[string]string, score *int) (StudentRecord, error) {
	s, ok := m.get(id)
	if !ok {
		return StudentRecord{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[token]
	if !ok {
		return StudentRecord{}, ErrNotFound
	}
	if s.status != StatusRunning {
		return StudentRecord{}, ErrSessionEnded
	}
	if st.Status != StudentInProgress {
		return StudentRecord{}, ErrAlreadySubmitted
	}

	st.Answers = maps.Clone(answers)
	if st.Answers == nil {
		st.Answers = map[string]string{}
	}
	if score != nil {
		v := *score
		st.Score = &v
	}
	st.freeze(StudentCompleted, m.now())
	return st.clone(), nil
}

// Student returns a copy of one student's record.
func (m *Manager) Student(id int64, token string) (StudentRecord, error) {
	s, ok := m.get(id)
	if !ok {
		return StudentRecord{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[token]
	if !ok {
		return StudentRecord{}, ErrNotFound
	}
	return st.clone(), nil
}

// StudentView returns the monitor projection of one student.
func (m *Manager) StudentView(id int64, token string) (StudentView, error) {
	s, ok := m.get(id)
	if !ok {
		return StudentView{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.students[token]
	if !ok {
		return StudentView{}, ErrNotFound
	}
	return st.view(m.now()), nil
}

// Summary lists every student of a session ordered by start time. Students
// still writing get their elapsed time computed now.
func (m *Manager) Summary(id int64) ([]StudentView, error) {
	s, ok := m.get(id)
	if !ok {
		return nil, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := m.now()
	views := make([]StudentView, 0, len(s.students))
	for _, st := range s.students {
		views = append(views, st.view(now))
	}

	sort.Slice(views, func(i, j int) bool {
		if views[i].StartTime.Equal(views[j].StartTime) {
			return views[i].Token < views[j].Token
		}
		return views[i].StartTime.Before(views[j].StartTime)
	})
	return views, nil
}

// EndExam closes a session. Only the owning teacher may end it; students
// still writing are marked abandoned. Ending twice is a no-op.
func (m *Manager) EndExam(id int64, teacherID string) error {
	s, ok := m.get(id)
	if !ok {
		return ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if teacherID != "" && s.teacherID != teacherID {
		return ErrForbidden
	}
	if s.status == StatusEnded {
		return nil
	}

	s.status = StatusEnded
	now := m.now()
	abandoned := 0
	for _, st := range s.students {
		if st.Status == StudentInProgress {
			st.freeze(StudentAbandoned, now)
			abandoned++
		}
	}

	m.log.Info().
		Int64("exam_id", id).
		Int("students", len(s.students)).
		Int("abandoned", abandoned).
		Msg("Exam session ended")
	return nil
}

// ActiveSessions lists running sessions ordered by id. An empty teacherID
// lists sessions of every teacher.
func (m *Manager) ActiveSessions(teacherID string) []SessionInfo {
	m.mu.RLock()
	all := slices.Collect(maps.Values(m.sessions))
	m.mu.RUnlock()

	out := make([]SessionInfo, 0, len(all))
	for _, s := range all {
		s.mu.Lock()
		info := s.info()
		s.mu.Unlock()

		if info.Status != StatusRunning {
			continue
		}
		if teacherID != "" && info.TeacherID != teacherID {
			continue
		}
		out = append(out, info)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// StudentURL is the page students open to join the exam.
func StudentURL(id int64, baseURL string) string {
	return fmt.Sprintf("%s/exam/%d", strings.TrimRight(baseURL, "/"), id)
}

// MonitorURL is the teacher's live monitor page for the exam.
func MonitorURL(id int64, baseURL string) string {
	return fmt.Sprintf("%s/teacher/exam/%d/monitor", strings.TrimRight(baseURL, "/"), id)
}
