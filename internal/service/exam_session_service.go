package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/engine"
	"github.com/stemsi/autoexam/internal/i18n"
	"github.com/stemsi/autoexam/internal/metrics"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/results"
	"github.com/stemsi/autoexam/internal/session"
)

// MonitorPublisher delivers live events to teacher monitors.
type MonitorPublisher interface {
	Publish(ctx context.Context, ev model.MonitorEvent) error
}

// ArchiveQueue hands records to the background archive workers.
type ArchiveQueue interface {
	EnqueueSubmission(ctx context.Context, rec model.SubmissionRecord) error
	EnqueueCheat(ctx context.Context, rec model.CheatRecord) error
}

// RunStore persists the history of exam sessions.
type RunStore interface {
	Create(ctx context.Context, run *model.ExamRun) error
	MarkEnded(ctx context.Context, runID uuid.UUID, at time.Time) error
	ListByTeacher(ctx context.Context, username string, limit int) ([]model.ExamRun, error)
	GetRun(ctx context.Context, runID uuid.UUID) (*model.ExamRun, error)
	ListSubmissions(ctx context.Context, runID uuid.UUID) ([]model.SubmissionRecord, error)
}

// ClientMeta describes the HTTP client behind a student request.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// liveExam is the parsed exam behind a running session plus every
// student's drawn questions, so reloads show the same paper.
type liveExam struct {
	exam  *engine.Exam
	runID uuid.UUID

	mu    sync.Mutex
	draws map[string][]engine.Question
	ended bool
}

func (l *liveExam) draw(token string) ([]engine.Question, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	qs, ok := l.draws[token]
	return qs, ok
}

// ExamSessionService runs exams end to end: it opens sessions from exam
// files, registers and grades students and fans every event out to the
// results folder, the audit logs, the live monitor and the archive.
type ExamSessionService struct {
	manager *session.Manager
	files   *ExamFileService
	results *results.Writer
	proctor *ProctoringService
	monitor MonitorPublisher
	archive ArchiveQueue
	runs    RunStore
	cfg     *config.Config
	rnd     engine.Randomizer
	log     zerolog.Logger

	mu   sync.RWMutex
	live map[int64]*liveExam
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	manager *session.Manager,
	files *ExamFileService,
	writer *results.Writer,
	proctor *ProctoringService,
	monitor MonitorPublisher,
	archive ArchiveQueue,
	runs RunStore,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		manager: manager,
		files:   files,
		results: writer,
		proctor: proctor,
		monitor: monitor,
		archive: archive,
		runs:    runs,
		cfg:     cfg,
		rnd:     engine.DefaultRandomizer,
		log:     log.With().Str("component", "exam_session_service").Logger(),
		live:    make(map[int64]*liveExam),
	}
}

func (s *ExamSessionService) getLive(id int64) (*liveExam, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.live[id]
	if !ok {
		return nil, session.ErrNotFound
	}
	return l, nil
}

// shownCount is how many questions each student of the session sees.
func shownCount(exam *engine.Exam, maxQuestions int) int {
	if maxQuestions > 0 && maxQuestions < exam.Len() {
		return maxQuestions
	}
	return exam.Len()
}

// ─── Teacher operations ────────────────────────────────────────────────

// Start opens a session for one of the teacher's exam files.
func (s *ExamSessionService) Start(ctx context.Context, teacher string, req model.StartExamRequest) (*model.StartExamResponse, error) {
	exam, err := s.files.Load(teacher, req.Filename)
	if err != nil {
		return nil, err
	}
	examPath, err := s.files.Path(teacher, req.Filename)
	if err != nil {
		return nil, err
	}

	shuffle := s.cfg.DefaultShuffle
	if req.Shuffle != nil {
		shuffle = *req.Shuffle
	}
	maxQuestions := req.MaxQuestions
	if maxQuestions == 0 {
		maxQuestions = s.cfg.DefaultMaxQuestions
	}
	port, _ := strconv.Atoi(s.cfg.ServerPort)

	title := strings.TrimSpace(req.Title)
	settings := session.Settings{
		Shuffle:      shuffle,
		MaxQuestions: maxQuestions,
		Duration:     time.Duration(req.DurationMinutes) * time.Minute,
		Port:         port,
		Features:     req.Features,
	}

	id := s.manager.StartExam(teacher, req.Filename, title, settings)

	folder, err := s.results.CreateFolder(teacher, title, examPath)
	if err != nil {
		_ = s.manager.EndExam(id, teacher)
		return nil, fmt.Errorf("create results folder: %w", err)
	}
	if err := s.manager.SetResultsFolder(id, folder); err != nil {
		return nil, err
	}

	info, err := s.manager.Session(id)
	if err != nil {
		return nil, err
	}

	run := &model.ExamRun{
		RunID:           uuid.New(),
		SessionID:       id,
		TeacherUsername: teacher,
		Filename:        req.Filename,
		Title:           title,
		ResultsFolder:   folder,
		StartedAt:       info.StartTime,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.log.Warn().Err(err).Int64("exam_id", id).Msg("Failed to archive exam run")
	}

	s.mu.Lock()
	s.live[id] = &liveExam{exam: exam, runID: run.RunID, draws: make(map[string][]engine.Question)}
	s.mu.Unlock()

	s.proctor.LogExamStart(id, teacher, req.Filename, title)
	metrics.ActiveSessions.Inc()

	s.log.Info().
		Int64("exam_id", id).
		Str("teacher", teacher).
		Str("file", req.Filename).
		Int("questions", exam.Len()).
		Bool("shuffle", shuffle).
		Msg("Exam session started")

	return &model.StartExamResponse{
		SessionID:      id,
		StudentURL:     session.StudentURL(id, s.cfg.PublicBaseURL),
		MonitorURL:     session.MonitorURL(id, s.cfg.PublicBaseURL),
		ResultsFolder:  folder,
		TotalQuestions: shownCount(exam, maxQuestions),
	}, nil
}

// owned returns the session info when teacher owns the session.
func (s *ExamSessionService) owned(id int64, teacher string) (session.SessionInfo, error) {
	info, err := s.manager.Session(id)
	if err != nil {
		return info, err
	}
	if info.TeacherID != teacher {
		return info, session.ErrForbidden
	}
	return info, nil
}

// End closes a session. Students still writing are marked abandoned.
func (s *ExamSessionService) End(ctx context.Context, id int64, teacher string) error {
	if err := s.manager.EndExam(id, teacher); err != nil {
		return err
	}

	l, err := s.getLive(id)
	if err != nil {
		return nil
	}

	l.mu.Lock()
	first := !l.ended
	l.ended = true
	l.mu.Unlock()
	if !first {
		return nil
	}

	metrics.ActiveSessions.Dec()
	if err := s.runs.MarkEnded(ctx, l.runID, time.Now()); err != nil {
		s.log.Warn().Err(err).Int64("exam_id", id).Msg("Failed to archive exam end")
	}
	s.publish(ctx, model.MonitorEvent{Type: model.MonitorSessionEnded, SessionID: id})
	return nil
}

// Active lists the teacher's running sessions.
func (s *ExamSessionService) Active(teacher string) []session.SessionInfo {
	return s.manager.ActiveSessions(teacher)
}

// Summary returns the session and its student table.
func (s *ExamSessionService) Summary(id int64, teacher string) (*model.SessionSummary, error) {
	info, err := s.owned(id, teacher)
	if err != nil {
		return nil, err
	}
	students, err := s.manager.Summary(id)
	if err != nil {
		return nil, err
	}
	return &model.SessionSummary{Session: info, Students: students}, nil
}

// Snapshot builds the first event of a monitor stream.
func (s *ExamSessionService) Snapshot(id int64, teacher string) (*model.MonitorEvent, error) {
	sum, err := s.Summary(id, teacher)
	if err != nil {
		return nil, err
	}
	return &model.MonitorEvent{
		Type:      model.MonitorSnapshot,
		SessionID: id,
		Students:  sum.Students,
		Timestamp: time.Now(),
	}, nil
}

// Results lists the teacher's results folders.
func (s *ExamSessionService) Results(teacher string) ([]results.FolderInfo, error) {
	return s.results.ListFolders(teacher)
}

// History lists the teacher's archived runs.
func (s *ExamSessionService) History(ctx context.Context, teacher string, limit int) ([]model.ExamRun, error) {
	return s.runs.ListByTeacher(ctx, teacher, limit)
}

// RunSubmissions lists the archived submissions of one of the teacher's runs.
func (s *ExamSessionService) RunSubmissions(ctx context.Context, runID uuid.UUID, teacher string) ([]model.SubmissionRecord, error) {
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.TeacherUsername != teacher {
		return nil, session.ErrForbidden
	}
	return s.runs.ListSubmissions(ctx, runID)
}

// ─── Student operations ────────────────────────────────────────────────

// Info describes a session for its registration page.
func (s *ExamSessionService) Info(id int64) (*model.ExamInfo, error) {
	info, err := s.manager.Session(id)
	if err != nil {
		return nil, err
	}
	l, err := s.getLive(id)
	if err != nil {
		return nil, err
	}
	return &model.ExamInfo{
		SessionID:       id,
		Title:           info.Title,
		Status:          info.Status,
		DurationMinutes: int(info.Settings.Duration / time.Minute),
		QuestionCount:   shownCount(l.exam, info.Settings.MaxQuestions),
		Language:        l.exam.Language,
		Direction:       l.exam.Direction,
	}, nil
}

// Register adds a student to a running session and draws their questions.
func (s *ExamSessionService) Register(ctx context.Context, id int64, firstName, lastName string) (*model.StudentExamView, error) {
	l, err := s.getLive(id)
	if err != nil {
		return nil, err
	}
	info, err := s.manager.Session(id)
	if err != nil {
		return nil, err
	}

	token, err := s.manager.RegisterStudent(id, strings.TrimSpace(firstName), strings.TrimSpace(lastName))
	if err != nil {
		return nil, err
	}

	qs := engine.Draw(l.exam, info.Settings.Shuffle, info.Settings.MaxQuestions, s.rnd)
	l.mu.Lock()
	l.draws[token] = qs
	l.mu.Unlock()

	metrics.StudentsRegistered.Inc()
	s.publishStudent(ctx, id, token, model.MonitorStudentJoined, "")

	s.log.Info().Int64("exam_id", id).Str("student", firstName+" "+lastName).Msg("Student registered")
	return s.view(id, token, info, l, qs)
}

// Questions returns the student's paper again, counting the reload.
func (s *ExamSessionService) Questions(ctx context.Context, id int64, token string) (*model.StudentExamView, error) {
	l, err := s.getLive(id)
	if err != nil {
		return nil, err
	}
	qs, ok := l.draw(token)
	if !ok {
		return nil, session.ErrNotFound
	}
	rec, err := s.manager.Student(id, token)
	if err != nil {
		return nil, err
	}
	if rec.Status != session.StudentInProgress {
		return nil, session.ErrAlreadySubmitted
	}
	if _, err := s.Refresh(ctx, id, token); err != nil {
		return nil, err
	}

	info, err := s.manager.Session(id)
	if err != nil {
		return nil, err
	}
	return s.view(id, token, info, l, qs)
}

func (s *ExamSessionService) view(id int64, token string, info session.SessionInfo, l *liveExam, qs []engine.Question) (*model.StudentExamView, error) {
	rec, err := s.manager.Student(id, token)
	if err != nil {
		return nil, err
	}
	return &model.StudentExamView{
		Token:           token,
		FirstName:       rec.FirstName,
		LastName:        rec.LastName,
		Title:           info.Title,
		StartTime:       rec.StartTime,
		DurationSeconds: int(info.Settings.Duration.Seconds()),
		Language:        l.exam.Language,
		Direction:       l.exam.Direction,
		Questions:       model.NewStudentQuestions(qs),
	}, nil
}

// Refresh counts a page reload and returns the new total.
func (s *ExamSessionService) Refresh(ctx context.Context, id int64, token string) (int, error) {
	n, err := s.manager.RecordRefresh(id, token)
	if err != nil {
		return 0, err
	}
	s.publishStudent(ctx, id, token, model.MonitorRefresh, "")
	return n, nil
}

// ReportCheat records a cheating attempt. Reports for unknown sessions or
// students are dropped without error.
func (s *ExamSessionService) ReportCheat(ctx context.Context, id int64, token, attemptType string, details map[string]any, client ClientMeta) {
	s.manager.LogCheatAttempt(id, token, attemptType, details)

	rec, err := s.manager.Student(id, token)
	if err != nil {
		return
	}

	metrics.CheatEvents.WithLabelValues(attemptType).Inc()
	s.proctor.LogCheat(CheatEntry{
		SessionID: id,
		Token:     token,
		Student:   rec.FullName(),
		Type:      attemptType,
		Details:   details,
		IP:        client.IP,
		UserAgent: client.UserAgent,
	})

	if l, err := s.getLive(id); err == nil {
		if tok, err := uuid.Parse(token); err == nil {
			cheat := model.CheatRecord{
				RunID:        l.runID,
				StudentToken: tok,
				EventType:    attemptType,
				Details:      details,
				OccurredAt:   time.Now(),
			}
			if err := s.archive.EnqueueCheat(ctx, cheat); err != nil {
				s.log.Warn().Err(err).Int64("exam_id", id).Msg("Failed to queue cheat event")
			}
		}
	}

	s.publishStudent(ctx, id, token, model.MonitorCheatAttempt, attemptType)
}

// Submit grades the student's answers and records the attempt. Answers for
// questions the student was not shown are ignored.
func (s *ExamSessionService) Submit(ctx context.Context, id int64, req model.SubmitExamRequest, client ClientMeta) (*model.SubmitExamResponse, error) {
	l, err := s.getLive(id)
	if err != nil {
		return nil, err
	}
	qs, ok := l.draw(req.Token)
	if !ok {
		return nil, session.ErrNotFound
	}

	byText := answersByText(req.Answers)
	graded := make(map[string]string, len(qs))
	kept := make(map[string]string, len(qs))
	for _, q := range qs {
		text := q.Display()
		a := byText[q.Text]
		graded[text] = a
		if strings.TrimSpace(a) != "" {
			kept[text] = a
		}
	}

	score := engine.Score(l.exam.Key, graded, len(qs))
	var scorePtr *int
	if score != engine.ScorePending {
		scorePtr = &score
	}

	rec, err := s.manager.Submit(id, req.Token, kept, scorePtr)
	if err != nil {
		return nil, err
	}
	info, err := s.manager.Session(id)
	if err != nil {
		return nil, err
	}

	device := results.DeviceInfo{IP: client.IP, UserAgent: client.UserAgent}
	if d := req.Device; d != nil {
		device.DeviceID = d.DeviceID
		device.Platform = d.Platform
		device.Screen = d.ScreenResolution
		if d.UserAgent != "" {
			device.UserAgent = d.UserAgent
		}
	}

	submittedAt := time.Now()
	if rec.EndTime != nil {
		submittedAt = *rec.EndTime
	}

	if err := s.results.Record(ctx, results.Submission{
		Folder:           info.ResultsFolder,
		FirstName:        rec.FirstName,
		LastName:         rec.LastName,
		Score:            score,
		CheatingAttempts: rec.CheatingAttempts,
		TimeSpent:        rec.TimeSpent,
		Device:           &device,
		Questions:        qs,
		Answers:          kept,
		ExamContent:      l.exam.Source,
		Language:         l.exam.Language,
		Direction:        l.exam.Direction,
		SubmittedAt:      submittedAt,
	}); err != nil {
		s.log.Error().Err(err).Int64("exam_id", id).Str("student", rec.FullName()).Msg("Failed to write result files")
	}

	timeSpent := int(rec.TimeSpent.Seconds())
	s.proctor.LogSubmission(SubmitEntry{
		SessionID:        id,
		Token:            req.Token,
		Student:          rec.FullName(),
		Score:            score,
		CheatingAttempts: rec.CheatingAttempts,
		TimeSpentSeconds: timeSpent,
		IP:               device.IP,
		UserAgent:        device.UserAgent,
		DeviceID:         device.DeviceID,
	})

	if tok, err := uuid.Parse(req.Token); err == nil {
		archived := model.SubmissionRecord{
			RunID:            l.runID,
			StudentToken:     tok,
			FirstName:        rec.FirstName,
			LastName:         rec.LastName,
			Score:            scorePtr,
			CheatingAttempts: rec.CheatingAttempts,
			RefreshAttempts:  rec.RefreshAttempts,
			TimeSpentSeconds: timeSpent,
			Answers:          kept,
			IPAddress:        device.IP,
			UserAgent:        device.UserAgent,
			DeviceID:         device.DeviceID,
			SubmittedAt:      submittedAt,
		}
		if err := s.archive.EnqueueSubmission(ctx, archived); err != nil {
			s.log.Warn().Err(err).Int64("exam_id", id).Msg("Failed to queue submission")
		}
	}

	metrics.ObserveSubmission(score)
	s.publishStudent(ctx, id, req.Token, model.MonitorStudentSubmitted, "")

	s.log.Info().
		Int64("exam_id", id).
		Str("student", rec.FullName()).
		Int("score", score).
		Int("time_spent", timeSpent).
		Msg("Exam submitted")

	lctx := i18n.WithLanguage(ctx, l.exam.Language)
	resp := &model.SubmitExamResponse{
		Score:            scorePtr,
		Pending:          scorePtr == nil,
		Message:          i18n.T(lctx, "ScorePending"),
		TimeSpentSeconds: timeSpent,
	}
	if scorePtr != nil {
		resp.Message = i18n.Td(lctx, "YourScore", map[string]any{"Score": score})
	}
	return resp, nil
}

// answersByText re-keys submitted answers by canonical question text, so
// "3. Q", "Q" and "\u200f3.  Q" all name the same question. A blank answer
// never overrides a non-blank one for the same question.
func answersByText(answers map[string]string) map[string]string {
	out := make(map[string]string, len(answers))
	for k, a := range answers {
		text := engine.StripOrdinal(k)
		if prev, ok := out[text]; ok && strings.TrimSpace(a) == "" && strings.TrimSpace(prev) != "" {
			continue
		}
		out[text] = a
	}
	return out
}

// ─── Monitor fan-out ───────────────────────────────────────────────────

func (s *ExamSessionService) publishStudent(ctx context.Context, id int64, token string, typ model.MonitorEventType, cheatType string) {
	v, err := s.manager.StudentView(id, token)
	if err != nil {
		return
	}
	s.publish(ctx, model.MonitorEvent{Type: typ, SessionID: id, Student: &v, CheatType: cheatType})
}

func (s *ExamSessionService) publish(ctx context.Context, ev model.MonitorEvent) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if err := s.monitor.Publish(ctx, ev); err != nil {
		s.log.Warn().Err(err).Int64("exam_id", ev.SessionID).Str("type", string(ev.Type)).Msg("Failed to publish monitor event")
	}
}

// StudentRecord returns a copy of one student's attempt.
func (s *ExamSessionService) StudentRecord(id int64, token string) (session.StudentRecord, error) {
	return s.manager.Student(id, token)
}
