package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/engine"
	"github.com/stemsi/autoexam/internal/middleware"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/repository"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/results"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/session"
	"github.com/stemsi/autoexam/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// ─── Fakes ─────────────────────────────────────────────────────────────

type nopMonitor struct{}

func (nopMonitor) Publish(context.Context, model.MonitorEvent) error { return nil }

type memArchive struct {
	mu          sync.Mutex
	submissions []model.SubmissionRecord
	cheats      []model.CheatRecord
}

func (a *memArchive) EnqueueSubmission(_ context.Context, rec model.SubmissionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submissions = append(a.submissions, rec)
	return nil
}

func (a *memArchive) EnqueueCheat(_ context.Context, rec model.CheatRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cheats = append(a.cheats, rec)
	return nil
}

func (a *memArchive) cheatCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.cheats)
}

type memRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]model.ExamRun
}

func (r *memRuns) Create(_ context.Context, run *model.ExamRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.RunID] = *run
	return nil
}

func (r *memRuns) MarkEnded(context.Context, uuid.UUID, time.Time) error { return nil }

func (r *memRuns) ListByTeacher(_ context.Context, username string, _ int) ([]model.ExamRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.ExamRun
	for _, run := range r.runs {
		if run.TeacherUsername == username {
			out = append(out, run)
		}
	}
	return out, nil
}

func (r *memRuns) GetRun(_ context.Context, id uuid.UUID) (*model.ExamRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &run, nil
}

func (r *memRuns) ListSubmissions(context.Context, uuid.UUID) ([]model.SubmissionRecord, error) {
	return nil, nil
}

// ─── Fixture ───────────────────────────────────────────────────────────

const quiz = `1. What is 2+2?
4
3

2. Capital of France?
Paris
London
`

type testServer struct {
	router   *gin.Engine
	sessions *service.ExamSessionService
	files    *service.ExamFileService
	archive  *memArchive
}

// asTeacher stands in for the JWT middleware.
func asTeacher(username string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{
			TokenType: service.TokenTypeTeacher,
			Username:  username,
		})
		c.Next()
	}
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	root := t.TempDir()
	cfg := &config.Config{
		ServerPort:     "8080",
		TeachersDir:    filepath.Join(root, "teachers"),
		LogsDir:        filepath.Join(root, "logs"),
		MaxUploadBytes: 1 << 20,
		PublicBaseURL:  "http://exam.local",
	}
	log := zerolog.Nop()

	proctor, err := service.NewProctoringService(cfg.LogsDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { proctor.Close() })

	files := service.NewExamFileService(cfg, log)
	archive := &memArchive{}
	sessions := service.NewExamSessionService(
		session.NewManager(log),
		files,
		results.NewWriter(cfg.TeachersDir, log),
		proctor,
		nopMonitor{},
		archive,
		&memRuns{runs: make(map[uuid.UUID]model.ExamRun)},
		cfg,
		log,
	)

	r := gin.New()
	r.Use(response.RequestIDMiddleware(log))

	fileH := NewExamFileHandler(files)
	sessionH := NewSessionHandler(sessions, proctor)
	teacher := r.Group("/api/v1/teacher", asTeacher("alice"))
	teacher.GET("/exams", fileH.ListExams)
	teacher.POST("/exams", fileH.UploadExam)
	teacher.POST("/exams/validate", fileH.ValidateExam)
	teacher.PUT("/exams/:filename/source", fileH.SaveSource)
	teacher.POST("/sessions", sessionH.StartSession)
	teacher.POST("/sessions/:id/end", sessionH.EndSession)
	teacher.GET("/sessions/:id/students", sessionH.GetSessionStudents)
	teacher.GET("/logs", sessionH.GetLogs)

	other := r.Group("/api/v1/other", asTeacher("bob"))
	other.GET("/sessions/:id/students", sessionH.GetSessionStudents)

	portal := NewStudentPortalHandler(sessions)
	exam := r.Group("/api/v1/exam/:id")
	exam.GET("", portal.GetExamInfo)
	exam.POST("/register", portal.Register)
	exam.GET("/questions", portal.GetQuestions)
	exam.POST("/submit", portal.SubmitExam)
	exam.POST("/refresh", portal.RecordRefresh)
	exam.POST("/cheat", portal.ReportCheat)

	ws := NewWSHandler(sessions, log, nil)
	r.GET("/ws/v1/exam/:id/stream", ws.StudentStream)

	return &testServer{router: r, sessions: sessions, files: files, archive: archive}
}

// envelope mirrors response.Response with a typed data field.
type envelope[T any] struct {
	Data  T                   `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func do[T any](t *testing.T, r http.Handler, method, path string, body any) (int, envelope[T]) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope[T]
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, env
}

func errCode[T any](env envelope[T]) response.ErrCode {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}

func (s *testServer) startQuiz(t *testing.T) int64 {
	t.Helper()
	if err := os.MkdirAll(s.files.Dir("alice"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.files.Dir("alice"), "quiz.txt"), []byte(quiz), 0o644); err != nil {
		t.Fatal(err)
	}

	status, env := do[model.StartExamResponse](t, s.router, http.MethodPost, "/api/v1/teacher/sessions", gin.H{
		"filename": "quiz.txt",
		"title":    "Quiz",
		"shuffle":  false,
	})
	if status != http.StatusCreated {
		t.Fatalf("start status = %d, error = %+v", status, env.Error)
	}
	return env.Data.SessionID
}

// ─── Tests ─────────────────────────────────────────────────────────────

func TestStudentFlow(t *testing.T) {
	s := newTestServer(t)
	id := s.startQuiz(t)
	base := fmt.Sprintf("/api/v1/exam/%d", id)

	status, info := do[model.ExamInfo](t, s.router, http.MethodGet, base, nil)
	if status != http.StatusOK || info.Data.Title != "Quiz" || info.Data.QuestionCount != 2 {
		t.Fatalf("info = %d %+v", status, info.Data)
	}

	status, reg := do[model.StudentExamView](t, s.router, http.MethodPost, base+"/register", gin.H{
		"first_name": "Ann",
		"last_name":  "Lee",
	})
	if status != http.StatusCreated || len(reg.Data.Questions) != 2 {
		t.Fatalf("register = %d %+v", status, reg)
	}
	token := reg.Data.Token

	status, ref := do[model.RefreshResponse](t, s.router, http.MethodPost, base+"/refresh", gin.H{"token": token})
	if status != http.StatusOK || ref.Data.RefreshAttempts != 1 {
		t.Errorf("refresh = %d %+v", status, ref.Data)
	}

	status, _ = do[gin.H](t, s.router, http.MethodPost, base+"/cheat", gin.H{"token": token, "type": "tab_switch"})
	if status != http.StatusAccepted || s.archive.cheatCount() != 1 {
		t.Errorf("cheat status = %d, archived = %d", status, s.archive.cheatCount())
	}

	status, sub := do[model.SubmitExamResponse](t, s.router, http.MethodPost, base+"/submit", gin.H{
		"token": token,
		"answers": gin.H{
			reg.Data.Questions[0].Display: "4",
			reg.Data.Questions[1].Display: "London",
		},
	})
	if status != http.StatusOK || sub.Data.Score == nil || *sub.Data.Score != 50 {
		t.Fatalf("submit = %d %+v", status, sub)
	}

	status, again := do[model.SubmitExamResponse](t, s.router, http.MethodPost, base+"/submit", gin.H{"token": token})
	if status != http.StatusConflict || errCode(again) != response.ErrAlreadySubmitted {
		t.Errorf("second submit = %d %v", status, errCode(again))
	}

	status, q := do[model.StudentExamView](t, s.router, http.MethodGet, base+"/questions?token="+token, nil)
	if status != http.StatusConflict {
		t.Errorf("questions after submit = %d %v", status, errCode(q))
	}
}

func TestStudentErrors(t *testing.T) {
	s := newTestServer(t)
	id := s.startQuiz(t)
	base := fmt.Sprintf("/api/v1/exam/%d", id)
	unknown := uuid.NewString()

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"bad id", http.MethodGet, "/api/v1/exam/abc", nil, http.StatusBadRequest, response.ErrInvalidID},
		{"unknown session", http.MethodGet, "/api/v1/exam/9999", nil, http.StatusNotFound, response.ErrSessionNotFound},
		{"name without letters", http.MethodPost, base + "/register", gin.H{"first_name": "123", "last_name": "Lee"}, http.StatusBadRequest, response.ErrValidation},
		{"malformed token", http.MethodGet, base + "/questions?token=nope", nil, http.StatusBadRequest, response.ErrInvalidEntryToken},
		{"unknown token", http.MethodGet, base + "/questions?token=" + unknown, nil, http.StatusNotFound, response.ErrStudentNotFound},
		{"submit unknown token", http.MethodPost, base + "/submit", gin.H{"token": unknown}, http.StatusNotFound, response.ErrStudentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do[json.RawMessage](t, s.router, tt.method, tt.path, tt.body)
			if status != tt.wantStatus || errCode(env) != tt.wantCode {
				t.Errorf("got %d %q, want %d %q", status, errCode(env), tt.wantStatus, tt.wantCode)
			}
		})
	}

	status, _ := do[gin.H](t, s.router, http.MethodPost, base+"/cheat", gin.H{"token": unknown, "type": "blur"})
	if status != http.StatusAccepted {
		t.Errorf("cheat for unknown token = %d, want 202", status)
	}
	if s.archive.cheatCount() != 0 {
		t.Error("unknown token must not be archived")
	}
}

func TestEndedSessionRejectsStudents(t *testing.T) {
	s := newTestServer(t)
	id := s.startQuiz(t)

	status, _ := do[gin.H](t, s.router, http.MethodGet, fmt.Sprintf("/api/v1/other/sessions/%d/students", id), nil)
	if status != http.StatusForbidden {
		t.Errorf("summary for another teacher = %d, want 403", status)
	}

	status, _ = do[gin.H](t, s.router, http.MethodPost, fmt.Sprintf("/api/v1/teacher/sessions/%d/end", id), nil)
	if status != http.StatusOK {
		t.Fatalf("end = %d", status)
	}

	status, env := do[json.RawMessage](t, s.router, http.MethodPost, fmt.Sprintf("/api/v1/exam/%d/register", id), gin.H{
		"first_name": "Ann",
		"last_name":  "Lee",
	})
	if status != http.StatusGone || errCode(env) != response.ErrSessionEnded {
		t.Errorf("register after end = %d %q", status, errCode(env))
	}
}

func TestExamFileEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, saved := do[struct {
		Exam model.ExamFile `json:"exam"`
	}](t, s.router, http.MethodPut, "/api/v1/teacher/exams/quiz.txt/source", gin.H{"content": quiz})
	if status != http.StatusOK || saved.Data.Exam.Name != "quiz.txt" {
		t.Fatalf("save = %d %+v", status, saved)
	}

	status, list := do[struct {
		Exams []model.ExamFile `json:"exams"`
	}](t, s.router, http.MethodGet, "/api/v1/teacher/exams", nil)
	if status != http.StatusOK || len(list.Data.Exams) != 1 {
		t.Errorf("list = %d %+v", status, list.Data)
	}

	status, meta := do[engine.Metadata](t, s.router, http.MethodPost, "/api/v1/teacher/exams/validate", gin.H{"content": quiz})
	if status != http.StatusOK || !meta.Data.Valid || meta.Data.TotalQuestions != 2 {
		t.Errorf("validate = %d %+v", status, meta.Data)
	}

	status, env := do[json.RawMessage](t, s.router, http.MethodGet, "/api/v1/teacher/logs?type=secrets", nil)
	if status != http.StatusBadRequest || errCode(env) != response.ErrInvalidLogCategory {
		t.Errorf("logs with bad type = %d %q", status, errCode(env))
	}
}

func TestFailWithMapsErrors(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{session.ErrNotFound, http.StatusNotFound, response.ErrSessionNotFound},
		{fmt.Errorf("wrapped: %w", session.ErrSessionEnded), http.StatusGone, response.ErrSessionEnded},
		{service.ErrFileTooLarge, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge},
		{engine.ErrEmptyExam, http.StatusUnprocessableEntity, response.ErrEmptyExam},
		{errors.New("disk on fire"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		failWith(c, tt.err)

		if w.Code != tt.wantStatus || !strings.Contains(w.Body.String(), string(tt.wantCode)) {
			t.Errorf("failWith(%v) = %d %s", tt.err, w.Code, w.Body.String())
		}
	}
}

func TestFailStudentKeepsSessionEnded(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{session.ErrNotFound, http.StatusNotFound, response.ErrStudentNotFound},
		{session.ErrSessionEnded, http.StatusGone, response.ErrSessionEnded},
	}

	for _, tt := range tests {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
		failStudent(c, tt.err)

		if w.Code != tt.wantStatus || !strings.Contains(w.Body.String(), string(tt.wantCode)) {
			t.Errorf("failStudent(%v) = %d %s, want %d %s", tt.err, w.Code, w.Body.String(), tt.wantStatus, tt.wantCode)
		}
	}
}
