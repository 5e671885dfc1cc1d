package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/results"
	"github.com/stemsi/autoexam/internal/session"
)

type sessionFixture struct {
	svc     *ExamSessionService
	monitor *fakeMonitor
	archive *fakeArchive
	runs    *fakeRuns
	proctor *ProctoringService
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	cfg := testConfig(t)
	writeExam(t, cfg, "alice", "choice.txt", choiceExam)
	writeExam(t, cfg, "alice", "mixed.txt", mixedExam)

	proctor, err := NewProctoringService(cfg.LogsDir)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { proctor.Close() })

	f := &sessionFixture{
		monitor: &fakeMonitor{},
		archive: &fakeArchive{},
		runs:    newFakeRuns(),
		proctor: proctor,
	}
	f.svc = NewExamSessionService(
		session.NewManager(nopLogger()),
		NewExamFileService(cfg, nopLogger()),
		results.NewWriter(cfg.TeachersDir, nopLogger()),
		proctor,
		f.monitor,
		f.archive,
		f.runs,
		cfg,
		nopLogger(),
	)
	return f
}

func noShuffle() *bool {
	b := false
	return &b
}

func (f *sessionFixture) start(t *testing.T, filename string, maxQuestions int) *model.StartExamResponse {
	t.Helper()
	resp, err := f.svc.Start(context.Background(), "alice", model.StartExamRequest{
		Filename:     filename,
		Title:        "Quiz",
		Shuffle:      noShuffle(),
		MaxQuestions: maxQuestions,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return resp
}

func TestStartExamSession(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t, "choice.txt", 0)

	if resp.StudentURL != "http://exam.local/exam/1" {
		t.Errorf("StudentURL = %q", resp.StudentURL)
	}
	if resp.MonitorURL != "http://exam.local/teacher/exam/1/monitor" {
		t.Errorf("MonitorURL = %q", resp.MonitorURL)
	}
	if resp.TotalQuestions != 2 {
		t.Errorf("TotalQuestions = %d, want 2", resp.TotalQuestions)
	}
	if _, err := os.Stat(filepath.Join(resp.ResultsFolder, "choice.txt")); err != nil {
		t.Errorf("exam copy missing from results folder: %v", err)
	}
	if len(f.runs.runs) != 1 {
		t.Errorf("archived runs = %d, want 1", len(f.runs.runs))
	}

	entries, err := f.proctor.Read(model.LogSessions, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0]["event"] != EventExamStart {
		t.Errorf("session log = %v", entries)
	}

	active := f.svc.Active("alice")
	if len(active) != 1 || active[0].ID != resp.SessionID {
		t.Errorf("Active = %+v", active)
	}
	if got := f.svc.Active("bob"); len(got) != 0 {
		t.Errorf("bob sees %d sessions", len(got))
	}
}

func TestStartUnknownFile(t *testing.T) {
	f := newSessionFixture(t)
	_, err := f.svc.Start(context.Background(), "alice", model.StartExamRequest{Filename: "missing.txt", Title: "X"})
	wantErr(t, err, ErrExamFileNotFound)
}

func TestSubmitScoresMultipleChoice(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	resp := f.start(t, "choice.txt", 0)

	view, err := f.svc.Register(ctx, resp.SessionID, "  Ann ", "Lee")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if view.FirstName != "Ann" {
		t.Errorf("FirstName = %q, want trimmed", view.FirstName)
	}
	if len(view.Questions) != 2 || view.Questions[0].Display != "1. What is 2+2?" {
		t.Fatalf("questions = %+v", view.Questions)
	}

	out, err := f.svc.Submit(ctx, resp.SessionID, model.SubmitExamRequest{
		Token: view.Token,
		Answers: map[string]string{
			"1. What is 2+2?":       " 4 ",
			"2. Capital of France?": "London",
			"9. Not on the paper":   "x",
		},
		Device: &model.DeviceInfo{DeviceID: "dev-1", ScreenResolution: "1280x720"},
	}, ClientMeta{IP: "10.1.1.1", UserAgent: "curl/8"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Score == nil || *out.Score != 50 || out.Pending {
		t.Fatalf("response = %+v, want score 50", out)
	}
	if out.Message != "Your score: 50%" {
		t.Errorf("Message = %q", out.Message)
	}

	grades, err := os.ReadFile(filepath.Join(resp.ResultsFolder, results.GradesFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(grades), "Ann Lee | Score: 50%") || !strings.Contains(string(grades), "Device: dev-1") {
		t.Errorf("GRADES.txt = %q", grades)
	}

	if len(f.archive.submissions) != 1 {
		t.Fatalf("queued submissions = %d", len(f.archive.submissions))
	}
	rec := f.archive.submissions[0]
	if rec.StudentToken.String() != view.Token || *rec.Score != 50 {
		t.Errorf("queued submission = %+v", rec)
	}
	if _, ok := rec.Answers["9. Not on the paper"]; ok {
		t.Error("answers to unshown questions must not be stored")
	}

	if f.monitor.count(model.MonitorStudentJoined) != 1 || f.monitor.count(model.MonitorStudentSubmitted) != 1 {
		t.Errorf("monitor events = %+v", f.monitor.events)
	}

	_, err = f.svc.Submit(ctx, resp.SessionID, model.SubmitExamRequest{Token: view.Token}, ClientMeta{})
	wantErr(t, err, session.ErrAlreadySubmitted)
}

func TestSubmitMatchesAnswerKeyShapes(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"canonical text", "What is 2+2?"},
		{"extra spaces after ordinal", "1.  What is 2+2?"},
		{"leading bidi mark", "\u200f1. What is 2+2?"},
		{"stale ordinal", "7. What is 2+2?"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newSessionFixture(t)
			ctx := context.Background()
			resp := f.start(t, "choice.txt", 0)

			view, err := f.svc.Register(ctx, resp.SessionID, "Ann", "Lee")
			if err != nil {
				t.Fatalf("Register: %v", err)
			}
			out, err := f.svc.Submit(ctx, resp.SessionID, model.SubmitExamRequest{
				Token: view.Token,
				Answers: map[string]string{
					tt.key:                  "4",
					"2. Capital of France?": "Paris",
				},
			}, ClientMeta{})
			if err != nil {
				t.Fatalf("Submit: %v", err)
			}
			if out.Score == nil || *out.Score != 100 {
				t.Fatalf("response = %+v, want score 100", out)
			}
			if got := f.archive.submissions[0].Answers["1. What is 2+2?"]; got != "4" {
				t.Errorf("stored answer = %q, want keyed by rendered question", got)
			}
		})
	}
}

func TestAnswersByTextKeepsNonBlank(t *testing.T) {
	got := answersByText(map[string]string{
		"1. Q":  "yes",
		"Q":     "  ",
		"2. R ": "no",
	})
	if got["Q"] != "yes" || got["R"] != "no" {
		t.Errorf("answersByText = %q", got)
	}
}

func TestSubmitWithOpenQuestionIsPending(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	resp := f.start(t, "mixed.txt", 0)

	view, err := f.svc.Register(ctx, resp.SessionID, "Bo", "Kim")
	if err != nil {
		t.Fatal(err)
	}

	out, err := f.svc.Submit(ctx, resp.SessionID, model.SubmitExamRequest{
		Token:   view.Token,
		Answers: map[string]string{"1. What is 2+2?": "4"},
	}, ClientMeta{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if out.Score != nil || !out.Pending {
		t.Errorf("response = %+v, want pending", out)
	}

	sum, err := f.svc.Summary(resp.SessionID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Students) != 1 || sum.Students[0].Score != nil || sum.Students[0].Status != session.StudentCompleted {
		t.Errorf("students = %+v", sum.Students)
	}
}

func TestMaxQuestionsLimitsDraw(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	resp := f.start(t, "choice.txt", 1)
	if resp.TotalQuestions != 1 {
		t.Errorf("TotalQuestions = %d, want 1", resp.TotalQuestions)
	}

	view, err := f.svc.Register(ctx, resp.SessionID, "Cy", "Doe")
	if err != nil {
		t.Fatal(err)
	}
	if len(view.Questions) != 1 {
		t.Fatalf("drew %d questions, want 1", len(view.Questions))
	}

	out, err := f.svc.Submit(ctx, resp.SessionID, model.SubmitExamRequest{
		Token:   view.Token,
		Answers: map[string]string{view.Questions[0].Display: "4"},
	}, ClientMeta{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Score == nil || *out.Score != 100 {
		t.Errorf("score = %v, want 100", out.Score)
	}
}

func TestQuestionsCountsRefresh(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	resp := f.start(t, "choice.txt", 0)

	first, err := f.svc.Register(ctx, resp.SessionID, "Ann", "Lee")
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.svc.Questions(ctx, resp.SessionID, first.Token)
	if err != nil {
		t.Fatalf("Questions: %v", err)
	}
	if again.Questions[0].Display != first.Questions[0].Display {
		t.Error("a reload must show the same paper")
	}

	sum, _ := f.svc.Summary(resp.SessionID, "alice")
	if sum.Students[0].RefreshAttempts != 1 {
		t.Errorf("RefreshAttempts = %d, want 1", sum.Students[0].RefreshAttempts)
	}
	if f.monitor.count(model.MonitorRefresh) != 1 {
		t.Error("refresh should reach the monitor")
	}

	_, err = f.svc.Questions(ctx, resp.SessionID, uuid.NewString())
	wantErr(t, err, session.ErrNotFound)
}

func TestReportCheat(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	resp := f.start(t, "choice.txt", 0)

	view, err := f.svc.Register(ctx, resp.SessionID, "Ann", "Lee")
	if err != nil {
		t.Fatal(err)
	}

	f.svc.ReportCheat(ctx, resp.SessionID, view.Token, "tab_switch", map[string]any{"count": 1}, ClientMeta{IP: "10.0.0.9"})
	f.svc.ReportCheat(ctx, resp.SessionID, uuid.NewString(), "copy", nil, ClientMeta{})
	f.svc.ReportCheat(ctx, 999, view.Token, "copy", nil, ClientMeta{})

	sum, _ := f.svc.Summary(resp.SessionID, "alice")
	if sum.Students[0].CheatingAttempts != 1 {
		t.Errorf("CheatingAttempts = %d, want 1", sum.Students[0].CheatingAttempts)
	}
	if len(f.archive.cheats) != 1 || f.archive.cheats[0].EventType != "tab_switch" {
		t.Errorf("queued cheats = %+v", f.archive.cheats)
	}
	if f.monitor.count(model.MonitorCheatAttempt) != 1 {
		t.Error("cheat should reach the monitor once")
	}

	entries, err := f.proctor.Read(model.LogCheating, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0]["ip_address"] != "10.0.0.9" {
		t.Errorf("cheating log = %v", entries)
	}
}

func TestEndExam(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	resp := f.start(t, "choice.txt", 0)

	view, err := f.svc.Register(ctx, resp.SessionID, "Ann", "Lee")
	if err != nil {
		t.Fatal(err)
	}

	wantErr(t, f.svc.End(ctx, resp.SessionID, "bob"), session.ErrForbidden)

	if err := f.svc.End(ctx, resp.SessionID, "alice"); err != nil {
		t.Fatalf("End: %v", err)
	}
	if err := f.svc.End(ctx, resp.SessionID, "alice"); err != nil {
		t.Fatalf("second End: %v", err)
	}
	if n := f.monitor.count(model.MonitorSessionEnded); n != 1 {
		t.Errorf("session_ended published %d times, want 1", n)
	}
	for _, run := range f.runs.runs {
		if run.EndedAt == nil {
			t.Error("run should be marked ended")
		}
	}

	_, err = f.svc.Register(ctx, resp.SessionID, "Late", "Comer")
	wantErr(t, err, session.ErrSessionEnded)

	_, err = f.svc.Submit(ctx, resp.SessionID, model.SubmitExamRequest{Token: view.Token}, ClientMeta{})
	if err == nil {
		t.Fatal("submit after end should fail")
	}

	sum, _ := f.svc.Summary(resp.SessionID, "alice")
	if sum.Students[0].Status != session.StudentAbandoned {
		t.Errorf("status = %q, want abandoned", sum.Students[0].Status)
	}
	if len(f.svc.Active("alice")) != 0 {
		t.Error("ended session should not be active")
	}
}

func TestSummaryOwnership(t *testing.T) {
	f := newSessionFixture(t)
	resp := f.start(t, "choice.txt", 0)

	_, err := f.svc.Summary(resp.SessionID, "bob")
	wantErr(t, err, session.ErrForbidden)
	_, err = f.svc.Snapshot(resp.SessionID, "bob")
	wantErr(t, err, session.ErrForbidden)
	_, err = f.svc.Summary(42, "alice")
	wantErr(t, err, session.ErrNotFound)

	ev, err := f.svc.Snapshot(resp.SessionID, "alice")
	if err != nil {
		t.Fatal(err)
	}
	if ev.Type != model.MonitorSnapshot || ev.SessionID != resp.SessionID {
		t.Errorf("snapshot = %+v", ev)
	}
}

func TestInfo(t *testing.T) {
	f := newSessionFixture(t)
	resp, err := f.svc.Start(context.Background(), "alice", model.StartExamRequest{
		Filename:        "choice.txt",
		Title:           "Quiz",
		DurationMinutes: 45,
	})
	if err != nil {
		t.Fatal(err)
	}

	info, err := f.svc.Info(resp.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	if info.Title != "Quiz" || info.DurationMinutes != 45 || info.QuestionCount != 2 || info.Language != "en" {
		t.Errorf("info = %+v", info)
	}

	_, err = f.svc.Info(77)
	wantErr(t, err, session.ErrNotFound)
}

func TestRunSubmissionsOwnership(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	f.start(t, "choice.txt", 0)

	runs, err := f.svc.History(ctx, "alice", 10)
	if err != nil || len(runs) != 1 {
		t.Fatalf("History = %v, %v", runs, err)
	}

	_, err = f.svc.RunSubmissions(ctx, runs[0].RunID, "bob")
	wantErr(t, err, session.ErrForbidden)

	if _, err := f.svc.RunSubmissions(ctx, runs[0].RunID, "alice"); err != nil {
		t.Errorf("RunSubmissions: %v", err)
	}
}
