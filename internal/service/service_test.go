package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/repository"
)

// ─── Fakes ─────────────────────────────────────────────────────────────

type fakeMonitor struct {
	mu     sync.Mutex
	events []model.MonitorEvent
}

func (f *fakeMonitor) Publish(_ context.Context, ev model.MonitorEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeMonitor) count(typ model.MonitorEventType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, ev := range f.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type fakeArchive struct {
	mu          sync.Mutex
	submissions []model.SubmissionRecord
	cheats      []model.CheatRecord
}

func (f *fakeArchive) EnqueueSubmission(_ context.Context, rec model.SubmissionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions = append(f.submissions, rec)
	return nil
}

func (f *fakeArchive) EnqueueCheat(_ context.Context, rec model.CheatRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cheats = append(f.cheats, rec)
	return nil
}

type fakeRuns struct {
	mu          sync.Mutex
	runs        map[uuid.UUID]*model.ExamRun
	submissions map[uuid.UUID][]model.SubmissionRecord
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{
		runs:        make(map[uuid.UUID]*model.ExamRun),
		submissions: make(map[uuid.UUID][]model.SubmissionRecord),
	}
}

func (f *fakeRuns) Create(_ context.Context, run *model.ExamRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *run
	f.runs[run.RunID] = &c
	return nil
}

func (f *fakeRuns) MarkEnded(_ context.Context, runID uuid.UUID, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return repository.ErrNotFound
	}
	run.EndedAt = &at
	return nil
}

func (f *fakeRuns) ListByTeacher(_ context.Context, username string, _ int) ([]model.ExamRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ExamRun
	for _, r := range f.runs {
		if r.TeacherUsername == username {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRuns) GetRun(_ context.Context, runID uuid.UUID) (*model.ExamRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *run
	return &c, nil
}

func (f *fakeRuns) ListSubmissions(_ context.Context, runID uuid.UUID) ([]model.SubmissionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions[runID], nil
}

type fakeTeachers struct {
	byName  map[string]*model.Teacher
	touched map[int]time.Time
}

func (f *fakeTeachers) GetByUsername(_ context.Context, username string) (*model.Teacher, error) {
	t, ok := f.byName[username]
	if !ok {
		return nil, repository.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (f *fakeTeachers) TouchLastLogin(_ context.Context, id int, at time.Time) error {
	f.touched[id] = at
	return nil
}

type fakeTokens struct {
	mu   sync.Mutex
	live map[string]time.Duration
}

func newFakeTokens() *fakeTokens {
	return &fakeTokens{live: make(map[string]time.Duration)}
}

func (f *fakeTokens) Save(_ context.Context, jti string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[jti] = ttl
	return nil
}

func (f *fakeTokens) Exists(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.live[jti]
	return ok, nil
}

func (f *fakeTokens) Delete(_ context.Context, jti string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.live, jti)
	return nil
}

// ─── Helpers ───────────────────────────────────────────────────────────

const (
	choiceExam = `1. What is 2+2?
4
3
5

2. Capital of France?
Paris
London
`
	mixedExam = `1. What is 2+2?
4
3

2. Explain recursion.
`
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	root := t.TempDir()
	return &config.Config{
		ServerPort:     "8080",
		JWTSecret:      "test-secret",
		JWTExpiry:      time.Hour,
		BcryptCost:     4,
		TeachersDir:    filepath.Join(root, "teachers"),
		LogsDir:        filepath.Join(root, "logs"),
		MaxUploadBytes: 1 << 20,
		PublicBaseURL:  "http://exam.local",
		DefaultShuffle: true,
	}
}

func writeExam(t *testing.T, cfg *config.Config, teacher, name, content string) {
	t.Helper()
	dir := filepath.Join(cfg.TeachersDir, teacher, examsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func wantErr(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("err = %v, want %v", err, target)
	}
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
