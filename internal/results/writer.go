// Package results writes the per-exam result artifacts downstream tooling
// reads: GRADES.txt, All_Exams.txt and one HTML snapshot per student.
package results

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/engine"
)

const (
	GradesFile     = "GRADES.txt"
	TranscriptFile = "All_Exams.txt"
)

var (
	headerRule  = strings.Repeat("=", 80)
	studentRule = strings.Repeat("#", 76)
	answerRule  = strings.Repeat("-", 76)
)

// DeviceInfo is the fingerprint a student's browser reports on submit.
type DeviceInfo struct {
	IP        string `json:"ip_address"`
	UserAgent string `json:"user_agent_full"`
	DeviceID  string `json:"device_id"`
	Platform  string `json:"platform"`
	Screen    string `json:"screen_resolution"`
}

// Submission is everything the writer needs to record one finished attempt.
type Submission struct {
	Folder           string
	FirstName        string
	LastName         string
	Score            int
	CheatingAttempts int
	TimeSpent        time.Duration
	Device           *DeviceInfo
	Questions        []engine.Question
	Answers          map[string]string
	ExamContent      string
	Language         string
	Direction        engine.Direction
	SubmittedAt      time.Time
}

// FolderInfo describes one results folder.
type FolderInfo struct {
	Name     string    `json:"name"`
	Students int       `json:"students"`
	Modified time.Time `json:"modified"`
}

// Writer appends result artifacts. Appends are serialized so concurrent
// submissions never interleave lines or write the transcript header twice.
type Writer struct {
	root string
	mu   sync.Mutex
	now  func() time.Time
	log  zerolog.Logger
}

// NewWriter creates a Writer rooted at the teachers directory.
func NewWriter(teachersDir string, log zerolog.Logger) *Writer {
	return &Writer{
		root: teachersDir,
		now:  time.Now,
		log:  log.With().Str("component", "results_writer").Logger(),
	}
}

// ResultsDir is where a teacher's results folders live.
func (w *Writer) ResultsDir(teacherID string) string {
	return filepath.Join(w.root, teacherID, "results")
}

// CreateFolder creates "<title> <YYYY-MM-DD HH-MM>" under the teacher's
// results directory and copies the exam file into it.
func (w *Writer) CreateFolder(teacherID, title, examPath string) (string, error) {
	name := sanitizeName(title) + " " + w.now().Format("2006-01-02 15-04")
	folder := filepath.Join(w.ResultsDir(teacherID), name)

	if err := os.MkdirAll(folder, 0o755); err != nil {
		return "", fmt.Errorf("create results folder: %w", err)
	}

	if examPath != "" {
		if err := copyFile(examPath, filepath.Join(folder, filepath.Base(examPath))); err != nil {
			return folder, fmt.Errorf("copy exam file: %w", err)
		}
	}

	w.log.Info().Str("folder", folder).Msg("Results folder created")
	return folder, nil
}

// ListFolders lists the teacher's results folders, newest first. Only
// folders holding a GRADES.txt count.
func (w *Writer) ListFolders(teacherID string) ([]FolderInfo, error) {
	entries, err := os.ReadDir(w.ResultsDir(teacherID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []FolderInfo{}, nil
		}
		return nil, fmt.Errorf("read results dir: %w", err)
	}

	out := make([]FolderInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		grades := filepath.Join(w.ResultsDir(teacherID), e.Name(), GradesFile)
		st, err := os.Stat(grades)
		if err != nil {
			continue
		}
		data, err := os.ReadFile(grades)
		if err != nil {
			continue
		}
		out = append(out, FolderInfo{
			Name:     e.Name(),
			Students: strings.Count(string(data), "\n"),
			Modified: st.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}

// Record writes every artifact for sub. All three are attempted even when
// one fails.
func (w *Writer) Record(ctx context.Context, sub Submission) error {
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = w.now()
	}

	_, snapErr := w.WriteSnapshot(ctx, sub)

	w.mu.Lock()
	defer w.mu.Unlock()

	gradeErr := appendFile(filepath.Join(sub.Folder, GradesFile), FormatGradeLine(sub))
	transcriptErr := w.appendTranscript(sub)

	return errors.Join(snapErr, gradeErr, transcriptErr)
}

// FormatGradeLine renders the GRADES.txt line for sub, newline included.
func FormatGradeLine(sub Submission) string {
	grade := "Unknown yet"
	if sub.Score >= 0 {
		grade = fmt.Sprintf("%d%%", sub.Score)
	}

	ip, device, screen, ua := "unknown", "unknown", "unknown", "unknown"
	if d := sub.Device; d != nil {
		ip, device, screen = orUnknown(d.IP), orUnknown(d.DeviceID), orUnknown(d.Screen)
		ua = SimplifyUserAgent(d.UserAgent)
	}

	return fmt.Sprintf("%s | %s %s | Score: %s | Cheat: %d | Duration: %s | IP: %s | UA: %s | Device: %s | Screen: %s\n",
		sub.SubmittedAt.Format("2006 January 02 15-04-05"),
		sub.FirstName, sub.LastName,
		grade, sub.CheatingAttempts, formatDuration(int(sub.TimeSpent.Seconds())),
		ip, ua, device, screen,
	)
}

// FormatTranscriptHeader renders the block written once at the top of
// All_Exams.txt.
func FormatTranscriptHeader(content string) string {
	var b strings.Builder
	b.WriteString(headerRule + "\nEXAM CONTENT\n" + headerRule + "\n\n")
	b.WriteString(content)
	b.WriteString("\n\n")
	b.WriteString(headerRule + "\nSTUDENT RESULTS\n" + headerRule + "\n\n")
	return b.String()
}

// FormatTranscriptEntry renders one student's block of All_Exams.txt.
func FormatTranscriptEntry(sub Submission) string {
	var b strings.Builder
	b.WriteString(studentRule + "\n\n")
	fmt.Fprintf(&b, "Student details: Name-%s  Last name-%s  Submitting time-%s  Cheating attemps-%d\n",
		sub.FirstName, sub.LastName, sub.SubmittedAt.Format("15-04-05"), sub.CheatingAttempts)
	if d := sub.Device; d != nil {
		fmt.Fprintf(&b, "Device Info: IP-%s  Device-%s  Platform-%s  Screen-%s\n",
			orUnknown(d.IP), orUnknown(d.DeviceID), orUnknown(d.Platform), orUnknown(d.Screen))
	}
	b.WriteString("\n")

	for _, q := range sub.Questions {
		text := q.Display()
		answer, ok := sub.Answers[text]
		if !ok {
			answer = "No answer"
		}
		b.WriteString(text + "\n" + answer + "\n")
		b.WriteString("\n" + answerRule + "\n")
	}
	return b.String()
}

// appendTranscript must be called with w.mu held.
func (w *Writer) appendTranscript(sub Submission) error {
	path := filepath.Join(sub.Folder, TranscriptFile)

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := appendFile(path, FormatTranscriptHeader(sub.ExamContent)); err != nil {
			return err
		}
	}
	return appendFile(path, FormatTranscriptEntry(sub))
}

func appendFile(path, text string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

// sanitizeName keeps a user-provided title usable as a single path element.
func sanitizeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '-'
		}
		return r
	}, s)
	if s == "" || s == "." || s == ".." {
		return "Exam"
	}
	return s
}
