package service

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime/multipart"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/engine"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/validator"
)

// Sentinel errors for exam files.
var (
	ErrExamFileNotFound    = errors.New("exam file not found")
	ErrInvalidFilename     = errors.New("invalid exam file name")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

const examsDirName = "exams"

type cachedExam struct {
	modTime time.Time
	size    int64
	exam    *engine.Exam
}

// ExamFileService manages the plain-text exam files in each teacher's
// directory and caches their parsed form.
type ExamFileService struct {
	root     string
	maxBytes int64
	log      zerolog.Logger
	parse    func(path string) (*engine.Exam, error)

	mu    sync.RWMutex
	cache map[string]cachedExam
}

// NewExamFileService creates an ExamFileService rooted at TEACHERS_DIR.
func NewExamFileService(cfg *config.Config, log zerolog.Logger) *ExamFileService {
	return &ExamFileService{
		root:     cfg.TeachersDir,
		maxBytes: cfg.MaxUploadBytes,
		log:      log.With().Str("component", "exam_files").Logger(),
		parse:    engine.LoadFile,
		cache:    make(map[string]cachedExam),
	}
}

// Dir is the directory holding a teacher's exam files.
func (s *ExamFileService) Dir(teacher string) string {
	return filepath.Join(s.root, teacher, examsDirName)
}

// Path resolves filename inside the teacher's exam directory.
func (s *ExamFileService) Path(teacher, filename string) (string, error) {
	if !validator.IsExamFilename(filename) {
		return "", ErrInvalidFilename
	}
	return filepath.Join(s.Dir(teacher), filename), nil
}

// List returns the teacher's exam files sorted by name.
func (s *ExamFileService) List(teacher string) ([]model.ExamFile, error) {
	entries, err := os.ReadDir(s.Dir(teacher))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []model.ExamFile{}, nil
		}
		return nil, fmt.Errorf("read exams dir: %w", err)
	}

	files := make([]model.ExamFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !validator.IsExamFilename(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, model.ExamFile{Name: e.Name(), Size: info.Size(), Modified: info.ModTime()})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}

// SaveUpload stores an uploaded exam file, replacing one with the same name.
func (s *ExamFileService) SaveUpload(teacher string, file multipart.File, header *multipart.FileHeader) (*model.ExamFile, error) {
	name := filepath.Base(strings.ReplaceAll(header.Filename, `\`, "/"))
	if !strings.EqualFold(filepath.Ext(name), ".txt") {
		return nil, fmt.Errorf("%w: %s (allowed: .txt)", ErrUnsupportedFileType, filepath.Ext(name))
	}
	if !validator.IsExamFilename(name) {
		return nil, ErrInvalidFilename
	}
	if header.Size > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.maxBytes)
	}

	content, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > s.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrFileTooLarge, s.maxBytes)
	}

	if err := s.write(teacher, name, content); err != nil {
		return nil, err
	}
	return s.stat(teacher, name)
}

// ReadSource returns the raw content of an exam file.
func (s *ExamFileService) ReadSource(teacher, filename string) (*model.ExamSource, error) {
	path, err := s.Path(teacher, filename)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrExamFileNotFound
		}
		return nil, fmt.Errorf("read exam file: %w", err)
	}
	return &model.ExamSource{Name: filename, Content: string(data)}, nil
}

// WriteSource saves edited content, creating the file when missing.
func (s *ExamFileService) WriteSource(teacher, filename, content string) (*model.ExamFile, error) {
	if int64(len(content)) > s.maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, len(content), s.maxBytes)
	}
	if err := s.write(teacher, filename, []byte(content)); err != nil {
		return nil, err
	}
	return s.stat(teacher, filename)
}

// Delete removes an exam file.
func (s *ExamFileService) Delete(teacher, filename string) error {
	path, err := s.Path(teacher, filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrExamFileNotFound
		}
		return fmt.Errorf("delete exam file: %w", err)
	}

	s.mu.Lock()
	delete(s.cache, path)
	s.mu.Unlock()

	s.log.Info().Str("teacher", teacher).Str("file", filename).Msg("Exam file deleted")
	return nil
}

// Load parses an exam file. Parsed exams are cached until the file's
// modification time or size changes.
func (s *ExamFileService) Load(teacher, filename string) (*engine.Exam, error) {
	path, err := s.Path(teacher, filename)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrExamFileNotFound
		}
		return nil, fmt.Errorf("stat exam file: %w", err)
	}

	s.mu.RLock()
	c, ok := s.cache[path]
	s.mu.RUnlock()
	if ok && c.modTime.Equal(info.ModTime()) && c.size == info.Size() {
		return c.exam, nil
	}

	exam, err := s.parse(path)
	if err != nil {
		// The file can vanish between the stat and the read.
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrExamFileNotFound
		}
		return nil, err
	}

	s.mu.Lock()
	s.cache[path] = cachedExam{modTime: info.ModTime(), size: info.Size(), exam: exam}
	s.mu.Unlock()

	s.log.Debug().
		Str("file", filename).
		Int("questions", exam.Len()).
		Str("language", exam.Language).
		Msg("Exam parsed")
	return exam, nil
}

// Validate checks exam source text without saving it.
func (s *ExamFileService) Validate(content string) engine.Metadata {
	return engine.Validate(content)
}

// Preview parses content and renders it as a student would see it, with
// the answer key kept for the teacher.
func (s *ExamFileService) Preview(content string, shuffle bool) (*model.PreviewExamResponse, error) {
	exam, err := engine.Parse(content)
	if err != nil {
		return nil, err
	}
	qs := engine.Draw(exam, shuffle, 0, nil)
	return &model.PreviewExamResponse{
		Questions: qs,
		Total:     len(qs),
		Language:  exam.Language,
		Direction: exam.Direction,
		Issues:    exam.Issues,
	}, nil
}

func (s *ExamFileService) write(teacher, filename string, content []byte) error {
	path, err := s.Path(teacher, filename)
	if err != nil {
		return err
	}
	if !utf8.Valid(content) {
		return fmt.Errorf("%w: content is not UTF-8", ErrUnsupportedFileType)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create exams dir: %w", err)
	}

	// Write to a temp file first so a concurrent Load never sees half a file.
	tmp, err := os.CreateTemp(filepath.Dir(path), ".upload-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write exam file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write exam file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace exam file: %w", err)
	}

	s.log.Info().Str("teacher", teacher).Str("file", filename).Int("bytes", len(content)).Msg("Exam file saved")
	return nil
}

func (s *ExamFileService) stat(teacher, filename string) (*model.ExamFile, error) {
	path, err := s.Path(teacher, filename)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat exam file: %w", err)
	}
	return &model.ExamFile{Name: filename, Size: info.Size(), Modified: info.ModTime()}, nil
}
