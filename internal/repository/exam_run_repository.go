package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/autoexam/internal/model"
)

// ExamRunRepository stores the durable history of exam sessions and reads
// back what the archive workers persisted.
type ExamRunRepository struct {
	pool *pgxpool.Pool
}

// NewExamRunRepository creates a new ExamRunRepository.
func NewExamRunRepository(pool *pgxpool.Pool) *ExamRunRepository {
	return &ExamRunRepository{pool: pool}
}

// Create inserts a run when its session starts.
func (r *ExamRunRepository) Create(ctx context.Context, run *model.ExamRun) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_runs (run_id, session_id, teacher_username, filename, title, results_folder, started_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.RunID, run.SessionID, run.TeacherUsername, run.Filename, run.Title, run.ResultsFolder, run.StartedAt,
	)
	return err
}

// MarkEnded stamps the run's end time. Already ended runs keep their first
// end time.
func (r *ExamRunRepository) MarkEnded(ctx context.Context, runID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_runs SET ended_at = $1 WHERE run_id = $2 AND ended_at IS NULL`, at, runID,
	)
	return err
}

// ListByTeacher returns the teacher's runs, newest first, with their
// archived submission counts.
func (r *ExamRunRepository) ListByTeacher(ctx context.Context, username string, limit int) ([]model.ExamRun, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.pool.Query(ctx,
		`SELECT r.run_id, r.session_id, r.teacher_username, r.filename, r.title, r.results_folder,
		        r.started_at, r.ended_at, COUNT(s.student_token)
		 FROM exam_runs r
		 LEFT JOIN exam_submissions s ON s.run_id = r.run_id
		 WHERE r.teacher_username = $1
		 GROUP BY r.run_id
		 ORDER BY r.started_at DESC
		 LIMIT $2`,
		username, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ExamRun{}
	for rows.Next() {
		var run model.ExamRun
		if err := rows.Scan(&run.RunID, &run.SessionID, &run.TeacherUsername, &run.Filename, &run.Title,
			&run.ResultsFolder, &run.StartedAt, &run.EndedAt, &run.Submissions); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// GetRun retrieves one run.
func (r *ExamRunRepository) GetRun(ctx context.Context, runID uuid.UUID) (*model.ExamRun, error) {
	run := &model.ExamRun{}
	err := r.pool.QueryRow(ctx,
		`SELECT run_id, session_id, teacher_username, filename, title, results_folder, started_at, ended_at
		 FROM exam_runs WHERE run_id = $1`, runID,
	).Scan(&run.RunID, &run.SessionID, &run.TeacherUsername, &run.Filename, &run.Title,
		&run.ResultsFolder, &run.StartedAt, &run.EndedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return run, nil
}

// ListSubmissions returns the archived submissions of a run in submit order.
func (r *ExamRunRepository) ListSubmissions(ctx context.Context, runID uuid.UUID) ([]model.SubmissionRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT run_id, student_token, first_name, last_name, score, cheating_attempts, refresh_attempts,
		        time_spent_seconds, answers, ip_address, user_agent, device_id, submitted_at
		 FROM exam_submissions
		 WHERE run_id = $1
		 ORDER BY submitted_at`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.SubmissionRecord{}
	for rows.Next() {
		var s model.SubmissionRecord
		if err := rows.Scan(&s.RunID, &s.StudentToken, &s.FirstName, &s.LastName, &s.Score,
			&s.CheatingAttempts, &s.RefreshAttempts, &s.TimeSpentSeconds, &s.Answers,
			&s.IPAddress, &s.UserAgent, &s.DeviceID, &s.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
