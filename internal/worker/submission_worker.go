package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/metrics"
	"github.com/stemsi/autoexam/internal/model"
)

const (
	SubmissionBatchSize    = 50
	SubmissionBatchTimeout = 2 * time.Second
	SubmissionPollTimeout  = 1 * time.Second
)

// SubmissionWorker drains the submission queue into exam_submissions.
// Inserts are idempotent on (run_id, student_token) so requeued items never
// duplicate rows.
type SubmissionWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewSubmissionWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *SubmissionWorker {
	return &SubmissionWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "submission_worker").Logger(),
	}
}

// ----------------------------------------------------------------
// Worker loop with batching
// ----------------------------------------------------------------

func (w *SubmissionWorker) Start(ctx context.Context) {
	w.log.Info().Msg("SubmissionWorker started")

	batch := make([]*model.SubmissionRecord, 0, SubmissionBatchSize)
	lastFlush := time.Now()

	for {
		if len(batch) > 0 &&
			(len(batch) >= SubmissionBatchSize || time.Since(lastFlush) >= SubmissionBatchTimeout) {

			w.flushSafe(ctx, batch)
			batch = batch[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("Shutdown requested. Flushing remaining batch...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			w.flushSafe(shutdownCtx, batch)
			cancel()
			return

		default:
			item, err := w.rdb.BLPop(ctx, SubmissionPollTimeout, config.WorkerKey.PersistSubmissionsQueue).Result()
			if err != nil {
				if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
					w.log.Error().Err(err).Msg("BLPop error")
					time.Sleep(3 * time.Second)
				}
				continue
			}

			if len(item) < 2 {
				continue
			}

			rec, err := decodeSubmission(item[1])
			if err != nil {
				w.log.Error().Err(err).Str("data", item[1]).Msg("Invalid submission payload")
				continue
			}

			batch = append(batch, rec)
		}
	}
}

func decodeSubmission(raw string) (*model.SubmissionRecord, error) {
	var rec model.SubmissionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	if rec.RunID == uuid.Nil || rec.StudentToken == uuid.Nil {
		return nil, errors.New("missing run id or student token")
	}
	if rec.Answers == nil {
		rec.Answers = map[string]string{}
	}
	return &rec, nil
}

// ----------------------------------------------------------------
// Batch insert wrapper
// ----------------------------------------------------------------

func (w *SubmissionWorker) flushSafe(ctx context.Context, batch []*model.SubmissionRecord) {
	if len(batch) == 0 {
		return
	}

	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk submission insert failed, using fallback")

		failed := make([]*model.SubmissionRecord, 0)
		for _, rec := range batch {
			err := w.persistSingle(ctx, rec)
			switch {
			case err == nil:
			case isForeignKeyViolation(err):
				w.log.Error().Err(err).Str("run_id", rec.RunID.String()).Msg("Dropping submission for unknown run")
				metrics.ArchiveFailures.WithLabelValues(config.WorkerKey.PersistSubmissionsQueue).Inc()
			default:
				w.log.Error().Err(err).Str("run_id", rec.RunID.String()).Msg("persistSingle failed, requeueing")
				failed = append(failed, rec)
			}
		}
		if len(failed) > 0 {
			requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistSubmissionsQueue, failed)
		}
	}
}

// submissionColumns holds one batch as parallel arrays for UNNEST.
type submissionColumns struct {
	runIDs, tokens                []uuid.UUID
	firstNames, lastNames         []string
	scores                        []*int32
	cheats, refreshes, timeSpents []int32
	answers                       [][]byte
	ips, uas, devices             []string
	submittedAts                  []time.Time
}

func buildSubmissionColumns(batch []*model.SubmissionRecord) (submissionColumns, error) {
	n := len(batch)
	cols := submissionColumns{
		runIDs: make([]uuid.UUID, 0, n), tokens: make([]uuid.UUID, 0, n),
		firstNames: make([]string, 0, n), lastNames: make([]string, 0, n),
		scores: make([]*int32, 0, n),
		cheats: make([]int32, 0, n), refreshes: make([]int32, 0, n), timeSpents: make([]int32, 0, n),
		answers: make([][]byte, 0, n),
		ips:     make([]string, 0, n), uas: make([]string, 0, n), devices: make([]string, 0, n),
		submittedAts: make([]time.Time, 0, n),
	}

	for _, rec := range batch {
		raw, err := json.Marshal(rec.Answers)
		if err != nil {
			return cols, err
		}
		var score *int32
		if rec.Score != nil {
			s := int32(*rec.Score)
			score = &s
		}

		cols.runIDs = append(cols.runIDs, rec.RunID)
		cols.tokens = append(cols.tokens, rec.StudentToken)
		cols.firstNames = append(cols.firstNames, rec.FirstName)
		cols.lastNames = append(cols.lastNames, rec.LastName)
		cols.scores = append(cols.scores, score)
		cols.cheats = append(cols.cheats, int32(rec.CheatingAttempts))
		cols.refreshes = append(cols.refreshes, int32(rec.RefreshAttempts))
		cols.timeSpents = append(cols.timeSpents, int32(rec.TimeSpentSeconds))
		cols.answers = append(cols.answers, raw)
		cols.ips = append(cols.ips, rec.IPAddress)
		cols.uas = append(cols.uas, rec.UserAgent)
		cols.devices = append(cols.devices, rec.DeviceID)
		cols.submittedAts = append(cols.submittedAts, rec.SubmittedAt)
	}
	return cols, nil
}

// ----------------------------------------------------------------
// BULK PostgreSQL INSERT using UNNEST
// ----------------------------------------------------------------

func (w *SubmissionWorker) bulkInsert(ctx context.Context, batch []*model.SubmissionRecord) error {
	cols, err := buildSubmissionColumns(batch)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO exam_submissions (
			run_id, student_token, first_name, last_name, score,
			cheating_attempts, refresh_attempts, time_spent_seconds, answers,
			ip_address, user_agent, device_id, submitted_at
		)
		SELECT * FROM UNNEST(
			$1::uuid[], $2::uuid[], $3::text[], $4::text[], $5::int[],
			$6::int[], $7::int[], $8::int[], $9::jsonb[],
			$10::text[], $11::text[], $12::text[], $13::timestamptz[]
		)
		ON CONFLICT (run_id, student_token) DO NOTHING
	`

	_, err = w.pool.Exec(ctx, query,
		cols.runIDs, cols.tokens, cols.firstNames, cols.lastNames, cols.scores,
		cols.cheats, cols.refreshes, cols.timeSpents, cols.answers,
		cols.ips, cols.uas, cols.devices, cols.submittedAts,
	)
	return err
}

// ----------------------------------------------------------------
// FALLBACK single insert
// ----------------------------------------------------------------

func (w *SubmissionWorker) persistSingle(ctx context.Context, rec *model.SubmissionRecord) error {
	raw, err := json.Marshal(rec.Answers)
	if err != nil {
		return err
	}

	_, err = w.pool.Exec(ctx,
		`INSERT INTO exam_submissions (
			run_id, student_token, first_name, last_name, score,
			cheating_attempts, refresh_attempts, time_spent_seconds, answers,
			ip_address, user_agent, device_id, submitted_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10, $11, $12, $13)
		 ON CONFLICT (run_id, student_token) DO NOTHING`,
		rec.RunID, rec.StudentToken, rec.FirstName, rec.LastName, rec.Score,
		rec.CheatingAttempts, rec.RefreshAttempts, rec.TimeSpentSeconds, string(raw),
		rec.IPAddress, rec.UserAgent, rec.DeviceID, rec.SubmittedAt,
	)
	return err
}
