package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/metrics"
	"github.com/stemsi/autoexam/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// CheatWorker drains the cheat queue into exam_cheat_events.
type CheatWorker struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewCheatWorker(pool *pgxpool.Pool, rdb *redis.Client, log zerolog.Logger) *CheatWorker {
	return &CheatWorker{
		pool: pool,
		rdb:  rdb,
		log:  log.With().Str("component", "cheat_worker").Logger(),
	}
}

func (w *CheatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CheatWorker started")

	buffer := make([]*model.CheatRecord, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// BLPop blocks for PollTimeout and returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistCheatsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		if len(result) < 2 {
			continue
		}

		rec, err := decodeCheat(result[1])
		if err != nil {
			// Malformed payloads can never succeed, so they are dropped.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed cheat payload")
			continue
		}
		buffer = append(buffer, rec)
	}
}

func decodeCheat(raw string) (*model.CheatRecord, error) {
	var rec model.CheatRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, err
	}
	if rec.EventType == "" {
		return nil, errors.New("missing event type")
	}
	if rec.Details == nil {
		rec.Details = map[string]any{}
	}
	return &rec, nil
}

func cheatRow(rec *model.CheatRecord) []any {
	return []any{rec.RunID, rec.StudentToken, rec.EventType, rec.Details, rec.OccurredAt}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *CheatWorker) flushSafe(ctx context.Context, batch []*model.CheatRecord) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")
		w.fallbackInsert(ctx, batch)
	}
}

func (w *CheatWorker) bulkInsert(ctx context.Context, batch []*model.CheatRecord) error {
	rows := make([][]any, 0, len(batch))
	for _, rec := range batch {
		rows = append(rows, cheatRow(rec))
	}

	_, err := w.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_cheat_events"},
		[]string{"run_id", "student_token", "event_type", "details", "occurred_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

func (w *CheatWorker) fallbackInsert(ctx context.Context, batch []*model.CheatRecord) {
	requeueList := make([]*model.CheatRecord, 0)

	for _, rec := range batch {
		_, err := w.pool.Exec(ctx,
			`INSERT INTO exam_cheat_events (run_id, student_token, event_type, details, occurred_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			cheatRow(rec)...,
		)
		if err == nil {
			continue
		}

		// A run deleted in the meantime can never be satisfied.
		if isForeignKeyViolation(err) {
			w.log.Error().Err(err).Str("run_id", rec.RunID.String()).Msg("Dropping cheat event for unknown run")
			metrics.ArchiveFailures.WithLabelValues(config.WorkerKey.PersistCheatsQueue).Inc()
			continue
		}

		w.log.Error().Err(err).Str("run_id", rec.RunID.String()).Msg("Insert failed, requeueing")
		requeueList = append(requeueList, rec)
	}

	if len(requeueList) > 0 {
		requeue(ctx, w.rdb, w.log, config.WorkerKey.PersistCheatsQueue, requeueList)
	}
}

func (w *CheatWorker) shutdown(buffer []*model.CheatRecord) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
