package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/model"
)

// ArchiveService queues finished submissions and cheat events for the
// background workers that copy them into PostgreSQL.
type ArchiveService struct {
	rdb *redis.Client
}

// NewArchiveService creates a new ArchiveService.
func NewArchiveService(rdb *redis.Client) *ArchiveService {
	return &ArchiveService{rdb: rdb}
}

func (s *ArchiveService) push(ctx context.Context, queue string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", queue, err)
	}
	return s.rdb.RPush(ctx, queue, data).Err()
}

// EnqueueSubmission queues a submission for archiving.
func (s *ArchiveService) EnqueueSubmission(ctx context.Context, rec model.SubmissionRecord) error {
	return s.push(ctx, config.WorkerKey.PersistSubmissionsQueue, rec)
}

// EnqueueCheat queues a cheat event for archiving.
func (s *ArchiveService) EnqueueCheat(ctx context.Context, rec model.CheatRecord) error {
	return s.push(ctx, config.WorkerKey.PersistCheatsQueue, rec)
}
