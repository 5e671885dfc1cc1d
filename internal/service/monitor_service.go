package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/model"
)

// MonitorService fans live exam events out to every teacher monitor
// through a Redis channel per session, so any server instance can serve
// the SSE stream.
type MonitorService struct {
	rdb *redis.Client
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(rdb *redis.Client) *MonitorService {
	return &MonitorService{rdb: rdb}
}

// Publish sends ev on the session's channel.
func (s *MonitorService) Publish(ctx context.Context, ev model.MonitorEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	return s.rdb.Publish(ctx, config.CacheKey.ExamMonitorChannel(ev.SessionID), payload).Err()
}

// Subscribe attaches to the session's channel. The caller closes the
// returned PubSub.
func (s *MonitorService) Subscribe(ctx context.Context, sessionID int64) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.ExamMonitorChannel(sessionID))
}
