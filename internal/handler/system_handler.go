package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/config"
	"github.com/stemsi/autoexam/internal/database"
	"github.com/stemsi/autoexam/internal/response"
)

const statusInterval = 7 * time.Second

// SystemHandler reports server health and streams runtime status.
type SystemHandler struct {
	pool        *pgxpool.Pool
	rdb         *redis.Client
	teachersDir string
	startTime   time.Time
	log         zerolog.Logger
}

func NewSystemHandler(pool *pgxpool.Pool, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		pool:        pool,
		rdb:         rdb,
		teachersDir: cfg.TeachersDir,
		startTime:   time.Now(),
		log:         log.With().Str("component", "system_handler").Logger(),
	}
}

// Health godoc
// GET /health
// Returns 503 when PostgreSQL or Redis does not answer.
func (h *SystemHandler) Health(c *gin.Context) {
	health := database.Check(c.Request.Context(), h.pool, h.rdb)
	status, label := http.StatusOK, "ok"
	if !health.OK() {
		status, label = http.StatusServiceUnavailable, "degraded"
	}
	response.Success(c, status, gin.H{
		"status": label,
		"stores": health,
		"uptime": formatUptime(time.Since(h.startTime)),
	})
}

type systemStatus struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	// Storage holding exams and results
	DiskUsedBytes  uint64  `json:"disk_used_bytes"`
	DiskTotalBytes uint64  `json:"disk_total_bytes"`
	DiskPercent    float64 `json:"disk_percent"`

	// Go Application
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Archive queues
	QueueSubmissions int64 `json:"queue_submissions"`
	QueueCheats      int64 `json:"queue_cheats"`
}

// SystemStatusSSE godoc
// GET /api/v1/teacher/system/stream
// Pushes runtime status every 7s.
func (h *SystemHandler) SystemStatusSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	h.writeStatus(c, reqCtx)
	for {
		select {
		case <-reqCtx.Done():
			return
		case <-ticker.C:
			h.writeStatus(c, reqCtx)
		}
	}
}

func (h *SystemHandler) writeStatus(c *gin.Context, ctx context.Context) {
	data, err := json.Marshal(h.collect(ctx))
	if err != nil {
		return
	}
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}

func (h *SystemHandler) collect(ctx context.Context) systemStatus {
	s := systemStatus{
		Timestamp: time.Now().Unix(),
		Uptime:    formatUptime(time.Since(h.startTime)),
		GoVersion: runtime.Version(),
		NumCPU:    runtime.NumCPU(),
	}

	if total, free, err := diskUsage(h.teachersDir); err == nil && total > 0 {
		s.DiskTotalBytes = total
		s.DiskUsedBytes = total - free
		s.DiskPercent = float64(s.DiskUsedBytes) / float64(total) * 100
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	s.Goroutines = runtime.NumGoroutine()
	s.HeapAlloc = ms.HeapAlloc
	s.HeapSys = ms.HeapSys
	s.NumGC = ms.NumGC

	pipe := h.rdb.Pipeline()
	subsCmd := pipe.LLen(ctx, config.WorkerKey.PersistSubmissionsQueue)
	cheatsCmd := pipe.LLen(ctx, config.WorkerKey.PersistCheatsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		s.QueueSubmissions, _ = subsCmd.Result()
		s.QueueCheats, _ = cheatsCmd.Result()
	} else {
		h.log.Debug().Err(err).Msg("Failed to read queue lengths")
	}

	return s
}

// diskUsage returns the size and free space of the filesystem holding path.
func diskUsage(path string) (total, free uint64, err error) {
	var stat syscall.Statfs_t
	if err := syscall.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total = stat.Blocks * uint64(stat.Bsize)
	free = stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}

func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
