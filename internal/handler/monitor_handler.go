package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/middleware"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
)

// EventSubscriber attaches to a session's live event channel.
type EventSubscriber interface {
	Subscribe(ctx context.Context, sessionID int64) *redis.PubSub
}

// MonitorHandler streams a session's live state to the teacher's monitor
// page over SSE.
type MonitorHandler struct {
	sessions   *service.ExamSessionService
	subscriber EventSubscriber
	log        zerolog.Logger
}

func NewMonitorHandler(sessions *service.ExamSessionService, subscriber EventSubscriber, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessions:   sessions,
		subscriber: subscriber,
		log:        log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorSessionSSE godoc
// GET /api/v1/teacher/sessions/:id/monitor
// Sends a snapshot, then forwards every published event. A full refresh
// follows every 15s and a ping every 30s.
func (h *MonitorHandler) MonitorSessionSSE(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	teacher := middleware.TeacherUsername(c)

	snapshot, err := h.sessions.Snapshot(id, teacher)
	if err != nil {
		failWith(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	// Subscribe before the snapshot goes out so no event falls in between.
	pubsub := h.subscriber.Subscribe(reqCtx, id)
	defer pubsub.Close()
	ch := pubsub.Channel()

	h.writeEvent(c, snapshot)

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	mlog := h.log.With().Int64("exam_id", id).Str("teacher", teacher).Logger()
	mlog.Info().Msg("Teacher attached to live monitor SSE")

	pingPayload, _ := json.Marshal(map[string]string{"type": "ping"})

	for {
		select {
		case <-reqCtx.Done():
			mlog.Info().Msg("Teacher detached from live monitor SSE")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Published events are already JSON.
			h.writeRaw(c, []byte(msg.Payload))

			var ev model.MonitorEvent
			if json.Unmarshal([]byte(msg.Payload), &ev) == nil && ev.Type == model.MonitorSessionEnded {
				mlog.Info().Msg("Session ended, closing monitor stream")
				return
			}

		case <-refreshTicker.C:
			h.sendRefresh(c, id, teacher)

		case <-keepAliveTicker.C:
			h.writeRaw(c, pingPayload)
		}
	}
}

// sendRefresh re-sends the full student table as a snapshot event, which
// also brings live time_spent values up to date.
func (h *MonitorHandler) sendRefresh(c *gin.Context, id int64, teacher string) {
	snapshot, err := h.sessions.Snapshot(id, teacher)
	if err != nil {
		h.log.Warn().Err(err).Int64("exam_id", id).Msg("Failed to build monitor refresh")
		return
	}
	h.writeEvent(c, snapshot)
}

func (h *MonitorHandler) writeEvent(c *gin.Context, ev *model.MonitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode monitor event")
		return
	}
	h.writeRaw(c, data)
}

func (h *MonitorHandler) writeRaw(c *gin.Context, data []byte) {
	c.Writer.Write([]byte("data: "))
	c.Writer.Write(data)
	c.Writer.Write([]byte("\n\n"))
	c.Writer.Flush()
}
