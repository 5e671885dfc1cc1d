package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/autoexam/internal/middleware"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/session"
	ws "github.com/stemsi/autoexam/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the student's proctoring socket.
type WSHandler struct {
	sessions *service.ExamSessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.ExamSessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// StudentStream godoc
// WS /ws/v1/exam/:id/stream?token=
// Carries cheat reports, refreshes, pings and the final submission.
func (h *WSHandler) StudentStream(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	token := c.Query("token")
	if _, err := uuid.Parse(token); err != nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrInvalidEntryToken)
		return
	}

	// SECURITY: only students holding a live attempt may open a stream.
	rec, err := h.sessions.StudentRecord(id, token)
	if err != nil {
		failStudent(c, err)
		return
	}
	if rec.Status != session.StudentInProgress {
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	conn.SetReadLimit(middleware.MaxStudentBody)

	client := clientMeta(c)
	wsLog := h.log.With().
		Int64("exam_id", id).
		Str("student", rec.FullName()).
		Logger()

	wsLog.Info().Msg("Student connected")

	for {
		env, err := ws.ReadEnvelope(conn)
		if errors.Is(err, ws.ErrBadEnvelope) {
			ws.WriteError(conn, err.Error())
			continue
		}
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		switch env.Action {
		case ws.ActionPing:
			ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong})

		case ws.ActionCheat:
			var req ws.CheatRequest
			if err := env.Decode(&req); err != nil || req.Type == "" {
				ws.WriteError(conn, "type is required")
				continue
			}
			h.sessions.ReportCheat(c.Request.Context(), id, token, req.Type, req.Details, client)
			ws.WriteTyped(conn, ws.RecordedResponse{Event: ws.EventRecorded, Type: req.Type})

		case ws.ActionRefresh:
			n, err := h.sessions.Refresh(c.Request.Context(), id, token)
			if err != nil {
				ws.WriteError(conn, err.Error())
				continue
			}
			ws.WriteTyped(conn, ws.RefreshedResponse{Event: ws.EventRefreshed, RefreshAttempts: n})

		case ws.ActionSubmit:
			if h.handleSubmit(c, conn, wsLog, id, token, env, client) {
				return
			}

		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(env.Action))
		}
	}
}

// handleSubmit grades the exam and reports whether the stream is done.
func (h *WSHandler) handleSubmit(c *gin.Context, conn *websocket.Conn, wsLog zerolog.Logger, id int64, token string, env *ws.RequestEnvelope, client service.ClientMeta) bool {
	var req ws.SubmitRequest
	if err := env.Decode(&req); err != nil {
		ws.WriteError(conn, "invalid submit payload")
		return false
	}

	submit := model.SubmitExamRequest{Token: token, Answers: req.Answers}
	if d := req.Device; d != nil {
		submit.Device = &model.DeviceInfo{
			DeviceID:         d.DeviceID,
			Platform:         d.Platform,
			ScreenResolution: d.ScreenResolution,
			UserAgent:        d.UserAgent,
		}
	}

	resp, err := h.sessions.Submit(c.Request.Context(), id, submit, client)
	if err != nil {
		wsLog.Warn().Err(err).Msg("Submit over websocket failed")
		ws.WriteError(conn, err.Error())
		return false
	}

	ws.WriteTyped(conn, ws.GradedResponse{
		Event:            ws.EventGraded,
		Score:            resp.Score,
		Pending:          resp.Pending,
		Message:          resp.Message,
		TimeSpentSeconds: resp.TimeSpentSeconds,
	})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "submitted"))
	return true
}
