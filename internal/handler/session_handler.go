package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/autoexam/internal/middleware"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/validator"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// SessionHandler handles the teacher side of exam sessions.
type SessionHandler struct {
	sessions *service.ExamSessionService
	proctor  *service.ProctoringService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *service.ExamSessionService, proctor *service.ProctoringService) *SessionHandler {
	return &SessionHandler{sessions: sessions, proctor: proctor}
}

func listLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultListLimit)))
	if err != nil || limit <= 0 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}

// StartSession godoc
// POST /api/v1/teacher/sessions
// Opens an exam session from one of the teacher's files.
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.sessions.Start(c.Request.Context(), middleware.TeacherUsername(c), req)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, resp)
}

// ListActiveSessions godoc
// GET /api/v1/teacher/sessions
func (h *SessionHandler) ListActiveSessions(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"sessions": h.sessions.Active(middleware.TeacherUsername(c)),
	})
}

// EndSession godoc
// POST /api/v1/teacher/sessions/:id/end
func (h *SessionHandler) EndSession(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	if err := h.sessions.End(c.Request.Context(), id, middleware.TeacherUsername(c)); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// GetSessionStudents godoc
// GET /api/v1/teacher/sessions/:id/students
func (h *SessionHandler) GetSessionStudents(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	sum, err := h.sessions.Summary(id, middleware.TeacherUsername(c))
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, sum)
}

// ListResults godoc
// GET /api/v1/teacher/results
// Lists results folders, newest first.
func (h *SessionHandler) ListResults(c *gin.Context) {
	folders, err := h.sessions.Results(middleware.TeacherUsername(c))
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"results": folders})
}

// ListHistory godoc
// GET /api/v1/teacher/history?limit=
// Lists archived exam runs, including those of earlier server runs.
func (h *SessionHandler) ListHistory(c *gin.Context) {
	limit := listLimit(c)
	runs, err := h.sessions.History(c.Request.Context(), middleware.TeacherUsername(c), limit)
	if err != nil {
		failWith(c, err)
		return
	}
	if runs == nil {
		runs = []model.ExamRun{}
	}
	response.SuccessList(c, http.StatusOK, gin.H{"runs": runs}, len(runs), limit)
}

// GetRunSubmissions godoc
// GET /api/v1/teacher/history/:run_id/submissions
func (h *SessionHandler) GetRunSubmissions(c *gin.Context) {
	runID, err := uuid.Parse(c.Param("run_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	subs, err := h.sessions.RunSubmissions(c.Request.Context(), runID, middleware.TeacherUsername(c))
	if err != nil {
		failWith(c, err)
		return
	}
	if subs == nil {
		subs = []model.SubmissionRecord{}
	}
	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}

// GetLogs godoc
// GET /api/v1/teacher/logs?type=cheating&limit=
// Returns the newest proctoring audit entries of one category.
func (h *SessionHandler) GetLogs(c *gin.Context) {
	category := model.LogCategory(c.DefaultQuery("type", string(model.LogSessions)))
	limit := listLimit(c)

	entries, err := h.proctor.Read(category, limit)
	if err != nil {
		failWith(c, err)
		return
	}
	response.SuccessList(c, http.StatusOK, gin.H{"type": category, "entries": entries}, len(entries), limit)
}
