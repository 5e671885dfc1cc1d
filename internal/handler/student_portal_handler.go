package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/results"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/validator"
)

// StudentPortalHandler handles student-facing endpoints. Students never log
// in; the token returned by Register identifies their attempt.
type StudentPortalHandler struct {
	sessions *service.ExamSessionService
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessions *service.ExamSessionService) *StudentPortalHandler {
	return &StudentPortalHandler{sessions: sessions}
}

func clientMeta(c *gin.Context) service.ClientMeta {
	return service.ClientMeta{
		IP:        results.ClientIP(c.Request, c.ClientIP()),
		UserAgent: c.Request.UserAgent(),
	}
}

// GetExamInfo godoc
// GET /api/v1/exam/:id
// Describes the session for the registration page.
func (h *StudentPortalHandler) GetExamInfo(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	info, err := h.sessions.Info(id)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, info)
}

// Register godoc
// POST /api/v1/exam/:id/register
// Registers a student and returns their token and drawn questions.
func (h *StudentPortalHandler) Register(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.RegisterStudentRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.sessions.Register(c.Request.Context(), id, req.FirstName, req.LastName)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusCreated, view)
}

// GetQuestions godoc
// GET /api/v1/exam/:id/questions?token=
// Returns the student's paper again. Each call counts as a page refresh.
func (h *StudentPortalHandler) GetQuestions(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}
	token := c.Query("token")
	if _, err := uuid.Parse(token); err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidEntryToken)
		return
	}

	view, err := h.sessions.Questions(c.Request.Context(), id, token)
	if err != nil {
		failStudent(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// SubmitExam godoc
// POST /api/v1/exam/:id/submit
// Grades the answers. The score is null while open questions await review.
func (h *StudentPortalHandler) SubmitExam(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.sessions.Submit(c.Request.Context(), id, req, clientMeta(c))
	if err != nil {
		failStudent(c, err)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// RecordRefresh godoc
// POST /api/v1/exam/:id/refresh
func (h *StudentPortalHandler) RecordRefresh(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.StudentTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	n, err := h.sessions.Refresh(c.Request.Context(), id, req.Token)
	if err != nil {
		failStudent(c, err)
		return
	}
	response.Success(c, http.StatusOK, model.RefreshResponse{RefreshAttempts: n})
}

// ReportCheat godoc
// POST /api/v1/exam/:id/cheat
// Reports for unknown sessions or tokens are ignored. The reply is always 202.
func (h *StudentPortalHandler) ReportCheat(c *gin.Context) {
	id, ok := sessionID(c)
	if !ok {
		return
	}

	var req model.CheatReportRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	h.sessions.ReportCheat(c.Request.Context(), id, req.Token, req.Type, req.Details, clientMeta(c))
	response.Success(c, http.StatusAccepted, gin.H{})
}
