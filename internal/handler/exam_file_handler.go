package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/autoexam/internal/middleware"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/validator"
)

// ExamFileHandler manages the teacher's plain-text exam files.
type ExamFileHandler struct {
	files *service.ExamFileService
}

// NewExamFileHandler creates a new ExamFileHandler.
func NewExamFileHandler(files *service.ExamFileService) *ExamFileHandler {
	return &ExamFileHandler{files: files}
}

// ListExams godoc
// GET /api/v1/teacher/exams
func (h *ExamFileHandler) ListExams(c *gin.Context) {
	files, err := h.files.List(middleware.TeacherUsername(c))
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": files})
}

// UploadExam godoc
// POST /api/v1/teacher/exams
// Accepts a multipart "file" field holding a .txt exam.
func (h *ExamFileHandler) UploadExam(c *gin.Context) {
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	defer file.Close()

	saved, err := h.files.SaveUpload(middleware.TeacherUsername(c), file, header)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"exam": saved})
}

// DeleteExam godoc
// DELETE /api/v1/teacher/exams/:filename
func (h *ExamFileHandler) DeleteExam(c *gin.Context) {
	if err := h.files.Delete(middleware.TeacherUsername(c), c.Param("filename")); err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{})
}

// GetSource godoc
// GET /api/v1/teacher/exams/:filename/source
func (h *ExamFileHandler) GetSource(c *gin.Context) {
	src, err := h.files.ReadSource(middleware.TeacherUsername(c), c.Param("filename"))
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, src)
}

// SaveSource godoc
// PUT /api/v1/teacher/exams/:filename/source
// Replaces the file content, creating the file when missing.
func (h *ExamFileHandler) SaveSource(c *gin.Context) {
	var req model.SaveExamSourceRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	saved, err := h.files.WriteSource(middleware.TeacherUsername(c), c.Param("filename"), req.Content)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exam": saved})
}

// ValidateExam godoc
// POST /api/v1/teacher/exams/validate
func (h *ExamFileHandler) ValidateExam(c *gin.Context) {
	var req model.ValidateExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	response.Success(c, http.StatusOK, h.files.Validate(req.Content))
}

// PreviewExam godoc
// POST /api/v1/teacher/exams/preview
// Renders content the way a student would see it, answers included.
func (h *ExamFileHandler) PreviewExam(c *gin.Context) {
	var req model.PreviewExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	preview, err := h.files.Preview(req.Content, req.Shuffle)
	if err != nil {
		failWith(c, err)
		return
	}
	response.Success(c, http.StatusOK, preview)
}
