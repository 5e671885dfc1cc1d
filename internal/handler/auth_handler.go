package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/autoexam/internal/middleware"
	"github.com/stemsi/autoexam/internal/model"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/results"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/validator"
)

// AuthHandler handles teacher authentication endpoints.
type AuthHandler struct {
	authService *service.AuthService
	proctor     *service.ProctoringService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(authService *service.AuthService, proctor *service.ProctoringService) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		proctor:     proctor,
	}
}

// TeacherLogin godoc
// POST /api/v1/auth/teacher/login
// Validates username + password and returns a JWT. Every attempt is written
// to the login history.
func (h *AuthHandler) TeacherLogin(c *gin.Context) {
	var req model.TeacherLoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ip := results.ClientIP(c.Request, c.ClientIP())
	resp, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	h.proctor.LogLogin(req.Username, err == nil, ip, c.Request.UserAgent())
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			response.Fail(c, http.StatusUnauthorized, response.ErrInvalidCredentials)
			return
		}
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp)
}

// GetTeacherProfile godoc
// GET /api/v1/auth/teacher/me
// Returns the profile of the currently authenticated teacher.
func (h *AuthHandler) GetTeacherProfile(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	teacher, err := h.authService.Teacher(c.Request.Context(), claims.Username)
	if err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"teacher": teacher})
}

// TeacherLogout godoc
// POST /api/v1/auth/teacher/logout
// Revokes the token used for this request.
func (h *AuthHandler) TeacherLogout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), claims); err != nil {
		failWith(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}
