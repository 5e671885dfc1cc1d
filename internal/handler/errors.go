package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/autoexam/internal/engine"
	"github.com/stemsi/autoexam/internal/repository"
	"github.com/stemsi/autoexam/internal/response"
	"github.com/stemsi/autoexam/internal/service"
	"github.com/stemsi/autoexam/internal/session"
)

// failWith maps a service error to its HTTP status and error code. Unknown
// errors are logged and reported as internal errors.
func failWith(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionEnded):
		response.Fail(c, http.StatusGone, response.ErrSessionEnded)
	case errors.Is(err, session.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrSessionNotFound)
	case errors.Is(err, session.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, session.ErrForbidden):
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
	case errors.Is(err, service.ErrExamFileNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrExamFileNotFound)
	case errors.Is(err, service.ErrInvalidFilename):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidFilename)
	case errors.Is(err, service.ErrUnsupportedFileType):
		response.Fail(c, http.StatusUnsupportedMediaType, response.ErrUnsupportedFile)
	case errors.Is(err, service.ErrFileTooLarge):
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
	case errors.Is(err, service.ErrInvalidLogCategory):
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidLogCategory)
	case errors.Is(err, engine.ErrEmptyExam):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrEmptyExam)
	case errors.Is(err, repository.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, repository.ErrDuplicate):
		response.Fail(c, http.StatusConflict, response.ErrConflict)
	default:
		response.Logger(c).Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// failStudent is failWith for requests carrying a student token, where a
// miss usually means the token is unknown.
func failStudent(c *gin.Context, err error) {
	if errors.Is(err, session.ErrNotFound) && !errors.Is(err, session.ErrSessionEnded) {
		response.Fail(c, http.StatusNotFound, response.ErrStudentNotFound)
		return
	}
	failWith(c, err)
}

// sessionID parses the :id path parameter. It writes the error response
// and returns false when the id is malformed.
func sessionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, false
	}
	return id, true
}
