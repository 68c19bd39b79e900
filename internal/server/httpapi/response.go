package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/qfolders/qfolders/internal/common"
)

// JSONResponse is the envelope of every API response.
type JSONResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func respond(c *gin.Context, status, code int, message string, data any) {
	c.JSON(status, JSONResponse{Code: code, Message: message, Data: data})
}

func success(c *gin.Context, status int, data any) {
	respond(c, status, 0, "success", data)
}

type apiError struct {
	status  int
	code    int
	message string
}

// errorFor maps the common error taxonomy onto a status, a stable numeric
// code and a message meant for end users.
func errorFor(err error) apiError {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return apiError{http.StatusBadRequest, 40001, strings.TrimPrefix(err.Error(), common.ErrorValidation.Error()+": ")}
	case errors.Is(err, common.ErrInvalidCredentials):
		return apiError{http.StatusUnauthorized, 40101, "invalid email or password"}
	case errors.Is(err, common.ErrSessionExpired):
		return apiError{http.StatusUnauthorized, 40102, "session expired, please log in again"}
	case errors.Is(err, common.ErrorNotFound):
		return apiError{http.StatusNotFound, 40401, "not found"}
	case errors.Is(err, common.ErrorAlreadyExists):
		return apiError{http.StatusConflict, 40901, "already exists"}
	case errors.Is(err, common.ErrTooLarge):
		return apiError{http.StatusRequestEntityTooLarge, 41301, "attachment is larger than the allowed size"}
	case errors.Is(err, common.ErrUnsupportedType):
		return apiError{http.StatusUnsupportedMediaType, 41501, "only PDF attachments are accepted"}
	case errors.Is(err, common.ErrAuthProviderUnavailable), errors.Is(err, common.ErrStoreUnavailable):
		return apiError{http.StatusServiceUnavailable, 50301, "service temporarily unavailable, please try again"}
	default:
		return apiError{http.StatusInternalServerError, 50001, "internal error"}
	}
}
