package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/qfolders/qfolders/internal/common"
)

// multipartOverhead is allowed on top of the attachment cap for the other
// form fields and the multipart framing.
const multipartOverhead = 1 << 20

func (h *Handler) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		h.logger.Info(c.Request.Context(), "request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"ip", c.ClientIP(),
		)
	}
}

func (h *Handler) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		h.logger.Error(c.Request.Context(), "panic", "error", recovered, "path", c.Request.URL.Path)
		respond(c, http.StatusInternalServerError, 50001, "internal error", nil)
		c.Abort()
	})
}

// limitBody caps the request body so an oversized upload is cut off while
// it is being received.
func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+multipartOverhead)
		c.Next()
	}
}

// fail commits the session and writes the error response for err.
func (h *Handler) fail(c *gin.Context, err error) {
	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		err = common.ErrTooLarge
	}
	e := errorFor(err)
	if e.status >= http.StatusInternalServerError {
		h.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
	}
	h.commitSession(c)
	respond(c, e.status, e.code, e.message, nil)
}

// ok commits the session and writes data.
func (h *Handler) ok(c *gin.Context, status int, data any) {
	h.commitSession(c)
	success(c, status, data)
}
