package rest

import (
	"errors"
	"net/http"

	"github.com/agriapp/server/progress"
	"github.com/gin-gonic/gin"
)

// statusFor maps progress errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, progress.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, progress.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, progress.ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err as a JSON error body. Server-side failures are
// reported generically; the cause is attached to the gin context for the
// request logger.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	c.JSON(status, gin.H{"error": msg})
}

func isNotFound(err error) bool {
	return errors.Is(err, progress.ErrNotFound)
}
