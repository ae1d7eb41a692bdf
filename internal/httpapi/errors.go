package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

// writeError maps an apperr.Code to an HTTP status and writes a JSON error
// body, grounded on the teacher's pkg/api/errors.go mapServiceError.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch apperr.CodeOf(err) {
	case apperr.NotFound:
		status = http.StatusNotFound
	case apperr.Duplicate:
		status = http.StatusConflict
	case apperr.Validation:
		status = http.StatusBadRequest
	case apperr.Unauthorized:
		status = http.StatusUnauthorized
	case apperr.Forbidden:
		status = http.StatusForbidden
	case apperr.QueueFull:
		status = http.StatusServiceUnavailable
	case apperr.RateLimited:
		status = http.StatusTooManyRequests
	case apperr.ProtocolMismatch:
		status = http.StatusUnprocessableEntity
	case apperr.InvalidState:
		status = http.StatusConflict
	case apperr.Expired:
		status = http.StatusGone
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
