package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
)

func TestWriteError_MapsCodesToStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		code apperr.Code
		want int
	}{
		{apperr.NotFound, http.StatusNotFound},
		{apperr.Duplicate, http.StatusConflict},
		{apperr.Validation, http.StatusBadRequest},
		{apperr.Unauthorized, http.StatusUnauthorized},
		{apperr.Forbidden, http.StatusForbidden},
		{apperr.QueueFull, http.StatusServiceUnavailable},
		{apperr.RateLimited, http.StatusTooManyRequests},
		{apperr.ProtocolMismatch, http.StatusUnprocessableEntity},
		{apperr.InvalidState, http.StatusConflict},
		{apperr.Expired, http.StatusGone},
		{apperr.Internal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			writeError(c, apperr.New(tt.code, "boom"))
			assert.Equal(t, tt.want, w.Code)
		})
	}
}
