package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// requestLogger mirrors the teacher's securityHeaders-style small,
// single-purpose gin.HandlerFunc middleware shape (pkg/api/middleware.go),
// logging method/path/status/latency via slog instead of echo's built-in
// logger middleware.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		c.Next()
		slog.Info("http request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
		)
	}
}

// requireUserAuth validates the Authorization: Bearer <jwt> header issued by
// POST /auth/login and stashes the subject user ID in the gin context.
func (s *Server) requireUserAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		userID, err := s.authSvc.VerifyAccessToken(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set("userID", userID)
		c.Next()
	}
}

// requireProjectAPIKey validates the X-API-Key header against the
// :projectID path segment, so every agent-facing call is scoped to the
// project the caller actually has a key for.
func (s *Server) requireProjectAPIKey() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing X-API-Key header"})
			return
		}
		projectID, keyID, ok := s.projects.ValidateAPIKey(c.Request.Context(), apiKey)
		if !ok || projectID != c.Param("projectID") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid API key for this project"})
			return
		}
		c.Set("keyID", keyID)
		c.Next()
	}
}
