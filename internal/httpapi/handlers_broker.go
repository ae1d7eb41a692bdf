package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentbroker/internal/store"
)

type createSessionRequest struct {
	SessionID    string             `json:"session_id"`
	Capabilities store.Capabilities `json:"capabilities"`
}

func (s *Server) handleCreateSession(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	sess, err := s.sessions.CreateSession(c.Request.Context(), c.Param("projectID"), req.SessionID, req.Capabilities)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (s *Server) handleHeartbeat(c *gin.Context) {
	if err := s.sessions.UpdateHeartbeat(c.Request.Context(), c.Param("projectID"), c.Param("sessionID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleDisconnectSession(c *gin.Context) {
	if err := s.sessions.DisconnectSession(c.Request.Context(), c.Param("projectID"), c.Param("sessionID")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type sendMessageRequest struct {
	SenderID        string         `json:"sender_id" binding:"required"`
	RecipientID     string         `json:"recipient_id" binding:"required"`
	ProtocolName    string         `json:"protocol_name"`
	ProtocolVersion string         `json:"protocol_version"`
	Payload         map[string]any `json:"payload"`
	Headers         store.Headers  `json:"headers"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg := store.Message{
		SenderID:        req.SenderID,
		RecipientID:     req.RecipientID,
		ProtocolName:    req.ProtocolName,
		ProtocolVersion: req.ProtocolVersion,
		Payload:         req.Payload,
		Headers:         req.Headers,
	}
	result, err := s.router.SendMessage(c.Request.Context(), req.SenderID, req.RecipientID, c.Param("projectID"), msg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type broadcastMessageRequest struct {
	SenderID         string         `json:"sender_id" binding:"required"`
	ProtocolName     string         `json:"protocol_name"`
	ProtocolVersion  string         `json:"protocol_version"`
	Payload          map[string]any `json:"payload"`
	Headers          store.Headers  `json:"headers"`
	CapabilityFilter []string       `json:"capability_filter"`
}

func (s *Server) handleBroadcastMessage(c *gin.Context) {
	var req broadcastMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg := store.Message{
		SenderID:        req.SenderID,
		ProtocolName:    req.ProtocolName,
		ProtocolVersion: req.ProtocolVersion,
		Payload:         req.Payload,
		Headers:         req.Headers,
	}
	result, err := s.router.BroadcastMessage(c.Request.Context(), req.SenderID, c.Param("projectID"), msg, req.CapabilityFilter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type sendCrossProjectMessageRequest struct {
	SenderID           string         `json:"sender_id" binding:"required"`
	RecipientID        string         `json:"recipient_id" binding:"required"`
	RecipientProjectID string         `json:"recipient_project_id" binding:"required"`
	ProtocolName       string         `json:"protocol_name"`
	ProtocolVersion    string         `json:"protocol_version"`
	Payload            map[string]any `json:"payload"`
	Headers            store.Headers  `json:"headers"`
}

func (s *Server) handleSendCrossProjectMessage(c *gin.Context) {
	var req sendCrossProjectMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg := store.Message{
		SenderID:        req.SenderID,
		RecipientID:     req.RecipientID,
		ProtocolName:    req.ProtocolName,
		ProtocolVersion: req.ProtocolVersion,
		Payload:         req.Payload,
		Headers:         req.Headers,
	}
	apiKey := c.GetHeader("X-API-Key")
	result, err := s.crossProj.SendMessage(c.Request.Context(), req.SenderID, req.RecipientID, c.Param("projectID"), req.RecipientProjectID, apiKey, msg)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRouterStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.router.Stats(c.Param("projectID")))
}
