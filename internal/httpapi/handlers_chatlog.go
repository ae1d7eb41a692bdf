package httpapi

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentbroker/internal/chatlog"
	"github.com/codeready-toolchain/agentbroker/internal/topics"
)

func (s *Server) handleEnsureChatRoom(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)
	if err := s.chatlog.EnsureRoom(c.Request.Context(), c.Param("roomID"), c.Param("projectID"), req.Name); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type logCommunicationRequest struct {
	SenderID        string `json:"sender_id" binding:"required"`
	RecipientID     string `json:"recipient_id"`
	ProtocolName    string `json:"protocol_name"`
	ProtocolVersion string `json:"protocol_version"`
	Topic           string `json:"topic"`
	Content         string `json:"content" binding:"required"`
}

func (s *Server) handleLogCommunication(c *gin.Context) {
	var req logCommunicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	msg, err := s.chatlog.LogCommunication(c.Request.Context(), c.Param("roomID"), req.SenderID, req.RecipientID,
		req.ProtocolName, req.ProtocolVersion, req.Topic, req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleQueryCommunications(c *gin.Context) {
	f := chatlog.Filter{
		SenderID:    c.Query("sender_id"),
		RecipientID: c.Query("recipient_id"),
		Topic:       c.Query("topic"),
	}
	if p, err := strconv.Atoi(c.Query("page")); err == nil {
		f.Page = p
	}
	if ps, err := strconv.Atoi(c.Query("page_size")); err == nil {
		f.PageSize = ps
	}
	page, err := s.chatlog.QueryCommunications(c.Request.Context(), c.Param("roomID"), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// handleSuggestTopics runs the isolated topic-suggestion heuristic over the
// room's recent history — the one place this façade wires
// internal/topics to a live endpoint; neither the broker nor the
// discussion coordinator ever import it.
func (s *Server) handleSuggestTopics(c *gin.Context) {
	page, err := s.chatlog.QueryCommunications(c.Request.Context(), c.Param("roomID"), chatlog.Filter{PageSize: 1000})
	if err != nil {
		writeError(c, err)
		return
	}
	comms := make([]topics.Communication, len(page.Messages))
	for i, m := range page.Messages {
		comms[i] = topics.Communication{ID: m.MessageID, SenderID: m.SenderID, ReceiverID: m.RecipientID, Topic: m.Topic}
	}
	suggestions := topics.AnalyzeCommunications(comms, topics.AnalyzeOptions{})
	c.JSON(http.StatusOK, gin.H{"suggestions": suggestions})
}
