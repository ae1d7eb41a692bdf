package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentbroker/internal/protocol"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

type registerProtocolRequest struct {
	Name          string                 `json:"name" binding:"required"`
	Version       string                 `json:"version" binding:"required"`
	MessageSchema map[string]any         `json:"message_schema" binding:"required"`
	Capabilities  []string               `json:"capabilities"`
	Metadata      store.ProtocolMetadata `json:"metadata"`
}

func (s *Server) handleRegisterProtocol(c *gin.Context) {
	var req registerProtocolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p := store.Protocol{
		ProjectID:     c.Param("projectID"),
		Name:          req.Name,
		Version:       req.Version,
		MessageSchema: req.MessageSchema,
		Capabilities:  req.Capabilities,
		Metadata:      req.Metadata,
	}
	if err := s.protocols.Register(c.Request.Context(), p); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusCreated)
}

func (s *Server) handleDiscoverProtocols(c *gin.Context) {
	filter := protocol.DiscoverFilter{
		Name:          c.Query("name"),
		Version:       c.Query("version"),
		IncludeShared: c.Query("include_shared") != "false",
	}
	if tags := c.QueryArray("tag"); len(tags) > 0 {
		filter.Tags = tags
	}
	infos, err := s.protocols.Discover(c.Request.Context(), c.Param("projectID"), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"protocols": infos})
}

type shareProtocolRequest struct {
	Name            string `json:"name" binding:"required"`
	Version         string `json:"version" binding:"required"`
	TargetProjectID string `json:"target_project_id" binding:"required"`
}

func (s *Server) handleShareProtocol(c *gin.Context) {
	var req shareProtocolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.protocols.ShareProtocol(c.Request.Context(), req.Name, req.Version, c.Param("projectID"), req.TargetProjectID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
