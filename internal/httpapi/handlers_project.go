package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentbroker/internal/project"
)

type createProjectRequest struct {
	ProjectID   string   `json:"project_id" binding:"required"`
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	Owner       string   `json:"owner"`
}

func (s *Server) handleCreateProject(c *gin.Context) {
	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := project.DefaultConfig()
	p, err := s.projects.CreateProject(c.Request.Context(), req.ProjectID, req.Name, req.Description, &cfg, req.Tags, req.Owner)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, projectResponse(p))
}

func (s *Server) handleGetProject(c *gin.Context) {
	p, err := s.projects.GetProject(c.Request.Context(), c.Param("projectID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, projectResponse(p))
}

func (s *Server) handleListProjects(c *gin.Context) {
	filter := project.ListFilter{
		NameFilter:      c.Query("name"),
		IncludeInactive: c.Query("include_inactive") == "true",
		IncludeStats:    c.Query("include_stats") == "true",
	}
	infos, err := s.projects.ListProjects(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": infos})
}

type updateProjectRequest struct {
	Name        *string  `json:"name"`
	Description *string  `json:"description"`
	Tags        []string `json:"tags"`
}

func (s *Server) handleUpdateProject(c *gin.Context) {
	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := s.projects.UpdateProject(c.Request.Context(), c.Param("projectID"), req.Name, req.Description, nil, req.Tags)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, projectResponse(p))
}

func (s *Server) handleDeleteProject(c *gin.Context) {
	sessions, err := s.sessions.CheckStaleSessions(c.Request.Context(), c.Param("projectID"))
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.projects.DeleteProject(c.Request.Context(), c.Param("projectID"), len(sessions)); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type rotateAPIKeysRequest struct {
	KeyID        string `json:"key_id" binding:"required"`
	GraceSeconds int    `json:"grace_seconds"`
}

func (s *Server) handleRotateAPIKeys(c *gin.Context) {
	var req rotateAPIKeysRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	keys, err := s.projects.RotateAPIKeys(c.Request.Context(), c.Param("projectID"), req.KeyID, time.Duration(req.GraceSeconds)*time.Second)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"keys": keys})
}

type setPermissionsRequest struct {
	Permissions []project.CrossProjectPermission `json:"permissions"`
}

func (s *Server) handleSetPermissions(c *gin.Context) {
	var req setPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.projects.SetPermissions(c.Request.Context(), c.Param("projectID"), req.Permissions); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func projectResponse(p project.Project) gin.H {
	return gin.H{
		"project_id": p.ProjectID,
		"metadata":   p.Metadata,
		"config":     p.Config,
		"status":     p.Status,
		"created_at": p.CreatedAt,
	}
}
