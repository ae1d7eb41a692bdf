// Package httpapi is the gin-based HTTP façade (C1-C12's wire-level
// surface): project/protocol/session/message/auth REST endpoints plus the
// meeting/discussion WebSocket upgrade, grounded on the teacher's
// pkg/api/server.go Set*-after-NewServer wiring idiom, adapted from Echo v5
// to gin (this tree's go.mod carries gin, not echo).
package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/agentbroker/internal/auth"
	"github.com/codeready-toolchain/agentbroker/internal/broker"
	"github.com/codeready-toolchain/agentbroker/internal/chatlog"
	"github.com/codeready-toolchain/agentbroker/internal/config"
	"github.com/codeready-toolchain/agentbroker/internal/dbsql"
	"github.com/codeready-toolchain/agentbroker/internal/discussion"
	"github.com/codeready-toolchain/agentbroker/internal/events"
	"github.com/codeready-toolchain/agentbroker/internal/meeting"
	"github.com/codeready-toolchain/agentbroker/internal/project"
	"github.com/codeready-toolchain/agentbroker/internal/protocol"
	"github.com/codeready-toolchain/agentbroker/pkg/version"
)

// Server is the HTTP API server: one gin.Engine plus every domain service
// the handlers dispatch to.
type Server struct {
	engine     *gin.Engine
	httpServer *http.Server

	cfg *config.Config
	db  *dbsql.Client

	projects  *project.Registry
	protocols *protocol.Registry
	sessions  *broker.SessionManager
	router    *broker.Router
	crossProj *broker.CrossProjectRouter
	authSvc   *auth.Service

	meetings  *meeting.Service
	chatlog   *chatlog.Service
	hub       *events.Hub
	listener  *events.NotifyListener
	publisher *events.Publisher

	coordinators *coordinatorRegistry
}

// NewServer wires a Server over its dependencies and registers routes,
// mirroring NewServer+setupRoutes in the teacher's pkg/api/server.go.
func NewServer(
	cfg *config.Config,
	db *dbsql.Client,
	projects *project.Registry,
	protocols *protocol.Registry,
	sessions *broker.SessionManager,
	router *broker.Router,
	crossProj *broker.CrossProjectRouter,
	authSvc *auth.Service,
	meetings *meeting.Service,
	chatSvc *chatlog.Service,
	hub *events.Hub,
	listener *events.NotifyListener,
	publisher *events.Publisher,
) *Server {
	gin.SetMode(gin.ReleaseMode)
	e := gin.New()
	e.Use(gin.Recovery(), requestLogger())

	s := &Server{
		engine:       e,
		cfg:          cfg,
		db:           db,
		projects:     projects,
		protocols:    protocols,
		sessions:     sessions,
		router:       router,
		crossProj:    crossProj,
		authSvc:      authSvc,
		meetings:     meetings,
		chatlog:      chatSvc,
		hub:          hub,
		listener:     listener,
		publisher:    publisher,
		coordinators: newCoordinatorRegistry(meetings, hub, cfg.Defaults),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.handleHealth)

	v1 := s.engine.Group("/api/v1")

	v1.POST("/auth/register", s.handleRegister)
	v1.POST("/auth/login", s.handleLogin)
	v1.POST("/auth/refresh", s.handleRefreshToken)

	authed := v1.Group("")
	authed.Use(s.requireUserAuth())
	{
		authed.POST("/projects", s.handleCreateProject)
		authed.GET("/projects", s.handleListProjects)
		authed.GET("/projects/:projectID", s.handleGetProject)
		authed.PATCH("/projects/:projectID", s.handleUpdateProject)
		authed.DELETE("/projects/:projectID", s.handleDeleteProject)
		authed.POST("/projects/:projectID/api-keys/rotate", s.handleRotateAPIKeys)
		authed.PUT("/projects/:projectID/permissions", s.handleSetPermissions)
		authed.POST("/projects/:projectID/agents", s.handleIssueAgentToken)
	}

	agentAuthed := v1.Group("/projects/:projectID")
	agentAuthed.Use(s.requireProjectAPIKey())
	{
		agentAuthed.POST("/sessions", s.handleCreateSession)
		agentAuthed.POST("/sessions/:sessionID/heartbeat", s.handleHeartbeat)
		agentAuthed.DELETE("/sessions/:sessionID", s.handleDisconnectSession)

		agentAuthed.POST("/protocols", s.handleRegisterProtocol)
		agentAuthed.GET("/protocols", s.handleDiscoverProtocols)
		agentAuthed.POST("/protocols/share", s.handleShareProtocol)

		agentAuthed.POST("/messages", s.handleSendMessage)
		agentAuthed.POST("/messages/broadcast", s.handleBroadcastMessage)
		agentAuthed.POST("/messages/cross-project", s.handleSendCrossProjectMessage)
		agentAuthed.GET("/stats", s.handleRouterStats)

		agentAuthed.POST("/chat/rooms/:roomID", s.handleEnsureChatRoom)
		agentAuthed.POST("/chat/rooms/:roomID/messages", s.handleLogCommunication)
		agentAuthed.GET("/chat/rooms/:roomID/messages", s.handleQueryCommunications)
		agentAuthed.GET("/chat/rooms/:roomID/topics", s.handleSuggestTopics)

		agentAuthed.POST("/meetings", s.handleCreateMeeting)
		agentAuthed.GET("/meetings/:meetingID", s.handleGetMeeting)
		agentAuthed.POST("/meetings/:meetingID/start", s.handleStartMeeting)
		agentAuthed.GET("/meetings/:meetingID/decision", s.handleGetDecision)
	}

	// WebSocket upgrade is unauthenticated at the HTTP layer (parity with the
	// teacher's handler_ws.go); inbound reply-feed messages are accepted only
	// when they carry a non-empty agent_id, which is not checked against the
	// meeting's participants.
	v1.GET("/meetings/:meetingID/ws", s.handleMeetingWebSocket)
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	if err := s.db.Health(ctx); err != nil {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status":  status,
		"version": version.Full(),
		"stats":   s.cfg.Stats(),
	})
}

// Start serves the API on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.engine}
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on a pre-created listener, for tests that need a
// random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.engine}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
