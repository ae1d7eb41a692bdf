package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/agentbroker/internal/auth"
	"github.com/codeready-toolchain/agentbroker/internal/broker"
	"github.com/codeready-toolchain/agentbroker/internal/chatlog"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
	"github.com/codeready-toolchain/agentbroker/internal/config"
	"github.com/codeready-toolchain/agentbroker/internal/events"
	"github.com/codeready-toolchain/agentbroker/internal/meeting"
	"github.com/codeready-toolchain/agentbroker/internal/project"
	"github.com/codeready-toolchain/agentbroker/internal/protocol"
	"github.com/codeready-toolchain/agentbroker/internal/store"
)

// newTestServer wires a Server over in-memory implementations only, the way
// the teacher's pkg/api tests stand up a server without a live Postgres.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	fake := clock.NewFake(time.Now())

	s := store.NewMemory()
	projects := project.NewRegistry(project.NewMemoryRepo(), fake)
	policy := project.NewAdminPolicy(projects, fake, time.Minute)
	protocols := protocol.NewRegistry(s)
	sessions := broker.NewSessionManager(s, broker.DefaultThresholds(), fake)
	router := broker.NewRouter(sessions, broker.NewNegotiator(), fake)
	crossProj := broker.NewCrossProjectRouter(router, policy, fake)

	tokens := auth.NewTokenIssuer([]byte("test-signing-secret"), time.Hour, 24*time.Hour, fake)
	authSvc := auth.NewService(auth.NewMemoryUserRepo(), auth.NewMemoryAgentRepo(), tokens, auth.DefaultArgon2Params(), fake)

	meetings := meeting.NewService(meeting.NewMemoryRepo(), fake)
	chatSvc := chatlog.NewService(chatlog.NewMemoryRepo(), fake)
	hub := events.NewHub()

	cfg := &config.Config{Defaults: config.DefaultDefaults()}

	return NewServer(cfg, nil, projects, protocols, sessions, router, crossProj, authSvc, meetings, chatSvc, hub, nil, nil)
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

func registerAndLogin(t *testing.T, s *Server) string {
	t.Helper()
	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", registerRequest{
		Username: "alice", Password: "super-secret-pw",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/login", loginRequest{
		Username: "alice", Password: "super-secret-pw",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

func TestServer_RegisterLoginCreateProject(t *testing.T) {
	s := newTestServer(t)
	token := registerAndLogin(t, s)

	w := doJSON(t, s, http.MethodPost, "/api/v1/projects", createProjectRequest{
		ProjectID: "project_a", Name: "Project A", Owner: "alice",
	}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert := require.New(t)
	assert.Equal("project_a", resp["project_id"])
}

func TestServer_CreateProject_RequiresAuth(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/projects", createProjectRequest{
		ProjectID: "project_a", Name: "Project A",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

// createProjectAndKey registers/logs in a user, creates a project, and
// returns the project's initial plaintext API key.
func createProjectAndKey(t *testing.T, s *Server, projectID string) string {
	t.Helper()
	token := registerAndLogin(t, s)
	w := doJSON(t, s, http.MethodPost, "/api/v1/projects", createProjectRequest{
		ProjectID: projectID, Name: projectID, Owner: "alice",
	}, map[string]string{"Authorization": "Bearer " + token})
	require.Equal(t, http.StatusCreated, w.Code)

	p, err := s.projects.GetProject(context.Background(), projectID)
	require.NoError(t, err)
	require.NotEmpty(t, p.APIKeys)
	return p.APIKeys[0].PlaintextOnce
}

func TestServer_CreateSession_RequiresMatchingProjectAPIKey(t *testing.T) {
	s := newTestServer(t)
	key := createProjectAndKey(t, s, "project_a")

	w := doJSON(t, s, http.MethodPost, "/api/v1/projects/project_a/sessions", createSessionRequest{
		SessionID: "agent-a",
	}, map[string]string{"X-API-Key": key})
	require.Equal(t, http.StatusCreated, w.Code)

	// A key minted for project_a must not authorize calls scoped to project_b.
	w = doJSON(t, s, http.MethodPost, "/api/v1/projects/project_b/sessions", createSessionRequest{
		SessionID: "agent-a",
	}, map[string]string{"X-API-Key": key})
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_SendMessage_DeliversBetweenSessions(t *testing.T) {
	s := newTestServer(t)
	key := createProjectAndKey(t, s, "project_a")
	headers := map[string]string{"X-API-Key": key}

	caps := store.Capabilities{SupportedProtocols: map[string][]string{"chat": {"1.0.0"}}}
	w := doJSON(t, s, http.MethodPost, "/api/v1/projects/project_a/sessions", createSessionRequest{SessionID: "agent-a", Capabilities: caps}, headers)
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, s, http.MethodPost, "/api/v1/projects/project_a/sessions", createSessionRequest{SessionID: "agent-b", Capabilities: caps}, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/projects/project_a/messages", sendMessageRequest{
		SenderID: "agent-a", RecipientID: "agent-b", ProtocolName: "chat", ProtocolVersion: "1.0.0",
	}, headers)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Queued bool `json:"Queued"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.False(t, resp.Queued)
}

func TestServer_MeetingLifecycle_CreateAndFetch(t *testing.T) {
	s := newTestServer(t)
	key := createProjectAndKey(t, s, "project_a")
	headers := map[string]string{"X-API-Key": key}

	w := doJSON(t, s, http.MethodPost, "/api/v1/projects/project_a/meetings", createMeetingRequest{
		Title:          "Sprint planning",
		ParticipantIDs: []string{"agent-a", "agent-b"},
	}, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	var created struct {
		Meeting struct {
			ID string `json:"ID"`
		} `json:"meeting"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.NotEmpty(t, created.Meeting.ID)

	w = doJSON(t, s, http.MethodGet, "/api/v1/projects/project_a/meetings/"+created.Meeting.ID, nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServer_ChatRoom_LogAndQuery(t *testing.T) {
	s := newTestServer(t)
	key := createProjectAndKey(t, s, "project_a")
	headers := map[string]string{"X-API-Key": key}

	w := doJSON(t, s, http.MethodPost, "/api/v1/projects/project_a/chat/rooms/room-1", map[string]string{"name": "Room One"}, headers)
	require.Equal(t, http.StatusNoContent, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/projects/project_a/chat/rooms/room-1/messages", logCommunicationRequest{
		SenderID: "agent-a", Content: "hello there",
	}, headers)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodGet, "/api/v1/projects/project_a/chat/rooms/room-1/messages", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Register_DuplicateUsernameIsConflict(t *testing.T) {
	s := newTestServer(t)
	w := doJSON(t, s, http.MethodPost, "/api/v1/auth/register", registerRequest{Username: "bob", Password: "a-fine-password"}, nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, s, http.MethodPost, "/api/v1/auth/register", registerRequest{Username: "bob", Password: "a-fine-password"}, nil)
	require.Equal(t, http.StatusConflict, w.Code)
}
