package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
)

type createMeetingRequest struct {
	Title              string   `json:"title" binding:"required"`
	Description        string   `json:"description"`
	Agenda             string   `json:"agenda"`
	ParticipantIDs     []string `json:"participant_ids" binding:"required"`
	MaxRounds          int      `json:"max_rounds"`
	MaxDurationSeconds int      `json:"max_duration_seconds"`
}

func (s *Server) handleCreateMeeting(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	m, participants, err := s.meetings.CreateMeeting(c.Request.Context(), c.Param("projectID"), req.Title, req.Description,
		req.Agenda, req.ParticipantIDs, req.MaxRounds, req.MaxDurationSeconds)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"meeting": m, "participants": participants})
}

func (s *Server) handleGetMeeting(c *gin.Context) {
	m, err := s.meetings.GetMeeting(c.Request.Context(), c.Param("meetingID"))
	if err != nil {
		writeError(c, err)
		return
	}
	participants, err := s.meetings.ListParticipants(c.Request.Context(), c.Param("meetingID"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"meeting": m, "participants": participants})
}

type startMeetingRequest struct {
	Question string   `json:"question" binding:"required"`
	Options  []string `json:"options" binding:"required"`
}

// handleStartMeeting activates the meeting and launches the discussion
// coordinator in the background; progress streams over the meeting's
// WebSocket channel rather than this request's response.
func (s *Server) handleStartMeeting(c *gin.Context) {
	meetingID := c.Param("meetingID")
	var req startMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if _, err := s.meetings.Activate(c.Request.Context(), meetingID); err != nil {
		writeError(c, err)
		return
	}

	coord := s.coordinators.get(meetingID).coordinator
	go func() {
		if err := coord.Run(context.Background(), meetingID, req.Question, req.Options); err != nil {
			slog.Error("discussion run failed", "meeting_id", meetingID, "error", err)
		}
	}()

	c.Status(http.StatusAccepted)
}

func (s *Server) handleGetDecision(c *gin.Context) {
	decision, found, err := s.meetings.GetDecision(c.Request.Context(), c.Param("meetingID"))
	if err != nil {
		writeError(c, err)
		return
	}
	if !found {
		c.Status(http.StatusNotFound)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleMeetingWebSocket(c *gin.Context) {
	meetingID := c.Param("meetingID")
	s.hub.HandleWebSocket(c.Writer, c.Request, meetingID, s.coordinators.feeder(meetingID))
}
