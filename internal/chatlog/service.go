package chatlog

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/agentbroker/internal/apperr"
	"github.com/codeready-toolchain/agentbroker/internal/clock"
)

// Service is the validation-then-persist layer in front of Repo, grounded
// on pkg/services/chat_service.go's ChatService (validate request fields,
// bound the call with a bucket of wall-clock time, then delegate).
type Service struct {
	repo  Repo
	clock clock.Clock
	log   *slog.Logger
}

func NewService(repo Repo, c clock.Clock) *Service {
	return &Service{repo: repo, clock: c, log: slog.With("component", "chatlog.Service")}
}

// EnsureRoom creates roomID if it doesn't already exist.
func (s *Service) EnsureRoom(ctx context.Context, roomID, projectID, name string) error {
	if roomID == "" {
		return apperr.FieldError("room_id", "required")
	}
	if projectID == "" {
		return apperr.FieldError("project_id", "required")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.repo.EnsureRoom(ctx, roomID, projectID, name)
}

// LogCommunication durably records one agent-to-agent message, grounded on
// AgentCommunicationService.log_communication's size-limited write path.
func (s *Service) LogCommunication(ctx context.Context, roomID, senderID, recipientID, protocolName, protocolVersion, topic, content string) (Message, error) {
	if roomID == "" {
		return Message{}, apperr.FieldError("room_id", "required")
	}
	if senderID == "" {
		return Message{}, apperr.FieldError("sender_id", "required")
	}
	if content == "" {
		return Message{}, apperr.FieldError("content", "required")
	}
	if len(content) > maxContentBytes {
		return Message{}, apperr.Newf(apperr.Validation, "message content exceeds %d bytes", maxContentBytes)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	msg := Message{
		MessageID:       uuid.New().String(),
		RoomID:          roomID,
		SenderID:        senderID,
		RecipientID:     recipientID,
		ProtocolName:    protocolName,
		ProtocolVersion: protocolVersion,
		Topic:           topic,
		Content:         content,
		Timestamp:       s.clock.Now().UTC(),
	}
	if err := s.repo.Append(ctx, msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// QueryCommunications returns a filtered, paginated page of roomID's
// history, grounded on AgentCommunicationService.query_communications.
func (s *Service) QueryCommunications(ctx context.Context, roomID string, f Filter) (Page, error) {
	if roomID == "" {
		return Page{}, apperr.FieldError("room_id", "required")
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.repo.Query(ctx, roomID, f)
}
