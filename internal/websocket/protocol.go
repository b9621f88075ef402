package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/models"
	"studyhub-backend/internal/session"
)

const storeTimeout = 10 * time.Second

var (
	errMalformed        = errors.New("malformed message")
	errMissingType      = errors.New("message type is required")
	errUnknownType      = errors.New("unknown message type")
	errMissingSessionID = errors.New("sessionId is required")
	errInvalidSessionID = errors.New("sessionId is not a valid id")
	errInvalidData      = errors.New("invalid message data")
)

// dispatch applies one inbound frame and returns the reply to send.
func (h *Handler) dispatch(c *Connection, data []byte) models.ServerMessage {
	var msg models.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return errorReply("", errMalformed.Error())
	}
	if msg.Type == "" {
		return errorReply("", errMissingType.Error())
	}

	// A write already started finishes even if the connection closes.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.ctx), storeTimeout)
	defer cancel()

	if msg.Type == models.MsgStart {
		var start models.StartData
		if len(msg.Data) > 0 && string(msg.Data) != "null" {
			if err := json.Unmarshal(msg.Data, &start); err != nil {
				return errorReply("", errInvalidData.Error())
			}
		}
		s, err := h.registry.Start(ctx, c.id, c.userID, start.Subject)
		if err != nil {
			return h.failure(c, msg, err)
		}
		return models.ServerMessage{Type: models.MsgSessionStarted, SessionID: s.ID.String(), Status: s.Status}
	}

	if !isSessionOp(msg.Type) {
		return errorReply(msg.SessionID, errUnknownType.Error())
	}
	if msg.SessionID == "" {
		return errorReply("", errMissingSessionID.Error())
	}
	id, err := uuid.Parse(msg.SessionID)
	if err != nil {
		return errorReply(msg.SessionID, errInvalidSessionID.Error())
	}

	var s *models.StudySession
	switch msg.Type {
	case models.MsgPause:
		s, err = h.registry.Pause(ctx, c.id, id)
	case models.MsgResume:
		s, err = h.registry.Resume(ctx, c.id, id)
	case models.MsgBreakStart:
		s, err = h.registry.BreakStart(ctx, c.id, id)
	case models.MsgBreakEnd:
		s, err = h.registry.BreakEnd(ctx, c.id, id)
	case models.MsgUpdateMetrics:
		var md models.MetricsData
		if len(msg.Data) == 0 || json.Unmarshal(msg.Data, &md) != nil {
			return errorReply(msg.SessionID, errInvalidData.Error())
		}
		s, err = h.registry.UpdateMetrics(ctx, c.id, id, md.Metrics)
	case models.MsgEnd:
		s, err = h.registry.End(ctx, c.id, c.userID, id)
		if err == nil {
			total := s.TotalDuration
			return models.ServerMessage{
				Type:          models.MsgSessionCompleted,
				SessionID:     s.ID.String(),
				Status:        s.Status,
				TotalDuration: &total,
			}
		}
	}
	if err != nil {
		return h.failure(c, msg, err)
	}
	return models.ServerMessage{Type: models.MsgSessionUpdated, SessionID: s.ID.String(), Status: s.Status}
}

func isSessionOp(t string) bool {
	switch t {
	case models.MsgPause, models.MsgResume, models.MsgBreakStart, models.MsgBreakEnd, models.MsgEnd, models.MsgUpdateMetrics:
		return true
	}
	return false
}

// failure turns an operation error into an error frame. Rejected
// transitions are reported as is; store failures are logged.
func (h *Handler) failure(c *Connection, msg models.ClientMessage, err error) models.ServerMessage {
	if session.IsStateError(err) {
		return errorReply(msg.SessionID, err.Error())
	}
	h.log.Error("session operation failed",
		"connection_id", c.id, "user_id", c.userID, "type", msg.Type, "session_id", msg.SessionID, "error", err)

	var perr *session.PersistError
	if errors.As(err, &perr) {
		return errorReply(msg.SessionID, "failed to save session, please retry")
	}
	return errorReply(msg.SessionID, "internal error")
}

func errorReply(sessionID, message string) models.ServerMessage {
	return models.ServerMessage{Type: models.MsgError, SessionID: sessionID, Message: message}
}
