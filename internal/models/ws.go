package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Client -> server message types
const (
	MsgStart         = "start"
	MsgPause         = "pause"
	MsgResume        = "resume"
	MsgBreakStart    = "break_start"
	MsgBreakEnd      = "break_end"
	MsgEnd           = "end"
	MsgUpdateMetrics = "update_metrics"
)

// Server -> client message types
const (
	MsgSessionStarted   = "session_started"
	MsgSessionUpdated   = "session_updated"
	MsgSessionCompleted = "session_completed"
	MsgBadgeEarned      = "badge_earned"
	MsgError            = "error"
)

// ClientMessage is an inbound frame on the live session connection.
// Timestamp is accepted but the server clock is authoritative.
type ClientMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId,omitempty"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

type StartData struct {
	Subject string `json:"subject"`
}

type MetricsData struct {
	Metrics map[string]interface{} `json:"metrics"`
}

// ServerMessage is an outbound frame on the live session connection.
type ServerMessage struct {
	Type          string        `json:"type"`
	SessionID     string        `json:"sessionId,omitempty"`
	Status        SessionStatus `json:"status,omitempty"`
	TotalDuration *int64        `json:"totalDuration,omitempty"`
	Badge         *BadgeEarned  `json:"badge,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// UserUpdatesChannel is the Redis pub/sub channel carrying server frames
// for one user's live connections.
func UserUpdatesChannel(userID uuid.UUID) string {
	return "user_updates:" + userID.String()
}

// WSTicket is a short-lived token for (re)opening the live session connection.
type WSTicket struct {
	Ticket    string    `json:"ticket"`
	ExpiresAt time.Time `json:"expires_at"`
}
