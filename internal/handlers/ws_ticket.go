package handlers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/models"
)

type TicketIssuer interface {
	IssueTicket(userID uuid.UUID) (string, time.Time, error)
}

type TicketHandler struct {
	issuer TicketIssuer
	log    *logger.Logger
}

func NewTicketHandler(issuer TicketIssuer, log *logger.Logger) *TicketHandler {
	return &TicketHandler{issuer: issuer, log: log}
}

// Issue returns a short-lived ticket the client presents when it (re)opens
// the live session connection.
func (h *TicketHandler) Issue(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	ticket, expiresAt, err := h.issuer.IssueTicket(userID)
	if err != nil {
		h.log.Error("issue ws ticket", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to issue ticket", r))
		return
	}

	writeJSON(w, http.StatusOK, models.WSTicket{Ticket: ticket, ExpiresAt: expiresAt})
}
