package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/models"
)

type SessionHistory interface {
	GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error)
	List(ctx context.Context, f models.SessionFilter) ([]*models.StudySession, error)
}

type StudySessionHandler struct {
	repo SessionHistory
	log  *logger.Logger
}

func NewStudySessionHandler(repo SessionHistory, log *logger.Logger) *StudySessionHandler {
	return &StudySessionHandler{repo: repo, log: log}
}

func (h *StudySessionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	filter, fields := parseSessionFilter(r)
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Invalid query parameters", fields, r))
		return
	}
	filter.UserID = userID

	sessions, err := h.repo.List(r.Context(), filter)
	if err != nil {
		h.log.Error("list study sessions", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to list study sessions", r))
		return
	}
	if sessions == nil {
		sessions = []*models.StudySession{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})
}

func (h *StudySessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	id, ok := uuidParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid session id", r))
		return
	}

	session, err := h.repo.GetForUser(r.Context(), id, userID)
	if errors.Is(err, models.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResp("NOT_FOUND", "Study session not found", r))
		return
	}
	if err != nil {
		h.log.Error("get study session", "session_id", id, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load study session", r))
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func parseSessionFilter(r *http.Request) (models.SessionFilter, map[string]string) {
	q := r.URL.Query()
	var f models.SessionFilter
	fields := map[string]string{}

	switch status := models.SessionStatus(q.Get("status")); status {
	case "":
	case models.SessionActive, models.SessionPaused, models.SessionCompleted:
		f.Status = status
	default:
		fields["status"] = "must be active, paused, or completed"
	}

	f.Subject = strings.TrimSpace(q.Get("subject"))

	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			fields[p.name] = "must be an RFC 3339 timestamp"
			continue
		}
		*p.dst = &t
	}
	if f.From != nil && f.To != nil && !f.To.After(*f.From) {
		fields["to"] = "must be after from"
	}

	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &f.Limit}, {"offset", &f.Offset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fields[p.name] = "must be a non-negative integer"
			continue
		}
		*p.dst = n
	}

	return f, fields
}
