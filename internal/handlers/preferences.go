package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/models"
	"studyhub-backend/internal/worker"
)

var (
	learningStyles = map[string]bool{"visual": true, "auditory": true, "reading": true, "kinesthetic": true}
	paces          = map[string]bool{"relaxed": true, "moderate": true, "intensive": true}
	detailLevels   = map[string]bool{"concise": true, "balanced": true, "comprehensive": true}
)

type PreferencesStore interface {
	GetPreferences(ctx context.Context, userID uuid.UUID) (*models.Preferences, error)
	UpsertPreferences(ctx context.Context, p *models.Preferences) error
}

type PreferencesHandler struct {
	repo     PreferencesStore
	enqueuer Enqueuer
	log      *logger.Logger
}

func NewPreferencesHandler(repo PreferencesStore, enqueuer Enqueuer, log *logger.Logger) *PreferencesHandler {
	return &PreferencesHandler{repo: repo, enqueuer: enqueuer, log: log}
}

func (h *PreferencesHandler) load(ctx context.Context, userID uuid.UUID) (*models.Preferences, error) {
	prefs, err := h.repo.GetPreferences(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return &models.Preferences{UserID: userID}, nil
	}
	return prefs, err
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	prefs, err := h.load(r.Context(), userID)
	if err != nil {
		h.log.Error("get preferences", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load preferences", r))
		return
	}
	writeJSON(w, http.StatusOK, prefs)
}

func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.UpdatePreferencesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fields := map[string]string{}
	checkChoice(fields, "learning_style", req.LearningStyle, learningStyles)
	checkChoice(fields, "pace", req.Pace, paces)
	checkChoice(fields, "detail_level", req.DetailLevel, detailLevels)
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	prefs, err := h.load(r.Context(), userID)
	if err != nil {
		h.log.Error("get preferences", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load preferences", r))
		return
	}

	if req.LearningStyle != nil {
		prefs.LearningStyle = *req.LearningStyle
	}
	if req.Pace != nil {
		prefs.Pace = *req.Pace
	}
	if req.DetailLevel != nil {
		prefs.DetailLevel = *req.DetailLevel
	}

	if err := h.repo.UpsertPreferences(r.Context(), prefs); err != nil {
		h.log.Error("update preferences", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to update preferences", r))
		return
	}

	if err := h.enqueuer.Enqueue(r.Context(), userID, worker.ReasonPreferences); err != nil {
		h.log.Warn("enqueue evaluation after preferences", "user_id", userID, "error", err)
	}

	writeJSON(w, http.StatusOK, prefs)
}

func checkChoice(fields map[string]string, name string, v *string, allowed map[string]bool) {
	if v != nil && !allowed[*v] {
		fields[name] = "unsupported value"
	}
}
