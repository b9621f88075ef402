package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/achievement"
	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/models"
	"studyhub-backend/internal/worker"
)

type AchievementLister interface {
	ListUserAchievements(ctx context.Context, userID uuid.UUID) ([]models.UserAchievement, error)
}

// Enqueuer schedules an achievement evaluation for a user.
type Enqueuer interface {
	Enqueue(ctx context.Context, userID uuid.UUID, reason string) error
}

type AchievementHandler struct {
	store    AchievementLister
	catalog  *achievement.Catalog
	enqueuer Enqueuer
	log      *logger.Logger
}

func NewAchievementHandler(store AchievementLister, catalog *achievement.Catalog, enqueuer Enqueuer, log *logger.Logger) *AchievementHandler {
	return &AchievementHandler{store: store, catalog: catalog, enqueuer: enqueuer, log: log}
}

type achievementView struct {
	Badge    models.Badge    `json:"badge"`
	Progress models.Progress `json:"progress"`
	EarnedAt *time.Time      `json:"earnedAt"`
	Earned   bool            `json:"earned"`
}

func (h *AchievementHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	records, err := h.store.ListUserAchievements(r.Context(), userID)
	if err != nil {
		h.log.Error("list achievements", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to load achievements", r))
		return
	}

	views := make([]achievementView, 0, len(records))
	earned := 0
	for i := range records {
		a := &records[i]
		badge, ok := h.catalog.Get(a.BadgeID)
		if !ok {
			continue // retired badge
		}
		v := achievementView{Badge: badge, Progress: a.Progress, EarnedAt: a.EarnedAt, Earned: a.Earned()}
		if v.Earned {
			earned++
		}
		views = append(views, v)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"achievements": views,
		"earned":       earned,
		"total":        h.catalog.Len(),
	})
}

func (h *AchievementHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	if err := h.enqueuer.Enqueue(r.Context(), userID, worker.ReasonManual); err != nil {
		h.log.Error("enqueue recompute", "user_id", userID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResp("QUEUE_UNAVAILABLE", "Could not schedule evaluation, please retry", r))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}
