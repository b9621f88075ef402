package handlers

import (
	"context"
	"net/http"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/middleware"
	"studyhub-backend/internal/models"
	"studyhub-backend/internal/worker"
)

type QuizResultRecorder interface {
	RecordResult(ctx context.Context, q *models.QuizResult) error
}

type QuizResultHandler struct {
	repo     QuizResultRecorder
	enqueuer Enqueuer
	log      *logger.Logger
}

func NewQuizResultHandler(repo QuizResultRecorder, enqueuer Enqueuer, log *logger.Logger) *QuizResultHandler {
	return &QuizResultHandler{repo: repo, enqueuer: enqueuer, log: log}
}

func (h *QuizResultHandler) Record(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())

	var req models.RecordQuizResultRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResp("VALIDATION_ERROR", "Invalid request body", r))
		return
	}

	fields := map[string]string{}
	if req.ScorePercent < 0 || req.ScorePercent > 100 {
		fields["score_percent"] = "must be between 0 and 100"
	}
	if req.CorrectCount < 0 {
		fields["correct_count"] = "must not be negative"
	}
	if len(fields) > 0 {
		writeJSON(w, http.StatusBadRequest, errorRespWithFields("VALIDATION_ERROR", "Validation failed", fields, r))
		return
	}

	result := &models.QuizResult{
		UserID:       userID,
		QuizID:       req.QuizID,
		ScorePercent: req.ScorePercent,
		CorrectCount: req.CorrectCount,
	}
	if err := h.repo.RecordResult(r.Context(), result); err != nil {
		h.log.Error("record quiz result", "user_id", userID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResp("INTERNAL_ERROR", "Failed to record quiz result", r))
		return
	}

	// The result is stored; a later evaluation will still count it.
	if err := h.enqueuer.Enqueue(r.Context(), userID, worker.ReasonQuizCompleted); err != nil {
		h.log.Warn("enqueue evaluation after quiz", "user_id", userID, "error", err)
	}

	writeJSON(w, http.StatusCreated, result)
}
