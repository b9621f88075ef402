package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/models"
)

// Evaluation reasons recorded on queued jobs.
const (
	ReasonSessionCompleted = "session_completed"
	ReasonQuizCompleted    = "quiz_completed"
	ReasonPreferences      = "preferences_updated"
	ReasonManual           = "manual"
)

const enqueueTimeout = 5 * time.Second

// Enqueuer schedules achievement evaluations. It is the session registry's
// completion listener.
type Enqueuer struct {
	queue Queue
	log   *logger.Logger
	now   func() time.Time
}

func NewEnqueuer(queue Queue, log *logger.Logger) *Enqueuer {
	return &Enqueuer{queue: queue, log: log, now: time.Now}
}

func (e *Enqueuer) Enqueue(ctx context.Context, userID uuid.UUID, reason string) error {
	return e.queue.Push(ctx, &Job{
		ID:         uuid.New(),
		UserID:     userID,
		Reason:     reason,
		EnqueuedAt: e.now().UTC(),
	})
}

// SessionCompleted queues an evaluation for the session's owner. The caller's
// context may belong to a connection that is already closing.
func (e *Enqueuer) SessionCompleted(ctx context.Context, s *models.StudySession) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), enqueueTimeout)
	defer cancel()

	if err := e.Enqueue(ctx, s.UserID, ReasonSessionCompleted); err != nil {
		e.log.Error("enqueue evaluation after session", "session_id", s.ID, "user_id", s.UserID, "error", err)
	}
}
