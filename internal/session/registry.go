package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/models"
)

// CompletionListener is notified after a session is durably completed.
type CompletionListener interface {
	SessionCompleted(ctx context.Context, s *models.StudySession)
}

// forceCompleteTimeout bounds store writes made after a connection is gone.
const forceCompleteTimeout = 10 * time.Second

type entry struct {
	owner   string
	userID  uuid.UUID
	session *models.StudySession
	// unsaved marks a completed session whose final write failed.
	unsaved bool
}

// Registry tracks live sessions by id and the connection that owns them.
// Each session is mutated only by its owning connection, so the lock guards
// the map and not the sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*entry
	machine  *Machine
	listener CompletionListener
	log      *logger.Logger
}

func NewRegistry(machine *Machine, listener CompletionListener, log *logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*entry),
		machine:  machine,
		listener: listener,
		log:      log,
	}
}

func (r *Registry) Start(ctx context.Context, owner string, userID uuid.UUID, subject string) (*models.StudySession, error) {
	s, err := r.machine.Start(ctx, userID, subject)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[s.ID] = &entry{owner: owner, userID: userID, session: s}
	r.mu.Unlock()

	r.log.Info("study session started", "session_id", s.ID, "user_id", userID, "subject", s.Subject)
	return s.Clone(), nil
}

func (r *Registry) Pause(ctx context.Context, owner string, id uuid.UUID) (*models.StudySession, error) {
	return r.mutate(ctx, owner, id, func(s *models.StudySession) error {
		return r.machine.SetStatus(ctx, s, models.SessionPaused)
	})
}

func (r *Registry) Resume(ctx context.Context, owner string, id uuid.UUID) (*models.StudySession, error) {
	return r.mutate(ctx, owner, id, func(s *models.StudySession) error {
		return r.machine.SetStatus(ctx, s, models.SessionActive)
	})
}

func (r *Registry) BreakStart(ctx context.Context, owner string, id uuid.UUID) (*models.StudySession, error) {
	return r.mutate(ctx, owner, id, func(s *models.StudySession) error {
		return r.machine.OpenBreak(ctx, s)
	})
}

func (r *Registry) BreakEnd(ctx context.Context, owner string, id uuid.UUID) (*models.StudySession, error) {
	return r.mutate(ctx, owner, id, func(s *models.StudySession) error {
		return r.machine.CloseBreak(ctx, s)
	})
}

func (r *Registry) UpdateMetrics(ctx context.Context, owner string, id uuid.UUID, metrics map[string]interface{}) (*models.StudySession, error) {
	return r.mutate(ctx, owner, id, func(s *models.StudySession) error {
		return r.machine.UpdateMetrics(ctx, s, metrics)
	})
}

// End completes a live session. Ending a session that is already completed
// and owned by userID is a no-op that returns the stored record.
func (r *Registry) End(ctx context.Context, owner string, userID uuid.UUID, id uuid.UUID) (*models.StudySession, error) {
	e, ok := r.lookup(owner, id)
	if !ok {
		stored, err := r.machine.Lookup(ctx, id)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				return nil, ErrSessionNotFound
			}
			return nil, err
		}
		if stored.UserID != userID || !stored.IsCompleted() {
			return nil, ErrSessionNotFound
		}
		return stored, nil
	}

	if err := r.finish(ctx, e); err != nil {
		return nil, err
	}
	return e.session.Clone(), nil
}

// CloseOwner force-completes every session owned by the connection. It is
// called once the connection is gone, so writes use their own context.
func (r *Registry) CloseOwner(owner string) int {
	r.mu.Lock()
	var owned []*entry
	for _, e := range r.sessions {
		if e.owner == owner {
			owned = append(owned, e)
		}
	}
	r.mu.Unlock()

	for _, e := range owned {
		ctx, cancel := context.WithTimeout(context.Background(), forceCompleteTimeout)
		if err := r.finish(ctx, e); err != nil {
			r.log.Error("force-complete failed", "session_id", e.session.ID, "user_id", e.userID, "error", err)
			r.remove(e.session.ID)
		} else {
			r.log.Info("study session force-completed on disconnect",
				"session_id", e.session.ID, "user_id", e.userID, "total_duration", e.session.TotalDuration)
		}
		cancel()
	}
	return len(owned)
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) mutate(ctx context.Context, owner string, id uuid.UUID, fn func(*models.StudySession) error) (*models.StudySession, error) {
	e, ok := r.lookup(owner, id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	if err := fn(e.session); err != nil {
		return nil, err
	}
	return e.session.Clone(), nil
}

// finish completes e and drops it from the registry once the final write
// has succeeded. A failed final write leaves it registered so a repeated
// end can retry the write.
func (r *Registry) finish(ctx context.Context, e *entry) error {
	var err error
	if e.unsaved {
		err = r.machine.Save(ctx, e.session)
	} else {
		_, err = r.machine.Complete(ctx, e.session)
	}
	if err != nil {
		e.unsaved = true
		return err
	}

	e.unsaved = false
	r.remove(e.session.ID)

	if r.listener != nil {
		r.listener.SessionCompleted(ctx, e.session.Clone())
	}
	return nil
}

func (r *Registry) lookup(owner string, id uuid.UUID) (*entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[id]
	if !ok || e.owner != owner {
		return nil, false
	}
	return e, true
}

func (r *Registry) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}
