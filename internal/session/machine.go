package session

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/models"
)

// Store is the persistence the state machine writes through.
type Store interface {
	CreateSession(ctx context.Context, s *models.StudySession) error
	UpdateSession(ctx context.Context, s *models.StudySession) error
	GetSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error)
}

// Machine enforces session transitions and persists each one.
// It holds no per-session state; callers own the *StudySession.
type Machine struct {
	store Store
	now   func() time.Time
}

type MachineOption func(*Machine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MachineOption {
	return func(m *Machine) { m.now = now }
}

func NewMachine(store Store, opts ...MachineOption) *Machine {
	m := &Machine{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) Start(ctx context.Context, userID uuid.UUID, subject string) (*models.StudySession, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = models.DefaultSubject
	}

	s := &models.StudySession{
		ID:        uuid.New(),
		UserID:    userID,
		Subject:   subject,
		Status:    models.SessionActive,
		StartTime: m.now(),
		Breaks:    []models.Break{},
		Metrics:   models.Metrics{},
	}

	if err := m.store.CreateSession(ctx, s); err != nil {
		return nil, &PersistError{Op: "start", Err: err}
	}
	return s, nil
}

func (m *Machine) SetStatus(ctx context.Context, s *models.StudySession, status models.SessionStatus) error {
	if s.IsCompleted() {
		return ErrSessionCompleted
	}
	if status != models.SessionActive && status != models.SessionPaused {
		return ErrInvalidStatus
	}
	if s.Status == status {
		return nil
	}

	s.Status = status
	return m.save(ctx, "set_status", s)
}

func (m *Machine) OpenBreak(ctx context.Context, s *models.StudySession) error {
	if s.IsCompleted() {
		return ErrSessionCompleted
	}
	if s.OpenBreakIndex() >= 0 {
		return ErrBreakAlreadyOpen
	}

	s.Breaks = append(s.Breaks, models.Break{StartTime: m.now()})
	return m.save(ctx, "break_start", s)
}

func (m *Machine) CloseBreak(ctx context.Context, s *models.StudySession) error {
	if s.IsCompleted() {
		return ErrSessionCompleted
	}
	idx := s.OpenBreakIndex()
	if idx < 0 {
		return ErrNoOpenBreak
	}

	closeBreak(&s.Breaks[idx], m.now())
	return m.save(ctx, "break_end", s)
}

// UpdateMetrics merges partial into the session metrics. Values are not
// interpreted.
func (m *Machine) UpdateMetrics(ctx context.Context, s *models.StudySession, partial map[string]interface{}) error {
	if s.IsCompleted() {
		return ErrSessionCompleted
	}
	if len(partial) == 0 {
		return nil
	}
	if s.Metrics == nil {
		s.Metrics = models.Metrics{}
	}
	for k, v := range partial {
		s.Metrics[k] = v
	}
	return m.save(ctx, "update_metrics", s)
}

// Complete finalizes the session. An open break is closed at the same
// instant as the session. It reports false without error when the session
// was already completed.
func (m *Machine) Complete(ctx context.Context, s *models.StudySession) (bool, error) {
	if s.IsCompleted() {
		return false, nil
	}

	end := m.now()
	if end.Before(s.StartTime) {
		end = s.StartTime
	}
	if idx := s.OpenBreakIndex(); idx >= 0 {
		closeBreak(&s.Breaks[idx], end)
	}

	s.Status = models.SessionCompleted
	s.EndTime = &end
	s.TotalDuration = TotalDuration(s.StartTime, end, s.Breaks)

	return true, m.save(ctx, "complete", s)
}

// Save re-attempts persisting s as it is in memory.
func (m *Machine) Save(ctx context.Context, s *models.StudySession) error {
	return m.save(ctx, "save", s)
}

func (m *Machine) Lookup(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	return m.store.GetSession(ctx, id)
}

func (m *Machine) save(ctx context.Context, op string, s *models.StudySession) error {
	if err := m.store.UpdateSession(ctx, s); err != nil {
		return &PersistError{Op: op, Err: err}
	}
	return nil
}

func closeBreak(b *models.Break, at time.Time) {
	if at.Before(b.StartTime) {
		at = b.StartTime
	}
	b.EndTime = &at
	b.Duration = BreakSeconds(b.StartTime, at)
}
