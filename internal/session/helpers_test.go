package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/models"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.StudySession
	failWrite error
	writes    int
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[uuid.UUID]*models.StudySession)}
}

func (m *memStore) CreateSession(ctx context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	m.writes++
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStore) UpdateSession(ctx context.Context, s *models.StudySession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWrite != nil {
		return m.failWrite
	}
	if _, ok := m.sessions[s.ID]; !ok {
		return models.ErrNotFound
	}
	m.writes++
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *memStore) GetSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.Clone(), nil
}

func (m *memStore) get(id uuid.UUID) *models.StudySession {
	s, _ := m.GetSession(context.Background(), id)
	return s
}

func (m *memStore) setFail(err error) {
	m.mu.Lock()
	m.failWrite = err
	m.mu.Unlock()
}

type recordingListener struct {
	mu        sync.Mutex
	completed []*models.StudySession
}

func (l *recordingListener) SessionCompleted(ctx context.Context, s *models.StudySession) {
	l.mu.Lock()
	l.completed = append(l.completed, s)
	l.mu.Unlock()
}

func (l *recordingListener) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.completed)
}

var errStoreDown = errors.New("store unavailable")

func openBreaks(s *models.StudySession) int {
	n := 0
	for _, b := range s.Breaks {
		if b.IsOpen() {
			n++
		}
	}
	return n
}

// live returns a snapshot of a live session owned by owner.
func (r *Registry) live(owner string, id uuid.UUID) (*models.StudySession, bool) {
	e, ok := r.lookup(owner, id)
	if !ok {
		return nil, false
	}
	return e.session.Clone(), true
}
