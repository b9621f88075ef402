package achievement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"studyhub-backend/internal/models"
)

// History reads the activity a user's progress is computed from.
type History interface {
	ListCompletedSessions(ctx context.Context, userID uuid.UUID) ([]models.StudySession, error)
	ListQuizResults(ctx context.Context, userID uuid.UUID) ([]models.QuizResult, error)
}

// UserLookup resolves a user's current learning preferences. It returns
// models.ErrNotFound when the user has none.
type UserLookup interface {
	GetPreferences(ctx context.Context, userID uuid.UUID) (*models.Preferences, error)
}

type AchievementStore interface {
	ListUserAchievements(ctx context.Context, userID uuid.UUID) ([]models.UserAchievement, error)
	CreateUserAchievement(ctx context.Context, a *models.UserAchievement) error
	UpdateUserAchievementProgress(ctx context.Context, a *models.UserAchievement) error
}

// Change describes one progress record written by an evaluation.
type Change struct {
	Badge       models.Badge
	Achievement models.UserAchievement
	Created     bool
	NewlyEarned bool
}

type Engine struct {
	catalog *Catalog
	history History
	users   UserLookup
	store   AchievementStore
	now     func() time.Time
	loc     *time.Location
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the time zone calendar days are counted in for streaks.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

func NewEngine(catalog *Catalog, history History, users UserLookup, store AchievementStore, opts ...Option) *Engine {
	e := &Engine{
		catalog: catalog,
		history: history,
		users:   users,
		store:   store,
		now:     func() time.Time { return time.Now().UTC() },
		loc:     time.UTC,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// facts is the user activity snapshot one evaluation runs against.
type facts struct {
	sessions []models.StudySession
	quizzes  []models.QuizResult
	prefs    *models.Preferences
}

// Evaluate recomputes the user's progress toward every catalog badge and
// writes the records whose progress increased. Progress never decreases.
func (e *Engine) Evaluate(ctx context.Context, userID uuid.UUID) ([]Change, error) {
	f, err := e.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	existing, err := e.store.ListUserAchievements(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list achievements: %w", err)
	}
	byBadge := make(map[string]models.UserAchievement, len(existing))
	for _, a := range existing {
		byBadge[a.BadgeID] = a
	}

	now := e.now()
	var changes []Change
	for _, badge := range e.catalog.Badges() {
		current := e.progress(badge.Criteria, f)
		target := badge.Criteria.Target()

		prev, found := byBadge[badge.ID]
		if !found {
			if current <= 0 {
				continue
			}
			a := models.UserAchievement{
				UserID:   userID,
				BadgeID:  badge.ID,
				Progress: models.Progress{Current: current, Target: target, LastUpdated: now},
			}
			earned := current >= target
			if earned {
				a.EarnedAt = &now
			}
			err := e.store.CreateUserAchievement(ctx, &a)
			if errors.Is(err, models.ErrConflict) {
				continue
			}
			if err != nil {
				return changes, fmt.Errorf("create achievement %s: %w", badge.ID, err)
			}
			changes = append(changes, Change{Badge: badge, Achievement: a, Created: true, NewlyEarned: earned})
			continue
		}

		if current <= prev.Progress.Current {
			continue
		}
		a := prev
		a.Progress = models.Progress{Current: current, Target: target, LastUpdated: now}
		newlyEarned := a.EarnedAt == nil && current >= target
		if newlyEarned {
			a.EarnedAt = &now
		}
		err := e.store.UpdateUserAchievementProgress(ctx, &a)
		if errors.Is(err, models.ErrConflict) {
			continue
		}
		if err != nil {
			return changes, fmt.Errorf("update achievement %s: %w", badge.ID, err)
		}
		changes = append(changes, Change{Badge: badge, Achievement: a, NewlyEarned: newlyEarned})
	}
	return changes, nil
}

func (e *Engine) load(ctx context.Context, userID uuid.UUID) (*facts, error) {
	sessions, err := e.history.ListCompletedSessions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	quizzes, err := e.history.ListQuizResults(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list quiz results: %w", err)
	}
	prefs, err := e.users.GetPreferences(ctx, userID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	completed := sessions[:0:0]
	for _, s := range sessions {
		if s.IsCompleted() {
			completed = append(completed, s)
		}
	}
	return &facts{sessions: completed, quizzes: quizzes, prefs: prefs}, nil
}

func (e *Engine) progress(c models.Criteria, f *facts) int {
	switch v := c.(type) {
	case models.CountCriteria:
		if v.Source == models.CountQuizzes {
			return len(f.quizzes)
		}
		return len(f.sessions)

	case models.FilteredCountCriteria:
		n := 0
		switch v.Filter {
		case models.FilterPerfectQuiz:
			for i := range f.quizzes {
				if f.quizzes[i].IsPerfect() {
					n++
				}
			}
		case models.FilterLongSession:
			for _, s := range f.sessions {
				if s.TotalDuration >= v.MinDurationSeconds {
					n++
				}
			}
		}
		return n

	case models.UniqueCountCriteria:
		subjects := make(map[string]struct{}, len(f.sessions))
		for _, s := range f.sessions {
			subjects[strings.ToLower(strings.TrimSpace(s.Subject))] = struct{}{}
		}
		return len(subjects)

	case models.StreakCriteria:
		days := make([]time.Time, 0, len(f.sessions))
		for _, s := range f.sessions {
			days = append(days, s.StartTime)
		}
		return MaxStreak(days, e.loc)

	case models.PreferenceCountCriteria:
		if !strings.EqualFold(f.prefs.Value(v.Preference), v.Value) {
			return 0
		}
		return len(f.sessions)
	}
	return 0
}

// NewlyEarned filters changes down to badges earned by this evaluation.
func NewlyEarned(changes []Change) []models.Badge {
	var out []models.Badge
	for _, c := range changes {
		if c.NewlyEarned {
			out = append(out, c.Badge)
		}
	}
	return out
}
