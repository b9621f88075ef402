package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
)

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary:
		return true
	}
	return false
}

type CriteriaKind string

const (
	CriteriaCount           CriteriaKind = "count"
	CriteriaFilteredCount   CriteriaKind = "filtered-count"
	CriteriaUniqueCount     CriteriaKind = "unique-count"
	CriteriaStreak          CriteriaKind = "streak"
	CriteriaPreferenceCount CriteriaKind = "preference-count"
)

// Criteria is a closed set of badge rules. Only the variants declared in
// this file implement it.
type Criteria interface {
	Kind() CriteriaKind
	Target() int
	isCriteria()
}

type CountSource string

const (
	CountSessions CountSource = "sessions"
	CountQuizzes  CountSource = "quizzes"
)

// CountCriteria counts completed sessions or recorded quiz results.
type CountCriteria struct {
	Source    CountSource
	Threshold int
}

type CountFilter string

const (
	FilterPerfectQuiz CountFilter = "perfect_quiz"
	FilterLongSession CountFilter = "long_session"
)

// FilteredCountCriteria counts records matching Filter. MinDurationSeconds
// only applies to FilterLongSession.
type FilteredCountCriteria struct {
	Filter             CountFilter
	MinDurationSeconds int64
	Threshold          int
}

// UniqueCountCriteria counts distinct subjects of completed sessions.
type UniqueCountCriteria struct {
	Threshold int
}

// StreakCriteria is satisfied by the longest run of consecutive study days.
type StreakCriteria struct {
	Threshold int
}

type PreferenceKey string

const (
	PreferenceLearningStyle PreferenceKey = "learning_style"
	PreferencePace          PreferenceKey = "pace"
	PreferenceDetailLevel   PreferenceKey = "detail_level"
)

// PreferenceCountCriteria counts completed sessions, but only while the
// user's current preference equals Value.
type PreferenceCountCriteria struct {
	Preference PreferenceKey
	Value      string
	Threshold  int
}

func (c CountCriteria) Kind() CriteriaKind           { return CriteriaCount }
func (c FilteredCountCriteria) Kind() CriteriaKind   { return CriteriaFilteredCount }
func (c UniqueCountCriteria) Kind() CriteriaKind     { return CriteriaUniqueCount }
func (c StreakCriteria) Kind() CriteriaKind          { return CriteriaStreak }
func (c PreferenceCountCriteria) Kind() CriteriaKind { return CriteriaPreferenceCount }

func (c CountCriteria) Target() int           { return c.Threshold }
func (c FilteredCountCriteria) Target() int   { return c.Threshold }
func (c UniqueCountCriteria) Target() int     { return c.Threshold }
func (c StreakCriteria) Target() int          { return c.Threshold }
func (c PreferenceCountCriteria) Target() int { return c.Threshold }

func (CountCriteria) isCriteria()           {}
func (FilteredCountCriteria) isCriteria()   {}
func (UniqueCountCriteria) isCriteria()     {}
func (StreakCriteria) isCriteria()          {}
func (PreferenceCountCriteria) isCriteria() {}

// CriteriaDescriptor is the flat wire/storage form of a Criteria.
type CriteriaDescriptor struct {
	Type               CriteriaKind `json:"type" yaml:"type"`
	Threshold          int          `json:"threshold" yaml:"threshold"`
	Source             string       `json:"source,omitempty" yaml:"source"`
	Filter             string       `json:"filter,omitempty" yaml:"filter"`
	MinDurationSeconds int64        `json:"min_duration_seconds,omitempty" yaml:"min_duration_seconds"`
	Preference         string       `json:"preference,omitempty" yaml:"preference"`
	Value              string       `json:"value,omitempty" yaml:"value"`
}

func DescribeCriteria(c Criteria) CriteriaDescriptor {
	switch v := c.(type) {
	case CountCriteria:
		return CriteriaDescriptor{Type: CriteriaCount, Threshold: v.Threshold, Source: string(v.Source)}
	case FilteredCountCriteria:
		return CriteriaDescriptor{Type: CriteriaFilteredCount, Threshold: v.Threshold, Filter: string(v.Filter), MinDurationSeconds: v.MinDurationSeconds}
	case UniqueCountCriteria:
		return CriteriaDescriptor{Type: CriteriaUniqueCount, Threshold: v.Threshold}
	case StreakCriteria:
		return CriteriaDescriptor{Type: CriteriaStreak, Threshold: v.Threshold}
	case PreferenceCountCriteria:
		return CriteriaDescriptor{Type: CriteriaPreferenceCount, Threshold: v.Threshold, Preference: string(v.Preference), Value: v.Value}
	}
	return CriteriaDescriptor{}
}

// ParseCriteria validates a descriptor into its typed variant.
func ParseCriteria(d CriteriaDescriptor) (Criteria, error) {
	if d.Threshold < 1 {
		return nil, fmt.Errorf("criteria %q: threshold must be positive, got %d", d.Type, d.Threshold)
	}

	switch d.Type {
	case CriteriaCount:
		src := CountSource(d.Source)
		if src != CountSessions && src != CountQuizzes {
			return nil, fmt.Errorf("criteria count: unknown source %q", d.Source)
		}
		return CountCriteria{Source: src, Threshold: d.Threshold}, nil

	case CriteriaFilteredCount:
		switch CountFilter(d.Filter) {
		case FilterPerfectQuiz:
			return FilteredCountCriteria{Filter: FilterPerfectQuiz, Threshold: d.Threshold}, nil
		case FilterLongSession:
			if d.MinDurationSeconds <= 0 {
				return nil, fmt.Errorf("criteria filtered-count: long_session needs min_duration_seconds")
			}
			return FilteredCountCriteria{Filter: FilterLongSession, MinDurationSeconds: d.MinDurationSeconds, Threshold: d.Threshold}, nil
		}
		return nil, fmt.Errorf("criteria filtered-count: unknown filter %q", d.Filter)

	case CriteriaUniqueCount:
		return UniqueCountCriteria{Threshold: d.Threshold}, nil

	case CriteriaStreak:
		return StreakCriteria{Threshold: d.Threshold}, nil

	case CriteriaPreferenceCount:
		key := PreferenceKey(d.Preference)
		if key != PreferenceLearningStyle && key != PreferencePace && key != PreferenceDetailLevel {
			return nil, fmt.Errorf("criteria preference-count: unknown preference %q", d.Preference)
		}
		value := strings.TrimSpace(d.Value)
		if value == "" {
			return nil, fmt.Errorf("criteria preference-count: value is required")
		}
		return PreferenceCountCriteria{Preference: key, Value: value, Threshold: d.Threshold}, nil
	}

	return nil, fmt.Errorf("unknown criteria type %q", d.Type)
}

type Badge struct {
	ID          string
	Name        string
	Description string
	Rarity      Rarity
	Criteria    Criteria
}

func (b Badge) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ID          string             `json:"id"`
		Name        string             `json:"name"`
		Description string             `json:"description"`
		Rarity      Rarity             `json:"rarity"`
		Criteria    CriteriaDescriptor `json:"criteria"`
	}{b.ID, b.Name, b.Description, b.Rarity, DescribeCriteria(b.Criteria)})
}

type Progress struct {
	Current     int       `json:"current"`
	Target      int       `json:"target"`
	LastUpdated time.Time `json:"lastUpdated"`
}

type UserAchievement struct {
	UserID   uuid.UUID  `json:"userId"`
	BadgeID  string     `json:"badgeId"`
	Progress Progress   `json:"progress"`
	EarnedAt *time.Time `json:"earnedAt"`
}

func (a *UserAchievement) Earned() bool {
	return a.Progress.Target > 0 && a.Progress.Current >= a.Progress.Target
}

// BadgeEarned is pushed to a user's live connections.
type BadgeEarned struct {
	BadgeID string `json:"badgeId"`
	Name    string `json:"name"`
	Rarity  Rarity `json:"rarity"`
}
