package models

import (
	"time"

	"github.com/google/uuid"
)

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionPaused    SessionStatus = "paused"
	SessionCompleted SessionStatus = "completed"
)

// DefaultSubject is used when a session is started without a subject.
const DefaultSubject = "General Study"

// Break is a sub-interval of a session excluded from counted duration.
// EndTime is nil while the break is open.
type Break struct {
	StartTime time.Time  `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
	Duration  int64      `json:"duration"` // seconds
}

func (b Break) IsOpen() bool { return b.EndTime == nil }

// Metrics is a free-form bag (focus score, completed tasks, milestones).
type Metrics map[string]interface{}

type StudySession struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"userId"`
	Subject       string        `json:"subject"`
	Status        SessionStatus `json:"status"`
	StartTime     time.Time     `json:"startTime"`
	EndTime       *time.Time    `json:"endTime"`
	TotalDuration int64         `json:"totalDuration"` // seconds, set at completion
	Breaks        []Break       `json:"breaks"`
	Metrics       Metrics       `json:"metrics"`
}

// OpenBreakIndex returns the index of the open break or -1.
func (s *StudySession) OpenBreakIndex() int {
	for i := len(s.Breaks) - 1; i >= 0; i-- {
		if s.Breaks[i].IsOpen() {
			return i
		}
	}
	return -1
}

func (s *StudySession) IsCompleted() bool { return s.Status == SessionCompleted }

// Clone returns a deep copy; metric values are copied shallowly.
func (s *StudySession) Clone() *StudySession {
	if s == nil {
		return nil
	}
	c := *s
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	c.Breaks = make([]Break, len(s.Breaks))
	for i, b := range s.Breaks {
		c.Breaks[i] = b
		if b.EndTime != nil {
			end := *b.EndTime
			c.Breaks[i].EndTime = &end
		}
	}
	c.Metrics = make(Metrics, len(s.Metrics))
	for k, v := range s.Metrics {
		c.Metrics[k] = v
	}
	return &c
}

// SessionFilter narrows session history listings.
type SessionFilter struct {
	UserID  uuid.UUID
	Status  SessionStatus
	Subject string
	From    *time.Time
	To      *time.Time
	Limit   int
	Offset  int
}
