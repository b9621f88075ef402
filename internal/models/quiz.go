package models

import (
	"time"

	"github.com/google/uuid"
)

// QuizResult is a completed quiz attempt.
type QuizResult struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	QuizID       *uuid.UUID `json:"quiz_id"`
	ScorePercent float64    `json:"score_percent"`
	CorrectCount int        `json:"correct_count"`
	CompletedAt  time.Time  `json:"completed_at"`
}

func (q *QuizResult) IsPerfect() bool { return q.ScorePercent >= 100 }

type RecordQuizResultRequest struct {
	QuizID       *uuid.UUID `json:"quiz_id"`
	ScorePercent float64    `json:"score_percent"`
	CorrectCount int        `json:"correct_count"`
}
