package repository

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub-backend/internal/models"
)

type QuizRepo struct {
	pool *pgxpool.Pool
}

func NewQuizRepo(pool *pgxpool.Pool) *QuizRepo {
	return &QuizRepo{pool: pool}
}

func (r *QuizRepo) RecordResult(ctx context.Context, q *models.QuizResult) error {
	if q.ID == uuid.Nil {
		q.ID = uuid.New()
	}

	query := `INSERT INTO quiz_attempts (id, user_id, quiz_id, score_percent, correct_count)
		VALUES ($1, $2, $3, $4, $5) RETURNING completed_at`

	if err := r.pool.QueryRow(ctx, query, q.ID, q.UserID, q.QuizID, q.ScorePercent, q.CorrectCount).Scan(&q.CompletedAt); err != nil {
		return fmt.Errorf("insert quiz attempt: %w", err)
	}
	return nil
}

// ListQuizResults returns every completed attempt of the user, oldest first.
func (r *QuizRepo) ListQuizResults(ctx context.Context, userID uuid.UUID) ([]models.QuizResult, error) {
	query, args, err := psq.Select("id", "user_id", "quiz_id", "score_percent::float8", "correct_count", "completed_at").
		From("quiz_attempts").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("completed_at ASC").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list quiz attempts: %w", err)
	}
	defer rows.Close()

	var results []models.QuizResult
	for rows.Next() {
		var q models.QuizResult
		if err := rows.Scan(&q.ID, &q.UserID, &q.QuizID, &q.ScorePercent, &q.CorrectCount, &q.CompletedAt); err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}
