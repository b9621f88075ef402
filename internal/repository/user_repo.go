package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub-backend/internal/models"
)

// UserRepo holds the per-user learning preferences. Accounts themselves
// live with the auth service.
type UserRepo struct {
	pool *pgxpool.Pool
}

func NewUserRepo(pool *pgxpool.Pool) *UserRepo {
	return &UserRepo{pool: pool}
}

func (r *UserRepo) GetPreferences(ctx context.Context, userID uuid.UUID) (*models.Preferences, error) {
	p := &models.Preferences{}
	query := `SELECT user_id, learning_style, pace, detail_level, updated_at
		FROM user_preferences WHERE user_id = $1`

	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.LearningStyle, &p.Pace, &p.DetailLevel, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return p, nil
}

// UpsertPreferences stores p and refreshes p.UpdatedAt.
func (r *UserRepo) UpsertPreferences(ctx context.Context, p *models.Preferences) error {
	query := `
		INSERT INTO user_preferences (user_id, learning_style, pace, detail_level)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET learning_style = EXCLUDED.learning_style, pace = EXCLUDED.pace,
			detail_level = EXCLUDED.detail_level, updated_at = NOW()
		RETURNING updated_at`

	if err := r.pool.QueryRow(ctx, query, p.UserID, p.LearningStyle, p.Pace, p.DetailLevel).Scan(&p.UpdatedAt); err != nil {
		return fmt.Errorf("upsert preferences: %w", err)
	}
	return nil
}
