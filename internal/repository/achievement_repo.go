package repository

import (
	"context"
	"encoding/json"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub-backend/internal/models"
)

type AchievementRepo struct {
	pool *pgxpool.Pool
}

func NewAchievementRepo(pool *pgxpool.Pool) *AchievementRepo {
	return &AchievementRepo{pool: pool}
}

// SeedBadges upserts the catalog so badge rows always match the running build.
func (r *AchievementRepo) SeedBadges(ctx context.Context, badges []models.Badge) error {
	batch := &pgx.Batch{}
	for _, b := range badges {
		criteria, err := json.Marshal(models.DescribeCriteria(b.Criteria))
		if err != nil {
			return fmt.Errorf("encode criteria of %s: %w", b.ID, err)
		}
		batch.Queue(`
			INSERT INTO badges (id, name, description, rarity, criteria)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE
			SET name = EXCLUDED.name, description = EXCLUDED.description, rarity = EXCLUDED.rarity,
				criteria = EXCLUDED.criteria, updated_at = NOW()
		`, b.ID, b.Name, b.Description, b.Rarity, criteria)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, b := range badges {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("seed badge %s: %w", b.ID, err)
		}
	}
	return nil
}

func (r *AchievementRepo) ListUserAchievements(ctx context.Context, userID uuid.UUID) ([]models.UserAchievement, error) {
	query, args, err := psq.Select("user_id", "badge_id", "current", "target", "last_updated", "earned_at").
		From("user_achievements").
		Where(sq.Eq{"user_id": userID}).
		OrderBy("earned_at DESC NULLS LAST", "badge_id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user achievements: %w", err)
	}
	defer rows.Close()

	out := []models.UserAchievement{}
	for rows.Next() {
		var a models.UserAchievement
		if err := rows.Scan(&a.UserID, &a.BadgeID, &a.Progress.Current, &a.Progress.Target, &a.Progress.LastUpdated, &a.EarnedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CreateUserAchievement inserts the first progress record for a badge. A
// concurrent insert of the same pair is left as it is and reported as
// models.ErrConflict.
func (r *AchievementRepo) CreateUserAchievement(ctx context.Context, a *models.UserAchievement) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO user_achievements (user_id, badge_id, current, target, last_updated, earned_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, badge_id) DO NOTHING
	`, a.UserID, a.BadgeID, a.Progress.Current, a.Progress.Target, a.Progress.LastUpdated, a.EarnedAt)
	if err != nil {
		return fmt.Errorf("insert user achievement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}

// UpdateUserAchievementProgress raises progress. The WHERE clause keeps the
// stored value from ever going down and earned_at from being replaced; when
// it matches nothing the result is models.ErrConflict.
func (r *AchievementRepo) UpdateUserAchievementProgress(ctx context.Context, a *models.UserAchievement) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE user_achievements
		SET current = $3, target = $4, last_updated = $5, earned_at = COALESCE(earned_at, $6)
		WHERE user_id = $1 AND badge_id = $2 AND current < $3
	`, a.UserID, a.BadgeID, a.Progress.Current, a.Progress.Target, a.Progress.LastUpdated, a.EarnedAt)
	if err != nil {
		return fmt.Errorf("update user achievement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrConflict
	}
	return nil
}
