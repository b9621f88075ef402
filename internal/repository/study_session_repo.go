package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"studyhub-backend/internal/models"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// psq is the PostgreSQL statement builder with dollar placeholders.
var psq = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var sessionColumns = []string{
	"id", "user_id", "subject", "status", "start_time", "end_time", "total_duration", "breaks", "metrics",
}

type StudySessionRepo struct {
	pool *pgxpool.Pool
}

func NewStudySessionRepo(pool *pgxpool.Pool) *StudySessionRepo {
	return &StudySessionRepo{pool: pool}
}

func (r *StudySessionRepo) CreateSession(ctx context.Context, s *models.StudySession) error {
	breaks, metrics, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO study_sessions (id, user_id, subject, status, start_time, end_time, total_duration, breaks, metrics)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, s.ID, s.UserID, s.Subject, s.Status, s.StartTime, s.EndTime, s.TotalDuration, breaks, metrics)
	if err != nil {
		return fmt.Errorf("insert study session: %w", err)
	}
	return nil
}

// UpdateSession writes every mutable column. start_time and user_id never change.
func (r *StudySessionRepo) UpdateSession(ctx context.Context, s *models.StudySession) error {
	breaks, metrics, err := encodeSessionJSON(s)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE study_sessions
		SET subject = $2, status = $3, end_time = $4, total_duration = $5, breaks = $6, metrics = $7, updated_at = NOW()
		WHERE id = $1
	`, s.ID, s.Subject, s.Status, s.EndTime, s.TotalDuration, breaks, metrics)
	if err != nil {
		return fmt.Errorf("update study session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *StudySessionRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.StudySession, error) {
	query, args, err := psq.Select(sessionColumns...).From("study_sessions").Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, err
	}
	s, err := scanSession(r.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	return s, err
}

// GetForUser returns the session only if it belongs to userID.
func (r *StudySessionRepo) GetForUser(ctx context.Context, id, userID uuid.UUID) (*models.StudySession, error) {
	s, err := r.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.UserID != userID {
		return nil, models.ErrNotFound
	}
	return s, nil
}

func buildSessionListQuery(f models.SessionFilter) sq.SelectBuilder {
	qb := psq.Select(sessionColumns...).From("study_sessions").Where(sq.Eq{"user_id": f.UserID})
	if f.Status != "" {
		qb = qb.Where(sq.Eq{"status": f.Status})
	}
	if f.Subject != "" {
		qb = qb.Where(sq.Expr("LOWER(subject) = LOWER(?)", f.Subject))
	}
	if f.From != nil {
		qb = qb.Where(sq.GtOrEq{"start_time": *f.From})
	}
	if f.To != nil {
		qb = qb.Where(sq.Lt{"start_time": *f.To})
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	qb = qb.OrderBy("start_time DESC").Limit(uint64(limit))
	if f.Offset > 0 {
		qb = qb.Offset(uint64(f.Offset))
	}
	return qb
}

func (r *StudySessionRepo) List(ctx context.Context, f models.SessionFilter) ([]*models.StudySession, error) {
	query, args, err := buildSessionListQuery(f).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session query: %w", err)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list study sessions: %w", err)
	}
	defer rows.Close()

	sessions := []*models.StudySession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// ListCompletedSessions returns every completed session of the user, oldest first.
func (r *StudySessionRepo) ListCompletedSessions(ctx context.Context, userID uuid.UUID) ([]models.StudySession, error) {
	query, args, err := psq.Select(sessionColumns...).From("study_sessions").
		Where(sq.Eq{"user_id": userID, "status": models.SessionCompleted}).
		OrderBy("start_time ASC").ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list completed sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.StudySession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func encodeSessionJSON(s *models.StudySession) ([]byte, []byte, error) {
	breaks := s.Breaks
	if breaks == nil {
		breaks = []models.Break{}
	}
	metrics := s.Metrics
	if metrics == nil {
		metrics = models.Metrics{}
	}

	b, err := json.Marshal(breaks)
	if err != nil {
		return nil, nil, fmt.Errorf("encode breaks: %w", err)
	}
	m, err := json.Marshal(metrics)
	if err != nil {
		return nil, nil, fmt.Errorf("encode metrics: %w", err)
	}
	return b, m, nil
}

func scanSession(row pgx.Row) (*models.StudySession, error) {
	s := &models.StudySession{}
	var breaks, metrics []byte
	if err := row.Scan(&s.ID, &s.UserID, &s.Subject, &s.Status, &s.StartTime, &s.EndTime, &s.TotalDuration, &breaks, &metrics); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(breaks, &s.Breaks); err != nil {
		return nil, fmt.Errorf("decode breaks of session %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(metrics, &s.Metrics); err != nil {
		return nil, fmt.Errorf("decode metrics of session %s: %w", s.ID, err)
	}
	if s.Breaks == nil {
		s.Breaks = []models.Break{}
	}
	if s.Metrics == nil {
		s.Metrics = models.Metrics{}
	}
	return s, nil
}
