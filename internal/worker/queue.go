package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// QueueAchievementEvaluation is the Redis list holding pending evaluations.
const QueueAchievementEvaluation = "queue:achievement-evaluation"

// Job asks for a user's achievements to be recomputed.
type Job struct {
	ID         uuid.UUID `json:"id"`
	UserID     uuid.UUID `json:"user_id"`
	Reason     string    `json:"reason"`
	RetryCount int       `json:"retry_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Queue is the job transport used by the pool and the enqueuer.
type Queue interface {
	Push(ctx context.Context, job *Job) error
	// Pop blocks for at most timeout. A nil job with a nil error means the
	// wait timed out.
	Pop(ctx context.Context, timeout time.Duration) (*Job, error)
	Lock(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, userID uuid.UUID) error
}

type RedisQueue struct {
	redis *redis.Client
	name  string
}

func NewRedisQueue(client *redis.Client) *RedisQueue {
	return &RedisQueue{redis: client, name: QueueAchievementEvaluation}
}

func lockKey(userID uuid.UUID) string {
	return "achievement_lock:" + userID.String()
}

func (q *RedisQueue) Push(ctx context.Context, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := q.redis.LPush(ctx, q.name, data).Err(); err != nil {
		return fmt.Errorf("enqueue evaluation: %w", err)
	}
	return nil
}

func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Job, error) {
	result, err := q.redis.BLPop(ctx, timeout, q.name).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}

	var job Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, fmt.Errorf("parse job: %w", err)
	}
	return &job, nil
}

func (q *RedisQueue) Lock(ctx context.Context, userID uuid.UUID, ttl time.Duration) (bool, error) {
	return q.redis.SetNX(ctx, lockKey(userID), "1", ttl).Result()
}

func (q *RedisQueue) Unlock(ctx context.Context, userID uuid.UUID) error {
	return q.redis.Del(ctx, lockKey(userID)).Err()
}
