package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"studyhub-backend/internal/achievement"
	"studyhub-backend/internal/logger"
	"studyhub-backend/internal/models"
)

const (
	maxRetries   = 3
	popTimeout   = 30 * time.Second
	lockTTL      = 10 * time.Minute
	busyDelay    = time.Second
	evalDeadline = time.Minute
)

// Evaluator recomputes a user's achievements.
type Evaluator interface {
	Evaluate(ctx context.Context, userID uuid.UUID) ([]achievement.Change, error)
}

// Publisher delivers a frame to every live connection of a user.
type Publisher interface {
	Publish(ctx context.Context, userID uuid.UUID, msg models.ServerMessage) error
}

// RedisPublisher fans frames out through the per-user pub/sub channel the
// websocket hubs subscribe to.
type RedisPublisher struct {
	redis *redis.Client
}

func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{redis: client}
}

func (p *RedisPublisher) Publish(ctx context.Context, userID uuid.UUID, msg models.ServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.redis.Publish(ctx, models.UserUpdatesChannel(userID), data).Err()
}

type Pool struct {
	queue       Queue
	evaluator   Evaluator
	publisher   Publisher
	log         *logger.Logger
	workerCount int
	after       func(time.Duration, func())
}

func NewPool(queue Queue, evaluator Evaluator, publisher Publisher, log *logger.Logger, workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{
		queue:       queue,
		evaluator:   evaluator,
		publisher:   publisher,
		log:         log,
		workerCount: workerCount,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Run blocks until ctx is cancelled and every worker has returned.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < p.workerCount; i++ {
		id := i
		g.Go(func() error {
			p.worker(ctx, id)
			return nil
		})
	}
	p.log.Info("started achievement workers", "count", p.workerCount)
	return g.Wait()
}

func (p *Pool) worker(ctx context.Context, id int) {
	for {
		if ctx.Err() != nil {
			p.log.Info("worker shutting down", "worker", id)
			return
		}

		job, err := p.queue.Pop(ctx, popTimeout)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Warn("pop evaluation job", "worker", id, "error", err)
				time.Sleep(busyDelay)
			}
			continue
		}
		if job == nil {
			continue
		}

		p.process(ctx, id, job)
	}
}

func (p *Pool) process(ctx context.Context, id int, job *Job) {
	locked, err := p.queue.Lock(ctx, job.UserID, lockTTL)
	if err != nil {
		p.handleFailure(job, fmt.Errorf("acquire lock: %w", err))
		return
	}
	if !locked {
		// Another worker is evaluating this user. Run again once it is done
		// so facts recorded in the meantime are not missed.
		p.requeue(job, busyDelay)
		return
	}
	defer func() {
		if err := p.queue.Unlock(context.WithoutCancel(ctx), job.UserID); err != nil {
			p.log.Warn("release evaluation lock", "user_id", job.UserID, "error", err)
		}
	}()

	p.log.Debug("evaluating achievements", "worker", id, "job_id", job.ID, "user_id", job.UserID, "reason", job.Reason)

	evalCtx, cancel := context.WithTimeout(ctx, evalDeadline)
	defer cancel()

	changes, err := p.evaluator.Evaluate(evalCtx, job.UserID)
	if err != nil {
		p.handleFailure(job, err)
		return
	}
	p.handleSuccess(evalCtx, job, changes)
}

func (p *Pool) handleSuccess(ctx context.Context, job *Job, changes []achievement.Change) {
	earned := achievement.NewlyEarned(changes)
	for _, b := range earned {
		msg := models.ServerMessage{
			Type:  models.MsgBadgeEarned,
			Badge: &models.BadgeEarned{BadgeID: b.ID, Name: b.Name, Rarity: b.Rarity},
		}
		if err := p.publisher.Publish(ctx, job.UserID, msg); err != nil {
			p.log.Warn("publish badge notification", "user_id", job.UserID, "badge_id", b.ID, "error", err)
		}
	}
	p.log.Info("achievements evaluated", "job_id", job.ID, "user_id", job.UserID, "changed", len(changes), "earned", len(earned))
}

func (p *Pool) handleFailure(job *Job, err error) {
	job.RetryCount++
	if job.RetryCount >= maxRetries {
		p.log.Error("evaluation failed permanently", "job_id", job.ID, "user_id", job.UserID, "attempts", job.RetryCount, "error", err)
		return
	}

	p.log.Warn("evaluation failed, retrying", "job_id", job.ID, "user_id", job.UserID, "attempt", job.RetryCount, "error", err)
	p.requeue(job, time.Duration(1<<uint(job.RetryCount))*time.Second)
}

func (p *Pool) requeue(job *Job, delay time.Duration) {
	retry := *job
	p.after(delay, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := p.queue.Push(ctx, &retry); err != nil {
			p.log.Error("requeue evaluation", "job_id", retry.ID, "user_id", retry.UserID, "error", err)
		}
	})
}
