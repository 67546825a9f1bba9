package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ListClient is the subset of the Redis client the queue uses
type ListClient interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// RedisQueue stores jobs in the database and signals workers through Redis lists
type RedisQueue struct {
	client ListClient
	db     *gorm.DB
	prefix string
	logger *zap.Logger
}

// NewRedisQueue creates a new Redis queue
func NewRedisQueue(client ListClient, db *gorm.DB, logger *zap.Logger) *RedisQueue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisQueue{
		client: client,
		db:     db,
		prefix: DefaultKeyPrefix,
		logger: logger,
	}
}

func (q *RedisQueue) key(jobType JobType) string {
	return q.prefix + string(jobType)
}

// Enqueue records a pending job and pushes its ID onto the type's list
func (q *RedisQueue) Enqueue(ctx context.Context, jobType JobType, payload interface{}, opts ...EnqueueOption) (*Job, error) {
	options := EnqueueOptions{maxRetries: DefaultMaxRetries}
	for _, opt := range opts {
		opt(&options)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	job := &Job{
		Type:       jobType,
		Payload:    string(payloadBytes),
		Status:     JobStatusPending,
		MaxRetries: options.maxRetries,
	}
	if err := q.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	if err := q.client.LPush(ctx, q.key(jobType), job.ID.String()).Err(); err != nil {
		_ = q.markFailed(ctx, job.ID, fmt.Errorf("failed to push job to queue: %w", err))
		return nil, fmt.Errorf("failed to push job to queue: %w", err)
	}

	q.logger.Info("Job enqueued",
		zap.String("job_id", job.ID.String()),
		zap.String("type", string(jobType)))
	return job, nil
}

// Dequeue blocks up to timeout for a job of any of the given types and marks it processing.
// It returns nil when no job arrived.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration, jobTypes ...JobType) (*Job, error) {
	keys := make([]string, 0, len(jobTypes))
	for _, t := range jobTypes {
		keys = append(keys, q.key(t))
	}

	result, err := q.client.BRPop(ctx, timeout, keys...).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to pop job from queue: %w", err)
	}
	if len(result) < 2 {
		return nil, fmt.Errorf("unexpected result format from BRPOP")
	}

	id, err := uuid.Parse(result[1])
	if err != nil {
		return nil, fmt.Errorf("invalid job id %q: %w", result[1], err)
	}

	job, err := q.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = q.db.WithContext(ctx).Model(job).Updates(map[string]interface{}{
		"status":     JobStatusProcessing,
		"started_at": now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update job status: %w", err)
	}
	job.Status = JobStatusProcessing
	job.StartedAt = &now

	return job, nil
}

// Get loads a job by ID
func (q *RedisQueue) Get(ctx context.Context, id uuid.UUID) (*Job, error) {
	var job Job
	err := q.db.WithContext(ctx).First(&job, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// Complete marks a job as completed and stores its result
func (q *RedisQueue) Complete(ctx context.Context, id uuid.UUID, result interface{}) error {
	resultBytes, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal job result: %w", err)
	}

	now := time.Now()
	err = q.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      JobStatusCompleted,
		"result":      string(resultBytes),
		"error":       "",
		"finished_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}

// Fail records jobErr on the job. Jobs with retries left are pushed back onto their list.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, jobErr error) error {
	if job.RetryCount < job.MaxRetries {
		err := q.db.WithContext(ctx).Model(&Job{}).Where("id = ?", job.ID).Updates(map[string]interface{}{
			"status":      JobStatusPending,
			"retry_count": job.RetryCount + 1,
			"error":       jobErr.Error(),
		}).Error
		if err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}
		if err := q.client.LPush(ctx, q.key(job.Type), job.ID.String()).Err(); err != nil {
			return fmt.Errorf("failed to requeue job: %w", err)
		}
		q.logger.Warn("Job failed, retrying",
			zap.String("job_id", job.ID.String()),
			zap.Int("retry", job.RetryCount+1),
			zap.Error(jobErr))
		return nil
	}

	return q.markFailed(ctx, job.ID, jobErr)
}

func (q *RedisQueue) markFailed(ctx context.Context, id uuid.UUID, jobErr error) error {
	now := time.Now()
	err := q.db.WithContext(ctx).Model(&Job{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":      JobStatusFailed,
		"error":       jobErr.Error(),
		"finished_at": now,
	}).Error
	if err != nil {
		return fmt.Errorf("failed to update job status: %w", err)
	}
	return nil
}
