package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// fakeLists is an in-memory stand-in for the Redis list commands
type fakeLists struct {
	mu      sync.Mutex
	lists   map[string][]string
	pushErr error
}

func newFakeLists() *fakeLists {
	return &fakeLists{lists: make(map[string][]string)}
}

func (f *fakeLists) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return redis.NewIntResult(0, f.pushErr)
	}
	for _, v := range values {
		f.lists[key] = append([]string{v.(string)}, f.lists[key]...)
	}
	return redis.NewIntResult(int64(len(f.lists[key])), nil)
}

func (f *fakeLists) BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd {
	deadline := time.Now().Add(timeout)
	for {
		if val, ok := f.pop(keys); ok {
			return redis.NewStringSliceResult(val, nil)
		}
		if time.Now().After(deadline) {
			return redis.NewStringSliceResult(nil, redis.Nil)
		}
		select {
		case <-ctx.Done():
			return redis.NewStringSliceResult(nil, ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func (f *fakeLists) pop(keys []string) ([]string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, key := range keys {
		list := f.lists[key]
		if len(list) == 0 {
			continue
		}
		last := list[len(list)-1]
		f.lists[key] = list[:len(list)-1]
		return []string{key, last}, true
	}
	return nil, false
}

func (f *fakeLists) len(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.lists[key])
}

type testPayload struct {
	Message string `json:"message"`
}

func setupQueue(t *testing.T) (*RedisQueue, *fakeLists, *gorm.DB) {
	db := testutil.NewTestDB(t, &Job{})
	lists := newFakeLists()
	return NewRedisQueue(lists, db, zap.NewNop()), lists, db
}

func TestEnqueueStoresJobAndPushesID(t *testing.T) {
	q, lists, _ := setupQueue(t)

	job, err := q.Enqueue(context.Background(), JobTypeRewardFullRun, testPayload{Message: "hello"})
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, job.Status)
	assert.Equal(t, 1, lists.len(DefaultKeyPrefix+string(JobTypeRewardFullRun)))

	stored, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	var payload testPayload
	require.NoError(t, stored.DecodePayload(&payload))
	assert.Equal(t, "hello", payload.Message)
}

func TestEnqueuePushFailureMarksJobFailed(t *testing.T) {
	q, lists, db := setupQueue(t)
	lists.pushErr = errors.New("connection refused")

	_, err := q.Enqueue(context.Background(), JobTypeRewardFullRun, nil)
	require.Error(t, err)

	var job Job
	require.NoError(t, db.First(&job).Error)
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "connection refused")
}

func TestDequeueEmptyQueue(t *testing.T) {
	q, _, _ := setupQueue(t)

	job, err := q.Dequeue(context.Background(), 10*time.Millisecond, JobTypeRewardFullRun)
	assert.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeueMarksProcessing(t *testing.T) {
	q, _, _ := setupQueue(t)
	enqueued, err := q.Enqueue(context.Background(), JobTypeRewardSelectedRun, testPayload{Message: "x"})
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background(), 50*time.Millisecond, JobTypeRewardFullRun, JobTypeRewardSelectedRun)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, enqueued.ID, job.ID)
	assert.Equal(t, JobStatusProcessing, job.Status)

	stored, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusProcessing, stored.Status)
	assert.NotNil(t, stored.StartedAt)
}

func TestGetUnknownJob(t *testing.T) {
	q, _, _ := setupQueue(t)
	_, err := q.Get(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestFailRetriesUntilExhausted(t *testing.T) {
	q, lists, _ := setupQueue(t)
	key := DefaultKeyPrefix + string(JobTypeRewardFullRun)

	_, err := q.Enqueue(context.Background(), JobTypeRewardFullRun, nil, WithMaxRetries(1))
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background(), 50*time.Millisecond, JobTypeRewardFullRun)
	require.NoError(t, err)
	require.NoError(t, q.Fail(context.Background(), job, errors.New("first")))
	assert.Equal(t, 1, lists.len(key))

	job, err = q.Dequeue(context.Background(), 50*time.Millisecond, JobTypeRewardFullRun)
	require.NoError(t, err)
	assert.Equal(t, 1, job.RetryCount)
	require.NoError(t, q.Fail(context.Background(), job, errors.New("second")))
	assert.Equal(t, 0, lists.len(key))

	stored, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
	assert.Equal(t, "second", stored.Error)
}

func TestJobProcessorRunsHandlers(t *testing.T) {
	q, _, _ := setupQueue(t)
	processor := NewJobProcessor(q, 1, zap.NewNop())
	processor.pollTimeout = 20 * time.Millisecond

	processor.RegisterHandler(JobTypeRewardFullRun, func(ctx context.Context, job Job) (interface{}, error) {
		var payload testPayload
		if err := job.DecodePayload(&payload); err != nil {
			return nil, err
		}
		return map[string]string{"echo": payload.Message}, nil
	})
	processor.RegisterHandler(JobTypeRewardSelectedRun, func(ctx context.Context, job Job) (interface{}, error) {
		return nil, errors.New("boom")
	})

	ok, err := q.Enqueue(context.Background(), JobTypeRewardFullRun, testPayload{Message: "ping"})
	require.NoError(t, err)
	bad, err := q.Enqueue(context.Background(), JobTypeRewardSelectedRun, nil)
	require.NoError(t, err)

	processor.Start(context.Background())
	defer processor.Stop()

	require.Eventually(t, func() bool {
		a, errA := q.Get(context.Background(), ok.ID)
		b, errB := q.Get(context.Background(), bad.ID)
		return errA == nil && errB == nil &&
			a.Status == JobStatusCompleted && b.Status == JobStatusFailed
	}, 2*time.Second, 10*time.Millisecond)

	done, err := q.Get(context.Background(), ok.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"echo":"ping"}`, done.Result)

	failed, err := q.Get(context.Background(), bad.ID)
	require.NoError(t, err)
	assert.Equal(t, "boom", failed.Error)
}

func TestProcessJobWithoutHandler(t *testing.T) {
	q, _, _ := setupQueue(t)
	processor := NewJobProcessor(q, 1, zap.NewNop())

	job, err := q.Enqueue(context.Background(), JobTypeRewardFullRun, nil)
	require.NoError(t, err)

	err = processor.ProcessJob(context.Background(), job)
	assert.ErrorIs(t, err, ErrNoHandler)

	stored, err := q.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusFailed, stored.Status)
}
