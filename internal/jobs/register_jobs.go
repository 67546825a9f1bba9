package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/revaspay/storefront/internal/queue"
	"github.com/revaspay/storefront/internal/services/rewards"
	"go.uber.org/zap"
)

// ErrNoCandidates is returned when a selected run is requested with an empty list
var ErrNoCandidates = errors.New("no candidates selected")

// RewardRunner is the orchestrator surface the run jobs drive
type RewardRunner interface {
	FullRun(ctx context.Context, trigger rewards.Trigger) (*rewards.RunReport, error)
	SelectedRun(ctx context.Context, candidates []rewards.PendingReward) (*rewards.RunReport, error)
}

// HandlerRegistry accepts job handlers
type HandlerRegistry interface {
	RegisterHandler(jobType queue.JobType, handler queue.JobHandler)
}

// Enqueuer pushes jobs onto the queue
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType queue.JobType, payload interface{}, opts ...queue.EnqueueOption) (*queue.Job, error)
}

// FullRunPayload is the payload of a manual full run job
type FullRunPayload struct {
	RequestedBy string `json:"requested_by,omitempty"`
}

// SelectedRunPayload is the payload of a manual run over operator-selected candidates
type SelectedRunPayload struct {
	RequestedBy string                  `json:"requested_by,omitempty"`
	Candidates  []rewards.PendingReward `json:"candidates"`
}

// RewardRunJobs enqueues manual distribution runs and processes them in the background
type RewardRunJobs struct {
	queue  Enqueuer
	runner RewardRunner
	logger *zap.Logger
}

// NewRewardRunJobs creates the reward run job handlers
func NewRewardRunJobs(q Enqueuer, runner RewardRunner, logger *zap.Logger) *RewardRunJobs {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RewardRunJobs{queue: q, runner: runner, logger: logger}
}

// RegisterAllJobHandlers registers all job handlers with the processor
func RegisterAllJobHandlers(registry HandlerRegistry, runs *RewardRunJobs) {
	registry.RegisterHandler(queue.JobTypeRewardFullRun, runs.processFullRun)
	registry.RegisterHandler(queue.JobTypeRewardSelectedRun, runs.processSelectedRun)
}

// EnqueueFullRun schedules a full run in the background
func (j *RewardRunJobs) EnqueueFullRun(ctx context.Context, requestedBy string) (*queue.Job, error) {
	return j.queue.Enqueue(ctx, queue.JobTypeRewardFullRun, FullRunPayload{RequestedBy: requestedBy})
}

// EnqueueSelectedRun validates candidates and schedules a selected run in the background
func (j *RewardRunJobs) EnqueueSelectedRun(ctx context.Context, requestedBy string, candidates []rewards.PendingReward) (*queue.Job, error) {
	if len(candidates) == 0 {
		return nil, ErrNoCandidates
	}
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("candidate %d: %w", i, err)
		}
	}
	return j.queue.Enqueue(ctx, queue.JobTypeRewardSelectedRun, SelectedRunPayload{
		RequestedBy: requestedBy,
		Candidates:  candidates,
	})
}

func (j *RewardRunJobs) processFullRun(ctx context.Context, job queue.Job) (interface{}, error) {
	var payload FullRunPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}

	j.logger.Info("Processing manual reward run",
		zap.String("job_id", job.ID.String()),
		zap.String("requested_by", payload.RequestedBy))

	return j.runner.FullRun(ctx, rewards.TriggerManual)
}

func (j *RewardRunJobs) processSelectedRun(ctx context.Context, job queue.Job) (interface{}, error) {
	var payload SelectedRunPayload
	if err := job.DecodePayload(&payload); err != nil {
		return nil, err
	}
	if len(payload.Candidates) == 0 {
		return nil, ErrNoCandidates
	}

	j.logger.Info("Processing selected reward run",
		zap.String("job_id", job.ID.String()),
		zap.String("requested_by", payload.RequestedBy),
		zap.Int("candidates", len(payload.Candidates)))

	return j.runner.SelectedRun(ctx, payload.Candidates)
}
