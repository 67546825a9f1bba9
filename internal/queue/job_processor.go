package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/metrics"
	"go.uber.org/zap"
)

// Consumer is the queue side the processor pulls from
type Consumer interface {
	Dequeue(ctx context.Context, timeout time.Duration, jobTypes ...JobType) (*Job, error)
	Complete(ctx context.Context, id uuid.UUID, result interface{}) error
	Fail(ctx context.Context, job *Job, jobErr error) error
}

// JobProcessor runs registered handlers over dequeued jobs
type JobProcessor struct {
	queue       Consumer
	handlers    map[JobType]JobHandler
	workerCount int
	pollTimeout time.Duration
	logger      *zap.Logger

	wg             sync.WaitGroup
	processingJobs sync.Map
	cancel         context.CancelFunc
}

// NewJobProcessor creates a new JobProcessor
func NewJobProcessor(queue Consumer, workerCount int, logger *zap.Logger) *JobProcessor {
	if workerCount < 1 {
		workerCount = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobProcessor{
		queue:       queue,
		handlers:    make(map[JobType]JobHandler),
		workerCount: workerCount,
		pollTimeout: time.Second,
		logger:      logger,
	}
}

// RegisterHandler registers a handler for a job type. Call before Start.
func (p *JobProcessor) RegisterHandler(jobType JobType, handler JobHandler) {
	p.handlers[jobType] = handler
}

// Start starts the workers
func (p *JobProcessor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)

	types := make([]JobType, 0, len(p.handlers))
	for t := range p.handlers {
		types = append(types, t)
	}
	if len(types) == 0 {
		p.logger.Warn("Job processor has no handlers registered")
		return
	}

	p.logger.Info("Starting job processor", zap.Int("workers", p.workerCount))
	for i := 0; i < p.workerCount; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i, types)
	}
}

// Stop cancels the workers and waits for in-flight jobs to return
func (p *JobProcessor) Stop() {
	p.logger.Info("Stopping job processor")
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info("Job processor stopped")
}

func (p *JobProcessor) worker(ctx context.Context, id int, types []JobType) {
	defer p.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := p.queue.Dequeue(ctx, p.pollTimeout, types...)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.logger.Error("Failed to dequeue job", zap.Int("worker", id), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if job == nil {
			continue
		}

		if err := p.ProcessJob(ctx, job); err != nil {
			p.logger.Error("Job processing failed",
				zap.Int("worker", id),
				zap.String("job_id", job.ID.String()),
				zap.String("type", string(job.Type)),
				zap.Error(err))
		}
	}
}

// ProcessJob runs the handler for job and records the outcome
func (p *JobProcessor) ProcessJob(ctx context.Context, job *Job) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}

	handler, ok := p.handlers[job.Type]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrNoHandler, job.Type)
		_ = p.queue.Fail(ctx, job, err)
		metrics.QueueJobsTotal.WithLabelValues(string(job.Type), string(JobStatusFailed)).Inc()
		return err
	}

	p.processingJobs.Store(job.ID, true)
	defer p.processingJobs.Delete(job.ID)

	result, err := handler(ctx, *job)

	// The outcome is recorded even when the worker is shutting down.
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		if failErr := p.queue.Fail(ctx, job, err); failErr != nil {
			p.logger.Error("Failed to record job failure", zap.String("job_id", job.ID.String()), zap.Error(failErr))
		}
		metrics.QueueJobsTotal.WithLabelValues(string(job.Type), string(JobStatusFailed)).Inc()
		return fmt.Errorf("job processing failed: %w", err)
	}

	if err := p.queue.Complete(ctx, job.ID, result); err != nil {
		return err
	}
	metrics.QueueJobsTotal.WithLabelValues(string(job.Type), string(JobStatusCompleted)).Inc()
	return nil
}

// IsProcessing checks if a job is currently being processed
func (p *JobProcessor) IsProcessing(id uuid.UUID) bool {
	_, ok := p.processingJobs.Load(id)
	return ok
}
