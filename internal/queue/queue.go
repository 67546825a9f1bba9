package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobType defines the type of job
type JobType string

const (
	// Job types
	JobTypeRewardFullRun     JobType = "reward_full_run"
	JobTypeRewardSelectedRun JobType = "reward_selected_run"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Default values
const (
	DefaultMaxRetries = 0
	DefaultKeyPrefix  = "storefront:queue:"
)

var (
	// ErrJobNotFound is returned when a job ID has no row
	ErrJobNotFound = errors.New("job not found")
	// ErrNoHandler is returned for a job type nothing is registered for
	ErrNoHandler = errors.New("no handler registered for job type")
)

// Job represents a background job. The database row is the source of truth;
// the Redis list only carries job IDs.
type Job struct {
	ID         uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Type       JobType    `json:"type" gorm:"type:varchar(50);not null;index"`
	Payload    string     `json:"payload" gorm:"type:text"`
	Status     JobStatus  `json:"status" gorm:"type:varchar(20);not null;index"`
	RetryCount int        `json:"retry_count" gorm:"default:0"`
	MaxRetries int        `json:"max_retries" gorm:"default:0"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	Error      string     `json:"error,omitempty" gorm:"type:text"`
	Result     string     `json:"result,omitempty" gorm:"type:text"`
}

// BeforeCreate assigns the job ID
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	return nil
}

// DecodePayload unmarshals the job payload into v
func (j *Job) DecodePayload(v interface{}) error {
	if j.Payload == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(j.Payload), v); err != nil {
		return fmt.Errorf("failed to decode payload for job %s: %w", j.ID, err)
	}
	return nil
}

// JobHandler is a function that processes a job and returns a JSON-serialisable result
type JobHandler func(ctx context.Context, job Job) (interface{}, error)

// EnqueueOptions represents options for enqueueing a job
type EnqueueOptions struct {
	maxRetries int
}

// EnqueueOption is a function that modifies EnqueueOptions
type EnqueueOption func(*EnqueueOptions)

// WithMaxRetries sets the maximum number of retries for a job
func WithMaxRetries(maxRetries int) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.maxRetries = maxRetries
	}
}
