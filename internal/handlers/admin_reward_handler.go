package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/revaspay/storefront/internal/jobs"
	"github.com/revaspay/storefront/internal/middleware"
	"github.com/revaspay/storefront/internal/queue"
	"github.com/revaspay/storefront/internal/services/rewards"
	"github.com/revaspay/storefront/internal/services/settings"
	"go.uber.org/zap"
)

// RewardPreviewer computes the candidates a run would pay without applying them
type RewardPreviewer interface {
	Pending(ctx context.Context) (*rewards.Preview, error)
}

// RunEnqueuer queues manual distribution runs
type RunEnqueuer interface {
	EnqueueFullRun(ctx context.Context, requestedBy string) (*queue.Job, error)
	EnqueueSelectedRun(ctx context.Context, requestedBy string, candidates []rewards.PendingReward) (*queue.Job, error)
}

// JobReader looks up queued jobs
type JobReader interface {
	Get(ctx context.Context, id uuid.UUID) (*queue.Job, error)
}

// SettingsStore reads and writes operator settings
type SettingsStore interface {
	Get(ctx context.Context, key, defaultValue string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// ScheduleRefresher re-installs the reward timer from the latest settings
type ScheduleRefresher interface {
	Refresh(ctx context.Context) error
	Schedule() (string, string)
	NextRun() (time.Time, bool)
}

// AdminRewardHandler serves the operator endpoints of the distribution engine
type AdminRewardHandler struct {
	previewer RewardPreviewer
	runs      RunEnqueuer
	jobs      JobReader
	settings  SettingsStore
	scheduler ScheduleRefresher
	logger    *zap.Logger
}

// NewAdminRewardHandler creates a new admin reward handler
func NewAdminRewardHandler(
	previewer RewardPreviewer,
	runs RunEnqueuer,
	jobReader JobReader,
	settingsStore SettingsStore,
	scheduler ScheduleRefresher,
	logger *zap.Logger,
) *AdminRewardHandler {
	return &AdminRewardHandler{
		previewer: previewer,
		runs:      runs,
		jobs:      jobReader,
		settings:  settingsStore,
		scheduler: scheduler,
		logger:    logger,
	}
}

// SelectedRunRequest is the body of POST /run/selected
type SelectedRunRequest struct {
	Candidates []rewards.PendingReward `json:"candidates" binding:"required"`
}

// ScheduleRequest is the body of PUT /schedule. Omitted fields keep their stored value.
type ScheduleRequest struct {
	Schedule   *string `json:"schedule"`
	Timezone   *string `json:"timezone"`
	PayoutMode *string `json:"payout_mode"`
}

// GetPending returns the preview of the next run
func (h *AdminRewardHandler) GetPending(c *gin.Context) {
	preview, err := h.previewer.Pending(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to compute pending rewards", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute pending rewards"})
		return
	}

	c.JSON(http.StatusOK, preview)
}

// TriggerRun enqueues a full run over every reward source
func (h *AdminRewardHandler) TriggerRun(c *gin.Context) {
	job, err := h.runs.EnqueueFullRun(c.Request.Context(), requestedBy(c))
	if err != nil {
		h.logger.Error("Failed to enqueue reward run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue reward run"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"job_id":  job.ID,
	})
}

// TriggerSelectedRun enqueues a run over the operator-selected candidates
func (h *AdminRewardHandler) TriggerSelectedRun(c *gin.Context) {
	var req SelectedRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.runs.EnqueueSelectedRun(c.Request.Context(), requestedBy(c), req.Candidates)
	if err != nil {
		if isCandidateError(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to enqueue selected reward run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to enqueue reward run"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"job_id":  job.ID,
	})
}

// GetRun returns the status and report of a queued run
func (h *AdminRewardHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run ID"})
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), id)
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get run", zap.String("job_id", id.String()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get run"})
		return
	}

	resp := gin.H{
		"id":          job.ID,
		"type":        job.Type,
		"status":      job.Status,
		"created_at":  job.CreatedAt,
		"started_at":  job.StartedAt,
		"finished_at": job.FinishedAt,
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	if job.Result != "" {
		resp["report"] = json.RawMessage(job.Result)
	}
	c.JSON(http.StatusOK, resp)
}

// GetSchedule returns the stored schedule settings and the timer currently installed
func (h *AdminRewardHandler) GetSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduleResponse(c.Request.Context()))
}

// UpdateSchedule validates and stores schedule settings, then re-installs the timer
func (h *AdminRewardHandler) UpdateSchedule(c *gin.Context) {
	var req ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	updates := make(map[string]string)
	if req.Schedule != nil {
		expr := strings.TrimSpace(*req.Schedule)
		if err := jobs.ValidateSchedule(expr); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		updates[settings.KeyRewardSchedule] = expr
	}
	if req.Timezone != nil {
		tz := strings.TrimSpace(*req.Timezone)
		if _, err := time.LoadLocation(tz); err != nil || tz == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid time zone"})
			return
		}
		updates[settings.KeyRewardTimezone] = tz
	}
	if req.PayoutMode != nil {
		mode, ok := rewards.ParsePayoutMode(*req.PayoutMode)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payout_mode must be internal or onchain"})
			return
		}
		updates[settings.KeyRewardPayoutMode] = string(mode)
	}
	if len(updates) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no settings to update"})
		return
	}

	ctx := c.Request.Context()
	for key, value := range updates {
		if err := h.settings.Set(ctx, key, value); err != nil {
			h.logger.Error("Failed to store setting", zap.String("key", key), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update schedule"})
			return
		}
	}

	if err := h.scheduler.Refresh(ctx); err != nil {
		h.logger.Error("Failed to refresh reward timer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "settings saved but the timer could not be refreshed"})
		return
	}

	h.logger.Info("Reward schedule updated",
		zap.String("requested_by", requestedBy(c)),
		zap.Any("updates", updates))

	c.JSON(http.StatusOK, h.scheduleResponse(ctx))
}

func (h *AdminRewardHandler) scheduleResponse(ctx context.Context) gin.H {
	schedule, _ := h.settings.Get(ctx, settings.KeyRewardSchedule, settings.DefaultRewardSchedule)
	timezone, _ := h.settings.Get(ctx, settings.KeyRewardTimezone, settings.DefaultRewardTimezone)
	mode, _ := h.settings.Get(ctx, settings.KeyRewardPayoutMode, settings.DefaultRewardPayoutMode)

	activeExpr, activeTZ := h.scheduler.Schedule()
	resp := gin.H{
		"schedule":    schedule,
		"timezone":    timezone,
		"payout_mode": mode,
		"active": gin.H{
			"schedule": activeExpr,
			"timezone": activeTZ,
		},
	}
	if next, ok := h.scheduler.NextRun(); ok {
		resp["next_run"] = next
	}
	return resp
}

func requestedBy(c *gin.Context) string {
	if email := c.GetString(middleware.ContextEmail); email != "" {
		return email
	}
	if id, ok := c.Get(middleware.ContextUserID); ok {
		if userID, ok := id.(uuid.UUID); ok {
			return userID.String()
		}
	}
	return ""
}

func isCandidateError(err error) bool {
	return errors.Is(err, jobs.ErrNoCandidates) ||
		errors.Is(err, rewards.ErrInvalidAmount) ||
		errors.Is(err, rewards.ErrUnknownSource) ||
		errors.Is(err, rewards.ErrInvalidSourceRef)
}
