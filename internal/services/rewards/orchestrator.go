package rewards

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/revaspay/storefront/internal/metrics"
	"github.com/revaspay/storefront/internal/services/settings"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PeriodLayout formats the payout period in the operator time zone
const PeriodLayout = "2006-01-02"

// ErrAllSourcesFailed is returned by FullRun when no source could be evaluated
var ErrAllSourcesFailed = errors.New("every reward source failed to evaluate")

// SettingsReader is the operator configuration store
type SettingsReader interface {
	Get(ctx context.Context, key, defaultValue string) (string, error)
}

// OrchestratorConfig wires the orchestrator's collaborators
type OrchestratorConfig struct {
	Sources     []Source
	Distributor *Distributor
	Settings    SettingsReader
	Addresses   AddressBook
	Settlements map[PayoutMode]SettlementExecutor
	Clock       clockwork.Clock
	Logger      *zap.Logger
}

// Orchestrator aggregates candidates from every source and drives the distributor over them
type Orchestrator struct {
	sources     []Source
	distributor *Distributor
	settings    SettingsReader
	addresses   AddressBook
	settlements map[PayoutMode]SettlementExecutor
	clock       clockwork.Clock
	logger      *zap.Logger
}

// NewOrchestrator creates an orchestrator. Missing settlement executors default to InternalSettlement.
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	settlements := map[PayoutMode]SettlementExecutor{
		PayoutModeInternal: InternalSettlement{},
		PayoutModeOnChain:  InternalSettlement{},
	}
	for mode, exec := range cfg.Settlements {
		settlements[mode] = exec
	}
	return &Orchestrator{
		sources:     cfg.Sources,
		distributor: cfg.Distributor,
		settings:    cfg.Settings,
		addresses:   cfg.Addresses,
		settlements: settlements,
		clock:       cfg.Clock,
		logger:      cfg.Logger,
	}
}

// Pending evaluates every source without applying anything
func (o *Orchestrator) Pending(ctx context.Context) (*Preview, error) {
	run := o.newRun(ctx, TriggerManual)
	candidates, sourceErrors := o.evaluate(ctx, run)
	o.attachAddresses(ctx, candidates)

	if candidates == nil {
		candidates = []PendingReward{}
	}
	return &Preview{
		Period:       run.Period,
		Candidates:   candidates,
		SourceErrors: sourceErrors,
	}, nil
}

// FullRun evaluates every source and applies each candidate in source order.
// Candidate failures are recorded in the report and never abort the run.
func (o *Orchestrator) FullRun(ctx context.Context, trigger Trigger) (*RunReport, error) {
	run := o.newRun(ctx, trigger)
	report := o.startReport(run)

	candidates, sourceErrors := o.evaluate(ctx, run)
	report.SourceErrors = sourceErrors
	o.attachAddresses(ctx, candidates)

	o.distribute(ctx, run, candidates, report)

	if len(o.sources) > 0 && len(sourceErrors) == len(o.sources) {
		return report, ErrAllSourcesFailed
	}
	return report, nil
}

// SelectedRun applies a caller-supplied candidate list without evaluating the sources.
// Each candidate is dispatched to the source named by its SourceType.
func (o *Orchestrator) SelectedRun(ctx context.Context, candidates []PendingReward) (*RunReport, error) {
	run := o.newRun(ctx, TriggerSelected)
	report := o.startReport(run)

	// Stored addresses take precedence over anything the caller sent.
	selected := make([]PendingReward, len(candidates))
	copy(selected, candidates)
	for i := range selected {
		selected[i].WalletAddress = nil
	}
	o.attachAddresses(ctx, selected)

	o.distribute(ctx, run, selected, report)
	return report, nil
}

func (o *Orchestrator) newRun(ctx context.Context, trigger Trigger) Run {
	tz := o.setting(ctx, settings.KeyRewardTimezone, settings.DefaultRewardTimezone)
	loc, err := time.LoadLocation(tz)
	if err != nil {
		o.logger.Warn("Invalid reward time zone, falling back to default",
			zap.String("timezone", tz),
			zap.Error(err))
		loc = time.UTC
	}

	rawMode := o.setting(ctx, settings.KeyRewardPayoutMode, settings.DefaultRewardPayoutMode)
	mode, ok := ParsePayoutMode(rawMode)
	if !ok {
		o.logger.Warn("Unknown payout mode, falling back to internal", zap.String("mode", rawMode))
	}

	now := o.clock.Now().In(loc)
	return Run{
		ID:      uuid.New(),
		Trigger: trigger,
		Mode:    mode,
		Now:     now,
		Period:  now.Format(PeriodLayout),
	}
}

func (o *Orchestrator) setting(ctx context.Context, key, def string) string {
	if o.settings == nil {
		return def
	}
	value, err := o.settings.Get(ctx, key, def)
	if err != nil {
		o.logger.Warn("Failed to read setting, using default",
			zap.String("key", key),
			zap.Error(err))
		return def
	}
	return value
}

// evaluate runs every source concurrently and concatenates their output in registration order
func (o *Orchestrator) evaluate(ctx context.Context, run Run) ([]PendingReward, []SourceError) {
	results := make([][]PendingReward, len(o.sources))
	errs := make([]error, len(o.sources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range o.sources {
		i, src := i, src
		g.Go(func() error {
			candidates, err := src.Evaluate(gctx, run)
			if err != nil {
				errs[i] = err
				return nil
			}
			results[i] = candidates
			return nil
		})
	}
	_ = g.Wait()

	var candidates []PendingReward
	var sourceErrors []SourceError
	for i, src := range o.sources {
		if errs[i] != nil {
			o.logger.Error("Reward source failed to evaluate",
				zap.String("source_type", string(src.Type())),
				zap.String("period", run.Period),
				zap.Error(errs[i]))
			sourceErrors = append(sourceErrors, SourceError{Source: src.Type(), Error: errs[i].Error()})
			continue
		}
		for _, c := range results[i] {
			if !c.Amount.IsPositive() {
				continue
			}
			candidates = append(candidates, c)
		}
	}
	return candidates, sourceErrors
}

func (o *Orchestrator) attachAddresses(ctx context.Context, candidates []PendingReward) {
	if o.addresses == nil || len(candidates) == 0 {
		return
	}

	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, c := range candidates {
		if !seen[c.UserID] {
			seen[c.UserID] = true
			ids = append(ids, c.UserID)
		}
	}

	addresses, err := o.addresses.WalletAddresses(ctx, ids)
	if err != nil {
		o.logger.Warn("Failed to load wallet addresses", zap.Error(err))
		return
	}
	for i := range candidates {
		if addr, ok := addresses[candidates[i].UserID]; ok {
			addr := addr
			candidates[i].WalletAddress = &addr
		}
	}
}

func (o *Orchestrator) startReport(run Run) *RunReport {
	return &RunReport{
		ID:        run.ID,
		Trigger:   run.Trigger,
		Mode:      run.Mode,
		Period:    run.Period,
		Credited:  decimal.Zero,
		StartedAt: o.clock.Now(),
	}
}

func (o *Orchestrator) distribute(ctx context.Context, run Run, candidates []PendingReward, report *RunReport) {
	start := o.clock.Now()
	o.logger.Info("Starting reward distribution run",
		zap.String("run_id", run.ID.String()),
		zap.String("trigger", string(run.Trigger)),
		zap.String("mode", string(run.Mode)),
		zap.String("period", run.Period),
		zap.Int("candidates", len(candidates)))

	report.Candidates = len(candidates)
	var applied []Applied

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			o.logger.Warn("Distribution run interrupted",
				zap.String("run_id", run.ID.String()),
				zap.Error(err))
			break
		}

		result, err := o.distributor.Apply(ctx, run, c)
		switch {
		case errors.Is(err, ErrAlreadyPaid):
			report.Skipped++
			metrics.RewardsSkippedTotal.WithLabelValues(string(c.SourceType)).Inc()
			o.logger.Info("Reward already paid for period",
				zap.String("user_id", c.UserID.String()),
				zap.String("source_type", string(c.SourceType)),
				zap.String("source_ref", c.SourceRef),
				zap.String("period", run.Period))
		case err != nil:
			report.Failed++
			report.Failures = append(report.Failures, CandidateFailure{
				UserID:     c.UserID,
				SourceType: c.SourceType,
				SourceRef:  c.SourceRef,
				Error:      err.Error(),
			})
			metrics.RewardsFailedTotal.WithLabelValues(string(c.SourceType), failureReason(err)).Inc()
			o.logger.Error("Failed to apply reward",
				zap.String("user_id", c.UserID.String()),
				zap.String("source_type", string(c.SourceType)),
				zap.String("source_ref", c.SourceRef),
				zap.String("period", run.Period),
				zap.String("amount", c.Amount.String()),
				zap.Error(err))
		default:
			report.Applied++
			report.Credited = report.Credited.Add(c.Amount)
			applied = append(applied, *result)
			metrics.RewardsAppliedTotal.WithLabelValues(string(c.SourceType)).Inc()
			metrics.RewardsAmountTotal.WithLabelValues(string(c.SourceType)).Add(c.Amount.InexactFloat64())
		}
	}

	if len(applied) > 0 {
		exec := o.settlements[run.Mode]
		if err := exec.Settle(ctx, run, applied); err != nil {
			o.logger.Error("Settlement failed",
				zap.String("run_id", run.ID.String()),
				zap.String("mode", string(run.Mode)),
				zap.Error(err))
		}
	}

	report.FinishedAt = o.clock.Now()
	status := "completed"
	if report.Failed > 0 || len(report.SourceErrors) > 0 {
		status = "partial"
	}
	metrics.RewardRunsTotal.WithLabelValues(string(run.Trigger), status).Inc()
	metrics.RewardRunDuration.WithLabelValues(string(run.Trigger)).Observe(report.FinishedAt.Sub(start).Seconds())

	o.logger.Info("Reward distribution run finished",
		zap.String("run_id", run.ID.String()),
		zap.String("status", status),
		zap.Int("applied", report.Applied),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.String("credited", report.Credited.String()))
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnknownSource), errors.Is(err, ErrInvalidSourceRef):
		return "invalid"
	case errors.Is(err, ErrRewardCapExceeded):
		return "cap_exceeded"
	case errors.Is(err, ErrAmountMismatch):
		return "amount_mismatch"
	default:
		return "error"
	}
}
