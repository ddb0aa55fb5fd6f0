// Package agent runs the fund's agent duties on a schedule: rebalance cycles (oracle refresh and
// deviation check included), AUM fee collection and NAV snapshots.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/whackrock/fund/internal/logger"
	"github.com/whackrock/fund/internal/metrics"
	"github.com/whackrock/fund/internal/types"
)

// Fund is the part of the fund the agent operates.
type Fund interface {
	Agent() common.Address
	NeedsRebalance() (bool, uint64, error)
	TriggerRebalance(ctx context.Context, caller common.Address) (bool, error)
	CollectFee(ctx context.Context, caller common.Address) error
	Summary() (types.FundSummary, error)
	NAVInDisplayCurrency(ctx context.Context) (sdkmath.Int, error)
}

// SnapshotStore persists cycle snapshots and numbers cycles across restarts.
type SnapshotStore interface {
	IncrementCycleNumber(ctx context.Context) (uint64, error)
	SaveNAVSnapshot(ctx context.Context, snap types.NAVSnapshot) (int64, error)
}

// Schedule holds six-field cron specs (seconds first) or descriptors such as "@every 15m". An
// empty spec disables the job.
type Schedule struct {
	Rebalance string // Refreshes the oracles, so runs must be at least the TWAP period apart
	Fees      string
	Snapshot  string
}

var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses one job spec the way the agent does.
func ParseSchedule(spec string) (cron.Schedule, error) {
	return specParser.Parse(spec)
}

// checkSpacing fails when two consecutive runs of sched within a day are closer than min.
func checkSpacing(sched cron.Schedule, min time.Duration) error {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	prev := sched.Next(start)
	for i := 0; i < 1000 && prev.Before(start.Add(24*time.Hour)); i++ {
		next := sched.Next(prev)
		if next.IsZero() {
			return nil
		}
		if gap := next.Sub(prev); gap < min {
			return fmt.Errorf("runs at %s and %s are %s apart, need at least %s",
				prev.Format("15:04:05"), next.Format("15:04:05"), gap, min)
		}
		prev = next
	}
	return nil
}

// Config holds the configuration for creating a new Agent instance
type Config struct {
	Fund       Fund
	Caller     common.Address // Account the agent acts as, defaults to the fund's current agent
	Store      SnapshotStore  // Optional
	Metrics    *metrics.Registry
	Schedule   Schedule
	JobTimeout time.Duration

	// MinCycleInterval is the fund's TWAP period. Rebalance runs closer together than this would
	// find the oracles not ready.
	MinCycleInterval time.Duration
}

// Agent serializes its jobs: a slow rebalance delays the next snapshot instead of racing it.
type Agent struct {
	logger  zerolog.Logger
	fund    Fund
	caller  common.Address
	store   SnapshotStore
	metrics *metrics.Registry
	cron    *cron.Cron
	timeout time.Duration

	mu         sync.Mutex
	cycleCount atomic.Uint64
}

// Job results recorded in metrics.
const (
	resultOK      = "ok"
	resultSkipped = "skipped"
	resultError   = "error"
)

func validateAgentConfig(cfg Config) error {
	if cfg.Fund == nil {
		return errors.New("fund cannot be nil")
	}
	if cfg.JobTimeout < 0 {
		return errors.New("job timeout cannot be negative")
	}
	if cfg.Schedule.Rebalance != "" && cfg.MinCycleInterval > 0 {
		sched, err := ParseSchedule(cfg.Schedule.Rebalance)
		if err != nil {
			return fmt.Errorf("rebalance schedule: %w", err)
		}
		if err := checkSpacing(sched, cfg.MinCycleInterval); err != nil {
			return fmt.Errorf("rebalance schedule %q: %w", cfg.Schedule.Rebalance, err)
		}
	}
	return nil
}

// NewAgent creates an agent and registers its jobs. Nothing runs until Start.
func NewAgent(cfg Config) (*Agent, error) {
	if err := validateAgentConfig(cfg); err != nil {
		return nil, fmt.Errorf("agent configuration validation failed: %w", err)
	}

	a := &Agent{
		logger:  logger.GetForComponent("agent"),
		fund:    cfg.Fund,
		caller:  cfg.Caller,
		store:   cfg.Store,
		metrics: cfg.Metrics,
		cron:    cron.New(cron.WithParser(specParser)),
		timeout: cfg.JobTimeout,
	}
	if a.timeout == 0 {
		a.timeout = time.Minute
	}

	jobs := []struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}{
		{"rebalance", cfg.Schedule.Rebalance, func(ctx context.Context) error { _, err := a.RunCycle(ctx); return err }},
		{"fees", cfg.Schedule.Fees, a.CollectFees},
		{"snapshot", cfg.Schedule.Snapshot, func(ctx context.Context) error { _, err := a.Snapshot(ctx); return err }},
	}
	for _, job := range jobs {
		if job.spec == "" {
			continue
		}
		job := job
		if _, err := a.cron.AddFunc(job.spec, func() { a.runJob(job.name, job.run) }); err != nil {
			return nil, fmt.Errorf("register %s job: %w", job.name, err)
		}
	}

	a.logger.Info().
		Str("caller", a.actor().Hex()).
		Bool("persistent", a.store != nil).
		Int("jobs", len(a.cron.Entries())).
		Msg("Agent created")
	return a, nil
}

// Start runs one cycle immediately, then hands over to the schedule.
func (a *Agent) Start() {
	a.runJob("rebalance", func(ctx context.Context) error { _, err := a.RunCycle(ctx); return err })
	a.cron.Start()
	a.logger.Info().Msg("Agent scheduler started")
}

// Stop stops the schedule and waits for a running job to finish or ctx to expire.
func (a *Agent) Stop(ctx context.Context) {
	done := a.cron.Stop()
	select {
	case <-done.Done():
		a.logger.Info().Msg("Agent scheduler stopped")
	case <-ctx.Done():
		a.logger.Warn().Msg("Agent scheduler stop timed out with a job still running")
	}
}

// runJob runs one job under the agent lock and a timeout, and records its outcome.
func (a *Agent) runJob(name string, run func(ctx context.Context) error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	start := time.Now()
	err := run(ctx)
	result := classify(err)
	a.metrics.ObserveAgentJob(name, result)

	var event *zerolog.Event
	switch result {
	case resultOK:
		event = a.logger.Info()
	case resultSkipped:
		event = a.logger.Info().Err(err)
	default:
		event = a.logger.Error().Err(err)
	}
	event.Str("job", name).Str("result", result).Dur("duration", time.Since(start)).Msg("Agent job finished")
}

// classify treats a run that only hit oracle windows not yet elapsed as skipped, not failed. Any
// other error in the same run makes it a failure.
func classify(err error) string {
	if err == nil {
		return resultOK
	}
	for _, e := range leafErrors(err) {
		if !errors.Is(e, types.ErrOracleNotReady) {
			return resultError
		}
	}
	return resultSkipped
}

// leafErrors flattens errors.Join trees.
func leafErrors(err error) []error {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []error{err}
	}
	var out []error
	for _, e := range joined.Unwrap() {
		out = append(out, leafErrors(e)...)
	}
	return out
}

func (a *Agent) actor() common.Address {
	if !types.IsZeroAddress(a.caller) {
		return a.caller
	}
	return a.fund.Agent()
}

// CollectFees mints the AUM fee accrued since the last collection.
func (a *Agent) CollectFees(ctx context.Context) error {
	return a.fund.CollectFee(ctx, a.actor())
}

// RunCycle asks the fund to refresh its oracles and rebalance if the basket drifted past the
// threshold, all in one operation, then records a NAV snapshot of the result. Step failures are
// collected in the snapshot; the snapshot is saved even when a step failed.
func (a *Agent) RunCycle(ctx context.Context) (types.NAVSnapshot, error) {
	cycleStart := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := a.logger.With().Str("cycle_id", cycleID).Logger()
	cycleLogger.Info().Msg("--- Starting agent cycle ---")

	var stepErrs []error

	rebalanced, err := a.fund.TriggerRebalance(ctx, a.actor())
	switch {
	case errors.Is(err, types.ErrOracleNotReady):
		cycleLogger.Info().Err(err).Msg("Oracle window not elapsed, rebalance check skipped")
		stepErrs = append(stepErrs, fmt.Errorf("rebalance: %w", err))
	case err != nil:
		cycleLogger.Error().Err(err).Msg("Rebalance failed")
		stepErrs = append(stepErrs, fmt.Errorf("rebalance: %w", err))
	case rebalanced:
		cycleLogger.Info().Msg("Basket was off target, rebalanced")
	default:
		cycleLogger.Info().Msg("Basket within threshold")
	}

	snap, err := a.snapshot(ctx, cycleID, rebalanced, stepErrs)
	if err != nil {
		stepErrs = append(stepErrs, err)
	}

	cycleLogger.Info().
		Bool("rebalanced", rebalanced).
		Int("errors", len(stepErrs)).
		Dur("duration", time.Since(cycleStart)).
		Msg("--- Agent cycle completed ---")

	return snap, errors.Join(stepErrs...)
}

// Snapshot records the fund's NAV without trading.
func (a *Agent) Snapshot(ctx context.Context) (types.NAVSnapshot, error) {
	return a.snapshot(ctx, uuid.New().String(), false, nil)
}

func (a *Agent) snapshot(ctx context.Context, cycleID string, rebalanced bool, stepErrs []error) (types.NAVSnapshot, error) {
	number, err := a.nextCycleNumber(ctx)
	if err != nil {
		return types.NAVSnapshot{}, err
	}

	summary, err := a.fund.Summary()
	if err != nil {
		return types.NAVSnapshot{}, fmt.Errorf("fund summary: %w", err)
	}
	_, maxDev, err := a.fund.NeedsRebalance()
	if err != nil {
		stepErrs = append(stepErrs, fmt.Errorf("deviation check: %w", err))
	}

	snap := types.NAVSnapshot{
		CycleID:         cycleID,
		CycleNumber:     number,
		Timestamp:       summary.Timestamp,
		NAV:             summary.NAV,
		TotalSupply:     summary.TotalSupply,
		SharePrice:      summary.SharePrice,
		Holdings:        summary.Holdings,
		MaxDeviationBps: maxDev,
		Rebalanced:      rebalanced,
	}
	if display, err := a.fund.NAVInDisplayCurrency(ctx); err == nil {
		snap.NAVDisplay = display
	}
	for _, e := range stepErrs {
		snap.Errors = append(snap.Errors, e.Error())
	}

	if a.store != nil {
		id, err := a.store.SaveNAVSnapshot(ctx, snap)
		if err != nil {
			return snap, fmt.Errorf("save snapshot: %w", err)
		}
		snap.ID = id
	}

	a.logger.Info().
		Str("cycle_id", cycleID).
		Uint64("cycle", number).
		Str("nav", snap.NAV.String()).
		Str("share_price", snap.SharePrice.String()).
		Msg("NAV snapshot recorded")
	return snap, nil
}

// nextCycleNumber uses the store's counter when there is one, so numbering survives restarts.
func (a *Agent) nextCycleNumber(ctx context.Context) (uint64, error) {
	if a.store == nil {
		return a.cycleCount.Add(1), nil
	}
	n, err := a.store.IncrementCycleNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("increment cycle number: %w", err)
	}
	a.cycleCount.Store(n)
	return n, nil
}

// CycleCount returns the number of the last recorded cycle.
func (a *Agent) CycleCount() uint64 {
	return a.cycleCount.Load()
}
