package vault

import (
	"context"
	"time"

	"github.com/whackrock/fund/internal/planner"
	"github.com/whackrock/fund/internal/types"
)

// rebalanceIfNeeded refreshes the oracles, runs the deviation check and rebalances when any token
// is off target by more than the threshold, or unconditionally when force is set. Callers hold f.mu.
func (f *Fund) rebalanceIfNeeded(ctx context.Context, force bool) (bool, error) {
	if err := f.refreshOracles(); err != nil {
		return false, err
	}
	nav, holdings, err := f.planHoldings()
	if err != nil {
		return false, err
	}
	needs, maxDev := planner.CheckDeviation(nav, holdings, f.params.RebalanceThresholdBps)
	f.emit(types.EventRebalanceCheck, types.RebalanceCheck{NeedsRebalance: needs, MaxDeviationBps: maxDev, NAV: nav})
	if !needs && !force {
		return false, nil
	}
	if err := f.rebalance(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// rebalance sells every overweight token down to target, then spends the accounting asset on
// hand on the underweight tokens. Callers hold f.mu.
func (f *Fund) rebalance(ctx context.Context) error {
	start := time.Now()
	rebalanceLogger := f.logger.With().Str("operation_id", f.operationID).Logger()

	if err := f.refreshOracles(); err != nil {
		return err
	}
	navBefore, holdings, err := f.planHoldings()
	if err != nil {
		return err
	}
	if navBefore.IsZero() {
		f.emit(types.EventRebalanceSkipped, types.RebalanceSkipped{Reason: "zero NAV"})
		rebalanceLogger.Info().Msg("Rebalance skipped, fund holds nothing")
		return nil
	}

	infos, err := planner.BuildInfos(navBefore, holdings)
	if err != nil {
		return err
	}

	swaps := 0
	sells := planner.SellLegs(infos)
	for _, leg := range sells {
		if _, err := f.swap(ctx, leg.Token, f.accountingAsset, leg.AmountIn); err != nil {
			return err
		}
		swaps++
	}

	available := f.bank.BalanceOf(f.accountingAsset, f.address)
	buys := planner.BuyLegs(infos, available)
	for _, leg := range buys {
		if _, err := f.swap(ctx, f.accountingAsset, leg.Token, leg.AmountIn); err != nil {
			return err
		}
		swaps++
	}

	navAfter, err := f.totalNAV()
	if err != nil {
		return err
	}
	f.emit(types.EventRebalanceCycle, types.RebalanceCycle{NAVBefore: navBefore, NAVAfter: navAfter, Swaps: swaps})
	f.metrics.ObserveRebalance(time.Since(start))

	rebalanceLogger.Info().
		Str("nav_before", navBefore.String()).
		Str("nav_after", navAfter.String()).
		Int("sells", len(sells)).
		Int("buys", len(buys)).
		Msg("Rebalance completed")
	return nil
}
