package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

// FundParameters are the protocol constants a fund is created with.
type FundParameters struct {
	MinDeposit            sdkmath.Int   `json:"min_deposit"`             // Floor for every deposit, accounting asset units
	MinInitialDeposit     sdkmath.Int   `json:"min_initial_deposit"`     // Floor for the first deposit
	MinimumLiquidity      sdkmath.Int   `json:"minimum_liquidity"`       // Floor on shares minted by the first deposit
	RebalanceThresholdBps uint64        `json:"rebalance_threshold_bps"` // Max tolerated |actual - target| weight
	SlippageToleranceBps  uint64        `json:"slippage_tolerance_bps"`  // Applied to router quotes
	MinTWAPPeriod         time.Duration `json:"min_twap_period"`         // Minimum oracle averaging window
	SwapDeadlineOffset    time.Duration `json:"swap_deadline_offset"`    // Added to block time for swap deadlines
	MaxAumFeeBps          uint64        `json:"max_aum_fee_bps"`         // Upper bound on the annual AUM fee
}
