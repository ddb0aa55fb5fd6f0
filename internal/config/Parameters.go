/*

This file contains the default protocol parameters of a fund.

Amounts are in base units of the accounting asset (WETH, 18 decimals). A fund YAML file may override the
tunable values; the share floors are fixed.

*/

package config

import (
	"time"

	sdkmath "cosmossdk.io/math"

	"github.com/whackrock/fund/internal/types"
)

// DefaultFundParameters are used for every fund unless the fund file overrides them.
var DefaultFundParameters = types.FundParameters{
	MinDeposit: sdkmath.NewIntWithDecimal(1, 15), // 0.001 WETH.
	// Rationale: below this a deposit costs more to rebalance than it is worth.

	MinInitialDeposit: sdkmath.NewIntWithDecimal(1, 16), // 0.01 WETH.
	// Rationale: the first deposit sets the share price. Keeping it meaningfully above the
	// regular floor makes share-price manipulation through a dust first deposit expensive.

	MinimumLiquidity: sdkmath.NewInt(1000), // 1000 wei of shares.
	// Rationale: same floor Uniswap V2 applies to initial LP tokens.

	RebalanceThresholdBps: 100, // 1% absolute weight deviation.
	// Rationale: tighter thresholds trade the basket on every deposit and pay the 0.3% pool fee for nothing.

	SlippageToleranceBps: 100, // 1% below the router quote.

	MinTWAPPeriod: 10 * time.Minute,
	// Rationale: a manipulated pool price must be held for at least this long to move valuations.

	SwapDeadlineOffset: 5 * time.Minute,

	MaxAumFeeBps: 1000, // 10% per year.
}
