/*

This file contains the read-side types describing what the fund holds and what it is worth.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// TokenAmount is a single token leg, e.g. one asset paid out by a withdrawal.
type TokenAmount struct {
	Token  common.Address `json:"token"`
	Amount sdkmath.Int    `json:"amount"`
}

// TokenPosition is one line of the fund's holdings.
type TokenPosition struct {
	Token        common.Address `json:"token"`
	Symbol       string         `json:"symbol,omitempty"`
	Balance      sdkmath.Int    `json:"balance"`
	Value        sdkmath.Int    `json:"value"`  // In accounting asset units, zero when unpriced
	Priced       bool           `json:"priced"` // False when the oracle has no average yet
	WeightBps    uint64         `json:"weight_bps"`
	TargetBps    uint64         `json:"target_bps"`
	IsAccounting bool           `json:"is_accounting,omitempty"`
	DeviationBps uint64         `json:"deviation_bps"`
}

// ShareBalance is one holder's line of the share ledger.
type ShareBalance struct {
	Holder common.Address `json:"holder"`
	Shares sdkmath.Int    `json:"shares"`
}

// FundSummary is a point-in-time view of the fund.
type FundSummary struct {
	Timestamp   time.Time       `json:"timestamp"`
	NAV         sdkmath.Int     `json:"nav"`
	TotalSupply sdkmath.Int     `json:"total_supply"`
	SharePrice  sdkmath.Int     `json:"share_price"` // NAV per 1e18 shares
	Holdings    []TokenPosition `json:"holdings"`
}

// NAVSnapshot is what the agent persists after each cycle.
type NAVSnapshot struct {
	ID              int64           `json:"id" db:"id"`
	CycleID         string          `json:"cycle_id" db:"cycle_id"`
	CycleNumber     uint64          `json:"cycle_number" db:"cycle_number"`
	Timestamp       time.Time       `json:"timestamp" db:"timestamp"`
	NAV             sdkmath.Int     `json:"nav"`
	NAVDisplay      sdkmath.Int     `json:"nav_display"`
	TotalSupply     sdkmath.Int     `json:"total_supply"`
	SharePrice      sdkmath.Int     `json:"share_price"`
	Holdings        []TokenPosition `json:"holdings"`
	MaxDeviationBps uint64          `json:"max_deviation_bps" db:"max_deviation_bps"`
	Rebalanced      bool            `json:"rebalanced" db:"rebalanced"`
	Errors          []string        `json:"errors,omitempty"`
}

// OracleView is a read-only rendering of one token's oracle state.
type OracleView struct {
	Token               common.Address `json:"token"`
	Pool                common.Address `json:"pool"`
	PriceCumulativeLast string         `json:"price_cumulative_last"`
	BlockTimestampLast  uint64         `json:"block_timestamp_last"`
	PriceAverage        string         `json:"price_average"` // UQ112x112
	Priced              bool           `json:"priced"`
}
