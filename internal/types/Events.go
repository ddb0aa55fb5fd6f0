/*

Every state change of the fund is announced through one of these events. Events are buffered during an
operation and only delivered when the operation commits.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// EventType names a fund event.
type EventType string

const (
	EventAgentUpdated         EventType = "AGENT_UPDATED"
	EventTargetWeightsUpdated EventType = "TARGET_WEIGHTS_UPDATED"
	EventRebalanceCheck       EventType = "REBALANCE_CHECK"
	EventRebalanceSkipped     EventType = "REBALANCE_SKIPPED"
	EventRebalanceCycle       EventType = "REBALANCE_CYCLE"
	EventSwapExecuted         EventType = "SWAP_EXECUTED"
	EventDeposit              EventType = "DEPOSIT"
	EventWithdrawal           EventType = "WITHDRAWAL"
	EventFeesCollected        EventType = "FEES_COLLECTED"
	EventEmergencyWithdrawal  EventType = "EMERGENCY_WITHDRAWAL"
	EventOracleUpdated        EventType = "ORACLE_UPDATED"
	EventPoolSet              EventType = "POOL_SET"
)

// Event is the envelope delivered to event sinks.
type Event struct {
	ID          string      `json:"id"`           // uuid
	OperationID string      `json:"operation_id"` // uuid shared by all events of one operation
	Type        EventType   `json:"type"`
	Timestamp   time.Time   `json:"timestamp"` // Block time
	Payload     interface{} `json:"payload"`
}

type AgentUpdated struct {
	OldAgent common.Address `json:"old_agent"`
	NewAgent common.Address `json:"new_agent"`
}

type TargetWeightsUpdated struct {
	Tokens  []common.Address `json:"tokens"`
	Weights []uint64         `json:"weights"`
}

type RebalanceCheck struct {
	NeedsRebalance  bool        `json:"needs_rebalance"`
	MaxDeviationBps uint64      `json:"max_deviation_bps"`
	NAV             sdkmath.Int `json:"nav"`
}

type RebalanceSkipped struct {
	Reason string `json:"reason"`
}

type RebalanceCycle struct {
	NAVBefore sdkmath.Int `json:"nav_before"`
	NAVAfter  sdkmath.Int `json:"nav_after"`
	Swaps     int         `json:"swaps"`
}

type SwapExecuted struct {
	TokenIn      common.Address `json:"token_in"`
	TokenOut     common.Address `json:"token_out"`
	AmountIn     sdkmath.Int    `json:"amount_in"`
	AmountOut    sdkmath.Int    `json:"amount_out"`
	MinAmountOut sdkmath.Int    `json:"min_amount_out"`
}

type Deposit struct {
	Depositor    common.Address `json:"depositor"`
	Receiver     common.Address `json:"receiver"`
	Amount       sdkmath.Int    `json:"amount"`
	Shares       sdkmath.Int    `json:"shares"`
	NAVBefore    sdkmath.Int    `json:"nav_before"`
	SupplyBefore sdkmath.Int    `json:"supply_before"`
}

type Withdrawal struct {
	Caller       common.Address `json:"caller"`
	Owner        common.Address `json:"owner"`
	Receiver     common.Address `json:"receiver"`
	Shares       sdkmath.Int    `json:"shares"`
	Amounts      []TokenAmount  `json:"amounts"`
	NAVBefore    sdkmath.Int    `json:"nav_before"`
	SupplyBefore sdkmath.Int    `json:"supply_before"`
}

type FeesCollected struct {
	AgentShares    sdkmath.Int `json:"agent_shares"`
	ProtocolShares sdkmath.Int `json:"protocol_shares"`
	FeeValue       sdkmath.Int `json:"fee_value"`
	NAV            sdkmath.Int `json:"nav"`
	SupplyBefore   sdkmath.Int `json:"supply_before"`
	ElapsedSeconds uint64      `json:"elapsed_seconds"`
}

type EmergencyWithdrawal struct {
	Token  common.Address `json:"token"`
	To     common.Address `json:"to"`
	Amount sdkmath.Int    `json:"amount"`
}

type OracleUpdated struct {
	Token        common.Address `json:"token"`
	PriceAverage string         `json:"price_average"`
	Elapsed      uint64         `json:"elapsed_seconds"`
}

type PoolSet struct {
	Token common.Address `json:"token"`
	Pool  common.Address `json:"pool"`
}

// SwapParams describes one exact-input swap through the router.
type SwapParams struct {
	AmountIn     sdkmath.Int
	MinAmountOut sdkmath.Int
	Route        []common.Address
	Sender       common.Address
	Recipient    common.Address
	Deadline     time.Time
}
