package vault

import (
	"context"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/types"
)

// TokenBank is the token ledger the fund holds its assets in. Snapshot, RevertToSnapshot and Commit
// bracket every fund operation so that a failed operation leaves no trace.
type TokenBank interface {
	BalanceOf(token, holder common.Address) sdkmath.Int
	Transfer(token, from, to common.Address, amount sdkmath.Int) error
	Snapshot() int
	RevertToSnapshot(id int) error
	Commit(id int) error
}

// Clock returns the current block time.
type Clock interface {
	Now() time.Time
}

// SwapRouter quotes and executes exact-input swaps. The fund trusts the router with the tokens of
// each swap it submits.
type SwapRouter interface {
	// Quote returns the amounts along route for amountIn, the last one being the output.
	Quote(ctx context.Context, amountIn sdkmath.Int, route []common.Address) ([]sdkmath.Int, error)

	// SwapExactIn sells p.AmountIn of p.Route[0] held by p.Sender. It fails when the output would be
	// below p.MinAmountOut or the block time is past p.Deadline.
	SwapExactIn(ctx context.Context, p types.SwapParams) ([]sdkmath.Int, error)
}

// EventSink receives committed fund events in order.
type EventSink interface {
	Publish(ctx context.Context, ev types.Event) error
}
