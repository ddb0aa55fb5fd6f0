package vault

import (
	"context"
	"errors"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/planner"
	"github.com/whackrock/fund/internal/types"
)

// swap sells amountIn of tokenIn for tokenOut through the router, accepting no less than the
// router's own quote minus the slippage tolerance. Callers hold f.mu.
func (f *Fund) swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn sdkmath.Int) (sdkmath.Int, error) {
	route := []common.Address{tokenIn, tokenOut}

	quote, err := f.router.Quote(ctx, amountIn, route)
	if err != nil {
		return sdkmath.ZeroInt(), routerError("quote", tokenIn, tokenOut, err)
	}
	if len(quote) == 0 || quote[len(quote)-1].IsZero() {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrSwapFailed, "zero quote for %s %s -> %s", amountIn, tokenIn.Hex(), tokenOut.Hex())
	}
	expected := quote[len(quote)-1]
	minOut := expected.MulRaw(int64(planner.BasisPoints - f.params.SlippageToleranceBps)).QuoRaw(planner.BasisPoints)

	amounts, err := f.router.SwapExactIn(ctx, types.SwapParams{
		AmountIn:     amountIn,
		MinAmountOut: minOut,
		Route:        route,
		Sender:       f.address,
		Recipient:    f.address,
		Deadline:     f.clock.Now().Add(f.params.SwapDeadlineOffset),
	})
	if err != nil {
		return sdkmath.ZeroInt(), routerError("swap", tokenIn, tokenOut, err)
	}
	if len(amounts) == 0 || amounts[len(amounts)-1].IsZero() {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrSwapFailed, "zero output for %s %s -> %s", amountIn, tokenIn.Hex(), tokenOut.Hex())
	}
	out := amounts[len(amounts)-1]
	if out.LT(minOut) {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrSwapFailed, "output %s below minimum %s", out, minOut)
	}

	direction := "buy"
	if tokenOut == f.accountingAsset {
		direction = "sell"
	}
	f.metrics.ObserveSwap(direction)
	f.emit(types.EventSwapExecuted, types.SwapExecuted{
		TokenIn:      tokenIn,
		TokenOut:     tokenOut,
		AmountIn:     amountIn,
		AmountOut:    out,
		MinAmountOut: minOut,
	})
	f.logger.Debug().
		Str("token_in", f.SymbolOf(tokenIn)).
		Str("token_out", f.SymbolOf(tokenOut)).
		Str("amount_in", amountIn.String()).
		Str("amount_out", out.String()).
		Msg("Swap executed")
	return out, nil
}

// routerError classifies a router failure as a failed swap, except re-entrant calls which keep their kind.
func routerError(stage string, tokenIn, tokenOut common.Address, err error) error {
	if errors.Is(err, types.ErrReentrancy) {
		return err
	}
	return errorsmod.Wrapf(types.ErrSwapFailed, "%s %s -> %s: %v", stage, tokenIn.Hex(), tokenOut.Hex(), err)
}
