package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/types"
)

// Deposit takes amount of the accounting asset from caller and mints shares to receiver at the
// pre-deposit NAV per share. It returns the shares minted.
func (f *Fund) Deposit(ctx context.Context, caller common.Address, amount sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	minted := sdkmath.ZeroInt()
	err := f.execute(ctx, "deposit", func(ctx context.Context) error {
		var err error
		minted, err = f.deposit(ctx, caller, amount, receiver)
		return err
	})
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return minted, nil
}

func (f *Fund) deposit(ctx context.Context, caller common.Address, amount sdkmath.Int, receiver common.Address) (sdkmath.Int, error) {
	if amount.IsNil() || amount.LT(f.params.MinDeposit) {
		return sdkmath.Int{}, errorsmod.Wrapf(types.ErrInvalidArgument, "deposit %s below minimum %s", amount, f.params.MinDeposit)
	}
	if types.IsZeroAddress(receiver) {
		return sdkmath.Int{}, errorsmod.Wrap(types.ErrZeroAddress, "deposit receiver")
	}

	if err := f.refreshOracles(); err != nil {
		return sdkmath.Int{}, err
	}

	navBefore, err := f.totalNAV()
	if err != nil {
		return sdkmath.Int{}, err
	}
	supplyBefore := f.shares.TotalSupply()

	shares, first, err := f.sharesForDeposit(amount, navBefore, supplyBefore)
	if err != nil {
		return sdkmath.Int{}, err
	}

	if err := f.bank.Transfer(f.accountingAsset, caller, f.address, amount); err != nil {
		return sdkmath.Int{}, errorsmod.Wrapf(types.ErrInsufficientFunds, "pull deposit: %v", err)
	}
	if err := f.shares.Mint(receiver, shares); err != nil {
		return sdkmath.Int{}, err
	}

	if _, err := f.rebalanceIfNeeded(ctx, first); err != nil {
		return sdkmath.Int{}, err
	}

	f.emit(types.EventDeposit, types.Deposit{
		Depositor:    caller,
		Receiver:     receiver,
		Amount:       amount,
		Shares:       shares,
		NAVBefore:    navBefore,
		SupplyBefore: supplyBefore,
	})
	f.logger.Info().
		Str("depositor", caller.Hex()).
		Str("amount", amount.String()).
		Str("shares", shares.String()).
		Bool("first", first).
		Msg("Deposit accepted")
	return shares, nil
}

// sharesForDeposit prices a deposit. The first deposit mints one share per unit, at least
// MinimumLiquidity; later deposits mint amount * supply / nav, rounded down.
func (f *Fund) sharesForDeposit(amount, nav, supply sdkmath.Int) (sdkmath.Int, bool, error) {
	if supply.IsZero() {
		if amount.LT(f.params.MinInitialDeposit) {
			return sdkmath.Int{}, true, errorsmod.Wrapf(types.ErrInvalidArgument, "first deposit %s below minimum %s", amount, f.params.MinInitialDeposit)
		}
		return sdkmath.MaxInt(amount, f.params.MinimumLiquidity), true, nil
	}
	if nav.IsZero() {
		return sdkmath.Int{}, false, types.ErrZeroNavWithSupply
	}
	shares := amount.Mul(supply).Quo(nav)
	if shares.IsZero() {
		return sdkmath.Int{}, false, errorsmod.Wrapf(types.ErrInvalidArgument, "deposit %s mints no shares", amount)
	}
	return shares, false, nil
}
