package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/types"
)

// Withdraw burns shares of owner and pays receiver the same fraction of every asset the fund
// holds. A caller other than owner spends owner's share allowance. Returns the non-zero legs paid.
func (f *Fund) Withdraw(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) ([]types.TokenAmount, error) {
	var paid []types.TokenAmount
	err := f.execute(ctx, "withdraw", func(ctx context.Context) error {
		var err error
		paid, err = f.withdraw(ctx, caller, shares, receiver, owner)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (f *Fund) withdraw(ctx context.Context, caller common.Address, shares sdkmath.Int, receiver, owner common.Address) ([]types.TokenAmount, error) {
	if shares.IsNil() || !shares.IsPositive() {
		return nil, errorsmod.Wrap(types.ErrZeroAmount, "withdraw shares")
	}
	if types.IsZeroAddress(receiver) || types.IsZeroAddress(owner) {
		return nil, errorsmod.Wrap(types.ErrZeroAddress, "withdraw receiver or owner")
	}
	if caller != owner {
		if err := f.shares.SpendAllowance(owner, caller, shares); err != nil {
			return nil, err
		}
	}
	if bal := f.shares.BalanceOf(owner); bal.LT(shares) {
		return nil, errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s, withdrawing %s", owner.Hex(), bal, shares)
	}

	navBefore, err := f.totalNAV()
	if err != nil {
		return nil, err
	}
	supplyBefore := f.shares.TotalSupply()

	tokens := append([]common.Address{f.accountingAsset}, f.allowedTokens...)
	var paid []types.TokenAmount
	for _, token := range tokens {
		amount := f.bank.BalanceOf(token, f.address).Mul(shares).Quo(supplyBefore)
		if amount.IsZero() {
			continue
		}
		if err := f.bank.Transfer(token, f.address, receiver, amount); err != nil {
			return nil, errorsmod.Wrapf(types.ErrInvalidState, "pay %s: %v", token.Hex(), err)
		}
		paid = append(paid, types.TokenAmount{Token: token, Amount: amount})
	}

	if err := f.shares.Burn(owner, shares); err != nil {
		return nil, err
	}

	if f.shares.TotalSupply().IsPositive() {
		if _, err := f.rebalanceIfNeeded(ctx, false); err != nil {
			return nil, err
		}
	}

	f.emit(types.EventWithdrawal, types.Withdrawal{
		Caller:       caller,
		Owner:        owner,
		Receiver:     receiver,
		Shares:       shares,
		Amounts:      paid,
		NAVBefore:    navBefore,
		SupplyBefore: supplyBefore,
	})
	f.logger.Info().
		Str("owner", owner.Hex()).
		Str("shares", shares.String()).
		Int("legs", len(paid)).
		Msg("Withdrawal paid")
	return paid, nil
}
