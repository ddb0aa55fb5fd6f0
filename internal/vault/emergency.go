package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/types"
)

// EmergencyWithdrawToken rescues a token sent to the fund by mistake. The accounting asset and
// basket tokens belong to shareholders and cannot be taken out this way. Owner only.
func (f *Fund) EmergencyWithdrawToken(ctx context.Context, caller, token, to common.Address, amount sdkmath.Int) error {
	return f.execute(ctx, "emergency_withdraw_token", func(ctx context.Context) error {
		return f.emergencyWithdraw(caller, token, to, amount)
	})
}

// EmergencyWithdrawNative rescues native currency held by the fund. Owner only.
func (f *Fund) EmergencyWithdrawNative(ctx context.Context, caller, to common.Address, amount sdkmath.Int) error {
	return f.execute(ctx, "emergency_withdraw_native", func(ctx context.Context) error {
		return f.emergencyWithdraw(caller, types.NativeCurrency, to, amount)
	})
}

func (f *Fund) emergencyWithdraw(caller, token, to common.Address, amount sdkmath.Int) error {
	if err := f.requireOwner(caller); err != nil {
		return err
	}
	if f.isBasketAsset(token) {
		return errorsmod.Wrapf(types.ErrInvalidArgument, "%s is a fund asset", token.Hex())
	}
	if types.IsZeroAddress(to) {
		return errorsmod.Wrap(types.ErrZeroAddress, "emergency withdrawal recipient")
	}
	if amount.IsNil() || !amount.IsPositive() {
		return errorsmod.Wrap(types.ErrZeroAmount, "emergency withdrawal")
	}
	if err := f.bank.Transfer(token, f.address, to, amount); err != nil {
		return errorsmod.Wrapf(types.ErrInsufficientFunds, "%v", err)
	}
	f.emit(types.EventEmergencyWithdrawal, types.EmergencyWithdrawal{Token: token, To: to, Amount: amount})
	f.logger.Warn().Str("token", token.Hex()).Str("to", to.Hex()).Str("amount", amount.String()).Msg("Emergency withdrawal")
	return nil
}
