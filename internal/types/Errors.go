package types

import (
	errorsmod "cosmossdk.io/errors"
)

// ModuleName is the error codespace of the fund engine.
const ModuleName = "fund"

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidArgument   = errorsmod.Register(ModuleName, 2, "invalid argument")
	ErrUnauthorized      = errorsmod.Register(ModuleName, 3, "unauthorized")
	ErrInsufficientFunds = errorsmod.Register(ModuleName, 4, "insufficient funds")
	ErrInvalidState      = errorsmod.Register(ModuleName, 5, "invalid state")
	ErrPriceUnavailable  = errorsmod.Register(ModuleName, 6, "price unavailable")
	ErrOracleNotReady    = errorsmod.Register(ModuleName, 7, "oracle not ready")
	ErrSwapFailed        = errorsmod.Register(ModuleName, 8, "swap failed")
	ErrInvalidPool       = errorsmod.Register(ModuleName, 9, "invalid pool")
	ErrOracleInitFailed  = errorsmod.Register(ModuleName, 10, "oracle initialization failed")
	ErrReentrancy        = errorsmod.Register(ModuleName, 11, "reentrant call")
)

// Specific failures, each classified under one of the kinds above.
var (
	ErrTwapNotReady          = errorsmod.Wrap(ErrOracleNotReady, "TWAP period not elapsed")
	ErrZeroNavWithSupply     = errorsmod.Wrap(ErrInvalidState, "zero NAV with non-zero share supply")
	ErrInsufficientAllowance = errorsmod.Wrap(ErrInsufficientFunds, "insufficient share allowance")
	ErrInsufficientShares    = errorsmod.Wrap(ErrInsufficientFunds, "insufficient shares")
	ErrZeroAddress           = errorsmod.Wrap(ErrInvalidArgument, "zero address")
	ErrZeroAmount            = errorsmod.Wrap(ErrInvalidArgument, "zero amount")
)

// KindOf returns the registered kind code of err, 1 for unclassified errors and 0 for nil.
func KindOf(err error) uint32 {
	_, code, _ := errorsmod.ABCIInfo(err, false)
	return code
}
