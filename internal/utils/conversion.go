/*
This file contains common utility functions for converting between base-unit integers, human-readable
decimals and the 256-bit words used by the oracle and the pools.
*/

package utils

import (
	"errors"
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInvalidPrecision = errors.New("precision is invalid")
	ErrAmountNil        = errors.New("amount is nil")
	ErrAmountNegative   = errors.New("amount is negative")
	ErrNotFinite        = errors.New("value is not finite")
	ErrOverflow         = errors.New("value does not fit in 256 bits")
)

const maxPrecision = 36

// SDKIntToDecimal renders a base-unit amount as a decimal token amount, e.g. 1.5e18 wei -> 1.5.
func SDKIntToDecimal(amount sdkmath.Int, precision int) (decimal.Decimal, error) {
	if precision < 0 || precision > maxPrecision {
		return decimal.Zero, fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, maxPrecision)
	}
	if amount.IsNil() {
		return decimal.Zero, ErrAmountNil
	}
	return decimal.NewFromBigInt(amount.BigInt(), int32(-precision)), nil
}

// DecimalToSDKInt converts a decimal token amount to base units, truncating below the token's precision.
func DecimalToSDKInt(amount decimal.Decimal, precision int) (sdkmath.Int, error) {
	if precision < 0 || precision > maxPrecision {
		return sdkmath.ZeroInt(), fmt.Errorf("%w: %d (must be between 0 and %d)", ErrInvalidPrecision, precision, maxPrecision)
	}
	if amount.IsNegative() {
		return sdkmath.ZeroInt(), ErrAmountNegative
	}

	base := amount.Shift(int32(precision)).Truncate(0).BigInt()
	if base.BitLen() > 256 {
		return sdkmath.ZeroInt(), ErrOverflow
	}
	return sdkmath.NewIntFromBigInt(base), nil
}

// ParseAmount parses a human-readable amount such as "12.5" into base units.
func ParseAmount(s string, precision int) (sdkmath.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return sdkmath.ZeroInt(), fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return DecimalToSDKInt(d, precision)
}

// SDKIntToFloat64 converts an SDK Int to float64. Only meant for metrics and display.
func SDKIntToFloat64(amount sdkmath.Int, precision int) (float64, error) {
	d, err := SDKIntToDecimal(amount, precision)
	if err != nil {
		return 0, err
	}
	if amount.IsNegative() {
		return 0, ErrAmountNegative
	}

	f, _ := d.Float64()
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: result is %f", ErrNotFinite, f)
	}
	return f, nil
}

// SDKIntToU256 converts a non-negative SDK Int to a 256-bit word.
func SDKIntToU256(amount sdkmath.Int) (*uint256.Int, error) {
	if amount.IsNil() {
		return nil, ErrAmountNil
	}
	if amount.IsNegative() {
		return nil, ErrAmountNegative
	}
	v, overflow := uint256.FromBig(amount.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return v, nil
}

// U256ToSDKInt converts a 256-bit word to an SDK Int.
func U256ToSDKInt(v *uint256.Int) sdkmath.Int {
	if v == nil {
		return sdkmath.ZeroInt()
	}
	return sdkmath.NewIntFromBigInt(v.ToBig())
}
