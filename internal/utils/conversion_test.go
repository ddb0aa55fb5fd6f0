package utils

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	require := require.New(t)

	amt, err := ParseAmount("1.5", 18)
	require.NoError(err)
	require.Equal("1500000000000000000", amt.String())

	// Digits below the precision are truncated.
	amt, err = ParseAmount("0.1234567", 6)
	require.NoError(err)
	require.Equal("123456", amt.String())

	_, err = ParseAmount("-1", 18)
	require.ErrorIs(err, ErrAmountNegative)

	_, err = ParseAmount("abc", 18)
	require.Error(err)

	_, err = ParseAmount("1", 40)
	require.ErrorIs(err, ErrInvalidPrecision)
}

func TestSDKIntToDecimal(t *testing.T) {
	d, err := SDKIntToDecimal(sdkmath.NewInt(2_500_000), 6)
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.RequireFromString("2.5")))

	_, err = SDKIntToDecimal(sdkmath.Int{}, 6)
	require.ErrorIs(t, err, ErrAmountNil)
}

func TestSDKIntToFloat64(t *testing.T) {
	f, err := SDKIntToFloat64(sdkmath.NewInt(1_250_000), 6)
	require.NoError(t, err)
	require.InDelta(t, 1.25, f, 1e-12)

	_, err = SDKIntToFloat64(sdkmath.NewInt(-1), 6)
	require.ErrorIs(t, err, ErrAmountNegative)
}

func TestU256RoundTrip(t *testing.T) {
	require := require.New(t)

	in := sdkmath.NewIntWithDecimal(123, 30)
	word, err := SDKIntToU256(in)
	require.NoError(err)
	require.True(U256ToSDKInt(word).Equal(in))

	require.True(U256ToSDKInt(nil).IsZero())
	require.Equal("7", U256ToSDKInt(uint256.NewInt(7)).String())

	_, err = SDKIntToU256(sdkmath.NewInt(-5))
	require.ErrorIs(err, ErrAmountNegative)
}
