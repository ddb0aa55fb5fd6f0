package planner

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/whackrock/fund/internal/types"
)

var (
	tokenA = common.HexToAddress("0xaa")
	tokenB = common.HexToAddress("0xbb")
	tokenC = common.HexToAddress("0xcc")
)

func n(v int64) sdkmath.Int { return sdkmath.NewInt(v) }

func TestValidateWeights(t *testing.T) {
	require := require.New(t)

	require.NoError(ValidateWeights([]uint64{6000, 4000}, 2))
	require.NoError(ValidateWeights([]uint64{10000, 0}, 2))

	require.ErrorIs(ValidateWeights([]uint64{6000, 3000}, 2), types.ErrInvalidArgument)
	require.ErrorIs(ValidateWeights([]uint64{10000}, 2), types.ErrInvalidArgument)
	require.ErrorIs(ValidateWeights([]uint64{10001, 0}, 2), types.ErrInvalidArgument)
	require.Equal(uint32(2), types.KindOf(ValidateWeights([]uint64{5000, 5001}, 2)))
}

func TestBuildInfosAndSellLegs(t *testing.T) {
	require := require.New(t)

	// NAV 1000: A holds 80 tokens worth 800 (target 50%), B holds 100 tokens worth 200 (target 50%).
	infos, err := BuildInfos(n(1000), []Holding{
		{Token: tokenA, Balance: n(80), Value: n(800), TargetBps: 5000},
		{Token: tokenB, Balance: n(100), Value: n(200), TargetBps: 5000},
	})
	require.NoError(err)
	require.Equal(int64(500), infos[0].TargetValue.Int64())
	require.Equal(int64(-300), infos[0].Delta.Int64())
	require.Equal(int64(300), infos[1].Delta.Int64())

	sells := SellLegs(infos)
	require.Len(sells, 1)
	require.Equal(tokenA, sells[0].Token)
	require.Equal(int64(30), sells[0].AmountIn.Int64()) // 80 * 300 / 800

	_, err = BuildInfos(sdkmath.ZeroInt(), nil)
	require.ErrorIs(err, types.ErrInvalidState)
}

func TestSellLegIsCappedAtBalance(t *testing.T) {
	infos := []TokenRebalanceInfo{{
		Token: tokenA, Balance: n(10), CurrentValue: n(5), TargetValue: n(0), Delta: n(-50),
	}}
	legs := SellLegs(infos)
	require.Len(t, legs, 1)
	require.Equal(t, int64(10), legs[0].AmountIn.Int64())
}

func TestBuyLegsRationing(t *testing.T) {
	require := require.New(t)
	infos := []TokenRebalanceInfo{
		{Token: tokenA, Delta: n(300)},
		{Token: tokenB, Delta: n(100)},
		{Token: tokenC, Delta: n(-50)},
	}
	require.Equal(int64(400), Demand(infos).Int64())

	// Enough accounting asset: each buy gets its full delta.
	legs := BuyLegs(infos, n(1000))
	require.Len(legs, 2)
	require.Equal(int64(300), legs[0].AmountIn.Int64())
	require.Equal(int64(100), legs[1].AmountIn.Int64())

	// Short: spend pro rata.
	legs = BuyLegs(infos, n(200))
	require.Equal(int64(150), legs[0].AmountIn.Int64())
	require.Equal(int64(50), legs[1].AmountIn.Int64())

	require.Empty(BuyLegs(infos, sdkmath.ZeroInt()))
	require.Empty(BuyLegs([]TokenRebalanceInfo{{Token: tokenA, Delta: n(-1)}}, n(10)))

	// Rounds to zero: dropped.
	legs = BuyLegs([]TokenRebalanceInfo{{Token: tokenA, Delta: n(1)}, {Token: tokenB, Delta: n(1000)}}, n(10))
	require.Len(legs, 1)
	require.Equal(tokenB, legs[0].Token)
}

func TestCheckDeviation(t *testing.T) {
	require := require.New(t)
	holdings := []Holding{
		{Token: tokenA, Value: n(6050), TargetBps: 6000},
		{Token: tokenB, Value: n(3950), TargetBps: 4000},
	}
	needs, maxDev := CheckDeviation(n(10000), holdings, 100)
	require.False(needs)
	require.Equal(uint64(50), maxDev)

	holdings[0].Value = n(6200)
	holdings[1].Value = n(3800)
	needs, maxDev = CheckDeviation(n(10000), holdings, 100)
	require.True(needs)
	require.Equal(uint64(200), maxDev)

	needs, _ = CheckDeviation(sdkmath.ZeroInt(), holdings, 100)
	require.False(needs)

	require.Equal(uint64(0), WeightBps(n(5), sdkmath.ZeroInt()))
	require.Equal(uint64(2500), WeightBps(n(1), n(4)))
}
