package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/whackrock/fund/internal/types"
)

func TestFirstDepositRebalancesIntoTargets(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	h.events.Reset()

	shares, err := h.fund.Deposit(h.ctx, alice, e18(10), alice)
	require.NoError(err)
	require.True(shares.Equal(e18(10)), "minted %s", shares)
	require.True(h.fund.BalanceOf(alice).Equal(e18(10)))
	require.True(h.state.BalanceOf(weth, alice).Equal(e18(990)))

	holdings := h.fund.Holdings()
	require.Len(holdings, 3)
	require.InEpsilon(6.0, toFloat(holdings[1].Value), 0.01)
	require.InEpsilon(4.0, toFloat(holdings[2].Value), 0.01)
	require.InDelta(6000, float64(holdings[1].WeightBps), 20)
	require.InDelta(4000, float64(holdings[2].WeightBps), 20)

	evs := h.events.Events()
	require.NotEmpty(evs)
	require.Equal(types.EventDeposit, evs[len(evs)-1].Type)
	for _, ev := range evs {
		require.Equal(evs[0].OperationID, ev.OperationID)
	}
	require.Len(h.events.OfType(types.EventSwapExecuted), 2)
	require.Len(h.events.OfType(types.EventRebalanceCycle), 1)

	dep := h.events.OfType(types.EventDeposit)[0].Payload.(types.Deposit)
	require.True(dep.NAVBefore.IsZero())
	require.True(dep.SupplyBefore.IsZero())
	h.sharesConserved()
}

func TestDepositMintsNoMoreThanProRata(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	_, err := h.fund.Deposit(h.ctx, alice, e18(10), alice)
	require.NoError(err)

	for _, amount := range []sdkmath.Int{e18(1), sdkmath.NewIntWithDecimal(3, 15), e18(7)} {
		nav, err := h.fund.TotalNAV()
		require.NoError(err)
		supply := h.fund.TotalSupply()

		shares, err := h.fund.Deposit(h.ctx, bob, amount, bob)
		require.NoError(err)
		require.True(shares.Equal(amount.Mul(supply).Quo(nav)), "minted %s for %s", shares, amount)
		h.sharesConserved()
	}
}

func TestDepositFloors(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	params := h.fund.Params()

	_, err := h.fund.Deposit(h.ctx, alice, params.MinInitialDeposit.SubRaw(1), alice)
	require.ErrorIs(err, types.ErrInvalidArgument)
	_, err = h.fund.Deposit(h.ctx, alice, params.MinDeposit.SubRaw(1), alice)
	require.ErrorIs(err, types.ErrInvalidArgument)
	require.True(h.fund.TotalSupply().IsZero())

	shares, err := h.fund.Deposit(h.ctx, alice, params.MinInitialDeposit, alice)
	require.NoError(err)
	require.True(shares.Equal(params.MinInitialDeposit))

	// With supply in place only the smaller floor applies.
	_, err = h.fund.Deposit(h.ctx, bob, params.MinDeposit, bob)
	require.NoError(err)
	_, err = h.fund.Deposit(h.ctx, bob, params.MinDeposit.SubRaw(1), bob)
	require.ErrorIs(err, types.ErrInvalidArgument)
}

func TestFirstDepositMintsMinimumLiquidity(t *testing.T) {
	require := require.New(t)
	h := newHarness(t, func(c *Config) {
		c.Params.MinDeposit = sdkmath.NewInt(100)
		c.Params.MinInitialDeposit = sdkmath.NewInt(100)
		c.Params.MinimumLiquidity = sdkmath.NewInt(1000)
	})

	shares, err := h.fund.Deposit(h.ctx, alice, sdkmath.NewInt(100), alice)
	require.NoError(err)
	require.Equal(int64(1000), shares.Int64())
}

func TestDepositRejectsBadInput(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	carol := common.HexToAddress("0x8888888888888888888888888888888888888888")

	_, err := h.fund.Deposit(h.ctx, alice, e18(1), common.Address{})
	require.ErrorIs(err, types.ErrZeroAddress)

	_, err = h.fund.Deposit(h.ctx, carol, e18(1), carol)
	require.ErrorIs(err, types.ErrInsufficientFunds)
	require.True(h.fund.TotalSupply().IsZero())

	_, err = h.fund.Deposit(h.ctx, alice, sdkmath.Int{}, alice)
	require.ErrorIs(err, types.ErrInvalidArgument)
}

func TestDepositWithSupplyButNoValue(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	require.NoError(h.fund.shares.Mint(alice, sdkmath.NewInt(1000)))

	_, err := h.fund.Deposit(h.ctx, bob, e18(1), bob)
	require.ErrorIs(err, types.ErrZeroNavWithSupply)
	require.Equal(uint32(5), types.KindOf(err))
}

func TestDepositInsideTWAPWindowIsRejected(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	h.state.Advance(5 * time.Minute)
	_, err := h.fund.Deposit(h.ctx, alice, e18(1), alice)
	require.ErrorIs(err, types.ErrOracleNotReady)
	require.True(h.state.BalanceOf(weth, alice).Equal(e18(1000)))

	h.state.Advance(5 * time.Minute)
	_, err = h.fund.Deposit(h.ctx, alice, e18(1), alice)
	require.NoError(err)
	require.Len(h.events.OfType(types.EventOracleUpdated), 4)
}
