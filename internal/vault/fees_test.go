package vault

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/whackrock/fund/internal/types"
)

func TestFeeSharesSplit(t *testing.T) {
	require := require.New(t)

	agentShares, protocolShares, feeValue := FeeShares(e18(1000), e18(1000), 200, secondsPerYear)
	require.True(feeValue.Equal(e18(20)), "fee value %s", feeValue)
	require.True(agentShares.Equal(e18(12)), "agent %s", agentShares)
	require.True(protocolShares.Equal(e18(8)), "protocol %s", protocolShares)

	// Supply at twice the NAV doubles the shares minted for the same value.
	agentShares, protocolShares, _ = FeeShares(e18(1000), e18(2000), 200, secondsPerYear)
	require.True(agentShares.Add(protocolShares).Equal(e18(40)))

	for _, tc := range []struct {
		nav, supply sdkmath.Int
		bps         uint64
		elapsed     uint64
	}{
		{sdkmath.ZeroInt(), e18(1), 200, 1},
		{e18(1), sdkmath.ZeroInt(), 200, 1},
		{e18(1), e18(1), 0, 1},
		{e18(1), e18(1), 200, 0},
	} {
		a, p, v := FeeShares(tc.nav, tc.supply, tc.bps, tc.elapsed)
		require.True(a.IsZero() && p.IsZero() && v.IsZero())
	}
}

func TestCollectFeeAfterOneYear(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	_, err := h.fund.Deposit(h.ctx, alice, e18(10), alice)
	require.NoError(err)
	require.NoError(h.fund.CollectFee(h.ctx, agent))
	supply := h.fund.TotalSupply()

	h.state.Advance(365 * 24 * time.Hour)
	require.NoError(h.fund.CollectFee(h.ctx, agent))

	agentShares := h.fund.BalanceOf(agentWallet)
	protocolShares := h.fund.BalanceOf(protocol)
	total := agentShares.Add(protocolShares)
	// 2% of the supply, 60/40.
	require.InEpsilon(toFloat(supply)*0.02, toFloat(total), 0.001)
	require.InEpsilon(1.5, toFloat(agentShares)/toFloat(protocolShares), 0.001)
	require.True(h.state.Now().Equal(h.fund.LastFeeCollection()))

	fees := h.events.OfType(types.EventFeesCollected)
	require.Len(fees, 2)
	last := fees[1].Payload.(types.FeesCollected)
	require.Equal(uint64(secondsPerYear), last.ElapsedSeconds)
	h.sharesConserved()
}

func TestCollectFeeRules(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	require.ErrorIs(h.fund.CollectFee(h.ctx, owner), types.ErrUnauthorized)

	// Nothing to charge on an empty fund, but the clock still moves.
	require.NoError(h.fund.CollectFee(h.ctx, agent))
	require.True(h.fund.TotalSupply().IsZero())
	require.True(h.state.Now().Equal(h.fund.LastFeeCollection()))

	err := h.fund.CollectFee(h.ctx, agent)
	require.ErrorIs(err, types.ErrInvalidState)
}
