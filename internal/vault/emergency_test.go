package vault

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/whackrock/fund/internal/types"
)

func TestEmergencyWithdrawToken(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	stray := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	require.NoError(h.state.Mint(stray, fundAddr, e18(5)))

	require.ErrorIs(h.fund.EmergencyWithdrawToken(h.ctx, agent, stray, owner, e18(5)), types.ErrUnauthorized)
	require.ErrorIs(h.fund.EmergencyWithdrawToken(h.ctx, owner, stray, common.Address{}, e18(5)), types.ErrZeroAddress)
	require.ErrorIs(h.fund.EmergencyWithdrawToken(h.ctx, owner, stray, owner, e18(6)), types.ErrInsufficientFunds)

	require.NoError(h.fund.EmergencyWithdrawToken(h.ctx, owner, stray, owner, e18(5)))
	require.True(h.state.BalanceOf(stray, owner).Equal(e18(5)))
	require.True(h.balance(stray).IsZero())
	require.Len(h.events.OfType(types.EventEmergencyWithdrawal), 1)
}

func TestEmergencyWithdrawRefusesFundAssets(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	_, err := h.fund.Deposit(h.ctx, alice, e18(10), alice)
	require.NoError(err)

	for _, token := range []common.Address{weth, tokenA, tokenB} {
		err := h.fund.EmergencyWithdrawToken(h.ctx, owner, token, owner, h.balance(token).AddRaw(1))
		require.ErrorIs(err, types.ErrInvalidArgument)
	}
	require.True(h.state.BalanceOf(tokenA, owner).IsZero())
}

func TestEmergencyWithdrawNative(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)
	require.NoError(h.state.Mint(types.NativeCurrency, fundAddr, e18(2)))

	require.ErrorIs(h.fund.EmergencyWithdrawNative(h.ctx, alice, alice, e18(1)), types.ErrUnauthorized)
	require.NoError(h.fund.EmergencyWithdrawNative(h.ctx, owner, owner, e18(1)))
	require.True(h.state.BalanceOf(types.NativeCurrency, owner).Equal(e18(1)))
	require.True(h.balance(types.NativeCurrency).Equal(e18(1)))

	ev := h.events.OfType(types.EventEmergencyWithdrawal)
	require.Len(ev, 1)
	require.Equal(types.NativeCurrency, ev[0].Payload.(types.EmergencyWithdrawal).Token)
}
