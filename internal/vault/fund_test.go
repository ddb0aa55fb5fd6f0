package vault

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/whackrock/fund/internal/chain"
	"github.com/whackrock/fund/internal/dex"
	"github.com/whackrock/fund/internal/metrics"
	"github.com/whackrock/fund/internal/oracle"
	"github.com/whackrock/fund/internal/types"
	"github.com/whackrock/fund/internal/utils"
)

var (
	weth   = common.HexToAddress("0x4200000000000000000000000000000000000006")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	usdc   = common.HexToAddress("0x833589fCD6eDb6E08f4c7C32D4f71b54bdA02913")

	fundAddr    = common.HexToAddress("0x00000000000000000000000000000000000F0Dd1")
	owner       = common.HexToAddress("0x1111111111111111111111111111111111111111")
	agent       = common.HexToAddress("0x2222222222222222222222222222222222222222")
	agentWallet = common.HexToAddress("0x3333333333333333333333333333333333333333")
	protocol    = common.HexToAddress("0x4444444444444444444444444444444444444444")
	lp          = common.HexToAddress("0x5555555555555555555555555555555555555555")
	alice       = common.HexToAddress("0x6666666666666666666666666666666666666666")
	bob         = common.HexToAddress("0x7777777777777777777777777777777777777777")

	t0 = time.Unix(1_700_000_000, 0)
)

func e18(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

func testParams() types.FundParameters {
	return types.FundParameters{
		MinDeposit:            sdkmath.NewIntWithDecimal(1, 15),
		MinInitialDeposit:     sdkmath.NewIntWithDecimal(1, 16),
		MinimumLiquidity:      sdkmath.NewInt(1000),
		RebalanceThresholdBps: 100,
		SlippageToleranceBps:  100,
		MinTWAPPeriod:         10 * time.Minute,
		SwapDeadlineOffset:    5 * time.Minute,
		MaxAumFeeBps:          1000,
	}
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	state  *chain.State
	router *dex.Router
	pairs  map[common.Address]*dex.Pair
	events *Recorder
	fund   *Fund
}

// newHarness deploys a {A, B} 60/40 fund over 1:1 pools a million deep, then lets the TWAP window
// pass once so every token is priced.
func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	require := require.New(t)

	state := chain.NewState()
	state.SetTime(t0)
	for _, tok := range []common.Address{weth, tokenA, tokenB, usdc} {
		require.NoError(state.Mint(tok, lp, e18(10_000_000)))
	}
	for _, user := range []common.Address{alice, bob} {
		require.NoError(state.Mint(weth, user, e18(1_000)))
	}

	router := dex.NewRouter(state)
	pairs := make(map[common.Address]*dex.Pair)
	for _, tok := range []common.Address{tokenA, tokenB} {
		pair, err := router.AddLiquidity(lp, tok, weth, e18(1_000_000), e18(1_000_000))
		require.NoError(err)
		pairs[tok] = pair
	}
	_, err := router.AddLiquidity(lp, weth, usdc, e18(1_000), e18(3_000_000))
	require.NoError(err)

	events := NewRecorder()
	cfg := Config{
		Name:                    "WhackRock Test Fund",
		Symbol:                  "WRTF",
		Address:                 fundAddr,
		Owner:                   owner,
		Agent:                   agent,
		AccountingAsset:         weth,
		DisplayCurrency:         usdc,
		AllowedTokens:           []common.Address{tokenA, tokenB},
		TargetWeights:           []uint64{6000, 4000},
		Symbols:                 map[common.Address]string{weth: "WETH", tokenA: "A", tokenB: "B", usdc: "USDC"},
		AgentAumFeeBps:          200,
		AgentAumFeeWallet:       agentWallet,
		ProtocolAumFeeRecipient: protocol,
		Params:                  testParams(),
		Pools:                   map[common.Address]oracle.Pool{tokenA: pairs[tokenA], tokenB: pairs[tokenB]},
		Bank:                    state,
		Clock:                   state,
		Router:                  router,
		Events:                  events,
		Metrics:                 metrics.NewRegistry("WRTF"),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	fund, err := NewFund(cfg)
	require.NoError(err)

	h := &harness{t: t, ctx: context.Background(), state: state, router: router, pairs: pairs, events: events, fund: fund}
	state.Advance(10 * time.Minute)
	require.NoError(fund.RefreshOracles(h.ctx))
	return h
}

// sharesConserved checks that holder balances add up to the total supply.
func (h *harness) sharesConserved() {
	h.t.Helper()
	sum := sdkmath.ZeroInt()
	for _, line := range h.fund.ShareHolders() {
		require.True(h.t, line.Shares.IsPositive(), "holder %s listed with %s", line.Holder, line.Shares)
		sum = sum.Add(line.Shares)
	}
	require.True(h.t, sum.Equal(h.fund.TotalSupply()), "balances %s, supply %s", sum, h.fund.TotalSupply())
}

func (h *harness) balance(token common.Address) sdkmath.Int {
	return h.state.BalanceOf(token, fundAddr)
}

func TestNewFundValidatesConfig(t *testing.T) {
	cases := []struct {
		name string
		edit func(*Config)
	}{
		{"weights do not sum", func(c *Config) { c.TargetWeights = []uint64{6000, 3000} }},
		{"weights length", func(c *Config) { c.TargetWeights = []uint64{10000} }},
		{"zero agent", func(c *Config) { c.Agent = common.Address{} }},
		{"accounting asset allowed", func(c *Config) { c.AllowedTokens = []common.Address{tokenA, weth} }},
		{"missing pool", func(c *Config) { delete(c.Pools, tokenB) }},
		{"fee above max", func(c *Config) { c.AgentAumFeeBps = 1001 }},
		{"no router", func(c *Config) { c.Router = nil }},
		{"slippage", func(c *Config) { c.Params.SlippageToleranceBps = 10_000 }},
	}
	base := newHarness(t)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Config{
				Name:                    "Fund",
				Symbol:                  "F",
				Address:                 fundAddr,
				Owner:                   owner,
				Agent:                   agent,
				AccountingAsset:         weth,
				AllowedTokens:           []common.Address{tokenA, tokenB},
				TargetWeights:           []uint64{6000, 4000},
				AgentAumFeeBps:          200,
				AgentAumFeeWallet:       agentWallet,
				ProtocolAumFeeRecipient: protocol,
				Params:                  testParams(),
				Pools:                   map[common.Address]oracle.Pool{tokenA: base.pairs[tokenA], tokenB: base.pairs[tokenB]},
				Bank:                    base.state,
				Clock:                   base.state,
				Router:                  base.router,
			}
			tc.edit(&cfg)
			_, err := NewFund(cfg)
			require.ErrorIs(t, err, types.ErrInvalidArgument)
		})
	}
}

func TestNewFundRejectsWrongPool(t *testing.T) {
	h := newHarness(t)
	_, err := NewFund(Config{
		Name:                    "Fund",
		Symbol:                  "F",
		Address:                 fundAddr,
		Owner:                   owner,
		Agent:                   agent,
		AccountingAsset:         weth,
		AllowedTokens:           []common.Address{tokenA},
		TargetWeights:           []uint64{10000},
		AgentAumFeeWallet:       agentWallet,
		ProtocolAumFeeRecipient: protocol,
		Params:                  testParams(),
		Pools:                   map[common.Address]oracle.Pool{tokenA: h.pairs[tokenB]},
		Bank:                    h.state,
		Clock:                   h.state,
		Router:                  h.router,
	})
	require.ErrorIs(t, err, types.ErrInvalidPool)
}

func TestEmptyFundViews(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	nav, err := h.fund.TotalNAV()
	require.NoError(err)
	require.True(nav.IsZero())

	price, err := h.fund.SharePrice()
	require.NoError(err)
	require.True(price.IsZero())

	holdings := h.fund.Holdings()
	require.Len(holdings, 3)
	require.True(holdings[0].IsAccounting)
	require.Equal("WETH", holdings[0].Symbol)
	require.Equal(uint64(6000), holdings[1].TargetBps)

	require.Equal([]uint64{6000, 4000}, h.fund.TargetWeights())
	require.Equal(uint8(18), h.fund.Decimals())
	require.Len(h.fund.Oracles(), 2)
	for _, view := range h.fund.Oracles() {
		require.True(view.Priced)
	}
}

func TestSetAgent(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	err := h.fund.SetAgent(h.ctx, agent, bob)
	require.ErrorIs(err, types.ErrUnauthorized)
	require.ErrorIs(h.fund.SetAgent(h.ctx, owner, common.Address{}), types.ErrZeroAddress)

	require.NoError(h.fund.SetAgent(h.ctx, owner, bob))
	require.Equal(bob, h.fund.Agent())

	updated := h.events.OfType(types.EventAgentUpdated)
	require.Len(updated, 1)
	require.Equal(types.AgentUpdated{OldAgent: agent, NewAgent: bob}, updated[0].Payload)

	require.ErrorIs(h.fund.SetTargetWeights(h.ctx, agent, []uint64{5000, 5000}), types.ErrUnauthorized)
	require.NoError(h.fund.SetTargetWeights(h.ctx, bob, []uint64{5000, 5000}))
}

func TestSetTargetWeightsKeepsPriorWeightsOnFailure(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	for _, weights := range [][]uint64{{5000, 4000}, {10000, 1}, {10000}, {20000, 0}} {
		err := h.fund.SetTargetWeights(h.ctx, agent, weights)
		require.ErrorIs(err, types.ErrInvalidArgument, "weights %v", weights)
		require.Equal([]uint64{6000, 4000}, h.fund.TargetWeights())
	}
	require.Empty(h.events.OfType(types.EventTargetWeightsUpdated))

	require.NoError(h.fund.SetTargetWeights(h.ctx, agent, []uint64{2500, 7500}))
	require.Equal([]uint64{2500, 7500}, h.fund.TargetWeights())
	require.Len(h.events.OfType(types.EventTargetWeightsUpdated), 1)
}

func TestSetPool(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	require.ErrorIs(h.fund.SetPool(h.ctx, agent, tokenA, h.pairs[tokenA]), types.ErrUnauthorized)
	require.ErrorIs(h.fund.SetPool(h.ctx, owner, tokenA, h.pairs[tokenB]), types.ErrInvalidPool)
	require.ErrorIs(h.fund.SetPool(h.ctx, owner, usdc, h.pairs[tokenA]), types.ErrInvalidArgument)

	// A failed rebind keeps the old oracle.
	view, ok := h.fund.OracleInfo(tokenA)
	require.True(ok)
	require.True(view.Priced)
	require.Equal(h.pairs[tokenA].Address(), view.Pool)

	require.NoError(h.fund.SetPool(h.ctx, owner, tokenA, h.pairs[tokenA]))
	require.Len(h.events.OfType(types.EventPoolSet), 1)
}

func TestNAVInDisplayCurrency(t *testing.T) {
	require := require.New(t)
	h := newHarness(t)

	_, err := h.fund.Deposit(h.ctx, alice, e18(1), alice)
	require.NoError(err)

	display, err := h.fund.NAVInDisplayCurrency(h.ctx)
	require.NoError(err)
	// About 3000 USDC per WETH, less swap fees and price impact.
	require.InEpsilon(2980.0, toFloat(display), 0.01)
}

func toFloat(v sdkmath.Int) float64 {
	f, _ := utils.SDKIntToFloat64(v, 18)
	return f
}
