package oracle

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/whackrock/fund/internal/chain"
	"github.com/whackrock/fund/internal/dex"
	"github.com/whackrock/fund/internal/types"
)

var (
	weth   = common.HexToAddress("0x4200000000000000000000000000000000000006")
	tokenA = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	tokenB = common.HexToAddress("0x00000000000000000000000000000000000000bb")
	lp     = common.HexToAddress("0x5555555555555555555555555555555555555555")
	trader = common.HexToAddress("0x6666666666666666666666666666666666666666")

	t0 = time.Unix(1_700_000_000, 0)
)

func e18(n int64) sdkmath.Int { return sdkmath.NewIntWithDecimal(n, 18) }

type fixture struct {
	state  *chain.State
	router *dex.Router
	pairA  *dex.Pair
	pairB  *dex.Pair
	twap   *TWAP
}

// A is worth 2 WETH, B is worth 0.5 WETH.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	require := require.New(t)

	state := chain.NewState()
	state.SetTime(t0)
	for _, tok := range []common.Address{weth, tokenA, tokenB} {
		require.NoError(state.Mint(tok, lp, e18(10_000_000)))
	}
	require.NoError(state.Mint(weth, trader, e18(1_000)))

	router := dex.NewRouter(state)
	pairA, err := router.AddLiquidity(lp, tokenA, weth, e18(500_000), e18(1_000_000))
	require.NoError(err)
	pairB, err := router.AddLiquidity(lp, tokenB, weth, e18(2_000_000), e18(1_000_000))
	require.NoError(err)

	return &fixture{state: state, router: router, pairA: pairA, pairB: pairB, twap: New(weth, state, 10*time.Minute)}
}

func TestSetPoolValidatesTokens(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	require.NoError(f.twap.SetPool(tokenA, f.pairA))

	err := f.twap.SetPool(tokenA, f.pairB)
	require.ErrorIs(err, types.ErrInvalidPool)

	err = f.twap.SetPool(weth, f.pairA)
	require.ErrorIs(err, types.ErrInvalidPool)

	empty, err := f.router.CreatePair(common.HexToAddress("0xcc"), weth)
	require.NoError(err)
	err = f.twap.SetPool(common.HexToAddress("0xcc"), empty)
	require.ErrorIs(err, types.ErrOracleInitFailed)
}

func TestValueOfUnavailableBeforeFirstUpdate(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.twap.SetPool(tokenA, f.pairA))

	_, err := f.twap.ValueOf(tokenA, e18(1))
	require.ErrorIs(err, types.ErrPriceUnavailable)

	v, err := f.twap.ValueOf(tokenA, sdkmath.ZeroInt())
	require.NoError(err)
	require.True(v.IsZero())

	_, err = f.twap.ValueOf(tokenB, e18(1))
	require.ErrorIs(err, types.ErrPriceUnavailable)
}

func TestUpdateGating(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.twap.SetPool(tokenA, f.pairA))
	require.NoError(f.twap.SetPool(tokenB, f.pairB))

	// Same block: no-op.
	elapsed, err := f.twap.Update(tokenA)
	require.NoError(err)
	require.Zero(elapsed)

	f.state.Advance(5 * time.Minute)
	_, err = f.twap.Update(tokenA)
	require.ErrorIs(err, types.ErrTwapNotReady)
	require.ErrorIs(err, types.ErrOracleNotReady)

	f.state.Advance(5 * time.Minute)
	elapsed, err = f.twap.Update(tokenA)
	require.NoError(err)
	require.Equal(uint64(600), elapsed)
	_, err = f.twap.Update(tokenB)
	require.NoError(err)

	v, err := f.twap.ValueOf(tokenA, e18(3))
	require.NoError(err)
	require.True(v.Equal(e18(6)), "got %s", v)

	v, err = f.twap.ValueOf(tokenB, e18(3))
	require.NoError(err)
	require.Equal("1500000000000000000", v.String())

	// A second update inside the window fails and keeps the average.
	f.state.Advance(time.Minute)
	_, err = f.twap.Update(tokenA)
	require.ErrorIs(err, types.ErrTwapNotReady)
	v, err = f.twap.ValueOf(tokenA, e18(3))
	require.NoError(err)
	require.True(v.Equal(e18(6)))
}

func TestAverageFollowsPriceOverWindow(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.twap.SetPool(tokenA, f.pairA))

	f.state.Advance(10 * time.Minute)
	_, err := f.twap.Update(tokenA)
	require.NoError(err)
	before, err := f.twap.ValueOf(tokenA, e18(1))
	require.NoError(err)

	// Buying A raises its price; the average only moves after the next window.
	require.NoError(f.state.Mint(weth, trader, e18(100_000)))
	_, err = f.router.SwapExactIn(context.Background(), types.SwapParams{
		AmountIn: e18(100_000), MinAmountOut: sdkmath.ZeroInt(), Route: []common.Address{weth, tokenA},
		Sender: trader, Recipient: trader, Deadline: f.state.Now(),
	})
	require.NoError(err)

	unchanged, err := f.twap.ValueOf(tokenA, e18(1))
	require.NoError(err)
	require.True(unchanged.Equal(before))

	f.state.Advance(10 * time.Minute)
	_, err = f.twap.Update(tokenA)
	require.NoError(err)
	after, err := f.twap.ValueOf(tokenA, e18(1))
	require.NoError(err)
	require.True(after.GT(before), "after %s before %s", after, before)
}

func TestCloneIsIndependent(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	require.NoError(f.twap.SetPool(tokenA, f.pairA))

	snapshot := f.twap.Clone()
	f.state.Advance(10 * time.Minute)
	_, err := f.twap.Update(tokenA)
	require.NoError(err)

	_, err = snapshot.ValueOf(tokenA, e18(1))
	require.ErrorIs(err, types.ErrPriceUnavailable)

	view, ok := f.twap.View(tokenA)
	require.True(ok)
	require.True(view.Priced)
	require.Equal(f.pairA.Address(), view.Pool)
	require.Equal([]common.Address{tokenA}, f.twap.Tokens())
}

// wrappingPool reports accumulators close to 2^256 so the next reading wraps around zero.
type wrappingPool struct {
	now  uint64
	cum0 *uint256.Int
}

func (p *wrappingPool) Address() common.Address            { return common.HexToAddress("0xdead") }
func (p *wrappingPool) Token0() common.Address             { return tokenA }
func (p *wrappingPool) Token1() common.Address             { return weth }
func (p *wrappingPool) PriceCumulative0Last() *uint256.Int { return p.cum0.Clone() }
func (p *wrappingPool) PriceCumulative1Last() *uint256.Int { return new(uint256.Int) }
func (p *wrappingPool) Reserves() (*uint256.Int, *uint256.Int, uint64) {
	return uint256.NewInt(1), uint256.NewInt(1), p.now
}

func TestUpdateHandlesAccumulatorWraparound(t *testing.T) {
	require := require.New(t)
	state := chain.NewState()
	state.SetTime(t0)

	q112 := new(uint256.Int).Lsh(uint256.NewInt(1), Resolution)
	start := new(uint256.Int).Sub(new(uint256.Int), new(uint256.Int).Mul(q112, uint256.NewInt(100)))
	pool := &wrappingPool{now: uint64(t0.Unix()), cum0: start}

	twap := New(weth, state, 10*time.Minute)
	require.NoError(twap.SetPool(tokenA, pool))

	// 600s at price 1 pushes the accumulator past 2^256.
	state.Advance(10 * time.Minute)
	pool.now = uint64(state.Now().Unix())
	pool.cum0 = new(uint256.Int).Add(start, new(uint256.Int).Mul(q112, uint256.NewInt(600)))

	_, err := twap.Update(tokenA)
	require.NoError(err)
	v, err := twap.ValueOf(tokenA, e18(7))
	require.NoError(err)
	require.True(v.Equal(e18(7)))
}

func TestValueOfOverflowIsClassified(t *testing.T) {
	require := require.New(t)
	state := chain.NewState()
	state.SetTime(t0)

	pool := &wrappingPool{now: uint64(t0.Unix()), cum0: new(uint256.Int)}
	twap := New(weth, state, 10*time.Minute)
	require.NoError(twap.SetPool(tokenA, pool))

	state.Advance(10 * time.Minute)
	pool.now = uint64(state.Now().Unix())
	pool.cum0 = new(uint256.Int).Lsh(uint256.NewInt(1), 255)
	_, err := twap.Update(tokenA)
	require.NoError(err)

	huge := sdkmath.NewIntFromBigInt(new(uint256.Int).Lsh(uint256.NewInt(1), 200).ToBig())
	_, err = twap.ValueOf(tokenA, huge)
	require.ErrorIs(err, types.ErrPriceUnavailable)
	require.Equal(types.ErrPriceUnavailable.ABCICode(), types.KindOf(err))
}
