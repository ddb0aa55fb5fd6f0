package dex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/rs/zerolog"

	"github.com/whackrock/fund/internal/logger"
	"github.com/whackrock/fund/internal/types"
	"github.com/whackrock/fund/internal/utils"
)

// RouterAddress holds intermediate amounts of multi-hop swaps.
var RouterAddress = common.HexToAddress("0x00000000000000000000000000000000000000D0")

type pairKey struct{ token0, token1 common.Address }

// Router creates pairs and executes exact-input swaps along token routes.
type Router struct {
	mu     sync.RWMutex
	state  State
	pairs  map[pairKey]*Pair
	logger zerolog.Logger
}

func NewRouter(state State) *Router {
	return &Router{
		state:  state,
		pairs:  make(map[pairKey]*Pair),
		logger: logger.GetForComponent("dex_router"),
	}
}

// CreatePair registers an empty pair for two tokens.
func (r *Router) CreatePair(tokenA, tokenB common.Address) (*Pair, error) {
	p, err := newPair(r.state, tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := pairKey{p.token0, p.token1}
	if _, ok := r.pairs[key]; ok {
		return nil, ErrPairExists
	}
	r.pairs[key] = p
	r.logger.Debug().Str("pair", p.address.Hex()).Str("token0", p.token0.Hex()).Str("token1", p.token1.Hex()).Msg("Created pair")
	return p, nil
}

// GetPair returns the pair of two tokens in either order.
func (r *Router) GetPair(tokenA, tokenB common.Address) (*Pair, bool) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pairs[pairKey{token0, token1}]
	return p, ok
}

// Pairs lists every pair ordered by address.
func (r *Router) Pairs() []*Pair {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Pair, 0, len(r.pairs))
	for _, p := range r.pairs {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].address.Hex() < out[j].address.Hex() })
	return out
}

// AddLiquidity moves amountA of tokenA and amountB of tokenB from provider into their pair,
// creating the pair when it does not exist.
func (r *Router) AddLiquidity(provider, tokenA, tokenB common.Address, amountA, amountB sdkmath.Int) (*Pair, error) {
	p, ok := r.GetPair(tokenA, tokenB)
	if !ok {
		var err error
		if p, err = r.CreatePair(tokenA, tokenB); err != nil {
			return nil, err
		}
	}
	amount0, amount1 := amountA, amountB
	if tokenA != p.token0 {
		amount0, amount1 = amountB, amountA
	}
	if err := p.addLiquidity(provider, amount0, amount1); err != nil {
		return nil, fmt.Errorf("add liquidity to %s: %w", p.address.Hex(), err)
	}
	return p, nil
}

func (r *Router) routePairs(route []common.Address) ([]*Pair, error) {
	if len(route) < 2 {
		return nil, fmt.Errorf("%w: need at least two tokens, got %d", ErrInvalidRoute, len(route))
	}
	pairs := make([]*Pair, 0, len(route)-1)
	for i := 0; i < len(route)-1; i++ {
		p, ok := r.GetPair(route[i], route[i+1])
		if !ok {
			return nil, fmt.Errorf("%w: %s/%s", ErrPairNotFound, route[i].Hex(), route[i+1].Hex())
		}
		pairs = append(pairs, p)
	}
	return pairs, nil
}

// Quote returns the amounts along route for an exact input, amounts[0] being amountIn.
func (r *Router) Quote(ctx context.Context, amountIn sdkmath.Int, route []common.Address) ([]sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pairs, err := r.routePairs(route)
	if err != nil {
		return nil, err
	}
	in, err := utils.SDKIntToU256(amountIn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInsufficientInputAmount, err)
	}

	amounts := []sdkmath.Int{amountIn}
	for i, p := range pairs {
		out, err := p.amountOut(route[i], in)
		if err != nil {
			return nil, err
		}
		amounts = append(amounts, utils.U256ToSDKInt(out))
		in = out
	}
	return amounts, nil
}

// SwapExactIn swaps p.AmountIn of route[0] from p.Sender for at least p.MinAmountOut of the last
// token in the route, delivered to p.Recipient.
func (r *Router) SwapExactIn(ctx context.Context, p types.SwapParams) ([]sdkmath.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.state.Now().After(p.Deadline) {
		return nil, ErrExpired
	}
	amounts, err := r.Quote(ctx, p.AmountIn, p.Route)
	if err != nil {
		return nil, err
	}
	final := amounts[len(amounts)-1]
	if !p.MinAmountOut.IsNil() && final.LT(p.MinAmountOut) {
		return nil, fmt.Errorf("%w: quoted %s, minimum %s", ErrInsufficientOutputAmount, final, p.MinAmountOut)
	}

	pairs, err := r.routePairs(p.Route)
	if err != nil {
		return nil, err
	}
	executed := []sdkmath.Int{p.AmountIn}
	from := p.Sender
	in, _ := utils.SDKIntToU256(p.AmountIn)
	var out *uint256.Int
	for i, pair := range pairs {
		to := RouterAddress
		if i == len(pairs)-1 {
			to = p.Recipient
		}
		if out, err = pair.swap(p.Route[i], in, from, to); err != nil {
			return nil, fmt.Errorf("hop %d (%s): %w", i, pair.address.Hex(), err)
		}
		executed = append(executed, utils.U256ToSDKInt(out))
		from, in = RouterAddress, out
	}

	r.logger.Debug().
		Str("sender", p.Sender.Hex()).
		Str("amount_in", p.AmountIn.String()).
		Str("amount_out", executed[len(executed)-1].String()).
		Int("hops", len(pairs)).
		Msg("Swap executed")
	return executed, nil
}
