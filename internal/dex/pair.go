// Package dex is a constant-product exchange in the style of Uniswap V2: pairs with a 0.3% fee and
// cumulative UQ112x112 price accumulators, and a router that chains pairs into routes.
package dex

import (
	"bytes"
	"errors"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"

	"github.com/whackrock/fund/internal/utils"
)

// Error definitions for zero-tolerance error handling
var (
	ErrIdenticalTokens          = errors.New("identical tokens")
	ErrPairExists               = errors.New("pair already exists")
	ErrPairNotFound             = errors.New("pair not found")
	ErrInsufficientLiquidity    = errors.New("insufficient liquidity")
	ErrInsufficientInputAmount  = errors.New("insufficient input amount")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrExpired                  = errors.New("swap deadline expired")
	ErrInvalidRoute             = errors.New("invalid route")
	ErrReserveOverflow          = errors.New("reserve exceeds 112 bits")
	ErrTokenNotInPair           = errors.New("token not in pair")
)

const (
	feeNumerator   = 997
	feeDenominator = 1000
)

var maxReserve = new(uint256.Int).SubUint64(new(uint256.Int).Lsh(uint256.NewInt(1), 112), 1)

// State is the slice of chain state a pair needs: balances, a clock and the journal.
type State interface {
	BalanceOf(token, holder common.Address) sdkmath.Int
	Transfer(token, from, to common.Address, amount sdkmath.Int) error
	Record(undo func())
	Now() time.Time
}

// Pair holds the reserves of two tokens. Its own address holds the tokens in State.
type Pair struct {
	mu sync.RWMutex

	address        common.Address
	token0, token1 common.Address
	state          State

	reserve0, reserve1   *uint256.Int
	blockTimestampLast   uint64
	price0CumulativeLast *uint256.Int
	price1CumulativeLast *uint256.Int
}

// SortTokens orders two token addresses the way pairs store them.
func SortTokens(tokenA, tokenB common.Address) (common.Address, common.Address, error) {
	switch bytes.Compare(tokenA.Bytes(), tokenB.Bytes()) {
	case 0:
		return common.Address{}, common.Address{}, ErrIdenticalTokens
	case -1:
		return tokenA, tokenB, nil
	default:
		return tokenB, tokenA, nil
	}
}

// PairAddress derives the deterministic address of the pair of two tokens.
func PairAddress(tokenA, tokenB common.Address) (common.Address, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return common.Address{}, err
	}
	hash := crypto.Keccak256(token0.Bytes(), token1.Bytes())
	return common.BytesToAddress(hash[12:]), nil
}

func newPair(state State, tokenA, tokenB common.Address) (*Pair, error) {
	token0, token1, err := SortTokens(tokenA, tokenB)
	if err != nil {
		return nil, err
	}
	addr, err := PairAddress(token0, token1)
	if err != nil {
		return nil, err
	}
	return &Pair{
		address:              addr,
		token0:               token0,
		token1:               token1,
		state:                state,
		reserve0:             new(uint256.Int),
		reserve1:             new(uint256.Int),
		price0CumulativeLast: new(uint256.Int),
		price1CumulativeLast: new(uint256.Int),
	}, nil
}

func (p *Pair) Address() common.Address { return p.address }
func (p *Pair) Token0() common.Address  { return p.token0 }
func (p *Pair) Token1() common.Address  { return p.token1 }

// Reserves returns copies of the reserves and the time they were last updated.
func (p *Pair) Reserves() (*uint256.Int, *uint256.Int, uint64) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reserve0.Clone(), p.reserve1.Clone(), p.blockTimestampLast
}

func (p *Pair) PriceCumulative0Last() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.price0CumulativeLast.Clone()
}

func (p *Pair) PriceCumulative1Last() *uint256.Int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.price1CumulativeLast.Clone()
}

// GetAmountOut returns the output of an exact-input swap against the given reserves, net of the 0.3% fee.
func GetAmountOut(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountIn.IsZero() {
		return nil, ErrInsufficientInputAmount
	}
	if reserveIn.IsZero() || reserveOut.IsZero() {
		return nil, ErrInsufficientLiquidity
	}
	amountInWithFee := new(uint256.Int).Mul(amountIn, uint256.NewInt(feeNumerator))
	numerator := new(uint256.Int).Mul(amountInWithFee, reserveOut)
	denominator := new(uint256.Int).Mul(reserveIn, uint256.NewInt(feeDenominator))
	denominator.Add(denominator, amountInWithFee)
	return new(uint256.Int).Div(numerator, denominator), nil
}

// amountOut quotes a swap of amountIn of tokenIn against the current reserves.
func (p *Pair) amountOut(tokenIn common.Address, amountIn *uint256.Int) (*uint256.Int, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	reserveIn, reserveOut, err := p.orientedReserves(tokenIn)
	if err != nil {
		return nil, err
	}
	return GetAmountOut(amountIn, reserveIn, reserveOut)
}

func (p *Pair) orientedReserves(tokenIn common.Address) (*uint256.Int, *uint256.Int, error) {
	switch tokenIn {
	case p.token0:
		return p.reserve0, p.reserve1, nil
	case p.token1:
		return p.reserve1, p.reserve0, nil
	default:
		return nil, nil, ErrTokenNotInPair
	}
}

func (p *Pair) otherToken(token common.Address) common.Address {
	if token == p.token0 {
		return p.token1
	}
	return p.token0
}

// swap pulls amountIn of tokenIn from `from`, pays the constant-product output to `to` and
// updates reserves and accumulators.
func (p *Pair) swap(tokenIn common.Address, amountIn *uint256.Int, from, to common.Address) (*uint256.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	reserveIn, reserveOut, err := p.orientedReserves(tokenIn)
	if err != nil {
		return nil, err
	}
	out, err := GetAmountOut(amountIn, reserveIn, reserveOut)
	if err != nil {
		return nil, err
	}
	if out.IsZero() || out.Cmp(reserveOut) >= 0 {
		return nil, ErrInsufficientOutputAmount
	}

	tokenOut := p.otherToken(tokenIn)
	if err := p.state.Transfer(tokenIn, from, p.address, utils.U256ToSDKInt(amountIn)); err != nil {
		return nil, err
	}
	if err := p.state.Transfer(tokenOut, p.address, to, utils.U256ToSDKInt(out)); err != nil {
		return nil, err
	}
	if err := p.sync(); err != nil {
		return nil, err
	}
	return out, nil
}

// addLiquidity moves both amounts from provider into the pair and syncs the reserves.
func (p *Pair) addLiquidity(provider common.Address, amount0, amount1 sdkmath.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.state.Transfer(p.token0, provider, p.address, amount0); err != nil {
		return err
	}
	if err := p.state.Transfer(p.token1, provider, p.address, amount1); err != nil {
		return err
	}
	return p.sync()
}

// sync sets the reserves to the pair's balances. The accumulators advance with the reserves that
// were in force since the last update, so the first touch in a block records the previous price.
// Callers hold p.mu.
func (p *Pair) sync() error {
	balance0, err := utils.SDKIntToU256(p.state.BalanceOf(p.token0, p.address))
	if err != nil {
		return err
	}
	balance1, err := utils.SDKIntToU256(p.state.BalanceOf(p.token1, p.address))
	if err != nil {
		return err
	}
	if balance0.Gt(maxReserve) || balance1.Gt(maxReserve) {
		return ErrReserveOverflow
	}

	prevR0, prevR1, prevTs := p.reserve0, p.reserve1, p.blockTimestampLast
	prevC0, prevC1 := p.price0CumulativeLast, p.price1CumulativeLast
	p.state.Record(func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.reserve0, p.reserve1, p.blockTimestampLast = prevR0, prevR1, prevTs
		p.price0CumulativeLast, p.price1CumulativeLast = prevC0, prevC1
	})

	now := uint64(p.state.Now().Unix())
	if now > p.blockTimestampLast && !p.reserve0.IsZero() && !p.reserve1.IsZero() {
		elapsed := uint256.NewInt(now - p.blockTimestampLast)
		p.price0CumulativeLast = new(uint256.Int).Add(p.price0CumulativeLast, new(uint256.Int).Mul(EncodeUQ112(p.reserve1, p.reserve0), elapsed))
		p.price1CumulativeLast = new(uint256.Int).Add(p.price1CumulativeLast, new(uint256.Int).Mul(EncodeUQ112(p.reserve0, p.reserve1), elapsed))
	}
	p.reserve0, p.reserve1 = balance0, balance1
	p.blockTimestampLast = now
	return nil
}

// Resolution is the number of fractional bits of a UQ112x112 price.
const Resolution = 112

// EncodeUQ112 returns numerator/denominator as a UQ112x112 fixed-point number.
func EncodeUQ112(numerator, denominator *uint256.Int) *uint256.Int {
	q := new(uint256.Int).Lsh(numerator, Resolution)
	return q.Div(q, denominator)
}
