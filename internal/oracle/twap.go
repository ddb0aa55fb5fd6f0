// Package oracle prices basket tokens in the accounting asset with a time-weighted average taken
// from a constant-product pool's cumulative price accumulators.
package oracle

import (
	"math/big"
	"sort"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/whackrock/fund/internal/dex"
	"github.com/whackrock/fund/internal/types"
)

// Resolution is the number of fractional bits of a stored average.
const Resolution = dex.Resolution

// Pool is a two-token pool that exposes Uniswap V2 style price accumulators.
type Pool interface {
	Address() common.Address
	Token0() common.Address
	Token1() common.Address
	PriceCumulative0Last() *uint256.Int
	PriceCumulative1Last() *uint256.Int
	Reserves() (reserve0, reserve1 *uint256.Int, blockTimestampLast uint64)
}

// Clock returns the current block time.
type Clock interface {
	Now() time.Time
}

// Info is the oracle state of one token. PriceAverage is the token's price in the accounting
// asset as UQ112x112; zero means the token has not been priced yet.
type Info struct {
	Pool                Pool
	PriceCumulativeLast *uint256.Int
	BlockTimestampLast  uint64
	PriceAverage        *uint256.Int
	isToken0            bool
}

func (i *Info) clone() *Info {
	c := *i
	c.PriceCumulativeLast = i.PriceCumulativeLast.Clone()
	c.PriceAverage = i.PriceAverage.Clone()
	return &c
}

// TWAP holds one Info per token. It is not safe for concurrent use; the fund serializes access.
type TWAP struct {
	accountingAsset common.Address
	minPeriod       time.Duration
	clock           Clock
	infos           map[common.Address]*Info
}

func New(accountingAsset common.Address, clock Clock, minPeriod time.Duration) *TWAP {
	return &TWAP{
		accountingAsset: accountingAsset,
		minPeriod:       minPeriod,
		clock:           clock,
		infos:           make(map[common.Address]*Info),
	}
}

// CurrentCumulativePrices returns the pool's accumulators as they would read if the pool were
// touched at now. Between touches the accumulators are advanced with the current reserves.
func CurrentCumulativePrices(pool Pool, now uint64) (*uint256.Int, *uint256.Int, uint64) {
	price0 := pool.PriceCumulative0Last()
	price1 := pool.PriceCumulative1Last()
	reserve0, reserve1, last := pool.Reserves()
	if last != now && now > last && !reserve0.IsZero() && !reserve1.IsZero() {
		elapsed := uint256.NewInt(now - last)
		price0 = new(uint256.Int).Add(price0, new(uint256.Int).Mul(dex.EncodeUQ112(reserve1, reserve0), elapsed))
		price1 = new(uint256.Int).Add(price1, new(uint256.Int).Mul(dex.EncodeUQ112(reserve0, reserve1), elapsed))
	}
	return price0, price1, now
}

// SetPool binds token to a {token, accounting asset} pool and takes the first observation.
// The price stays unavailable until the first Update after MinTWAPPeriod.
func (o *TWAP) SetPool(token common.Address, pool Pool) error {
	if pool == nil {
		return errorsmod.Wrap(types.ErrInvalidPool, "nil pool")
	}
	t0, t1 := pool.Token0(), pool.Token1()
	isToken0 := t0 == token && t1 == o.accountingAsset
	isToken1 := t1 == token && t0 == o.accountingAsset
	if !isToken0 && !isToken1 {
		return errorsmod.Wrapf(types.ErrInvalidPool, "pool %s holds %s/%s, want %s/%s",
			pool.Address().Hex(), t0.Hex(), t1.Hex(), token.Hex(), o.accountingAsset.Hex())
	}

	reserve0, reserve1, last := pool.Reserves()
	if reserve0.IsZero() || reserve1.IsZero() || last == 0 {
		return errorsmod.Wrapf(types.ErrOracleInitFailed, "pool %s has no observation", pool.Address().Hex())
	}

	now := uint64(o.clock.Now().Unix())
	price0, price1, ts := CurrentCumulativePrices(pool, now)
	cumulative := price1
	if isToken0 {
		cumulative = price0
	}
	o.infos[token] = &Info{
		Pool:                pool,
		PriceCumulativeLast: cumulative,
		BlockTimestampLast:  ts,
		PriceAverage:        new(uint256.Int),
		isToken0:            isToken0,
	}
	return nil
}

// Update refreshes the average of token. It returns the elapsed seconds, 0 when the oracle was
// already updated in this block.
func (o *TWAP) Update(token common.Address) (uint64, error) {
	info, ok := o.infos[token]
	if !ok {
		return 0, errorsmod.Wrapf(types.ErrPriceUnavailable, "no pool for token %s", token.Hex())
	}

	now := uint64(o.clock.Now().Unix())
	price0, price1, ts := CurrentCumulativePrices(info.Pool, now)
	if ts <= info.BlockTimestampLast {
		return 0, nil
	}
	elapsed := ts - info.BlockTimestampLast
	if time.Duration(elapsed)*time.Second < o.minPeriod {
		return 0, errorsmod.Wrapf(types.ErrTwapNotReady, "token %s: %ds elapsed, need %s", token.Hex(), elapsed, o.minPeriod)
	}

	cumulative := price1
	if info.isToken0 {
		cumulative = price0
	}
	// Accumulators overflow by design; the difference is still correct modulo 2^256.
	delta := new(uint256.Int).Sub(cumulative, info.PriceCumulativeLast)
	info.PriceAverage = delta.Div(delta, uint256.NewInt(elapsed))
	info.PriceCumulativeLast = cumulative
	info.BlockTimestampLast = ts
	return elapsed, nil
}

// ValueOf converts amount of token into accounting asset units at the stored average.
func (o *TWAP) ValueOf(token common.Address, amount sdkmath.Int) (sdkmath.Int, error) {
	if amount.IsNil() || amount.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	info, ok := o.infos[token]
	if !ok || info.PriceAverage.IsZero() {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPriceUnavailable, "token %s", token.Hex())
	}
	v := new(big.Int).Mul(amount.BigInt(), info.PriceAverage.ToBig())
	v.Rsh(v, Resolution)
	if v.BitLen() > 256 {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPriceUnavailable, "value of %s %s overflows", amount, token.Hex())
	}
	return sdkmath.NewIntFromBigInt(v), nil
}

// Info returns a copy of the oracle state of token.
func (o *TWAP) Info(token common.Address) (Info, bool) {
	info, ok := o.infos[token]
	if !ok {
		return Info{}, false
	}
	return *info.clone(), true
}

// Tokens returns every token with a pool, sorted by address.
func (o *TWAP) Tokens() []common.Address {
	out := make([]common.Address, 0, len(o.infos))
	for token := range o.infos {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

// Clone returns a deep copy. Pools are shared.
func (o *TWAP) Clone() *TWAP {
	c := &TWAP{
		accountingAsset: o.accountingAsset,
		minPeriod:       o.minPeriod,
		clock:           o.clock,
		infos:           make(map[common.Address]*Info, len(o.infos)),
	}
	for token, info := range o.infos {
		c.infos[token] = info.clone()
	}
	return c
}

// View renders the oracle state of token for display.
func (o *TWAP) View(token common.Address) (types.OracleView, bool) {
	info, ok := o.infos[token]
	if !ok {
		return types.OracleView{Token: token}, false
	}
	return types.OracleView{
		Token:               token,
		Pool:                info.Pool.Address(),
		PriceCumulativeLast: info.PriceCumulativeLast.Dec(),
		BlockTimestampLast:  info.BlockTimestampLast,
		PriceAverage:        info.PriceAverage.Dec(),
		Priced:              !info.PriceAverage.IsZero(),
	}, true
}
