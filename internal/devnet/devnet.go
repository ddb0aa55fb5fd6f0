// Package devnet stands up the in-memory chain and DEX a fund definition describes, and turns the
// definition into a vault configuration bound to them.
package devnet

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/whackrock/fund/internal/chain"
	"github.com/whackrock/fund/internal/config"
	"github.com/whackrock/fund/internal/dex"
	"github.com/whackrock/fund/internal/logger"
	"github.com/whackrock/fund/internal/metrics"
	"github.com/whackrock/fund/internal/oracle"
	"github.com/whackrock/fund/internal/vault"
)

// BreakerTimeout is how long the router breaker stays open before letting a trial call through.
const BreakerTimeout = 30 * time.Second

// Devnet is a seeded chain with its DEX.
type Devnet struct {
	State  *chain.State
	Router *dex.Router
	Pools  map[common.Address]oracle.Pool // Basket token -> its pool against the accounting asset

	fund   *config.Fund
	logger zerolog.Logger
}

// New mints the configured pool reserves to the liquidity provider, deposits them into their
// pools and credits the seeded balances. Every basket token must end up with a pool against the
// accounting asset.
func New(fund *config.Fund) (*Devnet, error) {
	d := &Devnet{
		State:  chain.NewState(),
		Pools:  make(map[common.Address]oracle.Pool, len(fund.Basket)),
		fund:   fund,
		logger: logger.GetForComponent("devnet"),
	}
	d.Router = dex.NewRouter(d.State)

	if len(fund.Pools) > 0 && fund.LiquidityProvider == (common.Address{}) {
		return nil, fmt.Errorf("devnet pools need a liquidity provider")
	}
	for _, p := range fund.Pools {
		if err := d.State.Mint(p.TokenA.Address, fund.LiquidityProvider, p.ReserveA); err != nil {
			return nil, fmt.Errorf("seed %s: %w", p.TokenA.Symbol, err)
		}
		if err := d.State.Mint(p.TokenB.Address, fund.LiquidityProvider, p.ReserveB); err != nil {
			return nil, fmt.Errorf("seed %s: %w", p.TokenB.Symbol, err)
		}
		pair, err := d.Router.AddLiquidity(fund.LiquidityProvider, p.TokenA.Address, p.TokenB.Address, p.ReserveA, p.ReserveB)
		if err != nil {
			return nil, fmt.Errorf("pool %s/%s: %w", p.TokenA.Symbol, p.TokenB.Symbol, err)
		}
		d.logger.Info().
			Str("pair", pair.Address().Hex()).
			Str("tokenA", p.TokenA.Symbol).
			Str("tokenB", p.TokenB.Symbol).
			Msg("Seeded devnet pool")
	}

	for _, b := range fund.Balances {
		if err := d.State.Mint(b.Token, b.Account, b.Amount); err != nil {
			return nil, fmt.Errorf("seed balance of %s: %w", b.Account.Hex(), err)
		}
	}

	for _, t := range fund.Basket {
		pair, ok := d.Router.GetPair(t.Address, fund.AccountingAsset.Address)
		if !ok {
			return nil, fmt.Errorf("no devnet pool for %s/%s", t.Symbol, fund.AccountingAsset.Symbol)
		}
		d.Pools[t.Address] = pair
	}
	return d, nil
}

// FundConfig binds the fund definition to the devnet. Swaps go through a circuit breaker around
// the router.
func (d *Devnet) FundConfig(events vault.EventSink, reg *metrics.Registry) vault.Config {
	f := d.fund
	symbols := map[common.Address]string{
		f.AccountingAsset.Address: f.AccountingAsset.Symbol,
		f.DisplayCurrency.Address: f.DisplayCurrency.Symbol,
	}
	tokens := make([]common.Address, 0, len(f.Basket))
	for _, t := range f.Basket {
		tokens = append(tokens, t.Address)
		symbols[t.Address] = t.Symbol
	}

	return vault.Config{
		Name:                    f.Name,
		Symbol:                  f.Symbol,
		Address:                 f.Address,
		Owner:                   f.Owner,
		Agent:                   f.Agent,
		AccountingAsset:         f.AccountingAsset.Address,
		DisplayCurrency:         f.DisplayCurrency.Address,
		AllowedTokens:           tokens,
		TargetWeights:           append([]uint64(nil), f.Weights...),
		Symbols:                 symbols,
		AgentAumFeeBps:          f.AgentAumFeeBps,
		AgentAumFeeWallet:       f.AgentFeeWallet,
		ProtocolAumFeeRecipient: f.ProtocolRecipient,
		Params:                  f.Params,
		Pools:                   d.Pools,
		Bank:                    d.State,
		Clock:                   d.State,
		Router:                  dex.NewBreakerRouter(f.Symbol+"-router", d.Router, BreakerTimeout),
		Events:                  events,
		Metrics:                 reg,
	}
}
