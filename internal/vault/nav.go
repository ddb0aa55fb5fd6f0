package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/ledger"
	"github.com/whackrock/fund/internal/oracle"
	"github.com/whackrock/fund/internal/planner"
	"github.com/whackrock/fund/internal/types"
)

// shareScale is the fixed-point scale of SharePrice, one whole share.
var shareScale = sdkmath.NewIntWithDecimal(1, 18)

// book is a read-only view of the fund's accounts: the live state, or a captured copy.
type book struct {
	f                 *Fund
	balance           func(token common.Address) sdkmath.Int
	shares            *ledger.Shares
	oracle            *oracle.TWAP
	weights           map[common.Address]uint64
	agent             common.Address
	lastFeeCollection uint64
}

// live reads the fund's current state. Callers hold f.mu.
func (f *Fund) live() book {
	return book{
		f:                 f,
		balance:           func(token common.Address) sdkmath.Int { return f.bank.BalanceOf(token, f.address) },
		shares:            f.shares,
		oracle:            f.oracle,
		weights:           f.targetWeights,
		agent:             f.agent,
		lastFeeCollection: f.lastFeeCollection,
	}
}

func (a *accounts) book(f *Fund) book {
	return book{
		f: f,
		balance: func(token common.Address) sdkmath.Int {
			if b, ok := a.balances[token]; ok {
				return b
			}
			return sdkmath.ZeroInt()
		},
		shares:            a.shares,
		oracle:            a.oracle,
		weights:           a.weights,
		agent:             a.agent,
		lastFeeCollection: a.lastFeeCollection,
	}
}

func (f *Fund) totalNAV() (sdkmath.Int, error) { return f.live().totalNAV() }

func (f *Fund) planHoldings() (sdkmath.Int, []planner.Holding, error) { return f.live().planHoldings() }

// totalNAV values every basket balance at its TWAP and adds the raw accounting asset balance.
// Zero balances are skipped and never need a price.
func (b book) totalNAV() (sdkmath.Int, error) {
	nav := b.balance(b.f.accountingAsset)
	for _, token := range b.f.allowedTokens {
		balance := b.balance(token)
		if balance.IsZero() {
			continue
		}
		value, err := b.oracle.ValueOf(token, balance)
		if err != nil {
			return sdkmath.ZeroInt(), err
		}
		nav = nav.Add(value)
	}
	return nav, nil
}

// planHoldings values each basket token for the planner.
func (b book) planHoldings() (sdkmath.Int, []planner.Holding, error) {
	nav := b.balance(b.f.accountingAsset)
	holdings := make([]planner.Holding, 0, len(b.f.allowedTokens))
	for _, token := range b.f.allowedTokens {
		balance := b.balance(token)
		value, err := b.oracle.ValueOf(token, balance)
		if err != nil {
			return sdkmath.ZeroInt(), nil, err
		}
		nav = nav.Add(value)
		holdings = append(holdings, planner.Holding{
			Token:     token,
			Balance:   balance,
			Value:     value,
			TargetBps: b.weights[token],
		})
	}
	return nav, holdings, nil
}

func (b book) weightsVector() []uint64 {
	out := make([]uint64, len(b.f.allowedTokens))
	for i, token := range b.f.allowedTokens {
		out[i] = b.weights[token]
	}
	return out
}

func (b book) sharePrice() (sdkmath.Int, error) {
	supply := b.shares.TotalSupply()
	if supply.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	nav, err := b.totalNAV()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	return nav.Mul(shareScale).Quo(supply), nil
}

func (b book) holdings() []types.TokenPosition {
	f := b.f
	accounting := b.balance(f.accountingAsset)
	positions := []types.TokenPosition{{
		Token:        f.accountingAsset,
		Symbol:       f.SymbolOf(f.accountingAsset),
		Balance:      accounting,
		Value:        accounting,
		Priced:       true,
		IsAccounting: true,
	}}
	nav := accounting
	allPriced := true
	for _, token := range f.allowedTokens {
		balance := b.balance(token)
		value, err := b.oracle.ValueOf(token, balance)
		priced := err == nil
		if !priced {
			allPriced = false
			value = sdkmath.ZeroInt()
		}
		nav = nav.Add(value)
		positions = append(positions, types.TokenPosition{
			Token:     token,
			Symbol:    f.SymbolOf(token),
			Balance:   balance,
			Value:     value,
			Priced:    priced,
			TargetBps: b.weights[token],
		})
	}
	if !allPriced {
		return positions
	}
	for i := range positions {
		positions[i].WeightBps = planner.WeightBps(positions[i].Value, nav)
		positions[i].DeviationBps = planner.DeviationBps(positions[i].Value, nav, positions[i].TargetBps)
	}
	return positions
}

// refreshOracles updates every token's average. A token already updated in this block is left
// alone; one updated less than MinTWAPPeriod ago fails the whole refresh. Callers hold f.mu.
func (f *Fund) refreshOracles() error {
	for _, token := range f.allowedTokens {
		if err := f.updateOracle(token); err != nil {
			return err
		}
	}
	return nil
}

func (f *Fund) updateOracle(token common.Address) error {
	elapsed, err := f.oracle.Update(token)
	if err != nil {
		return err
	}
	if elapsed > 0 {
		view, _ := f.oracle.View(token)
		f.emit(types.EventOracleUpdated, types.OracleUpdated{Token: token, PriceAverage: view.PriceAverage, Elapsed: elapsed})
	}
	return nil
}

// UpdateOracle refreshes the average price of one allowed token. Anyone may call it.
func (f *Fund) UpdateOracle(ctx context.Context, token common.Address) error {
	return f.execute(ctx, "update_oracle", func(ctx context.Context) error {
		if _, ok := f.targetWeights[token]; !ok {
			return errorsmod.Wrapf(types.ErrInvalidArgument, "%s is not an allowed token", token.Hex())
		}
		return f.updateOracle(token)
	})
}

// RefreshOracles refreshes every allowed token's average. Anyone may call it.
func (f *Fund) RefreshOracles(ctx context.Context) error {
	return f.execute(ctx, "refresh_oracles", func(ctx context.Context) error {
		return f.refreshOracles()
	})
}

// SetPool rebinds the oracle of an allowed token to another pool. Owner only.
func (f *Fund) SetPool(ctx context.Context, caller, token common.Address, pool oracle.Pool) error {
	return f.execute(ctx, "set_pool", func(ctx context.Context) error {
		if err := f.requireOwner(caller); err != nil {
			return err
		}
		if _, ok := f.targetWeights[token]; !ok {
			return errorsmod.Wrapf(types.ErrInvalidArgument, "%s is not an allowed token", token.Hex())
		}
		if err := f.oracle.SetPool(token, pool); err != nil {
			return err
		}
		f.emit(types.EventPoolSet, types.PoolSet{Token: token, Pool: pool.Address()})
		return nil
	})
}

// TotalNAV is the fund's value in accounting asset units.
func (f *Fund) TotalNAV() (sdkmath.Int, error) {
	b, release := f.view()
	defer release()
	return b.totalNAV()
}

// NAVInDisplayCurrency converts the NAV to the display currency at the router's spot quote.
// Informational only; nothing in the fund depends on it.
func (f *Fund) NAVInDisplayCurrency(ctx context.Context) (sdkmath.Int, error) {
	if types.IsZeroAddress(f.displayCurrency) {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrInvalidState, "no display currency configured")
	}
	nav, err := f.TotalNAV()
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	if nav.IsZero() {
		return sdkmath.ZeroInt(), nil
	}
	amounts, err := f.router.Quote(ctx, nav, []common.Address{f.accountingAsset, f.displayCurrency})
	if err != nil {
		return sdkmath.ZeroInt(), errorsmod.Wrapf(types.ErrPriceUnavailable, "display quote: %v", err)
	}
	if len(amounts) == 0 {
		return sdkmath.ZeroInt(), errorsmod.Wrap(types.ErrPriceUnavailable, "empty display quote")
	}
	return amounts[len(amounts)-1], nil
}

// SharePrice is the NAV of one whole share (1e18 units), zero when no shares exist.
func (f *Fund) SharePrice() (sdkmath.Int, error) {
	b, release := f.view()
	defer release()
	return b.sharePrice()
}

// Holdings lists the accounting asset and every basket token. Tokens without a price are
// reported with Priced false instead of failing the whole view.
func (f *Fund) Holdings() []types.TokenPosition {
	b, release := f.view()
	defer release()
	return b.holdings()
}

// Summary is a consistent view of NAV, supply, share price and holdings.
func (f *Fund) Summary() (types.FundSummary, error) {
	b, release := f.view()
	defer release()

	nav, err := b.totalNAV()
	if err != nil {
		return types.FundSummary{}, err
	}
	price, err := b.sharePrice()
	if err != nil {
		return types.FundSummary{}, err
	}
	return types.FundSummary{
		Timestamp:   f.clock.Now(),
		NAV:         nav,
		TotalSupply: b.shares.TotalSupply(),
		SharePrice:  price,
		Holdings:    b.holdings(),
	}, nil
}

// NeedsRebalance runs the deviation check against the stored averages without trading.
func (f *Fund) NeedsRebalance() (bool, uint64, error) {
	b, release := f.view()
	defer release()
	nav, holdings, err := b.planHoldings()
	if err != nil {
		return false, 0, err
	}
	needs, maxDev := planner.CheckDeviation(nav, holdings, f.params.RebalanceThresholdBps)
	return needs, maxDev, nil
}

// OracleInfo returns the oracle state of token.
func (f *Fund) OracleInfo(token common.Address) (types.OracleView, bool) {
	b, release := f.view()
	defer release()
	return b.oracle.View(token)
}

// Oracles returns the oracle state of every allowed token.
func (f *Fund) Oracles() []types.OracleView {
	b, release := f.view()
	defer release()
	out := make([]types.OracleView, 0, len(f.allowedTokens))
	for _, token := range f.allowedTokens {
		view, _ := b.oracle.View(token)
		out = append(out, view)
	}
	return out
}
