// Package vault is the agent-managed fund: a share ledger over a basket of tokens held in the
// accounting asset's terms, with deposits, pro-rata withdrawals, TWAP-based valuation, threshold
// rebalancing and an AUM fee paid in shares.
package vault

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/whackrock/fund/internal/ledger"
	"github.com/whackrock/fund/internal/logger"
	"github.com/whackrock/fund/internal/metrics"
	"github.com/whackrock/fund/internal/oracle"
	"github.com/whackrock/fund/internal/planner"
	"github.com/whackrock/fund/internal/types"
)

const (
	// AgentFeeShareBps is the agent's part of every fee mint; the protocol recipient gets the rest.
	AgentFeeShareBps = 6000

	secondsPerYear = 31_536_000
)

// Config holds everything needed to create a fund.
type Config struct {
	Name    string
	Symbol  string
	Address common.Address // The fund's own account in the bank

	Owner           common.Address
	Agent           common.Address
	AccountingAsset common.Address
	DisplayCurrency common.Address // Optional, used by NAVInDisplayCurrency
	AllowedTokens   []common.Address
	TargetWeights   []uint64
	Symbols         map[common.Address]string // Optional display symbols

	AgentAumFeeBps          uint64
	AgentAumFeeWallet       common.Address
	ProtocolAumFeeRecipient common.Address

	Params types.FundParameters
	Pools  map[common.Address]oracle.Pool // One {token, accounting asset} pool per allowed token

	Bank    TokenBank
	Clock   Clock
	Router  SwapRouter
	Events  EventSink         // Optional, defaults to logging
	Metrics *metrics.Registry // Optional
}

// Fund is safe for concurrent use. Every state-changing method runs as one atomic operation.
type Fund struct {
	mu sync.RWMutex

	name            string
	symbol          string
	address         common.Address
	owner           common.Address
	agent           common.Address
	accountingAsset common.Address
	displayCurrency common.Address
	allowedTokens   []common.Address
	targetWeights   map[common.Address]uint64
	symbols         map[common.Address]string

	agentAumFeeBps          uint64
	agentAumFeeWallet       common.Address
	protocolAumFeeRecipient common.Address
	lastFeeCollection       uint64

	params  types.FundParameters
	bank    TokenBank
	clock   *blockClock
	router  SwapRouter
	oracle  *oracle.TWAP
	shares  *ledger.Shares
	events  EventSink
	metrics *metrics.Registry
	logger  zerolog.Logger

	// Per-operation state, only touched with mu held.
	operationID string
	pending     []types.Event

	// What views read while an operation holds mu.
	committed atomic.Pointer[accounts]
}

func validateFundConfig(cfg Config) error {
	var errs []error

	if cfg.Name == "" || cfg.Symbol == "" {
		errs = append(errs, errors.New("name and symbol are required"))
	}
	for name, addr := range map[string]common.Address{
		"fund address":               cfg.Address,
		"owner":                      cfg.Owner,
		"agent":                      cfg.Agent,
		"accounting asset":           cfg.AccountingAsset,
		"agent AUM fee wallet":       cfg.AgentAumFeeWallet,
		"protocol AUM fee recipient": cfg.ProtocolAumFeeRecipient,
	} {
		if types.IsZeroAddress(addr) {
			errs = append(errs, fmt.Errorf("%s is the zero address", name))
		}
	}

	if len(cfg.AllowedTokens) == 0 {
		errs = append(errs, errors.New("at least one allowed token is required"))
	}
	seen := make(map[common.Address]bool, len(cfg.AllowedTokens))
	for _, token := range cfg.AllowedTokens {
		switch {
		case types.IsZeroAddress(token):
			errs = append(errs, errors.New("allowed token is the zero address"))
		case token == cfg.AccountingAsset:
			errs = append(errs, errors.New("the accounting asset cannot be an allowed token"))
		case seen[token]:
			errs = append(errs, fmt.Errorf("allowed token %s is listed twice", token.Hex()))
		}
		seen[token] = true
		if _, ok := cfg.Pools[token]; !ok {
			errs = append(errs, fmt.Errorf("no pool for allowed token %s", token.Hex()))
		}
	}
	if err := planner.ValidateWeights(cfg.TargetWeights, len(cfg.AllowedTokens)); err != nil {
		errs = append(errs, err)
	}

	if cfg.AgentAumFeeBps > cfg.Params.MaxAumFeeBps {
		errs = append(errs, fmt.Errorf("AUM fee %d bps exceeds maximum %d", cfg.AgentAumFeeBps, cfg.Params.MaxAumFeeBps))
	}
	p := cfg.Params
	if p.MinDeposit.IsNil() || p.MinInitialDeposit.IsNil() || p.MinimumLiquidity.IsNil() {
		errs = append(errs, errors.New("deposit floors are required"))
	} else if p.MinInitialDeposit.LT(p.MinDeposit) {
		errs = append(errs, errors.New("minimum initial deposit is below the minimum deposit"))
	}
	if p.SlippageToleranceBps >= planner.BasisPoints {
		errs = append(errs, fmt.Errorf("slippage tolerance %d bps must be below %d", p.SlippageToleranceBps, planner.BasisPoints))
	}
	if p.SwapDeadlineOffset <= 0 {
		errs = append(errs, errors.New("swap deadline offset must be positive"))
	}

	if cfg.Bank == nil || cfg.Clock == nil || cfg.Router == nil {
		errs = append(errs, errors.New("bank, clock and router are required"))
	}

	if len(errs) > 0 {
		return errorsmod.Wrap(types.ErrInvalidArgument, errors.Join(errs...).Error())
	}
	return nil
}

// NewFund validates cfg, binds the oracle pools and returns an empty fund.
func NewFund(cfg Config) (*Fund, error) {
	if err := validateFundConfig(cfg); err != nil {
		return nil, err
	}

	f := &Fund{
		name:                    cfg.Name,
		symbol:                  cfg.Symbol,
		address:                 cfg.Address,
		owner:                   cfg.Owner,
		agent:                   cfg.Agent,
		accountingAsset:         cfg.AccountingAsset,
		displayCurrency:         cfg.DisplayCurrency,
		allowedTokens:           append([]common.Address(nil), cfg.AllowedTokens...),
		targetWeights:           make(map[common.Address]uint64, len(cfg.AllowedTokens)),
		symbols:                 cfg.Symbols,
		agentAumFeeBps:          cfg.AgentAumFeeBps,
		agentAumFeeWallet:       cfg.AgentAumFeeWallet,
		protocolAumFeeRecipient: cfg.ProtocolAumFeeRecipient,
		lastFeeCollection:       uint64(cfg.Clock.Now().Unix()),
		params:                  cfg.Params,
		bank:                    cfg.Bank,
		clock:                   &blockClock{base: cfg.Clock},
		router:                  cfg.Router,
		shares:                  ledger.NewShares(cfg.Name, cfg.Symbol),
		events:                  cfg.Events,
		metrics:                 cfg.Metrics,
		logger:                  logger.GetForComponent("fund").With().Str("fund", cfg.Symbol).Logger(),
	}
	f.oracle = oracle.New(cfg.AccountingAsset, f.clock, cfg.Params.MinTWAPPeriod)
	if f.events == nil {
		f.events = NewLogSink()
	}
	for i, token := range cfg.AllowedTokens {
		f.targetWeights[token] = cfg.TargetWeights[i]
		if err := f.oracle.SetPool(token, cfg.Pools[token]); err != nil {
			return nil, err
		}
	}

	f.logger.Info().
		Str("address", f.address.Hex()).
		Str("agent", f.agent.Hex()).
		Int("tokens", len(f.allowedTokens)).
		Uint64("aum_fee_bps", f.agentAumFeeBps).
		Msg("Fund created")
	return f, nil
}

func (f *Fund) Name() string                    { return f.name }
func (f *Fund) Symbol() string                  { return f.symbol }
func (f *Fund) Decimals() uint8                 { return ledger.Decimals }
func (f *Fund) Address() common.Address         { return f.address }
func (f *Fund) Owner() common.Address           { return f.owner }
func (f *Fund) AccountingAsset() common.Address { return f.accountingAsset }
func (f *Fund) DisplayCurrency() common.Address { return f.displayCurrency }
func (f *Fund) Params() types.FundParameters    { return f.params }
func (f *Fund) AgentAumFeeBps() uint64          { return f.agentAumFeeBps }

func (f *Fund) AllowedTokens() []common.Address {
	return append([]common.Address(nil), f.allowedTokens...)
}

func (f *Fund) Agent() common.Address {
	b, release := f.view()
	defer release()
	return b.agent
}

// TargetWeights returns the weights in allowed-token order.
func (f *Fund) TargetWeights() []uint64 {
	b, release := f.view()
	defer release()
	return b.weightsVector()
}

func (f *Fund) TotalSupply() sdkmath.Int {
	b, release := f.view()
	defer release()
	return b.shares.TotalSupply()
}

func (f *Fund) BalanceOf(holder common.Address) sdkmath.Int {
	b, release := f.view()
	defer release()
	return b.shares.BalanceOf(holder)
}

func (f *Fund) Allowance(owner, spender common.Address) sdkmath.Int {
	b, release := f.view()
	defer release()
	return b.shares.Allowance(owner, spender)
}

func (f *Fund) LastFeeCollection() time.Time {
	b, release := f.view()
	defer release()
	return time.Unix(int64(b.lastFeeCollection), 0)
}

// ShareHolders lists every account holding shares with its balance, sorted by address.
func (f *Fund) ShareHolders() []types.ShareBalance {
	b, release := f.view()
	defer release()
	holders := b.shares.Holders()
	out := make([]types.ShareBalance, 0, len(holders))
	for _, holder := range holders {
		out = append(out, types.ShareBalance{Holder: holder, Shares: b.shares.BalanceOf(holder)})
	}
	return out
}

// SymbolOf returns the display symbol of token, or its address.
func (f *Fund) SymbolOf(token common.Address) string {
	if s, ok := f.symbols[token]; ok {
		return s
	}
	return token.Hex()
}

func (f *Fund) requireAgent(caller common.Address) error {
	if caller != f.agent {
		return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the agent", caller.Hex())
	}
	return nil
}

func (f *Fund) requireOwner(caller common.Address) error {
	if caller != f.owner {
		return errorsmod.Wrapf(types.ErrUnauthorized, "%s is not the owner", caller.Hex())
	}
	return nil
}

func (f *Fund) isBasketAsset(token common.Address) bool {
	if token == f.accountingAsset {
		return true
	}
	_, ok := f.targetWeights[token]
	return ok
}
