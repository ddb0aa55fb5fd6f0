package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/whackrock/fund/internal/types"
	"github.com/whackrock/fund/internal/utils"
)

// FundFile is the YAML layout of a fund definition.
type FundFile struct {
	Name            string `yaml:"name"`
	Symbol          string `yaml:"symbol"`
	Address         string `yaml:"address"`
	Owner           string `yaml:"owner"`
	Agent           string `yaml:"agent"`
	AccountingAsset string `yaml:"accounting_asset"`
	DisplayCurrency string `yaml:"display_currency"`
	Fees            struct {
		AgentAumFeeBps    uint64 `yaml:"agent_aum_fee_bps"`
		AgentWallet       string `yaml:"agent_wallet"`
		ProtocolRecipient string `yaml:"protocol_recipient"`
	} `yaml:"fees"`
	Tokens     []TokenEntry       `yaml:"tokens"`
	Basket     []BasketEntry      `yaml:"basket"`
	Parameters ParameterOverrides `yaml:"parameters"`
	Devnet     struct {
		LiquidityProvider string        `yaml:"liquidity_provider"`
		Pools             []PoolSeed    `yaml:"pools"`
		Balances          []BalanceSeed `yaml:"balances"`
	} `yaml:"devnet"`
}

// TokenEntry defines a token that is not in the address book, or overrides one that is.
type TokenEntry struct {
	Symbol   string `yaml:"symbol"`
	Address  string `yaml:"address"`
	Decimals int    `yaml:"decimals"`
}

type BasketEntry struct {
	Symbol    string `yaml:"symbol"`
	WeightBps uint64 `yaml:"weight_bps"`
}

// ParameterOverrides replace the matching DefaultFundParameters value when non-zero.
type ParameterOverrides struct {
	RebalanceThresholdBps uint64 `yaml:"rebalance_threshold_bps"`
	SlippageToleranceBps  uint64 `yaml:"slippage_tolerance_bps"`
	MinTWAPPeriod         string `yaml:"min_twap_period"`
	SwapDeadlineOffset    string `yaml:"swap_deadline_offset"`
}

// PoolSeed is a devnet pool with its initial reserves in human-readable units.
type PoolSeed struct {
	TokenA   string `yaml:"token_a"`
	TokenB   string `yaml:"token_b"`
	ReserveA string `yaml:"reserve_a"`
	ReserveB string `yaml:"reserve_b"`
}

// BalanceSeed funds a devnet account. Token "NATIVE" seeds native currency.
type BalanceSeed struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// Fund is a validated fund definition with every symbol resolved to a token.
type Fund struct {
	Name              string
	Symbol            string
	Address           common.Address
	Owner             common.Address
	Agent             common.Address
	AccountingAsset   types.Token
	DisplayCurrency   types.Token
	Basket            []types.Token
	Weights           []uint64
	AgentAumFeeBps    uint64
	AgentFeeWallet    common.Address
	ProtocolRecipient common.Address
	Params            types.FundParameters
	LiquidityProvider common.Address
	Pools             []Pool
	Balances          []Balance
}

type Pool struct {
	TokenA, TokenB     types.Token
	ReserveA, ReserveB sdkmath.Int
}

type Balance struct {
	Account common.Address
	Token   common.Address
	Amount  sdkmath.Int
}

// Error definitions for zero-tolerance error handling
var (
	ErrFundConfigInvalid = errors.New("fund config is invalid")
	ErrUnknownToken      = errors.New("unknown token symbol")
)

// LoadFund reads a fund definition from a YAML file, applies environment overrides and validates it.
func LoadFund(path string) (*Fund, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fund config: %w", err)
	}
	return ParseFund(data)
}

// ParseFund parses and validates a YAML fund definition.
func ParseFund(data []byte) (*Fund, error) {
	file := &FundFile{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse fund config: %w", err)
	}

	// Environment variable overrides
	if v := os.Getenv("FUND_AGENT"); v != "" {
		file.Agent = v
	}
	if v := os.Getenv("FUND_OWNER"); v != "" {
		file.Owner = v
	}

	return file.Resolve()
}

// Resolve validates the file and resolves every symbol and amount.
func (f *FundFile) Resolve() (*Fund, error) {
	if f.Name == "" || f.Symbol == "" {
		return nil, errors.Join(ErrFundConfigInvalid, errors.New("name and symbol are required"))
	}

	tokens := make(map[string]types.Token, len(TokenAddressBook)+len(f.Tokens))
	for sym, t := range TokenAddressBook {
		tokens[sym] = t
	}
	for _, t := range f.Tokens {
		addr, err := parseAddress("tokens."+t.Symbol, t.Address)
		if err != nil {
			return nil, err
		}
		tokens[t.Symbol] = types.Token{Symbol: t.Symbol, Address: addr, Decimals: t.Decimals}
	}
	lookup := func(sym string) (types.Token, error) {
		t, ok := tokens[sym]
		if !ok {
			return types.Token{}, fmt.Errorf("%w: %q", ErrUnknownToken, sym)
		}
		return t, nil
	}

	out := &Fund{Name: f.Name, Symbol: f.Symbol, AgentAumFeeBps: f.Fees.AgentAumFeeBps}

	var err error
	addressFields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"address", f.Address, &out.Address},
		{"owner", f.Owner, &out.Owner},
		{"agent", f.Agent, &out.Agent},
		{"fees.agent_wallet", f.Fees.AgentWallet, &out.AgentFeeWallet},
		{"fees.protocol_recipient", f.Fees.ProtocolRecipient, &out.ProtocolRecipient},
	}
	for _, field := range addressFields {
		if *field.dst, err = parseAddress(field.name, field.raw); err != nil {
			return nil, err
		}
	}

	if out.AccountingAsset, err = lookup(f.AccountingAsset); err != nil {
		return nil, errors.Join(ErrFundConfigInvalid, err)
	}
	if out.DisplayCurrency, err = lookup(f.DisplayCurrency); err != nil {
		return nil, errors.Join(ErrFundConfigInvalid, err)
	}

	if len(f.Basket) == 0 {
		return nil, errors.Join(ErrFundConfigInvalid, errors.New("basket must contain at least one token"))
	}
	for _, b := range f.Basket {
		t, err := lookup(b.Symbol)
		if err != nil {
			return nil, errors.Join(ErrFundConfigInvalid, err)
		}
		out.Basket = append(out.Basket, t)
		out.Weights = append(out.Weights, b.WeightBps)
	}

	if out.Params, err = f.Parameters.apply(DefaultFundParameters); err != nil {
		return nil, err
	}

	if f.Devnet.LiquidityProvider != "" {
		if out.LiquidityProvider, err = parseAddress("devnet.liquidity_provider", f.Devnet.LiquidityProvider); err != nil {
			return nil, err
		}
	}
	for i, p := range f.Devnet.Pools {
		pool := Pool{}
		if pool.TokenA, err = lookup(p.TokenA); err != nil {
			return nil, errors.Join(ErrFundConfigInvalid, err)
		}
		if pool.TokenB, err = lookup(p.TokenB); err != nil {
			return nil, errors.Join(ErrFundConfigInvalid, err)
		}
		if pool.ReserveA, err = utils.ParseAmount(p.ReserveA, pool.TokenA.Decimals); err != nil {
			return nil, errors.Join(ErrFundConfigInvalid, fmt.Errorf("devnet.pools[%d].reserve_a: %w", i, err))
		}
		if pool.ReserveB, err = utils.ParseAmount(p.ReserveB, pool.TokenB.Decimals); err != nil {
			return nil, errors.Join(ErrFundConfigInvalid, fmt.Errorf("devnet.pools[%d].reserve_b: %w", i, err))
		}
		out.Pools = append(out.Pools, pool)
	}
	for i, b := range f.Devnet.Balances {
		bal := Balance{}
		if bal.Account, err = parseAddress(fmt.Sprintf("devnet.balances[%d].account", i), b.Account); err != nil {
			return nil, err
		}
		decimals := 18
		if b.Token == "NATIVE" {
			bal.Token = types.NativeCurrency
		} else {
			t, err := lookup(b.Token)
			if err != nil {
				return nil, errors.Join(ErrFundConfigInvalid, err)
			}
			bal.Token, decimals = t.Address, t.Decimals
		}
		if bal.Amount, err = utils.ParseAmount(b.Amount, decimals); err != nil {
			return nil, errors.Join(ErrFundConfigInvalid, fmt.Errorf("devnet.balances[%d].amount: %w", i, err))
		}
		out.Balances = append(out.Balances, bal)
	}

	if err := out.Validate(); err != nil {
		return nil, err
	}
	return out, nil
}

// Validate checks the cross-field rules of a resolved fund.
func (f *Fund) Validate() error {
	var errs []error

	var sum uint64
	seen := make(map[common.Address]bool, len(f.Basket))
	for i, t := range f.Basket {
		if t.Address == f.AccountingAsset.Address {
			errs = append(errs, fmt.Errorf("basket token %s is the accounting asset", t.Symbol))
		}
		if seen[t.Address] {
			errs = append(errs, fmt.Errorf("basket token %s is listed twice", t.Symbol))
		}
		seen[t.Address] = true
		sum += f.Weights[i]
	}
	if sum != 10000 {
		errs = append(errs, fmt.Errorf("basket weights sum to %d bps, want 10000", sum))
	}
	if f.AgentAumFeeBps > f.Params.MaxAumFeeBps {
		errs = append(errs, fmt.Errorf("fees.agent_aum_fee_bps %d exceeds maximum %d", f.AgentAumFeeBps, f.Params.MaxAumFeeBps))
	}

	if len(errs) > 0 {
		return errors.Join(append([]error{ErrFundConfigInvalid}, errs...)...)
	}
	return nil
}

func (o ParameterOverrides) apply(base types.FundParameters) (types.FundParameters, error) {
	if o.RebalanceThresholdBps != 0 {
		base.RebalanceThresholdBps = o.RebalanceThresholdBps
	}
	if o.SlippageToleranceBps != 0 {
		base.SlippageToleranceBps = o.SlippageToleranceBps
	}
	if o.MinTWAPPeriod != "" {
		d, err := time.ParseDuration(o.MinTWAPPeriod)
		if err != nil {
			return base, errors.Join(ErrFundConfigInvalid, fmt.Errorf("parameters.min_twap_period: %w", err))
		}
		base.MinTWAPPeriod = d
	}
	if o.SwapDeadlineOffset != "" {
		d, err := time.ParseDuration(o.SwapDeadlineOffset)
		if err != nil {
			return base, errors.Join(ErrFundConfigInvalid, fmt.Errorf("parameters.swap_deadline_offset: %w", err))
		}
		base.SwapDeadlineOffset = d
	}
	return base, nil
}

func parseAddress(field, raw string) (common.Address, error) {
	if !common.IsHexAddress(raw) {
		return common.Address{}, errors.Join(ErrFundConfigInvalid, fmt.Errorf("%s: %q is not a hex address", field, raw))
	}
	return common.HexToAddress(raw), nil
}
