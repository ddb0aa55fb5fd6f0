// Package ledger is the fund's ERC-20 share ledger.
package ledger

import (
	"sort"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/types"
)

// Decimals of every fund share token.
const Decimals uint8 = 18

// Shares tracks balances and allowances. The sum of all balances always equals TotalSupply.
// It is not safe for concurrent use.
type Shares struct {
	name        string
	symbol      string
	totalSupply sdkmath.Int
	balances    map[common.Address]sdkmath.Int
	allowances  map[common.Address]map[common.Address]sdkmath.Int
}

func NewShares(name, symbol string) *Shares {
	return &Shares{
		name:        name,
		symbol:      symbol,
		totalSupply: sdkmath.ZeroInt(),
		balances:    make(map[common.Address]sdkmath.Int),
		allowances:  make(map[common.Address]map[common.Address]sdkmath.Int),
	}
}

func (s *Shares) Name() string             { return s.name }
func (s *Shares) Symbol() string           { return s.symbol }
func (s *Shares) Decimals() uint8          { return Decimals }
func (s *Shares) TotalSupply() sdkmath.Int { return s.totalSupply }

func (s *Shares) BalanceOf(holder common.Address) sdkmath.Int {
	if bal, ok := s.balances[holder]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

func (s *Shares) Allowance(owner, spender common.Address) sdkmath.Int {
	if a, ok := s.allowances[owner][spender]; ok {
		return a
	}
	return sdkmath.ZeroInt()
}

// Holders returns every address with a non-zero balance, sorted.
func (s *Shares) Holders() []common.Address {
	out := make([]common.Address, 0, len(s.balances))
	for holder := range s.balances {
		out = append(out, holder)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}

func (s *Shares) Mint(to common.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if types.IsZeroAddress(to) {
		return errorsmod.Wrap(types.ErrZeroAddress, "mint to the zero address")
	}
	s.setBalance(to, s.BalanceOf(to).Add(amount))
	s.totalSupply = s.totalSupply.Add(amount)
	return nil
}

func (s *Shares) Burn(from common.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	bal := s.BalanceOf(from)
	if bal.LT(amount) {
		return errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s, burning %s", from.Hex(), bal, amount)
	}
	s.setBalance(from, bal.Sub(amount))
	s.totalSupply = s.totalSupply.Sub(amount)
	return nil
}

func (s *Shares) Transfer(from, to common.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if types.IsZeroAddress(to) {
		return errorsmod.Wrap(types.ErrZeroAddress, "transfer to the zero address")
	}
	bal := s.BalanceOf(from)
	if bal.LT(amount) {
		return errorsmod.Wrapf(types.ErrInsufficientShares, "%s holds %s, sending %s", from.Hex(), bal, amount)
	}
	s.setBalance(from, bal.Sub(amount))
	s.setBalance(to, s.BalanceOf(to).Add(amount))
	return nil
}

func (s *Shares) Approve(owner, spender common.Address, amount sdkmath.Int) error {
	if err := checkAmount(amount); err != nil {
		return err
	}
	if types.IsZeroAddress(spender) {
		return errorsmod.Wrap(types.ErrZeroAddress, "approve the zero address")
	}
	m, ok := s.allowances[owner]
	if !ok {
		m = make(map[common.Address]sdkmath.Int)
		s.allowances[owner] = m
	}
	if amount.IsZero() {
		delete(m, spender)
		return nil
	}
	m[spender] = amount
	return nil
}

// SpendAllowance deducts amount from the allowance owner granted spender.
func (s *Shares) SpendAllowance(owner, spender common.Address, amount sdkmath.Int) error {
	allowed := s.Allowance(owner, spender)
	if allowed.LT(amount) {
		return errorsmod.Wrapf(types.ErrInsufficientAllowance, "%s may spend %s of %s, needs %s", spender.Hex(), allowed, owner.Hex(), amount)
	}
	return s.Approve(owner, spender, allowed.Sub(amount))
}

func (s *Shares) TransferFrom(spender, from, to common.Address, amount sdkmath.Int) error {
	if err := s.SpendAllowance(from, spender, amount); err != nil {
		return err
	}
	return s.Transfer(from, to, amount)
}

// Clone returns an independent copy. Int values are immutable, so copying the maps is enough.
func (s *Shares) Clone() *Shares {
	c := NewShares(s.name, s.symbol)
	c.totalSupply = s.totalSupply
	for holder, bal := range s.balances {
		c.balances[holder] = bal
	}
	for owner, m := range s.allowances {
		cm := make(map[common.Address]sdkmath.Int, len(m))
		for spender, a := range m {
			cm[spender] = a
		}
		c.allowances[owner] = cm
	}
	return c
}

func (s *Shares) setBalance(holder common.Address, amount sdkmath.Int) {
	if amount.IsZero() {
		delete(s.balances, holder)
		return
	}
	s.balances[holder] = amount
}

func checkAmount(amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return errorsmod.Wrap(types.ErrInvalidArgument, "share amount must be non-negative")
	}
	return nil
}
