// Package chain is an in-memory model of the EVM state the fund runs against: ERC-20 and native
// balances, a block clock, and a journal that makes a group of changes revertible as a unit.
package chain

import (
	"errors"
	"fmt"
	"sync"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Error definitions for zero-tolerance error handling
var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidAmount       = errors.New("amount must not be negative")
	ErrInvalidSnapshot     = errors.New("invalid snapshot id")
)

type journalEntry struct {
	undo func()
}

// State holds token balances keyed by token then holder. Native currency lives under types.NativeCurrency.
type State struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]sdkmath.Int
	journal  []journalEntry
	depth    int

	manualClock bool
	now         time.Time
}

// NewState returns an empty state whose clock follows wall time until SetTime or Advance is called.
func NewState() *State {
	return &State{
		balances: make(map[common.Address]map[common.Address]sdkmath.Int),
	}
}

// Now returns the current block time, truncated to seconds.
func (s *State) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.manualClock {
		return s.now
	}
	return time.Now().Truncate(time.Second)
}

// SetTime pins the block clock to t.
func (s *State) SetTime(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manualClock = true
	s.now = t.Truncate(time.Second)
}

// Advance moves a pinned block clock forward. A wall clock is pinned at the current time first.
func (s *State) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.manualClock {
		s.manualClock = true
		s.now = time.Now().Truncate(time.Second)
	}
	s.now = s.now.Add(d)
}

// BalanceOf returns holder's balance of token.
func (s *State) BalanceOf(token, holder common.Address) sdkmath.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceOf(token, holder)
}

// Transfer moves amount of token from one account to another.
func (s *State) Transfer(token, from, to common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	fromBal := s.balanceOf(token, from)
	if fromBal.LT(amount) {
		return fmt.Errorf("%w: %s has %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), fromBal, token.Hex(), amount)
	}
	if amount.IsZero() || from == to {
		return nil
	}
	s.setBalance(token, from, fromBal.Sub(amount))
	s.setBalance(token, to, s.balanceOf(token, to).Add(amount))
	return nil
}

// Mint credits amount of token to holder out of thin air. Devnet faucets and pool seeding use it.
func (s *State) Mint(token, holder common.Address, amount sdkmath.Int) error {
	if amount.IsNil() || amount.IsNegative() {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setBalance(token, holder, s.balanceOf(token, holder).Add(amount))
	return nil
}

// Record appends a custom undo step to the journal. Contracts that keep state outside the balance
// table (pools, for example) register their own rollback here.
func (s *State) Record(undo func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.depth > 0 {
		s.journal = append(s.journal, journalEntry{undo: undo})
	}
}

// Snapshot opens a revertible scope and returns its id.
func (s *State) Snapshot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.depth++
	return len(s.journal)
}

// RevertToSnapshot undoes every change made since the snapshot id and closes its scope.
func (s *State) RevertToSnapshot(id int) error {
	s.mu.Lock()
	if id < 0 || id > len(s.journal) || s.depth == 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	entries := append([]journalEntry(nil), s.journal[id:]...)
	s.journal = s.journal[:id]
	s.depth--
	s.mu.Unlock()

	// Undo closures may call back into State, so they run without the lock held.
	for i := len(entries) - 1; i >= 0; i-- {
		entries[i].undo()
	}
	s.mu.Lock()
	s.trimJournal()
	s.mu.Unlock()
	return nil
}

// Commit closes the scope opened by Snapshot and keeps its changes.
func (s *State) Commit(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id > len(s.journal) || s.depth == 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSnapshot, id)
	}
	s.depth--
	s.trimJournal()
	return nil
}

func (s *State) trimJournal() {
	if s.depth == 0 {
		s.journal = s.journal[:0]
	}
}

func (s *State) balanceOf(token, holder common.Address) sdkmath.Int {
	if bal, ok := s.balances[token][holder]; ok {
		return bal
	}
	return sdkmath.ZeroInt()
}

// setBalance writes a balance and journals the previous value. Callers hold s.mu.
func (s *State) setBalance(token, holder common.Address, amount sdkmath.Int) {
	accounts, ok := s.balances[token]
	if !ok {
		accounts = make(map[common.Address]sdkmath.Int)
		s.balances[token] = accounts
	}
	prev, existed := accounts[holder]
	if s.depth > 0 {
		s.journal = append(s.journal, journalEntry{undo: func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if existed {
				s.balances[token][holder] = prev
			} else {
				delete(s.balances[token], holder)
			}
		}})
	}
	accounts[holder] = amount
}
