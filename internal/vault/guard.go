package vault

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/whackrock/fund/internal/ledger"
	"github.com/whackrock/fund/internal/oracle"
	"github.com/whackrock/fund/internal/types"
	"github.com/whackrock/fund/internal/utils"
)

type operationKey struct{}

// blockClock holds time still while an operation runs: every step of one operation sees the same
// block timestamp, so an oracle refreshed earlier in the operation is a no-op when refreshed again.
type blockClock struct {
	base   Clock
	pinned atomic.Pointer[time.Time]
}

func (c *blockClock) Now() time.Time {
	if t := c.pinned.Load(); t != nil {
		return *t
	}
	return c.base.Now()
}

func (c *blockClock) pin() {
	now := c.base.Now()
	c.pinned.Store(&now)
}

func (c *blockClock) unpin() { c.pinned.Store(nil) }

// accounts is everything an operation may change. A captured copy is never mutated.
type accounts struct {
	balances          map[common.Address]sdkmath.Int // the fund's balances of the accounting asset and allowed tokens
	shares            *ledger.Shares
	oracle            *oracle.TWAP
	weights           map[common.Address]uint64
	agent             common.Address
	lastFeeCollection uint64
}

func (f *Fund) capture() *accounts {
	weights := make(map[common.Address]uint64, len(f.targetWeights))
	for token, w := range f.targetWeights {
		weights[token] = w
	}
	balances := make(map[common.Address]sdkmath.Int, len(f.allowedTokens)+1)
	balances[f.accountingAsset] = f.bank.BalanceOf(f.accountingAsset, f.address)
	for _, token := range f.allowedTokens {
		balances[token] = f.bank.BalanceOf(token, f.address)
	}
	return &accounts{
		balances:          balances,
		shares:            f.shares.Clone(),
		oracle:            f.oracle.Clone(),
		weights:           weights,
		agent:             f.agent,
		lastFeeCollection: f.lastFeeCollection,
	}
}

// checkpoint is the state captured before an operation starts.
type checkpoint struct {
	bankSnapshot int
	accounts     *accounts
}

func (f *Fund) checkpoint() checkpoint {
	return checkpoint{
		bankSnapshot: f.bank.Snapshot(),
		accounts:     f.capture(),
	}
}

// restore rolls back to cp. The captured accounts are cloned again since views may still read them.
func (f *Fund) restore(cp checkpoint) error {
	a := cp.accounts
	f.shares = a.shares.Clone()
	f.oracle = a.oracle.Clone()
	f.targetWeights = make(map[common.Address]uint64, len(a.weights))
	for token, w := range a.weights {
		f.targetWeights[token] = w
	}
	f.agent = a.agent
	f.lastFeeCollection = a.lastFeeCollection
	return f.bank.RevertToSnapshot(cp.bankSnapshot)
}

// view returns a consistent read-only book and the func that releases it. Outside an operation
// that is the live state under the read lock. While an operation runs, reads from any goroutine
// (the router and event sinks the operation calls included) see the state committed before it.
func (f *Fund) view() (book, func()) {
	if committed := f.committed.Load(); committed != nil {
		return committed.book(f), func() {}
	}
	f.mu.RLock()
	return f.live(), f.mu.RUnlock
}

// execute runs fn as one operation: serialized with every other operation, rejected when called
// from inside another operation of the same fund, and fully rolled back when fn fails. Events
// emitted by fn are only published when it succeeds.
func (f *Fund) execute(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if active, _ := ctx.Value(operationKey{}).(*Fund); active == f {
		return errorsmod.Wrapf(types.ErrReentrancy, "%s called during an active operation", operation)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.clock.pin()
	defer f.clock.unpin()

	f.operationID = uuid.New().String()
	f.pending = nil
	opLogger := f.logger.With().Str("operation", operation).Str("operation_id", f.operationID).Logger()

	cp := f.checkpoint()
	f.committed.Store(cp.accounts)
	defer f.committed.Store(nil)

	opCtx := context.WithValue(ctx, operationKey{}, f)
	err := fn(opCtx)
	if err != nil {
		if rerr := f.restore(cp); rerr != nil {
			opLogger.Error().Err(rerr).Msg("Failed to roll back operation")
			err = errors.Join(err, rerr)
		}
		f.pending = nil
		f.metrics.ObserveOperation(operation, "reverted")
		opLogger.Warn().Err(err).Msg("Operation reverted")
		return err
	}

	if cerr := f.bank.Commit(cp.bankSnapshot); cerr != nil {
		opLogger.Error().Err(cerr).Msg("Failed to commit operation")
		return cerr
	}
	// Sinks reading the fund see the operation's result.
	f.committed.Store(f.capture())

	events := f.pending
	f.pending = nil
	for _, ev := range events {
		if perr := f.events.Publish(opCtx, ev); perr != nil {
			opLogger.Error().Err(perr).Str("event", string(ev.Type)).Msg("Failed to publish event")
		}
	}
	f.metrics.ObserveOperation(operation, "ok")
	f.refreshGauges()
	opLogger.Debug().Int("events", len(events)).Msg("Operation committed")
	return nil
}

// emit queues an event for publication when the current operation commits.
func (f *Fund) emit(typ types.EventType, payload interface{}) {
	f.pending = append(f.pending, types.Event{
		ID:          uuid.New().String(),
		OperationID: f.operationID,
		Type:        typ,
		Timestamp:   f.clock.Now(),
		Payload:     payload,
	})
}

func (f *Fund) refreshGauges() {
	if f.metrics == nil {
		return
	}
	nav, err := f.totalNAV()
	if err != nil {
		return
	}
	supply := f.shares.TotalSupply()
	navF, _ := utils.SDKIntToFloat64(nav, 18)
	supplyF, _ := utils.SDKIntToFloat64(supply, int(ledger.Decimals))
	priceF := 0.0
	if supplyF > 0 {
		priceF = navF / supplyF
	}
	f.metrics.SetFundState(navF, supplyF, priceF)
}
