/*

The planner turns holdings, valuations and target weights into the swaps that move the fund toward its targets.
It is pure arithmetic: the fund executes the legs and owns every side effect.

Rebalancing runs in two phases. First every overweight token is partly sold for the accounting asset; then the
accounting asset on hand is spread over the underweight tokens in proportion to how far below target each one is.

*/

package planner

import (
	"fmt"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/types"
)

// BasisPoints is the denominator of every weight.
const BasisPoints = 10_000

// Holding is one basket token as the fund sees it when planning.
type Holding struct {
	Token     common.Address
	Balance   sdkmath.Int
	Value     sdkmath.Int // In accounting asset units
	TargetBps uint64
}

// TokenRebalanceInfo is the per-token working set of one rebalance.
type TokenRebalanceInfo struct {
	Token        common.Address
	Balance      sdkmath.Int
	CurrentValue sdkmath.Int
	TargetValue  sdkmath.Int
	Delta        sdkmath.Int // TargetValue - CurrentValue, negative when overweight
}

// Leg is a single swap. For sells AmountIn is in the basket token; for buys it is in the accounting asset.
type Leg struct {
	Token    common.Address
	AmountIn sdkmath.Int
}

// ValidateWeights checks a weight vector for a basket of tokenCount tokens.
func ValidateWeights(weights []uint64, tokenCount int) error {
	if len(weights) != tokenCount {
		return errorsmod.Wrapf(types.ErrInvalidArgument, "got %d weights for %d tokens", len(weights), tokenCount)
	}
	var sum uint64
	for i, w := range weights {
		if w > BasisPoints {
			return errorsmod.Wrapf(types.ErrInvalidArgument, "weight %d is %d bps, above %d", i, w, BasisPoints)
		}
		sum += w
	}
	if sum != BasisPoints {
		return errorsmod.Wrapf(types.ErrInvalidArgument, "weights sum to %d bps, want %d", sum, BasisPoints)
	}
	return nil
}

// BuildInfos computes target values and deltas against nav.
func BuildInfos(nav sdkmath.Int, holdings []Holding) ([]TokenRebalanceInfo, error) {
	if nav.IsNil() || !nav.IsPositive() {
		return nil, errorsmod.Wrapf(types.ErrInvalidState, "cannot plan against NAV %s", nav)
	}
	infos := make([]TokenRebalanceInfo, 0, len(holdings))
	for _, h := range holdings {
		if h.TargetBps > BasisPoints {
			return nil, errorsmod.Wrapf(types.ErrInvalidState, "token %s has target %d bps", h.Token.Hex(), h.TargetBps)
		}
		target := nav.MulRaw(int64(h.TargetBps)).QuoRaw(BasisPoints)
		infos = append(infos, TokenRebalanceInfo{
			Token:        h.Token,
			Balance:      h.Balance,
			CurrentValue: h.Value,
			TargetValue:  target,
			Delta:        target.Sub(h.Value),
		})
	}
	return infos, nil
}

// SellLegs returns the sale of each overweight token: the share of its balance whose value equals
// the excess, never more than the balance. Zero-amount legs are dropped.
func SellLegs(infos []TokenRebalanceInfo) []Leg {
	var legs []Leg
	for _, info := range infos {
		if !info.Delta.IsNegative() || !info.CurrentValue.IsPositive() {
			continue
		}
		amount := info.Balance.Mul(info.Delta.Abs()).Quo(info.CurrentValue)
		if amount.GT(info.Balance) {
			amount = info.Balance
		}
		if amount.IsZero() {
			continue
		}
		legs = append(legs, Leg{Token: info.Token, AmountIn: amount})
	}
	return legs
}

// Demand is the accounting value all underweight tokens are short of.
func Demand(infos []TokenRebalanceInfo) sdkmath.Int {
	demand := sdkmath.ZeroInt()
	for _, info := range infos {
		if info.Delta.IsPositive() {
			demand = demand.Add(info.Delta)
		}
	}
	return demand
}

// BuyLegs rations available accounting asset over the underweight tokens: each spends
// delta * min(available, demand) / demand. Zero-amount legs are dropped.
func BuyLegs(infos []TokenRebalanceInfo, available sdkmath.Int) []Leg {
	demand := Demand(infos)
	if demand.IsZero() || available.IsNil() || !available.IsPositive() {
		return nil
	}
	budget := sdkmath.MinInt(available, demand)

	var legs []Leg
	for _, info := range infos {
		if !info.Delta.IsPositive() {
			continue
		}
		amount := info.Delta.Mul(budget).Quo(demand)
		if amount.IsZero() {
			continue
		}
		legs = append(legs, Leg{Token: info.Token, AmountIn: amount})
	}
	return legs
}

// WeightBps is value's share of nav in basis points, rounded down. Zero when nav is zero.
func WeightBps(value, nav sdkmath.Int) uint64 {
	if nav.IsNil() || !nav.IsPositive() || value.IsNil() {
		return 0
	}
	return value.MulRaw(BasisPoints).Quo(nav).Uint64()
}

// DeviationBps is the absolute distance between the actual and the target weight.
func DeviationBps(value, nav sdkmath.Int, targetBps uint64) uint64 {
	actual := WeightBps(value, nav)
	if actual > targetBps {
		return actual - targetBps
	}
	return targetBps - actual
}

// CheckDeviation reports whether any holding deviates from its target by more than thresholdBps,
// along with the largest deviation seen. A zero NAV never needs a rebalance.
func CheckDeviation(nav sdkmath.Int, holdings []Holding, thresholdBps uint64) (bool, uint64) {
	if nav.IsNil() || !nav.IsPositive() {
		return false, 0
	}
	var maxDev uint64
	needs := false
	for _, h := range holdings {
		dev := DeviationBps(h.Value, nav, h.TargetBps)
		if dev > maxDev {
			maxDev = dev
		}
		if dev > thresholdBps {
			needs = true
		}
	}
	return needs, maxDev
}

// String renders a leg for logs.
func (l Leg) String() string {
	return fmt.Sprintf("%s:%s", l.Token.Hex(), l.AmountIn)
}
