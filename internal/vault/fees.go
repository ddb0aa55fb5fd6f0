package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/planner"
	"github.com/whackrock/fund/internal/types"
)

// FeeShares splits the AUM fee accrued over elapsedSeconds into agent and protocol shares.
// feeValue = nav * feeBps * elapsed / (10000 * year), minted as feeValue * supply / nav shares,
// 60% to the agent and the remainder to the protocol.
func FeeShares(nav, supply sdkmath.Int, feeBps, elapsedSeconds uint64) (agent, protocol, feeValue sdkmath.Int) {
	zero := sdkmath.ZeroInt()
	if nav.IsZero() || supply.IsZero() || feeBps == 0 || elapsedSeconds == 0 {
		return zero, zero, zero
	}
	feeValue = nav.Mul(sdkmath.NewIntFromUint64(feeBps)).
		Mul(sdkmath.NewIntFromUint64(elapsedSeconds)).
		Quo(sdkmath.NewInt(planner.BasisPoints * secondsPerYear))
	total := feeValue.Mul(supply).Quo(nav)
	agent = total.MulRaw(AgentFeeShareBps).QuoRaw(planner.BasisPoints)
	return agent, total.Sub(agent), feeValue
}

// CollectFee mints the AUM fee accrued since the last collection. Agent only. The collection
// timestamp advances even when the fee rounds to zero shares.
func (f *Fund) CollectFee(ctx context.Context, caller common.Address) error {
	return f.execute(ctx, "collect_fee", func(ctx context.Context) error {
		if err := f.requireAgent(caller); err != nil {
			return err
		}

		now := uint64(f.clock.Now().Unix())
		if now <= f.lastFeeCollection {
			return errorsmod.Wrap(types.ErrInvalidState, "no time elapsed since the last fee collection")
		}
		elapsed := now - f.lastFeeCollection
		f.lastFeeCollection = now

		nav, err := f.totalNAV()
		if err != nil {
			return err
		}
		supply := f.shares.TotalSupply()
		agentShares, protocolShares, feeValue := FeeShares(nav, supply, f.agentAumFeeBps, elapsed)

		if agentShares.IsPositive() {
			if err := f.shares.Mint(f.agentAumFeeWallet, agentShares); err != nil {
				return err
			}
		}
		if protocolShares.IsPositive() {
			if err := f.shares.Mint(f.protocolAumFeeRecipient, protocolShares); err != nil {
				return err
			}
		}

		f.emit(types.EventFeesCollected, types.FeesCollected{
			AgentShares:    agentShares,
			ProtocolShares: protocolShares,
			FeeValue:       feeValue,
			NAV:            nav,
			SupplyBefore:   supply,
			ElapsedSeconds: elapsed,
		})
		f.logger.Info().
			Uint64("elapsed_seconds", elapsed).
			Str("agent_shares", agentShares.String()).
			Str("protocol_shares", protocolShares.String()).
			Msg("AUM fee collected")
		return nil
	})
}
