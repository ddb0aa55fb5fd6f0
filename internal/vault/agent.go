package vault

import (
	"context"

	errorsmod "cosmossdk.io/errors"
	"github.com/ethereum/go-ethereum/common"

	"github.com/whackrock/fund/internal/planner"
	"github.com/whackrock/fund/internal/types"
)

// SetAgent replaces the agent. Owner only.
func (f *Fund) SetAgent(ctx context.Context, caller, newAgent common.Address) error {
	return f.execute(ctx, "set_agent", func(ctx context.Context) error {
		if err := f.requireOwner(caller); err != nil {
			return err
		}
		if types.IsZeroAddress(newAgent) {
			return errorsmod.Wrap(types.ErrZeroAddress, "agent")
		}
		old := f.agent
		f.agent = newAgent
		f.emit(types.EventAgentUpdated, types.AgentUpdated{OldAgent: old, NewAgent: newAgent})
		f.logger.Info().Str("old_agent", old.Hex()).Str("new_agent", newAgent.Hex()).Msg("Agent updated")
		return nil
	})
}

// SetTargetWeights replaces the target weights, given in allowed-token order. Agent only.
func (f *Fund) SetTargetWeights(ctx context.Context, caller common.Address, weights []uint64) error {
	return f.execute(ctx, "set_target_weights", func(ctx context.Context) error {
		return f.setTargetWeights(caller, weights)
	})
}

// SetTargetWeightsAndRebalance replaces the target weights and rebalances regardless of deviation. Agent only.
func (f *Fund) SetTargetWeightsAndRebalance(ctx context.Context, caller common.Address, weights []uint64) error {
	return f.execute(ctx, "set_target_weights_and_rebalance", func(ctx context.Context) error {
		if err := f.setTargetWeights(caller, weights); err != nil {
			return err
		}
		return f.rebalance(ctx)
	})
}

// TriggerRebalance rebalances only when the deviation check calls for it, so calling it again
// right after a rebalance does nothing. Agent only. Reports whether a rebalance ran.
func (f *Fund) TriggerRebalance(ctx context.Context, caller common.Address) (bool, error) {
	rebalanced := false
	err := f.execute(ctx, "trigger_rebalance", func(ctx context.Context) error {
		if err := f.requireAgent(caller); err != nil {
			return err
		}
		var err error
		rebalanced, err = f.rebalanceIfNeeded(ctx, false)
		return err
	})
	return rebalanced, err
}

func (f *Fund) setTargetWeights(caller common.Address, weights []uint64) error {
	if err := f.requireAgent(caller); err != nil {
		return err
	}
	if err := planner.ValidateWeights(weights, len(f.allowedTokens)); err != nil {
		return err
	}
	for i, token := range f.allowedTokens {
		f.targetWeights[token] = weights[i]
	}
	f.emit(types.EventTargetWeightsUpdated, types.TargetWeightsUpdated{
		Tokens:  append([]common.Address(nil), f.allowedTokens...),
		Weights: append([]uint64(nil), weights...),
	})
	return nil
}
