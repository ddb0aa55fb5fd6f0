package vault

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
)

// Transfer moves shares from caller to `to`.
func (f *Fund) Transfer(ctx context.Context, caller, to common.Address, amount sdkmath.Int) error {
	return f.execute(ctx, "transfer", func(ctx context.Context) error {
		return f.shares.Transfer(caller, to, amount)
	})
}

// Approve lets spender move up to amount of caller's shares.
func (f *Fund) Approve(ctx context.Context, caller, spender common.Address, amount sdkmath.Int) error {
	return f.execute(ctx, "approve", func(ctx context.Context) error {
		return f.shares.Approve(caller, spender, amount)
	})
}

// TransferFrom moves shares from `from` to `to` against caller's allowance.
func (f *Fund) TransferFrom(ctx context.Context, caller, from, to common.Address, amount sdkmath.Int) error {
	return f.execute(ctx, "transfer_from", func(ctx context.Context) error {
		return f.shares.TransferFrom(caller, from, to, amount)
	})
}
