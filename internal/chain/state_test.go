package chain

import (
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
)

var (
	tokenA = common.HexToAddress("0xa")
	alice  = common.HexToAddress("0x1")
	bob    = common.HexToAddress("0x2")
)

func TestTransfer(t *testing.T) {
	require := require.New(t)
	s := NewState()

	require.NoError(s.Mint(tokenA, alice, sdkmath.NewInt(100)))
	require.NoError(s.Transfer(tokenA, alice, bob, sdkmath.NewInt(40)))
	require.Equal(int64(60), s.BalanceOf(tokenA, alice).Int64())
	require.Equal(int64(40), s.BalanceOf(tokenA, bob).Int64())

	err := s.Transfer(tokenA, bob, alice, sdkmath.NewInt(41))
	require.ErrorIs(err, ErrInsufficientBalance)

	require.ErrorIs(s.Transfer(tokenA, alice, bob, sdkmath.NewInt(-1)), ErrInvalidAmount)
	require.True(s.BalanceOf(tokenA, common.HexToAddress("0x3")).IsZero())
}

func TestSnapshotRevert(t *testing.T) {
	require := require.New(t)
	s := NewState()
	require.NoError(s.Mint(tokenA, alice, sdkmath.NewInt(100)))

	undone := false
	id := s.Snapshot()
	require.NoError(s.Transfer(tokenA, alice, bob, sdkmath.NewInt(70)))
	require.NoError(s.Mint(tokenA, bob, sdkmath.NewInt(5)))
	s.Record(func() { undone = true })

	require.NoError(s.RevertToSnapshot(id))
	require.True(undone)
	require.Equal(int64(100), s.BalanceOf(tokenA, alice).Int64())
	require.True(s.BalanceOf(tokenA, bob).IsZero())
}

func TestSnapshotCommit(t *testing.T) {
	require := require.New(t)
	s := NewState()
	require.NoError(s.Mint(tokenA, alice, sdkmath.NewInt(10)))

	id := s.Snapshot()
	require.NoError(s.Transfer(tokenA, alice, bob, sdkmath.NewInt(10)))
	require.NoError(s.Commit(id))
	require.Equal(int64(10), s.BalanceOf(tokenA, bob).Int64())

	// The scope is closed; reverting it again is an error.
	require.ErrorIs(s.RevertToSnapshot(id), ErrInvalidSnapshot)
}

func TestNestedSnapshots(t *testing.T) {
	require := require.New(t)
	s := NewState()
	require.NoError(s.Mint(tokenA, alice, sdkmath.NewInt(10)))

	outer := s.Snapshot()
	require.NoError(s.Transfer(tokenA, alice, bob, sdkmath.NewInt(3)))
	inner := s.Snapshot()
	require.NoError(s.Transfer(tokenA, alice, bob, sdkmath.NewInt(3)))
	require.NoError(s.RevertToSnapshot(inner))
	require.Equal(int64(3), s.BalanceOf(tokenA, bob).Int64())

	require.NoError(s.RevertToSnapshot(outer))
	require.True(s.BalanceOf(tokenA, bob).IsZero())
	require.Equal(int64(10), s.BalanceOf(tokenA, alice).Int64())
}

func TestClock(t *testing.T) {
	s := NewState()
	start := time.Unix(1_700_000_000, 0)
	s.SetTime(start)
	require.Equal(t, start, s.Now())

	s.Advance(10 * time.Minute)
	require.Equal(t, start.Add(10*time.Minute), s.Now())
}
