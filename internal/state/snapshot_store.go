package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/lib/pq" // PostgreSQL driver for array support

	"github.com/whackrock/fund/internal/types"
)

// ErrNotFound is returned when a lookup by id matches no row.
var ErrNotFound = errors.New("record not found")

type snapshotRow struct {
	ID              int64          `db:"snapshot_id"`
	CycleID         string         `db:"cycle_id"`
	CycleNumber     int64          `db:"cycle_number"`
	Timestamp       time.Time      `db:"snapshot_timestamp"`
	NAV             string         `db:"nav"`
	NAVDisplay      sql.NullString `db:"nav_display"`
	TotalSupply     string         `db:"total_supply"`
	SharePrice      string         `db:"share_price"`
	Holdings        []byte         `db:"holdings"`
	MaxDeviationBps int64          `db:"max_deviation_bps"`
	Rebalanced      bool           `db:"rebalanced"`
	Errors          pq.StringArray `db:"errors"`
}

const snapshotColumns = `snapshot_id, cycle_id, cycle_number, snapshot_timestamp, nav, nav_display,
	total_supply, share_price, holdings, max_deviation_bps, rebalanced, errors`

// SaveNAVSnapshot stores the fund state observed at the end of an agent cycle and returns its id.
func (s *Store) SaveNAVSnapshot(ctx context.Context, snap types.NAVSnapshot) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	holdingsJSON, err := json.Marshal(snap.Holdings)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal holdings: %w", err)
	}
	var navDisplay sql.NullString
	if !snap.NAVDisplay.IsNil() {
		navDisplay = sql.NullString{String: snap.NAVDisplay.String(), Valid: true}
	}

	query := `
		INSERT INTO nav_snapshots (
			cycle_id, cycle_number, snapshot_timestamp, nav, nav_display,
			total_supply, share_price, holdings, max_deviation_bps, rebalanced, errors
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING snapshot_id`

	var id int64
	err = s.db.QueryRowxContext(ctx, query,
		snap.CycleID, int64(snap.CycleNumber), snap.Timestamp, intString(snap.NAV), navDisplay,
		intString(snap.TotalSupply), intString(snap.SharePrice), holdingsJSON,
		int64(snap.MaxDeviationBps), snap.Rebalanced, pq.Array(snap.Errors),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save NAV snapshot: %w", err)
	}

	s.logger.Info().
		Int64("snapshot_id", id).
		Uint64("cycle_number", snap.CycleNumber).
		Str("nav", intString(snap.NAV)).
		Msg("NAV snapshot saved to database")
	return id, nil
}

// RecentSnapshots returns up to limit snapshots, newest first.
func (s *Store) RecentSnapshots(ctx context.Context, limit int) ([]types.NAVSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	var rows []snapshotRow
	query := `SELECT ` + snapshotColumns + ` FROM nav_snapshots ORDER BY snapshot_timestamp DESC LIMIT $1`
	if err := s.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query NAV snapshots: %w", err)
	}

	out := make([]types.NAVSnapshot, 0, len(rows))
	for _, r := range rows {
		snap, err := r.toSnapshot()
		if err != nil {
			s.logger.Error().Err(err).Int64("snapshot_id", r.ID).Msg("Skipping unreadable NAV snapshot")
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// SnapshotByID returns one snapshot, ErrNotFound when there is none.
func (s *Store) SnapshotByID(ctx context.Context, id int64) (types.NAVSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var r snapshotRow
	query := `SELECT ` + snapshotColumns + ` FROM nav_snapshots WHERE snapshot_id = $1`
	if err := s.db.GetContext(ctx, &r, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.NAVSnapshot{}, fmt.Errorf("snapshot %d: %w", id, ErrNotFound)
		}
		return types.NAVSnapshot{}, fmt.Errorf("failed to get snapshot %d: %w", id, err)
	}
	return r.toSnapshot()
}

func (r snapshotRow) toSnapshot() (types.NAVSnapshot, error) {
	snap := types.NAVSnapshot{
		ID:              r.ID,
		CycleID:         r.CycleID,
		CycleNumber:     uint64(r.CycleNumber),
		Timestamp:       r.Timestamp,
		MaxDeviationBps: uint64(r.MaxDeviationBps),
		Rebalanced:      r.Rebalanced,
		Errors:          []string(r.Errors),
	}
	var err error
	if snap.NAV, err = parseInt("nav", r.NAV); err != nil {
		return snap, err
	}
	if snap.TotalSupply, err = parseInt("total_supply", r.TotalSupply); err != nil {
		return snap, err
	}
	if snap.SharePrice, err = parseInt("share_price", r.SharePrice); err != nil {
		return snap, err
	}
	if r.NAVDisplay.Valid {
		if snap.NAVDisplay, err = parseInt("nav_display", r.NAVDisplay.String); err != nil {
			return snap, err
		}
	}
	if len(r.Holdings) > 0 {
		if err := json.Unmarshal(r.Holdings, &snap.Holdings); err != nil {
			return snap, fmt.Errorf("failed to unmarshal holdings: %w", err)
		}
	}
	return snap, nil
}

func intString(v sdkmath.Int) string {
	if v.IsNil() {
		return "0"
	}
	return v.String()
}

func parseInt(column, s string) (sdkmath.Int, error) {
	v, ok := sdkmath.NewIntFromString(s)
	if !ok {
		return sdkmath.Int{}, fmt.Errorf("invalid %s value %q", column, s)
	}
	return v, nil
}
