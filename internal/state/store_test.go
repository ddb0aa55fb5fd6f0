package state

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ethereum/go-ethereum/common"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whackrock/fund/internal/types"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(sqlx.NewDb(db, "postgres"), time.Second), mock
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS fund_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResetDropsThenRecreates(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(regexp.QuoteMeta("DROP TABLE IF EXISTS fund_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS fund_events")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, store.Reset(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPublishInsertsEvent(t *testing.T) {
	store, mock := newMockStore(t)

	ev := types.Event{
		ID:          "8f14e45f-ceea-467a-9b36-0f7d5b2a8a11",
		OperationID: "c9f0f895-fb98-4b91-9a5b-6a2c0e8f9e42",
		Type:        types.EventDeposit,
		Timestamp:   time.Unix(1_700_000_000, 0).UTC(),
		Payload: types.Deposit{
			Depositor: common.HexToAddress("0x6666666666666666666666666666666666666666"),
			Amount:    sdkmath.NewInt(10),
			Shares:    sdkmath.NewInt(10),
		},
	}
	payload, err := json.Marshal(ev.Payload)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fund_events")).
		WithArgs(ev.ID, ev.OperationID, "DEPOSIT", ev.Timestamp, payload).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, store.Publish(context.Background(), ev))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecentEvents(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Unix(1_700_000_000, 0).UTC()

	rows := sqlmock.NewRows([]string{"event_id", "operation_id", "event_type", "event_timestamp", "payload"}).
		AddRow("e2", "op2", "SWAP_EXECUTED", ts.Add(time.Second), []byte(`{"amount_in":"5"}`)).
		AddRow("e1", "op1", "DEPOSIT", ts, []byte(`{"amount":"10"}`))
	mock.ExpectQuery(regexp.QuoteMeta("FROM fund_events")).
		WithArgs("", 2).
		WillReturnRows(rows)

	events, err := store.RecentEvents(context.Background(), 2, "")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, types.EventSwapExecuted, events[0].Type)
	assert.Equal(t, "op1", events[1].OperationID)
	assert.JSONEq(t, `{"amount":"10"}`, string(events[1].Payload.(json.RawMessage)))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveAndReadNAVSnapshot(t *testing.T) {
	store, mock := newMockStore(t)
	ts := time.Unix(1_700_000_000, 0).UTC()

	snap := types.NAVSnapshot{
		CycleID:     "5a105e8b-9d40-4132-9780-d62ea2265d8a",
		CycleNumber: 3,
		Timestamp:   ts,
		NAV:         sdkmath.NewIntWithDecimal(10, 18),
		TotalSupply: sdkmath.NewIntWithDecimal(10, 18),
		SharePrice:  sdkmath.NewIntWithDecimal(1, 18),
		Holdings: []types.TokenPosition{{
			Token:   common.HexToAddress("0x4200000000000000000000000000000000000006"),
			Symbol:  "WETH",
			Balance: sdkmath.NewInt(1),
			Value:   sdkmath.NewInt(1),
			Priced:  true,
		}},
		MaxDeviationBps: 12,
	}

	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO nav_snapshots")).
		WithArgs(snap.CycleID, int64(3), ts, "10000000000000000000", nil,
			"10000000000000000000", "1000000000000000000", sqlmock.AnyArg(), int64(12), false, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}).AddRow(int64(7)))

	id, err := store.SaveNAVSnapshot(context.Background(), snap)
	require.NoError(t, err)
	require.Equal(t, int64(7), id)

	holdings, err := json.Marshal(snap.Holdings)
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("FROM nav_snapshots WHERE snapshot_id = $1")).
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"snapshot_id", "cycle_id", "cycle_number", "snapshot_timestamp", "nav", "nav_display",
			"total_supply", "share_price", "holdings", "max_deviation_bps", "rebalanced", "errors",
		}).AddRow(int64(7), snap.CycleID, int64(3), ts, "10000000000000000000", "29910000000",
			"10000000000000000000", "1000000000000000000", holdings, int64(12), true, "{oracle not ready}"))

	got, err := store.SnapshotByID(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, got.NAV.Equal(snap.NAV))
	assert.Equal(t, "29910000000", got.NAVDisplay.String())
	assert.True(t, got.Rebalanced)
	assert.Equal(t, []string{"oracle not ready"}, got.Errors)
	require.Len(t, got.Holdings, 1)
	assert.Equal(t, "WETH", got.Holdings[0].Symbol)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSnapshotByIDNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("FROM nav_snapshots WHERE snapshot_id = $1")).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_id"}))

	_, err := store.SnapshotByID(context.Background(), 99)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCycleCounter(t *testing.T) {
	store, mock := newMockStore(t)
	ctx := context.Background()

	mock.ExpectQuery(regexp.QuoteMeta("UPDATE cycle_counter")).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(int64(42)))
	n, err := store.IncrementCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT current_cycle FROM cycle_counter")).
		WillReturnRows(sqlmock.NewRows([]string{"current_cycle"}).AddRow(int64(42)))
	n, err = store.CurrentCycleNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), n)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE cycle_counter")).
		WithArgs(int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, store.ResetCycleNumber(ctx, 0))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveParametersActivatesNewVersion(t *testing.T) {
	store, mock := newMockStore(t)
	params := types.FundParameters{
		MinDeposit:            sdkmath.NewInt(1),
		MinInitialDeposit:     sdkmath.NewInt(2),
		MinimumLiquidity:      sdkmath.NewInt(1000),
		RebalanceThresholdBps: 100,
		SlippageToleranceBps:  100,
		MinTWAPPeriod:         10 * time.Minute,
		SwapDeadlineOffset:    5 * time.Minute,
		MaxAumFeeBps:          1000,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fund_parameters SET is_active = FALSE")).
		WithArgs("WRF").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1")).
		WithArgs("WRF").
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fund_parameters")).
		WithArgs("WRF", 2, sqlmock.AnyArg(), []byte(`[6000,4000]`)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	version, err := store.SaveParameters(context.Background(), "WRF", params, []uint64{6000, 4000})
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	paramsJSON, err := json.Marshal(params)
	require.NoError(t, err)
	mock.ExpectQuery(regexp.QuoteMeta("FROM fund_parameters")).
		WithArgs("WRF").
		WillReturnRows(sqlmock.NewRows([]string{"version", "params", "target_weights"}).
			AddRow(2, paramsJSON, []byte(`[6000,4000]`)))

	set, err := store.ActiveParameters(context.Background(), "WRF")
	require.NoError(t, err)
	assert.Equal(t, 2, set.Version)
	assert.Equal(t, []uint64{6000, 4000}, set.TargetWeights)
	assert.Equal(t, 10*time.Minute, set.Params.MinTWAPPeriod)
	assert.True(t, set.Params.MinimumLiquidity.Equal(params.MinimumLiquidity))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveParametersRollsBackOnFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fund_parameters")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := store.SaveParameters(context.Background(), "WRF", types.FundParameters{}, []uint64{10000})
	require.ErrorIs(t, err, assert.AnError)
	require.NoError(t, mock.ExpectationsWereMet())
}

func expectSaveParameters(mock sqlmock.Sqlmock, symbol string, version int, weights string) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE fund_parameters SET is_active = FALSE")).
		WithArgs(symbol).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1")).
		WithArgs(symbol).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(version))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO fund_parameters")).
		WithArgs(symbol, version, sqlmock.AnyArg(), []byte(weights)).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
}

func TestRestoreParameters(t *testing.T) {
	ctx := context.Background()
	params := types.FundParameters{RebalanceThresholdBps: 100, MinTWAPPeriod: 10 * time.Minute}
	stored := types.FundParameters{RebalanceThresholdBps: 250, MinTWAPPeriod: 15 * time.Minute}
	storedJSON, err := json.Marshal(stored)
	require.NoError(t, err)

	t.Run("keeps the stored set", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM fund_parameters")).
			WithArgs("WRF").
			WillReturnRows(sqlmock.NewRows([]string{"version", "params", "target_weights"}).
				AddRow(3, storedJSON, []byte(`[9000,1000]`)))

		set, restored, err := store.RestoreParameters(ctx, "WRF", params, []uint64{6000, 4000})
		require.NoError(t, err)
		assert.True(t, restored)
		assert.Equal(t, 3, set.Version)
		assert.Equal(t, []uint64{9000, 1000}, set.TargetWeights)
		assert.Equal(t, uint64(250), set.Params.RebalanceThresholdBps)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("saves the first version", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM fund_parameters")).
			WithArgs("WRF").
			WillReturnRows(sqlmock.NewRows([]string{"version", "params", "target_weights"}))
		expectSaveParameters(mock, "WRF", 1, `[6000,4000]`)

		set, restored, err := store.RestoreParameters(ctx, "WRF", params, []uint64{6000, 4000})
		require.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, 1, set.Version)
		assert.Equal(t, params, set.Params)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("replaces weights of another basket", func(t *testing.T) {
		store, mock := newMockStore(t)
		mock.ExpectQuery(regexp.QuoteMeta("FROM fund_parameters")).
			WithArgs("WRF").
			WillReturnRows(sqlmock.NewRows([]string{"version", "params", "target_weights"}).
				AddRow(3, storedJSON, []byte(`[10000]`)))
		expectSaveParameters(mock, "WRF", 4, `[6000,4000]`)

		set, restored, err := store.RestoreParameters(ctx, "WRF", params, []uint64{6000, 4000})
		require.NoError(t, err)
		assert.False(t, restored)
		assert.Equal(t, 4, set.Version)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestParameterRecorderVersionsWeightChanges(t *testing.T) {
	store, mock := newMockStore(t)
	recorder := store.ParameterRecorder("WRF", types.FundParameters{RebalanceThresholdBps: 100})
	ctx := context.Background()

	require.NoError(t, recorder.Publish(ctx, types.Event{Type: types.EventDeposit}))

	expectSaveParameters(mock, "WRF", 5, `[9000,1000]`)
	require.NoError(t, recorder.Publish(ctx, types.Event{
		Type:    types.EventTargetWeightsUpdated,
		Payload: types.TargetWeightsUpdated{Weights: []uint64{9000, 1000}},
	}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPerformance(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM nav_snapshots")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count", "rebalanced", "failed"}).
			AddRow(3, 1, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT snapshot_timestamp, share_price FROM nav_snapshots")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"snapshot_timestamp", "share_price"}).
			AddRow(since, "1000000000000000000").
			AddRow(since.Add(12*time.Hour), "980000000000000000").
			AddRow(since.Add(24*time.Hour), "1050000000000000000"))

	p, err := store.GetPerformance(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 3, p.Snapshots)
	assert.Equal(t, 1, p.Rebalances)
	assert.Equal(t, 1, p.FailedCycles)
	assert.Equal(t, "5", p.ReturnPercent.String())
	assert.Equal(t, "1.05", p.LastSharePrice.String())
	assert.Equal(t, "2", p.MaxDrawdownPercent.String())
	assert.True(t, p.Until.Equal(since.Add(24*time.Hour)))
	assert.Greater(t, p.Volatility, 0.0)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetPerformanceEmptyWindow(t *testing.T) {
	store, mock := newMockStore(t)
	since := time.Unix(1_700_000_000, 0).UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM nav_snapshots")).
		WithArgs(since).
		WillReturnRows(sqlmock.NewRows([]string{"count", "rebalanced", "failed"}).AddRow(0, 0, 0))

	p, err := store.GetPerformance(context.Background(), since)
	require.NoError(t, err)
	assert.Zero(t, p.Snapshots)
	assert.True(t, p.ReturnPercent.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEventCounts(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT event_type, COUNT(*) FROM fund_events")).
		WillReturnRows(sqlmock.NewRows([]string{"event_type", "count"}).
			AddRow("DEPOSIT", 4).
			AddRow("SWAP_EXECUTED", 9))

	counts, err := store.EventCounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"DEPOSIT": 4, "SWAP_EXECUTED": 9}, counts)
}
