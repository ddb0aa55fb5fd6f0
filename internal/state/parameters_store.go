package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/whackrock/fund/internal/types"
)

// ParameterSet is one stored version of a fund's parameters and target weights.
type ParameterSet struct {
	Version       int                  `json:"version"`
	Params        types.FundParameters `json:"params"`
	TargetWeights []uint64             `json:"target_weights"`
}

// SaveParameters stores params and weights as the next version for fundSymbol and makes it the
// active one. It returns the new version.
func (s *Store) SaveParameters(ctx context.Context, fundSymbol string, params types.FundParameters, weights []uint64) (version int, err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal parameters: %w", err)
	}
	weightsJSON, err := json.Marshal(weights)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal target weights: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `UPDATE fund_parameters SET is_active = FALSE WHERE fund_symbol = $1 AND is_active = TRUE`, fundSymbol); err != nil {
		return 0, fmt.Errorf("failed to deactivate parameters of %s: %w", fundSymbol, err)
	}
	if err = tx.QueryRowxContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM fund_parameters WHERE fund_symbol = $1`, fundSymbol).Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get next parameter version of %s: %w", fundSymbol, err)
	}
	if _, err = tx.ExecContext(ctx, `
		INSERT INTO fund_parameters (fund_symbol, version, is_active, params, target_weights)
		VALUES ($1, $2, TRUE, $3, $4)`, fundSymbol, version, paramsJSON, weightsJSON); err != nil {
		return 0, fmt.Errorf("failed to insert parameters of %s: %w", fundSymbol, err)
	}
	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit parameters of %s: %w", fundSymbol, err)
	}

	s.logger.Info().Str("fund", fundSymbol).Int("version", version).Msg("Fund parameters saved")
	return version, nil
}

// ActiveParameters returns the active parameter set of fundSymbol, ErrNotFound when none was saved.
func (s *Store) ActiveParameters(ctx context.Context, fundSymbol string) (ParameterSet, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var row struct {
		Version       int    `db:"version"`
		Params        []byte `db:"params"`
		TargetWeights []byte `db:"target_weights"`
	}
	err := s.db.GetContext(ctx, &row, `
		SELECT version, params, target_weights
		FROM fund_parameters
		WHERE fund_symbol = $1 AND is_active = TRUE
		ORDER BY version DESC
		LIMIT 1`, fundSymbol)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ParameterSet{}, fmt.Errorf("parameters of %s: %w", fundSymbol, ErrNotFound)
		}
		return ParameterSet{}, fmt.Errorf("failed to load parameters of %s: %w", fundSymbol, err)
	}

	set := ParameterSet{Version: row.Version}
	if err := json.Unmarshal(row.Params, &set.Params); err != nil {
		return ParameterSet{}, fmt.Errorf("failed to unmarshal parameters: %w", err)
	}
	if err := json.Unmarshal(row.TargetWeights, &set.TargetWeights); err != nil {
		return ParameterSet{}, fmt.Errorf("failed to unmarshal target weights: %w", err)
	}
	return set, nil
}

// RestoreParameters returns the active parameter set of fundSymbol. When none was saved yet, or the
// stored weights no longer fit a basket of len(weights) tokens, params and weights are saved as the
// new active version instead. restored reports whether the stored set was kept.
func (s *Store) RestoreParameters(ctx context.Context, fundSymbol string, params types.FundParameters, weights []uint64) (set ParameterSet, restored bool, err error) {
	active, err := s.ActiveParameters(ctx, fundSymbol)
	switch {
	case err == nil && len(active.TargetWeights) == len(weights):
		s.logger.Info().Str("fund", fundSymbol).Int("version", active.Version).Msg("Restored active fund parameters")
		return active, true, nil
	case err == nil:
		s.logger.Warn().
			Str("fund", fundSymbol).
			Int("version", active.Version).
			Int("stored_weights", len(active.TargetWeights)).
			Int("basket_tokens", len(weights)).
			Msg("Stored weights do not fit the basket, saving the definition's parameters")
	case !errors.Is(err, ErrNotFound):
		return ParameterSet{}, false, err
	}

	version, err := s.SaveParameters(ctx, fundSymbol, params, weights)
	if err != nil {
		return ParameterSet{}, false, err
	}
	return ParameterSet{Version: version, Params: params, TargetWeights: append([]uint64(nil), weights...)}, false, nil
}

// ParameterRecorder is an event sink that saves a new parameter version whenever the fund's target
// weights change, so a restart restores the weights last set.
type ParameterRecorder struct {
	store  *Store
	symbol string
	params types.FundParameters
}

func (s *Store) ParameterRecorder(fundSymbol string, params types.FundParameters) *ParameterRecorder {
	return &ParameterRecorder{store: s, symbol: fundSymbol, params: params}
}

func (r *ParameterRecorder) Publish(ctx context.Context, ev types.Event) error {
	if ev.Type != types.EventTargetWeightsUpdated {
		return nil
	}
	payload, ok := ev.Payload.(types.TargetWeightsUpdated)
	if !ok {
		return fmt.Errorf("unexpected %s payload %T", ev.Type, ev.Payload)
	}
	_, err := r.store.SaveParameters(ctx, r.symbol, r.params, payload.Weights)
	return err
}
