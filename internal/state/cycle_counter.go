/*

The agent numbers its cycles with a counter kept in the database, so numbering continues across restarts.

*/

package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// CurrentCycleNumber returns the number of the last agent cycle.
func (s *Store) CurrentCycleNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var current int64
	err := s.db.QueryRowxContext(ctx, `SELECT current_cycle FROM cycle_counter WHERE id = 1`).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn().Msg("No cycle counter row found, starting from 0")
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get current cycle number: %w", err)
	}
	return uint64(current), nil
}

// IncrementCycleNumber advances the counter and returns the new cycle number.
func (s *Store) IncrementCycleNumber(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		UPDATE cycle_counter
		SET current_cycle = current_cycle + 1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
		RETURNING current_cycle`

	var next int64
	if err := s.db.QueryRowxContext(ctx, query).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment cycle number: %w", err)
	}
	s.logger.Debug().Int64("cycle", next).Msg("Incremented cycle counter")
	return uint64(next), nil
}

// ResetCycleNumber sets the counter to n (for testing/maintenance).
func (s *Store) ResetCycleNumber(ctx context.Context, n uint64) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `
		UPDATE cycle_counter
		SET current_cycle = $1,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = 1`, int64(n))
	if err != nil {
		return fmt.Errorf("failed to reset cycle number to %d: %w", n, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return errors.New("no rows updated when resetting cycle number")
	}

	s.logger.Warn().Uint64("cycle", n).Msg("Reset cycle counter")
	return nil
}
