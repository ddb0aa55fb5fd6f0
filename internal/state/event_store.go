package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/whackrock/fund/internal/types"
)

type eventRow struct {
	ID          string    `db:"event_id"`
	OperationID string    `db:"operation_id"`
	Type        string    `db:"event_type"`
	Timestamp   time.Time `db:"event_timestamp"`
	Payload     []byte    `db:"payload"`
}

// Publish appends a committed fund event to the journal. Replaying an event is a no-op.
func (s *Store) Publish(ctx context.Context, ev types.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", ev.Type, err)
	}

	query := `
		INSERT INTO fund_events (event_id, operation_id, event_type, event_timestamp, payload)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, ev.ID, ev.OperationID, string(ev.Type), ev.Timestamp, payload); err != nil {
		return fmt.Errorf("failed to insert event %s: %w", ev.ID, err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. An empty eventType matches every type.
// Payloads are returned as raw JSON.
func (s *Store) RecentEvents(ctx context.Context, limit int, eventType types.EventType) ([]types.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT event_id, operation_id, event_type, event_timestamp, payload
		FROM fund_events
		WHERE ($1 = '' OR event_type = $1)
		ORDER BY event_timestamp DESC, recorded_at DESC
		LIMIT $2`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, string(eventType), limit); err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}

	events := make([]types.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, types.Event{
			ID:          r.ID,
			OperationID: r.OperationID,
			Type:        types.EventType(r.Type),
			Timestamp:   r.Timestamp,
			Payload:     json.RawMessage(r.Payload),
		})
	}
	return events, nil
}

// OperationEvents returns every event of one operation in the order they were emitted.
func (s *Store) OperationEvents(ctx context.Context, operationID string) ([]types.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	query := `
		SELECT event_id, operation_id, event_type, event_timestamp, payload
		FROM fund_events
		WHERE operation_id = $1
		ORDER BY recorded_at ASC`

	var rows []eventRow
	if err := s.db.SelectContext(ctx, &rows, query, operationID); err != nil {
		return nil, fmt.Errorf("failed to query events of operation %s: %w", operationID, err)
	}
	events := make([]types.Event, 0, len(rows))
	for _, r := range rows {
		events = append(events, types.Event{
			ID:          r.ID,
			OperationID: r.OperationID,
			Type:        types.EventType(r.Type),
			Timestamp:   r.Timestamp,
			Payload:     json.RawMessage(r.Payload),
		})
	}
	return events, nil
}
