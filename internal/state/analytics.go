package state

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/whackrock/fund/internal/analyzer"
)

// Performance aggregates the NAV snapshot history.
type Performance struct {
	Snapshots          int             `json:"snapshots"`
	Rebalances         int             `json:"rebalances"`
	FailedCycles       int             `json:"failed_cycles"`
	Since              time.Time       `json:"since"`
	Until              time.Time       `json:"until"`
	FirstSharePrice    decimal.Decimal `json:"first_share_price"`
	LastSharePrice     decimal.Decimal `json:"last_share_price"`
	ReturnPercent      decimal.Decimal `json:"return_percent"` // Share price change over the window
	MaxDrawdownPercent decimal.Decimal `json:"max_drawdown_percent"`
	Volatility         float64         `json:"annualized_volatility"` // 0 with fewer than two priced snapshots
}

// GetPerformance summarizes every snapshot taken at or after since.
func (s *Store) GetPerformance(ctx context.Context, since time.Time) (Performance, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var p Performance
	err := s.db.QueryRowxContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE rebalanced),
			COUNT(*) FILTER (WHERE cardinality(errors) > 0)
		FROM nav_snapshots
		WHERE snapshot_timestamp >= $1`, since).Scan(&p.Snapshots, &p.Rebalances, &p.FailedCycles)
	if err != nil {
		return Performance{}, fmt.Errorf("failed to aggregate snapshots: %w", err)
	}
	if p.Snapshots == 0 {
		return p, nil
	}

	rows, err := s.db.QueryxContext(ctx, `
		SELECT snapshot_timestamp, share_price FROM nav_snapshots
		WHERE snapshot_timestamp >= $1
		ORDER BY snapshot_timestamp, snapshot_id`, since)
	if err != nil {
		return Performance{}, fmt.Errorf("failed to query share prices: %w", err)
	}
	defer rows.Close()

	var prices []decimal.Decimal
	var points []analyzer.PricePoint
	for rows.Next() {
		var ts time.Time
		var raw string
		if err := rows.Scan(&ts, &raw); err != nil {
			return Performance{}, fmt.Errorf("failed to scan share price: %w", err)
		}
		price, err := decimal.NewFromString(raw)
		if err != nil {
			return Performance{}, fmt.Errorf("share price %q at %s: %w", raw, ts, err)
		}
		price = price.Shift(-18)
		if len(prices) == 0 {
			p.Since = ts
		}
		p.Until = ts
		prices = append(prices, price)
		f, _ := price.Float64()
		points = append(points, analyzer.PricePoint{Timestamp: ts, Price: f})
	}
	if err := rows.Err(); err != nil {
		return Performance{}, fmt.Errorf("error during row iteration: %w", err)
	}
	if len(prices) == 0 {
		return p, nil
	}

	p.FirstSharePrice = prices[0]
	p.LastSharePrice = prices[len(prices)-1]
	if p.FirstSharePrice.IsPositive() {
		p.ReturnPercent = p.LastSharePrice.Sub(p.FirstSharePrice).Div(p.FirstSharePrice).Mul(decimal.NewFromInt(100)).Round(4)
	}
	p.MaxDrawdownPercent = decimal.NewFromFloat(analyzer.MaxDrawdown(points) * 100).Round(4)
	if vol, err := analyzer.Volatility(points, analyzer.PeriodsPerYear(points)); err == nil {
		p.Volatility = vol
	}
	return p, nil
}

// EventCounts returns how many events of each type have been journaled.
func (s *Store) EventCounts(ctx context.Context) (map[string]int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rows, err := s.db.QueryxContext(ctx, `SELECT event_type, COUNT(*) FROM fund_events GROUP BY event_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("failed to scan event count: %w", err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return counts, nil
}
