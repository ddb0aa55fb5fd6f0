// Package analyzer computes risk statistics over a fund's share price history.
package analyzer

import (
	"errors"
	"math"
	"sort"
	"time"
)

// ErrInsufficientData indicates that not enough data points were provided
// to calculate volatility (need at least 2 points for 1 return).
var ErrInsufficientData = errors.New("insufficient data points to calculate volatility")

const year = 365 * 24 * time.Hour

// PricePoint is one share price observation.
type PricePoint struct {
	Timestamp time.Time
	Price     float64
}

func sortByTime(points []PricePoint) []PricePoint {
	sorted := append([]PricePoint(nil), points...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})
	return sorted
}

// PeriodsPerYear infers the annualization factor from the average spacing of the points,
// e.g. 8760 for hourly snapshots. Returns 0 when the points span no time.
func PeriodsPerYear(points []PricePoint) float64 {
	if len(points) < 2 {
		return 0
	}
	sorted := sortByTime(points)
	span := sorted[len(sorted)-1].Timestamp.Sub(sorted[0].Timestamp)
	if span <= 0 {
		return 0
	}
	avg := span / time.Duration(len(sorted)-1)
	return float64(year) / float64(avg)
}

// Volatility calculates the annualized volatility of a price series from the population standard
// deviation of its log returns. Points are sorted by time first; pairs with a non-positive price
// are skipped.
func Volatility(points []PricePoint, periodsPerYear float64) (float64, error) {
	if len(points) < 2 {
		return 0, ErrInsufficientData
	}
	sorted := sortByTime(points)

	logReturns := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1].Price, sorted[i].Price
		if prev <= 0 || cur <= 0 {
			continue
		}
		logReturns = append(logReturns, math.Log(cur/prev))
	}
	if len(logReturns) == 0 {
		return 0, ErrInsufficientData
	}

	var sum float64
	for _, r := range logReturns {
		sum += r
	}
	mean := sum / float64(len(logReturns))

	var sumSqDiff float64
	for _, r := range logReturns {
		sumSqDiff += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(sumSqDiff / float64(len(logReturns)))

	return stdDev * math.Sqrt(periodsPerYear), nil
}

// MaxDrawdown returns the largest peak-to-trough fall of the series as a fraction of the peak.
func MaxDrawdown(points []PricePoint) float64 {
	var peak, worst float64
	for _, p := range sortByTime(points) {
		if p.Price > peak {
			peak = p.Price
			continue
		}
		if peak > 0 {
			if dd := (peak - p.Price) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}
