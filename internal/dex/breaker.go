package dex

import (
	"context"
	"errors"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sony/gobreaker"

	"github.com/whackrock/fund/internal/logger"
	"github.com/whackrock/fund/internal/types"
)

// SwapRouter is the router surface the fund trades through.
type SwapRouter interface {
	Quote(ctx context.Context, amountIn sdkmath.Int, route []common.Address) ([]sdkmath.Int, error)
	SwapExactIn(ctx context.Context, p types.SwapParams) ([]sdkmath.Int, error)
}

// BreakerRouter stops calling a failing router until it has had time to recover.
type BreakerRouter struct {
	next SwapRouter
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerRouter wraps next with a circuit breaker that opens after three consecutive failures
// or a 5% failure rate over at least 20 calls. Slippage and deadline rejections are the caller's
// problem, not the router's, and do not count as failures.
func NewBreakerRouter(name string, next SwapRouter, timeout time.Duration) *BreakerRouter {
	breakerLogger := logger.GetForComponent("dex_breaker")

	st := gobreaker.Settings{Name: name}
	st.Interval = 60 * time.Second
	st.Timeout = timeout
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		if counts.ConsecutiveFailures >= 3 {
			return true
		}
		if counts.Requests < 20 {
			return false
		}
		return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, ErrInsufficientOutputAmount) || errors.Is(err, ErrExpired)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		breakerLogger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("Router circuit breaker changed state")
	}
	return &BreakerRouter{next: next, cb: gobreaker.NewCircuitBreaker(st)}
}

func (b *BreakerRouter) Quote(ctx context.Context, amountIn sdkmath.Int, route []common.Address) ([]sdkmath.Int, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Quote(ctx, amountIn, route)
	})
	if err != nil {
		return nil, err
	}
	return res.([]sdkmath.Int), nil
}

func (b *BreakerRouter) SwapExactIn(ctx context.Context, p types.SwapParams) ([]sdkmath.Int, error) {
	res, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.SwapExactIn(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	return res.([]sdkmath.Int), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *BreakerRouter) State() string {
	return b.cb.State().String()
}
