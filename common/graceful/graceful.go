// Package graceful tracks in-flight requests so shutdown can drain them.
package graceful

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"

	"github.com/paiml/universal-bot/common/logger"
)

const drainPollInterval = 100 * time.Millisecond

var (
	inFlightRequests atomic.Int64
	draining         atomic.Bool
)

// BeginRequest increments the in-flight counter and returns the matching decrement.
// Use with defer at the top of a handler or middleware.
func BeginRequest() func() {
	inFlightRequests.Add(1)
	return func() {
		inFlightRequests.Add(-1)
	}
}

// InFlight returns the number of tracked requests.
func InFlight() int64 {
	return inFlightRequests.Load()
}

// Drain waits until no request is in flight, bounded by ctx.
func Drain(ctx context.Context) error {
	ticker := time.NewTicker(drainPollInterval)
	defer ticker.Stop()

	for {
		n := inFlightRequests.Load()
		if n == 0 {
			logger.Logger.Info("graceful drain complete")
			return nil
		}

		select {
		case <-ctx.Done():
			logger.Logger.Error("graceful drain timeout", zap.Int64("in_flight_requests", n))
			return ctx.Err()
		case <-ticker.C:
			logger.Logger.Debug("draining...", zap.Int64("in_flight_requests", n))
		}
	}
}

// SetDraining flips the draining flag to true.
func SetDraining() { draining.Store(true) }

// IsDraining returns whether the server is currently draining.
func IsDraining() bool { return draining.Load() }
