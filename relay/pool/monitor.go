package pool

import (
	"context"
	"time"

	"github.com/Laisky/zap"
)

// lowAvailabilityRatio is the share of free handles below which the monitor warns.
const lowAvailabilityRatio = 0.1

// HealthReport is one observation of the pool made by the HealthMonitor.
type HealthReport struct {
	Stats           Stats
	LowAvailability bool
	TimeoutsSeen    bool
}

// Healthy reports whether the observation raised no warning.
func (r HealthReport) Healthy() bool {
	return !r.LowAvailability && !r.TimeoutsSeen
}

// Inspect evaluates a stats snapshot.
func Inspect(stats Stats) HealthReport {
	report := HealthReport{Stats: stats}
	if stats.TotalClients > 0 &&
		float64(stats.AvailableClients)/float64(stats.TotalClients) < lowAvailabilityRatio {
		report.LowAvailability = true
	}
	report.TimeoutsSeen = stats.AcquisitionTimeouts > 0
	return report
}

// HealthMonitor periodically inspects a pool and logs warnings.
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger
	// onReport receives every report, for tests and metrics.
	onReport func(HealthReport)
}

// MonitorOption customizes a HealthMonitor.
type MonitorOption func(*HealthMonitor)

// WithReportHook registers a callback invoked after each inspection.
func WithReportHook(f func(HealthReport)) MonitorOption {
	return func(m *HealthMonitor) {
		m.onReport = f
	}
}

// NewHealthMonitor creates a monitor. A nil logger disables logging.
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger, opts ...MonitorOption) *HealthMonitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &HealthMonitor{pool: pool, interval: interval, logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run inspects the pool every interval until ctx ends or the pool is closed.
func (m *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.pool.Closed() {
				return
			}
			m.check()
		}
	}
}

func (m *HealthMonitor) check() {
	report := Inspect(m.pool.Stats())
	if report.LowAvailability {
		m.logger.Warn("connection pool availability is low",
			zap.Int("available", report.Stats.AvailableClients),
			zap.Int("total", report.Stats.TotalClients))
	}
	if report.TimeoutsSeen {
		m.logger.Warn("connection pool has acquisition timeouts",
			zap.Uint64("timeouts", report.Stats.AcquisitionTimeouts))
	}
	m.logger.Debug("connection pool stats",
		zap.Int("active", report.Stats.ActiveClients),
		zap.Uint64("acquisitions", report.Stats.TotalAcquisitions),
		zap.Duration("avg_wait", report.Stats.AverageWaitTime()))

	if m.onReport != nil {
		m.onReport(report)
	}
}
