package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/paiml/universal-bot/relay/pool"
)

const namespace = "universal_bot"

// CollectorParams selects the sources exported by Collector. Nil sources are skipped.
type CollectorParams struct {
	Metrics       *Metrics
	PoolStats     func() pool.Stats
	BreakerStates func() map[string]string
}

// Collector exports snapshots as Prometheus metrics on every scrape, so the
// aggregator stays the single source of truth.
type Collector struct {
	params CollectorParams

	requests       *prometheus.Desc
	activeRequests *prometheus.Desc
	retries        *prometheus.Desc
	latency        *prometheus.Desc
	tokens         *prometheus.Desc
	cost           *prometheus.Desc
	modelRequests  *prometheus.Desc
	errors         *prometheus.Desc
	uptime         *prometheus.Desc

	poolClients      *prometheus.Desc
	poolAcquisitions *prometheus.Desc
	poolTimeouts     *prometheus.Desc
	poolWait         *prometheus.Desc

	breakerOpen *prometheus.Desc
}

var _ prometheus.Collector = new(Collector)

func NewCollector(params CollectorParams) *Collector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		params:         params,
		requests:       desc("requests_total", "Logical requests by outcome.", "outcome"),
		activeRequests: desc("active_requests", "Requests in flight."),
		retries:        desc("retries_total", "Retries across all logical requests."),
		latency:        desc("latency_milliseconds_total", "Summed latency of completed requests."),
		tokens:         desc("tokens_total", "Tokens consumed by direction.", "direction"),
		cost:           desc("cost_usd_total", "Estimated spend in USD."),
		modelRequests:  desc("model_requests_total", "Logical requests by model.", "model"),
		errors:         desc("errors_total", "Failed requests by error code.", "code"),
		uptime:         desc("uptime_seconds", "Seconds since the metrics were started or reset."),

		poolClients:      desc("pool_clients", "Pool handles by state.", "state"),
		poolAcquisitions: desc("pool_acquisitions_total", "Pool leases handed out."),
		poolTimeouts:     desc("pool_acquisition_timeouts_total", "Pool acquisitions that ran out of patience."),
		poolWait:         desc("pool_wait_seconds_total", "Summed time spent waiting for a pool lease."),

		breakerOpen: desc("circuit_breaker_state", "1 for the current state of each breaker target.", "target", "state"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.requests, c.activeRequests, c.retries, c.latency, c.tokens, c.cost,
		c.modelRequests, c.errors, c.uptime,
		c.poolClients, c.poolAcquisitions, c.poolTimeouts, c.poolWait,
		c.breakerOpen,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.params.Metrics != nil {
		s := c.params.Metrics.Snapshot()
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.SuccessfulRequests), "success")
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(s.FailedRequests), "failure")
		ch <- prometheus.MustNewConstMetric(c.activeRequests, prometheus.GaugeValue, float64(s.ActiveRequests))
		ch <- prometheus.MustNewConstMetric(c.retries, prometheus.CounterValue, float64(s.TotalRetries))
		ch <- prometheus.MustNewConstMetric(c.latency, prometheus.CounterValue, float64(s.TotalLatencyMs))
		ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(s.TotalInputTokens), "input")
		ch <- prometheus.MustNewConstMetric(c.tokens, prometheus.CounterValue, float64(s.TotalOutputTokens), "output")
		ch <- prometheus.MustNewConstMetric(c.cost, prometheus.CounterValue, s.TotalCost)
		ch <- prometheus.MustNewConstMetric(c.uptime, prometheus.GaugeValue, float64(s.UptimeSeconds))
		for model, n := range s.RequestsByModel {
			ch <- prometheus.MustNewConstMetric(c.modelRequests, prometheus.CounterValue, float64(n), model)
		}
		for code, n := range s.ErrorsByType {
			ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(n), code)
		}
	}

	if c.params.PoolStats != nil {
		s := c.params.PoolStats()
		ch <- prometheus.MustNewConstMetric(c.poolClients, prometheus.GaugeValue, float64(s.ActiveClients), "active")
		ch <- prometheus.MustNewConstMetric(c.poolClients, prometheus.GaugeValue, float64(s.AvailableClients), "available")
		ch <- prometheus.MustNewConstMetric(c.poolAcquisitions, prometheus.CounterValue, float64(s.TotalAcquisitions))
		ch <- prometheus.MustNewConstMetric(c.poolTimeouts, prometheus.CounterValue, float64(s.AcquisitionTimeouts))
		ch <- prometheus.MustNewConstMetric(c.poolWait, prometheus.CounterValue, s.TotalWaitTime.Seconds())
	}

	if c.params.BreakerStates != nil {
		for target, state := range c.params.BreakerStates() {
			ch <- prometheus.MustNewConstMetric(c.breakerOpen, prometheus.GaugeValue, 1, target, state)
		}
	}
}
