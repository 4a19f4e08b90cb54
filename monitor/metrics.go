// Package monitor aggregates request metrics and exports them.
package monitor

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics accumulates counters across all requests. Counters are lock-free; the
// per-model and per-error maps and the cost total share one small mutex.
// The zero value is not usable; build it with NewMetrics.
type Metrics struct {
	now func() time.Time

	totalRequests      atomic.Uint64
	successfulRequests atomic.Uint64
	failedRequests     atomic.Uint64
	activeRequests     atomic.Int64
	totalRetries       atomic.Uint64
	totalLatencyMs     atomic.Uint64
	totalInputTokens   atomic.Uint64
	totalOutputTokens  atomic.Uint64

	mu              sync.Mutex
	totalCost       float64
	requestsByModel map[string]uint64
	errorsByType    map[string]uint64
	startTime       time.Time
	lastUpdated     time.Time
}

// MetricsOption customizes Metrics.
type MetricsOption func(*Metrics)

// WithClock injects the clock used for uptime and timestamps.
func WithClock(now func() time.Time) MetricsOption {
	return func(m *Metrics) {
		m.now = now
	}
}

func NewMetrics(opts ...MetricsOption) *Metrics {
	m := &Metrics{now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	start := m.now()
	m.startTime = start
	m.lastUpdated = start
	m.requestsByModel = make(map[string]uint64)
	m.errorsByType = make(map[string]uint64)
	return m
}

// StartRequest counts a new logical request for model and marks it active.
// Every call must be paired with CompleteSuccess or CompleteFailure.
func (m *Metrics) StartRequest(model string) {
	m.totalRequests.Add(1)
	m.activeRequests.Add(1)

	m.mu.Lock()
	m.requestsByModel[model]++
	m.lastUpdated = m.now()
	m.mu.Unlock()
}

// CompleteSuccess finishes an active request successfully.
func (m *Metrics) CompleteSuccess(latency time.Duration, inputTokens, outputTokens int, cost float64) {
	m.successfulRequests.Add(1)
	m.finishActive()
	m.totalLatencyMs.Add(uint64(latency.Milliseconds()))
	m.totalInputTokens.Add(uint64(max(inputTokens, 0)))
	m.totalOutputTokens.Add(uint64(max(outputTokens, 0)))

	m.mu.Lock()
	m.totalCost += cost
	m.lastUpdated = m.now()
	m.mu.Unlock()
}

// CompleteFailure finishes an active request with the error code errorType.
func (m *Metrics) CompleteFailure(latency time.Duration, errorType string) {
	m.failedRequests.Add(1)
	m.finishActive()
	m.totalLatencyMs.Add(uint64(latency.Milliseconds()))

	m.mu.Lock()
	m.errorsByType[errorType]++
	m.lastUpdated = m.now()
	m.mu.Unlock()
}

// RecordRetry counts one retry of a logical request.
func (m *Metrics) RecordRetry() {
	m.totalRetries.Add(1)
}

// finishActive decrements the active gauge without ever going below zero.
func (m *Metrics) finishActive() {
	for {
		cur := m.activeRequests.Load()
		if cur <= 0 {
			return
		}
		if m.activeRequests.CompareAndSwap(cur, cur-1) {
			return
		}
	}
}

// ActiveRequests is the number of requests in flight.
func (m *Metrics) ActiveRequests() int64 {
	return m.activeRequests.Load()
}

// Reset zeroes every counter and restarts the uptime clock.
func (m *Metrics) Reset() {
	m.totalRequests.Store(0)
	m.successfulRequests.Store(0)
	m.failedRequests.Store(0)
	m.activeRequests.Store(0)
	m.totalRetries.Store(0)
	m.totalLatencyMs.Store(0)
	m.totalInputTokens.Store(0)
	m.totalOutputTokens.Store(0)

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.totalCost = 0
	m.requestsByModel = make(map[string]uint64)
	m.errorsByType = make(map[string]uint64)
	m.startTime = now
	m.lastUpdated = now
}

// Snapshot is a read-only copy of the metrics. Fields read from different
// counters are not captured atomically with each other.
type Snapshot struct {
	TotalRequests      uint64            `json:"total_requests"`
	SuccessfulRequests uint64            `json:"successful_requests"`
	FailedRequests     uint64            `json:"failed_requests"`
	ActiveRequests     int64             `json:"active_requests"`
	TotalRetries       uint64            `json:"total_retries"`
	TotalLatencyMs     uint64            `json:"total_latency_ms"`
	TotalInputTokens   uint64            `json:"total_input_tokens"`
	TotalOutputTokens  uint64            `json:"total_output_tokens"`
	TotalCost          float64           `json:"total_cost"`
	RequestsByModel    map[string]uint64 `json:"requests_by_model"`
	ErrorsByType       map[string]uint64 `json:"errors_by_type"`
	StartTime          time.Time         `json:"start_time"`
	LastUpdated        time.Time         `json:"last_updated"`
	UptimeSeconds      uint64            `json:"uptime_seconds"`
}

// Snapshot copies the current values.
func (m *Metrics) Snapshot() Snapshot {
	s := Snapshot{
		TotalRequests:      m.totalRequests.Load(),
		SuccessfulRequests: m.successfulRequests.Load(),
		FailedRequests:     m.failedRequests.Load(),
		ActiveRequests:     max(m.activeRequests.Load(), 0),
		TotalRetries:       m.totalRetries.Load(),
		TotalLatencyMs:     m.totalLatencyMs.Load(),
		TotalInputTokens:   m.totalInputTokens.Load(),
		TotalOutputTokens:  m.totalOutputTokens.Load(),
	}

	m.mu.Lock()
	s.TotalCost = m.totalCost
	s.RequestsByModel = make(map[string]uint64, len(m.requestsByModel))
	for k, v := range m.requestsByModel {
		s.RequestsByModel[k] = v
	}
	s.ErrorsByType = make(map[string]uint64, len(m.errorsByType))
	for k, v := range m.errorsByType {
		s.ErrorsByType[k] = v
	}
	s.StartTime = m.startTime
	s.LastUpdated = m.lastUpdated
	m.mu.Unlock()

	if uptime := m.now().Sub(s.StartTime); uptime > 0 {
		s.UptimeSeconds = uint64(uptime / time.Second)
	}
	return s
}

// SuccessRate is the percentage of successful requests, 0 when there are none.
func (s Snapshot) SuccessRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.SuccessfulRequests) / float64(s.TotalRequests) * 100
}

func (s Snapshot) AverageLatencyMs() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalLatencyMs) / float64(s.TotalRequests)
}

func (s Snapshot) RequestsPerSecond() float64 {
	if s.UptimeSeconds == 0 {
		return 0
	}
	return float64(s.TotalRequests) / float64(s.UptimeSeconds)
}

func (s Snapshot) TotalTokens() uint64 {
	return s.TotalInputTokens + s.TotalOutputTokens
}

func (s Snapshot) AverageTokensPerRequest() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalTokens()) / float64(s.TotalRequests)
}

func (s Snapshot) CostPerToken() float64 {
	total := s.TotalTokens()
	if total == 0 {
		return 0
	}
	return s.TotalCost / float64(total)
}

// MostUsedModel returns the model with the most requests. Ties go to the
// lexically smallest name; ok is false when nothing was recorded.
func (s Snapshot) MostUsedModel() (model string, count uint64, ok bool) {
	return maxEntry(s.RequestsByModel)
}

// MostCommonError returns the most frequent error code.
func (s Snapshot) MostCommonError() (code string, count uint64, ok bool) {
	return maxEntry(s.ErrorsByType)
}

func maxEntry(m map[string]uint64) (string, uint64, bool) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		best  string
		count uint64
		found bool
	)
	for _, k := range keys {
		if !found || m[k] > count {
			best, count, found = k, m[k], true
		}
	}
	return best, count, found
}

// Summary is the condensed view served to operators.
type Summary struct {
	TotalRequests     uint64  `json:"total_requests"`
	SuccessRate       float64 `json:"success_rate"`
	AverageLatencyMs  float64 `json:"average_latency_ms"`
	RequestsPerSecond float64 `json:"requests_per_second"`
	TotalTokens       uint64  `json:"total_tokens"`
	TotalCost         float64 `json:"total_cost"`
	ActiveRequests    int64   `json:"active_requests"`
	UptimeSeconds     uint64  `json:"uptime_seconds"`
	MostUsedModel     string  `json:"most_used_model,omitempty"`
	MostCommonError   string  `json:"most_common_error,omitempty"`
}

func (s Snapshot) Summary() Summary {
	model, _, _ := s.MostUsedModel()
	code, _, _ := s.MostCommonError()
	return Summary{
		TotalRequests:     s.TotalRequests,
		SuccessRate:       s.SuccessRate(),
		AverageLatencyMs:  s.AverageLatencyMs(),
		RequestsPerSecond: s.RequestsPerSecond(),
		TotalTokens:       s.TotalTokens(),
		TotalCost:         s.TotalCost,
		ActiveRequests:    s.ActiveRequests,
		UptimeSeconds:     s.UptimeSeconds,
		MostUsedModel:     model,
		MostCommonError:   code,
	}
}
