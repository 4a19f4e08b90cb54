package monitor

import "time"

// HealthStatus is the result of a reachability probe.
type HealthStatus struct {
	Healthy   bool      `json:"healthy"`
	LatencyMs int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Healthy builds a passing status.
func Healthy(latency time.Duration) HealthStatus {
	return HealthStatus{
		Healthy:   true,
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
}

// Unhealthy builds a failing status from the probe error.
func Unhealthy(latency time.Duration, err error) HealthStatus {
	status := HealthStatus{
		LatencyMs: latency.Milliseconds(),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status
}
