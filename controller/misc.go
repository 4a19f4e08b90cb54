package controller

import (
	"net/http"

	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/gin-gonic/gin"

	"github.com/paiml/universal-bot/common"
	"github.com/paiml/universal-bot/common/graceful"
	"github.com/paiml/universal-bot/common/helper"
	"github.com/paiml/universal-bot/relay/pool"
)

// Healthz serves GET /healthz. By default it only inspects the pool; with ?deep=true it
// also sends a probe request upstream.
func Healthz(client Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		report := pool.Inspect(client.PoolStats())
		body := gin.H{
			"version":        common.Version,
			"uptime_seconds": helper.GetTimestamp() - common.StartTime,
			"draining":       graceful.IsDraining(),
			"pool": gin.H{
				"healthy":          report.Healthy(),
				"low_availability": report.LowAvailability,
				"timeouts_seen":    report.TimeoutsSeen,
			},
		}

		status := http.StatusOK
		if graceful.IsDraining() {
			status = http.StatusServiceUnavailable
		}
		if c.Query("deep") == "true" {
			probe := client.HealthCheck(gmw.Ctx(c))
			body["upstream"] = probe
			if !probe.Healthy {
				status = http.StatusServiceUnavailable
			}
		}
		c.JSON(status, body)
	}
}

// PoolStatus serves GET /v1/pool.
func PoolStatus(client Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := client.PoolStats()
		c.JSON(http.StatusOK, gin.H{
			"stats":           stats,
			"utilization":     stats.Utilization(),
			"average_wait_ms": stats.AverageWaitTime().Milliseconds(),
			"breakers":        client.BreakerStates(),
		})
	}
}

// Metrics serves GET /v1/metrics.
func Metrics(client Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		snap := client.Metrics()
		c.JSON(http.StatusOK, gin.H{
			"summary":  snap.Summary(),
			"snapshot": snap,
		})
	}
}

// ListModels serves GET /v1/models.
func ListModels(client Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"object": "list",
			"data":   client.ListModels(),
		})
	}
}
