// Package router mounts the HTTP routes.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/paiml/universal-bot/controller"
	"github.com/paiml/universal-bot/middleware"
)

// Options selects optional routes.
type Options struct {
	// Gatherer exposes /metrics when set.
	Gatherer prometheus.Gatherer
}

// SetRouter mounts every route on server.
func SetRouter(server *gin.Engine, client controller.Client, opts Options) {
	server.GET("/healthz", controller.Healthz(client))

	if opts.Gatherer != nil {
		server.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := server.Group("/v1")
	v1.Use(middleware.RequestTracker())
	{
		v1.POST("/generate", controller.Generate(client))
		v1.POST("/stream", controller.Stream(client))
		v1.GET("/pool", controller.PoolStatus(client))
		v1.GET("/metrics", controller.Metrics(client))
		v1.GET("/models", controller.ListModels(client))
	}
}
