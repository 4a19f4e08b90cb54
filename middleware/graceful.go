package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/paiml/universal-bot/common/graceful"
	"github.com/paiml/universal-bot/relay/model"
)

// RequestTracker counts the request as in flight until the handler returns, so that
// long SSE streams hold the shutdown drain. New requests are refused while draining.
func RequestTracker() gin.HandlerFunc {
	return func(c *gin.Context) {
		if graceful.IsDraining() {
			AbortWithError(c, model.NewError(model.KindPoolClosed, "server is shutting down"))
			return
		}
		done := graceful.BeginRequest()
		defer done()
		c.Next()
	}
}
