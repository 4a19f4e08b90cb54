package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/paiml/universal-bot/common/ctxkey"
	"github.com/paiml/universal-bot/common/helper"
)

// RequestId reuses the caller's X-Request-Id or generates one, and echoes it back.
func RequestId() func(c *gin.Context) {
	return func(c *gin.Context) {
		id := c.GetHeader(helper.RequestIdKey)
		if id == "" {
			id = helper.GenRequestID()
		}
		c.Set(ctxkey.RequestId, id)
		c.Header(helper.RequestIdKey, id)
		c.Next()
	}
}
