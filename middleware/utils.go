package middleware

import (
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/paiml/universal-bot/common/ctxkey"
	"github.com/paiml/universal-bot/relay/model"
)

// AbortWithError writes err as the JSON error envelope with its mapped status and
// aborts the chain.
func AbortWithError(c *gin.Context, err error) {
	envelope := model.NewErrorWithStatusCode(err)
	lg := gmw.GetLogger(c)
	if envelope.StatusCode >= 500 {
		lg.Error("server abort",
			zap.Int("status_code", envelope.StatusCode),
			zap.String("request_id", c.GetString(ctxkey.RequestId)),
			zap.String("model", c.GetString(ctxkey.RequestModel)),
			zap.Error(err))
	} else {
		lg.Warn("client abort",
			zap.Int("status_code", envelope.StatusCode),
			zap.String("request_id", c.GetString(ctxkey.RequestId)),
			zap.String("model", c.GetString(ctxkey.RequestModel)),
			zap.Error(err))
	}

	c.AbortWithStatusJSON(envelope.StatusCode, envelope)
}
