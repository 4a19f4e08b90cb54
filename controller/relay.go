// Package controller serves the resilience client over HTTP.
package controller

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/Laisky/errors/v2"
	gmw "github.com/Laisky/gin-middlewares/v6"
	"github.com/Laisky/zap"
	"github.com/gin-gonic/gin"

	"github.com/paiml/universal-bot/common"
	"github.com/paiml/universal-bot/common/ctxkey"
	"github.com/paiml/universal-bot/common/helper"
	"github.com/paiml/universal-bot/dto"
	"github.com/paiml/universal-bot/middleware"
	"github.com/paiml/universal-bot/monitor"
	"github.com/paiml/universal-bot/relay/model"
	"github.com/paiml/universal-bot/relay/pool"
	"github.com/paiml/universal-bot/relay/pricing"
	"github.com/paiml/universal-bot/relay/streaming"
)

// Client is the part of the resilience client the handlers use.
type Client interface {
	Generate(ctx context.Context, modelID string, messages []model.Message, cfg *model.GenerationConfig) (*model.GenerationResponse, error)
	Stream(ctx context.Context, modelID string, messages []model.Message, cfg *model.GenerationConfig) (*streaming.Response, error)
	HealthCheck(ctx context.Context) monitor.HealthStatus
	PoolStats() pool.Stats
	Metrics() monitor.Snapshot
	BreakerStates() map[string]string
	ListModels() []string
}

func bindGenerateRequest(c *gin.Context) (*dto.GenerateRequest, []model.Message, bool) {
	var req dto.GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.AbortWithError(c, model.WrapError(model.KindInvalidInput, err, "bind request"))
		return nil, nil, false
	}
	c.Set(ctxkey.RequestModel, req.Model)
	messages := req.History(c.GetString(ctxkey.RequestId), pricing.EstimateMessageTokens)
	return &req, messages, true
}

// Generate serves POST /v1/generate.
func Generate(client Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, messages, ok := bindGenerateRequest(c)
		if !ok {
			return
		}

		resp, err := client.Generate(gmw.Ctx(c), req.Model, messages, req.Config)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, resp)
	}
}

// Stream serves POST /v1/stream as server-sent events: one JSON chunk per data line,
// then [DONE]. Errors after the stream started are sent in-band as an error envelope.
func Stream(client Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		req, messages, ok := bindGenerateRequest(c)
		if !ok {
			return
		}
		lg := gmw.GetLogger(c)
		start := time.Now()

		resp, err := client.Stream(gmw.Ctx(c), req.Model, messages, req.Config)
		if err != nil {
			middleware.AbortWithError(c, err)
			return
		}
		defer resp.Close()

		common.SetEventStreamHeaders(c)
		c.Status(http.StatusOK)
		chunks := 0
		for {
			chunk, err := resp.Next()
			if errors.Is(err, io.EOF) {
				if err := common.DoneData(c); err != nil {
					lg.Debug("write stream terminator", zap.Error(err))
				}
				lg.Debug("stream finished",
					zap.String("model", req.Model),
					zap.Int("chunks", chunks),
					zap.Int64("elapsed_ms", helper.CalcElapsedTime(start)))
				return
			}
			if err != nil {
				lg.Warn("stream failed", zap.String("model", req.Model), zap.Error(err))
				_ = common.ObjectData(c, model.NewErrorWithStatusCode(err))
				return
			}
			if err := common.ObjectData(c, chunk); err != nil {
				lg.Debug("client went away", zap.Error(err))
				return
			}
			chunks++
		}
	}
}
