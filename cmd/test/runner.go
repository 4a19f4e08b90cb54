package main

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	glog "github.com/Laisky/go-utils/v5/log"
	"github.com/Laisky/zap"
	"golang.org/x/sync/errgroup"

	"github.com/paiml/universal-bot/relay/adaptor/mock"
	bedrock "github.com/paiml/universal-bot/relay/controller"
	"github.com/paiml/universal-bot/relay/model"
	"github.com/paiml/universal-bot/relay/streaming"
)

const sweepMaxTokens = 32

type variant struct {
	Key    string
	Header string
	Stream bool
}

var variants = []variant{
	{Key: "generate", Header: "Generate", Stream: false},
	{Key: "stream", Header: "Stream", Stream: true},
}

type testResult struct {
	Model        string
	Variant      string
	Label        string
	Success      bool
	Duration     time.Duration
	OutputTokens int
	ErrorCode    string
	ErrorReason  string
}

// generator is the part of the client the sweep drives.
type generator interface {
	Generate(ctx context.Context, modelID string, messages []model.Message, cfg *model.GenerationConfig) (*model.GenerationResponse, error)
	Stream(ctx context.Context, modelID string, messages []model.Message, cfg *model.GenerationConfig) (*streaming.Response, error)
}

// run orchestrates the regression sweep across the configured models.
func run(ctx context.Context, logger glog.Logger) error {
	cfg, err := loadConfig()
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	var opts []bedrock.Option
	opts = append(opts, bedrock.WithLogger(logger.Named("bedrock").Zap()))
	if cfg.Mock {
		opts = append(opts, bedrock.WithFactory(mock.New().Factory()))
	}
	client, err := bedrock.New(ctx, cfg.Bedrock, opts...)
	if err != nil {
		return errors.Wrap(err, "create client")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = client.Close(closeCtx)
	}()

	logger.Info("starting regression sweep",
		zap.Strings("models", cfg.Models),
		zap.String("region", cfg.Bedrock.Region),
		zap.Bool("mock", cfg.Mock))

	results, err := sweep(ctx, client, cfg.Models, cfg.Prompt, cfg.Bedrock.PoolSize, logger)
	if err != nil {
		return errors.Wrap(err, "sweep")
	}

	rep := buildReport(cfg.Models, variants, results)
	renderReport(os.Stdout, rep, client.Metrics())
	if rep.failedCount > 0 {
		return errors.Errorf("%d of %d requests failed", rep.failedCount, rep.totalRequests)
	}
	return nil
}

// sweep runs every variant for every model, at most limit at a time. Request failures are
// recorded in the results; only cancellation aborts the sweep.
func sweep(ctx context.Context, client generator, models []string, prompt string, limit int, logger glog.Logger) ([]testResult, error) {
	var (
		mu      sync.Mutex
		results []testResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(limit, 1))
	for _, m := range models {
		for _, v := range variants {
			g.Go(func() error {
				res := runVariant(gctx, client, m, v, prompt)
				if err := gctx.Err(); err != nil {
					return err
				}

				if res.Success {
					logger.Info("request succeeded",
						zap.String("model", res.Model),
						zap.String("variant", res.Label),
						zap.Duration("duration", res.Duration))
				} else {
					logger.Warn("request failed",
						zap.String("model", res.Model),
						zap.String("variant", res.Label),
						zap.String("code", res.ErrorCode),
						zap.String("error", res.ErrorReason))
				}

				mu.Lock()
				results = append(results, res)
				mu.Unlock()
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func runVariant(ctx context.Context, client generator, modelID string, v variant, prompt string) testResult {
	res := testResult{Model: modelID, Variant: v.Key, Label: v.Header}
	messages := []model.Message{model.UserMessage(prompt)}
	maxTokens := sweepMaxTokens
	genCfg := &model.GenerationConfig{MaxTokens: &maxTokens}

	start := time.Now()
	var (
		text  string
		usage *model.TokenUsage
		err   error
	)
	if v.Stream {
		var resp *streaming.Response
		resp, err = client.Stream(ctx, modelID, messages, genCfg)
		if err == nil {
			text, usage, err = streaming.CollectText(resp)
		}
	} else {
		var resp *model.GenerationResponse
		resp, err = client.Generate(ctx, modelID, messages, genCfg)
		if err == nil {
			text, usage = resp.Content, resp.Usage
		}
	}
	res.Duration = time.Since(start)

	switch {
	case err != nil:
		classified := model.Classify(err)
		res.ErrorCode = classified.Code()
		res.ErrorReason = classified.Error()
	case text == "":
		res.ErrorCode = "empty_response"
		res.ErrorReason = "no content returned"
	default:
		res.Success = true
		if usage != nil {
			res.OutputTokens = usage.OutputTokens
		}
	}
	return res
}
