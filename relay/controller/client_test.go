package controller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/paiml/universal-bot/common/config"
	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/adaptor/mock"
	"github.com/paiml/universal-bot/relay/breaker"
	"github.com/paiml/universal-bot/relay/model"
	"github.com/paiml/universal-bot/relay/pricing"
	"github.com/paiml/universal-bot/relay/retry"
	"github.com/paiml/universal-bot/relay/streaming"
)

func newTestClient(t *testing.T, cfg config.BedrockConfig, upstream *mock.Upstream, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithFactory(upstream.Factory()),
		WithStrategy(retry.NewStrategy(retry.WithDefaultPolicy(fastPolicy(2)))),
	}, opts...)
	c, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c
}

func hello() []model.Message {
	return []model.Message{model.UserMessage("hello world")}
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.BedrockConfig)
	}{
		{"pool_size", func(c *config.BedrockConfig) { c.PoolSize = 0 }},
		{"timeout", func(c *config.BedrockConfig) { c.TimeoutSeconds = 301 }},
		{"multiplier", func(c *config.BedrockConfig) { c.RetryMultiplier = 0.5 }},
		{"region", func(c *config.BedrockConfig) { c.Region = "" }},
		{"initial_above_max", func(c *config.BedrockConfig) {
			c.RetryInitialIntervalMs = 5000
			c.RetryMaxIntervalSeconds = 1
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.DefaultBedrockConfig()
			tc.mutate(&cfg)
			_, err := New(context.Background(), cfg, WithFactory(mock.New().Factory()))
			require.Error(t, err)
			require.True(t, model.IsKind(err, model.KindConfiguration))
		})
	}
}

func TestRetryPolicy_FromConfig(t *testing.T) {
	t.Parallel()

	p := RetryPolicy(config.LowLatencyBedrockConfig())
	require.Equal(t, 100*time.Millisecond, p.InitialInterval)
	require.Equal(t, 5*time.Second, p.MaxInterval)
	require.Equal(t, 60*time.Second, p.MaxElapsedTime)
	require.InDelta(t, 1.2, p.Multiplier, 1e-9)
	require.Equal(t, retry.DefaultPolicy().MaxRetries, p.MaxRetries)
	require.NoError(t, p.Validate())
}

func TestGenerate_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	upstream := mock.New(
		mock.Step{Err: model.NewError(model.KindServiceError, "internal failure")},
		mock.Step{Err: model.NewError(model.KindServiceError, "internal failure")},
	)
	var (
		mu     sync.Mutex
		delays []time.Duration
	)
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream, WithRetryHook(func(ev RetryEvent) {
		mu.Lock()
		delays = append(delays, ev.Delay)
		mu.Unlock()
	}))

	resp, err := c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.NoError(t, err)
	require.Equal(t, "echo: hello world", resp.Content)
	require.Equal(t, pricing.Claude3Haiku, resp.Model)
	require.NotEmpty(t, resp.ID)
	require.Equal(t, model.FinishReasonStop, resp.FinishReason)
	require.NotNil(t, resp.Usage)
	require.Equal(t, resp.Usage.InputTokens+resp.Usage.OutputTokens, resp.Usage.TotalTokens)
	require.Greater(t, resp.EstimatedCost(), 0.0)

	mu.Lock()
	require.Len(t, delays, 2)
	mu.Unlock()

	snap := c.Metrics()
	require.Equal(t, uint64(1), snap.TotalRequests)
	require.Equal(t, uint64(1), snap.SuccessfulRequests)
	require.Equal(t, uint64(0), snap.FailedRequests)
	require.Equal(t, uint64(2), snap.TotalRetries)
	require.Equal(t, int64(0), snap.ActiveRequests)
	require.Equal(t, uint64(1), snap.RequestsByModel[pricing.Claude3Haiku])
}

func TestGenerate_MergesGenerationConfig(t *testing.T) {
	t.Parallel()

	upstream := mock.New()
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream)

	maxTokens := 64
	_, err := c.Generate(context.Background(), pricing.Claude3Haiku, hello(), &model.GenerationConfig{
		MaxTokens:    &maxTokens,
		SystemPrompt: "be brief",
	})
	require.NoError(t, err)

	reqs := upstream.Requests()
	require.Len(t, reqs, 1)
	got := reqs[0].Config
	require.Equal(t, 64, *got.MaxTokens)
	require.Equal(t, "be brief", got.SystemPrompt)
	// unset fields keep their defaults
	require.Equal(t, *model.DefaultGenerationConfig().Temperature, *got.Temperature)
}

func TestGenerate_FailureIsRecorded(t *testing.T) {
	t.Parallel()

	upstream := mock.New().WithFallback(mock.Step{Err: model.NewError(model.KindRateLimited, "throttled")})
	strategy := retry.NewStrategy()
	throttle := fastPolicy(1)
	require.NoError(t, strategy.SetPolicy(model.CategoryRateLimit, throttle))
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream, WithStrategy(strategy))

	_, err := c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.True(t, model.IsKind(err, model.KindRetriesExhausted))
	require.Equal(t, 2, upstream.Calls())

	snap := c.Metrics()
	require.Equal(t, uint64(1), snap.FailedRequests)
	require.Equal(t, uint64(1), snap.ErrorsByType["rate_limited"])
	code, _, ok := snap.MostCommonError()
	require.True(t, ok)
	require.Equal(t, "rate_limited", code)
}

func TestGenerate_CircuitOpenedByRetriesRecordsUpstreamCode(t *testing.T) {
	t.Parallel()

	upstream := mock.New().WithFallback(mock.Step{Err: model.NewError(model.KindServiceError, "upstream 500")})
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream,
		WithBreakerSettings(breaker.Settings{FailureThreshold: 2, Timeout: time.Hour}, 0))

	_, err := c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.True(t, model.IsKind(err, model.KindCircuitOpen))
	require.Equal(t, model.KindServiceError, model.Classify(err).Root().Kind)
	require.Equal(t, 2, upstream.Calls())

	snap := c.Metrics()
	require.Equal(t, uint64(1), snap.ErrorsByType["service_error"])
	require.Zero(t, snap.ErrorsByType["circuit_open"])
}

func TestGenerate_InvalidInput(t *testing.T) {
	t.Parallel()

	upstream := mock.New()
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream)

	_, err := c.Generate(context.Background(), "", hello(), nil)
	require.True(t, model.IsKind(err, model.KindInvalidInput))

	_, err = c.Generate(context.Background(), pricing.Claude3Haiku, nil, nil)
	require.True(t, model.IsKind(err, model.KindInvalidInput))

	require.Zero(t, upstream.Calls())
	require.Zero(t, c.Metrics().TotalRequests)
}

func TestGenerate_TokenLimitPrecheck(t *testing.T) {
	t.Parallel()

	models := pricing.NewRegistry()
	models.Register(pricing.ModelInfo{
		ID:           "tiny",
		Capabilities: pricing.Capabilities{MaxTokens: 8, ContextWindow: 16},
		Available:    true,
	})
	upstream := mock.New()
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream, WithModels(models))

	_, err := c.Generate(context.Background(), "tiny", hello(), nil)
	require.True(t, model.IsKind(err, model.KindTokenLimitExceeded))
	require.Zero(t, upstream.Calls())

	maxTokens := 2
	_, err = c.Generate(context.Background(), "tiny", hello(), &model.GenerationConfig{MaxTokens: &maxTokens})
	require.NoError(t, err)
}

func TestGenerate_PoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultBedrockConfig()
	cfg.PoolSize = 1
	upstream := mock.New().WithFallback(mock.Step{Delay: 30 * time.Millisecond})
	c := newTestClient(t, cfg, upstream)

	var g errgroup.Group
	for range 2 {
		g.Go(func() error {
			_, err := c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
			return err
		})
	}
	require.NoError(t, g.Wait())

	require.Equal(t, 1, upstream.MaxInFlight())
	require.Equal(t, 2, upstream.Calls())
	stats := c.PoolStats()
	require.Equal(t, uint64(2), stats.TotalAcquisitions)
	require.Equal(t, 0, stats.ActiveClients)
}

func TestGenerate_CircuitOpensPerModel(t *testing.T) {
	t.Parallel()

	upstream := mock.New().WithFallback(mock.Step{Err: model.NewError(model.KindAuthentication, "expired token")})
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream,
		WithBreakerSettings(breaker.Settings{FailureThreshold: 1, Timeout: time.Hour}, 0))

	_, err := c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.True(t, model.IsKind(err, model.KindAuthentication))

	_, err = c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.True(t, model.IsKind(err, model.KindCircuitOpen))
	require.Equal(t, 1, upstream.Calls())
	assert.Equal(t, "open", c.BreakerStates()[pricing.Claude3Haiku])
}

func TestStream_CollectsEchoAndRecordsUsage(t *testing.T) {
	t.Parallel()

	upstream := mock.New()
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream)

	resp, err := c.Stream(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.NoError(t, err)

	text, usage, err := streaming.CollectText(resp)
	require.NoError(t, err)
	require.Equal(t, "echo: hello world", text)
	require.NotNil(t, usage)
	require.Equal(t, pricing.Claude3Haiku, usage.Model)
	require.Equal(t, streaming.StateFinished, resp.State())

	snap := c.Metrics()
	require.Equal(t, uint64(1), snap.SuccessfulRequests)
	require.Equal(t, uint64(usage.InputTokens), snap.TotalInputTokens)
	require.Equal(t, int64(0), snap.ActiveRequests)
}

func TestStream_RetriesOpen(t *testing.T) {
	t.Parallel()

	upstream := mock.New(mock.Step{Err: model.NewError(model.KindServiceError, "busy")})
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream)

	resp, err := c.Stream(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.NoError(t, err)
	chunks, err := streaming.CollectChunks(resp)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)
	require.True(t, chunks[len(chunks)-1].IsFinal)
	require.Equal(t, 2, upstream.Calls())
}

func TestStream_MidStreamErrorFinishesResponse(t *testing.T) {
	t.Parallel()

	upstream := mock.New(mock.Step{
		Events:    []adaptor.StreamEvent{{Text: "partial "}},
		StreamErr: model.NewError(model.KindRequestFailed, "connection reset"),
	})
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream)

	resp, err := c.Stream(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.NoError(t, err)

	text, _, err := streaming.CollectText(resp)
	require.Equal(t, "partial ", text)
	require.True(t, model.IsKind(err, model.KindRequestFailed))

	snap := c.Metrics()
	require.Equal(t, uint64(1), snap.FailedRequests)
	require.Equal(t, uint64(1), snap.ErrorsByType["request_failed"])
}

func TestStream_CloseEarlyReleasesAdmission(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultBedrockConfig()
	cfg.MaxConcurrentRequests = 1
	c := newTestClient(t, cfg, mock.New())

	resp, err := c.Stream(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.NoError(t, err)
	require.NoError(t, resp.Close())

	// the single permit is free again
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = c.Generate(ctx, pricing.Claude3Haiku, hello(), nil)
	require.NoError(t, err)
	require.Equal(t, uint64(1), c.Metrics().ErrorsByType["request_failed"])
}

func TestHealthCheck(t *testing.T) {
	t.Parallel()

	upstream := mock.New()
	c := newTestClient(t, config.DefaultBedrockConfig(), upstream)

	status := c.HealthCheck(context.Background())
	require.True(t, status.Healthy)
	require.Empty(t, status.Error)

	reqs := upstream.Requests()
	require.Len(t, reqs, 1)
	require.Equal(t, pricing.HealthCheckModel, reqs[0].ModelID)
	require.Equal(t, 1, *reqs[0].Config.MaxTokens)
	require.Zero(t, *reqs[0].Config.Temperature)
	// probes are not traffic
	require.Zero(t, c.Metrics().TotalRequests)

	failing := mock.New().WithFallback(mock.Step{Err: model.NewError(model.KindAuthentication, "denied")})
	c2 := newTestClient(t, config.DefaultBedrockConfig(), failing)
	status = c2.HealthCheck(context.Background())
	require.False(t, status.Healthy)
	require.True(t, strings.Contains(status.Error, "denied"))
}

func TestListModels(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, config.DefaultBedrockConfig(), mock.New())
	require.Equal(t, []string{pricing.Claude35Sonnet, pricing.Claude3Haiku, pricing.Claude3Opus}, c.ListModels())

	c.Models().MarkUnavailable(pricing.Claude3Opus)
	require.NotContains(t, c.ListModels(), pricing.Claude3Opus)
}

func TestMetricsDisabled(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultBedrockConfig()
	cfg.EnableMetrics = false
	c := newTestClient(t, cfg, mock.New(mock.Step{Err: model.NewError(model.KindServiceError, "x")}))

	_, err := c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.NoError(t, err)
	snap := c.Metrics()
	require.Zero(t, snap.TotalRequests)
	require.Zero(t, snap.TotalRetries)
}

func TestClose(t *testing.T) {
	t.Parallel()

	c, err := New(context.Background(), config.DefaultBedrockConfig(),
		WithFactory(mock.New().Factory()), WithPoolMonitor(5*time.Millisecond))
	require.NoError(t, err)

	require.NoError(t, c.Close(context.Background()))
	require.NoError(t, c.Close(context.Background()))

	_, err = c.Generate(context.Background(), pricing.Claude3Haiku, hello(), nil)
	require.True(t, model.IsKind(err, model.KindPoolClosed))
	require.False(t, c.HealthCheck(context.Background()).Healthy)
}

type orderedStream struct {
	adaptor.EventStream
	ctx      context.Context
	canceled bool
}

func (s *orderedStream) Close() error {
	s.canceled = s.ctx.Err() != nil
	return nil
}

func TestBoundStream_CloseCancelsContextFirst(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	src := &orderedStream{ctx: ctx}
	bound := &boundStream{EventStream: src, cancel: cancel}

	require.NoError(t, bound.Close())
	require.True(t, src.canceled)
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}
