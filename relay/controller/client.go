// Package controller wires the pool, circuit breakers, retry strategy and metrics into
// the caller-facing Bedrock client.
package controller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/paiml/universal-bot/common/config"
	"github.com/paiml/universal-bot/common/logger"
	"github.com/paiml/universal-bot/monitor"
	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/adaptor/aws"
	"github.com/paiml/universal-bot/relay/breaker"
	"github.com/paiml/universal-bot/relay/model"
	"github.com/paiml/universal-bot/relay/pool"
	"github.com/paiml/universal-bot/relay/pricing"
	"github.com/paiml/universal-bot/relay/retry"
	"github.com/paiml/universal-bot/relay/streaming"
)

var errStreamOpenTimeout = errors.New("stream open timed out")

type options struct {
	factory        adaptor.Factory
	metrics        *monitor.Metrics
	models         *pricing.Registry
	strategy       *retry.Strategy
	breaker        breaker.Settings
	breakerIdleTTL time.Duration
	onRetry        func(RetryEvent)
	monitorEvery   time.Duration
	logger         *zap.Logger
}

// Option customizes a Client.
type Option func(*options)

// WithFactory replaces the upstream factory. The default builds Bedrock Runtime clients.
func WithFactory(f adaptor.Factory) Option {
	return func(o *options) { o.factory = f }
}

// WithMetrics injects the metrics aggregator, e.g. to share it with an exporter.
func WithMetrics(m *monitor.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithModels(r *pricing.Registry) Option {
	return func(o *options) { o.models = r }
}

// WithStrategy replaces the retry strategy derived from the configuration.
func WithStrategy(s *retry.Strategy) Option {
	return func(o *options) { o.strategy = s }
}

func WithBreakerSettings(s breaker.Settings, idleTTL time.Duration) Option {
	return func(o *options) {
		o.breaker = s
		o.breakerIdleTTL = idleTTL
	}
}

// WithRetryHook observes every scheduled retry.
func WithRetryHook(f func(RetryEvent)) Option {
	return func(o *options) { o.onRetry = f }
}

// WithPoolMonitor runs a pool health monitor at the given interval until Close.
func WithPoolMonitor(interval time.Duration) Option {
	return func(o *options) { o.monitorEvery = interval }
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Client is the resilient Bedrock client. It is safe for concurrent use.
type Client struct {
	cfg       config.BedrockConfig
	pool      *pool.Pool
	breakers  *breaker.Registry
	strategy  *retry.Strategy
	executor  *Executor
	metrics   *monitor.Metrics
	models    *pricing.Registry
	admission *semaphore.Weighted
	logger    *zap.Logger

	closed      atomic.Bool
	stopMonitor context.CancelFunc
	monitorDone sync.WaitGroup
	closeOnce   sync.Once
	closeErr    error
}

// RetryPolicy derives the default retry policy from the configuration.
func RetryPolicy(cfg config.BedrockConfig) retry.Policy {
	p := retry.DefaultPolicy()
	p.InitialInterval = cfg.RetryInitialInterval()
	p.MaxInterval = cfg.RetryMaxInterval()
	p.MaxElapsedTime = cfg.RetryMaxElapsed()
	p.Multiplier = cfg.RetryMultiplier
	return p
}

// New validates cfg and builds the pool, the breakers and the retry strategy.
func New(ctx context.Context, cfg config.BedrockConfig, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{
		breaker: breaker.Settings{
			FailureThreshold: config.BreakerFailureThreshold,
			SuccessThreshold: config.BreakerSuccessThreshold,
			Timeout:          config.BreakerOpenTimeout,
		},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Component("bedrock", cfg.EnableLogging)
	}
	if o.factory == nil {
		o.factory = aws.Factory(aws.ClientParams{
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     config.AccessKeyID,
			SecretAccessKey: config.SecretAccessKey,
			Logger:          o.logger.Named("aws"),
		})
	}
	if o.strategy == nil {
		policy := RetryPolicy(cfg)
		if err := policy.Validate(); err != nil {
			return nil, err
		}
		o.strategy = retry.NewStrategy(retry.WithDefaultPolicy(policy))
	}
	if o.metrics == nil {
		o.metrics = monitor.NewMetrics()
	}
	if o.models == nil {
		o.models = pricing.NewRegistry()
	}

	p, err := pool.New(ctx, pool.Params{
		Size:    cfg.PoolSize,
		Factory: o.factory,
		Logger:  o.logger.Named("pool"),
	})
	if err != nil {
		return nil, err
	}

	breakers := breaker.NewRegistry(breaker.RegistryParams{
		Settings: o.breaker,
		IdleTTL:  o.breakerIdleTTL,
		Logger:   o.logger.Named("breaker"),
	})

	execParams := ExecutorParams{
		Pool:             p,
		Breakers:         breakers,
		Strategy:         o.strategy,
		OperationTimeout: cfg.Timeout(),
		AcquireTimeout:   cfg.Timeout(),
		OnRetry:          o.onRetry,
		Logger:           o.logger.Named("executor"),
	}
	if cfg.EnableMetrics {
		execParams.Metrics = o.metrics
	}
	executor, err := NewExecutor(execParams)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:       cfg,
		pool:      p,
		breakers:  breakers,
		strategy:  o.strategy,
		executor:  executor,
		metrics:   o.metrics,
		models:    o.models,
		admission: semaphore.NewWeighted(int64(cfg.MaxConcurrentRequests)),
		logger:    o.logger,
	}

	if o.monitorEvery > 0 {
		monitorCtx, cancel := context.WithCancel(context.Background())
		c.stopMonitor = cancel
		hm := pool.NewHealthMonitor(p, o.monitorEvery, o.logger.Named("pool"))
		c.monitorDone.Go(func() { hm.Run(monitorCtx) })
	}

	o.logger.Info("bedrock client ready",
		zap.String("region", cfg.Region),
		zap.Int("pool_size", cfg.PoolSize),
		zap.Int("max_concurrent_requests", cfg.MaxConcurrentRequests))
	return c, nil
}

// Generate runs a non-streaming completion.
func (c *Client) Generate(ctx context.Context, modelID string, messages []model.Message, genCfg *model.GenerationConfig) (*model.GenerationResponse, error) {
	req, err := c.prepare(modelID, messages, genCfg)
	if err != nil {
		return nil, err
	}
	release, err := c.admit(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	c.startRequest(modelID)
	resp, err := Execute(ctx, c.executor, modelID,
		func(ctx context.Context, upstream adaptor.Upstream) (*adaptor.InvokeResponse, error) {
			return upstream.Invoke(ctx, req)
		})
	latency := time.Since(start)
	if err != nil {
		c.completeFailure(latency, err)
		c.logger.Debug("generate failed",
			zap.String("model", modelID),
			zap.Duration("latency", latency),
			zap.Error(err))
		return nil, err
	}

	usage := model.NewTokenUsage(resp.InputTokens, resp.OutputTokens, modelID,
		pricing.CalculateCost(resp.InputTokens, resp.OutputTokens, modelID))
	c.completeSuccess(latency, &usage)

	return &model.GenerationResponse{
		ID:      uuid.NewString(),
		Content: resp.Content,
		Model:   modelID,
		Usage:   &usage,
		Metadata: map[string]any{
			"latency_ms": latency.Milliseconds(),
		},
		Timestamp:    time.Now().UTC(),
		FinishReason: resp.StopReason,
	}, nil
}

// Stream opens a streaming completion. Retries only cover opening the stream; once it is
// open, failures surface through the returned response. The caller must drain or Close it.
func (c *Client) Stream(ctx context.Context, modelID string, messages []model.Message, genCfg *model.GenerationConfig) (*streaming.Response, error) {
	req, err := c.prepare(modelID, messages, genCfg)
	if err != nil {
		return nil, err
	}
	release, err := c.admit(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	c.startRequest(modelID)
	source, err := Execute(ctx, c.executor, modelID,
		func(ctx context.Context, upstream adaptor.Upstream) (adaptor.EventStream, error) {
			return c.openStream(ctx, upstream, req)
		}, WithoutOperationTimeout())
	if err != nil {
		c.completeFailure(time.Since(start), err)
		release()
		return nil, err
	}

	return streaming.NewResponse(streaming.ResponseParams{
		Model:  modelID,
		Source: source,
		Cost:   pricing.CostFunc(modelID),
		OnFinish: func(usage *model.TokenUsage, err error) {
			defer release()
			latency := time.Since(start)
			if err != nil {
				c.completeFailure(latency, err)
				return
			}
			c.completeSuccess(latency, usage)
		},
		Logger: c.logger.Named("stream"),
	}), nil
}

// openStream opens an upstream stream whose context outlives the call. The open itself
// is bounded by the operation timeout; the context is released when the stream closes.
func (c *Client) openStream(ctx context.Context, upstream adaptor.Upstream, req *adaptor.InvokeRequest) (adaptor.EventStream, error) {
	streamCtx, cancel := context.WithCancelCause(ctx)
	timer := time.AfterFunc(c.cfg.Timeout(), func() { cancel(errStreamOpenTimeout) })

	source, err := upstream.InvokeStream(streamCtx, req)
	if !timer.Stop() {
		if err == nil {
			_ = source.Close()
		}
		cancel(nil)
		return nil, model.WrapError(model.KindTimeout, errStreamOpenTimeout,
			"no stream after "+c.cfg.Timeout().String())
	}
	if err != nil {
		cancel(nil)
		return nil, err
	}
	return &boundStream{EventStream: source, cancel: func() { cancel(nil) }}, nil
}

// boundStream cancels the stream context on Close, before closing the upstream stream, so
// a Recv pending on the connection is aborted rather than drained.
type boundStream struct {
	adaptor.EventStream
	cancel func()
}

func (s *boundStream) Close() error {
	s.cancel()
	return s.EventStream.Close()
}

// HealthCheck sends a minimal request to the cheapest model. It bypasses retries, the
// circuit breakers and the metrics.
func (c *Client) HealthCheck(ctx context.Context) monitor.HealthStatus {
	start := time.Now()
	if c.closed.Load() {
		return monitor.Unhealthy(0, model.NewError(model.KindPoolClosed, "client is closed"))
	}

	lease, err := c.pool.AcquireWithTimeout(ctx, c.cfg.Timeout())
	if err != nil {
		return monitor.Unhealthy(time.Since(start), err)
	}
	defer lease.Release()

	probeCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout())
	defer cancel()

	// deterministic sampling pins temperature to 0
	genCfg := model.DeterministicConfig()
	maxTokens := 1
	genCfg.MaxTokens = &maxTokens

	_, err = lease.Client().Invoke(probeCtx, &adaptor.InvokeRequest{
		ModelID:  pricing.HealthCheckModel,
		Messages: []model.Message{model.UserMessage("Hi")},
		Config:   genCfg,
	})
	latency := time.Since(start)
	if err != nil {
		c.logger.Warn("health check failed", zap.Duration("latency", latency), zap.Error(err))
		return monitor.Unhealthy(latency, model.Classify(err))
	}
	return monitor.Healthy(latency)
}

// PoolStats returns a snapshot of the connection pool counters.
func (c *Client) PoolStats() pool.Stats {
	return c.pool.Stats()
}

// Metrics returns a snapshot of the request metrics.
func (c *Client) Metrics() monitor.Snapshot {
	return c.metrics.Snapshot()
}

// MetricsAggregator exposes the live aggregator for exporters.
func (c *Client) MetricsAggregator() *monitor.Metrics {
	return c.metrics
}

// BreakerStates returns the circuit state of every recently used model.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.States()
}

// ListModels returns the IDs of the available models.
func (c *Client) ListModels() []string {
	infos := c.models.ListAvailable()
	ids := make([]string, 0, len(infos))
	for _, m := range infos {
		ids = append(ids, m.ID)
	}
	return ids
}

// Models returns the model registry.
func (c *Client) Models() *pricing.Registry {
	return c.models
}

// Config returns the validated configuration.
func (c *Client) Config() config.BedrockConfig {
	return c.cfg
}

// Close rejects new requests and waits, bounded by ctx, for in-flight calls to return
// their pool handles. It is idempotent.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stopMonitor != nil {
			c.stopMonitor()
			c.monitorDone.Wait()
		}
		c.closeErr = c.pool.Close(ctx)
		c.logger.Info("bedrock client closed", zap.Error(c.closeErr))
	})
	return c.closeErr
}

func (c *Client) prepare(modelID string, messages []model.Message, genCfg *model.GenerationConfig) (*adaptor.InvokeRequest, error) {
	if modelID == "" {
		return nil, model.NewError(model.KindInvalidInput, "model id is required")
	}
	if len(messages) == 0 {
		return nil, model.NewError(model.KindInvalidInput, "at least one message is required")
	}

	merged, err := model.DefaultGenerationConfig().Merge(genCfg)
	if err != nil {
		return nil, model.WrapError(model.KindInvalidInput, err, "")
	}

	if info, ok := c.models.Get(modelID); ok && info.Capabilities.ContextWindow > 0 {
		prompt := pricing.EstimatePromptTokens(messages, merged.SystemPrompt)
		var maxTokens int
		if merged.MaxTokens != nil {
			maxTokens = *merged.MaxTokens
		}
		if prompt+maxTokens > info.Capabilities.ContextWindow {
			return nil, model.NewError(model.KindTokenLimitExceeded,
				"prompt of ~%d tokens plus max_tokens %d exceeds the %d token context window of %s",
				prompt, maxTokens, info.Capabilities.ContextWindow, modelID)
		}
	}

	return &adaptor.InvokeRequest{
		ModelID:  modelID,
		Messages: messages,
		Config:   merged,
	}, nil
}

// admit takes a concurrency permit. The returned release is safe to call once.
func (c *Client) admit(ctx context.Context) (func(), error) {
	if c.closed.Load() {
		return nil, model.NewError(model.KindPoolClosed, "client is closed")
	}
	if err := c.admission.Acquire(ctx, 1); err != nil {
		return nil, model.Classify(err)
	}
	var once sync.Once
	return func() {
		once.Do(func() { c.admission.Release(1) })
	}, nil
}

func (c *Client) startRequest(modelID string) {
	if c.cfg.EnableMetrics {
		c.metrics.StartRequest(modelID)
	}
}

func (c *Client) completeSuccess(latency time.Duration, usage *model.TokenUsage) {
	if !c.cfg.EnableMetrics {
		return
	}
	if usage == nil {
		c.metrics.CompleteSuccess(latency, 0, 0, 0)
		return
	}
	c.metrics.CompleteSuccess(latency, usage.InputTokens, usage.OutputTokens, usage.EstimatedCost)
}

// completeFailure records the code of the underlying upstream failure, so retries exhausted
// on throttling count as rate_limited and a circuit opened by server errors as service_error.
func (c *Client) completeFailure(latency time.Duration, err error) {
	if !c.cfg.EnableMetrics {
		return
	}
	c.metrics.CompleteFailure(latency, model.Classify(err).Root().Code())
}
