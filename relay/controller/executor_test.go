package controller

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/paiml/universal-bot/monitor"
	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/adaptor/mock"
	"github.com/paiml/universal-bot/relay/breaker"
	"github.com/paiml/universal-bot/relay/model"
	"github.com/paiml/universal-bot/relay/pool"
	"github.com/paiml/universal-bot/relay/retry"
)

func fastPolicy(maxRetries int) retry.Policy {
	return retry.Policy{
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
		MaxElapsedTime:  10 * time.Second,
		Multiplier:      2,
		MaxRetries:      maxRetries,
	}
}

type executorFixture struct {
	upstream *mock.Upstream
	executor *Executor
	breakers *breaker.Registry
	metrics  *monitor.Metrics

	mu     sync.Mutex
	events []RetryEvent
}

func (f *executorFixture) retries() []RetryEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]RetryEvent(nil), f.events...)
}

func newExecutorFixture(t *testing.T, policy retry.Policy, settings breaker.Settings, steps ...mock.Step) *executorFixture {
	t.Helper()

	f := &executorFixture{upstream: mock.New(steps...), metrics: monitor.NewMetrics()}
	p, err := pool.New(context.Background(), pool.Params{Size: 2, Factory: f.upstream.Factory()})
	require.NoError(t, err)

	f.breakers = breaker.NewRegistry(breaker.RegistryParams{Settings: settings})
	f.executor, err = NewExecutor(ExecutorParams{
		Pool:             p,
		Breakers:         f.breakers,
		Strategy:         retry.NewStrategy(retry.WithDefaultPolicy(policy)),
		Metrics:          f.metrics,
		OperationTimeout: time.Second,
		OnRetry: func(ev RetryEvent) {
			f.mu.Lock()
			f.events = append(f.events, ev)
			f.mu.Unlock()
		},
	})
	require.NoError(t, err)
	return f
}

func invoke(ctx context.Context, upstream adaptor.Upstream) (*adaptor.InvokeResponse, error) {
	return upstream.Invoke(ctx, &adaptor.InvokeRequest{
		ModelID:  "m",
		Messages: []model.Message{model.UserMessage("ping")},
	})
}

func serviceErr() error {
	return model.NewError(model.KindServiceError, "upstream 500")
}

func TestNewExecutor_RequiresDependencies(t *testing.T) {
	t.Parallel()

	_, err := NewExecutor(ExecutorParams{})
	require.True(t, model.IsKind(err, model.KindConfiguration))
}

func TestExecute_RecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, fastPolicy(2), breaker.Settings{FailureThreshold: 10},
		mock.Step{Err: serviceErr()},
		mock.Step{Err: serviceErr()},
	)

	resp, err := Execute(context.Background(), f.executor, "m", invoke)
	require.NoError(t, err)
	require.Equal(t, "echo: ping", resp.Content)
	require.Equal(t, 3, f.upstream.Calls())

	events := f.retries()
	require.Len(t, events, 2)
	require.Equal(t, 0, events[0].Attempt)
	require.Equal(t, 1, events[1].Attempt)
	require.Equal(t, time.Millisecond, events[0].Delay)
	require.Equal(t, uint64(2), f.metrics.Snapshot().TotalRetries)
	require.Equal(t, breaker.StateClosed, f.breakers.Get("m").State())
}

func TestExecute_WrapsLastErrorWhenRetriesRunOut(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, fastPolicy(2), breaker.Settings{FailureThreshold: 10})
	f.upstream.WithFallback(mock.Step{Err: serviceErr()})

	_, err := Execute(context.Background(), f.executor, "m", invoke)
	require.Error(t, err)
	require.True(t, model.IsKind(err, model.KindRetriesExhausted))

	classified := model.Classify(err)
	require.Equal(t, 3, classified.Attempts)
	require.Equal(t, model.KindServiceError, classified.Last().Kind)
	require.True(t, classified.IsRetryable())
	require.Equal(t, 3, f.upstream.Calls())
}

func TestExecute_PermanentErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, fastPolicy(5), breaker.Settings{FailureThreshold: 10},
		mock.Step{Err: model.NewError(model.KindAuthentication, "bad signature")},
	)

	_, err := Execute(context.Background(), f.executor, "m", invoke)
	require.True(t, model.IsKind(err, model.KindAuthentication))
	require.Equal(t, 1, f.upstream.Calls())
	require.Empty(t, f.retries())
}

func TestExecute_OpenCircuitFailsFast(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, fastPolicy(5), breaker.Settings{FailureThreshold: 2, Timeout: time.Hour})
	f.upstream.WithFallback(mock.Step{Err: serviceErr()})

	// the second failure opens the circuit and the third attempt is rejected locally
	_, err := Execute(context.Background(), f.executor, "m", invoke)
	require.True(t, model.IsKind(err, model.KindCircuitOpen))
	require.Equal(t, 2, f.upstream.Calls())
	require.Equal(t, breaker.StateOpen, f.breakers.Get("m").State())

	_, err = Execute(context.Background(), f.executor, "m", invoke)
	require.True(t, model.IsKind(err, model.KindCircuitOpen))
	require.Equal(t, 2, f.upstream.Calls())

	// other targets keep their own breaker
	_, err = Execute(context.Background(), f.executor, "other", invoke)
	require.True(t, model.IsKind(err, model.KindCircuitOpen))
	require.Equal(t, 4, f.upstream.Calls())
}

func TestExecute_CircuitTrippedMidRetryKeepsLastFailure(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, fastPolicy(5), breaker.Settings{FailureThreshold: 3, Timeout: time.Hour})
	f.upstream.WithFallback(mock.Step{Err: serviceErr()})

	_, err := Execute(context.Background(), f.executor, "m", invoke)
	require.Error(t, err)
	require.True(t, model.IsKind(err, model.KindCircuitOpen))
	require.Equal(t, 3, f.upstream.Calls())
	// no backoff is spent on an attempt the open circuit would reject
	require.Len(t, f.retries(), 2)

	classified := model.Classify(err)
	require.Equal(t, "circuit_open", classified.Code())
	require.Equal(t, model.KindServiceError, classified.Root().Kind)

	var cause *model.Error
	require.ErrorAs(t, classified.Unwrap(), &cause)
	require.Equal(t, model.KindServiceError, cause.Kind)
	require.Contains(t, err.Error(), "upstream 500")
}

func TestExecute_StopsWhenDelayExceedsElapsedBudget(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(5)
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 10 * time.Millisecond
	f := newExecutorFixture(t, policy, breaker.Settings{FailureThreshold: 10})
	f.upstream.WithFallback(mock.Step{Err: serviceErr()})

	_, err := Execute(context.Background(), f.executor, "m", invoke)
	require.True(t, model.IsKind(err, model.KindServiceError))
	require.Equal(t, 1, f.upstream.Calls())
	require.Empty(t, f.retries())
}

func TestExecute_CancelDuringBackoff(t *testing.T) {
	t.Parallel()

	policy := fastPolicy(5)
	policy.InitialInterval = time.Minute
	policy.MaxInterval = time.Minute
	policy.MaxElapsedTime = time.Hour
	f := newExecutorFixture(t, policy, breaker.Settings{FailureThreshold: 10})
	f.upstream.WithFallback(mock.Step{Err: serviceErr()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Execute(ctx, f.executor, "m", invoke)
	require.Error(t, err)
	require.True(t, model.IsKind(err, model.KindTimeout))
	require.Less(t, time.Since(start), 5*time.Second)
	require.Equal(t, 1, f.upstream.Calls())
}

func TestExecute_OperationTimeoutIsRetried(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, fastPolicy(1), breaker.Settings{FailureThreshold: 10},
		mock.Step{Delay: time.Minute},
	)
	f.executor.params.OperationTimeout = 20 * time.Millisecond

	resp, err := Execute(context.Background(), f.executor, "m", invoke)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Content)

	events := f.retries()
	require.Len(t, events, 1)
	require.Equal(t, model.KindTimeout, events[0].Err.Kind)
}

func TestDo_ReleasesLeases(t *testing.T) {
	t.Parallel()

	f := newExecutorFixture(t, fastPolicy(1), breaker.Settings{FailureThreshold: 10},
		mock.Step{Err: serviceErr()},
	)

	err := f.executor.Do(context.Background(), "m", func(ctx context.Context, upstream adaptor.Upstream) error {
		_, err := invoke(ctx, upstream)
		return err
	})
	require.NoError(t, err)

	stats := f.executor.params.Pool.Stats()
	require.Equal(t, 0, stats.ActiveClients)
	require.Equal(t, uint64(2), stats.TotalAcquisitions)
	require.Equal(t, uint64(2), stats.TotalReleases)
}
