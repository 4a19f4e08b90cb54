package controller

import (
	"context"
	"time"

	"github.com/Laisky/zap"

	"github.com/paiml/universal-bot/monitor"
	"github.com/paiml/universal-bot/relay/adaptor"
	"github.com/paiml/universal-bot/relay/breaker"
	"github.com/paiml/universal-bot/relay/model"
	"github.com/paiml/universal-bot/relay/pool"
	"github.com/paiml/universal-bot/relay/retry"
)

// RetryEvent describes a scheduled retry.
type RetryEvent struct {
	Target string
	// Attempt is the zero-based index of the attempt that failed.
	Attempt int
	Delay   time.Duration
	Err     *model.Error
}

// ExecutorParams configures an Executor.
type ExecutorParams struct {
	Pool     *pool.Pool
	Breakers *breaker.Registry
	Strategy *retry.Strategy
	// Metrics counts retries; nil disables counting.
	Metrics *monitor.Metrics
	// OperationTimeout bounds every single upstream call; 0 means no per-attempt bound.
	OperationTimeout time.Duration
	// AcquireTimeout bounds the wait for a pool handle. A timed out wait fails the attempt
	// with PoolExhausted. 0 waits as long as ctx allows.
	AcquireTimeout time.Duration
	// OnRetry is called before each backoff sleep.
	OnRetry func(RetryEvent)
	Logger  *zap.Logger
}

// Executor runs upstream calls through the pool, the circuit breaker of the target and
// the retry strategy.
type Executor struct {
	params ExecutorParams
	logger *zap.Logger
}

// NewExecutor builds an executor. Pool, Breakers and Strategy are required.
func NewExecutor(params ExecutorParams) (*Executor, error) {
	switch {
	case params.Pool == nil:
		return nil, model.NewError(model.KindConfiguration, "executor requires a pool")
	case params.Breakers == nil:
		return nil, model.NewError(model.KindConfiguration, "executor requires a breaker registry")
	case params.Strategy == nil:
		return nil, model.NewError(model.KindConfiguration, "executor requires a retry strategy")
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &Executor{params: params, logger: params.Logger}, nil
}

// Call is one upstream attempt on a leased handle.
type Call[T any] func(ctx context.Context, upstream adaptor.Upstream) (T, error)

type executeOptions struct {
	unbounded bool
}

// ExecuteOption tunes a single Execute.
type ExecuteOption func(*executeOptions)

// WithoutOperationTimeout leaves the attempt context unbounded. Calls whose result keeps
// using the context after they return, such as stream opens, bound themselves.
func WithoutOperationTimeout() ExecuteOption {
	return func(o *executeOptions) {
		o.unbounded = true
	}
}

// Do runs call until it succeeds, fails permanently or the retry budget runs out.
func (e *Executor) Do(ctx context.Context, target string, call func(ctx context.Context, upstream adaptor.Upstream) error) error {
	_, err := Execute(ctx, e, target, func(ctx context.Context, upstream adaptor.Upstream) (struct{}, error) {
		return struct{}{}, call(ctx, upstream)
	})
	return err
}

// Execute is Do for calls that produce a value.
//
// Every attempt leases a handle, asks the breaker of target for permission and invokes
// call under the operation timeout. An open circuit fails at once with CircuitOpen; when the
// circuit opens during the retries the CircuitOpen error wraps the last upstream failure.
// Failures are classified and retried while the strategy allows it and the next delay
// still fits the elapsed budget of the policy. When at least one retry happened the final
// error is RetriesExhausted wrapping the last failure.
func Execute[T any](ctx context.Context, e *Executor, target string, call Call[T], opts ...ExecuteOption) (T, error) {
	var zero T
	var o executeOptions
	for _, opt := range opts {
		opt(&o)
	}
	start := time.Now()
	breakerOf := e.params.Breakers.Get(target)
	lg := e.logger.With(zap.String("target", target))

	var last *model.Error
	for attempt := 0; ; attempt++ {
		result, err := attemptOnce(ctx, e, breakerOf, call, o)
		if err == nil {
			if attempt > 0 {
				lg.Debug("request succeeded after retry", zap.Int("attempts", attempt+1))
			}
			return result, nil
		}

		if err.Kind == model.KindCircuitOpen {
			if last != nil {
				err = model.WrapError(model.KindCircuitOpen, last, "circuit breaker is open")
			}
			return zero, err
		}
		last = err
		if ctx.Err() != nil {
			return zero, finalError(err, attempt+1)
		}
		if !e.params.Strategy.ShouldRetry(err, attempt) {
			return zero, finalError(err, attempt+1)
		}
		// the failure just recorded may have tripped the breaker; the next attempt would be
		// rejected without reaching the upstream
		if breakerOf.State() == breaker.StateOpen {
			lg.Debug("circuit opened during retries",
				zap.Int("attempts", attempt+1),
				zap.String("error_code", err.Code()))
			return zero, model.WrapError(model.KindCircuitOpen, err, "circuit breaker opened")
		}

		delay := e.params.Strategy.DelayFor(err, attempt)
		budget := e.params.Strategy.PolicyForError(err).MaxElapsedTime
		if budget > 0 && time.Since(start)+delay > budget {
			lg.Debug("retry budget exhausted",
				zap.Duration("elapsed", time.Since(start)),
				zap.Duration("budget", budget))
			return zero, finalError(err, attempt+1)
		}

		lg.Debug("retrying request",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("error_code", err.Code()),
			zap.Error(err))
		if e.params.OnRetry != nil {
			e.params.OnRetry(RetryEvent{Target: target, Attempt: attempt, Delay: delay, Err: err})
		}
		if e.params.Metrics != nil {
			e.params.Metrics.RecordRetry()
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, finalError(model.Classify(ctx.Err()), attempt+1)
		case <-timer.C:
		}
	}
}

// attemptOnce performs one physical attempt. The lease is released before it returns.
func attemptOnce[T any](ctx context.Context, e *Executor, cb *breaker.CircuitBreaker, call Call[T], o executeOptions) (T, *model.Error) {
	var zero T

	var (
		lease *pool.Lease
		err   error
	)
	if e.params.AcquireTimeout > 0 {
		lease, err = e.params.Pool.AcquireWithTimeout(ctx, e.params.AcquireTimeout)
	} else {
		lease, err = e.params.Pool.Acquire(ctx)
	}
	if err != nil {
		return zero, model.Classify(err)
	}
	defer lease.Release()

	if !cb.CanExecute() {
		return zero, model.NewError(model.KindCircuitOpen, "circuit breaker is open")
	}

	callCtx := ctx
	if e.params.OperationTimeout > 0 && !o.unbounded {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.params.OperationTimeout)
		defer cancel()
	}

	result, err := call(callCtx, lease.Client())
	if err != nil {
		classified := model.Classify(err)
		// a caller cancellation says nothing about the health of the upstream
		if ctx.Err() == nil {
			cb.RecordFailure()
		}
		return zero, classified
	}

	cb.RecordSuccess()
	return result, nil
}

// finalError wraps err in RetriesExhausted when more than one attempt was made.
func finalError(err *model.Error, attempts int) *model.Error {
	if attempts <= 1 || err.Terminal() {
		return err
	}
	return model.Exhausted(err, attempts)
}
