package retry

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/paiml/universal-bot/relay/model"
)

// Strategy maps error categories to retry policies. It is built once and read concurrently;
// SetPolicy is the only mutation and takes the write lock.
type Strategy struct {
	mu            sync.RWMutex
	policies      map[model.ErrorCategory]Policy
	defaultPolicy Policy
	random        func() float64
}

// StrategyOption customizes a Strategy.
type StrategyOption func(*Strategy)

// WithDefaultPolicy replaces the policy used for Server errors and unmapped categories.
func WithDefaultPolicy(p Policy) StrategyOption {
	return func(s *Strategy) {
		s.defaultPolicy = p
		s.policies[model.CategoryServer] = p
	}
}

// WithRandom injects the jitter source. f must return values in [0, 1).
func WithRandom(f func() float64) StrategyOption {
	return func(s *Strategy) {
		s.random = f
	}
}

// NewStrategy builds the default category mapping:
// rate limits and resource exhaustion back off conservatively, network errors retry
// aggressively, server errors use the default policy and permanent categories never retry.
func NewStrategy(opts ...StrategyOption) *Strategy {
	s := &Strategy{
		policies: map[model.ErrorCategory]Policy{
			model.CategoryRateLimit:      ConservativePolicy(),
			model.CategoryNetwork:        AggressivePolicy(),
			model.CategoryServer:         DefaultPolicy(),
			model.CategoryResource:       ConservativePolicy(),
			model.CategoryClient:         NoRetryPolicy(),
			model.CategoryAuthentication: NoRetryPolicy(),
			model.CategoryAuthorization:  NoRetryPolicy(),
			model.CategoryConfiguration:  NoRetryPolicy(),
			model.CategoryContent:        NoRetryPolicy(),
		},
		defaultPolicy: DefaultPolicy(),
		random:        rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PolicyFor returns the policy mapped to category, or the default policy.
func (s *Strategy) PolicyFor(category model.ErrorCategory) Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.policies[category]; ok {
		return p
	}
	return s.defaultPolicy
}

// PolicyForError classifies err and returns the matching policy.
func (s *Strategy) PolicyForError(err error) Policy {
	return s.PolicyFor(model.Classify(err).Category())
}

// SetPolicy overrides the policy of one category.
func (s *Strategy) SetPolicy(category model.ErrorCategory, p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[category] = p
	return nil
}

// ShouldRetry reports whether the failed attempt with zero-based index attempt may be retried.
// max_retries=3 permits attempts 0..2 to be retried, i.e. 4 attempts in total.
func (s *Strategy) ShouldRetry(err error, attempt int) bool {
	classified := model.Classify(err)
	if classified == nil || classified.Terminal() {
		return false
	}
	category := classified.Category()
	if attempt >= s.PolicyFor(category).MaxRetries {
		return false
	}
	return category.IsRetryable()
}

// DelayFor returns the backoff before retrying after the failed attempt with index attempt.
// Attempt 0 waits InitialInterval. Attempt n waits InitialInterval*Multiplier^n capped at
// MaxInterval, scaled up by at most 10% when jitter is enabled.
func (s *Strategy) DelayFor(err error, attempt int) time.Duration {
	return s.delay(s.PolicyForError(err), attempt)
}

func (s *Strategy) delay(p Policy, attempt int) time.Duration {
	if attempt <= 0 {
		return p.InitialInterval
	}

	delay := float64(p.InitialInterval) * math.Pow(p.Multiplier, float64(attempt))
	if limit := float64(p.MaxInterval); delay > limit {
		delay = limit
	}
	if p.Jitter {
		delay *= 1 + s.random()*jitterFactor
	}
	return time.Duration(delay)
}
