package breaker

import (
	"sort"
	"sync"
	"time"

	"github.com/Laisky/zap"
	"github.com/patrickmn/go-cache"
)

// Registry hands out one breaker per target (usually a model ID).
// Breakers of targets that stay idle longer than the idle TTL are evicted and start
// closed on next use.
type Registry struct {
	mu       sync.Mutex
	settings Settings
	store    *cache.Cache
	logger   *zap.Logger
}

// RegistryParams configures a Registry.
type RegistryParams struct {
	Settings Settings
	// IdleTTL evicts breakers not used for this long; 0 keeps them forever.
	IdleTTL time.Duration
	Logger  *zap.Logger
}

func NewRegistry(params RegistryParams) *Registry {
	ttl := params.IdleTTL
	cleanup := ttl
	if ttl <= 0 {
		ttl = cache.NoExpiration
		cleanup = 0
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &Registry{
		settings: params.Settings,
		store:    cache.New(ttl, cleanup),
		logger:   params.Logger,
	}
}

// Get returns the breaker of target, creating a closed one when needed.
func (r *Registry) Get(target string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.store.Get(target); ok {
		b := v.(*CircuitBreaker)
		// touch to extend the idle deadline
		r.store.SetDefault(target, b)
		return b
	}

	settings := r.settings
	userHook := settings.OnStateChange
	lg := r.logger.With(zap.String("target", target))
	settings.OnStateChange = func(from, to State) {
		lg.Info("circuit breaker state changed",
			zap.String("from", from.String()),
			zap.String("to", to.String()))
		if userHook != nil {
			userHook(from, to)
		}
	}
	b := New(settings)
	r.store.SetDefault(target, b)
	return b
}

// States returns a snapshot of the state of every live breaker keyed by target.
func (r *Registry) States() map[string]string {
	items := r.store.Items()
	out := make(map[string]string, len(items))
	for target, item := range items {
		out[target] = item.Object.(*CircuitBreaker).State().String()
	}
	return out
}

// Targets lists the targets with a live breaker, sorted.
func (r *Registry) Targets() []string {
	items := r.store.Items()
	targets := make([]string, 0, len(items))
	for target := range items {
		targets = append(targets, target)
	}
	sort.Strings(targets)
	return targets
}
