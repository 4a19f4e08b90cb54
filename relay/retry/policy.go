package retry

import (
	"time"

	"github.com/paiml/universal-bot/relay/model"
)

// jitterFactor is the upper bound of the positive jitter applied to a delay.
const jitterFactor = 0.1

// Policy holds the backoff parameters for one error category.
type Policy struct {
	// InitialInterval is the delay before the first retry.
	InitialInterval time.Duration `json:"initial_interval"`
	// MaxInterval caps every single delay (before jitter).
	MaxInterval time.Duration `json:"max_interval"`
	// MaxElapsedTime bounds the total wall-clock time of a logical request, retries included.
	MaxElapsedTime time.Duration `json:"max_elapsed_time"`
	// Multiplier grows the delay between consecutive attempts; it must be >= 1.
	Multiplier float64 `json:"multiplier"`
	// MaxRetries is the number of retries after the first attempt; 0 disables retrying.
	MaxRetries int `json:"max_retries"`
	// Jitter scales each delay by a random factor in [1, 1.1).
	Jitter bool `json:"jitter"`
}

// DefaultPolicy is used for server-side failures and for categories without a mapping.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		MaxElapsedTime:  300 * time.Second,
		Multiplier:      2.0,
		MaxRetries:      5,
		Jitter:          true,
	}
}

// ConservativePolicy backs off slowly, for throttling and resource exhaustion.
func ConservativePolicy() Policy {
	return Policy{
		InitialInterval: time.Second,
		MaxInterval:     60 * time.Second,
		MaxElapsedTime:  600 * time.Second,
		Multiplier:      3.0,
		MaxRetries:      3,
		Jitter:          true,
	}
}

// AggressivePolicy retries quickly and often, for transient network failures.
func AggressivePolicy() Policy {
	return Policy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxElapsedTime:  120 * time.Second,
		Multiplier:      1.5,
		MaxRetries:      10,
		Jitter:          true,
	}
}

// NoRetryPolicy disables retrying.
func NoRetryPolicy() Policy {
	return Policy{Multiplier: 1.0}
}

// Validate checks the invariants of the policy.
func (p Policy) Validate() error {
	switch {
	case p.InitialInterval < 0 || p.MaxInterval < 0 || p.MaxElapsedTime < 0:
		return model.NewError(model.KindConfiguration, "retry intervals must not be negative")
	case p.InitialInterval > p.MaxInterval:
		return model.NewError(model.KindConfiguration,
			"retry initial interval %s exceeds max interval %s", p.InitialInterval, p.MaxInterval)
	case p.Multiplier < 1.0:
		return model.NewError(model.KindConfiguration, "retry multiplier %.2f must be >= 1.0", p.Multiplier)
	case p.MaxRetries < 0:
		return model.NewError(model.KindConfiguration, "max retries must not be negative")
	}
	return nil
}

// Disabled reports whether the policy never retries.
func (p Policy) Disabled() bool {
	return p.MaxRetries == 0
}
