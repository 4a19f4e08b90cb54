package config

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/go-playground/validator/v10"

	"github.com/paiml/universal-bot/relay/model"
)

// BedrockConfig configures the resilience client. Every numeric option is validated against
// its range when the client is constructed; out-of-range values are rejected, never clamped.
type BedrockConfig struct {
	Region                  string  `json:"region" validate:"required"`
	Endpoint                string  `json:"endpoint,omitempty" validate:"omitempty,url"`
	PoolSize                int     `json:"pool_size" validate:"min=1,max=100"`
	TimeoutSeconds          int     `json:"timeout_seconds" validate:"min=1,max=300"`
	RetryInitialIntervalMs  int     `json:"retry_initial_interval_ms" validate:"min=100,max=10000"`
	RetryMaxIntervalSeconds int     `json:"retry_max_interval_seconds" validate:"min=1,max=60"`
	RetryMaxElapsedSeconds  int     `json:"retry_max_elapsed_seconds" validate:"min=10,max=300"`
	RetryMultiplier         float64 `json:"retry_multiplier" validate:"min=1,max=5"`
	MaxConcurrentRequests   int     `json:"max_concurrent_requests" validate:"min=1,max=1000"`
	EnableMetrics           bool    `json:"enable_metrics"`
	EnableLogging           bool    `json:"enable_logging"`
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// DefaultBedrockConfig returns the baseline configuration.
func DefaultBedrockConfig() BedrockConfig {
	return BedrockConfig{
		Region:                  "us-east-1",
		PoolSize:                5,
		TimeoutSeconds:          120,
		RetryInitialIntervalMs:  500,
		RetryMaxIntervalSeconds: 30,
		RetryMaxElapsedSeconds:  300,
		RetryMultiplier:         2.0,
		MaxConcurrentRequests:   100,
		EnableMetrics:           true,
		EnableLogging:           false,
	}
}

// HighPerformanceBedrockConfig trades resources for throughput.
func HighPerformanceBedrockConfig() BedrockConfig {
	cfg := DefaultBedrockConfig()
	cfg.PoolSize = 20
	cfg.MaxConcurrentRequests = 500
	cfg.TimeoutSeconds = 60
	cfg.RetryInitialIntervalMs = 200
	cfg.RetryMaxIntervalSeconds = 10
	cfg.RetryMultiplier = 1.5
	return cfg
}

// LowLatencyBedrockConfig fails fast with short, flat backoff.
func LowLatencyBedrockConfig() BedrockConfig {
	cfg := DefaultBedrockConfig()
	cfg.PoolSize = 10
	cfg.TimeoutSeconds = 30
	cfg.RetryInitialIntervalMs = 100
	cfg.RetryMaxIntervalSeconds = 5
	cfg.RetryMaxElapsedSeconds = 60
	cfg.RetryMultiplier = 1.2
	return cfg
}

// ConservativeBedrockConfig keeps load on the upstream low.
// The retry budget is capped at the 300s maximum the validator accepts.
func ConservativeBedrockConfig() BedrockConfig {
	cfg := DefaultBedrockConfig()
	cfg.PoolSize = 2
	cfg.MaxConcurrentRequests = 10
	cfg.TimeoutSeconds = 180
	cfg.RetryInitialIntervalMs = 1000
	cfg.RetryMaxIntervalSeconds = 60
	cfg.RetryMaxElapsedSeconds = 300
	cfg.RetryMultiplier = 3.0
	return cfg
}

// FromEnv builds a configuration from the process environment variables of this package.
func FromEnv() BedrockConfig {
	return BedrockConfig{
		Region:                  Region,
		Endpoint:                Endpoint,
		PoolSize:                PoolSize,
		TimeoutSeconds:          TimeoutSeconds,
		RetryInitialIntervalMs:  RetryInitialIntervalMs,
		RetryMaxIntervalSeconds: RetryMaxIntervalSeconds,
		RetryMaxElapsedSeconds:  RetryMaxElapsedSeconds,
		RetryMultiplier:         RetryMultiplier,
		MaxConcurrentRequests:   MaxConcurrentRequests,
		EnableMetrics:           EnableMetrics,
		EnableLogging:           EnableLogging,
	}
}

// Validate checks every option against its allowed range and returns a configuration error
// naming each offending field.
func (c BedrockConfig) Validate() error {
	var msgs []string
	if err := getValidator().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return model.WrapError(model.KindConfiguration, err, "validate bedrock config")
		}
		for _, fe := range verrs {
			if fe.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
		}
	}
	if c.RetryInitialInterval() > c.RetryMaxInterval() {
		msgs = append(msgs, fmt.Sprintf("RetryInitialIntervalMs (%v) exceeds RetryMaxIntervalSeconds (%v)",
			c.RetryInitialInterval(), c.RetryMaxInterval()))
	}

	if len(msgs) == 0 {
		return nil
	}
	return model.NewError(model.KindConfiguration, "%s", strings.Join(msgs, "; "))
}

func (c BedrockConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c BedrockConfig) RetryInitialInterval() time.Duration {
	return time.Duration(c.RetryInitialIntervalMs) * time.Millisecond
}

func (c BedrockConfig) RetryMaxInterval() time.Duration {
	return time.Duration(c.RetryMaxIntervalSeconds) * time.Second
}

func (c BedrockConfig) RetryMaxElapsed() time.Duration {
	return time.Duration(c.RetryMaxElapsedSeconds) * time.Second
}
