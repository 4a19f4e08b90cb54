package config

import (
	"strings"
	"time"

	"github.com/paiml/universal-bot/common/env"
)

var (
	// DebugEnabled toggles verbose structured logging when DEBUG=true.
	DebugEnabled = env.Bool("DEBUG", false)

	// ServerPort is the HTTP listen port for the gateway binary.
	ServerPort = strings.TrimSpace(env.String("PORT", "3000"))
	// GinMode allows forcing Gin into release mode (or other modes) without recompiling.
	GinMode = strings.TrimSpace(env.String("GIN_MODE", ""))
	// ShutdownTimeoutSec specifies how long (seconds) the server waits for in-flight requests and pool leases on shutdown.
	ShutdownTimeoutSec = env.Int("SHUTDOWN_TIMEOUT", 60)

	// Region selects the AWS region that hosts the Bedrock Runtime endpoint.
	Region = strings.TrimSpace(env.String("AWS_REGION", "us-east-1"))
	// Endpoint overrides the resolved Bedrock Runtime endpoint, mostly for VPC endpoints and local stubs.
	Endpoint = strings.TrimSpace(env.String("BEDROCK_ENDPOINT", ""))
	// AccessKeyID and SecretAccessKey switch the AWS client to static credentials when both are set.
	AccessKeyID     = strings.TrimSpace(env.String("AWS_ACCESS_KEY_ID", ""))
	SecretAccessKey = strings.TrimSpace(env.String("AWS_SECRET_ACCESS_KEY", ""))
	// Upstream picks the upstream implementation: "aws" for Bedrock Runtime or "mock" for the scripted double.
	Upstream = strings.ToLower(strings.TrimSpace(env.String("BEDROCK_UPSTREAM", "aws")))

	// PoolSize is the number of pooled Bedrock clients and concurrent upstream permits.
	PoolSize = env.Int("BEDROCK_POOL_SIZE", 5)
	// TimeoutSeconds bounds a single upstream call before it is aborted.
	TimeoutSeconds = env.Int("BEDROCK_TIMEOUT_SECONDS", 120)
	// RetryInitialIntervalMs is the first backoff delay of the default retry policy.
	RetryInitialIntervalMs = env.Int("RETRY_INITIAL_INTERVAL_MS", 500)
	// RetryMaxIntervalSeconds caps any single backoff delay of the default retry policy.
	RetryMaxIntervalSeconds = env.Int("RETRY_MAX_INTERVAL_SECONDS", 30)
	// RetryMaxElapsedSeconds bounds the total time a logical request may spend retrying.
	RetryMaxElapsedSeconds = env.Int("RETRY_MAX_ELAPSED_SECONDS", 300)
	// RetryMultiplier is the exponential growth factor between consecutive backoff delays.
	RetryMultiplier = env.Float64("RETRY_MULTIPLIER", 2.0)
	// MaxConcurrentRequests is the admission limit for logical requests handled by the client.
	MaxConcurrentRequests = env.Int("MAX_CONCURRENT_REQUESTS", 100)
	// EnableMetrics turns the in-process metrics aggregator on.
	EnableMetrics = env.Bool("ENABLE_METRICS", true)
	// EnableLogging turns structured request logging of the resilience client on.
	EnableLogging = env.Bool("ENABLE_LOGGING", false)

	// BreakerFailureThreshold is the number of consecutive failures that opens a target's circuit.
	BreakerFailureThreshold = env.Int("BREAKER_FAILURE_THRESHOLD", 5)
	// BreakerSuccessThreshold is the number of half-open successes that closes a target's circuit again.
	BreakerSuccessThreshold = env.Int("BREAKER_SUCCESS_THRESHOLD", 2)
	// BreakerOpenTimeout is how long a circuit stays open before it lets a probe through.
	BreakerOpenTimeout = time.Duration(env.Int("BREAKER_OPEN_TIMEOUT_SECONDS", 30)) * time.Second

	// PoolHealthCheckInterval controls how often the pool health monitor inspects pool stats (seconds, 0 disables).
	PoolHealthCheckInterval = time.Duration(env.Int("POOL_HEALTH_CHECK_INTERVAL", 30)) * time.Second

	// EnablePrometheusMetrics exposes the /metrics endpoint for Prometheus scrapers when true.
	EnablePrometheusMetrics = env.Bool("ENABLE_PROMETHEUS_METRICS", true)

	// RedisConnString defines the Redis connection string; leaving it empty disables the metrics publisher.
	RedisConnString = strings.TrimSpace(env.String("REDIS_CONN_STRING", ""))
	// RedisMasterName enables Redis sentinel/cluster discovery when provided.
	RedisMasterName = strings.TrimSpace(env.String("REDIS_MASTER_NAME", ""))
	// RedisPassword supplies the Redis authentication password when required.
	RedisPassword = env.String("REDIS_PASSWORD", "")
	// MetricsPublishInterval sets how often metrics snapshots are pushed to Redis.
	MetricsPublishInterval = time.Duration(env.Int("METRICS_PUBLISH_INTERVAL", 15)) * time.Second
	// MetricsPublishKey is the Redis hash key that receives metrics snapshots.
	MetricsPublishKey = env.String("METRICS_PUBLISH_KEY", "universal-bot:metrics")

	// SweepModels lists the models exercised by cmd/test, comma separated; empty means every catalog model.
	SweepModels = env.String("SWEEP_MODELS", "")
	// SweepPrompt is the user message sent by each cmd/test request.
	SweepPrompt = env.String("SWEEP_PROMPT", "Reply with the single word: pong")
)
