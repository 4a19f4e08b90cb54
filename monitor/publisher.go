package monitor

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"
)

// PublisherParams configures a Publisher.
type PublisherParams struct {
	Client   redis.Cmdable
	Key      string
	Interval time.Duration
	// Instance distinguishes replicas writing to the same key.
	Instance string
	// TTL expires the hash when the publisher stops; 0 means three intervals.
	TTL     time.Duration
	Metrics *Metrics
	Logger  *zap.Logger
}

// Publisher periodically writes the metrics summary to a Redis hash so other
// processes can read the live state of this client.
type Publisher struct {
	params PublisherParams
}

func NewPublisher(params PublisherParams) (*Publisher, error) {
	if params.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Metrics == nil {
		return nil, errors.New("metrics are required")
	}
	if params.Key == "" {
		return nil, errors.New("publish key is required")
	}
	if params.Interval <= 0 {
		params.Interval = 15 * time.Second
	}
	if params.TTL <= 0 {
		params.TTL = 3 * params.Interval
	}
	if params.Logger == nil {
		params.Logger = zap.NewNop()
	}
	return &Publisher{params: params}, nil
}

// Key is the Redis hash written by the publisher.
func (p *Publisher) Key() string {
	if p.params.Instance == "" {
		return p.params.Key
	}
	return p.params.Key + ":" + p.params.Instance
}

// PublishOnce writes the current summary.
func (p *Publisher) PublishOnce(ctx context.Context) error {
	snapshot := p.params.Metrics.Snapshot()
	summary := snapshot.Summary()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return errors.Wrap(err, "marshal metrics snapshot")
	}

	key := p.Key()
	_, err = p.params.Client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			"total_requests", summary.TotalRequests,
			"success_rate", summary.SuccessRate,
			"average_latency_ms", summary.AverageLatencyMs,
			"requests_per_second", summary.RequestsPerSecond,
			"total_tokens", summary.TotalTokens,
			"total_cost", summary.TotalCost,
			"active_requests", summary.ActiveRequests,
			"uptime_seconds", summary.UptimeSeconds,
			"snapshot", string(payload),
			"updated_at", time.Now().UTC().Format(time.RFC3339),
		)
		pipe.Expire(ctx, key, p.params.TTL)
		return nil
	})
	if err != nil {
		return errors.Wrapf(err, "publish metrics to %s", key)
	}
	return nil
}

// Run publishes every interval until ctx ends. Failures are logged and retried on the
// next tick.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.params.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.PublishOnce(ctx); err != nil {
				p.params.Logger.Warn("publish metrics", zap.Error(err))
			}
		}
	}
}
