package common

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/Laisky/zap"
	"github.com/go-redis/redis/v8"

	"github.com/paiml/universal-bot/common/config"
	"github.com/paiml/universal-bot/common/logger"
)

// RDB is the shared Redis client; nil when Redis is not configured.
var RDB redis.UniversalClient

var redisEnabled atomic.Bool

func IsRedisEnabled() bool {
	return redisEnabled.Load()
}

// NewRedisClient builds a client from a connection string. A plain URL selects a single
// node; with masterName set, connString is a comma separated list of sentinel or
// cluster addresses.
func NewRedisClient(connString, masterName, password string) (redis.UniversalClient, error) {
	if masterName == "" {
		opt, err := redis.ParseURL(connString)
		if err != nil {
			return nil, errors.Wrap(err, "parse redis connection string")
		}
		return redis.NewClient(opt), nil
	}

	return redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:      strings.Split(connString, ","),
		Password:   password,
		MasterName: masterName,
	}), nil
}

// InitRedisClient connects RDB when REDIS_CONN_STRING is set and verifies it with a ping.
func InitRedisClient(ctx context.Context) error {
	if config.RedisConnString == "" {
		redisEnabled.Store(false)
		logger.Logger.Info("REDIS_CONN_STRING not set, metrics publishing is disabled")
		return nil
	}

	client, err := NewRedisClient(config.RedisConnString, config.RedisMasterName, config.RedisPassword)
	if err != nil {
		return err
	}
	if config.RedisMasterName != "" {
		logger.Logger.Info("redis cluster mode enabled", zap.String("master", config.RedisMasterName))
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return errors.Wrap(err, "redis ping")
	}

	RDB = client
	redisEnabled.Store(true)
	logger.Logger.Info("redis is enabled")
	return nil
}

// CloseRedisClient releases RDB.
func CloseRedisClient() error {
	if RDB == nil {
		return nil
	}
	redisEnabled.Store(false)
	return errors.Wrap(RDB.Close(), "close redis")
}
