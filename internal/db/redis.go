package db

import (
	"backend-socialpost/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no REDIS_URL is configured; callers treat a
// nil client as "no cache".
func ConnectRedis(cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}
