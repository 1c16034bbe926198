// Package redisx builds Redis clients from the shared REDIS_* environment.
package redisx

import (
	"context"
	"strings"

	"github.com/hibiken/asynq"
	"github.com/md-rashed-zaman/lessonbook/libs/config"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	Addr     string
	Password string
	DB       int
}

// OptionsFromEnv reads REDIS_ADDR, REDIS_PASSWORD and REDIS_DB. Addr is empty when Redis
// is not configured.
func OptionsFromEnv() Options {
	return Options{
		Addr:     strings.TrimSpace(config.String("REDIS_ADDR", "")),
		Password: config.String("REDIS_PASSWORD", ""),
		DB:       config.Int("REDIS_DB", 0, 0),
	}
}

func (o Options) Enabled() bool {
	return o.Addr != ""
}

func (o Options) Client() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	})
}

// Asynq returns the connection options for asynq servers and schedulers.
func (o Options) Asynq() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     o.Addr,
		Password: o.Password,
		DB:       o.DB,
	}
}

// ReadyCheck pings Redis. A nil client yields a nil check, which /readyz skips.
func ReadyCheck(rdb *redis.Client) func(context.Context) error {
	if rdb == nil {
		return nil
	}
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
