package dbs

import (
	"context"

	config "codearena/configs"

	"github.com/redis/go-redis/v9"
)

var RedisClient *redis.Client

func InitRedis(ctx context.Context, cfg *config.Config) error {
	RedisClient = redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})

	if _, err := RedisClient.Ping(ctx).Result(); err != nil {
		return err
	}

	return nil
}

func CloseRedis() {
	if RedisClient != nil {
		_ = RedisClient.Close()
	}
}
