package service

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// NewRedisClient connects to Redis and verifies the connection with a
// bounded ping.
func NewRedisClient(ctx context.Context, logger *zap.Logger, conf RedisConfig) (*redis.Client, error) {
	addr := conf.Addr
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	logger.Info("Connected to redis", zap.String("addr", addr), zap.Int("db", conf.DB))
	return client, nil
}
