// Package repository contains the repository layer for the Reference Data API
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/finref/refdataapi/internal/config"
	"github.com/redis/go-redis/v9"
)

// ConnectRedis connects to redis and verifies the connection with a ping.
func ConnectRedis(cfg *config.Config) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := redisClient.Ping(ctx).Result()
	if err != nil {
		return nil, err
	}
	return redisClient, nil
}
