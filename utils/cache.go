package utils

import (
	"context"
	"log"
	"parley/config"
	"time"

	"github.com/go-redis/redis/v8"
)

var (
	// CacheClient is the generic cache client.
	CacheClient *redis.Client
	// DedupClient remembers which inbound messages were already routed.
	DedupClient *redis.Client
)

// InitCache initializes the generic Redis cache client.
func InitCache() {
	CacheClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisCacheDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := CacheClient.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Failed to connect to Redis (Cache): %v", err)
	}
}

// GetCacheClient returns the generic cache client.
func GetCacheClient() *redis.Client {
	if CacheClient == nil {
		InitCache()
	}
	return CacheClient
}

// InitDedupCache initializes the Redis client used for inbound message deduplication.
func InitDedupCache() {
	DedupClient = redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDedupDB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := DedupClient.Ping(ctx).Result()
	if err != nil {
		log.Fatalf("Failed to connect to Redis (Dedup): %v", err)
	}
}

// GetDedupClient returns the dedup client, connecting on first use.
func GetDedupClient() *redis.Client {
	if DedupClient == nil {
		InitDedupCache()
	}
	return DedupClient
}

// ReminderRedisOpt is the connection asynq uses for reminder tasks.
func ReminderRedisOpt() (addr, password string, db int) {
	return config.AppConfig.RedisAddr, config.AppConfig.RedisPassword, config.AppConfig.RedisReminderDB
}
