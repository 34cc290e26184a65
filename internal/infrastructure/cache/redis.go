package cache

import (
	"context"
	"fmt"
	"log"
	"time"

	"quizwallet/internal/config"

	"github.com/go-redis/redis/v8"
)

var RedisClient *redis.Client

// InitRedis 初始化 Redis 连接，未启用时返回 nil，
// 调用方（分布式锁、排行榜缓存）在 client 为 nil 时自动降级
func InitRedis(cfg *config.RedisConfig) *redis.Client {
	if !cfg.Enabled {
		log.Println("Redis 未启用，分布式锁与排行榜缓存降级为关闭")
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("连接 Redis 失败: %v", err)
	}

	RedisClient = client
	log.Println("Redis 连接成功")
	return client
}
