package redis

import (
	"Homestead/internal/api/config"
	"Homestead/internal/pkg/logger"
	"context"
	"fmt"
	log "log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/redis/go-redis/v9/maintnotifications"
)

// Rdb 未启用 Redis 时为 nil，调用方需先判断 Enabled
var Rdb *redis.Client

// InitRedis 初始化 Redis 客户端连接
func InitRedis(cfg config.RedisConfig) error {
	if !cfg.Enable {
		log.Info("Redis disabled, snapshot cache and token blacklist are off")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,

		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	})
	rdb.AddHook(logger.NewRedisLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("redis ping: %w", err)
	}

	Rdb = rdb
	log.Info("Redis initialized successfully", "addr", cfg.Addr)
	return nil
}

// Enabled Redis 是否可用
func Enabled() bool {
	return Rdb != nil
}

// CloseRedis 关闭连接
func CloseRedis() {
	if Rdb == nil {
		return
	}
	if err := Rdb.Close(); err != nil {
		log.Error("Redis close failed", "err", err)
	}
}
