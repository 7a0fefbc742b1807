package logger

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisSlowThreshold = 100 * time.Millisecond

// RedisLoggerHook 只记录出错与慢命令；快照缓存未命中 (redis.Nil) 属于正常路径
type RedisLoggerHook struct{}

func NewRedisLogger() *RedisLoggerHook {
	return &RedisLoggerHook{}
}

func (s *RedisLoggerHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		if err != nil {
			log.ErrorContext(ctx, "Redis Dial Error", "addr", addr, "latency", time.Since(start), "err", err)
		}
		return conn, err
	}
}

func (s *RedisLoggerHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		logRedis(ctx, "Redis", time.Since(start), err, "command", cmd.Name(), "args", redisArgs(cmd))
		return err
	}
}

func (s *RedisLoggerHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		logRedis(ctx, "Redis Pipeline", time.Since(start), err, "cmd_count", len(cmds))
		return err
	}
}

func logRedis(ctx context.Context, prefix string, elapsed time.Duration, err error, fields ...any) {
	fields = append(fields, "latency", elapsed)
	switch {
	case err != nil && !ignorableRedisErr(err):
		log.ErrorContext(ctx, prefix+" Error", append(fields, "err", err)...)
	case err == nil && elapsed > redisSlowThreshold:
		log.WarnContext(ctx, prefix+" Slow", fields...)
	}
}

// redisArgs 认证类命令隐藏参数，快照 payload 截断
func redisArgs(cmd redis.Cmder) string {
	switch cmd.Name() {
	case "auth", "hello":
		return "[PROTECTED]"
	}
	return truncate(fmt.Sprint(cmd.Args()), maxLoggedCommand)
}

func ignorableRedisErr(err error) bool {
	if errors.Is(err, redis.Nil) {
		return true
	}
	msg := err.Error()
	// 旧版本服务端不支持 CLIENT SETINFO
	return msg == "ERR no such key" || strings.Contains(msg, "setinfo")
}
