package config

import (
	"errors"
	"fmt"
	log "log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Cfg 全局可访问的配置实例
var Cfg *Config

// LoadConfig 加载 ./configs/<name>.yaml，环境变量覆盖文件 (server.port -> SERVER_PORT)
// 配置文件不存在时只使用默认值与环境变量
func LoadConfig(name string) error {
	if err := godotenv.Load(); err == nil {
		log.Info("Loaded .env file")
	}

	v := viper.New()
	v.SetConfigName(name)
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return fmt.Errorf("read config: %w", err)
		}
		log.Warn("Config file not found, using defaults", "name", name)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	Cfg = &cfg

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 5)

	v.SetDefault("mongo.url", "mongodb://localhost:27017")
	v.SetDefault("mongo.database", "homestead")
	v.SetDefault("mongo.connect_timeout", 10)

	v.SetDefault("redis.enable", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("logstash.index", "logstash-homestead")

	v.SetDefault("jwt.issuer", "Homestead")
	v.SetDefault("jwt.expire_hour", 24)

	v.SetDefault("broadcast.grace_delay_ms", 100)
	v.SetDefault("broadcast.write_timeout_s", 10)
	v.SetDefault("broadcast.send_buffer", 16)
	v.SetDefault("broadcast.snapshot_rate", 1.0)
	v.SetDefault("broadcast.snapshot_cache_ttl_s", 300)

	v.SetDefault("kafka.enable", false)
	v.SetDefault("kafka.consumer.session_timeout", 10)
	v.SetDefault("kafka.consumer.heartbeat_interval", 3)
	v.SetDefault("kafka.consumer.rebalance_timeout", 60)
	v.SetDefault("kafka.consumer.max_processing_time", 30)
	v.SetDefault("kafka.consumer.initial_offset", "newest")
	v.SetDefault("kafka_notification_consumer.topic", "homestead.notification.command")
	v.SetDefault("kafka_notification_consumer.group_id", "homestead-notification")

	v.SetDefault("cron.resync", "0 */5 * * * *")
	v.SetDefault("cron.retention", "0 30 3 * * *")
	v.SetDefault("cron.retention_days", 30)

	v.SetDefault("client.base_url", "http://localhost:8080/api")
	v.SetDefault("client.ws_url", "ws://localhost:8080/api/notifications/ws")
	v.SetDefault("client.cache_path", "./data/notification_cache.db")
	v.SetDefault("client.backoff_base_ms", 1000)
	v.SetDefault("client.backoff_cap_ms", 30000)
	v.SetDefault("client.bootstrap_max_attempts", 3)
	v.SetDefault("client.cache_poll_ms", 500)
}
