package config

// Config 配置主体，服务端与客户端共用一份结构，各自只读取需要的部分
type Config struct {
	Server                    ServerConfig              `mapstructure:"server"`
	Mongo                     MongoConfig               `mapstructure:"mongo"`
	Redis                     RedisConfig               `mapstructure:"redis"`
	Logstash                  LogstashConfig            `mapstructure:"logstash"`
	JWT                       JWTConfig                 `mapstructure:"jwt"`
	Broadcast                 BroadcastConfig           `mapstructure:"broadcast"`
	Kafka                     KafkaConfig               `mapstructure:"kafka"`
	KafkaNotificationConsumer KafkaNotificationConsumer `mapstructure:"kafka_notification_consumer"`
	Cron                      CronConfig                `mapstructure:"cron"`
	Client                    ClientConfig              `mapstructure:"client"`
}

// ServerConfig Server配置
type ServerConfig struct {
	Port            int `mapstructure:"port"`
	ShutdownTimeout int `mapstructure:"shutdown_timeout"` // 秒
}

// MongoConfig 通知存储
type MongoConfig struct {
	URL            string `mapstructure:"url"`
	Database       string `mapstructure:"database"`
	ConnectTimeout int    `mapstructure:"connect_timeout"` // 秒
	MaxPoolSize    uint64 `mapstructure:"max_pool_size"`
}

type RedisConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// LogstashConfig 远程日志，Address 为空时只输出到 stdout
type LogstashConfig struct {
	Address string `mapstructure:"address"`
	Index   string `mapstructure:"index"`
	Token   string `mapstructure:"token"`
}

// JWTConfig 与上游业务系统共享的签名配置
type JWTConfig struct {
	Secret     string `mapstructure:"secret"`
	Issuer     string `mapstructure:"issuer"`
	ExpireHour int    `mapstructure:"expire_hour"`
}

// BroadcastConfig 推送相关参数
type BroadcastConfig struct {
	GraceDelayMs     int     `mapstructure:"grace_delay_ms"`
	WriteTimeout     int     `mapstructure:"write_timeout_s"`
	SendBuffer       int     `mapstructure:"send_buffer"`
	SnapshotRate     float64 `mapstructure:"snapshot_rate"` // 每连接 GET_SNAPSHOT 次/秒
	SnapshotCacheTTL int     `mapstructure:"snapshot_cache_ttl_s"`
	PongWait         int     `mapstructure:"pong_wait_s"`
}

type KafkaConfig struct {
	Enable   bool           `mapstructure:"enable"`
	Brokers  []string       `mapstructure:"brokers"`
	Sasl     SaslConfig     `mapstructure:"sasl"`
	Consumer ConsumerConfig `mapstructure:"consumer"`
}

type SaslConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

type ConsumerConfig struct {
	SessionTimeout    int    `mapstructure:"session_timeout"`
	HeartbeatInterval int    `mapstructure:"heartbeat_interval"`
	RebalanceTimeout  int    `mapstructure:"rebalance_timeout"`
	MaxProcessingTime int    `mapstructure:"max_processing_time"`
	InitialOffset     string `mapstructure:"initial_offset"` // newest | oldest
}

type KafkaNotificationConsumer struct {
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

// CronConfig 定时任务，表达式带秒
type CronConfig struct {
	Resync        string `mapstructure:"resync"`
	Retention     string `mapstructure:"retention"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// ClientConfig 客户端 (标签页) 配置
type ClientConfig struct {
	BaseURL              string `mapstructure:"base_url"`
	WSURL                string `mapstructure:"ws_url"`
	RecipientID          string `mapstructure:"recipient_id"`
	Token                string `mapstructure:"token"`
	CachePath            string `mapstructure:"cache_path"`
	BackoffBaseMs        int    `mapstructure:"backoff_base_ms"`
	BackoffCapMs         int    `mapstructure:"backoff_cap_ms"`
	BootstrapMaxAttempts int    `mapstructure:"bootstrap_max_attempts"`
	CachePollMs          int    `mapstructure:"cache_poll_ms"`
}
