package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Business  BusinessConfig  `mapstructure:"business"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DatabaseConfig 支持 mysql / postgres / sqlite 三种驱动
// sqlite 仅用于本地开发，Path 为数据库文件路径
type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	Path         string `mapstructure:"path"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	WalletEvent string `mapstructure:"wallet_event"`
}

type BusinessConfig struct {
	LeaderboardTimezone string        `mapstructure:"leaderboard_timezone"`  // 周榜/月榜的自然周、自然月边界所在时区
	LeaderboardCacheTTL time.Duration `mapstructure:"leaderboard_cache_ttl"` // 排行榜窗口缓存时长，0 表示不缓存
	LeaderboardLimit    int           `mapstructure:"leaderboard_limit"`     // 默认返回条数
	LeaderboardMaxLimit int           `mapstructure:"leaderboard_max_limit"` // 最大返回条数
	LockTTL             time.Duration `mapstructure:"lock_ttl"`              // 账户分布式锁过期时间
	LockRetryInterval   time.Duration `mapstructure:"lock_retry_interval"`   // 获取锁重试间隔
	LockMaxRetries      int           `mapstructure:"lock_max_retries"`      // 获取锁最大重试次数
	MaxRetryCount       int           `mapstructure:"max_retry_count"`       // outbox 消息最大重试次数
	ReconcileInterval   time.Duration `mapstructure:"reconcile_interval"`    // 对账任务间隔
	ReconcileBatchSize  int           `mapstructure:"reconcile_batch_size"`  // 每批对账账户数
	OutboxSendInterval  time.Duration `mapstructure:"outbox_send_interval"`  // outbox 扫描间隔
	OutboxBatchSize     int           `mapstructure:"outbox_batch_size"`     // outbox 每批条数
}

type RateLimitConfig struct {
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	Burst             int     `mapstructure:"burst"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Service string `mapstructure:"service"`
	Env     string `mapstructure:"env"`
}

// Location 解析排行榜时区，配置错误时回退到 UTC
func (b BusinessConfig) Location() *time.Location {
	if b.LeaderboardTimezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.LeaderboardTimezone)
	if err != nil {
		log.Printf("[Config] 时区配置无效，使用 UTC: %s, err=%v", b.LeaderboardTimezone, err)
		return time.UTC
	}
	return loc
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("database.driver", "mysql")
	v.SetDefault("database.host", "127.0.0.1")
	v.SetDefault("database.user", "root")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "quizwallet")
	v.SetDefault("database.path", "quizwallet.db")
	v.SetDefault("database.port", 3306)
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.enabled", true)
	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.wallet_event", "wallet_event")

	v.SetDefault("business.leaderboard_timezone", "UTC")
	v.SetDefault("business.leaderboard_cache_ttl", 30*time.Second)
	v.SetDefault("business.leaderboard_limit", 10)
	v.SetDefault("business.leaderboard_max_limit", 100)
	v.SetDefault("business.lock_ttl", 10*time.Second)
	v.SetDefault("business.lock_retry_interval", 50*time.Millisecond)
	v.SetDefault("business.lock_max_retries", 20)
	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.reconcile_interval", 10*time.Minute)
	v.SetDefault("business.reconcile_batch_size", 200)
	v.SetDefault("business.outbox_send_interval", 200*time.Millisecond)
	v.SetDefault("business.outbox_batch_size", 100)

	v.SetDefault("rate_limit.requests_per_minute", 120)
	v.SetDefault("rate_limit.burst", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.service", "quizwallet")
	v.SetDefault("log.env", "")
}

// Load 加载配置文件，环境变量 WALLET_* 可覆盖文件中的配置
// 例如 WALLET_DATABASE_PASSWORD 覆盖 database.password
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WALLET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad 启动阶段使用，加载失败直接退出
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	GlobalConfig = cfg
	return cfg
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %s", c.Database.Driver)
	}
	if c.Business.LeaderboardMaxLimit < c.Business.LeaderboardLimit {
		return fmt.Errorf("leaderboard_max_limit(%d) 不能小于 leaderboard_limit(%d)",
			c.Business.LeaderboardMaxLimit, c.Business.LeaderboardLimit)
	}
	if _, err := time.LoadLocation(c.Business.LeaderboardTimezone); err != nil {
		return fmt.Errorf("无效的排行榜时区 %q: %w", c.Business.LeaderboardTimezone, err)
	}
	return nil
}
