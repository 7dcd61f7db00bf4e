package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config 服务配置
type Config struct {
	Service  ServiceConfig  `yaml:"service" json:"service"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Redis    RedisConfig    `yaml:"redis" json:"redis"`
	Kafka    KafkaConfig    `yaml:"kafka" json:"kafka"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Engine   EngineConfig   `yaml:"engine" json:"engine"`
	Cleanup  CleanupConfig  `yaml:"cleanup" json:"cleanup"`
	Admin    AdminConfig    `yaml:"admin" json:"admin"`
}

// ServiceConfig 服务配置
type ServiceConfig struct {
	Name     string `yaml:"name" json:"name"`
	HTTPPort int    `yaml:"http_port" json:"http_port"`
	Env      string `yaml:"env" json:"env"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host                   string `yaml:"host" json:"host"`
	Port                   int    `yaml:"port" json:"port"`
	User                   string `yaml:"user" json:"user"`
	Password               string `yaml:"password" json:"password"`
	Database               string `yaml:"database" json:"database"`
	MaxIdleConns           int    `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns           int    `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes" json:"conn_max_lifetime_minutes"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
	PoolSize int    `yaml:"pool_size" json:"pool_size"`
	TTLSec   int    `yaml:"ttl_sec" json:"ttl_sec"` // 规则缓存过期时间 (秒)
}

// KafkaConfig Kafka 配置
type KafkaConfig struct {
	Enabled  bool           `yaml:"enabled" json:"enabled"`
	Brokers  []string       `yaml:"brokers" json:"brokers"`
	Producer ProducerConfig `yaml:"producer" json:"producer"`
}

// ProducerConfig Kafka 生产者配置
type ProducerConfig struct {
	RequiredAcks  int `yaml:"required_acks" json:"required_acks"`   // 0=NoResponse, 1=WaitForLocal, -1=WaitForAll
	MaxRetry      int `yaml:"max_retry" json:"max_retry"`           // 最大重试次数
	FlushMessages int `yaml:"flush_messages" json:"flush_messages"` // 批量发送消息数
	FlushBytes    int `yaml:"flush_bytes" json:"flush_bytes"`       // 批量发送字节数
	FlushFreqMs   int `yaml:"flush_freq_ms" json:"flush_freq_ms"`   // 批量发送间隔 (毫秒)
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// EngineConfig 规则引擎配置
type EngineConfig struct {
	// RuleTimeoutMs 单条规则评估超时 (毫秒)
	RuleTimeoutMs int `yaml:"rule_timeout_ms" json:"rule_timeout_ms"`
	// BatchWorkers 批量评估并发数
	BatchWorkers int `yaml:"batch_workers" json:"batch_workers"`
	// SeedDefaults 启动时规则表为空是否写入内置规则
	SeedDefaults bool `yaml:"seed_defaults" json:"seed_defaults"`
}

// CleanupConfig 版本历史清理配置
type CleanupConfig struct {
	Enabled          bool `yaml:"enabled" json:"enabled"`
	CheckIntervalSec int  `yaml:"check_interval_sec" json:"check_interval_sec"`
	// KeepVersions 每条规则保留的最新历史版本数
	KeepVersions int `yaml:"keep_versions" json:"keep_versions"`
}

// AdminConfig 管理接口配置
type AdminConfig struct {
	// Token 管理接口令牌，空表示不鉴权 (仅限开发环境)
	Token string `yaml:"token" json:"token"`
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := defaultConfig()

	// 尝试从配置文件加载
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	}

	// 从环境变量覆盖
	loadFromEnv(cfg)

	return cfg, nil
}

// defaultConfig 返回默认配置
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "cvagent-rules",
			HTTPPort: 8080,
			Env:      "dev",
		},
		Database: DatabaseConfig{
			Host:                   "localhost",
			Port:                   5432,
			User:                   "postgres",
			Password:               "postgres",
			Database:               "cvagent_rules",
			MaxIdleConns:           10,
			MaxOpenConns:           100,
			ConnMaxLifetimeMinutes: 30,
		},
		Redis: RedisConfig{
			Enabled:  false, // 默认不启用，开发时可以不需要 Redis
			Host:     "localhost",
			Port:     6379,
			Password: "",
			DB:       0,
			PoolSize: 100,
			TTLSec:   300,
		},
		Kafka: KafkaConfig{
			Enabled: false, // 默认不启用 Kafka
			Brokers: []string{"localhost:9092"},
			Producer: ProducerConfig{
				RequiredAcks:  -1, // WaitForAll
				MaxRetry:      3,
				FlushMessages: 100,
				FlushBytes:    1024 * 1024, // 1MB
				FlushFreqMs:   10,
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			RuleTimeoutMs: 100,
			BatchWorkers:  8,
			SeedDefaults:  true,
		},
		Cleanup: CleanupConfig{
			Enabled:          true,
			CheckIntervalSec: 3600, // 1小时
			KeepVersions:     50,
		},
		Admin: AdminConfig{
			Token: "",
		},
	}
}

// loadFromEnv 从环境变量加载配置
func loadFromEnv(cfg *Config) {
	// 服务配置
	if port := os.Getenv("HTTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			cfg.Service.HTTPPort = p
		}
	}
	if env := os.Getenv("SERVICE_ENV"); env != "" {
		cfg.Service.Env = env
	}

	// 数据库配置
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Database.Host = host
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.Database.User = user
	}
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		cfg.Database.Password = password
	}
	if database := os.Getenv("DB_DATABASE"); database != "" {
		cfg.Database.Database = database
	}

	// Redis 配置
	if enabled := os.Getenv("REDIS_ENABLED"); enabled == "true" {
		cfg.Redis.Enabled = true
	}
	if host := os.Getenv("REDIS_HOST"); host != "" {
		cfg.Redis.Host = host
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}

	// Kafka 配置
	if enabled := os.Getenv("KAFKA_ENABLED"); enabled == "true" {
		cfg.Kafka.Enabled = true
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = []string{brokers}
	}

	// 管理令牌
	if token := os.Getenv("ADMIN_TOKEN"); token != "" {
		cfg.Admin.Token = token
	}

	// 日志级别
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
}
