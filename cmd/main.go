package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/cvagent/cvagent-rules/internal/app"
	"github.com/cvagent/cvagent-rules/internal/config"
	"github.com/cvagent/cvagent-rules/internal/kafka"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	if err := logger.Init(&logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		ServiceName: cfg.Service.Name,
	}); err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting service",
		zap.String("service", cfg.Service.Name),
		zap.Int("port", cfg.Service.HTTPPort))

	// 初始化数据库
	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to init database", zap.Error(err))
	}

	// 自动迁移
	if err := app.AutoMigrate(db); err != nil {
		logger.Fatal("failed to auto migrate", zap.Error(err))
	}
	logger.Info("database migrated")

	// 初始化 Redis (可选)
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient, err = initRedis(cfg)
		if err != nil {
			logger.Fatal("failed to init redis", zap.Error(err))
		}
		defer redisClient.Close()
	}

	// 初始化 Kafka 生产者 (可选)
	var producer *kafka.Producer
	if cfg.Kafka.Enabled {
		producer, err = initProducer(cfg)
		if err != nil {
			logger.Fatal("failed to init kafka producer", zap.Error(err))
		}
		defer producer.Close()
	}

	// 创建并初始化应用
	application := app.New(cfg, db, redisClient, producer)
	if err := application.Init(); err != nil {
		logger.Fatal("failed to init application", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 启动服务
	go func() {
		if err := application.Start(ctx); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to run application", zap.Error(err))
		}
	}()

	// 等待终止信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	// 优雅关闭
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		logger.Error("application shutdown error", zap.Error(err))
	}

	logger.Info("service stopped")
}

// initDatabase 初始化数据库连接
func initDatabase(cfg *config.Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
	)

	gormConfig := &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Warn),
		TranslateError: true,
	}

	db, err := gorm.Open(postgres.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeMinutes) * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connected",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
		zap.String("database", cfg.Database.Database))

	return db, nil
}

// initRedis 初始化 Redis 连接
func initRedis(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("redis connected",
		zap.String("host", cfg.Redis.Host),
		zap.Int("port", cfg.Redis.Port))

	return client, nil
}

// initProducer 初始化 Kafka 异步生产者
func initProducer(cfg *config.Config) (*kafka.Producer, error) {
	pcfg := kafka.DefaultProducerConfig(cfg.Kafka.Brokers)
	if cfg.Kafka.Producer.RequiredAcks != 0 {
		pcfg.RequiredAcks = sarama.RequiredAcks(cfg.Kafka.Producer.RequiredAcks)
	}
	if cfg.Kafka.Producer.MaxRetry > 0 {
		pcfg.MaxRetry = cfg.Kafka.Producer.MaxRetry
	}
	if cfg.Kafka.Producer.FlushMessages > 0 {
		pcfg.FlushMessages = cfg.Kafka.Producer.FlushMessages
	}
	if cfg.Kafka.Producer.FlushBytes > 0 {
		pcfg.FlushBytes = cfg.Kafka.Producer.FlushBytes
	}
	if cfg.Kafka.Producer.FlushFreqMs > 0 {
		pcfg.FlushFreq = time.Duration(cfg.Kafka.Producer.FlushFreqMs) * time.Millisecond
	}

	producer, err := kafka.NewProducer(pcfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}

	logger.Info("kafka producer ready", zap.Strings("brokers", cfg.Kafka.Brokers))
	return producer, nil
}
