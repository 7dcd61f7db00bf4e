package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cvagent/cvagent-rules/internal/cache"
	"github.com/cvagent/cvagent-rules/internal/config"
	"github.com/cvagent/cvagent-rules/internal/handler"
	"github.com/cvagent/cvagent-rules/internal/kafka"
	"github.com/cvagent/cvagent-rules/internal/publisher"
	"github.com/cvagent/cvagent-rules/internal/repository"
	"github.com/cvagent/cvagent-rules/internal/router"
	"github.com/cvagent/cvagent-rules/internal/service"
	"github.com/cvagent/cvagent-rules/internal/worker"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// App 应用
type App struct {
	cfg         *config.Config
	db          *gorm.DB
	redisClient *redis.Client
	producer    *kafka.Producer
	httpServer  *http.Server
	engine      *gin.Engine

	ruleService    service.RuleService
	versionService service.VersionService
	initializer    *service.RuleInitializer
	cleanupWorker  *worker.VersionCleanupWorker
}

// New 创建应用
// redisClient 和 producer 可为 nil (对应组件未启用)
func New(cfg *config.Config, db *gorm.DB, redisClient *redis.Client, producer *kafka.Producer) *App {
	return &App{
		cfg:         cfg,
		db:          db,
		redisClient: redisClient,
		producer:    producer,
	}
}

// Init 初始化应用
func (a *App) Init() error {
	// 设置 Gin 模式
	if a.cfg.Service.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	a.engine = gin.New()

	// 初始化存储层
	ruleRepo := repository.NewRuleRepository(a.db)
	versionRepo := repository.NewRuleVersionRepository(a.db)

	// 规则缓存 (Redis 未启用时为 nil，服务层直连数据库)
	var ruleCache cache.RuleCache
	if a.redisClient != nil {
		ttl := cache.DefaultRuleTTL
		if a.cfg.Redis.TTLSec > 0 {
			ttl = time.Duration(a.cfg.Redis.TTLSec) * time.Second
		}
		ruleCache = cache.NewRuleCache(a.redisClient, ttl)
	}

	// 规则变更事件发布 (Kafka 未启用时内部生产者为 nil，发布为空操作)
	var kafkaProducer publisher.KafkaProducer
	if a.producer != nil {
		kafkaProducer = a.producer
	}
	pub := publisher.NewRulePublisher(kafkaProducer)

	// 初始化服务层
	a.ruleService = service.NewRuleService(ruleRepo, versionRepo, ruleCache, pub)
	a.versionService = service.NewVersionService(ruleRepo, versionRepo, ruleCache, pub)

	coordinator := service.NewBatchCoordinator(
		time.Duration(a.cfg.Engine.RuleTimeoutMs)*time.Millisecond,
		a.cfg.Engine.BatchWorkers,
	)
	engineService := service.NewEngineService(ruleRepo, a.ruleService, coordinator)

	a.initializer = service.NewRuleInitializer(a.ruleService, ruleRepo)

	// 版本历史清理
	if a.cfg.Cleanup.Enabled {
		a.cleanupWorker = worker.NewVersionCleanupWorker(&worker.VersionCleanupWorkerConfig{
			CheckInterval: time.Duration(a.cfg.Cleanup.CheckIntervalSec) * time.Second,
			KeepVersions:  a.cfg.Cleanup.KeepVersions,
		}, a.versionService)
	}

	// 初始化处理器
	handlers := &router.Handlers{
		Rule:     handler.NewRuleHandler(a.ruleService),
		Optimize: handler.NewOptimizeHandler(engineService),
		Version:  handler.NewVersionHandler(a.versionService),
		Health:   handler.NewHealthHandler(a.db, a.cfg.Service.Name),
	}

	// 设置路由
	router.SetupRouter(a.engine, handlers, a.cfg.Admin.Token)

	// 创建 HTTP 服务器
	a.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.cfg.Service.HTTPPort),
		Handler:      a.engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("app initialized",
		zap.Int("port", a.cfg.Service.HTTPPort),
		zap.String("env", a.cfg.Service.Env),
		zap.Bool("redis_enabled", a.redisClient != nil),
		zap.Bool("kafka_enabled", a.producer != nil))

	return nil
}

// Start 启动后台任务并运行 HTTP 服务
func (a *App) Start(ctx context.Context) error {
	if a.cfg.Engine.SeedDefaults {
		if err := a.initializer.SeedIfEmpty(ctx); err != nil {
			return fmt.Errorf("seed default rules: %w", err)
		}
	}

	if a.cleanupWorker != nil {
		a.cleanupWorker.Start(ctx)
	}

	logger.Info("starting HTTP server", zap.String("addr", a.httpServer.Addr))
	return a.httpServer.ListenAndServe()
}

// Shutdown 关闭应用
func (a *App) Shutdown(ctx context.Context) error {
	logger.Info("shutting down HTTP server")

	if a.cleanupWorker != nil {
		a.cleanupWorker.Stop()
	}

	return a.httpServer.Shutdown(ctx)
}

// Engine 获取 Gin 引擎 (用于测试)
func (a *App) Engine() *gin.Engine {
	return a.engine
}
