// Package integration 提供集成测试
//
// 运行方式: go test ./test/integration/... -v -p=1
// 注意: 使用 -p=1 顺序执行测试以避免 SQLite 并发锁冲突
package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/cvagent/cvagent-rules/internal/cache"
	"github.com/cvagent/cvagent-rules/internal/handler"
	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/repository"
	"github.com/cvagent/cvagent-rules/internal/router"
	"github.com/cvagent/cvagent-rules/internal/service"
)

const adminToken = "integration-admin-token"

// TestSuite 集成测试套件
type TestSuite struct {
	t   *testing.T
	ctx context.Context

	// 基础设施
	db      *gorm.DB
	rdb     *redis.Client
	minirdb *miniredis.Miniredis
	engine  *gin.Engine

	// 仓储层
	ruleRepo    repository.RuleRepository
	versionRepo repository.RuleVersionRepository

	// 缓存层
	ruleCache cache.RuleCache

	// 服务层
	ruleSvc    service.RuleService
	versionSvc service.VersionService
	engineSvc  service.EngineService
}

// NewTestSuite 创建测试套件
func NewTestSuite(t *testing.T) *TestSuite {
	t.Helper()

	suite := &TestSuite{
		t:   t,
		ctx: context.Background(),
	}

	// 初始化 miniredis
	suite.minirdb = miniredis.RunT(t)
	suite.rdb = redis.NewClient(&redis.Options{
		Addr: suite.minirdb.Addr(),
	})

	// 初始化 SQLite (in-memory)
	var err error
	suite.db, err = gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	// 自动迁移
	if err := suite.db.AutoMigrate(
		&model.Rule{},
		&model.RuleVersion{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	// 初始化仓储层
	suite.ruleRepo = repository.NewRuleRepository(suite.db)
	suite.versionRepo = repository.NewRuleVersionRepository(suite.db)

	// 初始化缓存层
	suite.ruleCache = cache.NewRuleCache(suite.rdb, time.Minute)

	// 初始化服务层 (无 Kafka)
	suite.ruleSvc = service.NewRuleService(suite.ruleRepo, suite.versionRepo, suite.ruleCache, nil)
	suite.versionSvc = service.NewVersionService(suite.ruleRepo, suite.versionRepo, suite.ruleCache, nil)
	suite.engineSvc = service.NewEngineService(
		suite.ruleRepo,
		suite.ruleSvc,
		service.NewBatchCoordinator(time.Second, 4),
	)

	// HTTP 路由
	gin.SetMode(gin.TestMode)
	suite.engine = gin.New()
	router.SetupRouter(suite.engine, &router.Handlers{
		Rule:     handler.NewRuleHandler(suite.ruleSvc),
		Optimize: handler.NewOptimizeHandler(suite.engineSvc),
		Version:  handler.NewVersionHandler(suite.versionSvc),
		Health:   handler.NewHealthHandler(suite.db, "cvagent-rules-test"),
	}, adminToken)

	return suite
}

// Cleanup 释放测试资源
func (s *TestSuite) Cleanup() {
	s.rdb.Close()
}

// CreateRule 创建一条规则并返回
func (s *TestSuite) CreateRule(req *service.CreateRuleRequest) *model.Rule {
	s.t.Helper()

	rule, err := s.ruleSvc.CreateRule(s.ctx, req)
	if err != nil {
		s.t.Fatalf("failed to create rule: %v", err)
	}
	return rule
}

// DoRequest 执行 HTTP 请求，body 为 nil 时不携带请求体
func (s *TestSuite) DoRequest(method, path string, body interface{}, withToken bool) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			s.t.Fatalf("failed to marshal request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if withToken {
		req.Header.Set("X-Admin-Token", adminToken)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

// DecodeData 解析响应 data 字段到 out
func (s *TestSuite) DecodeData(w *httptest.ResponseRecorder, out interface{}) {
	s.t.Helper()

	var envelope struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		s.t.Fatalf("failed to decode response envelope: %v", err)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			s.t.Fatalf("failed to decode response data: %v", err)
		}
	}
}

// RequireStatus 断言 HTTP 状态码
func (s *TestSuite) RequireStatus(w *httptest.ResponseRecorder, want int) {
	s.t.Helper()
	if w.Code != want {
		s.t.Fatalf("unexpected status: got %d want %d, body: %s", w.Code, want, w.Body.String())
	}
}

// passiveVoiceRequest 常用的测试规则
func passiveVoiceRequest() *service.CreateRuleRequest {
	return &service.CreateRuleRequest{
		Name:          "PassiveVoice",
		Description:   "flag passive voice in the summary",
		Category:      model.RuleCategoryContent,
		Pattern:       `.*\bwas\b.*`,
		Suggestion:    "rewrite using active voice",
		Priority:      4,
		IsActive:      true,
		TargetSection: model.SectionSummary,
		CreatedBy:     "system",
	}
}
