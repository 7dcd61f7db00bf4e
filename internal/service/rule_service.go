package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cvagent/cvagent-rules/internal/cache"
	"github.com/cvagent/cvagent-rules/internal/metrics"
	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/publisher"
	"github.com/cvagent/cvagent-rules/internal/repository"
	pkgerrors "github.com/cvagent/cvagent-rules/pkg/errors"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// RulePublisher 规则变更事件发布接口
type RulePublisher interface {
	PublishRuleChange(ctx context.Context, eventType string, rule *model.Rule, operator string) error
}

// RuleService 规则管理服务接口
type RuleService interface {
	// CreateRule 创建规则
	// 校验所有约束后以版本 1 入库，不产生历史记录
	CreateRule(ctx context.Context, req *CreateRuleRequest) (*model.Rule, error)

	// GetRule 获取单个规则
	GetRule(ctx context.Context, ruleID string) (*model.Rule, error)

	// ListRules 获取规则列表 (分页，优先级降序)
	ListRules(ctx context.Context, page *repository.Pagination) ([]*model.Rule, error)

	// ListActiveRules 获取全部激活规则
	ListActiveRules(ctx context.Context) ([]*model.Rule, error)

	// ListRulesByCategory 按类别获取激活规则
	ListRulesByCategory(ctx context.Context, category model.RuleCategory) ([]*model.Rule, error)

	// SearchRules 按关键字搜索规则
	SearchRules(ctx context.Context, keyword string) ([]*model.Rule, error)

	// ListCategories 获取当前存在规则的类别集合
	ListCategories(ctx context.Context) ([]model.RuleCategory, error)

	// UpdateRule 更新规则 (乐观并发)
	// 校验通过后在单个事务内: 写入更新前状态的历史快照，条件替换并递增版本。
	// 版本不匹配返回冲突错误且不产生任何写入
	UpdateRule(ctx context.Context, req *UpdateRuleRequest) (*model.Rule, error)

	// ToggleRule 切换规则激活状态
	// 运维开关，不递增版本号，不产生历史记录
	ToggleRule(ctx context.Context, ruleID string, active bool, operator string) (*model.Rule, error)

	// DeleteRule 删除规则 (历史记录保留)
	DeleteRule(ctx context.Context, ruleID string, operator string) error

	// GetStatistics 获取规则统计
	GetStatistics(ctx context.Context) (*model.RuleStatistics, error)
}

// CreateRuleRequest 创建规则请求
type CreateRuleRequest struct {
	Name          string
	Description   string
	Category      model.RuleCategory
	Pattern       string
	Suggestion    string
	Priority      int
	IsActive      bool
	TargetSection model.TargetSection
	CreatedBy     string
}

// UpdateRuleRequest 更新规则请求
type UpdateRuleRequest struct {
	RuleID        string
	Name          string
	Description   string
	Category      model.RuleCategory
	Pattern       string
	Suggestion    string
	Priority      int
	IsActive      bool
	TargetSection model.TargetSection
	// ExpectedVersion 调用方读到的版本号，0 表示在事务内以当前版本为准
	ExpectedVersion int
	ChangeReason    string
	Operator        string
}

// ruleService 规则管理服务实现
type ruleService struct {
	ruleRepo    repository.RuleRepository
	versionRepo repository.RuleVersionRepository
	ruleCache   cache.RuleCache
	pub         RulePublisher
}

// NewRuleService 创建规则服务
// ruleCache 和 pub 可为 nil (Redis/Kafka 未启用)
func NewRuleService(
	ruleRepo repository.RuleRepository,
	versionRepo repository.RuleVersionRepository,
	ruleCache cache.RuleCache,
	pub RulePublisher,
) RuleService {
	return &ruleService{
		ruleRepo:    ruleRepo,
		versionRepo: versionRepo,
		ruleCache:   ruleCache,
		pub:         pub,
	}
}

// CreateRule 创建规则
func (s *ruleService) CreateRule(ctx context.Context, req *CreateRuleRequest) (*model.Rule, error) {
	now := time.Now().UnixMilli()

	rule := &model.Rule{
		RuleID:        uuid.NewString(),
		Name:          req.Name,
		Description:   req.Description,
		Category:      req.Category,
		Pattern:       req.Pattern,
		Suggestion:    req.Suggestion,
		Priority:      req.Priority,
		IsActive:      req.IsActive,
		TargetSection: req.TargetSection,
		Version:       1,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	// 校验收集全部违规项后一次性返回
	if violations := rule.Validate(); len(violations) > 0 {
		metrics.RuleMutationsTotal.WithLabelValues("create", "invalid").Inc()
		return nil, pkgerrors.ErrValidation.WithViolations(violations)
	}

	if err := s.ruleRepo.Create(ctx, rule); err != nil {
		if errors.Is(err, repository.ErrRuleAlreadyExists) {
			metrics.RuleMutationsTotal.WithLabelValues("create", "conflict").Inc()
			return nil, pkgerrors.ErrRuleExists
		}
		metrics.RuleMutationsTotal.WithLabelValues("create", "error").Inc()
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	metrics.RuleMutationsTotal.WithLabelValues("create", "ok").Inc()
	s.invalidateCache(ctx)
	s.publish(ctx, publisher.RuleEventCreated, rule, req.CreatedBy)

	logger.Info("rule created",
		zap.String("rule_id", rule.RuleID),
		zap.String("name", rule.Name),
		zap.String("category", string(rule.Category)),
		zap.String("operator", req.CreatedBy),
	)
	return rule, nil
}

// GetRule 获取单个规则
func (s *ruleService) GetRule(ctx context.Context, ruleID string) (*model.Rule, error) {
	rule, err := s.ruleRepo.GetByRuleID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return nil, pkgerrors.ErrRuleNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	return rule, nil
}

// ListRules 获取规则列表
func (s *ruleService) ListRules(ctx context.Context, page *repository.Pagination) ([]*model.Rule, error) {
	rules, err := s.ruleRepo.List(ctx, page)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	return rules, nil
}

// ListActiveRules 获取全部激活规则
func (s *ruleService) ListActiveRules(ctx context.Context) ([]*model.Rule, error) {
	// 缓存优先，未命中回源并重建
	if s.ruleCache != nil {
		if rules, err := s.ruleCache.GetActiveRules(ctx, model.SectionAll); err == nil {
			metrics.CacheOperationsTotal.WithLabelValues("hit").Inc()
			return rules, nil
		} else if errors.Is(err, cache.ErrCacheMiss) {
			metrics.CacheOperationsTotal.WithLabelValues("miss").Inc()
		} else {
			metrics.CacheOperationsTotal.WithLabelValues("error").Inc()
			logger.Warn("rule cache read failed", zap.Error(err))
		}
	}

	rules, err := s.ruleRepo.ListActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	refreshActiveRulesGauge(rules)

	if s.ruleCache != nil {
		if err := s.ruleCache.SetActiveRules(ctx, model.SectionAll, rules); err != nil {
			logger.Warn("rule cache write failed", zap.Error(err))
		}
	}
	return rules, nil
}

// refreshActiveRulesGauge 回源读取后按类别刷新激活规则数指标
func refreshActiveRulesGauge(rules []*model.Rule) {
	metrics.ActiveRulesGauge.Reset()
	for _, r := range rules {
		metrics.ActiveRulesGauge.WithLabelValues(string(r.Category)).Inc()
	}
}

// ListRulesByCategory 按类别获取激活规则
func (s *ruleService) ListRulesByCategory(ctx context.Context, category model.RuleCategory) ([]*model.Rule, error) {
	if !category.Valid() {
		return nil, pkgerrors.ErrValidation.WithViolations(
			[]string{"category must be one of KEYWORD, FORMAT, CONTENT, STRUCTURE"})
	}

	rules, err := s.ruleRepo.ListByCategory(ctx, category)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	return rules, nil
}

// SearchRules 按关键字搜索规则
func (s *ruleService) SearchRules(ctx context.Context, keyword string) ([]*model.Rule, error) {
	rules, err := s.ruleRepo.Search(ctx, keyword)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	return rules, nil
}

// ListCategories 获取当前存在规则的类别集合
func (s *ruleService) ListCategories(ctx context.Context) ([]model.RuleCategory, error) {
	categories, err := s.ruleRepo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	return categories, nil
}

// UpdateRule 更新规则 (乐观并发)
// 事务内顺序: 读当前态 → 校验 → 条件替换 (版本不匹配则失败) → 写入更新前快照。
// 任何一步失败整个事务回滚，冲突时不产生历史记录
func (s *ruleService) UpdateRule(ctx context.Context, req *UpdateRuleRequest) (*model.Rule, error) {
	var updated *model.Rule

	err := s.ruleRepo.Transaction(ctx, func(txCtx context.Context) error {
		current, err := s.ruleRepo.GetByRuleID(txCtx, req.RuleID)
		if err != nil {
			return err
		}

		expectedVersion := req.ExpectedVersion
		if expectedVersion <= 0 {
			expectedVersion = current.Version
		}

		now := time.Now().UnixMilli()
		next := &model.Rule{
			RuleID:        current.RuleID,
			Name:          req.Name,
			Description:   req.Description,
			Category:      req.Category,
			Pattern:       req.Pattern,
			Suggestion:    req.Suggestion,
			Priority:      req.Priority,
			IsActive:      req.IsActive,
			TargetSection: req.TargetSection,
			Version:       expectedVersion + 1,
			CreatedBy:     current.CreatedBy,
			CreatedAt:     current.CreatedAt,
			UpdatedAt:     now,
		}

		if violations := next.Validate(); len(violations) > 0 {
			return pkgerrors.ErrValidation.WithViolations(violations)
		}

		// 条件替换先行: 版本不匹配时历史快照不会写入
		if err := s.ruleRepo.UpdateConditional(txCtx, next, expectedVersion); err != nil {
			return err
		}

		// 快照记录更新前的状态
		snapshot := model.SnapshotOf(current, req.ChangeReason, req.Operator, now)
		if err := s.versionRepo.Append(txCtx, snapshot); err != nil {
			return err
		}

		// 上一条快照失效时间指向本次变更
		if current.Version > 1 {
			if err := s.versionRepo.MarkExpired(txCtx, current.RuleID, current.Version-1, now); err != nil {
				return err
			}
		}

		updated = next
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRuleNotFound):
			metrics.RuleMutationsTotal.WithLabelValues("update", "not_found").Inc()
			return nil, pkgerrors.ErrRuleNotFound
		case errors.Is(err, repository.ErrVersionMismatch):
			metrics.RuleMutationsTotal.WithLabelValues("update", "conflict").Inc()
			return nil, pkgerrors.ErrVersionConflict
		case pkgerrors.IsValidation(err):
			metrics.RuleMutationsTotal.WithLabelValues("update", "invalid").Inc()
			return nil, err
		default:
			metrics.RuleMutationsTotal.WithLabelValues("update", "error").Inc()
			return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
		}
	}

	metrics.RuleMutationsTotal.WithLabelValues("update", "ok").Inc()
	s.invalidateCache(ctx)
	s.publish(ctx, publisher.RuleEventUpdated, updated, req.Operator)

	logger.Info("rule updated",
		zap.String("rule_id", updated.RuleID),
		zap.Int("version", updated.Version),
		zap.String("operator", req.Operator),
	)
	return updated, nil
}

// ToggleRule 切换规则激活状态
func (s *ruleService) ToggleRule(ctx context.Context, ruleID string, active bool, operator string) (*model.Rule, error) {
	if err := s.ruleRepo.SetActive(ctx, ruleID, active); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			metrics.RuleMutationsTotal.WithLabelValues("toggle", "not_found").Inc()
			return nil, pkgerrors.ErrRuleNotFound
		}
		metrics.RuleMutationsTotal.WithLabelValues("toggle", "error").Inc()
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	rule, err := s.ruleRepo.GetByRuleID(ctx, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	metrics.RuleMutationsTotal.WithLabelValues("toggle", "ok").Inc()
	s.invalidateCache(ctx)
	s.publish(ctx, publisher.RuleEventToggled, rule, operator)

	logger.Info("rule toggled",
		zap.String("rule_id", ruleID),
		zap.Bool("active", active),
		zap.String("operator", operator),
	)
	return rule, nil
}

// DeleteRule 删除规则
func (s *ruleService) DeleteRule(ctx context.Context, ruleID string, operator string) error {
	rule, err := s.ruleRepo.GetByRuleID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			metrics.RuleMutationsTotal.WithLabelValues("delete", "not_found").Inc()
			return pkgerrors.ErrRuleNotFound
		}
		return pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	if err := s.ruleRepo.Delete(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			metrics.RuleMutationsTotal.WithLabelValues("delete", "not_found").Inc()
			return pkgerrors.ErrRuleNotFound
		}
		metrics.RuleMutationsTotal.WithLabelValues("delete", "error").Inc()
		return pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	metrics.RuleMutationsTotal.WithLabelValues("delete", "ok").Inc()
	s.invalidateCache(ctx)
	s.publish(ctx, publisher.RuleEventDeleted, rule, operator)

	logger.Info("rule deleted",
		zap.String("rule_id", ruleID),
		zap.String("operator", operator),
	)
	return nil
}

// GetStatistics 获取规则统计
func (s *ruleService) GetStatistics(ctx context.Context) (*model.RuleStatistics, error) {
	if s.ruleCache != nil {
		if stats, err := s.ruleCache.GetStatistics(ctx); err == nil {
			metrics.CacheOperationsTotal.WithLabelValues("hit").Inc()
			return stats, nil
		}
	}

	total, err := s.ruleRepo.Count(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	active, err := s.ruleRepo.CountActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	byCategory, err := s.ruleRepo.CountByCategory(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	stats := &model.RuleStatistics{
		TotalRules:     total,
		ActiveRules:    active,
		InactiveRules:  total - active,
		CategoryCounts: byCategory,
	}

	if s.ruleCache != nil {
		if err := s.ruleCache.SetStatistics(ctx, stats); err != nil {
			logger.Warn("statistics cache write failed", zap.Error(err))
		}
	}
	return stats, nil
}

// invalidateCache 规则变更后整体失效缓存，失败只记录日志
func (s *ruleService) invalidateCache(ctx context.Context) {
	if s.ruleCache == nil {
		return
	}
	if err := s.ruleCache.Invalidate(ctx); err != nil {
		logger.Warn("rule cache invalidate failed", zap.Error(err))
	}
}

// publish 发布规则变更事件，失败不阻断业务
func (s *ruleService) publish(ctx context.Context, eventType string, rule *model.Rule, operator string) {
	if s.pub == nil {
		return
	}
	if err := s.pub.PublishRuleChange(ctx, eventType, rule, operator); err != nil {
		logger.Warn("rule event publish failed",
			zap.String("rule_id", rule.RuleID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
	}
}
