package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cvagent/cvagent-rules/internal/cache"
	"github.com/cvagent/cvagent-rules/internal/metrics"
	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/publisher"
	"github.com/cvagent/cvagent-rules/internal/repository"
	pkgerrors "github.com/cvagent/cvagent-rules/pkg/errors"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// VersionService 规则版本历史服务接口
type VersionService interface {
	// ListVersions 获取规则的全部历史版本 (版本号降序)
	ListVersions(ctx context.Context, ruleID string) ([]*model.RuleVersion, error)

	// GetVersion 获取规则的指定历史版本
	GetVersion(ctx context.Context, ruleID string, version int) (*model.RuleVersion, error)

	// RestoreVersion 将规则恢复到指定历史版本
	// 恢复是一次普通更新: 当前态写入历史，版本号继续递增
	RestoreVersion(ctx context.Context, ruleID string, version int, operator string) (*model.Rule, error)

	// CompareVersions 比较规则的两个历史版本
	CompareVersions(ctx context.Context, ruleID string, fromVersion, toVersion int) (*model.VersionComparison, error)

	// GetVersionStatistics 获取规则的版本统计
	GetVersionStatistics(ctx context.Context, ruleID string) (*model.VersionStatistics, error)

	// CleanupVersions 清理所有规则的过量历史版本，每条规则保留最新 keep 条
	CleanupVersions(ctx context.Context, keep int) (int64, error)
}

// versionService 规则版本历史服务实现
type versionService struct {
	ruleRepo    repository.RuleRepository
	versionRepo repository.RuleVersionRepository
	ruleCache   cache.RuleCache
	pub         RulePublisher
}

// NewVersionService 创建版本历史服务
func NewVersionService(
	ruleRepo repository.RuleRepository,
	versionRepo repository.RuleVersionRepository,
	ruleCache cache.RuleCache,
	pub RulePublisher,
) VersionService {
	return &versionService{
		ruleRepo:    ruleRepo,
		versionRepo: versionRepo,
		ruleCache:   ruleCache,
		pub:         pub,
	}
}

// ListVersions 获取规则的全部历史版本
func (s *versionService) ListVersions(ctx context.Context, ruleID string) ([]*model.RuleVersion, error) {
	// 规则必须存在，即便它还没有历史
	if _, err := s.ruleRepo.GetByRuleID(ctx, ruleID); err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return nil, pkgerrors.ErrRuleNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	versions, err := s.versionRepo.ListByRuleID(ctx, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	return versions, nil
}

// GetVersion 获取规则的指定历史版本
func (s *versionService) GetVersion(ctx context.Context, ruleID string, version int) (*model.RuleVersion, error) {
	v, err := s.versionRepo.GetByRuleIDAndVersion(ctx, ruleID, version)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return nil, pkgerrors.ErrVersionNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}
	return v, nil
}

// RestoreVersion 将规则恢复到指定历史版本
func (s *versionService) RestoreVersion(ctx context.Context, ruleID string, version int, operator string) (*model.Rule, error) {
	var restored *model.Rule

	err := s.ruleRepo.Transaction(ctx, func(txCtx context.Context) error {
		current, err := s.ruleRepo.GetByRuleID(txCtx, ruleID)
		if err != nil {
			return err
		}

		target, err := s.versionRepo.GetByRuleIDAndVersion(txCtx, ruleID, version)
		if err != nil {
			return err
		}

		now := time.Now().UnixMilli()
		next := target.ToRule()
		next.Version = current.Version + 1
		next.CreatedBy = current.CreatedBy
		next.CreatedAt = current.CreatedAt
		next.UpdatedAt = now

		// 历史快照也要过当前校验，防止恢复出如今已不合法的规则
		if violations := next.Validate(); len(violations) > 0 {
			return pkgerrors.ErrValidation.WithViolations(violations)
		}

		if err := s.ruleRepo.UpdateConditional(txCtx, next, current.Version); err != nil {
			return err
		}

		snapshot := model.SnapshotOf(current, "restore to version "+strconv.Itoa(version), operator, now)
		if err := s.versionRepo.Append(txCtx, snapshot); err != nil {
			return err
		}

		if current.Version > 1 {
			if err := s.versionRepo.MarkExpired(txCtx, current.RuleID, current.Version-1, now); err != nil {
				return err
			}
		}

		restored = next
		return nil
	})

	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRuleNotFound):
			metrics.RuleMutationsTotal.WithLabelValues("restore", "not_found").Inc()
			return nil, pkgerrors.ErrRuleNotFound
		case errors.Is(err, repository.ErrVersionNotFound):
			metrics.RuleMutationsTotal.WithLabelValues("restore", "not_found").Inc()
			return nil, pkgerrors.ErrVersionNotFound
		case errors.Is(err, repository.ErrVersionMismatch):
			metrics.RuleMutationsTotal.WithLabelValues("restore", "conflict").Inc()
			return nil, pkgerrors.ErrVersionConflict
		case pkgerrors.IsValidation(err):
			metrics.RuleMutationsTotal.WithLabelValues("restore", "invalid").Inc()
			return nil, err
		default:
			metrics.RuleMutationsTotal.WithLabelValues("restore", "error").Inc()
			return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
		}
	}

	metrics.RuleMutationsTotal.WithLabelValues("restore", "ok").Inc()
	if s.ruleCache != nil {
		if err := s.ruleCache.Invalidate(ctx); err != nil {
			logger.Warn("rule cache invalidate failed", zap.Error(err))
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishRuleChange(ctx, publisher.RuleEventRestored, restored, operator); err != nil {
			logger.Warn("rule event publish failed", zap.String("rule_id", ruleID), zap.Error(err))
		}
	}

	logger.Info("rule restored",
		zap.String("rule_id", ruleID),
		zap.Int("from_version", version),
		zap.Int("new_version", restored.Version),
		zap.String("operator", operator),
	)
	return restored, nil
}

// CompareVersions 比较规则的两个历史版本
func (s *versionService) CompareVersions(ctx context.Context, ruleID string, fromVersion, toVersion int) (*model.VersionComparison, error) {
	from, err := s.versionRepo.GetByRuleIDAndVersion(ctx, ruleID, fromVersion)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return nil, pkgerrors.ErrVersionNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	to, err := s.versionRepo.GetByRuleIDAndVersion(ctx, ruleID, toVersion)
	if err != nil {
		if errors.Is(err, repository.ErrVersionNotFound) {
			return nil, pkgerrors.ErrVersionNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	return model.CompareVersions(from, to), nil
}

// GetVersionStatistics 获取规则的版本统计
func (s *versionService) GetVersionStatistics(ctx context.Context, ruleID string) (*model.VersionStatistics, error) {
	rule, err := s.ruleRepo.GetByRuleID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return nil, pkgerrors.ErrRuleNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	versions, err := s.versionRepo.ListByRuleID(ctx, ruleID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	stats := &model.VersionStatistics{
		RuleID:            ruleID,
		TotalVersions:     len(versions),
		LatestVersion:     rule.Version,
		ModificationCount: len(versions),
		LastModifiedAt:    rule.UpdatedAt,
	}

	// 平均修改间隔 (天): 最早与最新快照的生效时间差摊到每次修改
	if len(versions) >= 2 {
		first := versions[len(versions)-1].EffectiveAt
		last := versions[0].EffectiveAt
		spanMs := float64(last - first)
		stats.AvgModificationInterval = spanMs / float64(len(versions)-1) / float64(24*time.Hour/time.Millisecond)
	}

	return stats, nil
}

// CleanupVersions 清理所有规则的过量历史版本
func (s *versionService) CleanupVersions(ctx context.Context, keep int) (int64, error) {
	ruleIDs, err := s.versionRepo.ListRuleIDs(ctx)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	var total int64
	for _, ruleID := range ruleIDs {
		deleted, err := s.versionRepo.DeleteOlderThanKeep(ctx, ruleID, keep)
		if err != nil {
			logger.Warn("version cleanup failed for rule",
				zap.String("rule_id", ruleID),
				zap.Error(err),
			)
			continue
		}
		total += deleted
	}

	if total > 0 {
		metrics.VersionsCleanedTotal.Add(float64(total))
		logger.Info("rule versions cleaned",
			zap.Int64("deleted", total),
			zap.Int("keep", keep),
		)
	}
	return total, nil
}
