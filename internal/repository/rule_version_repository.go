package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/cvagent/cvagent-rules/internal/model"
)

var ErrVersionNotFound = errors.New("rule version not found")

// RuleVersionRepository 规则版本历史仓储接口
type RuleVersionRepository interface {
	// Append 追加一条版本快照
	Append(ctx context.Context, version *model.RuleVersion) error

	// ListByRuleID 查询规则的全部历史版本，按版本号降序
	ListByRuleID(ctx context.Context, ruleID string) ([]*model.RuleVersion, error)

	// GetByRuleIDAndVersion 查询规则的指定历史版本
	GetByRuleIDAndVersion(ctx context.Context, ruleID string, version int) (*model.RuleVersion, error)

	// GetLatest 查询规则的最新历史版本
	GetLatest(ctx context.Context, ruleID string) (*model.RuleVersion, error)

	// MarkExpired 标记历史版本的失效时间
	MarkExpired(ctx context.Context, ruleID string, version int, expiresAt int64) error

	// CountByRuleID 统计规则的历史版本数
	CountByRuleID(ctx context.Context, ruleID string) (int64, error)

	// DeleteOlderThanKeep 删除规则最新 keep 条之外的历史版本，返回删除数量
	DeleteOlderThanKeep(ctx context.Context, ruleID string, keep int) (int64, error)

	// ListRuleIDs 查询存在历史版本的规则 ID 集合
	ListRuleIDs(ctx context.Context) ([]string, error)
}

// ruleVersionRepository 规则版本历史仓储实现
type ruleVersionRepository struct {
	*Repository
}

// NewRuleVersionRepository 创建规则版本历史仓储
func NewRuleVersionRepository(db *gorm.DB) RuleVersionRepository {
	return &ruleVersionRepository{
		Repository: NewRepository(db),
	}
}

// Append 追加一条版本快照
func (r *ruleVersionRepository) Append(ctx context.Context, version *model.RuleVersion) error {
	if err := r.DB(ctx).Create(version).Error; err != nil {
		return fmt.Errorf("append rule version failed: %w", err)
	}
	return nil
}

// ListByRuleID 查询规则的全部历史版本
func (r *ruleVersionRepository) ListByRuleID(ctx context.Context, ruleID string) ([]*model.RuleVersion, error) {
	var versions []*model.RuleVersion
	err := r.DB(ctx).
		Where("rule_id = ?", ruleID).
		Order("version DESC").
		Find(&versions).Error
	if err != nil {
		return nil, fmt.Errorf("list rule versions failed: %w", err)
	}
	return versions, nil
}

// GetByRuleIDAndVersion 查询规则的指定历史版本
func (r *ruleVersionRepository) GetByRuleIDAndVersion(ctx context.Context, ruleID string, version int) (*model.RuleVersion, error) {
	var v model.RuleVersion
	err := r.DB(ctx).
		Where("rule_id = ? AND version = ?", ruleID, version).
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("get rule version failed: %w", err)
	}
	return &v, nil
}

// GetLatest 查询规则的最新历史版本
func (r *ruleVersionRepository) GetLatest(ctx context.Context, ruleID string) (*model.RuleVersion, error) {
	var v model.RuleVersion
	err := r.DB(ctx).
		Where("rule_id = ?", ruleID).
		Order("version DESC").
		First(&v).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, fmt.Errorf("get latest rule version failed: %w", err)
	}
	return &v, nil
}

// MarkExpired 标记历史版本的失效时间
func (r *ruleVersionRepository) MarkExpired(ctx context.Context, ruleID string, version int, expiresAt int64) error {
	result := r.DB(ctx).Model(&model.RuleVersion{}).
		Where("rule_id = ? AND version = ?", ruleID, version).
		Update("expires_at", expiresAt)
	if result.Error != nil {
		return fmt.Errorf("mark rule version expired failed: %w", result.Error)
	}
	return nil
}

// CountByRuleID 统计规则的历史版本数
func (r *ruleVersionRepository) CountByRuleID(ctx context.Context, ruleID string) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.RuleVersion{}).
		Where("rule_id = ?", ruleID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count rule versions failed: %w", err)
	}
	return count, nil
}

// DeleteOlderThanKeep 删除规则最新 keep 条之外的历史版本
func (r *ruleVersionRepository) DeleteOlderThanKeep(ctx context.Context, ruleID string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}

	// 先确定保留边界的版本号，再按版本号删除，避免子查询的方言差异
	var versions []int
	err := r.DB(ctx).Model(&model.RuleVersion{}).
		Where("rule_id = ?", ruleID).
		Order("version DESC").
		Limit(keep).
		Pluck("version", &versions).Error
	if err != nil {
		return 0, fmt.Errorf("list kept versions failed: %w", err)
	}

	db := r.DB(ctx).Where("rule_id = ?", ruleID)
	if len(versions) > 0 {
		minKept := versions[len(versions)-1]
		db = db.Where("version < ?", minKept)
	}

	result := db.Delete(&model.RuleVersion{})
	if result.Error != nil {
		return 0, fmt.Errorf("delete old rule versions failed: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListRuleIDs 查询存在历史版本的规则 ID 集合
func (r *ruleVersionRepository) ListRuleIDs(ctx context.Context) ([]string, error) {
	var ruleIDs []string
	err := r.DB(ctx).Model(&model.RuleVersion{}).
		Distinct("rule_id").
		Order("rule_id ASC").
		Pluck("rule_id", &ruleIDs).Error
	if err != nil {
		return nil, fmt.Errorf("list versioned rule ids failed: %w", err)
	}
	return ruleIDs, nil
}
