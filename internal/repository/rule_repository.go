package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/cvagent/cvagent-rules/internal/model"
)

var (
	ErrRuleNotFound      = errors.New("rule not found")
	ErrRuleAlreadyExists = errors.New("rule already exists")
	ErrVersionMismatch   = errors.New("rule version mismatch")
)

// RuleRepository 规则仓储接口
type RuleRepository interface {
	// Create 创建规则
	Create(ctx context.Context, rule *model.Rule) error

	// GetByRuleID 根据规则 ID 查询
	GetByRuleID(ctx context.Context, ruleID string) (*model.Rule, error)

	// List 查询全部规则，按优先级降序、规则 ID 升序
	List(ctx context.Context, page *Pagination) ([]*model.Rule, error)

	// ListActive 查询全部激活规则
	ListActive(ctx context.Context) ([]*model.Rule, error)

	// ListActiveBySection 查询作用于指定区域的激活规则 (含 ALL 规则)
	ListActiveBySection(ctx context.Context, section model.TargetSection) ([]*model.Rule, error)

	// ListByCategory 按类别查询激活规则
	ListByCategory(ctx context.Context, category model.RuleCategory) ([]*model.Rule, error)

	// Search 按关键字搜索 (大小写不敏感，匹配名称/描述/建议)
	Search(ctx context.Context, keyword string) ([]*model.Rule, error)

	// ListCategories 查询当前存在规则的类别集合
	ListCategories(ctx context.Context) ([]model.RuleCategory, error)

	// UpdateConditional 条件更新 (乐观并发)
	// 仅当存储中的版本等于 expectedVersion 时写入新字段并将版本 +1，
	// 否则返回 ErrVersionMismatch，不产生任何修改
	UpdateConditional(ctx context.Context, rule *model.Rule, expectedVersion int) error

	// SetActive 切换激活状态，不变更版本号
	SetActive(ctx context.Context, ruleID string, active bool) error

	// Delete 删除规则
	Delete(ctx context.Context, ruleID string) error

	// Count 统计规则总数
	Count(ctx context.Context) (int64, error)

	// CountActive 统计激活规则数
	CountActive(ctx context.Context) (int64, error)

	// CountByCategory 按类别统计规则数
	CountByCategory(ctx context.Context) (map[model.RuleCategory]int64, error)

	// Transaction 在同一数据库事务中执行 fn
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// ruleRepository 规则仓储实现
type ruleRepository struct {
	*Repository
}

// NewRuleRepository 创建规则仓储
func NewRuleRepository(db *gorm.DB) RuleRepository {
	return &ruleRepository{
		Repository: NewRepository(db),
	}
}

// Create 创建规则
func (r *ruleRepository) Create(ctx context.Context, rule *model.Rule) error {
	result := r.DB(ctx).Create(rule)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrRuleAlreadyExists
		}
		return fmt.Errorf("create rule failed: %w", result.Error)
	}
	return nil
}

// GetByRuleID 根据规则 ID 查询
func (r *ruleRepository) GetByRuleID(ctx context.Context, ruleID string) (*model.Rule, error) {
	var rule model.Rule
	result := r.DB(ctx).Where("rule_id = ?", ruleID).First(&rule)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, fmt.Errorf("get rule by rule_id failed: %w", result.Error)
	}
	return &rule, nil
}

// List 查询全部规则
func (r *ruleRepository) List(ctx context.Context, page *Pagination) ([]*model.Rule, error) {
	db := r.DB(ctx).Model(&model.Rule{})

	// 统计总数
	if page != nil {
		var total int64
		if err := db.Count(&total).Error; err != nil {
			return nil, fmt.Errorf("count rules failed: %w", err)
		}
		page.Total = total
	}

	var rules []*model.Rule
	db = db.Order("priority DESC").Order("rule_id ASC")
	if page != nil {
		db = db.Offset(page.Offset()).Limit(page.Limit())
	}

	if err := db.Find(&rules).Error; err != nil {
		return nil, fmt.Errorf("list rules failed: %w", err)
	}
	return rules, nil
}

// ListActive 查询全部激活规则
func (r *ruleRepository) ListActive(ctx context.Context) ([]*model.Rule, error) {
	var rules []*model.Rule
	err := r.DB(ctx).
		Where("is_active = ?", true).
		Order("priority DESC").Order("rule_id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list active rules failed: %w", err)
	}
	return rules, nil
}

// ListActiveBySection 查询作用于指定区域的激活规则
// ALL 规则作用于任何区域，所以始终包含
func (r *ruleRepository) ListActiveBySection(ctx context.Context, section model.TargetSection) ([]*model.Rule, error) {
	db := r.DB(ctx).Where("is_active = ?", true)
	if section != model.SectionAll {
		db = db.Where("target_section IN ?", []model.TargetSection{section, model.SectionAll})
	}

	var rules []*model.Rule
	err := db.Order("priority DESC").Order("rule_id ASC").Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list rules by section failed: %w", err)
	}
	return rules, nil
}

// ListByCategory 按类别查询激活规则
func (r *ruleRepository) ListByCategory(ctx context.Context, category model.RuleCategory) ([]*model.Rule, error) {
	var rules []*model.Rule
	err := r.DB(ctx).
		Where("category = ? AND is_active = ?", category, true).
		Order("priority DESC").Order("rule_id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("list rules by category failed: %w", err)
	}
	return rules, nil
}

// Search 按关键字搜索
func (r *ruleRepository) Search(ctx context.Context, keyword string) ([]*model.Rule, error) {
	pattern := "%" + strings.ToLower(keyword) + "%"

	var rules []*model.Rule
	err := r.DB(ctx).
		Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ? OR LOWER(suggestion) LIKE ?",
			pattern, pattern, pattern).
		Order("priority DESC").Order("rule_id ASC").
		Find(&rules).Error
	if err != nil {
		return nil, fmt.Errorf("search rules failed: %w", err)
	}
	return rules, nil
}

// ListCategories 查询当前存在规则的类别集合
func (r *ruleRepository) ListCategories(ctx context.Context) ([]model.RuleCategory, error) {
	var categories []model.RuleCategory
	err := r.DB(ctx).
		Model(&model.Rule{}).
		Distinct("category").
		Order("category ASC").
		Pluck("category", &categories).Error
	if err != nil {
		return nil, fmt.Errorf("list categories failed: %w", err)
	}
	return categories, nil
}

// UpdateConditional 条件更新 (乐观并发)
func (r *ruleRepository) UpdateConditional(ctx context.Context, rule *model.Rule, expectedVersion int) error {
	result := r.DB(ctx).Model(&model.Rule{}).
		Where("rule_id = ? AND version = ?", rule.RuleID, expectedVersion).
		Updates(map[string]interface{}{
			"name":           rule.Name,
			"description":    rule.Description,
			"category":       rule.Category,
			"pattern":        rule.Pattern,
			"suggestion":     rule.Suggestion,
			"priority":       rule.Priority,
			"is_active":      rule.IsActive,
			"target_section": rule.TargetSection,
			"version":        expectedVersion + 1,
			"updated_at":     rule.UpdatedAt,
		})

	if result.Error != nil {
		return fmt.Errorf("update rule failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionMismatch
	}
	return nil
}

// SetActive 切换激活状态
// 状态切换是运维开关而非内容修改，不变更版本号
func (r *ruleRepository) SetActive(ctx context.Context, ruleID string, active bool) error {
	result := r.DB(ctx).Model(&model.Rule{}).
		Where("rule_id = ?", ruleID).
		Update("is_active", active)

	if result.Error != nil {
		return fmt.Errorf("set rule active failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Delete 删除规则
// 版本历史保留，不随规则删除
func (r *ruleRepository) Delete(ctx context.Context, ruleID string) error {
	result := r.DB(ctx).Where("rule_id = ?", ruleID).Delete(&model.Rule{})
	if result.Error != nil {
		return fmt.Errorf("delete rule failed: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// Count 统计规则总数
func (r *ruleRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.DB(ctx).Model(&model.Rule{}).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count rules failed: %w", err)
	}
	return count, nil
}

// CountActive 统计激活规则数
func (r *ruleRepository) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB(ctx).Model(&model.Rule{}).Where("is_active = ?", true).Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count active rules failed: %w", err)
	}
	return count, nil
}

// CountByCategory 按类别统计规则数
func (r *ruleRepository) CountByCategory(ctx context.Context) (map[model.RuleCategory]int64, error) {
	type row struct {
		Category model.RuleCategory
		Count    int64
	}

	var rows []row
	err := r.DB(ctx).
		Model(&model.Rule{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count rules by category failed: %w", err)
	}

	counts := make(map[model.RuleCategory]int64, len(rows))
	for _, r := range rows {
		counts[r.Category] = r.Count
	}
	return counts, nil
}
