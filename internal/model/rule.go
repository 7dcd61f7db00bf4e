// Package model 定义优化规则服务的数据模型
package model

import (
	"fmt"
	"regexp"
)

// RuleCategory 规则类别
type RuleCategory string

const (
	RuleCategoryKeyword   RuleCategory = "KEYWORD"   // 关键词优化
	RuleCategoryFormat    RuleCategory = "FORMAT"    // 格式优化
	RuleCategoryContent   RuleCategory = "CONTENT"   // 内容优化
	RuleCategoryStructure RuleCategory = "STRUCTURE" // 结构优化
)

// Valid 检查类别是否在封闭集合内
func (c RuleCategory) Valid() bool {
	switch c {
	case RuleCategoryKeyword, RuleCategoryFormat, RuleCategoryContent, RuleCategoryStructure:
		return true
	}
	return false
}

// AllCategories 返回全部规则类别
func AllCategories() []RuleCategory {
	return []RuleCategory{
		RuleCategoryKeyword,
		RuleCategoryFormat,
		RuleCategoryContent,
		RuleCategoryStructure,
	}
}

// TargetSection 规则作用的简历区域
type TargetSection string

const (
	SectionSummary    TargetSection = "SUMMARY"    // 简历摘要
	SectionSkills     TargetSection = "SKILLS"     // 技能
	SectionExperience TargetSection = "EXPERIENCE" // 工作经历
	SectionEducation  TargetSection = "EDUCATION"  // 教育背景
	SectionAll        TargetSection = "ALL"        // 所有区域
)

// Valid 检查区域是否在封闭集合内
func (s TargetSection) Valid() bool {
	switch s {
	case SectionSummary, SectionSkills, SectionExperience, SectionEducation, SectionAll:
		return true
	}
	return false
}

// ContentSections 返回内容区域列表 (不含 ALL)
// 批量应用时按此顺序逐区域处理
func ContentSections() []TargetSection {
	return []TargetSection{SectionSummary, SectionSkills, SectionExperience, SectionEducation}
}

// AllSections 返回全部区域取值 (含 ALL)
func AllSections() []TargetSection {
	return []TargetSection{SectionSummary, SectionSkills, SectionExperience, SectionEducation, SectionAll}
}

// 优先级取值范围，5 为最高
const (
	MinPriority = 1
	MaxPriority = 5
)

// Rule 优化规则
// 对应数据库表 optimization_rules，当前态记录；历史快照见 RuleVersion
type Rule struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"-"`
	RuleID        string        `gorm:"type:varchar(64);uniqueIndex;not null" json:"rule_id"`        // 规则 ID (UUID)
	Name          string        `gorm:"type:varchar(128);not null" json:"name"`                      // 规则名称
	Description   string        `gorm:"type:varchar(512)" json:"description"`                        // 规则描述
	Category      RuleCategory  `gorm:"type:varchar(20);index;not null" json:"category"`             // 规则类别
	Pattern       string        `gorm:"type:varchar(1024);not null" json:"pattern"`                  // 正则表达式模式 (全文匹配)
	Suggestion    string        `gorm:"type:varchar(1024)" json:"suggestion"`                        // 优化建议
	Priority      int           `gorm:"type:integer;not null;default:3" json:"priority"`             // 优先级 1-5，5 最高
	IsActive      bool          `gorm:"not null;default:true" json:"is_active"`                      // 是否激活
	TargetSection TargetSection `gorm:"type:varchar(20);index;not null" json:"target_section"`       // 作用区域
	Version       int           `gorm:"type:integer;not null;default:1" json:"version"`              // 版本号，每次更新 +1
	CreatedBy     string        `gorm:"type:varchar(64)" json:"created_by"`                          // 创建者
	CreatedAt     int64         `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"` // 创建时间 (毫秒)
	UpdatedAt     int64         `gorm:"type:bigint;not null;autoUpdateTime:milli" json:"updated_at"` // 更新时间 (毫秒)
}

// TableName 返回表名
func (Rule) TableName() string {
	return "optimization_rules"
}

// CompilePattern 编译规则模式为全文匹配表达式
// 整段文本必须整体符合模式才算命中，而非包含子串即可
func (r *Rule) CompilePattern() (*regexp.Regexp, error) {
	if r.Pattern == "" {
		return nil, fmt.Errorf("empty pattern")
	}
	return regexp.Compile(`\A(?:` + r.Pattern + `)\z`)
}

// AppliesTo 检查规则是否作用于指定区域
// ALL 规则作用于任何区域
func (r *Rule) AppliesTo(section TargetSection) bool {
	return r.TargetSection == SectionAll || r.TargetSection == section
}

// Validate 校验规则定义，返回全部违反项 (不是只返回第一个)
func (r *Rule) Validate() []string {
	var violations []string

	if r.Name == "" {
		violations = append(violations, "name must not be empty")
	}
	if !r.Category.Valid() {
		violations = append(violations, fmt.Sprintf("category %q is not one of KEYWORD/FORMAT/CONTENT/STRUCTURE", r.Category))
	}
	if r.Priority < MinPriority || r.Priority > MaxPriority {
		violations = append(violations, fmt.Sprintf("priority %d is out of range [%d,%d]", r.Priority, MinPriority, MaxPriority))
	}
	if !r.TargetSection.Valid() {
		violations = append(violations, fmt.Sprintf("target_section %q is not one of SUMMARY/SKILLS/EXPERIENCE/EDUCATION/ALL", r.TargetSection))
	}
	if r.Pattern == "" {
		violations = append(violations, "pattern must not be empty")
	} else if _, err := r.CompilePattern(); err != nil {
		violations = append(violations, fmt.Sprintf("pattern does not compile: %v", err))
	}

	return violations
}
