package model

// RuleVersion 规则版本历史
// 更新前的完整字段快照，只追加写入；规则被删除后历史仍可追溯
type RuleVersion struct {
	ID            int64         `gorm:"primaryKey;autoIncrement" json:"-"`
	RuleID        string        `gorm:"type:varchar(64);index:idx_rule_version,unique;not null" json:"rule_id"`
	Version       int           `gorm:"type:integer;index:idx_rule_version,unique;not null" json:"version"`
	RuleName      string        `gorm:"type:varchar(128);not null" json:"rule_name"`
	Description   string        `gorm:"type:varchar(512)" json:"description"`
	Category      RuleCategory  `gorm:"type:varchar(20);not null" json:"category"`
	Pattern       string        `gorm:"type:varchar(1024);not null" json:"pattern"`
	Suggestion    string        `gorm:"type:varchar(1024)" json:"suggestion"`
	Priority      int           `gorm:"type:integer;not null" json:"priority"`
	IsActive      bool          `gorm:"not null" json:"is_active"`
	TargetSection TargetSection `gorm:"type:varchar(20);not null" json:"target_section"`
	ChangeReason  string        `gorm:"type:varchar(500)" json:"change_reason"`
	ChangedBy     string        `gorm:"type:varchar(64);not null" json:"changed_by"`
	EffectiveAt   int64         `gorm:"type:bigint;not null" json:"effective_at"`                    // 快照生效时间 (= 更新时间，毫秒)
	ExpiresAt     int64         `gorm:"type:bigint" json:"expires_at"`                               // 被更新的版本追加时回填；0 表示仍是最新历史
	CreatedAt     int64         `gorm:"type:bigint;not null;autoCreateTime:milli" json:"created_at"` // 创建时间 (毫秒)
}

// TableName 返回表名
func (RuleVersion) TableName() string {
	return "optimization_rule_versions"
}

// SnapshotOf 从当前规则生成版本快照
// 记录的是更新前的状态，version 取规则当前版本号
// changeReason/changedBy 缺省时分别记为 "unspecified"/"system"
func SnapshotOf(rule *Rule, changeReason, changedBy string, effectiveAt int64) *RuleVersion {
	if changeReason == "" {
		changeReason = "unspecified"
	}
	if changedBy == "" {
		changedBy = "system"
	}
	return &RuleVersion{
		RuleID:        rule.RuleID,
		Version:       rule.Version,
		RuleName:      rule.Name,
		Description:   rule.Description,
		Category:      rule.Category,
		Pattern:       rule.Pattern,
		Suggestion:    rule.Suggestion,
		Priority:      rule.Priority,
		IsActive:      rule.IsActive,
		TargetSection: rule.TargetSection,
		ChangeReason:  changeReason,
		ChangedBy:     changedBy,
		EffectiveAt:   effectiveAt,
	}
}

// ToRule 将历史快照还原为规则当前态 (恢复时使用)
// 版本号和审计字段由调用方填写
func (v *RuleVersion) ToRule() *Rule {
	return &Rule{
		RuleID:        v.RuleID,
		Name:          v.RuleName,
		Description:   v.Description,
		Category:      v.Category,
		Pattern:       v.Pattern,
		Suggestion:    v.Suggestion,
		Priority:      v.Priority,
		IsActive:      v.IsActive,
		TargetSection: v.TargetSection,
	}
}

// CompareVersions 逐字段比较两个历史版本
func CompareVersions(v1, v2 *RuleVersion) *VersionComparison {
	return &VersionComparison{
		RuleID:               v1.RuleID,
		Version1:             v1.Version,
		Version2:             v2.Version,
		NameChanged:          v1.RuleName != v2.RuleName,
		PatternChanged:       v1.Pattern != v2.Pattern,
		SuggestionChanged:    v1.Suggestion != v2.Suggestion,
		DescriptionChanged:   v1.Description != v2.Description,
		CategoryChanged:      v1.Category != v2.Category,
		PriorityChanged:      v1.Priority != v2.Priority,
		TargetSectionChanged: v1.TargetSection != v2.TargetSection,
		ActiveChanged:        v1.IsActive != v2.IsActive,
	}
}
