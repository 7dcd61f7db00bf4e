package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// defaultRules 内置规则，规则表为空时写入
// 模式均为全文匹配语义: 整个输入符合模式即命中
var defaultRules = []CreateRuleRequest{
	{
		Name:          "PassiveVoice",
		Description:   "Summary uses passive voice instead of active statements",
		Category:      model.RuleCategoryContent,
		Pattern:       `.*\bwas\b.*`,
		Suggestion:    "Rewrite in active voice, e.g. \"Led the migration\" instead of \"The migration was led by me\"",
		Priority:      4,
		IsActive:      true,
		TargetSection: model.SectionSummary,
	},
	{
		Name:          "FirstPersonPronoun",
		Description:   "Resume text contains first-person pronouns",
		Category:      model.RuleCategoryContent,
		Pattern:       `.*\b(I|me|my|mine)\b.*`,
		Suggestion:    "Drop first-person pronouns; start bullet points with action verbs",
		Priority:      3,
		IsActive:      true,
		TargetSection: model.SectionAll,
	},
	{
		Name:          "WeakActionVerb",
		Description:   "Experience bullet starts with a weak verb",
		Category:      model.RuleCategoryContent,
		Pattern:       `(?i)\s*(helped|worked on|assisted|participated in)\b.*`,
		Suggestion:    "Lead with a strong action verb such as \"Built\", \"Delivered\", \"Optimized\"",
		Priority:      4,
		IsActive:      true,
		TargetSection: model.SectionExperience,
	},
	{
		Name:          "MissingMetrics",
		Description:   "Experience bullet has no quantified impact",
		Category:      model.RuleCategoryContent,
		Pattern:       `[^0-9%]*`,
		Suggestion:    "Quantify impact with numbers or percentages, e.g. \"reduced latency by 40%\"",
		Priority:      5,
		IsActive:      true,
		TargetSection: model.SectionExperience,
	},
	{
		Name:          "BuzzwordOverload",
		Description:   "Skills section lists vague buzzwords",
		Category:      model.RuleCategoryKeyword,
		Pattern:       `(?i).*\b(synergy|rockstar|ninja|guru|go-getter)\b.*`,
		Suggestion:    "Replace buzzwords with concrete technologies and proficiencies",
		Priority:      3,
		IsActive:      true,
		TargetSection: model.SectionSkills,
	},
	{
		Name:          "AllCapsShouting",
		Description:   "Text is written entirely in capital letters",
		Category:      model.RuleCategoryFormat,
		Pattern:       `[^a-z]*[A-Z]{4,}[^a-z]*`,
		Suggestion:    "Use sentence case; reserve capitals for acronyms",
		Priority:      2,
		IsActive:      true,
		TargetSection: model.SectionAll,
	},
	{
		Name:          "OverlongSummary",
		Description:   "Summary exceeds roughly four sentences",
		Category:      model.RuleCategoryStructure,
		Pattern:       `(?s)([^.!?]*[.!?]){5,}.*`,
		Suggestion:    "Keep the summary to three or four sentences focused on your strongest qualifications",
		Priority:      3,
		IsActive:      true,
		TargetSection: model.SectionSummary,
	},
	{
		Name:          "MissingEducationDates",
		Description:   "Education entry lacks a graduation year",
		Category:      model.RuleCategoryStructure,
		Pattern:       `(?s)[^0-9]*`,
		Suggestion:    "Include the graduation year for each degree",
		Priority:      2,
		IsActive:      true,
		TargetSection: model.SectionEducation,
	},
}

// RuleInitializer 内置规则初始化
type RuleInitializer struct {
	ruleService RuleService
	ruleRepo    RuleCounter
}

// RuleCounter 规则计数接口
type RuleCounter interface {
	Count(ctx context.Context) (int64, error)
}

// NewRuleInitializer 创建内置规则初始化器
func NewRuleInitializer(ruleService RuleService, ruleRepo RuleCounter) *RuleInitializer {
	return &RuleInitializer{
		ruleService: ruleService,
		ruleRepo:    ruleRepo,
	}
}

// SeedIfEmpty 规则表为空时写入内置规则
// 已有规则时不做任何修改，避免覆盖运营配置
func (i *RuleInitializer) SeedIfEmpty(ctx context.Context) error {
	count, err := i.ruleRepo.Count(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		logger.Info("rule seeding skipped", zap.Int64("existing_rules", count))
		return nil
	}

	seeded := 0
	for idx := range defaultRules {
		req := defaultRules[idx]
		req.CreatedBy = "system"
		if _, err := i.ruleService.CreateRule(ctx, &req); err != nil {
			logger.Error("seed default rule failed",
				zap.String("name", req.Name),
				zap.Error(err),
			)
			continue
		}
		seeded++
	}

	logger.Info("default rules seeded", zap.Int("count", seeded))
	return nil
}
