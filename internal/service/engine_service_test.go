package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvagent/cvagent-rules/internal/model"
	pkgerrors "github.com/cvagent/cvagent-rules/pkg/errors"
)

// setupEngine 创建 sqlite 内存库上的评估引擎
func setupEngine(t *testing.T) (EngineService, RuleService) {
	t.Helper()

	ruleSvc, ruleRepo, _ := setupRuleService(t)
	engine := NewEngineService(ruleRepo, ruleSvc, NewBatchCoordinator(time.Second, 4))
	return engine, ruleSvc
}

func mustCreate(t *testing.T, svc RuleService, req *CreateRuleRequest) *model.Rule {
	t.Helper()
	rule, err := svc.CreateRule(context.Background(), req)
	require.NoError(t, err)
	return rule
}

func TestEngineService_ApplyRule(t *testing.T) {
	engine, ruleSvc := setupEngine(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())

	result, err := engine.ApplyRule(ctx, rule.RuleID, "The deadline was missed")
	require.NoError(t, err)
	assert.True(t, result.Matched)
	assert.Equal(t, "rewrite using active voice", result.Suggestion)

	result, err = engine.ApplyRule(ctx, rule.RuleID, "Delivered the project ahead of schedule")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestEngineService_ApplyRule_EmptyText(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.ApplyRule(context.Background(), "any", "   ")
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyContent)
}

func TestEngineService_ApplyRule_NotFound(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.ApplyRule(context.Background(), "missing", "some text")
	assert.ErrorIs(t, err, pkgerrors.ErrRuleNotFound)
}

func TestEngineService_ApplyRule_InactiveNeverMatches(t *testing.T) {
	engine, ruleSvc := setupEngine(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	_, err := ruleSvc.ToggleRule(ctx, rule.RuleID, false, "ops")
	require.NoError(t, err)

	result, err := engine.ApplyRule(ctx, rule.RuleID, "The deadline was missed")
	require.NoError(t, err)
	assert.False(t, result.Matched)
}

func TestEngineService_ApplyAllRules_SectionFilterAndOrdering(t *testing.T) {
	engine, ruleSvc := setupEngine(t)
	ctx := context.Background()

	summary := passiveVoiceRequest()
	summary.Name = "SummaryOnly"
	summary.Priority = 2
	summary.Pattern = `.*`
	mustCreate(t, ruleSvc, summary)

	global := passiveVoiceRequest()
	global.Name = "Global"
	global.Priority = 5
	global.Pattern = `.*`
	global.TargetSection = model.SectionAll
	mustCreate(t, ruleSvc, global)

	skills := passiveVoiceRequest()
	skills.Name = "SkillsOnly"
	skills.TargetSection = model.SectionSkills
	mustCreate(t, ruleSvc, skills)

	results, err := engine.ApplyAllRules(ctx, "any summary text", model.SectionSummary)
	require.NoError(t, err)

	// SUMMARY 区域规则加 ALL 规则，按优先级降序
	require.Len(t, results, 2)
	assert.Equal(t, "Global", results[0].RuleName)
	assert.Equal(t, "SummaryOnly", results[1].RuleName)
}

func TestEngineService_ApplyAllRules_InvalidSection(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.ApplyAllRules(context.Background(), "text", "HEADER")
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
}

func TestEngineService_BatchApplyRules_ScoreAndGrouping(t *testing.T) {
	engine, ruleSvc := setupEngine(t)
	ctx := context.Background()

	// 作用区域 ALL: 整体文本和每个区域都会评估
	matchAll := passiveVoiceRequest()
	matchAll.Name = "MatchesEverything"
	matchAll.Pattern = `(?s).*`
	matchAll.TargetSection = model.SectionAll
	mustCreate(t, ruleSvc, matchAll)

	skillsHit := passiveVoiceRequest()
	skillsHit.Name = "SkillsHit"
	skillsHit.Pattern = `.*Go.*`
	skillsHit.TargetSection = model.SectionSkills
	mustCreate(t, ruleSvc, skillsHit)

	skillsMiss := passiveVoiceRequest()
	skillsMiss.Name = "SkillsMiss"
	skillsMiss.Pattern = `.*COBOL.*`
	skillsMiss.TargetSection = model.SectionSkills
	mustCreate(t, ruleSvc, skillsMiss)

	batch, err := engine.BatchApplyRules(ctx, "full resume text", map[model.TargetSection]string{
		model.SectionSkills: "Go, Python, SQL",
	})
	require.NoError(t, err)

	// GENERAL: 整体文本应用全部激活规则；SKILLS: ALL 规则 + 2 条 SKILLS 规则
	require.Len(t, batch.SectionResults[model.GeneralSection], 3)
	require.Len(t, batch.SectionResults[string(model.SectionSkills)], 3)

	// GENERAL 只有 ALL 规则命中，SKILLS 命中 ALL 规则和 SkillsHit
	assert.Equal(t, 6, batch.TotalRules)
	assert.Equal(t, 3, batch.MatchedRules)
	assert.InDelta(t, 0.5, batch.Score, 0.001)
	assert.NotZero(t, batch.ProcessedAt)
}

func TestEngineService_BatchApplyRules_GeneralMatchesApplyAllSemantics(t *testing.T) {
	engine, ruleSvc := setupEngine(t)
	ctx := context.Background()

	sectionRule := passiveVoiceRequest()
	sectionRule.Name = "SummaryOnly"
	sectionRule.TargetSection = model.SectionSummary
	mustCreate(t, ruleSvc, sectionRule)

	text := "The deadline was missed"

	all, err := engine.ApplyAllRules(ctx, text, model.SectionAll)
	require.NoError(t, err)
	require.NotEmpty(t, all)

	batch, err := engine.BatchApplyRules(ctx, text, nil)
	require.NoError(t, err)

	// GENERAL 分组与 ApplyAllRules(ALL) 评估同一批规则，顺序一致
	general := batch.SectionResults[model.GeneralSection]
	require.Len(t, general, len(all))
	for i := range all {
		assert.Equal(t, all[i].RuleID, general[i].RuleID)
		assert.Equal(t, all[i].Matched, general[i].Matched)
	}
}

func TestEngineService_BatchApplyRules_SkipsBlankSections(t *testing.T) {
	engine, ruleSvc := setupEngine(t)
	ctx := context.Background()

	rule := passiveVoiceRequest()
	rule.Pattern = `(?s).*`
	rule.TargetSection = model.SectionAll
	mustCreate(t, ruleSvc, rule)

	batch, err := engine.BatchApplyRules(ctx, "overall text", map[model.TargetSection]string{
		model.SectionSkills:  "   ",
		model.SectionSummary: "",
	})
	require.NoError(t, err)

	// 空白区域不评估，只有 GENERAL 分组
	require.Len(t, batch.SectionResults, 1)
	assert.Contains(t, batch.SectionResults, model.GeneralSection)
}

func TestEngineService_BatchApplyRules_EmptyInput(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.BatchApplyRules(context.Background(), "  ", nil)
	assert.ErrorIs(t, err, pkgerrors.ErrEmptyContent)
}

func TestEngineService_BatchApplyRules_RejectsAllAsSectionKey(t *testing.T) {
	engine, _ := setupEngine(t)

	_, err := engine.BatchApplyRules(context.Background(), "text", map[model.TargetSection]string{
		model.SectionAll: "text",
	})
	assert.ErrorIs(t, err, pkgerrors.ErrValidation)
}

func TestEngineService_BatchApplyRules_NoRulesScoreZero(t *testing.T) {
	engine, _ := setupEngine(t)

	batch, err := engine.BatchApplyRules(context.Background(), "text", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, batch.TotalRules)
	assert.Equal(t, 0.0, batch.Score)
}
