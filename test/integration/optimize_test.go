package integration

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/service"
)

// TestOptimizeFlow 规则评估端到端测试
// 场景: 建规则 -> 单规则评估 -> 区域评估 -> 批量评估
func TestOptimizeFlow(t *testing.T) {
	suite := NewTestSuite(t)
	defer suite.Cleanup()

	passive := suite.CreateRule(passiveVoiceRequest())

	buzzword := suite.CreateRule(&service.CreateRuleRequest{
		Name:          "BuzzwordOverload",
		Category:      model.RuleCategoryKeyword,
		Pattern:       `.*(?:synergy|rockstar|ninja).*`,
		Suggestion:    "replace buzzwords with concrete skills",
		Priority:      3,
		IsActive:      true,
		TargetSection: model.SectionSkills,
		CreatedBy:     "system",
	})

	global := suite.CreateRule(&service.CreateRuleRequest{
		Name:          "MatchesAnything",
		Category:      model.RuleCategoryStructure,
		Pattern:       `(?s).*`,
		Suggestion:    "general advice",
		Priority:      5,
		IsActive:      true,
		TargetSection: model.SectionAll,
		CreatedBy:     "system",
	})

	// ========== 单规则评估 ==========
	t.Run("ApplySingleRule", func(t *testing.T) {
		w := suite.DoRequest(http.MethodPost, "/api/v1/optimize/rule", map[string]interface{}{
			"rule_id": passive.RuleID,
			"text":    "The project was completed on time",
		}, false)
		suite.RequireStatus(w, http.StatusOK)

		var result model.OptimizationResult
		suite.DecodeData(w, &result)
		assert.True(t, result.Matched)
		assert.Equal(t, "rewrite using active voice", result.Suggestion)

		// 全文匹配语义: 不符合整体模式的文本不命中
		w = suite.DoRequest(http.MethodPost, "/api/v1/optimize/rule", map[string]interface{}{
			"rule_id": passive.RuleID,
			"text":    "Delivered the project ahead of schedule",
		}, false)
		suite.RequireStatus(w, http.StatusOK)
		suite.DecodeData(w, &result)
		assert.False(t, result.Matched)
	})

	// ========== 区域评估: 优先级降序 ==========
	t.Run("ApplySection", func(t *testing.T) {
		w := suite.DoRequest(http.MethodPost, "/api/v1/optimize/apply", map[string]interface{}{
			"text":           "certified scrum rockstar ninja",
			"target_section": "SKILLS",
		}, false)
		suite.RequireStatus(w, http.StatusOK)

		var results []model.OptimizationResult
		suite.DecodeData(w, &results)
		// SKILLS 规则 + ALL 规则，按优先级降序
		require.Len(t, results, 2)
		assert.Equal(t, global.RuleID, results[0].RuleID)
		assert.Equal(t, buzzword.RuleID, results[1].RuleID)
		assert.True(t, results[0].Matched)
		assert.True(t, results[1].Matched)
	})

	// ========== 批量评估 ==========
	t.Run("BatchApply", func(t *testing.T) {
		w := suite.DoRequest(http.MethodPost, "/api/v1/optimize/batch", map[string]interface{}{
			"text": "overall resume text",
			"sections": map[string]string{
				"SUMMARY": "The deadline was missed",
				"SKILLS":  "Go, Kubernetes, PostgreSQL",
			},
		}, false)
		suite.RequireStatus(w, http.StatusOK)

		var batch model.BatchOptimizationResult
		suite.DecodeData(w, &batch)

		// GENERAL: 整体文本应用全部激活规则
		// SUMMARY: passive + ALL; SKILLS: buzzword + ALL
		assert.Len(t, batch.SectionResults["GENERAL"], 3)
		assert.Len(t, batch.SectionResults["SUMMARY"], 2)
		assert.Len(t, batch.SectionResults["SKILLS"], 2)

		assert.Equal(t, 7, batch.TotalRules)
		// 命中: GENERAL 的 ALL、SUMMARY 的两条、SKILLS 的 ALL (buzzword 未命中)
		assert.Equal(t, 4, batch.MatchedRules)
		assert.InDelta(t, 4.0/7.0, batch.Score, 0.001)
		assert.NotZero(t, batch.ProcessedAt)
	})

	// ========== 停用规则立即从评估中消失 ==========
	t.Run("ToggledRuleExcluded", func(t *testing.T) {
		_, err := suite.ruleSvc.ToggleRule(suite.ctx, global.RuleID, false, "ops")
		require.NoError(t, err)

		w := suite.DoRequest(http.MethodPost, "/api/v1/optimize/apply", map[string]interface{}{
			"text":           "anything",
			"target_section": "SKILLS",
		}, false)
		suite.RequireStatus(w, http.StatusOK)

		var results []model.OptimizationResult
		suite.DecodeData(w, &results)
		require.Len(t, results, 1)
		assert.Equal(t, buzzword.RuleID, results[0].RuleID)
	})
}

// TestOptimizeValidation 评估接口入参校验
func TestOptimizeValidation(t *testing.T) {
	suite := NewTestSuite(t)
	defer suite.Cleanup()

	w := suite.DoRequest(http.MethodPost, "/api/v1/optimize/rule", map[string]interface{}{
		"rule_id": "missing",
		"text":    "some text",
	}, false)
	suite.RequireStatus(w, http.StatusNotFound)

	w = suite.DoRequest(http.MethodPost, "/api/v1/optimize/apply", map[string]interface{}{
		"text":           "text",
		"target_section": "HEADER",
	}, false)
	suite.RequireStatus(w, http.StatusBadRequest)

	w = suite.DoRequest(http.MethodPost, "/api/v1/optimize/batch", map[string]interface{}{}, false)
	suite.RequireStatus(w, http.StatusBadRequest)
}
