package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRule() *Rule {
	return &Rule{
		RuleID:        "r-1",
		Name:          "PassiveVoice",
		Category:      RuleCategoryContent,
		Pattern:       `.*\bwas\b.*`,
		Suggestion:    "use active voice",
		Priority:      4,
		IsActive:      true,
		TargetSection: SectionSummary,
		Version:       1,
	}
}

func TestRule_Validate_Valid(t *testing.T) {
	rule := validRule()
	assert.Empty(t, rule.Validate())
}

func TestRule_Validate_CollectsAllViolations(t *testing.T) {
	rule := &Rule{
		Name:          "",
		Category:      "BOGUS",
		Pattern:       "",
		Priority:      9,
		TargetSection: "FOOTER",
	}

	violations := rule.Validate()
	// name, category, priority, target_section, pattern 各一条
	require.Len(t, violations, 5)
}

func TestRule_Validate_BadPattern(t *testing.T) {
	rule := validRule()
	rule.Pattern = "[unclosed"

	violations := rule.Validate()
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "pattern does not compile")
}

func TestRule_Validate_PriorityBounds(t *testing.T) {
	rule := validRule()

	for _, p := range []int{MinPriority, 3, MaxPriority} {
		rule.Priority = p
		assert.Empty(t, rule.Validate(), "priority %d should be valid", p)
	}
	for _, p := range []int{0, -1, 6} {
		rule.Priority = p
		assert.Len(t, rule.Validate(), 1, "priority %d should be rejected", p)
	}
}

func TestRule_CompilePattern_FullTextMatch(t *testing.T) {
	rule := validRule()

	re, err := rule.CompilePattern()
	require.NoError(t, err)

	// 整段文本整体符合模式才算命中
	assert.True(t, re.MatchString("The project was completed on time"))
	assert.False(t, re.MatchString("Led the team to deliver ahead of schedule"))

	// 模式本身不含 .* 包裹时，子串出现不算命中
	sub := &Rule{Pattern: `\bwas\b`}
	re2, err := sub.CompilePattern()
	require.NoError(t, err)
	assert.False(t, re2.MatchString("it was done"))
	assert.True(t, re2.MatchString("was"))
}

func TestRule_CompilePattern_Empty(t *testing.T) {
	rule := &Rule{Pattern: ""}
	_, err := rule.CompilePattern()
	assert.Error(t, err)
}

func TestRule_AppliesTo(t *testing.T) {
	rule := validRule()
	rule.TargetSection = SectionAll
	for _, s := range AllSections() {
		assert.True(t, rule.AppliesTo(s))
	}

	rule.TargetSection = SectionSkills
	assert.True(t, rule.AppliesTo(SectionSkills))
	assert.False(t, rule.AppliesTo(SectionSummary))
	assert.False(t, rule.AppliesTo(SectionAll))
}

func TestRuleCategory_Valid(t *testing.T) {
	for _, c := range AllCategories() {
		assert.True(t, c.Valid())
	}
	assert.False(t, RuleCategory("").Valid())
	assert.False(t, RuleCategory("keyword").Valid())
}

func TestTargetSection_Valid(t *testing.T) {
	for _, s := range AllSections() {
		assert.True(t, s.Valid())
	}
	assert.False(t, TargetSection("HEADER").Valid())
}

func TestBatchOptimizationResult_Score(t *testing.T) {
	batch := NewBatchOptimizationResult(1000)
	batch.AddSectionResults(GeneralSection, []OptimizationResult{
		{RuleID: "r-1", Category: RuleCategoryContent, Matched: true},
		{RuleID: "r-2", Category: RuleCategoryFormat, Matched: true},
		{RuleID: "r-3", Category: RuleCategoryKeyword, Matched: false},
	})
	batch.Finalize()

	assert.Equal(t, 3, batch.TotalRules)
	assert.Equal(t, 2, batch.MatchedRules)
	assert.InDelta(t, 0.667, batch.Score, 0.001)
	assert.Equal(t, 1, batch.CategoryCounts[RuleCategoryContent])
	assert.Equal(t, 1, batch.CategoryCounts[RuleCategoryFormat])
	assert.Equal(t, 0, batch.CategoryCounts[RuleCategoryKeyword])
}

func TestBatchOptimizationResult_EmptyScoreIsZero(t *testing.T) {
	batch := NewBatchOptimizationResult(1000)
	batch.Finalize()
	assert.Equal(t, 0.0, batch.Score)
}

func TestRuleVersion_SnapshotOf(t *testing.T) {
	rule := validRule()
	rule.Version = 3
	rule.CreatedAt = 111
	rule.UpdatedAt = 222

	snap := SnapshotOf(rule, "tighten pattern", "admin", 333)

	assert.Equal(t, rule.RuleID, snap.RuleID)
	assert.Equal(t, 3, snap.Version)
	assert.Equal(t, rule.Name, snap.RuleName)
	assert.Equal(t, rule.Pattern, snap.Pattern)
	assert.Equal(t, "tighten pattern", snap.ChangeReason)
	assert.Equal(t, "admin", snap.ChangedBy)
	assert.Equal(t, int64(333), snap.EffectiveAt)
	assert.Zero(t, snap.ExpiresAt)
}

func TestRuleVersion_SnapshotOf_DefaultsAudit(t *testing.T) {
	snap := SnapshotOf(validRule(), "", "", 100)

	assert.Equal(t, "unspecified", snap.ChangeReason)
	assert.Equal(t, "system", snap.ChangedBy)
}

func TestRuleVersion_ToRule(t *testing.T) {
	rule := validRule()
	snap := SnapshotOf(rule, "", "admin", 100)

	restored := snap.ToRule()
	assert.Equal(t, rule.RuleID, restored.RuleID)
	assert.Equal(t, rule.Name, restored.Name)
	assert.Equal(t, rule.Pattern, restored.Pattern)
	assert.Equal(t, rule.Category, restored.Category)
	assert.Equal(t, rule.TargetSection, restored.TargetSection)
}

func TestCompareVersions(t *testing.T) {
	rule := validRule()
	v1 := SnapshotOf(rule, "", "admin", 100)

	changed := validRule()
	changed.Pattern = `.*\bwere\b.*`
	changed.Priority = 5
	changed.Version = 2
	v2 := SnapshotOf(changed, "", "admin", 200)

	cmp := CompareVersions(v1, v2)
	assert.Equal(t, rule.RuleID, cmp.RuleID)
	assert.True(t, cmp.PatternChanged)
	assert.True(t, cmp.PriorityChanged)
	assert.False(t, cmp.NameChanged)
	assert.False(t, cmp.CategoryChanged)
	assert.False(t, cmp.TargetSectionChanged)
}

func TestRule_Validate_LongButLegalPattern(t *testing.T) {
	rule := validRule()
	rule.Pattern = strings.Repeat("a?", 50) + strings.Repeat("a", 50)
	assert.Empty(t, rule.Validate())
}
