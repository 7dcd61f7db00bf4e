package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/repository"
	pkgerrors "github.com/cvagent/cvagent-rules/pkg/errors"
)

// setupVersionService 创建 sqlite 内存库上的版本历史服务
func setupVersionService(t *testing.T) (VersionService, RuleService, repository.RuleVersionRepository) {
	t.Helper()

	ruleSvc, ruleRepo, versionRepo := setupRuleService(t)
	versionSvc := NewVersionService(ruleRepo, versionRepo, nil, nil)
	return versionSvc, ruleSvc, versionRepo
}

// updateNTimes 连续更新规则 n 次，每次改模式
func updateNTimes(t *testing.T, svc RuleService, rule *model.Rule, n int) {
	t.Helper()
	ctx := context.Background()

	current := rule
	for i := 0; i < n; i++ {
		updated, err := svc.UpdateRule(ctx, &UpdateRuleRequest{
			RuleID:          current.RuleID,
			Name:            current.Name,
			Description:     current.Description,
			Category:        current.Category,
			Pattern:         fmt.Sprintf(`.*revision%d.*`, i),
			Suggestion:      current.Suggestion,
			Priority:        current.Priority,
			IsActive:        current.IsActive,
			TargetSection:   current.TargetSection,
			ExpectedVersion: current.Version,
			ChangeReason:    fmt.Sprintf("revision %d", i),
			Operator:        "admin",
		})
		require.NoError(t, err)
		current = updated
	}
}

func TestVersionService_ListVersions(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 3)

	versions, err := versionSvc.ListVersions(ctx, rule.RuleID)
	require.NoError(t, err)
	require.Len(t, versions, 3)

	// 版本号降序
	assert.Equal(t, 3, versions[0].Version)
	assert.Equal(t, 2, versions[1].Version)
	assert.Equal(t, 1, versions[2].Version)

	// 最新快照之外的都有失效时间
	assert.Zero(t, versions[0].ExpiresAt)
	assert.NotZero(t, versions[1].ExpiresAt)
	assert.NotZero(t, versions[2].ExpiresAt)
}

func TestVersionService_ListVersions_RuleNotFound(t *testing.T) {
	versionSvc, _, _ := setupVersionService(t)

	_, err := versionSvc.ListVersions(context.Background(), "missing")
	assert.ErrorIs(t, err, pkgerrors.ErrRuleNotFound)
}

func TestVersionService_GetVersion(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 1)

	v, err := versionSvc.GetVersion(ctx, rule.RuleID, 1)
	require.NoError(t, err)
	assert.Equal(t, rule.Pattern, v.Pattern)

	_, err = versionSvc.GetVersion(ctx, rule.RuleID, 99)
	assert.ErrorIs(t, err, pkgerrors.ErrVersionNotFound)
}

func TestVersionService_RestoreVersion(t *testing.T) {
	versionSvc, ruleSvc, versionRepo := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 2) // 当前版本 3

	restored, err := versionSvc.RestoreVersion(ctx, rule.RuleID, 1, "admin")
	require.NoError(t, err)

	// 恢复是一次普通更新: 版本继续递增，内容取自目标快照
	assert.Equal(t, 4, restored.Version)
	assert.Equal(t, rule.Pattern, restored.Pattern)
	assert.Equal(t, rule.CreatedBy, restored.CreatedBy)

	// 恢复前的当前态进入历史
	count, err := versionRepo.CountByRuleID(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	latest, err := versionRepo.GetLatest(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)
	assert.Contains(t, latest.ChangeReason, "restore to version 1")
}

func TestVersionService_RestoreVersion_VersionNotFound(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())

	_, err := versionSvc.RestoreVersion(ctx, rule.RuleID, 7, "admin")
	assert.ErrorIs(t, err, pkgerrors.ErrVersionNotFound)
}

func TestVersionService_CompareVersions(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 2)

	cmp, err := versionSvc.CompareVersions(ctx, rule.RuleID, 1, 2)
	require.NoError(t, err)
	assert.True(t, cmp.PatternChanged)
	assert.False(t, cmp.NameChanged)
	assert.False(t, cmp.CategoryChanged)

	_, err = versionSvc.CompareVersions(ctx, rule.RuleID, 1, 42)
	assert.ErrorIs(t, err, pkgerrors.ErrVersionNotFound)
}

func TestVersionService_GetVersionStatistics(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 3)

	stats, err := versionSvc.GetVersionStatistics(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, rule.RuleID, stats.RuleID)
	assert.Equal(t, 3, stats.TotalVersions)
	assert.Equal(t, 4, stats.LatestVersion)
	assert.Equal(t, 3, stats.ModificationCount)
	assert.NotZero(t, stats.LastModifiedAt)
	// 更新间隔近乎为零，平均间隔也应近乎为零
	assert.Less(t, stats.AvgModificationInterval, 1.0)
}

func TestVersionService_GetVersionStatistics_NoHistory(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())

	stats, err := versionSvc.GetVersionStatistics(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalVersions)
	assert.Equal(t, 1, stats.LatestVersion)
	assert.Zero(t, stats.AvgModificationInterval)
}

func TestVersionService_CleanupVersions(t *testing.T) {
	versionSvc, ruleSvc, versionRepo := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 5) // 5 条历史

	deleted, err := versionSvc.CleanupVersions(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	versions, err := versionRepo.ListByRuleID(ctx, rule.RuleID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 5, versions[0].Version)
	assert.Equal(t, 4, versions[1].Version)
}

func TestVersionService_CleanupVersions_NothingToDo(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 1)

	deleted, err := versionSvc.CleanupVersions(ctx, 10)
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestVersionCleanupFlow_DeletedRuleHistoryStillCleaned(t *testing.T) {
	versionSvc, ruleSvc, versionRepo := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 4)
	require.NoError(t, ruleSvc.DeleteRule(ctx, rule.RuleID, "admin"))

	// 规则已删除，历史仍在册，清理照常生效
	deleted, err := versionSvc.CleanupVersions(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	count, err := versionRepo.CountByRuleID(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestRestoreThenListVersions(t *testing.T) {
	versionSvc, ruleSvc, _ := setupVersionService(t)
	ctx := context.Background()

	rule := mustCreate(t, ruleSvc, passiveVoiceRequest())
	updateNTimes(t, ruleSvc, rule, 1)

	restored, err := versionSvc.RestoreVersion(ctx, rule.RuleID, 1, "admin")
	require.NoError(t, err)
	assert.Equal(t, 3, restored.Version)

	versions, err := versionSvc.ListVersions(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Len(t, versions, 2)

	// 恢复后的当前态可以继续正常演进
	_, err = ruleSvc.UpdateRule(ctx, &UpdateRuleRequest{
		RuleID:          restored.RuleID,
		Name:            restored.Name,
		Category:        restored.Category,
		Pattern:         `.*after restore.*`,
		Priority:        restored.Priority,
		IsActive:        restored.IsActive,
		TargetSection:   restored.TargetSection,
		ExpectedVersion: restored.Version,
		Operator:        "admin",
	})
	require.NoError(t, err)

	current, err := ruleSvc.GetRule(ctx, rule.RuleID)
	require.NoError(t, err)
	assert.Equal(t, 4, current.Version)
}
