package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/cvagent/cvagent-rules/internal/metrics"
	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/internal/repository"
	pkgerrors "github.com/cvagent/cvagent-rules/pkg/errors"
)

// EngineService 规则评估引擎接口
type EngineService interface {
	// ApplyRule 将单条规则应用于文本
	// 模式按全文匹配语义评估: 整个输入必须符合模式，而不是包含匹配子串。
	// 规则非激活时始终返回 matched=false
	ApplyRule(ctx context.Context, ruleID string, text string) (*model.OptimizationResult, error)

	// ApplyAllRules 将指定区域的全部激活规则应用于文本
	// 结果按优先级降序、规则 ID 升序返回，与评估并发顺序无关
	ApplyAllRules(ctx context.Context, text string, section model.TargetSection) ([]model.OptimizationResult, error)

	// BatchApplyRules 批量应用
	// text 作为整体按 GENERAL 区域评估，与 ApplyAllRules(ALL) 一致应用全部激活规则；
	// sections 中预切分的区域各自独立评估，聚合为 BatchOptimizationResult
	BatchApplyRules(ctx context.Context, text string, sections map[model.TargetSection]string) (*model.BatchOptimizationResult, error)
}

// engineService 规则评估引擎实现
type engineService struct {
	ruleRepo    repository.RuleRepository
	ruleService RuleService
	coordinator *BatchCoordinator
}

// NewEngineService 创建评估引擎
func NewEngineService(ruleRepo repository.RuleRepository, ruleService RuleService, coordinator *BatchCoordinator) EngineService {
	if coordinator == nil {
		coordinator = NewBatchCoordinator(DefaultRuleTimeout, DefaultBatchWorkers)
	}
	return &engineService{
		ruleRepo:    ruleRepo,
		ruleService: ruleService,
		coordinator: coordinator,
	}
}

// ApplyRule 将单条规则应用于文本
func (s *engineService) ApplyRule(ctx context.Context, ruleID string, text string) (*model.OptimizationResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.ErrEmptyContent
	}

	rule, err := s.ruleRepo.GetByRuleID(ctx, ruleID)
	if err != nil {
		if errors.Is(err, repository.ErrRuleNotFound) {
			return nil, pkgerrors.ErrRuleNotFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	start := time.Now()
	result := s.coordinator.evaluateOne(ctx, rule, text)
	metrics.RuleEvaluationLatency.WithLabelValues("apply").Observe(time.Since(start).Seconds())

	return &result, nil
}

// ApplyAllRules 将指定区域的全部激活规则应用于文本
func (s *engineService) ApplyAllRules(ctx context.Context, text string, section model.TargetSection) ([]model.OptimizationResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, pkgerrors.ErrEmptyContent
	}
	if !section.Valid() {
		return nil, pkgerrors.ErrValidation.WithViolations(
			[]string{"target_section must be one of SUMMARY, SKILLS, EXPERIENCE, EDUCATION, ALL"})
	}

	rules, err := s.ruleRepo.ListActiveBySection(ctx, section)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.ErrInternal, err)
	}

	start := time.Now()
	results := s.coordinator.Evaluate(ctx, rules, text)
	metrics.RuleEvaluationLatency.WithLabelValues("apply_all").Observe(time.Since(start).Seconds())

	sortResults(results)
	return results, nil
}

// BatchApplyRules 批量应用
// 全部区域使用同一份激活规则快照，批次中途的规则变更不影响本次评估
func (s *engineService) BatchApplyRules(ctx context.Context, text string, sections map[model.TargetSection]string) (*model.BatchOptimizationResult, error) {
	if strings.TrimSpace(text) == "" && len(sections) == 0 {
		return nil, pkgerrors.ErrEmptyContent
	}
	for section := range sections {
		if !section.Valid() || section == model.SectionAll {
			return nil, pkgerrors.ErrValidation.WithViolations(
				[]string{"section keys must be one of SUMMARY, SKILLS, EXPERIENCE, EDUCATION"})
		}
	}

	// 一次查询取快照，再按区域在内存里过滤
	snapshot, err := s.activeSnapshot(ctx)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	batch := model.NewBatchOptimizationResult(time.Now().UnixMilli())

	// 整体文本按 GENERAL 评估，与 ApplyAllRules(ALL) 同语义应用全部激活规则
	if strings.TrimSpace(text) != "" {
		results := s.coordinator.Evaluate(ctx, snapshot, text)
		sortResults(results)
		batch.AddSectionResults(model.GeneralSection, results)
	}

	// 预切分区域各自评估
	for _, section := range model.ContentSections() {
		sectionText, ok := sections[section]
		if !ok || strings.TrimSpace(sectionText) == "" {
			continue
		}
		applicable := filterBySection(snapshot, section)
		results := s.coordinator.Evaluate(ctx, applicable, sectionText)
		sortResults(results)
		batch.AddSectionResults(string(section), results)
	}

	batch.Finalize()
	metrics.RuleEvaluationLatency.WithLabelValues("batch").Observe(time.Since(start).Seconds())

	return batch, nil
}

// activeSnapshot 读取全部激活规则作为本批次的一致快照
func (s *engineService) activeSnapshot(ctx context.Context) ([]*model.Rule, error) {
	rules, err := s.ruleService.ListActiveRules(ctx)
	if err != nil {
		return nil, err
	}
	return rules, nil
}

// filterBySection 过滤作用于指定区域的规则 (ALL 规则作用于任何区域)
func filterBySection(rules []*model.Rule, section model.TargetSection) []*model.Rule {
	filtered := make([]*model.Rule, 0, len(rules))
	for _, r := range rules {
		if r.AppliesTo(section) {
			filtered = append(filtered, r)
		}
	}
	return filtered
}

// sortResults 按优先级降序、规则 ID 升序排序
// 排序契约由引擎保证，调用方按引擎顺序渲染
func sortResults(results []model.OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Priority != results[j].Priority {
			return results[i].Priority > results[j].Priority
		}
		return results[i].RuleID < results[j].RuleID
	})
}
