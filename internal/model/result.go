package model

// OptimizationResult 单条规则的应用结果 (临时值，不落库)
type OptimizationResult struct {
	RuleID     string       `json:"rule_id"`
	RuleName   string       `json:"rule_name"`
	Category   RuleCategory `json:"category"`
	Matched    bool         `json:"matched"`
	Suggestion string       `json:"suggestion,omitempty"` // 命中时返回规则建议
	Priority   int          `json:"priority"`
	TimedOut   bool         `json:"timed_out,omitempty"` // 单条规则评估超时，按未命中处理
}

// GeneralSection 批量结果中通用规则 (targetSection=ALL) 的分组键
const GeneralSection = "GENERAL"

// BatchOptimizationResult 批量应用的聚合结果 (临时值，不落库)
type BatchOptimizationResult struct {
	SectionResults map[string][]OptimizationResult `json:"section_results"`
	TotalRules     int                             `json:"total_rules"`    // 评估的规则条次
	MatchedRules   int                             `json:"matched_rules"`  // 命中条次
	TimedOutRules  int                             `json:"timed_out_rules"`
	CategoryCounts map[RuleCategory]int            `json:"category_counts"` // 按类别统计命中数
	Score          float64                         `json:"score"`           // 命中率 = matched/total，无规则时为 0
	ProcessedAt    int64                           `json:"processed_at"`    // 处理时间 (毫秒)
}

// NewBatchOptimizationResult 创建空的批量结果
func NewBatchOptimizationResult(processedAt int64) *BatchOptimizationResult {
	return &BatchOptimizationResult{
		SectionResults: make(map[string][]OptimizationResult),
		CategoryCounts: make(map[RuleCategory]int),
		ProcessedAt:    processedAt,
	}
}

// AddSectionResults 追加一个区域的结果并累计汇总
func (b *BatchOptimizationResult) AddSectionResults(section string, results []OptimizationResult) {
	b.SectionResults[section] = results
	for _, r := range results {
		b.TotalRules++
		if r.TimedOut {
			b.TimedOutRules++
		}
		if r.Matched {
			b.MatchedRules++
			b.CategoryCounts[r.Category]++
		}
	}
}

// Finalize 计算整体适用度评分
func (b *BatchOptimizationResult) Finalize() {
	if b.TotalRules == 0 {
		b.Score = 0
		return
	}
	b.Score = float64(b.MatchedRules) / float64(b.TotalRules)
}

// RuleStatistics 规则统计信息
type RuleStatistics struct {
	TotalRules     int64                  `json:"total_rules"`
	ActiveRules    int64                  `json:"active_rules"`
	InactiveRules  int64                  `json:"inactive_rules"`
	CategoryCounts map[RuleCategory]int64 `json:"category_counts"`
}

// VersionComparison 两个历史版本的字段级比较
type VersionComparison struct {
	RuleID               string `json:"rule_id"`
	Version1             int    `json:"version1"`
	Version2             int    `json:"version2"`
	NameChanged          bool   `json:"name_changed"`
	PatternChanged       bool   `json:"pattern_changed"`
	SuggestionChanged    bool   `json:"suggestion_changed"`
	DescriptionChanged   bool   `json:"description_changed"`
	CategoryChanged      bool   `json:"category_changed"`
	PriorityChanged      bool   `json:"priority_changed"`
	TargetSectionChanged bool   `json:"target_section_changed"`
	ActiveChanged        bool   `json:"active_changed"`
}

// VersionStatistics 单条规则的版本统计
type VersionStatistics struct {
	RuleID                  string  `json:"rule_id"`
	TotalVersions           int     `json:"total_versions"`
	LatestVersion           int     `json:"latest_version"`
	ModificationCount       int     `json:"modification_count"`
	AvgModificationInterval float64 `json:"avg_modification_interval_days"`
	LastModifiedAt          int64   `json:"last_modified_at"`
}
