package service

import (
	"context"
	"regexp"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cvagent/cvagent-rules/internal/metrics"
	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// 批量评估默认参数
const (
	DefaultRuleTimeout  = 100 * time.Millisecond
	DefaultBatchWorkers = 8
)

// BatchCoordinator 并发规则评估协调器
// 每条规则的评估由独立的超时边界保护，单条慢规则不会阻塞整个批次。
// 结果写入按规则下标预分配的固定槽位，聚合与完成顺序无关
type BatchCoordinator struct {
	ruleTimeout time.Duration
	workers     int
}

// NewBatchCoordinator 创建评估协调器
func NewBatchCoordinator(ruleTimeout time.Duration, workers int) *BatchCoordinator {
	if ruleTimeout <= 0 {
		ruleTimeout = DefaultRuleTimeout
	}
	if workers <= 0 {
		workers = DefaultBatchWorkers
	}
	return &BatchCoordinator{
		ruleTimeout: ruleTimeout,
		workers:     workers,
	}
}

// Evaluate 并发评估一组规则，返回与 rules 同序的结果切片
// 调用方 deadline 到期时已完成的结果照常返回，未完成的标记 timedOut
func (c *BatchCoordinator) Evaluate(ctx context.Context, rules []*model.Rule, text string) []model.OptimizationResult {
	results := make([]model.OptimizationResult, len(rules))
	if len(rules) == 0 {
		return results
	}

	jobs := make(chan int)
	var wg sync.WaitGroup

	workers := c.workers
	if workers > len(rules) {
		workers = len(rules)
	}

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = c.evaluateOne(ctx, rules[i], text)
			}
		}()
	}

	for i := range rules {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// evaluateOne 评估单条规则
// 模式编译失败按未命中处理并记录日志，评估本身永不使请求失败
func (c *BatchCoordinator) evaluateOne(ctx context.Context, rule *model.Rule, text string) model.OptimizationResult {
	result := model.OptimizationResult{
		RuleID:     rule.RuleID,
		RuleName:   rule.Name,
		Category:   rule.Category,
		Suggestion: rule.Suggestion,
		Priority:   rule.Priority,
	}

	// 非激活规则不参与匹配，直接返回未命中
	if !rule.IsActive {
		return result
	}

	re, err := rule.CompilePattern()
	if err != nil {
		logger.Warn("stored rule pattern failed to compile",
			zap.String("rule_id", rule.RuleID),
			zap.Error(err),
		)
		return result
	}

	matched, timedOut := c.matchWithTimeout(ctx, re, text)
	result.Matched = matched
	result.TimedOut = timedOut

	if timedOut {
		metrics.RuleEvaluationTimeouts.WithLabelValues(string(rule.Category)).Inc()
	}
	metrics.RuleEvaluationsTotal.WithLabelValues(string(rule.Category), boolLabel(matched)).Inc()

	return result
}

// matchWithTimeout 带超时边界执行正则匹配
// 匹配在独立协程执行，超时或调用方 deadline 到期时放弃等待；
// 协程本身会跑完并退出，结果被丢弃
func (c *BatchCoordinator) matchWithTimeout(ctx context.Context, re *regexp.Regexp, text string) (matched bool, timedOut bool) {
	done := make(chan bool, 1)
	go func() {
		done <- re.MatchString(text)
	}()

	timer := time.NewTimer(c.ruleTimeout)
	defer timer.Stop()

	select {
	case m := <-done:
		return m, false
	case <-timer.C:
		return false, true
	case <-ctx.Done():
		return false, true
	}
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
