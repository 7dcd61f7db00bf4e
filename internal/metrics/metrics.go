package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Rules Service Metrics - 规则服务监控指标
var (
	// RuleEvaluationsTotal 规则评估总数 (按类别、是否命中分组)
	RuleEvaluationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "evaluations_total",
			Help:      "规则评估总次数，按类别(KEYWORD/FORMAT/CONTENT/STRUCTURE)和是否命中分组",
		},
		[]string{"category", "matched"},
	)

	// RuleEvaluationTimeouts 规则评估超时数
	RuleEvaluationTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "evaluation_timeouts_total",
			Help:      "规则评估超时总次数，按类别分组",
		},
		[]string{"category"},
	)

	// RuleEvaluationLatency 规则评估延迟
	RuleEvaluationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "evaluation_latency_seconds",
			Help:      "规则评估延迟(秒)，按操作类型(apply/apply_all/batch)分组",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14), // 0.1ms to 800ms
		},
		[]string{"operation"},
	)

	// RuleMutationsTotal 规则变更总数
	RuleMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "mutations_total",
			Help:      "规则变更总次数，按操作类型(create/update/toggle/delete/restore)和结果(ok/conflict/invalid/not_found)分组",
		},
		[]string{"operation", "result"},
	)

	// ActiveRulesGauge 激活规则数
	ActiveRulesGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "active_rules",
			Help:      "当前激活规则数，按类别分组",
		},
		[]string{"category"},
	)

	// CacheOperationsTotal 规则缓存操作计数
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "cache_operations_total",
			Help:      "规则缓存操作总数，按结果(hit/miss/error)分组",
		},
		[]string{"result"},
	)

	// VersionsCleanedTotal 清理的历史版本数
	VersionsCleanedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "versions_cleaned_total",
			Help:      "后台清理任务删除的历史版本总数",
		},
	)

	// HTTPRequestLatency HTTP 请求延迟
	HTTPRequestLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "cvagent",
			Subsystem: "rules",
			Name:      "http_request_latency_seconds",
			Help:      "HTTP 请求延迟(秒)，按方法、路径、状态码分组",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to 2s
		},
		[]string{"method", "path", "status"},
	)
)
