// Package kafka 提供 Kafka 生产者
package kafka

// Kafka topic 名称
const (
	// 规则变更事件 (rules → 下游优化服务)
	TopicRuleEvents = "cvagent.rule.events"
)
