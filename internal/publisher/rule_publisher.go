// Package publisher 提供 Kafka 消息发布功能
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/cvagent/cvagent-rules/internal/kafka"
	"github.com/cvagent/cvagent-rules/internal/model"
	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// 规则变更事件类型
const (
	RuleEventCreated  = "RULE_CREATED"
	RuleEventUpdated  = "RULE_UPDATED"
	RuleEventToggled  = "RULE_TOGGLED"
	RuleEventDeleted  = "RULE_DELETED"
	RuleEventRestored = "RULE_RESTORED"
)

// KafkaProducer Kafka 生产者接口
type KafkaProducer interface {
	SendWithContext(ctx context.Context, topic string, key, value []byte) error
}

// RulePublisher 规则变更事件发布者
// 发布消息到 cvagent.rule.events topic，供下游优化服务刷新本地规则副本
type RulePublisher struct {
	producer KafkaProducer
}

// NewRulePublisher 创建规则事件发布者
func NewRulePublisher(producer KafkaProducer) *RulePublisher {
	return &RulePublisher{
		producer: producer,
	}
}

// RuleChangeMessage 规则变更消息
type RuleChangeMessage struct {
	EventType string `json:"event_type"` // RULE_CREATED, RULE_UPDATED, RULE_TOGGLED, RULE_DELETED, RULE_RESTORED
	RuleID    string `json:"rule_id"`
	Name      string `json:"name,omitempty"`
	Category  string `json:"category,omitempty"`
	Version   int    `json:"version"`
	IsActive  bool   `json:"is_active"`
	Operator  string `json:"operator,omitempty"` // 操作人
	Timestamp int64  `json:"timestamp"`
}

// PublishRuleChange 发布规则变更事件
// producer 为 nil 时直接跳过 (Kafka 未启用)，发布失败只记录日志不阻断业务
func (p *RulePublisher) PublishRuleChange(ctx context.Context, eventType string, rule *model.Rule, operator string) error {
	if p.producer == nil {
		return nil
	}

	msg := &RuleChangeMessage{
		EventType: eventType,
		RuleID:    rule.RuleID,
		Name:      rule.Name,
		Category:  string(rule.Category),
		Version:   rule.Version,
		IsActive:  rule.IsActive,
		Operator:  operator,
		Timestamp: time.Now().UnixMilli(),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal rule change message: %w", err)
	}

	// 使用 rule_id 作为 key，保证同一规则的事件有序
	key := []byte(rule.RuleID)

	if err := p.producer.SendWithContext(ctx, kafka.TopicRuleEvents, key, data); err != nil {
		logger.Error("publish rule change failed",
			zap.String("rule_id", rule.RuleID),
			zap.String("event_type", eventType),
			zap.Error(err),
		)
		return fmt.Errorf("publish rule change: %w", err)
	}

	logger.Debug("rule change published",
		zap.String("rule_id", rule.RuleID),
		zap.String("event_type", eventType),
		zap.Int("version", rule.Version),
	)
	return nil
}
