package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cvagent/cvagent-rules/internal/model"
)

// Redis key patterns
const (
	// 激活规则列表 key: cvagent:rules:active:{section}
	activeRulesKeyPattern = "cvagent:rules:active:%s"
	// 规则统计 key
	statisticsKey = "cvagent:rules:statistics"
)

// DefaultRuleTTL 规则缓存默认过期时间
const DefaultRuleTTL = 5 * time.Minute

var ErrCacheMiss = errors.New("rule cache miss")

// RuleCache 规则缓存接口
// 缓存按作用区域维度存储激活规则列表，规则发生任何修改时整体失效
type RuleCache interface {
	// GetActiveRules 读取某个作用区域的激活规则列表
	GetActiveRules(ctx context.Context, section model.TargetSection) ([]*model.Rule, error)

	// SetActiveRules 写入某个作用区域的激活规则列表
	SetActiveRules(ctx context.Context, section model.TargetSection, rules []*model.Rule) error

	// GetStatistics 读取规则统计
	GetStatistics(ctx context.Context) (*model.RuleStatistics, error)

	// SetStatistics 写入规则统计
	SetStatistics(ctx context.Context, stats *model.RuleStatistics) error

	// Invalidate 删除全部规则缓存 (规则创建/修改/删除/状态切换时调用)
	Invalidate(ctx context.Context) error
}

// ruleCache Redis 规则缓存实现
type ruleCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRuleCache 创建规则缓存
func NewRuleCache(rdb *redis.Client, ttl time.Duration) RuleCache {
	if ttl <= 0 {
		ttl = DefaultRuleTTL
	}
	return &ruleCache{rdb: rdb, ttl: ttl}
}

// activeRulesKey 生成激活规则列表 key
func activeRulesKey(section model.TargetSection) string {
	return fmt.Sprintf(activeRulesKeyPattern, string(section))
}

// GetActiveRules 读取某个作用区域的激活规则列表
func (c *ruleCache) GetActiveRules(ctx context.Context, section model.TargetSection) ([]*model.Rule, error) {
	data, err := c.rdb.Get(ctx, activeRulesKey(section)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var rules []*model.Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		// 缓存数据损坏按未命中处理，由调用方回源重建
		return nil, ErrCacheMiss
	}
	return rules, nil
}

// SetActiveRules 写入某个作用区域的激活规则列表
func (c *ruleCache) SetActiveRules(ctx context.Context, section model.TargetSection, rules []*model.Rule) error {
	data, err := json.Marshal(rules)
	if err != nil {
		return fmt.Errorf("marshal rules failed: %w", err)
	}

	if err := c.rdb.Set(ctx, activeRulesKey(section), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// GetStatistics 读取规则统计
func (c *ruleCache) GetStatistics(ctx context.Context) (*model.RuleStatistics, error) {
	data, err := c.rdb.Get(ctx, statisticsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var stats model.RuleStatistics
	if err := json.Unmarshal(data, &stats); err != nil {
		return nil, ErrCacheMiss
	}
	return &stats, nil
}

// SetStatistics 写入规则统计
func (c *ruleCache) SetStatistics(ctx context.Context, stats *model.RuleStatistics) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal statistics failed: %w", err)
	}

	if err := c.rdb.Set(ctx, statisticsKey, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Invalidate 删除全部规则缓存
func (c *ruleCache) Invalidate(ctx context.Context) error {
	keys := make([]string, 0, len(model.AllSections())+1)
	for _, section := range model.AllSections() {
		keys = append(keys, activeRulesKey(section))
	}
	keys = append(keys, statisticsKey)

	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
