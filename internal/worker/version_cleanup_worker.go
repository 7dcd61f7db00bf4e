// Package worker 提供后台任务处理
package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cvagent/cvagent-rules/pkg/logger"
)

// VersionCleaner 版本清理接口
// 用于解耦 worker 和 service 包，避免循环依赖
type VersionCleaner interface {
	// CleanupVersions 清理所有规则的过量历史版本，每条规则保留最新 keep 条
	CleanupVersions(ctx context.Context, keep int) (int64, error)
}

// VersionCleanupWorkerConfig 版本清理 Worker 配置
type VersionCleanupWorkerConfig struct {
	CheckInterval time.Duration // 检查间隔，默认 1h
	KeepVersions  int           // 每条规则保留的最新历史版本数，默认 50
}

// DefaultVersionCleanupWorkerConfig 返回默认配置
func DefaultVersionCleanupWorkerConfig() *VersionCleanupWorkerConfig {
	return &VersionCleanupWorkerConfig{
		CheckInterval: time.Hour,
		KeepVersions:  50,
	}
}

// VersionCleanupWorker 版本历史清理 Worker
// 定期删除每条规则超出保留数量的旧历史版本
type VersionCleanupWorker struct {
	cfg     *VersionCleanupWorkerConfig
	cleaner VersionCleaner
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewVersionCleanupWorker 创建版本清理 Worker
func NewVersionCleanupWorker(cfg *VersionCleanupWorkerConfig, cleaner VersionCleaner) *VersionCleanupWorker {
	if cfg == nil {
		cfg = DefaultVersionCleanupWorkerConfig()
	}
	return &VersionCleanupWorker{
		cfg:     cfg,
		cleaner: cleaner,
	}
}

// Start 启动 Worker
func (w *VersionCleanupWorker) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.checkLoop(ctx)

	logger.Info("version cleanup worker started",
		zap.Duration("check_interval", w.cfg.CheckInterval),
		zap.Int("keep_versions", w.cfg.KeepVersions),
	)
}

// Stop 停止 Worker
func (w *VersionCleanupWorker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	logger.Info("version cleanup worker stopped")
}

// checkLoop 清理循环
func (w *VersionCleanupWorker) checkLoop(ctx context.Context) {
	defer w.wg.Done()

	// 启动时立即执行一次
	w.cleanup(ctx)

	ticker := time.NewTicker(w.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.cleanup(ctx)
		}
	}
}

// cleanup 执行一轮清理
func (w *VersionCleanupWorker) cleanup(ctx context.Context) {
	deleted, err := w.cleaner.CleanupVersions(ctx, w.cfg.KeepVersions)
	if err != nil {
		logger.Error("version cleanup run failed", zap.Error(err))
		return
	}

	if deleted > 0 {
		logger.Info("version cleanup run finished",
			zap.Int64("deleted", deleted),
			zap.Int("keep_versions", w.cfg.KeepVersions),
		)
	}
}
