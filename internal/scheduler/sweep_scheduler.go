package scheduler

import (
	"context"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/config"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/service"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// 清扫任务的调度周期。离线检测每 10 秒一轮，保留策略每天零点一轮。
const (
	offlineSweepSpec   = "@every 10s"
	retentionSweepSpec = "0 0 0 * * *"

	sweepTimeout = 30 * time.Second
)

// SweepScheduler 周期性清扫任务调度器：离线判定 + 指标保留
// 任何一轮失败只记录日志并跳过，下一轮照常执行，不影响上报流量。
type SweepScheduler struct {
	logger        *zap.Logger
	cron          *cron.Cron
	nodeService   *service.NodeService
	metricService *service.MetricService
	sweepCfg      config.SweepConfig
}

func NewSweepScheduler(logger *zap.Logger, nodeService *service.NodeService, metricService *service.MetricService, sweepCfg config.SweepConfig) *SweepScheduler {
	return &SweepScheduler{
		logger:        logger,
		cron:          cron.New(cron.WithSeconds()), // 支持秒级调度
		nodeService:   nodeService,
		metricService: metricService,
		sweepCfg:      sweepCfg,
	}
}

// Start 注册并启动全部清扫任务
func (s *SweepScheduler) Start() error {
	if _, err := s.cron.AddFunc(offlineSweepSpec, s.runOfflineSweep); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(retentionSweepSpec, s.runRetentionSweep); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("清扫任务调度器已启动",
		zap.Duration("offlineTimeout", s.sweepCfg.OfflineTimeout()),
		zap.Duration("retention", s.sweepCfg.Retention()))
	return nil
}

// Stop 停止调度器并等待进行中的任务结束
func (s *SweepScheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("清扫任务调度器已停止")
}

// runOfflineSweep 把离线窗口之外的在线节点批量置为离线
func (s *SweepScheduler) runOfflineSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	count, err := s.nodeService.MarkStaleOffline(ctx, s.sweepCfg.OfflineTimeout())
	if err != nil {
		s.logger.Error("离线检测失败，等待下一轮", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("offline sweep", zap.Int64("marked", count))
	}
}

// runRetentionSweep 删除保留期之外的指标样本
func (s *SweepScheduler) runRetentionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()

	deleted, err := s.metricService.CleanupOldMetrics(ctx, s.sweepCfg.Retention())
	if err != nil {
		s.logger.Error("指标清理失败，等待下一轮", zap.Error(err))
		return
	}
	s.logger.Info("metric cleanup", zap.Int64("deleted", deleted))
}
