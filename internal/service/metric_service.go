package service

import (
	"context"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/repo"
	"github.com/go-orz/cache"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MetricService 指标查询与保留策略服务
type MetricService struct {
	logger     *zap.Logger
	metricRepo *repo.MetricRepo

	// 最新指标缓存：列表页每个节点都要取最新一条，短缓存避免反复回表
	latestCache cache.Cache[uint, *models.Metric]
}

func NewMetricService(logger *zap.Logger, db *gorm.DB) *MetricService {
	return &MetricService{
		logger:      logger,
		metricRepo:  repo.NewMetricRepo(db),
		latestCache: cache.New[uint, *models.Metric](time.Minute),
	}
}

// GetLatestMetric 获取节点最新的一条指标（短时缓存）
func (s *MetricService) GetLatestMetric(ctx context.Context, nodeID uint) (*models.Metric, error) {
	if cached, ok := s.latestCache.Get(nodeID); ok {
		return cached, nil
	}

	latest, err := s.metricRepo.FindLatestByNodeId(ctx, nodeID)
	if err != nil {
		return nil, err
	}
	s.latestCache.Set(nodeID, latest, 5*time.Second)
	return latest, nil
}

// GetNodeMetrics 查询节点的历史指标
// 支持时间范围：1h（默认）、24h、7d
func (s *MetricService) GetNodeMetrics(ctx context.Context, nodeID uint, timeRange string) ([]models.Metric, error) {
	var duration time.Duration
	switch timeRange {
	case "24h":
		duration = 24 * time.Hour
	case "7d":
		duration = 7 * 24 * time.Hour
	default:
		duration = time.Hour
	}

	since := time.Now().Add(-duration).UnixMilli()
	return s.metricRepo.FindByNodeSince(ctx, nodeID, since)
}

// DeleteNodeMetrics 删除节点的所有指标数据
func (s *MetricService) DeleteNodeMetrics(ctx context.Context, nodeID uint) error {
	s.latestCache.Delete(nodeID)
	return s.metricRepo.DeleteByNodeId(ctx, nodeID)
}

// CleanupOldMetrics 批量删除保留期之外的指标，返回删除条数
func (s *MetricService) CleanupOldMetrics(ctx context.Context, retention time.Duration) (int64, error) {
	threshold := time.Now().Add(-retention).UnixMilli()
	return s.metricRepo.DeleteBefore(ctx, threshold)
}
