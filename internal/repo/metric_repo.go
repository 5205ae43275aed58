package repo

import (
	"context"
	"errors"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"gorm.io/gorm"
)

// MetricRepo 指标数据访问层
type MetricRepo struct {
	db *gorm.DB
}

func NewMetricRepo(db *gorm.DB) *MetricRepo {
	return &MetricRepo{db: db}
}

// Create 追加一条指标样本
func (r *MetricRepo) Create(ctx context.Context, metric *models.Metric) error {
	return r.db.WithContext(ctx).Create(metric).Error
}

// FindByNodeSince 查询节点在指定时间之后的指标（按时间升序）
func (r *MetricRepo) FindByNodeSince(ctx context.Context, nodeID uint, since int64) ([]models.Metric, error) {
	var metrics []models.Metric
	err := r.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Where("created_at >= ?", since).
		Order("created_at ASC").
		Find(&metrics).Error
	return metrics, err
}

// FindLatestByNodeId 查询节点最新的一条指标
func (r *MetricRepo) FindLatestByNodeId(ctx context.Context, nodeID uint) (*models.Metric, error) {
	var metric models.Metric
	err := r.db.WithContext(ctx).
		Where("node_id = ?", nodeID).
		Order("created_at DESC").
		First(&metric).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &metric, nil
}

// DeleteBefore 批量删除指定时间之前的指标，返回删除条数
func (r *MetricRepo) DeleteBefore(ctx context.Context, threshold int64) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", threshold).
		Delete(&models.Metric{})
	return result.RowsAffected, result.Error
}

// DeleteByNodeId 删除节点的所有指标
func (r *MetricRepo) DeleteByNodeId(ctx context.Context, nodeID uint) error {
	return r.db.WithContext(ctx).Where("node_id = ?", nodeID).Delete(&models.Metric{}).Error
}
