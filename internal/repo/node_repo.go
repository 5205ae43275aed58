package repo

import (
	"context"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"gorm.io/gorm"
)

// NodeRepo 节点数据访问层
type NodeRepo struct {
	db *gorm.DB
}

func NewNodeRepo(db *gorm.DB) *NodeRepo {
	return &NodeRepo{db: db}
}

// FindByUUID 根据 UUID 查找节点
func (r *NodeRepo) FindByUUID(ctx context.Context, uuid string) (models.Node, error) {
	var node models.Node
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&node).Error
	return node, err
}

// FindById 根据主键查找节点
func (r *NodeRepo) FindById(ctx context.Context, id uint) (models.Node, error) {
	var node models.Node
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&node).Error
	return node, err
}

// FindAll 列出所有节点（在线优先，其次按 ID）
func (r *NodeRepo) FindAll(ctx context.Context) ([]models.Node, error) {
	var nodes []models.Node
	err := r.db.WithContext(ctx).
		Order("status DESC").
		Order("id ASC").
		Find(&nodes).Error
	return nodes, err
}

// ExistsByUUID 判断 UUID 是否已被占用
func (r *NodeRepo) ExistsByUUID(ctx context.Context, uuid string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Node{}).
		Where("uuid = ?", uuid).
		Count(&count).Error
	return count > 0, err
}

// Create 创建节点
func (r *NodeRepo) Create(ctx context.Context, node *models.Node) error {
	return r.db.WithContext(ctx).Create(node).Error
}

// UpdateById 按主键更新节点（零值字段不更新）
func (r *NodeRepo) UpdateById(ctx context.Context, node *models.Node) error {
	return r.db.WithContext(ctx).Updates(node).Error
}

// UpdateColumns 按主键更新指定列
func (r *NodeRepo) UpdateColumns(ctx context.Context, id uint, updates map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.Node{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// DeleteById 删除节点
func (r *NodeRepo) DeleteById(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Node{}).Error
}

// MarkOfflineBefore 把 lastSeen 早于阈值的在线节点批量置为离线，返回影响行数
// 条件更新保证与并发上报互不覆盖：正在上报的节点 last_seen 已刷新，不会命中。
func (r *NodeRepo) MarkOfflineBefore(ctx context.Context, threshold int64) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.Node{}).
		Where("status = ?", models.StatusOnline).
		Where("last_seen < ?", threshold).
		Update("status", models.StatusOffline)
	return result.RowsAffected, result.Error
}

// GetStatistics 统计节点总数与在线数
func (r *NodeRepo) GetStatistics(ctx context.Context) (total int64, online int64, err error) {
	if err = r.db.WithContext(ctx).Model(&models.Node{}).Count(&total).Error; err != nil {
		return
	}
	err = r.db.WithContext(ctx).Model(&models.Node{}).
		Where("status = ?", models.StatusOnline).
		Count(&online).Error
	return
}
