package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/repo"
	"github.com/go-orz/orz"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Registry 在线连接管理接口（由 websocket.Manager 实现，接口注入避免循环依赖）
type Registry interface {
	// SendToNode 向指定节点的连接投递消息，节点不在线或写入失败时返回 false
	SendToNode(uuid string, message []byte) bool
	// OnlineNodeIDs 返回当前所有在线连接的节点 UUID
	OnlineNodeIDs() []string
}

// NodeService 节点管理服务（注册、查询、删除、指令下发、离线清扫）
type NodeService struct {
	logger *zap.Logger
	*orz.Service
	nodeRepo      *repo.NodeRepo
	metricService *MetricService
	registry      Registry
}

func NewNodeService(logger *zap.Logger, db *gorm.DB, metricService *MetricService) *NodeService {
	return &NodeService{
		logger:        logger,
		Service:       orz.NewService(db),
		nodeRepo:      repo.NewNodeRepo(db),
		metricService: metricService,
	}
}

// SetRegistry 注入连接管理器（由外部注入，避免循环依赖）
func (s *NodeService) SetRegistry(registry Registry) {
	s.registry = registry
}

// CreateNode 创建节点。UUID 全局唯一，重复时返回错误。
func (s *NodeService) CreateNode(ctx context.Context, uuid, secret, name string) (*models.Node, error) {
	exists, err := s.nodeRepo.ExistsByUUID(ctx, uuid)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateUUID
	}

	if name == "" {
		name = uuid
	}

	now := time.Now().UnixMilli()
	node := &models.Node{
		UUID:      strings.TrimSpace(uuid),
		Name:      name,
		Secret:    secret,
		Status:    models.StatusOffline, // 新建节点离线，首次上报后转为在线
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.nodeRepo.Create(ctx, node); err != nil {
		return nil, err
	}

	s.logger.Info("node created",
		zap.String("uuid", node.UUID),
		zap.String("name", node.Name))
	return node, nil
}

// GetNode 获取节点信息
func (s *NodeService) GetNode(ctx context.Context, id uint) (*models.Node, error) {
	node, err := s.nodeRepo.FindById(ctx, id)
	if err != nil {
		return nil, err
	}
	return &node, nil
}

// NodeView 节点列表项（附带最新指标）
type NodeView struct {
	models.Node
	LatestMetric *models.Metric `json:"latestMetric"`
}

// ListNodes 列出所有节点，附带各自最新的一条指标
func (s *NodeService) ListNodes(ctx context.Context) ([]NodeView, error) {
	nodes, err := s.nodeRepo.FindAll(ctx)
	if err != nil {
		return nil, err
	}

	views := make([]NodeView, 0, len(nodes))
	for _, node := range nodes {
		latest, err := s.metricService.GetLatestMetric(ctx, node.ID)
		if err != nil {
			s.logger.Error("查询最新指标失败",
				zap.String("uuid", node.UUID),
				zap.Error(err))
		}
		views = append(views, NodeView{Node: node, LatestMetric: latest})
	}
	return views, nil
}

// RenameNode 重命名节点
func (s *NodeService) RenameNode(ctx context.Context, id uint, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("节点名称不能为空")
	}
	if _, err := s.nodeRepo.FindById(ctx, id); err != nil {
		return err
	}
	return s.nodeRepo.UpdateColumns(ctx, id, map[string]interface{}{
		"name":       name,
		"updated_at": time.Now().UnixMilli(),
	})
}

// DeleteNode 删除节点及其全部历史指标
func (s *NodeService) DeleteNode(ctx context.Context, id uint) error {
	node, err := s.nodeRepo.FindById(ctx, id)
	if err != nil {
		return err
	}

	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.metricService.DeleteNodeMetrics(ctx, id); err != nil {
			return err
		}
		if err := s.nodeRepo.DeleteById(ctx, id); err != nil {
			return err
		}
		s.logger.Info("node deleted",
			zap.String("uuid", node.UUID),
			zap.String("name", node.Name))
		return nil
	})
}

// GetStatistics 获取节点统计信息
func (s *NodeService) GetStatistics(ctx context.Context) (map[string]interface{}, error) {
	total, online, err := s.nodeRepo.GetStatistics(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"total":   total,
		"online":  online,
		"offline": total - online,
	}, nil
}

// MarkStaleOffline 把超过离线窗口未上报的在线节点批量置为离线，返回影响数量。
// 这是系统中唯一写入离线状态的路径；在线状态只由上报路径写入。
func (s *NodeService) MarkStaleOffline(ctx context.Context, timeout time.Duration) (int64, error) {
	threshold := time.Now().Add(-timeout).UnixMilli()
	return s.nodeRepo.MarkOfflineBefore(ctx, threshold)
}

// SendCommand 向指定节点下发指令，返回是否送达。
// 未送达（不在线或写入失败）不视为错误，由调用方决定如何处理。
func (s *NodeService) SendCommand(ctx context.Context, id uint, cmd protocol.Command) (bool, error) {
	node, err := s.nodeRepo.FindById(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrNotRegistered
		}
		return false, err
	}
	if s.registry == nil {
		return false, nil
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return false, err
	}

	delivered := s.registry.SendToNode(node.UUID, payload)
	if !delivered {
		s.logger.Debug("command not delivered",
			zap.String("uuid", node.UUID),
			zap.String("type", cmd.Type))
	}
	return delivered, nil
}

// BroadcastCommand 向所有在线节点并发下发指令，返回送达数量
func (s *NodeService) BroadcastCommand(ctx context.Context, cmd protocol.Command) (int, error) {
	if s.registry == nil {
		return 0, nil
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return 0, err
	}

	ids := s.registry.OnlineNodeIDs()
	var delivered atomic.Int64

	var wg conc.WaitGroup
	for _, id := range ids {
		id := id
		wg.Go(func() {
			if s.registry.SendToNode(id, payload) {
				delivered.Add(1)
			}
		})
	}
	wg.Wait()

	s.logger.Info("broadcast command",
		zap.String("type", cmd.Type),
		zap.Int("online", len(ids)),
		zap.Int64("delivered", delivered.Load()))
	return int(delivered.Load()), nil
}
