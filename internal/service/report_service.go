package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/repo"
	"github.com/go-orz/orz"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ReportService 上报处理服务
// HTTP 上报和 WebSocket 上报共用 ProcessReport 这一个入口，
// 两条链路的行为必须完全一致。
type ReportService struct {
	logger *zap.Logger
	*orz.Service
	nodeRepo     *repo.NodeRepo
	metricRepo   *repo.MetricRepo
	geoipService *GeoIPService
}

func NewReportService(logger *zap.Logger, db *gorm.DB, geoipService *GeoIPService) *ReportService {
	return &ReportService{
		logger:       logger,
		Service:      orz.NewService(db),
		nodeRepo:     repo.NewNodeRepo(db),
		metricRepo:   repo.NewMetricRepo(db),
		geoipService: geoipService,
	}
}

// ProcessReport 处理一次上报：鉴权后原子地更新节点状态并追加一条指标样本。
// 成功时恰好产生一次节点更新和一次指标插入；鉴权失败不产生任何写入。
func (s *ReportService) ProcessReport(ctx context.Context, uuid, secret string, data *protocol.ReportData, observedIP string) error {
	// 1. 查找节点（上报不会隐式注册）
	node, err := s.nodeRepo.FindByUUID(ctx, uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotRegistered
		}
		return err
	}

	// 2. 校验密钥
	if subtle.ConstantTimeCompare([]byte(node.Secret), []byte(secret)) != 1 {
		return ErrInvalidSecret
	}

	now := time.Now().UnixMilli()

	// 探针携带 public_ip 时以其为准，否则记录传输层观测到的地址
	clientIP := observedIP
	if data.PublicIP != "" {
		clientIP = data.PublicIP
	}

	updates := map[string]interface{}{
		"status":     models.StatusOnline,
		"last_seen":  now,
		"client_ip":  clientIP,
		"updated_at": now,
	}

	// 「有值则覆盖，缺省则保留」的合并策略
	if data.Name != "" {
		updates["name"] = data.Name
	}
	if data.OS != "" {
		updates["os_info"] = data.OS
	}
	if data.CPUCores > 0 {
		updates["cpu_cores"] = data.CPUCores
	}
	if data.RAMTotal > 0 {
		updates["ram_total"] = data.RAMTotal
	}
	if data.Uptime > 0 {
		updates["uptime"] = data.Uptime
	}

	// 地址变化时刷新归属地
	if s.geoipService != nil && clientIP != node.ClientIP {
		if location := s.geoipService.LookupIP(clientIP); location != "" {
			updates["location"] = location
		}
	}

	metric := &models.Metric{
		NodeID:     node.ID,
		CPUUsage:   data.CPU,
		RAMUsage:   data.RAM,
		DiskUsage:  data.Disk,
		NetInRate:  data.NetIn,
		NetOutRate: data.NetOut,
		Load1:      data.Load1,
		Load5:      data.Load5,
		Load15:     data.Load15,
		CreatedAt:  now,
	}

	// 3. 事务内完成节点更新和指标插入
	return s.Transaction(ctx, func(ctx context.Context) error {
		if err := s.nodeRepo.UpdateColumns(ctx, node.ID, updates); err != nil {
			return err
		}
		return s.metricRepo.Create(ctx, metric)
	})
}
