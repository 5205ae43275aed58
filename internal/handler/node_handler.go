package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NodeHandler 节点管理与查询接口
type NodeHandler struct {
	logger        *zap.Logger
	nodeService   *service.NodeService
	metricService *service.MetricService
}

func NewNodeHandler(logger *zap.Logger, nodeService *service.NodeService, metricService *service.MetricService) *NodeHandler {
	return &NodeHandler{
		logger:        logger,
		nodeService:   nodeService,
		metricService: metricService,
	}
}

// ListNodes 列出所有节点（在线优先，附带最新指标）
// GET /api/servers
func (h *NodeHandler) ListNodes(c echo.Context) error {
	nodes, err := h.nodeService.ListNodes(c.Request().Context())
	if err != nil {
		h.logger.Error("查询节点列表失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": http.StatusOK,
		"data": nodes,
	})
}

// GetNodeMetrics 查询节点详情与历史指标
// GET /api/servers/:id/metrics?range=1h|24h|7d
func (h *NodeHandler) GetNodeMetrics(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "无效的节点ID",
		})
	}

	ctx := c.Request().Context()
	node, err := h.nodeService.GetNode(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"code":    http.StatusNotFound,
				"message": "Server not found",
			})
		}
		h.logger.Error("查询节点失败", zap.Uint("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}

	metrics, err := h.metricService.GetNodeMetrics(ctx, id, c.QueryParam("range"))
	if err != nil {
		h.logger.Error("查询历史指标失败", zap.Uint("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": http.StatusOK,
		"data": map[string]interface{}{
			"server":  node,
			"metrics": metrics,
		},
	})
}

// CreateNodeRequest 创建节点请求
type CreateNodeRequest struct {
	UUID   string `json:"uuid" validate:"required"`
	Secret string `json:"secret" validate:"required"`
	Name   string `json:"name"`
}

// CreateNode 注册一个新节点
// POST /api/nodes
func (h *NodeHandler) CreateNode(c echo.Context) error {
	var req CreateNodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "请求参数错误",
		})
	}
	if err := c.Validate(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "UUID and Secret are required",
		})
	}

	node, err := h.nodeService.CreateNode(c.Request().Context(), req.UUID, req.Secret, req.Name)
	if err != nil {
		if errors.Is(err, service.ErrDuplicateUUID) {
			return c.JSON(http.StatusConflict, map[string]interface{}{
				"code":    http.StatusConflict,
				"message": "Node with this UUID already exists",
			})
		}
		h.logger.Error("创建节点失败", zap.String("uuid", req.UUID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}

	return c.JSON(http.StatusCreated, map[string]interface{}{
		"code":    http.StatusCreated,
		"message": "Node created successfully",
		"data":    node,
	})
}

// RenameNode 重命名节点
// PUT /api/nodes/:id
func (h *NodeHandler) RenameNode(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "无效的节点ID",
		})
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "节点名称不能为空",
		})
	}

	if err := h.nodeService.RenameNode(c.Request().Context(), id, req.Name); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"code":    http.StatusNotFound,
				"message": "Server not found",
			})
		}
		h.logger.Error("重命名节点失败", zap.Uint("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    http.StatusOK,
		"message": "success",
	})
}

// DeleteNode 删除节点及其全部历史指标
// DELETE /api/nodes/:id
func (h *NodeHandler) DeleteNode(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "无效的节点ID",
		})
	}

	if err := h.nodeService.DeleteNode(c.Request().Context(), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"code":    http.StatusNotFound,
				"message": "Server not found",
			})
		}
		h.logger.Error("删除节点失败", zap.Uint("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":    http.StatusOK,
		"message": "success",
	})
}

// GetStatistics 获取节点统计数据
// GET /api/stats
func (h *NodeHandler) GetStatistics(c echo.Context) error {
	stats, err := h.nodeService.GetStatistics(c.Request().Context())
	if err != nil {
		h.logger.Error("查询统计数据失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": http.StatusOK,
		"data": stats,
	})
}

// SendCommand 向节点下发指令（尽力而为，返回是否送达）
// POST /api/nodes/:id/command
func (h *NodeHandler) SendCommand(c echo.Context) error {
	id, err := parseID(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "无效的节点ID",
		})
	}

	var cmd protocol.Command
	if err := c.Bind(&cmd); err != nil || cmd.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "指令类型不能为空",
		})
	}

	delivered, err := h.nodeService.SendCommand(c.Request().Context(), id, cmd)
	if err != nil {
		if errors.Is(err, service.ErrNotRegistered) || errors.Is(err, gorm.ErrRecordNotFound) {
			return c.JSON(http.StatusNotFound, map[string]interface{}{
				"code":    http.StatusNotFound,
				"message": "Server not found",
			})
		}
		h.logger.Error("下发指令失败", zap.Uint("id", id), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      http.StatusOK,
		"delivered": delivered,
	})
}

// BroadcastCommand 向所有在线节点下发指令
// POST /api/nodes/command
func (h *NodeHandler) BroadcastCommand(c echo.Context) error {
	var cmd protocol.Command
	if err := c.Bind(&cmd); err != nil || cmd.Type == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "指令类型不能为空",
		})
	}

	delivered, err := h.nodeService.BroadcastCommand(c.Request().Context(), cmd)
	if err != nil {
		h.logger.Error("广播指令失败", zap.String("type", cmd.Type), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"code":      http.StatusOK,
		"delivered": delivered,
	})
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint(id), nil
}
