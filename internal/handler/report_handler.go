package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/service"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ReportHandler HTTP 上报处理器
type ReportHandler struct {
	logger        *zap.Logger
	reportService *service.ReportService
}

func NewReportHandler(logger *zap.Logger, reportService *service.ReportService) *ReportHandler {
	return &ReportHandler{
		logger:        logger,
		reportService: reportService,
	}
}

// Report 处理一次性的上报调用
// POST /api/report
//
// 身份在请求体 uuid 字段，密钥在 Authorization 头。每次调用独立处理，
// 不注册连接，因此这条链路收不到服务端下发的指令。
func (h *ReportHandler) Report(c echo.Context) error {
	var data protocol.ReportData
	if err := c.Bind(&data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "请求体解析失败",
		})
	}

	if data.UUID == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"code":    http.StatusBadRequest,
			"message": "UUID is required",
		})
	}

	secret := bearerToken(c.Request().Header.Get("Authorization"))

	err := h.reportService.ProcessReport(c.Request().Context(), data.UUID, secret, &data, c.RealIP())
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, map[string]interface{}{
			"code":    http.StatusOK,
			"message": "success",
		})
	case errors.Is(err, service.ErrNotRegistered):
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"code":    http.StatusForbidden,
			"message": err.Error(),
		})
	case errors.Is(err, service.ErrInvalidSecret):
		return c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"code":    http.StatusUnauthorized,
			"message": err.Error(),
		})
	default:
		h.logger.Error("处理上报失败", zap.String("uuid", data.UUID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"code":    http.StatusInternalServerError,
			"message": "Internal Server Error",
		})
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return header[len(prefix):]
	}
	return ""
}
