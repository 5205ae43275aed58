package handler

import (
	"github.com/RavenholmAlpha/Gridcore-agent/internal/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// Validator echo 的请求校验适配
type Validator struct {
	validate *validator.Validate
}

func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

func (v *Validator) Validate(i interface{}) error {
	return v.validate.Struct(i)
}

// NewRouter 组装 echo 实例与全部路由
func NewRouter(logger *zap.Logger, reportHandler *ReportHandler, nodeHandler *NodeHandler, wsHandler *websocket.Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewValidator()

	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:    true,
		LogStatus: true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status))
			return nil
		},
	}))

	api := e.Group("/api")

	// 探针侧
	api.POST("/report", reportHandler.Report)
	api.GET("/agent/ws", wsHandler.Serve)

	// 管理与查询
	api.GET("/servers", nodeHandler.ListNodes)
	api.GET("/servers/:id/metrics", nodeHandler.GetNodeMetrics)
	api.GET("/stats", nodeHandler.GetStatistics)
	api.POST("/nodes", nodeHandler.CreateNode)
	api.POST("/nodes/command", nodeHandler.BroadcastCommand)
	api.PUT("/nodes/:id", nodeHandler.RenameNode)
	api.DELETE("/nodes/:id", nodeHandler.DeleteNode)
	api.POST("/nodes/:id/command", nodeHandler.SendCommand)

	return e
}
