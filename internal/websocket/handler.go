package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/service"
	goerrors "github.com/go-errors/errors"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// 保活 ping 周期；读超时取两个周期，错过一次 ping 仍有机会恢复
const defaultPingInterval = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // 探针不是浏览器，不校验 Origin
	},
}

// Handler 探针长连接接入端
type Handler struct {
	logger        *zap.Logger
	manager       *Manager
	reportService *service.ReportService
	pingInterval  time.Duration
}

func NewHandler(logger *zap.Logger, manager *Manager, reportService *service.ReportService) *Handler {
	return &Handler{
		logger:        logger,
		manager:       manager,
		reportService: reportService,
		pingInterval:  defaultPingInterval,
	}
}

// SetPingInterval 覆盖保活 ping 周期，读超时随之调整为两个周期
func (h *Handler) SetPingInterval(interval time.Duration) {
	if interval > 0 {
		h.pingInterval = interval
	}
}

func (h *Handler) pongWait() time.Duration {
	return 2 * h.pingInterval
}

// Serve 处理探针的 WebSocket 接入
// GET /api/agent/ws
//
// 身份和密钥从升级请求头读取（Authorization: Bearer <secret>、X-Agent-UUID），
// 缺任何一个直接拒绝升级。密钥是否正确推迟到第一条消息时由
// ReportService 统一校验，保证两条上报链路只有一个鉴权路径。
func (h *Handler) Serve(c echo.Context) error {
	uuid := c.Request().Header.Get("X-Agent-UUID")
	secret := bearerToken(c.Request().Header.Get("Authorization"))

	if uuid == "" || secret == "" {
		return c.JSON(http.StatusUnauthorized, map[string]interface{}{
			"code":    http.StatusUnauthorized,
			"message": "missing agent uuid or secret",
		})
	}

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.logger.Warn("websocket 升级失败", zap.String("uuid", uuid), zap.Error(err))
		return nil
	}

	client := NewClient(uuid, secret, conn)
	h.manager.Register(client)
	h.logger.Info("agent connected",
		zap.String("uuid", uuid),
		zap.String("remote", conn.RemoteAddr().String()))

	observedIP := c.RealIP()

	// 每条连接一个读取任务，消息串行处理，单个探针的上报不会乱序
	go h.readLoop(client, observedIP)
	go h.keepalive(client)

	return nil
}

// readLoop 连接的消息处理循环。退出即连接终结：恰好注销一次，
// 注销在任何退出路径上都不会失败。
func (h *Handler) readLoop(client *Client, observedIP string) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := goerrors.Wrap(r, 2)
			h.logger.Error("websocket 读取循环 panic",
				zap.String("uuid", client.UUID),
				zap.String("stack", wrapped.ErrorStack()))
		}
		h.manager.UnregisterClient(client)
		client.Close()
		h.logger.Info("agent disconnected", zap.String("uuid", client.UUID))
	}()

	conn := client.conn
	wait := h.pongWait()
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(wait))

		var data protocol.ReportData
		if err := json.Unmarshal(message, &data); err != nil {
			// 坏消息只记录，不断开连接
			h.logger.Warn("丢弃无法解析的上报消息",
				zap.String("uuid", client.UUID),
				zap.Error(err))
			continue
		}

		// 进行中的上报不随连接取消，要么完成要么失败，不会更新到一半被丢弃
		err = h.reportService.ProcessReport(context.Background(), client.UUID, client.Secret, &data, observedIP)
		switch {
		case err == nil:
		case errors.Is(err, service.ErrInvalidSecret):
			h.logger.Warn("上报密钥校验失败，关闭连接", zap.String("uuid", client.UUID))
			client.CloseWith(protocol.CloseCodeInvalidSecret, err.Error())
			return
		case errors.Is(err, service.ErrNotRegistered):
			h.logger.Warn("节点未注册，关闭连接", zap.String("uuid", client.UUID))
			client.CloseWith(protocol.CloseCodeNotRegistered, err.Error())
			return
		default:
			// 存储类错误不牵连连接，下一条消息照常处理
			h.logger.Error("处理上报失败",
				zap.String("uuid", client.UUID),
				zap.Error(err))
		}
	}
}

// keepalive 周期发送 ping 探测半开连接；写不进去说明连接已坏，
// 关闭底层连接让 readLoop 走统一的清理路径。
func (h *Handler) keepalive(client *Client) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for range ticker.C {
		if err := client.Ping(); err != nil {
			client.Close()
			return
		}
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if strings.HasPrefix(header, prefix) {
		return header[len(prefix):]
	}
	return ""
}
