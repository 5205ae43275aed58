package websocket

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/service"
	"github.com/glebarez/sqlite"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type wsTestEnv struct {
	db      *gorm.DB
	manager *Manager
	handler *Handler
	server  *httptest.Server
	wsURL   string
}

func newWSTestEnv(t *testing.T) *wsTestEnv {
	t.Helper()

	// 用临时文件库代替 :memory:，避免连接池里每个连接各自拿到一个空库
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&models.Node{}, &models.Metric{}); err != nil {
		t.Fatalf("数据库迁移失败: %v", err)
	}

	manager := NewManager(zap.NewNop())
	reportService := service.NewReportService(zap.NewNop(), db, nil)
	handler := NewHandler(zap.NewNop(), manager, reportService)

	e := echo.New()
	e.GET("/api/agent/ws", handler.Serve)

	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	return &wsTestEnv{
		db:      db,
		manager: manager,
		handler: handler,
		server:  srv,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/agent/ws",
	}
}

func (env *wsTestEnv) createNode(t *testing.T, uuid, secret string) *models.Node {
	t.Helper()

	now := time.Now().UnixMilli()
	node := &models.Node{
		UUID:      uuid,
		Name:      uuid,
		Secret:    secret,
		Status:    models.StatusOffline,
		LastSeen:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := env.db.Create(node).Error; err != nil {
		t.Fatalf("创建测试节点失败: %v", err)
	}
	return node
}

func dialAgent(t *testing.T, url, uuid, secret string) (*websocket.Conn, *http.Response, error) {
	t.Helper()

	headers := http.Header{}
	if secret != "" {
		headers.Set("Authorization", "Bearer "+secret)
	}
	if uuid != "" {
		headers.Set("X-Agent-UUID", uuid)
	}
	return websocket.DefaultDialer.Dial(url, headers)
}

// waitFor 轮询直到条件满足或超时
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}

func TestServeRejectsMissingHeaders(t *testing.T) {
	env := newWSTestEnv(t)

	t.Run("缺少 UUID 头", func(t *testing.T) {
		conn, resp, err := dialAgent(t, env.wsURL, "", "secret")
		if err == nil {
			conn.Close()
			t.Fatal("缺少身份头时不应该完成升级")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("应该返回 401 且不升级，实际 %+v", resp)
		}
	})

	t.Run("缺少密钥头", func(t *testing.T) {
		conn, resp, err := dialAgent(t, env.wsURL, "node-1", "")
		if err == nil {
			conn.Close()
			t.Fatal("缺少密钥头时不应该完成升级")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("应该返回 401 且不升级，实际 %+v", resp)
		}
	})
}

func TestServeReportLifecycle(t *testing.T) {
	env := newWSTestEnv(t)
	node := env.createNode(t, "node-1", "secret-1")

	conn, _, err := dialAgent(t, env.wsURL, "node-1", "secret-1")
	if err != nil {
		t.Fatalf("建连失败: %v", err)
	}
	defer conn.Close()

	// 注册表应该恰好有这条连接
	waitFor(t, time.Second, func() bool {
		_, ok := env.manager.Get("node-1")
		return ok
	}, "建连后注册表应该有该节点的条目")
	if env.manager.Count() != 1 {
		t.Errorf("Count() = %d, want 1", env.manager.Count())
	}

	// 发送两条上报
	for i := 0; i < 2; i++ {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"cpu":42.5}`)); err != nil {
			t.Fatalf("发送上报失败: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool {
		var count int64
		env.db.Model(&models.Metric{}).Where("node_id = ?", node.ID).Count(&count)
		return count == 2
	}, "两条上报应该各产生一条指标")

	var got models.Node
	env.db.First(&got, node.ID)
	if got.Status != models.StatusOnline {
		t.Errorf("上报后节点应该在线，实际 Status = %d", got.Status)
	}

	// 中间有坏消息不断开连接
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`not-json`)); err != nil {
		t.Fatalf("发送坏消息失败: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"cpu":10}`)); err != nil {
		t.Fatalf("坏消息后连接应该仍然可写: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		var count int64
		env.db.Model(&models.Metric{}).Where("node_id = ?", node.ID).Count(&count)
		return count == 3
	}, "坏消息之后的合法上报应该照常入库")

	// 关闭后注册表清理
	conn.Close()
	waitFor(t, 2*time.Second, func() bool {
		_, ok := env.manager.Get("node-1")
		return !ok
	}, "连接关闭后注册表应该清掉条目")
}

func TestServeKeepalive(t *testing.T) {
	t.Run("周期发送 ping，回 pong 的连接保持在线", func(t *testing.T) {
		env := newWSTestEnv(t)
		env.handler.SetPingInterval(100 * time.Millisecond)
		env.createNode(t, "node-1", "secret-1")

		conn, _, err := dialAgent(t, env.wsURL, "node-1", "secret-1")
		if err != nil {
			t.Fatalf("建连失败: %v", err)
		}
		defer conn.Close()

		pinged := make(chan struct{}, 8)
		conn.SetPingHandler(func(appData string) error {
			pinged <- struct{}{}
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(time.Second))
		})
		// 控制帧在读消息时才会被处理
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		select {
		case <-pinged:
		case <-time.After(2 * time.Second):
			t.Fatal("保活周期内应该收到服务端 ping")
		}

		// 跨过多个读超时窗口，正常回 pong 的连接不应该被拆
		time.Sleep(500 * time.Millisecond)
		if env.manager.Count() != 1 {
			t.Errorf("回 pong 的连接应该保持注册，Count() = %d", env.manager.Count())
		}
	})

	t.Run("不回 pong 的半开连接被拆除", func(t *testing.T) {
		env := newWSTestEnv(t)
		env.handler.SetPingInterval(100 * time.Millisecond)
		env.createNode(t, "node-1", "secret-1")

		conn, _, err := dialAgent(t, env.wsURL, "node-1", "secret-1")
		if err != nil {
			t.Fatalf("建连失败: %v", err)
		}
		defer conn.Close()

		waitFor(t, time.Second, func() bool {
			_, ok := env.manager.Get("node-1")
			return ok
		}, "建连后注册表应该有该节点的条目")

		// 吞掉 ping 不回 pong，模拟半开连接
		conn.SetPingHandler(func(string) error { return nil })
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		// 读超时是两个 ping 周期，之后服务端应该拆掉连接并清理注册表
		waitFor(t, 2*time.Second, func() bool {
			_, ok := env.manager.Get("node-1")
			return !ok
		}, "不回 pong 的连接应该在读超时后被注销")
	})
}

func readCloseCode(t *testing.T, conn *websocket.Conn) int {
	t.Helper()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				return closeErr.Code
			}
			t.Fatalf("期望收到关闭帧，实际错误: %v", err)
		}
	}
}

func TestServeClosesOnInvalidSecret(t *testing.T) {
	env := newWSTestEnv(t)
	env.createNode(t, "node-1", "secret-1")

	// 升级阶段不校验密钥值，第一条消息才会触发关闭
	conn, _, err := dialAgent(t, env.wsURL, "node-1", "wrong")
	if err != nil {
		t.Fatalf("建连失败: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"cpu":1}`)); err != nil {
		t.Fatalf("发送上报失败: %v", err)
	}

	if code := readCloseCode(t, conn); code != protocol.CloseCodeInvalidSecret {
		t.Errorf("关闭码 = %d, want %d", code, protocol.CloseCodeInvalidSecret)
	}

	var count int64
	env.db.Model(&models.Metric{}).Count(&count)
	if count != 0 {
		t.Errorf("鉴权失败不应该写入指标，实际 %d 条", count)
	}
}

func TestServeClosesOnUnregisteredNode(t *testing.T) {
	env := newWSTestEnv(t)

	conn, _, err := dialAgent(t, env.wsURL, "ghost", "whatever")
	if err != nil {
		t.Fatalf("建连失败: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"cpu":1}`)); err != nil {
		t.Fatalf("发送上报失败: %v", err)
	}

	if code := readCloseCode(t, conn); code != protocol.CloseCodeNotRegistered {
		t.Errorf("关闭码 = %d, want %d", code, protocol.CloseCodeNotRegistered)
	}

	var count int64
	env.db.Model(&models.Node{}).Count(&count)
	if count != 0 {
		t.Errorf("上报不应该隐式注册节点，实际 %d 个", count)
	}
}
