package agent

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/buffer"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/collector"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/config"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"
)

const (
	wsReadWait  = 60 * time.Second
	wsWriteWait = 10 * time.Second
)

// wsReporter 长连接上报链路：保持一条 WebSocket 连接，周期性推送采集结果。
// 连接断开后按退避策略重连；鉴权被服务端拒绝时不再重试。
type wsReporter struct {
	cfg       *config.Config
	collector *collector.Collector
	buf       *buffer.Buffer

	sendMu sync.Mutex
}

func newWSReporter(cfg *config.Config, c *collector.Collector, buf *buffer.Buffer) *wsReporter {
	return &wsReporter{
		cfg:       cfg,
		collector: c,
		buf:       buf,
	}
}

// Run 维持连接直到 ctx 取消或服务端明确拒绝鉴权
func (r *wsReporter) Run(ctx context.Context) error {
	b := &backoff.Backoff{
		Min:    2 * time.Second,
		Max:    60 * time.Second,
		Jitter: true,
	}

	for {
		conn, err := r.connect(ctx)
		if err != nil {
			wait := b.Duration()
			slog.Warn("连接服务端失败", "error", err, "retryIn", wait)
			select {
			case <-time.After(wait):
				continue
			case <-ctx.Done():
				return nil
			}
		}
		b.Reset()
		slog.Info("已连接服务端", "endpoint", r.cfg.Server.Endpoint)

		// 连上后先补报离线缓存里积压的样本
		r.drainBuffer(conn)

		err = r.serve(ctx, conn)

		if ctx.Err() != nil {
			return nil
		}
		if isAuthRejection(err) {
			return fmt.Errorf("服务端拒绝鉴权，探针停止重试: %w", err)
		}
		slog.Warn("连接断开，准备重连", "error", err)
	}
}

func (r *wsReporter) connect(ctx context.Context) (*websocket.Conn, error) {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+r.cfg.Server.Secret)
	headers.Set("X-Agent-UUID", r.cfg.Agent.UUID)

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if r.cfg.Server.InsecureSkipVerify {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, _, err := dialer.DialContext(ctx, r.cfg.Server.Endpoint, headers)
	if err != nil {
		return nil, err
	}

	// 读超时由服务端的 ping 维持，收到 ping 回 pong 并顺延
	_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
	conn.SetPingHandler(func(appData string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(wsWriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	return conn, nil
}

// serve 并行跑一个会话的读写循环，任一侧出错即拆掉整个会话：
// 取消会话上下文停掉写循环、关闭连接解除读循环的阻塞，
// 两个循环都退出之后才返回，重连不会遗留上一个会话的任务。
func (r *wsReporter) serve(ctx context.Context, conn *websocket.Conn) error {
	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		r.readLoop(conn, errChan)
	}()
	go func() {
		defer wg.Done()
		r.writeLoop(sessCtx, conn, errChan)
	}()

	var err error
	select {
	case err = <-errChan:
	case <-ctx.Done():
		err = ctx.Err()
	}

	cancel()
	_ = conn.Close()
	wg.Wait()
	return err
}

// readLoop 处理服务端下发的指令
func (r *wsReporter) readLoop(conn *websocket.Conn, errChan chan<- error) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			errChan <- err
			return
		}
		if len(message) == 0 {
			continue
		}

		var cmd protocol.Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			slog.Warn("无法解析的服务端消息", "message", string(message))
			continue
		}
		switch cmd.Type {
		case protocol.MessageTypeExit:
			slog.Info("收到服务端退出指令")
			errChan <- errExitCommand
			return
		case protocol.MessageTypeNotice:
			slog.Info("服务端通知", "data", string(cmd.Data))
		default:
			slog.Debug("忽略未知指令", "type", cmd.Type)
		}
	}
}

// writeLoop 周期性采集并推送
func (r *wsReporter) writeLoop(ctx context.Context, conn *websocket.Conn, errChan chan<- error) {
	ticker := time.NewTicker(r.cfg.GetInterval())
	defer ticker.Stop()

	// 连接建立后立即上报一次
	if err := r.report(conn); err != nil {
		errChan <- err
		return
	}

	for {
		select {
		case <-ticker.C:
			if err := r.report(conn); err != nil {
				errChan <- err
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (r *wsReporter) report(conn *websocket.Conn) error {
	data, err := r.collector.Collect()
	if err != nil {
		slog.Warn("采集失败", "error", err)
		return nil
	}
	data.UUID = r.cfg.Agent.UUID

	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("序列化失败", "error", err)
		return nil
	}

	if r.cfg.Agent.Debug {
		slog.Debug("sending report", "payload", string(payload))
	}

	if err := r.write(conn, payload); err != nil {
		// 发送失败的样本进离线缓存，重连后补报
		if r.buf != nil {
			if bufErr := r.buf.Append(payload); bufErr != nil {
				slog.Warn("写入离线缓存失败", "error", bufErr)
			}
		}
		return err
	}
	return nil
}

func (r *wsReporter) write(conn *websocket.Conn, payload []byte) error {
	r.sendMu.Lock()
	defer r.sendMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func (r *wsReporter) drainBuffer(conn *websocket.Conn) {
	if r.buf == nil {
		return
	}
	if n, err := r.buf.Len(); err != nil || n == 0 {
		return
	}
	send := func(payload []byte) error {
		return r.write(conn, payload)
	}
	if err := r.buf.Drain(send); err != nil {
		slog.Debug("补报中断，剩余样本保留", "error", err)
	}
}

var errExitCommand = fmt.Errorf("服务端要求退出")

// isAuthRejection 服务端用专门的关闭码表示鉴权失败，这类错误重试没有意义
func isAuthRejection(err error) bool {
	if err == errExitCommand {
		return true
	}
	return websocket.IsCloseError(err,
		protocol.CloseCodeInvalidSecret,
		protocol.CloseCodeNotRegistered)
}
