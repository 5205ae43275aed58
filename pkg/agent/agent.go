package agent

import (
	"context"
	"log/slog"

	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/buffer"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/collector"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/config"
)

// reporter 上报链路。ws:// 端点走长连接，http:// 端点走单次上报。
type reporter interface {
	Run(ctx context.Context) error
}

// Agent 探针主体：采集、缓存、上报
type Agent struct {
	cfg       *config.Config
	collector *collector.Collector
	buf       *buffer.Buffer
	cancel    context.CancelFunc
}

// New 创建探针实例
func New(cfg *config.Config) *Agent {
	return &Agent{
		cfg:       cfg,
		collector: collector.New(),
	}
}

// Start 运行探针直到 ctx 取消或发生不可恢复的错误
func (a *Agent) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// 离线缓存是可选的，打开失败时降级为直报
	if a.cfg.Agent.BufferPath != "" {
		buf, err := buffer.Open(a.cfg.Agent.BufferPath)
		if err != nil {
			slog.Warn("打开离线缓存失败，降级为直报", "path", a.cfg.Agent.BufferPath, "error", err)
		} else {
			a.buf = buf
			defer buf.Close()
		}
	}

	// 公网 IP 查询走外部 API，放后台做，不阻塞首次上报
	go func() {
		if ip := collector.FetchPublicIP(); ip != "" {
			slog.Info("公网 IP 已获取", "ip", ip)
			a.collector.SetPublicIP(ip)
		}
	}()

	var r reporter
	if a.cfg.UseWebSocket() {
		r = newWSReporter(a.cfg, a.collector, a.buf)
	} else {
		r = newHTTPReporter(a.cfg, a.collector, a.buf)
	}

	return r.Run(ctx)
}

// Stop 停止探针
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}
