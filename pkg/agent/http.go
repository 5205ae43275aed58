package agent

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/buffer"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/collector"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/config"
	"github.com/go-resty/resty/v2"
)

// httpReporter 单次上报链路：每个周期采集一次并 POST 到服务端
type httpReporter struct {
	cfg       *config.Config
	collector *collector.Collector
	buf       *buffer.Buffer
	client    *resty.Client
}

func newHTTPReporter(cfg *config.Config, c *collector.Collector, buf *buffer.Buffer) *httpReporter {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("Authorization", "Bearer "+cfg.Server.Secret).
		SetHeader("Content-Type", "application/json")
	if cfg.Server.InsecureSkipVerify {
		client.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}

	return &httpReporter{
		cfg:       cfg,
		collector: c,
		buf:       buf,
		client:    client,
	}
}

// Run 按配置的间隔循环上报，直到 ctx 取消
func (r *httpReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.GetInterval())
	defer ticker.Stop()

	// 启动后立即上报一次
	r.report(ctx)

	for {
		select {
		case <-ticker.C:
			r.report(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *httpReporter) report(ctx context.Context) {
	data, err := r.collector.Collect()
	if err != nil {
		slog.Warn("采集失败", "error", err)
		return
	}
	data.UUID = r.cfg.Agent.UUID

	payload, err := json.Marshal(data)
	if err != nil {
		slog.Warn("序列化失败", "error", err)
		return
	}

	if r.cfg.Agent.Debug {
		slog.Debug("sending report", "payload", string(payload))
	}

	if err := r.send(ctx, payload); err != nil {
		slog.Warn("上报失败", "error", err)
		// 上报失败的样本进离线缓存，恢复后按采集顺序补报
		if r.buf != nil {
			if err := r.buf.Append(payload); err != nil {
				slog.Warn("写入离线缓存失败", "error", err)
			}
		}
		return
	}

	// 本次成功，顺带补报缓存里积压的样本
	if r.buf != nil {
		if err := r.buf.Drain(func(p []byte) error { return r.send(ctx, p) }); err != nil {
			slog.Debug("补报中断，剩余样本保留", "error", err)
		}
	}
}

func (r *httpReporter) send(ctx context.Context, payload []byte) error {
	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(r.cfg.Server.Endpoint)
	if err != nil {
		return err
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("服务端返回 %s: %s", resp.Status(), resp.String())
	}
	return nil
}
