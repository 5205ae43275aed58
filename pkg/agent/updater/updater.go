package updater

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/config"
	"github.com/minio/selfupdate"
)

// VersionInfo 版本信息
type VersionInfo struct {
	Version string `json:"version"`
}

// Updater 自动更新器
type Updater struct {
	cfg        *config.Config
	currentVer string
	httpClient *http.Client
}

// New 创建更新器
func New(cfg *config.Config, currentVer string) (*Updater, error) {
	if cfg.AutoUpdate.VersionURL == "" || cfg.AutoUpdate.DownloadURL == "" {
		return nil, fmt.Errorf("自动更新配置缺少 versionUrl 或 downloadUrl")
	}

	httpClient := &http.Client{
		Timeout: 60 * time.Second,
	}
	if cfg.Server.InsecureSkipVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: true,
			},
		}
	}

	return &Updater{
		cfg:        cfg,
		currentVer: currentVer,
		httpClient: httpClient,
	}, nil
}

// Start 启动自动更新检查
func (u *Updater) Start(ctx context.Context) {
	slog.Info("自动更新已启用", "check_interval", u.cfg.GetUpdateCheckInterval())

	// 立即检查一次
	u.CheckAndUpdate()

	ticker := time.NewTicker(u.cfg.GetUpdateCheckInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			u.CheckAndUpdate()
		case <-ctx.Done():
			slog.Info("停止自动更新检查")
			return
		}
	}
}

// CheckAndUpdate 检查并更新
func (u *Updater) CheckAndUpdate() {
	slog.Debug("检查更新...")

	versionInfo, err := u.fetchLatestVersion()
	if err != nil {
		slog.Warn("获取版本信息失败", "error", err)
		return
	}

	if versionInfo.Version == u.currentVer {
		slog.Debug("当前已是最新版本", "version", u.currentVer)
		return
	}

	slog.Info("发现新版本", "new_version", versionInfo.Version, "current_version", u.currentVer)

	if err := u.downloadAndUpdate(); err != nil {
		slog.Error("更新失败", "error", err)
		return
	}
}

// fetchLatestVersion 获取最新版本信息
func (u *Updater) fetchLatestVersion() (*VersionInfo, error) {
	resp, err := u.httpClient.Get(u.cfg.AutoUpdate.VersionURL)
	if err != nil {
		return nil, fmt.Errorf("请求失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP 状态码: %d", resp.StatusCode)
	}

	var versionInfo VersionInfo
	if err := json.NewDecoder(resp.Body).Decode(&versionInfo); err != nil {
		return nil, fmt.Errorf("解析响应失败: %w", err)
	}

	return &versionInfo, nil
}

// downloadAndUpdate 下载并替换当前可执行文件
func (u *Updater) downloadAndUpdate() error {
	slog.Info("下载新版本", "url", u.cfg.AutoUpdate.DownloadURL)

	resp, err := u.httpClient.Get(u.cfg.AutoUpdate.DownloadURL)
	if err != nil {
		return fmt.Errorf("下载失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP 状态码: %d", resp.StatusCode)
	}

	if err := selfupdate.Apply(resp.Body, selfupdate.Options{}); err != nil {
		return fmt.Errorf("应用更新失败: %w", err)
	}

	slog.Info("更新成功，进程即将退出，等待系统服务重启...")

	// 退出当前进程，让系统服务管理器（systemd/supervisor等）自动重启
	// 注意：这要求服务配置了自动重启（如 systemd 的 Restart=always）
	os.Exit(1)

	return nil
}
