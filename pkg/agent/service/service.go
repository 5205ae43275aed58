package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/config"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/updater"
	"github.com/kardianos/service"
)

// program 实现 service.Interface
type program struct {
	cfg    *config.Config
	agent  *agent.Agent
	ctx    context.Context
	cancel context.CancelFunc
}

func initLogger(cfg *config.Config) {
	agent.InitLogger(&cfg.Agent)
}

// startAgent 启动探针和自动更新（抽取通用逻辑）
func startAgent(ctx context.Context, cfg *config.Config) *agent.Agent {
	a := agent.New(cfg)

	// 启动自动更新（如果启用）
	if cfg.AutoUpdate.Enabled {
		upd, err := updater.New(cfg, agent.GetVersion())
		if err != nil {
			slog.Warn("创建更新器失败", "error", err)
		} else {
			go upd.Start(ctx)
		}
	}

	// 在后台启动探针
	go func() {
		if err := a.Start(ctx); err != nil {
			slog.Warn("探针运行出错", "error", err)
		}
	}()

	return a
}

// Start 启动服务
func (p *program) Start(s service.Service) error {
	initLogger(p.cfg)

	slog.Info("Gridcore Agent 服务启动中...")

	p.ctx, p.cancel = context.WithCancel(context.Background())
	p.agent = startAgent(p.ctx, p.cfg)

	return nil
}

// Stop 停止服务
func (p *program) Stop(s service.Service) error {
	slog.Info("Gridcore Agent 服务停止中...")

	if p.cancel != nil {
		p.cancel()
	}

	if p.agent != nil {
		p.agent.Stop()
	}

	slog.Info("Gridcore Agent 服务已停止")
	return nil
}

// ServiceManager 服务管理器
type ServiceManager struct {
	cfg     *config.Config
	service service.Service
}

// NewServiceManager 创建服务管理器
func NewServiceManager(cfg *config.Config) (*ServiceManager, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("获取可执行文件路径失败: %w", err)
	}

	svcConfig := &service.Config{
		Name:        "gridcore-agent",
		DisplayName: "Gridcore Agent",
		Description: "Gridcore 监控探针 - 采集系统性能指标并上报到服务端",
		Arguments:   []string{"run", "--config", cfg.Path},
		Executable:  execPath,
		Option: service.KeyValue{
			// Linux systemd 配置
			"Restart":            "always",  // 总是重启
			"RestartSec":         "10",      // 重启前等待 10 秒
			"StartLimitInterval": "0",       // 无限制重启次数
			"KillMode":           "process", // 只杀主进程

			// Windows 配置
			"OnFailure":    "restart", // 失败时重启
			"ResetPeriod":  86400,     // 重置失败计数周期 (秒)
			"RestartDelay": 10000,     // 重启延迟 (毫秒)

			// 其他 Unix 系统 (upstart/launchd)
			"KeepAlive": true, // 保持运行
			"RunAtLoad": true, // 启动时运行
		},
	}

	prg := &program{
		cfg: cfg,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		return nil, fmt.Errorf("创建服务失败: %w", err)
	}

	return &ServiceManager{
		cfg:     cfg,
		service: s,
	}, nil
}

// Install 安装服务
func (m *ServiceManager) Install() error {
	return m.service.Install()
}

// Uninstall 卸载服务
func (m *ServiceManager) Uninstall() error {
	// 先停止服务
	_ = m.service.Stop()

	return m.service.Uninstall()
}

// Start 启动服务
func (m *ServiceManager) Start() error {
	return m.service.Start()
}

// Stop 停止服务
func (m *ServiceManager) Stop() error {
	return m.service.Stop()
}

// Restart 重启服务
func (m *ServiceManager) Restart() error {
	return m.service.Restart()
}

// Status 查看服务状态
func (m *ServiceManager) Status() (string, error) {
	status, err := m.service.Status()
	if err != nil {
		return "", err
	}

	var statusStr string
	switch status {
	case service.StatusRunning:
		statusStr = "运行中 (Running)"
	case service.StatusStopped:
		statusStr = "已停止 (Stopped)"
	case service.StatusUnknown:
		statusStr = "未知 (Unknown)"
	default:
		statusStr = fmt.Sprintf("状态: %d", status)
	}

	return statusStr, nil
}

// Run 运行服务（用于 service run 命令）
func (m *ServiceManager) Run() error {
	interactive := service.Interactive()

	if !interactive {
		// 在服务管理器控制下运行
		return m.service.Run()
	}

	// 交互模式（前台运行）
	initLogger(m.cfg)

	slog.Info("配置加载成功",
		"server_endpoint", m.cfg.Server.Endpoint,
		"report_interval", m.cfg.GetInterval())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	a := startAgent(ctx, m.cfg)

	<-interrupt
	slog.Info("收到中断信号，正在关闭...")
	cancel()

	a.Stop()
	slog.Info("探针已停止")

	return nil
}

// UninstallAgent 执行探针卸载操作（可被复用）
func UninstallAgent(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}

	mgr, err := NewServiceManager(cfg)
	if err != nil {
		return fmt.Errorf("创建服务管理器失败: %w", err)
	}

	// 检查服务状态，如果在运行则停止
	status, err := mgr.Status()
	if err != nil {
		slog.Warn("获取服务状态失败", "error", err)
	} else if status != "已停止 (Stopped)" {
		if err := mgr.Stop(); err != nil {
			return fmt.Errorf("停止服务失败: %w", err)
		}
	}

	if err := mgr.Uninstall(); err != nil {
		return fmt.Errorf("卸载服务失败: %w", err)
	}

	// 删除配置文件
	if err := os.Remove(cfgPath); err != nil {
		slog.Warn("删除配置文件失败", "error", err)
	}

	return nil
}
