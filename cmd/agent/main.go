package main

import (
	"fmt"
	"os"

	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/config"
	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/service"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridcore-agent",
		Short: "Gridcore 监控探针",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agent.yaml", "配置文件路径")

	rootCmd.AddCommand(
		runCmd(),
		installCmd(),
		uninstallCmd(),
		controlCmd("start", "启动服务", (*service.ServiceManager).Start),
		controlCmd("stop", "停止服务", (*service.ServiceManager).Stop),
		controlCmd("restart", "重启服务", (*service.ServiceManager).Restart),
		statusCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newManager() (*service.ServiceManager, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return service.NewServiceManager(cfg)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "前台运行探针",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			return mgr.Run()
		},
	}
}

func installCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install",
		Short: "安装为系统服务并启动",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			if err := mgr.Install(); err != nil {
				return fmt.Errorf("安装服务失败: %w", err)
			}
			if err := mgr.Start(); err != nil {
				return fmt.Errorf("启动服务失败: %w", err)
			}
			fmt.Println("服务已安装并启动")
			return nil
		},
	}
}

func uninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "停止并卸载系统服务",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := service.UninstallAgent(configPath); err != nil {
				return err
			}
			fmt.Println("服务已卸载")
			return nil
		},
	}
}

func controlCmd(use, short string, action func(*service.ServiceManager) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			return action(mgr)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "查看服务状态",
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := newManager()
			if err != nil {
				return err
			}
			status, err := mgr.Status()
			if err != nil {
				return err
			}
			fmt.Println(status)
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "显示版本",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(agent.GetVersion())
		},
	}
}
