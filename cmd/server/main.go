package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/config"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/handler"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/models"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/scheduler"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/service"
	"github.com/RavenholmAlpha/Gridcore-agent/internal/websocket"
	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "gridcore-server",
		Short: "Gridcore 探针遥测服务端",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "配置文件路径")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := config.NewLogger(&cfg.Log)
	defer func() { _ = logger.Sync() }()

	db, err := openDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("打开数据库失败: %w", err)
	}
	if err := db.AutoMigrate(&models.Node{}, &models.Metric{}); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}

	// GeoIP 是可选能力，初始化失败时返回 nil，上报链路照常工作
	geoipService := service.NewGeoIPService(logger, cfg.GeoIP)
	defer geoipService.Close()

	metricService := service.NewMetricService(logger, db)
	reportService := service.NewReportService(logger, db, geoipService)
	nodeService := service.NewNodeService(logger, db, metricService)

	// 连接管理器后注入，避免 service 和 websocket 包循环依赖
	wsManager := websocket.NewManager(logger)
	nodeService.SetRegistry(wsManager)

	wsHandler := websocket.NewHandler(logger, wsManager, reportService)
	wsHandler.SetPingInterval(cfg.Registry.PingInterval())

	reportHandler := handler.NewReportHandler(logger, reportService)
	nodeHandler := handler.NewNodeHandler(logger, nodeService, metricService)

	e := handler.NewRouter(logger, reportHandler, nodeHandler, wsHandler)

	sweeper := scheduler.NewSweepScheduler(logger, nodeService, metricService, cfg.Sweep)
	if err := sweeper.Start(); err != nil {
		return fmt.Errorf("启动清扫任务失败: %w", err)
	}

	go func() {
		logger.Info("gridcore server started", zap.String("addr", cfg.Addr))
		if err := e.Start(cfg.Addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("服务启动失败", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	logger.Info("收到退出信号，开始优雅关闭")
	sweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("关闭 HTTP 服务失败", zap.Error(err))
	}

	logger.Info("gridcore server stopped")
	return nil
}

func openDatabase(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	}
	switch cfg.Type {
	case "sqlite", "":
		return gorm.Open(sqlite.Open(cfg.DSN), gormCfg)
	case "postgres":
		return gorm.Open(postgres.Open(cfg.DSN), gormCfg)
	default:
		return nil, fmt.Errorf("不支持的数据库类型: %s", cfg.Type)
	}
}
