package agent

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/RavenholmAlpha/Gridcore-agent/pkg/agent/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger 按探针配置初始化全局 slog。
// 配置了日志文件时经 lumberjack 滚动，否则写标准输出。
func InitLogger(cfg *config.AgentConfig) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var writer io.Writer = os.Stdout
	if cfg.LogFile != "" {
		writer = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    cfg.LogMaxSize, // MB
			MaxBackups: cfg.LogMaxBackups,
			MaxAge:     cfg.LogMaxAge, // 天
			Compress:   cfg.LogCompress,
		}
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				return slog.String(slog.TimeKey, a.Value.Time().Format("2006-01-02 15:04:05.000"))
			}
			return a
		},
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(writer, opts)))
}
