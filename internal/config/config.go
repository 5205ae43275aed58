package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 服务端配置
type Config struct {
	Addr     string          `yaml:"addr"`     // 监听地址，如 0.0.0.0:3000
	Database DatabaseConfig  `yaml:"database"` // 数据库配置
	Sweep    SweepConfig     `yaml:"sweep"`    // 清扫任务配置
	Log      LogConfig       `yaml:"log"`      // 日志配置
	GeoIP    *GeoIPConfig    `yaml:"geoip"`    // GeoIP配置（可选）
	Registry *RegistryConfig `yaml:"registry"` // 连接管理配置（可选）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Type string `yaml:"type"` // sqlite 或 postgres
	DSN  string `yaml:"dsn"`
}

// SweepConfig 清扫任务配置
type SweepConfig struct {
	OfflineTimeoutSeconds int `yaml:"offlineTimeoutSeconds"` // 超过该秒数未上报则判定离线
	RetentionDays         int `yaml:"retentionDays"`         // 指标保留天数
}

// OfflineTimeout 离线判定窗口
func (c SweepConfig) OfflineTimeout() time.Duration {
	seconds := c.OfflineTimeoutSeconds
	if seconds <= 0 {
		seconds = 30
	}
	return time.Duration(seconds) * time.Second
}

// Retention 指标保留时长
func (c SweepConfig) Retention() time.Duration {
	days := c.RetentionDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"maxSize"`    // MB
	MaxBackups int    `yaml:"maxBackups"` // 保留的旧日志文件数
	MaxAge     int    `yaml:"maxAge"`     // 天数
	Compress   bool   `yaml:"compress"`
}

// GeoIPConfig GeoIP配置
type GeoIPConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"dbPath"` // GeoLite2-City.mmdb 路径
}

// RegistryConfig 连接管理配置
type RegistryConfig struct {
	PingIntervalSeconds int `yaml:"pingIntervalSeconds"` // 保活 ping 间隔
}

// PingInterval 保活 ping 间隔
func (c *RegistryConfig) PingInterval() time.Duration {
	if c == nil || c.PingIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.PingIntervalSeconds) * time.Second
}

// Load 从文件加载配置
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:3000"
	}
	if cfg.Database.Type == "" {
		cfg.Database.Type = "sqlite"
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.DSN == "" {
		cfg.Database.DSN = "gridcore.db"
	}

	return &cfg, nil
}
