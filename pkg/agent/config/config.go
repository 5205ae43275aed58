package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Fs 配置文件所在的文件系统，测试时可替换为内存文件系统
var Fs = afero.NewOsFs()

// Config 探针配置
type Config struct {
	Path string `yaml:"-"` // 配置文件自身路径

	Server     ServerConfig     `yaml:"server"`
	Agent      AgentConfig      `yaml:"agent"`
	AutoUpdate AutoUpdateConfig `yaml:"autoUpdate"`
}

// ServerConfig 服务端连接配置
type ServerConfig struct {
	// 上报地址。ws:// 或 wss:// 走长连接，http:// 或 https:// 走单次上报
	Endpoint           string `yaml:"endpoint"`
	Secret             string `yaml:"secret"`
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// AgentConfig 探针自身配置
type AgentConfig struct {
	UUID            string `yaml:"uuid"`     // 首次启动自动生成并写回
	IntervalSeconds int    `yaml:"interval"` // 上报间隔(秒)
	BufferPath      string `yaml:"bufferPath"`
	Debug           bool   `yaml:"debug"`

	LogLevel      string `yaml:"logLevel"`
	LogFile       string `yaml:"logFile"`
	LogMaxSize    int    `yaml:"logMaxSize"`
	LogMaxBackups int    `yaml:"logMaxBackups"`
	LogMaxAge     int    `yaml:"logMaxAge"`
	LogCompress   bool   `yaml:"logCompress"`
}

// AutoUpdateConfig 自动更新配置
type AutoUpdateConfig struct {
	Enabled              bool   `yaml:"enabled"`
	CheckIntervalMinutes int    `yaml:"checkIntervalMinutes"`
	VersionURL           string `yaml:"versionUrl"`
	DownloadURL          string `yaml:"downloadUrl"`
}

// GetInterval 上报间隔，最小 1 秒
func (c *Config) GetInterval() time.Duration {
	seconds := c.Agent.IntervalSeconds
	if seconds < 1 {
		seconds = 2
	}
	return time.Duration(seconds) * time.Second
}

// GetUpdateCheckInterval 更新检查间隔
func (c *Config) GetUpdateCheckInterval() time.Duration {
	minutes := c.AutoUpdate.CheckIntervalMinutes
	if minutes < 1 {
		minutes = 60
	}
	return time.Duration(minutes) * time.Minute
}

// UseWebSocket 端点是否是长连接上报
func (c *Config) UseWebSocket() bool {
	return strings.HasPrefix(c.Server.Endpoint, "ws://") ||
		strings.HasPrefix(c.Server.Endpoint, "wss://")
}

// Load 加载配置，首次加载时生成 UUID 并写回文件
func Load(path string) (*Config, error) {
	data, err := afero.ReadFile(Fs, path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	cfg.Path = path

	if cfg.Server.Endpoint == "" {
		return nil, fmt.Errorf("配置缺少 server.endpoint")
	}
	if cfg.Server.Secret == "" {
		return nil, fmt.Errorf("配置缺少 server.secret")
	}

	// UUID 是探针的持久身份，生成后必须落盘，重启不能变
	if cfg.Agent.UUID == "" {
		cfg.Agent.UUID = uuid.New().String()
		if err := cfg.Save(); err != nil {
			return nil, fmt.Errorf("写回探针 UUID 失败: %w", err)
		}
	}

	return &cfg, nil
}

// Save 把配置写回文件
func (c *Config) Save() error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return afero.WriteFile(Fs, c.Path, data, 0644)
}
