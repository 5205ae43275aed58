package service

import (
	"net"
	"strings"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/config"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

// GeoIPService IP 归属地查询服务（可选，未配置时为 nil）
type GeoIPService struct {
	logger *zap.Logger
	reader *geoip2.Reader
}

// NewGeoIPService 创建 GeoIP 服务，未启用或数据库打开失败时返回 nil
func NewGeoIPService(logger *zap.Logger, cfg *config.GeoIPConfig) *GeoIPService {
	if cfg == nil || !cfg.Enabled || cfg.DBPath == "" {
		return nil
	}

	reader, err := geoip2.Open(cfg.DBPath)
	if err != nil {
		logger.Warn("打开 GeoIP 数据库失败，归属地查询不可用",
			zap.String("path", cfg.DBPath),
			zap.Error(err))
		return nil
	}

	return &GeoIPService{
		logger: logger,
		reader: reader,
	}
}

// LookupIP 查询 IP 归属地，失败时返回空字符串
func (s *GeoIPService) LookupIP(ipStr string) string {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return ""
	}
	if ip.IsPrivate() || ip.IsLoopback() {
		return ""
	}

	record, err := s.reader.City(ip)
	if err != nil {
		s.logger.Debug("GeoIP 查询失败", zap.String("ip", ipStr), zap.Error(err))
		return ""
	}

	parts := make([]string, 0, 2)
	if name := record.Country.Names["en"]; name != "" {
		parts = append(parts, name)
	}
	if name := record.City.Names["en"]; name != "" {
		parts = append(parts, name)
	}
	return strings.Join(parts, " ")
}

// Close 关闭底层数据库
func (s *GeoIPService) Close() error {
	if s == nil || s.reader == nil {
		return nil
	}
	return s.reader.Close()
}
