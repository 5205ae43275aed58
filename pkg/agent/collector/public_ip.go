package collector

import (
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// 公网 IP 查询 API，按顺序尝试，第一个返回合法地址的生效
var publicIPAPIs = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

// FetchPublicIP 查询本机公网 IP，全部 API 失败时返回空字符串
func FetchPublicIP() string {
	client := resty.New().SetTimeout(5 * time.Second)

	for _, api := range publicIPAPIs {
		resp, err := client.R().Get(api)
		if err != nil || !resp.IsSuccess() {
			continue
		}
		ip := strings.TrimSpace(resp.String())
		if net.ParseIP(ip) != nil {
			return ip
		}
	}
	return ""
}
