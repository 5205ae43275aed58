package collector

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/RavenholmAlpha/Gridcore-agent/internal/protocol"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/net"
)

// Collector 系统指标采集器
// 网络速率需要两次采样做差，采集器持有上一次的计数和时间。
type Collector struct {
	prevNetIn   uint64
	prevNetOut  uint64
	prevNetTime time.Time

	// 公网 IP 由后台探测任务写入，和采集任务并发访问
	mu       sync.RWMutex
	publicIP string
}

func New() *Collector {
	// cpu.Percent 的第一次调用返回 0，先空转一次预热
	_, _ = cpu.Percent(0, false)
	return &Collector{}
}

// SetPublicIP 设置公网 IP，采集结果会携带该地址
func (c *Collector) SetPublicIP(ip string) {
	c.mu.Lock()
	c.publicIP = ip
	c.mu.Unlock()
}

func (c *Collector) getPublicIP() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.publicIP
}

// Collect 执行一次系统指标采集
// 各项指标独立采集，单项失败时对应字段留空，不影响其余指标。
func (c *Collector) Collect() (*protocol.ReportData, error) {
	data := &protocol.ReportData{
		PublicIP: c.getPublicIP(),
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		data.CPU = &percents[0]
	}
	if cores, err := cpu.Counts(true); err == nil {
		data.CPUCores = cores
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		data.RAM = &vm.UsedPercent
		data.RAMTotal = vm.Total
	}

	if usage, err := diskUsage(); err == nil {
		data.Disk = &usage.UsedPercent
	}

	c.collectNetRate(data)

	if info, err := host.Info(); err == nil {
		data.Name = info.Hostname
		data.Uptime = info.Uptime
		if info.Platform != "" {
			data.OS = fmt.Sprintf("%s %s", info.Platform, info.PlatformVersion)
		} else {
			data.OS = info.OS
		}
	}

	if avg, err := load.Avg(); err == nil && avg != nil {
		data.Load1 = &avg.Load1
		data.Load5 = &avg.Load5
		data.Load15 = &avg.Load15
	}

	return data, nil
}

// collectNetRate 基于两次采样的计数差计算全网卡合计速率
// 第一次采样没有基准，速率字段留空。
func (c *Collector) collectNetRate(data *protocol.ReportData) {
	counters, err := net.IOCounters(false)
	if err != nil || len(counters) == 0 {
		return
	}

	totalIn := counters[0].BytesRecv
	totalOut := counters[0].BytesSent
	now := time.Now()

	if !c.prevNetTime.IsZero() {
		duration := now.Sub(c.prevNetTime).Seconds()
		// 计数回绕（网卡重置）时跳过本次
		if duration > 0 && totalIn >= c.prevNetIn && totalOut >= c.prevNetOut {
			in := uint64(float64(totalIn-c.prevNetIn) / duration)
			out := uint64(float64(totalOut-c.prevNetOut) / duration)
			data.NetIn = &in
			data.NetOut = &out
		}
	}

	c.prevNetIn = totalIn
	c.prevNetOut = totalOut
	c.prevNetTime = now
}

// diskUsage Windows 下默认检查 C 盘，其他系统检查根目录 /
func diskUsage() (*disk.UsageStat, error) {
	path := "/"
	if runtime.GOOS == "windows" {
		path = "C:"
	}
	return disk.Usage(path)
}
