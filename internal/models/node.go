package models

import (
	"gorm.io/datatypes"
)

// 节点状态
const (
	StatusOffline = 0 // 离线
	StatusOnline  = 1 // 在线
)

// Node 被监控的节点（探针）
type Node struct {
	ID       uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	UUID     string `gorm:"uniqueIndex:ux_node_uuid" json:"uuid"` // 探针唯一标识（创建后不可变）
	Name     string `json:"name"`                                 // 显示名称
	OSInfo   string `json:"osInfo"`                               // 操作系统信息
	ClientIP string `json:"clientIp"`                             // 最近一次上报观测到的地址
	Location string `json:"location"`                             // IP 归属地（可选，GeoIP）
	CPUCores int    `json:"cpuCores"`                             // CPU 核心数
	RAMTotal uint64 `json:"ramTotal"`                             // 内存总量(字节)
	Uptime   uint64 `json:"uptime"`                               // 运行时间(秒)

	Status   int   `gorm:"index:idx_node_status" json:"status"` // 0: 离线, 1: 在线
	LastSeen int64 `json:"lastSeen"`                            // 最近一次上报时间（毫秒时间戳）

	Secret string `json:"-"` // 上报密钥，创建时设置，永不返回给调用方

	Tags datatypes.JSONSlice[string] `json:"tags"` // 标签

	CreatedAt int64 `json:"createdAt"`                             // 创建时间（毫秒）
	UpdatedAt int64 `json:"updatedAt" gorm:"autoUpdateTime:milli"` // 更新时间（毫秒）
}

func (Node) TableName() string {
	return "nodes"
}
