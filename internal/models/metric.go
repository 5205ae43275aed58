package models

// Metric 单次上报产生的指标样本（只追加，不更新）
// 使用率字段为空表示「未知」，存储层不把未知折算成 0。
type Metric struct {
	ID     uint `gorm:"primaryKey;autoIncrement" json:"id"`
	NodeID uint `gorm:"index:idx_metric_node" json:"nodeId"` // 所属节点ID

	CPUUsage  *float64 `json:"cpuUsage"`  // CPU 使用率(百分比)
	RAMUsage  *float64 `json:"ramUsage"`  // 内存使用率(百分比)
	DiskUsage *float64 `json:"diskUsage"` // 磁盘使用率(百分比)

	NetInRate  *uint64 `json:"netInRate"`  // 网络入站速率(字节/秒)
	NetOutRate *uint64 `json:"netOutRate"` // 网络出站速率(字节/秒)

	Load1  *float64 `json:"load1"`  // 1分钟负载
	Load5  *float64 `json:"load5"`  // 5分钟负载
	Load15 *float64 `json:"load15"` // 15分钟负载

	CreatedAt int64 `gorm:"index:idx_metric_created" json:"createdAt"` // 入库时间（毫秒时间戳，服务端赋值）
}

func (Metric) TableName() string {
	return "metrics"
}
